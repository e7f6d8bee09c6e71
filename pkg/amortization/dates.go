package amortization

import (
	"time"

	"github.com/mcclellann/fieldloan/pkg/models"
)

// DueDate is one entry of a due-date sequence.
type DueDate struct {
	Number  int       `json:"number"`
	Date    time.Time `json:"date"`
	Weekend bool      `json:"weekend"`
}

// DueDates returns count due dates following start. Daily, weekly and biweekly
// cadences add 1, 7 and 15 days per period. Monthly adds calendar months and
// clamps to the last day of shorter months. Weekend dates are flagged, never moved.
func DueDates(start time.Time, cadence models.Cadence, count int) []DueDate {
	start = models.DateOf(start)
	dates := make([]DueDate, 0, count)
	for i := 1; i <= count; i++ {
		var d time.Time
		switch cadence {
		case models.CadenceDaily:
			d = start.AddDate(0, 0, i)
		case models.CadenceWeekly:
			d = start.AddDate(0, 0, 7*i)
		case models.CadenceBiweekly:
			d = start.AddDate(0, 0, 15*i)
		default:
			d = addMonthsClamped(start, i)
		}
		wd := d.Weekday()
		dates = append(dates, DueDate{
			Number:  i,
			Date:    d,
			Weekend: wd == time.Saturday || wd == time.Sunday,
		})
	}
	return dates
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}
