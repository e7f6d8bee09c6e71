// Package routing resolves a client neighborhood to the routes that cover it
// and to the collectors working those routes.
package routing

import (
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/mcclellann/fieldloan/pkg/models"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds a neighborhood name for comparison: accents removed,
// lower-cased, surrounding space trimmed and inner whitespace collapsed.
func Normalize(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// SplitNeighborhoods parses a free-text, comma separated neighborhood list.
// Blank entries are dropped.
func SplitNeighborhoods(list string) []string {
	var out []string
	for _, part := range strings.Split(list, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Index maps normalized neighborhoods to active routes and active routes to
// active collectors. Build it once per batch and query it by exact match.
type Index struct {
	routesByNeighborhood map[string][]uuid.UUID
	collectorsByRoute    map[uuid.UUID][]*models.Collector
}

// NewIndex builds an Index from the route and collector catalogs. Inactive
// routes and inactive collectors are left out.
func NewIndex(routes []*models.Route, collectors []*models.Collector) *Index {
	idx := &Index{
		routesByNeighborhood: make(map[string][]uuid.UUID),
		collectorsByRoute:    make(map[uuid.UUID][]*models.Collector),
	}
	active := make(map[uuid.UUID]bool, len(routes))
	for _, r := range routes {
		if !r.Active {
			continue
		}
		active[r.ID] = true
		seen := make(map[string]bool)
		for _, n := range r.Neighborhoods {
			key := Normalize(n)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			idx.routesByNeighborhood[key] = append(idx.routesByNeighborhood[key], r.ID)
		}
	}
	for _, c := range collectors {
		if !c.Active {
			continue
		}
		for _, rid := range c.RouteIDs {
			if active[rid] {
				idx.collectorsByRoute[rid] = append(idx.collectorsByRoute[rid], c)
			}
		}
	}
	return idx
}

// Routes returns the active routes covering neighborhood.
func (idx *Index) Routes(neighborhood string) []uuid.UUID {
	return idx.routesByNeighborhood[Normalize(neighborhood)]
}

// Collectors returns the distinct active collectors eligible for neighborhood.
func (idx *Index) Collectors(neighborhood string) []*models.Collector {
	var out []*models.Collector
	seen := make(map[uuid.UUID]bool)
	for _, rid := range idx.Routes(neighborhood) {
		for _, c := range idx.collectorsByRoute[rid] {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, c)
		}
	}
	return out
}

// Suggest picks the eligible collector carrying the fewest active loans.
// Ties go to the lowest collector id so the choice is stable. It returns nil
// when nobody covers the neighborhood.
func (idx *Index) Suggest(neighborhood string, activeLoans map[uuid.UUID]int) *models.Collector {
	candidates := idx.Collectors(neighborhood)
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		li, lj := activeLoans[candidates[i].ID], activeLoans[candidates[j].ID]
		if li != lj {
			return li < lj
		}
		return candidates[i].ID.String() < candidates[j].ID.String()
	})
	return candidates[0]
}
