package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fieldloan/pkg/models"
	"github.com/shopspring/decimal"
)

type memData struct {
	clients      map[uuid.UUID]*models.Client
	loans        map[uuid.UUID]*models.Loan
	installments map[uuid.UUID]*models.Installment
	payments     []*models.Payment
	tasks        map[uuid.UUID]*models.CollectionTask
	routes       map[uuid.UUID]*models.Route
	collectors   map[uuid.UUID]*models.Collector
	snapshots    map[time.Time]*models.PortfolioSnapshot
}

type memState struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	data *memData
}

// MemoryStore is an in-process Storage. Values are copied on the way in and
// out. Transactions are serialized and journal the prior value of every row
// they write, so a rollback undoes only the transaction's own writes.
type MemoryStore struct {
	st      *memState
	journal *memJournal
}

// memJournal holds the value each row had before a transaction first wrote
// it. A nil entry means the row did not exist.
type memJournal struct {
	clients      map[uuid.UUID]*models.Client
	loans        map[uuid.UUID]*models.Loan
	installments map[uuid.UUID]*models.Installment
	payments     map[uuid.UUID]*models.Payment
	tasks        map[uuid.UUID]*models.CollectionTask
	routes       map[uuid.UUID]*models.Route
	collectors   map[uuid.UUID]*models.Collector
	snapshots    map[time.Time]*models.PortfolioSnapshot
}

func newMemJournal() *memJournal {
	return &memJournal{
		clients:      make(map[uuid.UUID]*models.Client),
		loans:        make(map[uuid.UUID]*models.Loan),
		installments: make(map[uuid.UUID]*models.Installment),
		payments:     make(map[uuid.UUID]*models.Payment),
		tasks:        make(map[uuid.UUID]*models.CollectionTask),
		routes:       make(map[uuid.UUID]*models.Route),
		collectors:   make(map[uuid.UUID]*models.Collector),
		snapshots:    make(map[time.Time]*models.PortfolioSnapshot),
	}
}

func remember[K comparable, V any](saved, live map[K]*V, key K, clone func(*V) *V) {
	if _, ok := saved[key]; ok {
		return
	}
	if v, ok := live[key]; ok {
		saved[key] = clone(v)
		return
	}
	saved[key] = nil
}

func restore[K comparable, V any](saved, live map[K]*V) {
	for k, v := range saved {
		if v == nil {
			delete(live, k)
		} else {
			live[k] = v
		}
	}
}

// The journal methods are no-ops outside a transaction.

func (j *memJournal) client(d *memData, id uuid.UUID) {
	if j != nil {
		remember(j.clients, d.clients, id, cloneClient)
	}
}

func (j *memJournal) loan(d *memData, id uuid.UUID) {
	if j != nil {
		remember(j.loans, d.loans, id, cloneLoan)
	}
}

func (j *memJournal) installment(d *memData, id uuid.UUID) {
	if j != nil {
		remember(j.installments, d.installments, id, cloneInstallment)
	}
}

func (j *memJournal) task(d *memData, id uuid.UUID) {
	if j != nil {
		remember(j.tasks, d.tasks, id, cloneTask)
	}
}

func (j *memJournal) route(d *memData, id uuid.UUID) {
	if j != nil {
		remember(j.routes, d.routes, id, cloneRoute)
	}
}

func (j *memJournal) collector(d *memData, id uuid.UUID) {
	if j != nil {
		remember(j.collectors, d.collectors, id, cloneCollector)
	}
}

func (j *memJournal) snapshot(d *memData, date time.Time) {
	if j != nil {
		remember(j.snapshots, d.snapshots, date, func(s *models.PortfolioSnapshot) *models.PortfolioSnapshot {
			v := *s
			return &v
		})
	}
}

func (j *memJournal) payment(d *memData, id uuid.UUID) {
	if j == nil {
		return
	}
	if _, ok := j.payments[id]; ok {
		return
	}
	j.payments[id] = nil
	for _, p := range d.payments {
		if p.ID == id {
			j.payments[id] = clonePayment(p)
			break
		}
	}
}

func (j *memJournal) undo(d *memData) {
	restore(j.clients, d.clients)
	restore(j.loans, d.loans)
	restore(j.installments, d.installments)
	restore(j.tasks, d.tasks)
	restore(j.routes, d.routes)
	restore(j.collectors, d.collectors)
	restore(j.snapshots, d.snapshots)
	if len(j.payments) == 0 {
		return
	}
	kept := d.payments[:0]
	for _, p := range d.payments {
		saved, touched := j.payments[p.ID]
		switch {
		case !touched:
			kept = append(kept, p)
		case saved != nil:
			kept = append(kept, saved)
		}
	}
	d.payments = kept
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{st: &memState{data: newMemData()}}
}

func newMemData() *memData {
	return &memData{
		clients:      make(map[uuid.UUID]*models.Client),
		loans:        make(map[uuid.UUID]*models.Loan),
		installments: make(map[uuid.UUID]*models.Installment),
		tasks:        make(map[uuid.UUID]*models.CollectionTask),
		routes:       make(map[uuid.UUID]*models.Route),
		collectors:   make(map[uuid.UUID]*models.Collector),
		snapshots:    make(map[time.Time]*models.PortfolioSnapshot),
	}
}

func ptr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneClient(c *models.Client) *models.Client {
	v := *c
	return &v
}

func cloneLoan(l *models.Loan) *models.Loan {
	v := *l
	v.CollectorID = ptr(l.CollectorID)
	v.ApprovedAt = ptr(l.ApprovedAt)
	v.DisbursedAt = ptr(l.DisbursedAt)
	v.ReferenceDueDate = ptr(l.ReferenceDueDate)
	return &v
}

func cloneInstallment(i *models.Installment) *models.Installment {
	v := *i
	v.PaidOn = ptr(i.PaidOn)
	return &v
}

func clonePayment(p *models.Payment) *models.Payment {
	v := *p
	v.InstallmentID = ptr(p.InstallmentID)
	return &v
}

func cloneTask(t *models.CollectionTask) *models.CollectionTask {
	v := *t
	v.VisitedAt = ptr(t.VisitedAt)
	v.AmountCollected = ptr(t.AmountCollected)
	v.RescheduledTo = ptr(t.RescheduledTo)
	v.Location = ptr(t.Location)
	return &v
}

func cloneRoute(r *models.Route) *models.Route {
	v := *r
	v.Neighborhoods = append([]string(nil), r.Neighborhoods...)
	return &v
}

func cloneCollector(c *models.Collector) *models.Collector {
	v := *c
	v.RouteIDs = append([]uuid.UUID(nil), c.RouteIDs...)
	return &v
}

// RunInTx implements Storage.
func (m *MemoryStore) RunInTx(ctx context.Context, fn func(tx Storage) error) error {
	if m.journal != nil {
		return fn(m)
	}
	m.st.txMu.Lock()
	defer m.st.txMu.Unlock()

	j := newMemJournal()
	if err := fn(&MemoryStore{st: m.st, journal: j}); err != nil {
		m.st.mu.Lock()
		j.undo(m.st.data)
		m.st.mu.Unlock()
		return err
	}
	return nil
}

// Close implements Storage.
func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) read(fn func(d *memData)) {
	m.st.mu.RLock()
	defer m.st.mu.RUnlock()
	fn(m.st.data)
}

func (m *MemoryStore) write(fn func(d *memData, j *memJournal) error) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	return fn(m.st.data, m.journal)
}

func (m *MemoryStore) CreateClient(_ context.Context, c *models.Client) error {
	return m.write(func(d *memData, j *memJournal) error {
		for _, existing := range d.clients {
			if existing.NationalID == c.NationalID {
				return fmt.Errorf("%w: national id %s already registered", models.ErrInvalidParameters, c.NationalID)
			}
		}
		j.client(d, c.ID)
		d.clients[c.ID] = cloneClient(c)
		return nil
	})
}

func (m *MemoryStore) GetClient(_ context.Context, id uuid.UUID) (*models.Client, error) {
	var out *models.Client
	m.read(func(d *memData) {
		if c, ok := d.clients[id]; ok {
			out = cloneClient(c)
		}
	})
	if out == nil {
		return nil, notFound("client")
	}
	return out, nil
}

func (m *MemoryStore) CreateLoan(_ context.Context, loan *models.Loan) error {
	return m.write(func(d *memData, j *memJournal) error {
		if _, ok := d.loans[loan.ID]; ok {
			return fmt.Errorf("failed to create loan: duplicate id %s", loan.ID)
		}
		j.loan(d, loan.ID)
		d.loans[loan.ID] = cloneLoan(loan)
		return nil
	})
}

func (m *MemoryStore) GetLoan(_ context.Context, id uuid.UUID) (*models.Loan, error) {
	var out *models.Loan
	m.read(func(d *memData) {
		if l, ok := d.loans[id]; ok {
			out = cloneLoan(l)
		}
	})
	if out == nil {
		return nil, notFound("loan")
	}
	return out, nil
}

// GetLoanForUpdate implements Storage. The transaction lock already excludes other writers.
func (m *MemoryStore) GetLoanForUpdate(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	return m.GetLoan(ctx, id)
}

func (m *MemoryStore) UpdateLoan(_ context.Context, loan *models.Loan) error {
	return m.write(func(d *memData, j *memJournal) error {
		if _, ok := d.loans[loan.ID]; !ok {
			return notFound("loan")
		}
		j.loan(d, loan.ID)
		d.loans[loan.ID] = cloneLoan(loan)
		return nil
	})
}

func (m *MemoryStore) ListLoansByStatus(_ context.Context, statuses ...models.LoanStatus) ([]*models.Loan, error) {
	want := make(map[models.LoanStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []*models.Loan
	m.read(func(d *memData) {
		for _, l := range d.loans {
			if want[l.Status] {
				out = append(out, cloneLoan(l))
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (m *MemoryStore) CountActiveLoansByCollector(_ context.Context) (map[uuid.UUID]int, error) {
	active := make(map[models.LoanStatus]bool)
	for _, s := range ActiveLoanStatuses {
		active[s] = true
	}
	counts := make(map[uuid.UUID]int)
	m.read(func(d *memData) {
		for _, l := range d.loans {
			if l.CollectorID != nil && active[l.Status] {
				counts[*l.CollectorID]++
			}
		}
	})
	return counts, nil
}

func (m *MemoryStore) ReplaceInstallments(_ context.Context, loanID uuid.UUID, installments []*models.Installment) error {
	return m.write(func(d *memData, j *memJournal) error {
		for id, inst := range d.installments {
			if inst.LoanID != loanID {
				continue
			}
			j.installment(d, id)
			delete(d.installments, id)
			for tid, t := range d.tasks {
				if t.InstallmentID == id {
					j.task(d, tid)
					delete(d.tasks, tid)
				}
			}
			for _, p := range d.payments {
				if p.InstallmentID != nil && *p.InstallmentID == id {
					j.payment(d, p.ID)
					p.InstallmentID = nil
				}
			}
		}
		for _, inst := range installments {
			c := cloneInstallment(inst)
			c.LoanID = loanID
			j.installment(d, c.ID)
			d.installments[c.ID] = c
		}
		return nil
	})
}

func (m *MemoryStore) GetInstallment(_ context.Context, id uuid.UUID) (*models.Installment, error) {
	var out *models.Installment
	m.read(func(d *memData) {
		if i, ok := d.installments[id]; ok {
			out = cloneInstallment(i)
		}
	})
	if out == nil {
		return nil, notFound("installment")
	}
	return out, nil
}

func (m *MemoryStore) GetInstallmentForUpdate(ctx context.Context, id uuid.UUID) (*models.Installment, error) {
	return m.GetInstallment(ctx, id)
}

func (m *MemoryStore) UpdateInstallment(_ context.Context, inst *models.Installment) error {
	return m.write(func(d *memData, j *memJournal) error {
		cur, ok := d.installments[inst.ID]
		if !ok {
			return notFound("installment")
		}
		j.installment(d, inst.ID)
		cur.AmountPaid = inst.AmountPaid
		cur.State = inst.State
		cur.PaidOn = ptr(inst.PaidOn)
		cur.Notes = inst.Notes
		return nil
	})
}

func (m *MemoryStore) ListInstallments(_ context.Context, loanID uuid.UUID) ([]*models.Installment, error) {
	var out []*models.Installment
	m.read(func(d *memData) {
		for _, i := range d.installments {
			if i.LoanID == loanID {
				out = append(out, cloneInstallment(i))
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (d *memData) hasTask(installmentID uuid.UUID, date time.Time) bool {
	for _, t := range d.tasks {
		if t.InstallmentID == installmentID && t.AssignedOn.Equal(date) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) ListDueInstallments(_ context.Context, collectorID uuid.UUID, date time.Time) ([]*models.DueInstallment, error) {
	date = models.DateOf(date)
	var out []*models.DueInstallment
	m.read(func(d *memData) {
		for _, i := range d.installments {
			if !i.DueDate.Equal(date) || (i.State != models.InstallmentPending && i.State != models.InstallmentPartial) {
				continue
			}
			loan := d.loans[i.LoanID]
			if loan == nil || loan.CollectorID == nil || *loan.CollectorID != collectorID {
				continue
			}
			if loan.Status != models.LoanDisbursed && loan.Status != models.LoanOverdue {
				continue
			}
			if d.hasTask(i.ID, date) {
				continue
			}
			due := &models.DueInstallment{Installment: cloneInstallment(i), LoanStatus: loan.Status}
			if c := d.clients[loan.ClientID]; c != nil {
				due.ClientName = c.FullName()
				due.Neighborhood = c.Neighborhood
			}
			out = append(out, due)
		}
	})
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Neighborhood != b.Neighborhood {
			return a.Neighborhood < b.Neighborhood
		}
		if a.Installment.Number != b.Installment.Number {
			return a.Installment.Number < b.Installment.Number
		}
		return a.Installment.ID.String() < b.Installment.ID.String()
	})
	return out, nil
}

func (m *MemoryStore) CreatePayment(_ context.Context, p *models.Payment) error {
	return m.write(func(d *memData, j *memJournal) error {
		j.payment(d, p.ID)
		d.payments = append(d.payments, clonePayment(p))
		return nil
	})
}

func (m *MemoryStore) ListPayments(_ context.Context, loanID uuid.UUID) ([]*models.Payment, error) {
	var out []*models.Payment
	m.read(func(d *memData) {
		for _, p := range d.payments {
			if p.LoanID == loanID {
				out = append(out, clonePayment(p))
			}
		}
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].PaidAt.Before(out[j].PaidAt) })
	return out, nil
}

func (m *MemoryStore) SumPayments(_ context.Context, loanID uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	m.read(func(d *memData) {
		for _, p := range d.payments {
			if p.LoanID == loanID {
				total = total.Add(p.Amount)
			}
		}
	})
	return total, nil
}

func (m *MemoryStore) SumPaymentsBetween(_ context.Context, from, to time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	m.read(func(d *memData) {
		for _, p := range d.payments {
			if !p.PaidAt.Before(from) && p.PaidAt.Before(to) {
				total = total.Add(p.Amount)
			}
		}
	})
	return total, nil
}

func (m *MemoryStore) CreateTask(_ context.Context, task *models.CollectionTask) error {
	return m.write(func(d *memData, j *memJournal) error {
		c := cloneTask(task)
		c.AssignedOn = models.DateOf(c.AssignedOn)
		if d.hasTask(c.InstallmentID, c.AssignedOn) {
			return fmt.Errorf("installment %s on %s: %w", c.InstallmentID, c.AssignedOn.Format(models.DateLayout), models.ErrDuplicateTask)
		}
		j.task(d, c.ID)
		d.tasks[c.ID] = c
		return nil
	})
}

func (m *MemoryStore) GetTask(_ context.Context, id uuid.UUID) (*models.CollectionTask, error) {
	var out *models.CollectionTask
	m.read(func(d *memData) {
		if t, ok := d.tasks[id]; ok {
			out = cloneTask(t)
		}
	})
	if out == nil {
		return nil, notFound("task")
	}
	return out, nil
}

func (m *MemoryStore) UpdateTask(_ context.Context, task *models.CollectionTask) error {
	return m.write(func(d *memData, j *memJournal) error {
		if _, ok := d.tasks[task.ID]; !ok {
			return notFound("task")
		}
		c := cloneTask(task)
		c.AssignedOn = models.DateOf(c.AssignedOn)
		for id, t := range d.tasks {
			if id != c.ID && t.InstallmentID == c.InstallmentID && t.AssignedOn.Equal(c.AssignedOn) {
				return fmt.Errorf("installment %s on %s: %w", c.InstallmentID, c.AssignedOn.Format(models.DateLayout), models.ErrDuplicateTask)
			}
		}
		j.task(d, c.ID)
		d.tasks[c.ID] = c
		return nil
	})
}

func (m *MemoryStore) HasTask(_ context.Context, installmentID uuid.UUID, date time.Time) (bool, error) {
	var found bool
	m.read(func(d *memData) { found = d.hasTask(installmentID, models.DateOf(date)) })
	return found, nil
}

func (m *MemoryStore) CountTasks(_ context.Context, date time.Time) (int, error) {
	date = models.DateOf(date)
	n := 0
	m.read(func(d *memData) {
		for _, t := range d.tasks {
			if t.AssignedOn.Equal(date) {
				n++
			}
		}
	})
	return n, nil
}

func (m *MemoryStore) ListTasksRescheduledTo(_ context.Context, collectorID uuid.UUID, date time.Time) ([]*models.CollectionTask, error) {
	date = models.DateOf(date)
	var out []*models.CollectionTask
	m.read(func(d *memData) {
		for _, t := range d.tasks {
			if t.CollectorID == collectorID && t.RescheduledTo != nil && t.RescheduledTo.Equal(date) {
				out = append(out, cloneTask(t))
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.AssignedOn.Equal(b.AssignedOn) {
			return a.AssignedOn.Before(b.AssignedOn)
		}
		if a.VisitOrder != b.VisitOrder {
			return a.VisitOrder < b.VisitOrder
		}
		return a.ID.String() < b.ID.String()
	})
	return out, nil
}

func (m *MemoryStore) ListTaskViews(_ context.Context, collectorID uuid.UUID, date time.Time, statuses ...models.TaskStatus) ([]*models.TaskView, error) {
	date = models.DateOf(date)
	want := make(map[models.TaskStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []*models.TaskView
	m.read(func(d *memData) {
		for _, t := range d.tasks {
			if t.CollectorID != collectorID || !t.AssignedOn.Equal(date) {
				continue
			}
			if len(want) > 0 && !want[t.Status] {
				continue
			}
			inst := d.installments[t.InstallmentID]
			if inst == nil {
				continue
			}
			view := &models.TaskView{Task: cloneTask(t), Installment: cloneInstallment(inst), LoanID: inst.LoanID}
			if loan := d.loans[inst.LoanID]; loan != nil {
				if c := d.clients[loan.ClientID]; c != nil {
					view.ClientName = c.FullName()
					view.Address = c.Address
					view.Neighborhood = c.Neighborhood
				}
			}
			out = append(out, view)
		}
	})
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Task, out[j].Task
		if a.VisitOrder != b.VisitOrder {
			return a.VisitOrder < b.VisitOrder
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	return out, nil
}

func (m *MemoryStore) DeleteUntouchedTasks(_ context.Context, date time.Time) (int, error) {
	date = models.DateOf(date)
	n := 0
	err := m.write(func(d *memData, j *memJournal) error {
		for id, t := range d.tasks {
			if t.AssignedOn.Equal(date) && t.Status == models.TaskPending && t.Attempts == 0 {
				j.task(d, id)
				delete(d.tasks, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (m *MemoryStore) CreateRoute(_ context.Context, r *models.Route) error {
	return m.write(func(d *memData, j *memJournal) error {
		for _, existing := range d.routes {
			if existing.Name == r.Name {
				return fmt.Errorf("%w: route %q already exists", models.ErrInvalidParameters, r.Name)
			}
		}
		j.route(d, r.ID)
		d.routes[r.ID] = cloneRoute(r)
		return nil
	})
}

func (m *MemoryStore) ListRoutes(_ context.Context) ([]*models.Route, error) {
	var out []*models.Route
	m.read(func(d *memData) {
		for _, r := range d.routes {
			out = append(out, cloneRoute(r))
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) CreateCollector(_ context.Context, c *models.Collector) error {
	return m.write(func(d *memData, j *memJournal) error {
		for _, existing := range d.collectors {
			if existing.DocumentNumber == c.DocumentNumber {
				return fmt.Errorf("%w: document %s already registered", models.ErrInvalidParameters, c.DocumentNumber)
			}
		}
		for _, rid := range c.RouteIDs {
			if _, ok := d.routes[rid]; !ok {
				return fmt.Errorf("failed to assign route %s: %w", rid, notFound("route"))
			}
		}
		j.collector(d, c.ID)
		d.collectors[c.ID] = cloneCollector(c)
		return nil
	})
}

func (m *MemoryStore) GetCollector(_ context.Context, id uuid.UUID) (*models.Collector, error) {
	var out *models.Collector
	m.read(func(d *memData) {
		if c, ok := d.collectors[id]; ok {
			out = cloneCollector(c)
		}
	})
	if out == nil {
		return nil, notFound("collector")
	}
	return out, nil
}

func (m *MemoryStore) ListCollectors(_ context.Context) ([]*models.Collector, error) {
	var out []*models.Collector
	m.read(func(d *memData) {
		for _, c := range d.collectors {
			out = append(out, cloneCollector(c))
		}
	})
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		if a.FirstName != b.FirstName {
			return a.FirstName < b.FirstName
		}
		return a.ID.String() < b.ID.String()
	})
	return out, nil
}

func (m *MemoryStore) ReplaceSnapshot(_ context.Context, snap *models.PortfolioSnapshot) error {
	return m.write(func(d *memData, j *memJournal) error {
		s := *snap
		s.AsOf = models.DateOf(s.AsOf)
		j.snapshot(d, s.AsOf)
		d.snapshots[s.AsOf] = &s
		return nil
	})
}

func (m *MemoryStore) GetSnapshot(_ context.Context, date time.Time) (*models.PortfolioSnapshot, error) {
	var out *models.PortfolioSnapshot
	m.read(func(d *memData) {
		if s, ok := d.snapshots[models.DateOf(date)]; ok {
			v := *s
			out = &v
		}
	})
	if out == nil {
		return nil, notFound("snapshot")
	}
	return out, nil
}
