package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"nauvus-backend/internal/domain"
	"nauvus-backend/internal/repository"
)

// memStore is an in-memory Store that enforces the same guards as the
// Postgres schema: compare-and-set status updates, one guarded payment row per
// settlement and type, unique broker payment references and atomic claims.
type memStore struct {
	mu sync.Mutex
	memState

	failures map[string]error
	repos    *repository.Repos
}

type memState struct {
	nextID      int64
	loads       map[int64]domain.Load
	docs        map[int64][]domain.DeliveryDocument
	brokers     map[int64]domain.Broker
	carriers    map[int64]domain.Carrier
	settlements map[int64]domain.LoadSettlement
	invoices    map[int64]domain.Invoice
	loans       map[int64]domain.Loan
	payments    []domain.Payment
	events      map[string]domain.ProcessedEvent
	history     []domain.StatusHistory
}

func newMemStore() *memStore {
	s := &memStore{
		memState: memState{
			loads:       map[int64]domain.Load{},
			docs:        map[int64][]domain.DeliveryDocument{},
			brokers:     map[int64]domain.Broker{},
			carriers:    map[int64]domain.Carrier{},
			settlements: map[int64]domain.LoadSettlement{},
			invoices:    map[int64]domain.Invoice{},
			loans:       map[int64]domain.Loan{},
			events:      map[string]domain.ProcessedEvent{},
		},
		failures: map[string]error{},
	}
	s.repos = &repository.Repos{
		Loads:       memLoads{s},
		Parties:     memParties{s},
		Settlements: memSettlements{s},
		Invoices:    memInvoices{s},
		Loans:       memLoans{s},
		Payments:    memPayments{s},
		Events:      memEvents{s},
		History:     memHistory{s},
	}
	return s
}

func (s *memStore) Repositories() *repository.Repos {
	return s.repos
}

func (s *memStore) WithTx(ctx context.Context, fn func(tx *repository.Repos) error) error {
	s.mu.Lock()
	snapshot := s.memState.clone()
	s.mu.Unlock()

	if err := fn(s.repos); err != nil {
		s.mu.Lock()
		s.memState = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (st memState) clone() memState {
	c := st
	c.loads = copyMap(st.loads)
	c.brokers = copyMap(st.brokers)
	c.carriers = copyMap(st.carriers)
	c.settlements = copyMap(st.settlements)
	c.invoices = copyMap(st.invoices)
	c.loans = copyMap(st.loans)
	c.events = copyMap(st.events)
	c.docs = map[int64][]domain.DeliveryDocument{}
	for k, v := range st.docs {
		c.docs[k] = append([]domain.DeliveryDocument(nil), v...)
	}
	c.payments = append([]domain.Payment(nil), st.payments...)
	c.history = append([]domain.StatusHistory(nil), st.history...)
	return c
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// failOn makes the named operation return err until cleared with nil.
func (s *memStore) failOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *memStore) fail(op string) error {
	return s.failures[op]
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

// fixtures

func (s *memStore) addBroker(b domain.Broker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.brokers[b.ID] = b
}

func (s *memStore) addCarrier(c domain.Carrier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carriers[c.ID] = c
}

func (s *memStore) addLoad(l domain.Load) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads[l.ID] = l
}

func (s *memStore) addDocument(loadID int64, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[loadID] = append(s.docs[loadID], domain.DeliveryDocument{
		ID: s.id(), LoadID: loadID, StorageKey: key, Type: domain.DocumentTypeBillOfLading,
	})
}

// inspection

func (s *memStore) load(id int64) domain.Load {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads[id]
}

func (s *memStore) settlementCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.settlements)
}

func (s *memStore) invoiceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.invoices)
}

func (s *memStore) invoiceByID(id int64) domain.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invoices[id]
}

func (s *memStore) loanByID(id int64) domain.Loan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loans[id]
}

func (s *memStore) paymentsOf(settlementID int64) []domain.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Payment
	for _, p := range s.payments {
		if p.LoadSettlementID == settlementID {
			out = append(out, p)
		}
	}
	return out
}

func (s *memStore) eventCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; ok {
		return 1
	}
	return 0
}

func (s *memStore) historyOf(entity domain.EntityType, id int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, h := range s.history {
		if h.EntityType == entity && h.EntityID == id {
			out = append(out, h.Status)
		}
	}
	return out
}

type memLoads struct{ s *memStore }

func (r memLoads) GetByID(ctx context.Context, id int64) (*domain.Load, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.loads[id]
	if !ok {
		return nil, fmt.Errorf("load %d: %w", id, domain.ErrNotFound)
	}
	return &l, nil
}

func (r memLoads) UpdateStatus(ctx context.Context, id int64, from, to domain.LoadStatus, deliveredDate *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("loads.update_status"); err != nil {
		return err
	}
	l, ok := r.s.loads[id]
	if !ok || l.CurrentStatus != from {
		return &domain.TransitionError{From: from, To: to}
	}
	l.CurrentStatus = to
	if deliveredDate != nil {
		l.DeliveredDate = deliveredDate
	}
	r.s.loads[id] = l
	return nil
}

func (r memLoads) CountDeliveryDocuments(ctx context.Context, loadID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.docs[loadID]), nil
}

func (r memLoads) ListDeliveryDocuments(ctx context.Context, loadID int64) ([]domain.DeliveryDocument, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]domain.DeliveryDocument(nil), r.s.docs[loadID]...), nil
}

type memParties struct{ s *memStore }

func (r memParties) GetBroker(ctx context.Context, id int64) (*domain.Broker, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.brokers[id]
	if !ok {
		return nil, fmt.Errorf("broker %d: %w", id, domain.ErrNotFound)
	}
	return &b, nil
}

func (r memParties) GetCarrier(ctx context.Context, id int64) (*domain.Carrier, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.carriers[id]
	if !ok {
		return nil, fmt.Errorf("carrier %d: %w", id, domain.ErrNotFound)
	}
	return &c, nil
}

type memSettlements struct{ s *memStore }

func (r memSettlements) Create(ctx context.Context, st *domain.LoadSettlement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.settlements {
		if existing.LoadID == st.LoadID {
			return domain.ErrDuplicate
		}
	}
	st.ID = r.s.id()
	st.CreatedAt = time.Now()
	r.s.settlements[st.ID] = *st
	return nil
}

func (r memSettlements) GetByID(ctx context.Context, id int64) (*domain.LoadSettlement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.settlements[id]
	if !ok {
		return nil, fmt.Errorf("settlement %d: %w", id, domain.ErrNotFound)
	}
	return &st, nil
}

func (r memSettlements) GetByLoadID(ctx context.Context, loadID int64) (*domain.LoadSettlement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, st := range r.s.settlements {
		if st.LoadID == loadID {
			return &st, nil
		}
	}
	return nil, fmt.Errorf("settlement for load %d: %w", loadID, domain.ErrNotFound)
}

func (r memSettlements) UpdateTerms(ctx context.Context, st *domain.LoadSettlement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.settlements[st.ID]
	if !ok {
		return domain.ErrNotFound
	}
	existing.TermsAccepted = st.TermsAccepted
	existing.TermsAcceptedAt = st.TermsAcceptedAt
	r.s.settlements[st.ID] = existing
	return nil
}

type memInvoices struct{ s *memStore }

func (r memInvoices) Create(ctx context.Context, inv *domain.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("invoices.create"); err != nil {
		return err
	}
	for _, existing := range r.s.invoices {
		if existing.LoadSettlementID == inv.LoadSettlementID {
			return domain.ErrDuplicate
		}
	}
	inv.ID = r.s.id()
	inv.CreatedAt = time.Now()
	r.s.invoices[inv.ID] = *inv
	return nil
}

func (r memInvoices) GetByID(ctx context.Context, id int64) (*domain.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.invoices[id]
	if !ok {
		return nil, fmt.Errorf("invoice %d: %w", id, domain.ErrNotFound)
	}
	return &inv, nil
}

func (r memInvoices) GetBySettlementID(ctx context.Context, settlementID int64) (*domain.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, inv := range r.s.invoices {
		if inv.LoadSettlementID == settlementID {
			return &inv, nil
		}
	}
	return nil, fmt.Errorf("invoice for settlement %d: %w", settlementID, domain.ErrNotFound)
}

func (r memInvoices) Update(ctx context.Context, inv *domain.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if inv.AmountPaidInCents > inv.AmountDueInCents {
		return fmt.Errorf("check constraint: amount paid exceeds amount due")
	}
	existing, ok := r.s.invoices[inv.ID]
	if !ok {
		return domain.ErrNotFound
	}
	existing.AmountPaidInCents = inv.AmountPaidInCents
	existing.Status = inv.Status
	existing.PaidDate = inv.PaidDate
	r.s.invoices[inv.ID] = existing
	return nil
}

func (r memInvoices) SetDocumentKey(ctx context.Context, id int64, key string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.invoices[id]
	if !ok {
		return domain.ErrNotFound
	}
	inv.DocumentKey = key
	r.s.invoices[id] = inv
	return nil
}

func (r memInvoices) sorted(keep func(domain.Invoice) bool) []domain.Invoice {
	var out []domain.Invoice
	for _, inv := range r.s.invoices {
		if keep(inv) {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r memInvoices) ListByCarrier(ctx context.Context, carrierID int64) ([]domain.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.sorted(func(inv domain.Invoice) bool { return inv.CarrierID == carrierID }), nil
}

func (r memInvoices) ListUnpaidExposure(ctx context.Context, carrierID int64) ([]domain.UnpaidExposure, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.UnpaidExposure
	for _, inv := range r.sorted(func(inv domain.Invoice) bool {
		return inv.CarrierID == carrierID && inv.Status != domain.InvoiceStatusPaid
	}) {
		e := domain.UnpaidExposure{
			InvoiceID:        inv.ID,
			AmountDueInCents: inv.AmountDueInCents,
			FeeInCents:       r.s.settlements[inv.LoadSettlementID].NauvusFeesInCents,
		}
		for _, loan := range r.s.loans {
			if loan.InvoiceID == inv.ID && loan.Status != domain.LoanStatusOffered {
				e.LoanPrincipalCents = loan.PrincipalAmountInCents
				e.LoanFeeCents = loan.FeeAmountInCents
			}
		}
		out = append(out, e)
	}
	return out, nil
}

func (r memInvoices) ListUnpaid(ctx context.Context, limit int) ([]domain.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := r.sorted(func(inv domain.Invoice) bool { return inv.Status != domain.InvoiceStatusPaid })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memInvoices) ListPaidWithOpenLoad(ctx context.Context, paidBefore time.Time, limit int) ([]domain.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := r.sorted(func(inv domain.Invoice) bool {
		if inv.Status != domain.InvoiceStatusPaid || inv.PaidDate == nil || !inv.PaidDate.Before(paidBefore) {
			return false
		}
		load := r.s.loads[r.s.settlements[inv.LoadSettlementID].LoadID]
		return load.CurrentStatus != domain.LoadStatusCompleted
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memLoans struct{ s *memStore }

func (r memLoans) Create(ctx context.Context, loan *domain.Loan) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.loans {
		if existing.InvoiceID == loan.InvoiceID {
			return domain.ErrDuplicate
		}
	}
	loan.ID = r.s.id()
	r.s.loans[loan.ID] = *loan
	return nil
}

func (r memLoans) FindForInvoice(ctx context.Context, invoiceID int64) (*domain.Loan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, loan := range r.s.loans {
		if loan.InvoiceID == invoiceID {
			return &loan, nil
		}
	}
	return nil, nil
}

func (r memLoans) Update(ctx context.Context, loan *domain.Loan) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.loans[loan.ID]; !ok {
		return domain.ErrNotFound
	}
	r.s.loans[loan.ID] = *loan
	return nil
}

func (r memLoans) ListOutstandingPastDue(ctx context.Context, now time.Time) ([]domain.Loan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Loan
	for _, loan := range r.s.loans {
		if loan.Status == domain.LoanStatusOutstanding && r.s.invoices[loan.InvoiceID].DueDate.Before(now) {
			out = append(out, loan)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memPayments struct{ s *memStore }

func guarded(t domain.PaymentType) bool {
	return t != domain.PaymentTypeFromBroker
}

func (r memPayments) Create(ctx context.Context, p *domain.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("payments.create." + string(p.Type)); err != nil {
		return err
	}
	for _, existing := range r.s.payments {
		if guarded(p.Type) && existing.LoadSettlementID == p.LoadSettlementID && existing.Type == p.Type {
			return domain.ErrDuplicate
		}
		if p.Type == domain.PaymentTypeFromBroker && existing.Type == p.Type && existing.ExternalRefID == p.ExternalRefID {
			return domain.ErrDuplicate
		}
	}
	p.ID = r.s.id()
	p.CreatedAt = time.Now()
	r.s.payments = append(r.s.payments, *p)
	return nil
}

func (r memPayments) FindBySettlementAndType(ctx context.Context, settlementID int64, t domain.PaymentType) (*domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.payments {
		if p.LoadSettlementID == settlementID && p.Type == t {
			return &p, nil
		}
	}
	return nil, nil
}

func (r memPayments) ListBySettlement(ctx context.Context, settlementID int64) ([]domain.Payment, error) {
	return r.s.paymentsOf(settlementID), nil
}

func (r memPayments) ListByCarrier(ctx context.Context, carrierID int64) ([]domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Payment
	for _, p := range r.s.payments {
		for _, inv := range r.s.invoices {
			if inv.LoadSettlementID == p.LoadSettlementID && inv.CarrierID == carrierID {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

type memEvents struct{ s *memStore }

func (r memEvents) Claim(ctx context.Context, eventID, eventType string, staleBefore time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.events[eventID]
	if ok && (existing.Status == domain.ProcessedEventDone || !existing.ClaimedAt.Before(staleBefore)) {
		return false, nil
	}
	r.s.events[eventID] = domain.ProcessedEvent{
		EventID:   eventID,
		EventType: eventType,
		Status:    domain.ProcessedEventProcessing,
		ClaimedAt: time.Now(),
	}
	return true, nil
}

func (r memEvents) MarkDone(ctx context.Context, eventID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e := r.s.events[eventID]
	e.Status = domain.ProcessedEventDone
	now := time.Now()
	e.ProcessedAt = &now
	r.s.events[eventID] = e
	return nil
}

func (r memEvents) Release(ctx context.Context, eventID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if e, ok := r.s.events[eventID]; ok && e.Status == domain.ProcessedEventProcessing {
		delete(r.s.events, eventID)
	}
	return nil
}

type memHistory struct{ s *memStore }

func (r memHistory) Record(ctx context.Context, h *domain.StatusHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	h.ID = r.s.id()
	h.CreatedAt = time.Now()
	r.s.history = append(r.s.history, *h)
	return nil
}

func (r memHistory) ListByEntity(ctx context.Context, entity domain.EntityType, entityID int64) ([]domain.StatusHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.StatusHistory
	for _, h := range r.s.history {
		if h.EntityType == entity && h.EntityID == entityID {
			out = append(out, h)
		}
	}
	return out, nil
}
