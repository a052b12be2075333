package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
)

type ticketRepository struct{ s *Store }

func (r *ticketRepository) Create(ctx context.Context, ticket *entity.Ticket) error {
	r.s.mu.Lock()
	if _, ok := r.s.tickets[ticket.Code]; ok {
		r.s.mu.Unlock()
		return entity.ErrTicketAlreadyExists
	}
	now := r.s.now()
	if ticket.Status == "" {
		ticket.Status = entity.TicketAvailable
	}
	ticket.CreatedAt, ticket.UpdatedAt = now, now
	r.s.tickets[ticket.Code] = ticket.Clone()
	r.s.mu.Unlock()

	r.s.publish(entity.RecordTicket, "insert", ticket.Code)
	return nil
}

func (r *ticketRepository) GetByCode(ctx context.Context, code string) (*entity.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tickets[code]
	if !ok {
		return nil, entity.ErrTicketNotFound
	}
	return t.Clone(), nil
}

func (r *ticketRepository) GetAll(ctx context.Context) ([]*entity.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*entity.Ticket, 0, len(r.s.tickets))
	for _, t := range r.s.tickets {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *ticketRepository) Transition(ctx context.Context, code string, expected []entity.TicketStatus, upd entity.TicketUpdate) (*entity.Ticket, error) {
	r.s.mu.Lock()
	t, ok := r.s.tickets[code]
	if !ok || !ticketStatusIn(t.Status, expected) {
		r.s.mu.Unlock()
		return nil, entity.ErrStaleWrite
	}
	next := upd.Apply(t, r.s.now())
	if !next.SnapshotConsistent() {
		r.s.mu.Unlock()
		return nil, entity.ErrInvalidInput
	}
	r.s.tickets[code] = next
	r.s.mu.Unlock()

	r.s.publish(entity.RecordTicket, "update", code)
	return next.Clone(), nil
}

func (r *ticketRepository) Restore(ctx context.Context, prev *entity.Ticket, current entity.TicketStatus) error {
	r.s.mu.Lock()
	t, ok := r.s.tickets[prev.Code]
	if !ok || t.Status != current {
		r.s.mu.Unlock()
		return entity.ErrStaleWrite
	}
	restored := prev.Clone()
	restored.UpdatedAt = r.s.now()
	r.s.tickets[prev.Code] = restored
	r.s.mu.Unlock()

	r.s.publish(entity.RecordTicket, "update", prev.Code)
	return nil
}

func (r *ticketRepository) UpdateAmount(ctx context.Context, code string, expected entity.TicketStatus, amount float64) error {
	r.s.mu.Lock()
	t, ok := r.s.tickets[code]
	if !ok || t.Status != expected {
		r.s.mu.Unlock()
		return entity.ErrStaleWrite
	}
	t.ComputedAmount = amount
	t.UpdatedAt = r.s.now()
	r.s.mu.Unlock()

	r.s.publish(entity.RecordTicket, "update", code)
	return nil
}

func ticketStatusIn(s entity.TicketStatus, set []entity.TicketStatus) bool {
	for _, x := range set {
		if s == x {
			return true
		}
	}
	return false
}

type vehicleRepository struct{ s *Store }

func (r *vehicleRepository) Create(ctx context.Context, vehicle *entity.Vehicle) error {
	r.s.mu.Lock()
	for _, v := range r.s.vehicles {
		if v.TicketCode == vehicle.TicketCode && v.Status != entity.VehicleCompleted {
			r.s.mu.Unlock()
			return entity.ErrActiveVehicleExists
		}
	}
	vehicle.UpdatedAt = r.s.now()
	r.s.vehicles[vehicle.ID] = vehicle.Clone()
	r.s.mu.Unlock()

	r.s.publish(entity.RecordVehicle, "insert", vehicle.ID)
	return nil
}

func (r *vehicleRepository) GetByID(ctx context.Context, id string) (*entity.Vehicle, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	v, ok := r.s.vehicles[id]
	if !ok {
		return nil, entity.ErrVehicleNotFound
	}
	return v.Clone(), nil
}

func (r *vehicleRepository) GetActiveByTicket(ctx context.Context, ticketCode string) (*entity.Vehicle, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, v := range r.s.vehicles {
		if v.TicketCode == ticketCode && v.Status != entity.VehicleCompleted {
			return v.Clone(), nil
		}
	}
	return nil, entity.ErrVehicleNotFound
}

func (r *vehicleRepository) GetActive(ctx context.Context) ([]*entity.Vehicle, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*entity.Vehicle
	for _, v := range r.s.vehicles {
		if v.Status.Active() {
			out = append(out, v.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnteredAt.After(out[j].EnteredAt) })
	return out, nil
}

func (r *vehicleRepository) UpdateStatus(ctx context.Context, id string, expected []entity.VehicleStatus, status entity.VehicleStatus, at time.Time) error {
	r.s.mu.Lock()
	v, ok := r.s.vehicles[id]
	if !ok || !vehicleStatusIn(v.Status, expected) {
		r.s.mu.Unlock()
		return entity.ErrStaleWrite
	}
	v.Status = status
	switch status {
	case entity.VehicleParkedConfirmed:
		confirmed := at
		v.ConfirmedAt = &confirmed
	case entity.VehicleParked:
		v.ConfirmedAt = nil
	}
	v.UpdatedAt = r.s.now()
	r.s.mu.Unlock()

	r.s.publish(entity.RecordVehicle, "update", id)
	return nil
}

func (r *vehicleRepository) Update(ctx context.Context, vehicle *entity.Vehicle, expected entity.VehicleStatus) error {
	r.s.mu.Lock()
	v, ok := r.s.vehicles[vehicle.ID]
	if !ok || v.Status != expected {
		r.s.mu.Unlock()
		return entity.ErrStaleWrite
	}
	src := vehicle.Clone()
	v.Plate = src.Plate
	v.Make = src.Make
	v.Model = src.Model
	v.Color = src.Color
	v.OwnerName = src.OwnerName
	v.OwnerPhone = src.OwnerPhone
	v.Note = src.Note
	v.Images = src.Images
	v.UpdatedAt = r.s.now()
	r.s.mu.Unlock()

	r.s.publish(entity.RecordVehicle, "update", vehicle.ID)
	return nil
}

func (r *vehicleRepository) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	if _, ok := r.s.vehicles[id]; !ok {
		r.s.mu.Unlock()
		return entity.ErrVehicleNotFound
	}
	delete(r.s.vehicles, id)
	r.s.mu.Unlock()

	r.s.publish(entity.RecordVehicle, "delete", id)
	return nil
}

func vehicleStatusIn(s entity.VehicleStatus, set []entity.VehicleStatus) bool {
	for _, x := range set {
		if s == x {
			return true
		}
	}
	return false
}

type paymentRepository struct{ s *Store }

func (r *paymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	r.s.mu.Lock()
	c := *payment
	r.s.payments[payment.ID] = &c
	r.s.mu.Unlock()

	r.s.publish(entity.RecordPayment, "insert", payment.ID)
	return nil
}

func (r *paymentRepository) GetByID(ctx context.Context, id string) (*entity.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, entity.ErrPaymentNotFound
	}
	c := *p
	return &c, nil
}

func (r *paymentRepository) GetByStatus(ctx context.Context, status entity.PaymentStatus) ([]*entity.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*entity.Payment
	for _, p := range r.s.payments {
		if p.Status == status {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

func (r *paymentRepository) UpdateStatus(ctx context.Context, id string, expected, status entity.PaymentStatus, validatedAt *time.Time) error {
	r.s.mu.Lock()
	p, ok := r.s.payments[id]
	if !ok || p.Status != expected {
		r.s.mu.Unlock()
		return entity.ErrStaleWrite
	}
	p.Status = status
	if validatedAt != nil {
		at := *validatedAt
		p.ValidatedAt = &at
	} else {
		p.ValidatedAt = nil
	}
	r.s.mu.Unlock()

	r.s.publish(entity.RecordPayment, "update", id)
	return nil
}

func (r *paymentRepository) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	if _, ok := r.s.payments[id]; !ok {
		r.s.mu.Unlock()
		return entity.ErrPaymentNotFound
	}
	delete(r.s.payments, id)
	r.s.mu.Unlock()

	r.s.publish(entity.RecordPayment, "delete", id)
	return nil
}

type historyRepository struct{ s *Store }

func (r *historyRepository) Create(ctx context.Context, entry *entity.HistoryEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.history[entry.VehicleID]; ok {
		return entity.ErrInvalidInput
	}
	now := r.s.now()
	entry.CreatedAt, entry.UpdatedAt = now, now
	for i := range entry.Events {
		entry.Events[i].Seq = i + 1
	}
	r.s.history[entry.VehicleID] = cloneHistory(entry)
	r.s.historyOrder = append(r.s.historyOrder, entry.VehicleID)
	return nil
}

func (r *historyRepository) GetByVehicle(ctx context.Context, vehicleID string) (*entity.HistoryEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	h, ok := r.s.history[vehicleID]
	if !ok {
		return nil, entity.ErrHistoryNotFound
	}
	return cloneHistory(h), nil
}

func (r *historyRepository) GetAll(ctx context.Context, limit int) ([]*entity.HistoryEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*entity.HistoryEntry
	for i := len(r.s.historyOrder) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, cloneHistory(r.s.history[r.s.historyOrder[i]]))
	}
	return out, nil
}

func (r *historyRepository) Append(ctx context.Context, vehicleID string, ev *entity.HistoryEvent, rollup entity.HistoryRollup) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	h, ok := r.s.history[vehicleID]
	if !ok {
		return entity.ErrHistoryNotFound
	}
	now := r.s.now()
	if ev != nil {
		e := *ev
		e.Seq = len(h.Events) + 1
		e.Payload = clonePayload(ev.Payload)
		h.Events = append(h.Events, e)
	}
	h.ApplyRollup(rollup, now)
	return nil
}

func (r *historyRepository) Summary(ctx context.Context) (*entity.HistorySummary, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sum := &entity.HistorySummary{}
	for _, h := range r.s.history {
		sum.Records++
		sum.TotalPaid += h.TotalPaid
		for _, a := range h.RejectedAmounts {
			sum.TotalRejected += a.Amount
		}
		for _, a := range h.PendingAmounts {
			sum.TotalPending += a.Amount
		}
		if h.IsActive {
			sum.Active++
		}
		if h.IsComplete {
			sum.Completed++
		}
	}
	return sum, nil
}

func cloneHistory(h *entity.HistoryEntry) *entity.HistoryEntry {
	c := *h
	c.Payments = append([]entity.PaymentRecord(nil), h.Payments...)
	c.RejectedAmounts = append([]entity.AmountRecord(nil), h.RejectedAmounts...)
	c.PendingAmounts = append([]entity.AmountRecord(nil), h.PendingAmounts...)
	c.Events = make([]entity.HistoryEvent, len(h.Events))
	for i, e := range h.Events {
		e.Payload = clonePayload(e.Payload)
		c.Events[i] = e
	}
	if h.ExitedAt != nil {
		at := *h.ExitedAt
		c.ExitedAt = &at
	}
	return &c
}

func clonePayload(p map[string]interface{}) map[string]interface{} {
	if p == nil {
		return nil
	}
	c := make(map[string]interface{}, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

type subscriptionRepository struct{ s *Store }

func (r *subscriptionRepository) Create(ctx context.Context, sub *entity.Subscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	sub.CreatedAt, sub.UpdatedAt = now, now
	c := *sub
	c.TicketCodes = append([]string(nil), sub.TicketCodes...)
	r.s.subscriptions[sub.ID] = &c
	return nil
}

func (r *subscriptionRepository) GetActive(ctx context.Context, role entity.Role, ticketCode string) ([]*entity.Subscription, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*entity.Subscription
	for _, sub := range r.s.subscriptions {
		if !sub.IsActive || sub.Role != role {
			continue
		}
		if role == entity.RoleUser && sub.TicketCode != ticketCode {
			continue
		}
		c := *sub
		c.TicketCodes = append([]string(nil), sub.TicketCodes...)
		out = append(out, &c)
	}
	return out, nil
}

func (r *subscriptionRepository) AddTicketToAdmins(ctx context.Context, ticketCode string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, sub := range r.s.subscriptions {
		if sub.Role != entity.RoleAdmin || !sub.IsActive {
			continue
		}
		if containsString(sub.TicketCodes, ticketCode) {
			continue
		}
		sub.TicketCodes = append(sub.TicketCodes, ticketCode)
		sub.UpdatedAt = r.s.now()
		n++
	}
	return n, nil
}

func (r *subscriptionRepository) DeactivateByTicket(ctx context.Context, ticketCode string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, sub := range r.s.subscriptions {
		if sub.Role == entity.RoleUser && sub.TicketCode == ticketCode && sub.IsActive {
			sub.IsActive = false
			sub.Stage = entity.StageExpired
			sub.UpdatedAt = r.s.now()
			n++
		}
	}
	return n, nil
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

type staffRepository struct{ s *Store }

func (r *staffRepository) Create(ctx context.Context, staff *entity.Staff) error {
	r.s.mu.Lock()
	for _, st := range r.s.staff {
		if strings.EqualFold(st.Email, staff.Email) {
			r.s.mu.Unlock()
			return entity.ErrStaffAlreadyExists
		}
	}
	staff.CreatedAt = r.s.now()
	c := *staff
	r.s.staff[staff.ID] = &c
	r.s.mu.Unlock()

	r.s.publish(entity.RecordStaff, "insert", staff.ID)
	return nil
}

func (r *staffRepository) GetAll(ctx context.Context) ([]*entity.Staff, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*entity.Staff, 0, len(r.s.staff))
	for _, st := range r.s.staff {
		c := *st
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *staffRepository) GetByEmail(ctx context.Context, email string) (*entity.Staff, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, st := range r.s.staff {
		if strings.EqualFold(st.Email, email) {
			c := *st
			return &c, nil
		}
	}
	return nil, entity.ErrStaffNotFound
}

func (r *staffRepository) GetByID(ctx context.Context, id string) (*entity.Staff, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	st, ok := r.s.staff[id]
	if !ok {
		return nil, entity.ErrStaffNotFound
	}
	c := *st
	return &c, nil
}

func (r *staffRepository) Update(ctx context.Context, staff *entity.Staff) error {
	r.s.mu.Lock()
	cur, ok := r.s.staff[staff.ID]
	if !ok {
		r.s.mu.Unlock()
		return entity.ErrStaffNotFound
	}
	for id, st := range r.s.staff {
		if id != staff.ID && strings.EqualFold(st.Email, staff.Email) {
			r.s.mu.Unlock()
			return entity.ErrStaffAlreadyExists
		}
	}
	c := *staff
	c.CreatedAt = cur.CreatedAt
	r.s.staff[staff.ID] = &c
	r.s.mu.Unlock()

	r.s.publish(entity.RecordStaff, "update", staff.ID)
	return nil
}

func (r *staffRepository) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	if _, ok := r.s.staff[id]; !ok {
		r.s.mu.Unlock()
		return entity.ErrStaffNotFound
	}
	delete(r.s.staff, id)
	r.s.mu.Unlock()

	r.s.publish(entity.RecordStaff, "delete", id)
	return nil
}

type settingsRepository struct{ s *Store }

func (r *settingsRepository) Get(ctx context.Context) (*entity.CompanySettings, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if r.s.settings == nil {
		return nil, entity.ErrSettingsNotFound
	}
	c := *r.s.settings
	return &c, nil
}

func (r *settingsRepository) Save(ctx context.Context, settings *entity.CompanySettings) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	if r.s.settings != nil {
		settings.CreatedAt = r.s.settings.CreatedAt
	} else {
		settings.CreatedAt = now
	}
	settings.UpdatedAt = now
	c := *settings
	r.s.settings = &c
	return nil
}

type statsRepository struct{ s *Store }

func (r *statsRepository) CountPaymentsByStatus(ctx context.Context, status entity.PaymentStatus) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, p := range r.s.payments {
		if p.Status == status {
			n++
		}
	}
	return n, nil
}

func (r *statsRepository) CountPaymentsSubmittedBetween(ctx context.Context, from, to time.Time) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, p := range r.s.payments {
		if !p.SubmittedAt.Before(from) && p.SubmittedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (r *statsRepository) CountTickets(ctx context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.tickets), nil
}

func (r *statsRepository) CountTicketsByStatus(ctx context.Context, status entity.TicketStatus) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, t := range r.s.tickets {
		if t.Status == status {
			n++
		}
	}
	return n, nil
}

func (r *statsRepository) CountVehiclesByStatus(ctx context.Context, statuses ...entity.VehicleStatus) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, v := range r.s.vehicles {
		if vehicleStatusIn(v.Status, statuses) {
			n++
		}
	}
	return n, nil
}

func (r *statsRepository) CountStaff(ctx context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.staff), nil
}
