package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ds124wfegd/WB_L3/parking/internal/database"
	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
	"github.com/ds124wfegd/WB_L3/parking/internal/metrics"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MinQuickExitNote is the shortest accepted quick exit justification, in characters.
const MinQuickExitNote = 10

type lifecycleService struct {
	tickets  database.TicketRepository
	vehicles database.VehicleRepository
	payments database.PaymentRepository
	history  database.HistoryRepository
	subs     database.SubscriptionRepository
	notifier Notifier
	tariffs  TariffSource

	now   func() time.Time
	newID func() string
}

// NewLifecycleService создает новый экземпляр LifecycleService
func NewLifecycleService(repos *database.Repositories, notifier Notifier, tariffs TariffSource) LifecycleService {
	return newLifecycleService(repos, notifier, tariffs)
}

func newLifecycleService(repos *database.Repositories, notifier Notifier, tariffs TariffSource) *lifecycleService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &lifecycleService{
		tickets:  repos.Tickets,
		vehicles: repos.Vehicles,
		payments: repos.Payments,
		history:  repos.History,
		subs:     repos.Subscriptions,
		notifier: notifier,
		tariffs:  tariffs,
		now:      clock,
		newID:    func() string { return uuid.New().String() },
	}
}

// RegisterVehicle ставит автомобиль на свободный билет
func (s *lifecycleService) RegisterVehicle(ctx context.Context, req *RegisterVehicleRequest) (_ *entity.Vehicle, err error) {
	defer s.observe("register_vehicle", &err)

	plate := entity.NormalizePlate(req.Plate)
	code := strings.TrimSpace(req.TicketCode)
	if plate == "" || code == "" {
		return nil, entity.Validation(entity.ReasonRequired, "plate and ticketCode are required")
	}

	ticket, err := s.tickets.GetByCode(ctx, code)
	if errors.Is(err, entity.ErrTicketNotFound) {
		return nil, entity.Conflict(entity.ReasonTicketMissing, "ticket %s does not exist", code).Wrap(err)
	}
	if err != nil {
		return nil, entity.Internal(err, "failed to load ticket %s", code)
	}
	if ticket.Status != entity.TicketAvailable {
		return nil, entity.Conflict(entity.ReasonTicketNotAvailable,
			"ticket %s is %s, expected %s", code, ticket.Status, entity.TicketAvailable)
	}
	if ticket.VehicleSnapshot != nil {
		return nil, entity.Conflict(entity.ReasonTicketAlreadyAssigned,
			"ticket %s already holds vehicle %s", code, ticket.VehicleSnapshot.Plate)
	}

	now := s.now()
	vehicle := &entity.Vehicle{
		ID:         s.newID(),
		Plate:      plate,
		Make:       strings.TrimSpace(req.Make),
		Model:      strings.TrimSpace(req.Model),
		Color:      strings.TrimSpace(req.Color),
		OwnerName:  strings.TrimSpace(req.OwnerName),
		OwnerPhone: strings.TrimSpace(req.OwnerPhone),
		TicketCode: code,
		Status:     entity.VehicleParked,
		EnteredAt:  now,
		Note:       strings.TrimSpace(req.Note),
		Images:     req.Images,
	}

	if err := s.vehicles.Create(ctx, vehicle); err != nil {
		if errors.Is(err, entity.ErrActiveVehicleExists) {
			return nil, entity.Conflict(entity.ReasonTicketAlreadyAssigned,
				"ticket %s already has an active vehicle", code).Wrap(err)
		}
		return nil, entity.Internal(err, "failed to create vehicle")
	}

	sg := newSaga("register_vehicle")
	sg.onRollback("delete vehicle", func(ctx context.Context) error {
		return s.vehicles.Delete(ctx, vehicle.ID)
	})

	prev := ticket.Clone()
	snapshot := vehicle.Snapshot()
	_, err = s.tickets.Transition(ctx, code, []entity.TicketStatus{entity.TicketAvailable}, entity.TicketUpdate{
		Status:     entity.TicketOccupied,
		Snapshot:   snapshot,
		OccupiedAt: &now,
	})
	if err != nil {
		sg.rollback(ctx)
		if errors.Is(err, entity.ErrStaleWrite) {
			return nil, entity.Conflict(entity.ReasonTicketRaceLost,
				"ticket %s was taken by a concurrent registration", code).Wrap(err)
		}
		return nil, entity.Internal(err, "failed to occupy ticket %s", code)
	}
	sg.onRollback("release ticket", func(ctx context.Context) error {
		return s.tickets.Restore(ctx, prev, entity.TicketOccupied)
	})

	entry := &entity.HistoryEntry{
		VehicleID:     vehicle.ID,
		TicketCode:    code,
		Plate:         plate,
		Vehicle:       *snapshot,
		CurrentStatus: entity.VehicleParked,
		IsActive:      true,
		Events: []entity.HistoryEvent{{
			Type:    entity.EventInitialRegistration,
			At:      now,
			Status:  entity.VehicleParked,
			Payload: registrationPayload(vehicle),
		}},
	}
	if err := s.history.Create(ctx, entry); err != nil {
		sg.rollback(ctx)
		return nil, entity.Internal(err, "failed to create history for vehicle %s", vehicle.ID)
	}

	if n, err := s.subs.AddTicketToAdmins(ctx, code); err != nil {
		logrus.WithField("ticket_code", code).WithError(err).Warn("Failed to extend admin subscriptions")
	} else {
		logrus.WithFields(logrus.Fields{"ticket_code": code, "subscriptions": n}).Debug("Admin subscriptions extended")
	}

	s.notify(ctx, Target{Role: entity.RoleAdmin, TicketCode: code}, NotifyVehicleRegistered, map[string]interface{}{
		"plate":     plate,
		"timestamp": now,
	})

	logrus.WithFields(logrus.Fields{
		"vehicle_id":  vehicle.ID,
		"ticket_code": code,
		"plate":       plate,
	}).Info("Vehicle registered")

	return vehicle, nil
}

func registrationPayload(v *entity.Vehicle) map[string]interface{} {
	payload := map[string]interface{}{
		"plate":      v.Plate,
		"ticketCode": v.TicketCode,
	}
	if v.Note != "" {
		payload["note"] = v.Note
	}
	if v.Images != nil {
		payload["captureMethod"] = v.Images.CaptureMethod
		payload["plateImageUrl"] = v.Images.PlateImageURL
		payload["vehicleImageUrl"] = v.Images.VehicleImageURL
	}
	return payload
}

// ConfirmParking подтверждает, что автомобиль припаркован
func (s *lifecycleService) ConfirmParking(ctx context.Context, ticketCode string) (_ *ConfirmResult, err error) {
	defer s.observe("confirm_parking", &err)

	code := strings.TrimSpace(ticketCode)
	if code == "" {
		return nil, entity.Validation(entity.ReasonRequired, "ticketCode is required")
	}

	ticket, err := s.loadTicket(ctx, code)
	if err != nil {
		return nil, err
	}
	if ticket.Status != entity.TicketOccupied {
		return nil, entity.TransitionConflict("ticket", code, ticket.Status, entity.TicketOccupied)
	}

	vehicle, err := s.vehicles.GetActiveByTicket(ctx, code)
	if errors.Is(err, entity.ErrVehicleNotFound) {
		return nil, entity.NotFound(err, "no vehicle parked on ticket %s", code)
	}
	if err != nil {
		return nil, entity.Internal(err, "failed to load vehicle for ticket %s", code)
	}
	if vehicle.Status != entity.VehicleParked {
		return nil, entity.NotFound(entity.ErrVehicleNotFound, "no vehicle awaiting confirmation on ticket %s", code)
	}

	now := s.now()
	sg := newSaga("confirm_parking")

	err = s.vehicles.UpdateStatus(ctx, vehicle.ID, []entity.VehicleStatus{entity.VehicleParked}, entity.VehicleParkedConfirmed, now)
	if err != nil {
		return nil, staleOrInternal(err, "vehicle %s changed concurrently", vehicle.ID)
	}
	sg.onRollback("unconfirm vehicle", func(ctx context.Context) error {
		return s.vehicles.UpdateStatus(ctx, vehicle.ID, []entity.VehicleStatus{entity.VehicleParkedConfirmed}, entity.VehicleParked, now)
	})

	vehicle.Status = entity.VehicleParkedConfirmed
	vehicle.ConfirmedAt = &now

	prev := ticket.Clone()
	_, err = s.tickets.Transition(ctx, code, []entity.TicketStatus{entity.TicketOccupied}, entity.TicketUpdate{
		Status:      entity.TicketValidated,
		Snapshot:    vehicle.Snapshot(),
		ValidatedAt: &now,
	})
	if err != nil {
		sg.rollback(ctx)
		return nil, staleOrInternal(err, "ticket %s changed concurrently", code)
	}
	sg.onRollback("restore ticket", func(ctx context.Context) error {
		return s.tickets.Restore(ctx, prev, entity.TicketValidated)
	})

	err = s.history.Append(ctx, vehicle.ID, &entity.HistoryEvent{
		Type:   entity.EventParkingConfirmed,
		At:     now,
		Status: entity.VehicleParkedConfirmed,
		Payload: map[string]interface{}{
			"ticketCode":  code,
			"confirmedAt": now,
		},
	}, entity.HistoryRollup{CurrentStatus: entity.VehicleParkedConfirmed})
	if err != nil {
		sg.rollback(ctx)
		return nil, entity.Internal(err, "failed to append history for vehicle %s", vehicle.ID)
	}

	s.notify(ctx, Target{Role: entity.RoleAdmin, TicketCode: code}, NotifyVehicleParked, map[string]interface{}{
		"plate": vehicle.Plate,
	})

	return &ConfirmResult{TicketCode: code, VehicleID: vehicle.ID, Plate: vehicle.Plate}, nil
}

// SubmitPayment регистрирует платеж клиента; проверку выполняет администратор
func (s *lifecycleService) SubmitPayment(ctx context.Context, req *SubmitPaymentRequest) (_ *PaymentResult, err error) {
	defer s.observe("submit_payment", &err)

	code := strings.TrimSpace(req.TicketCode)
	method := strings.TrimSpace(req.Method)
	if code == "" || method == "" {
		return nil, entity.Validation(entity.ReasonRequired, "ticketCode, amount and method are required")
	}
	if req.Amount <= 0 || req.AmountForeign < 0 {
		return nil, entity.Validation(entity.ReasonInvalidAmount, "amount must be positive")
	}

	ticket, err := s.loadTicket(ctx, code)
	if err != nil {
		return nil, err
	}
	vehicle, err := s.vehicles.GetActiveByTicket(ctx, code)
	if errors.Is(err, entity.ErrVehicleNotFound) {
		return nil, entity.NotFound(err, "no vehicle on ticket %s", code)
	}
	if err != nil {
		return nil, entity.Internal(err, "failed to load vehicle for ticket %s", code)
	}
	if ticket.Status != entity.TicketValidated {
		return nil, entity.TransitionConflict("ticket", code, ticket.Status, entity.TicketValidated)
	}
	if vehicle.Status != entity.VehicleParkedConfirmed {
		return nil, entity.TransitionConflict("vehicle", vehicle.ID, vehicle.Status, entity.VehicleParkedConfirmed)
	}

	tariff, err := s.tariffs.CurrentTariff(ctx)
	if err != nil {
		return nil, entity.Internal(err, "failed to load tariff")
	}

	now := s.now()
	computed := tariff.AmountDue(vehicle.EnteredAt, now)
	payment := &entity.Payment{
		ID:              s.newID(),
		TicketCode:      code,
		Plate:           vehicle.Plate,
		AmountLocal:     req.Amount,
		AmountForeign:   req.AmountForeign,
		ComputedAmount:  computed,
		Method:          method,
		Reference:       strings.TrimSpace(req.Reference),
		Bank:            strings.TrimSpace(req.Bank),
		ReceiptImageURL: strings.TrimSpace(req.ReceiptURL),
		Status:          entity.PaymentPendingValidation,
		SubmittedAt:     now,
	}

	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, entity.Internal(err, "failed to create payment")
	}

	sg := newSaga("submit_payment")
	sg.onRollback("delete payment", func(ctx context.Context) error {
		return s.payments.Delete(ctx, payment.ID)
	})

	prev := ticket.Clone()
	_, err = s.tickets.Transition(ctx, code, []entity.TicketStatus{entity.TicketValidated}, entity.TicketUpdate{
		Status:         entity.TicketPaymentPending,
		ComputedAmount: &computed,
	})
	if err != nil {
		sg.rollback(ctx)
		return nil, staleOrInternal(err, "ticket %s changed concurrently", code)
	}
	sg.onRollback("restore ticket", func(ctx context.Context) error {
		return s.tickets.Restore(ctx, prev, entity.TicketPaymentPending)
	})

	confirmedAt := now
	if vehicle.ConfirmedAt != nil {
		confirmedAt = *vehicle.ConfirmedAt
	}
	err = s.vehicles.UpdateStatus(ctx, vehicle.ID, []entity.VehicleStatus{entity.VehicleParkedConfirmed}, entity.VehiclePaymentPending, now)
	if err != nil {
		sg.rollback(ctx)
		return nil, staleOrInternal(err, "vehicle %s changed concurrently", vehicle.ID)
	}
	sg.onRollback("restore vehicle", func(ctx context.Context) error {
		return s.vehicles.UpdateStatus(ctx, vehicle.ID, []entity.VehicleStatus{entity.VehiclePaymentPending}, entity.VehicleParkedConfirmed, confirmedAt)
	})

	err = s.history.Append(ctx, vehicle.ID, nil, entity.HistoryRollup{
		CurrentStatus: entity.VehiclePaymentPending,
		AddPending:    &entity.AmountRecord{PaymentID: payment.ID, Amount: payment.AmountLocal, At: now},
	})
	if err != nil {
		sg.rollback(ctx)
		return nil, entity.Internal(err, "failed to update history for vehicle %s", vehicle.ID)
	}

	s.notify(ctx, Target{Role: entity.RoleAdmin, TicketCode: code}, NotifyPaymentReceived, map[string]interface{}{
		"amount":      payment.AmountLocal,
		"plate":       payment.Plate,
		"paymentType": payment.Method,
		"reference":   payment.Reference,
		"bank":        payment.Bank,
	})

	return &PaymentResult{PaymentID: payment.ID, Status: payment.Status}, nil
}

// ValidatePayment подтверждает платеж. Повторный вызов ничего не пишет.
func (s *lifecycleService) ValidatePayment(ctx context.Context, paymentID string) (_ *ValidationResult, err error) {
	defer s.observe("validate_payment", &err)

	id := strings.TrimSpace(paymentID)
	if _, perr := uuid.Parse(id); perr != nil {
		return nil, entity.Validation(entity.ReasonInvalidID, "invalid payment id %q", paymentID)
	}

	payment, err := s.payments.GetByID(ctx, id)
	if errors.Is(err, entity.ErrPaymentNotFound) {
		return nil, entity.NotFound(err, "payment %s not found", id)
	}
	if err != nil {
		return nil, entity.Internal(err, "failed to load payment %s", id)
	}

	switch payment.Status {
	case entity.PaymentValidated:
		return &ValidationResult{PaymentID: id, TicketCode: payment.TicketCode, AlreadyValidated: true}, nil
	case entity.PaymentRejected:
		return nil, entity.Conflict(entity.ReasonPaymentRejected, "payment %s was rejected", id)
	}

	ticket, err := s.loadTicket(ctx, payment.TicketCode)
	if err != nil {
		return nil, err
	}
	if ticket.Status != entity.TicketPaymentPending {
		return nil, entity.TransitionConflict("ticket", ticket.Code, ticket.Status, entity.TicketPaymentPending)
	}
	if ticket.VehicleSnapshot == nil {
		return nil, entity.Internal(entity.ErrInvalidInput, "ticket %s has no vehicle snapshot", ticket.Code)
	}
	vehicleID := ticket.VehicleSnapshot.VehicleID

	now := s.now()
	sg := newSaga("validate_payment")

	err = s.payments.UpdateStatus(ctx, id, entity.PaymentPendingValidation, entity.PaymentValidated, &now)
	if err != nil {
		if errors.Is(err, entity.ErrStaleWrite) {
			// проиграли гонку другому валидатору
			if cur, gerr := s.payments.GetByID(ctx, id); gerr == nil && cur.Status == entity.PaymentValidated {
				return &ValidationResult{PaymentID: id, TicketCode: cur.TicketCode, AlreadyValidated: true}, nil
			}
		}
		return nil, staleOrInternal(err, "payment %s changed concurrently", id)
	}
	sg.onRollback("reopen payment", func(ctx context.Context) error {
		return s.payments.UpdateStatus(ctx, id, entity.PaymentValidated, entity.PaymentPendingValidation, nil)
	})

	prev := ticket.Clone()
	_, err = s.tickets.Transition(ctx, ticket.Code, []entity.TicketStatus{entity.TicketPaymentPending}, entity.TicketUpdate{
		Status:             entity.TicketPaid,
		PaymentValidatedAt: &now,
	})
	if err != nil {
		sg.rollback(ctx)
		return nil, staleOrInternal(err, "ticket %s changed concurrently", ticket.Code)
	}
	sg.onRollback("restore ticket", func(ctx context.Context) error {
		return s.tickets.Restore(ctx, prev, entity.TicketPaid)
	})

	err = s.history.Append(ctx, vehicleID, &entity.HistoryEvent{
		Type:   entity.EventPaymentValidated,
		At:     now,
		Status: entity.HistoryPaid,
		Payload: map[string]interface{}{
			"paymentId":     id,
			"amountLocal":   payment.AmountLocal,
			"amountForeign": payment.AmountForeign,
			"method":        payment.Method,
			"reference":     payment.Reference,
		},
	}, entity.HistoryRollup{
		CurrentStatus:        entity.HistoryPaid,
		RemovePendingPayment: id,
		AddPayment: &entity.PaymentRecord{
			PaymentID:   id,
			AmountLocal: payment.AmountLocal,
			Method:      payment.Method,
			Reference:   payment.Reference,
			ValidatedAt: now,
		},
	})
	if err != nil {
		sg.rollback(ctx)
		return nil, entity.Internal(err, "failed to append history for vehicle %s", vehicleID)
	}

	s.notify(ctx, Target{Role: entity.RoleUser, TicketCode: ticket.Code}, NotifyPaymentValidated, map[string]interface{}{
		"amount": payment.AmountLocal,
	})

	return &ValidationResult{PaymentID: id, TicketCode: ticket.Code}, nil
}

// Exit выпускает автомобиль с оплаченным билетом
func (s *lifecycleService) Exit(ctx context.Context, vehicleID string) (_ *ExitResult, err error) {
	defer s.observe("exit", &err)

	return s.exit(ctx, exitPlan{
		op:        "exit",
		vehicleID: vehicleID,
		exitType:  entity.ExitNormal,
		event:     entity.EventExit,
		notify:    NotifyVehicleExit,
		vehicles:  entity.ActiveVehicleStatuses,
		tickets:   []entity.TicketStatus{entity.TicketPaid},
	})
}

// QuickExit выпускает автомобиль без оплаты; обоснование сохраняется в истории
func (s *lifecycleService) QuickExit(ctx context.Context, vehicleID, justification string) (_ *ExitResult, err error) {
	defer s.observe("quick_exit", &err)

	note := strings.TrimSpace(justification)
	if utf8.RuneCountInString(note) < MinQuickExitNote {
		return nil, entity.Validation(entity.ReasonNoteTooShort,
			"justification must be at least %d characters", MinQuickExitNote)
	}

	return s.exit(ctx, exitPlan{
		op:        "quick_exit",
		vehicleID: vehicleID,
		exitType:  entity.ExitQuick,
		event:     entity.EventQuickExit,
		notify:    NotifyQuickExit,
		note:      note,
		vehicles:  []entity.VehicleStatus{entity.VehicleParked, entity.VehicleParkedConfirmed},
		tickets:   []entity.TicketStatus{entity.TicketOccupied, entity.TicketValidated},
	})
}

type exitPlan struct {
	op        string
	vehicleID string
	exitType  entity.ExitType
	event     entity.HistoryEventType
	notify    string
	note      string
	vehicles  []entity.VehicleStatus
	tickets   []entity.TicketStatus
}

func (s *lifecycleService) exit(ctx context.Context, p exitPlan) (*ExitResult, error) {
	id := strings.TrimSpace(p.vehicleID)
	if id == "" {
		return nil, entity.Validation(entity.ReasonRequired, "vehicle id is required")
	}

	vehicle, err := s.vehicles.GetByID(ctx, id)
	if errors.Is(err, entity.ErrVehicleNotFound) {
		return nil, entity.NotFound(err, "vehicle %s not found", id)
	}
	if err != nil {
		return nil, entity.Internal(err, "failed to load vehicle %s", id)
	}
	if !vehicleStatusIn(vehicle.Status, p.vehicles) {
		return nil, entity.TransitionConflict("vehicle", id, vehicle.Status, statusList(p.vehicles)...)
	}

	ticket, err := s.loadTicket(ctx, vehicle.TicketCode)
	if err != nil {
		return nil, err
	}
	if !ticketStatusIn(ticket.Status, p.tickets) {
		return nil, entity.TransitionConflict("ticket", ticket.Code, ticket.Status, statusList(p.tickets)...)
	}

	entry, err := s.history.GetByVehicle(ctx, id)
	if err != nil {
		return nil, entity.Internal(err, "failed to load history for vehicle %s", id)
	}

	now := s.now()
	duration := int(now.Sub(vehicle.EnteredAt).Minutes())
	if duration < 0 {
		duration = 0
	}

	sg := newSaga(p.op)

	prev := ticket.Clone()
	_, err = s.tickets.Transition(ctx, ticket.Code, p.tickets, entity.TicketUpdate{Status: entity.TicketAvailable})
	if err != nil {
		return nil, staleOrInternal(err, "ticket %s changed concurrently", ticket.Code)
	}
	sg.onRollback("restore ticket", func(ctx context.Context) error {
		return s.tickets.Restore(ctx, prev, entity.TicketAvailable)
	})

	if err := s.vehicles.Delete(ctx, id); err != nil {
		sg.rollback(ctx)
		if errors.Is(err, entity.ErrVehicleNotFound) {
			return nil, entity.Conflict(entity.ReasonConcurrentUpdate, "vehicle %s already left", id).Wrap(err)
		}
		return nil, entity.Internal(err, "failed to remove vehicle %s", id)
	}
	sg.onRollback("reinsert vehicle", func(ctx context.Context) error {
		return s.vehicles.Create(ctx, vehicle)
	})

	payload := map[string]interface{}{
		"ticketCode":      ticket.Code,
		"plate":           vehicle.Plate,
		"durationMinutes": duration,
		"exitedAt":        now,
		"totalPaid":       entry.TotalPaid,
	}
	if p.note != "" {
		payload["exitNote"] = p.note
	}

	err = s.history.Append(ctx, id, &entity.HistoryEvent{
		Type:    p.event,
		At:      now,
		Status:  entity.VehicleCompleted,
		Payload: payload,
	}, entity.HistoryRollup{
		CurrentStatus: entity.VehicleCompleted,
		Close: &entity.HistoryClose{
			ExitType:        p.exitType,
			ExitNote:        p.note,
			DurationMinutes: duration,
			ExitedAt:        now,
		},
	})
	if err != nil {
		sg.rollback(ctx)
		return nil, entity.Internal(err, "failed to close history for vehicle %s", id)
	}

	if n, err := s.subs.DeactivateByTicket(ctx, ticket.Code); err != nil {
		logrus.WithField("ticket_code", ticket.Code).WithError(err).Warn("Failed to deactivate subscriptions")
	} else if n > 0 {
		logrus.WithFields(logrus.Fields{"ticket_code": ticket.Code, "subscriptions": n}).Debug("Subscriptions expired")
	}

	notifyPayload := map[string]interface{}{
		"plate":    vehicle.Plate,
		"duration": duration,
		"amount":   entry.TotalPaid,
	}
	s.notify(ctx, Target{Role: entity.RoleUser, TicketCode: ticket.Code}, p.notify, notifyPayload)
	s.notify(ctx, Target{Role: entity.RoleAdmin, TicketCode: ticket.Code}, p.notify, notifyPayload)

	logrus.WithFields(logrus.Fields{
		"vehicle_id":  id,
		"ticket_code": ticket.Code,
		"exit_type":   p.exitType,
		"duration":    duration,
	}).Info("Vehicle left")

	return &ExitResult{TicketCode: ticket.Code, DurationMinutes: duration}, nil
}

func (s *lifecycleService) ActiveVehicles(ctx context.Context) ([]*entity.Vehicle, error) {
	vehicles, err := s.vehicles.GetActive(ctx)
	if err != nil {
		return nil, entity.Internal(err, "failed to list active vehicles")
	}
	return vehicles, nil
}

// UpdateVehicle правит описательные поля активного автомобиля и копию в билете.
// Статус меняют только операции жизненного цикла.
func (s *lifecycleService) UpdateVehicle(ctx context.Context, vehicleID string, req *UpdateVehicleRequest) (_ *entity.Vehicle, err error) {
	defer s.observe("update_vehicle", &err)

	id := strings.TrimSpace(vehicleID)
	if _, perr := uuid.Parse(id); perr != nil {
		return nil, entity.Validation(entity.ReasonInvalidID, "invalid vehicle id %q", vehicleID)
	}

	vehicle, err := s.vehicles.GetByID(ctx, id)
	if errors.Is(err, entity.ErrVehicleNotFound) {
		return nil, entity.NotFound(err, "vehicle %s not found", id)
	}
	if err != nil {
		return nil, entity.Internal(err, "failed to load vehicle %s", id)
	}
	if vehicle.Status == entity.VehicleCompleted {
		return nil, entity.Conflict(entity.ReasonVehicleState, "vehicle %s already left", id)
	}

	now := s.now()
	updated, changed, err := applyVehicleUpdate(vehicle, req, now)
	if err != nil {
		return nil, err
	}
	if len(changed) == 0 {
		return vehicle, nil
	}
	updated.UpdatedAt = now

	ticket, err := s.loadTicket(ctx, vehicle.TicketCode)
	if err != nil {
		return nil, err
	}
	if ticket.VehicleSnapshot == nil || ticket.VehicleSnapshot.VehicleID != id {
		return nil, entity.Conflict(entity.ReasonVehicleState, "ticket %s does not hold vehicle %s", ticket.Code, id)
	}

	sg := newSaga("update_vehicle")

	if err := s.vehicles.Update(ctx, updated, vehicle.Status); err != nil {
		return nil, staleOrInternal(err, "vehicle %s changed concurrently", id)
	}
	sg.onRollback("restore vehicle", func(ctx context.Context) error {
		return s.vehicles.Update(ctx, vehicle, vehicle.Status)
	})

	prev := ticket.Clone()
	snapshot := updated.Snapshot()
	_, err = s.tickets.Transition(ctx, ticket.Code, []entity.TicketStatus{ticket.Status}, entity.TicketUpdate{
		Status:   ticket.Status,
		Snapshot: snapshot,
	})
	if err != nil {
		sg.rollback(ctx)
		return nil, staleOrInternal(err, "ticket %s changed concurrently", ticket.Code)
	}
	sg.onRollback("restore ticket", func(ctx context.Context) error {
		return s.tickets.Restore(ctx, prev, ticket.Status)
	})

	err = s.history.Append(ctx, id, &entity.HistoryEvent{
		Type:   entity.EventVehicleUpdated,
		At:     now,
		Status: vehicle.Status,
		Payload: map[string]interface{}{
			"ticketCode": ticket.Code,
			"changed":    changed,
		},
	}, entity.HistoryRollup{Vehicle: snapshot})
	if err != nil {
		sg.rollback(ctx)
		return nil, entity.Internal(err, "failed to append history for vehicle %s", id)
	}

	s.notify(ctx, Target{Role: entity.RoleAdmin, TicketCode: ticket.Code}, NotifyVehicleUpdated, map[string]interface{}{
		"plate":   updated.Plate,
		"changed": changed,
	})

	logrus.WithFields(logrus.Fields{
		"vehicle_id":  id,
		"ticket_code": ticket.Code,
		"changed":     changed,
	}).Info("Vehicle updated")

	return updated, nil
}

// applyVehicleUpdate returns the edited copy and the names of changed fields.
func applyVehicleUpdate(v *entity.Vehicle, req *UpdateVehicleRequest, now time.Time) (*entity.Vehicle, []string, error) {
	updated := v.Clone()
	var changed []string

	set := func(name string, dst *string, src *string, normalize func(string) string) {
		if src == nil {
			return
		}
		val := normalize(*src)
		if val != *dst {
			*dst = val
			changed = append(changed, name)
		}
	}

	if req.Plate != nil && entity.NormalizePlate(*req.Plate) == "" {
		return nil, nil, entity.Validation(entity.ReasonRequired, "plate must not be empty")
	}
	set("plate", &updated.Plate, req.Plate, entity.NormalizePlate)
	set("make", &updated.Make, req.Make, strings.TrimSpace)
	set("model", &updated.Model, req.Model, strings.TrimSpace)
	set("color", &updated.Color, req.Color, strings.TrimSpace)
	set("ownerName", &updated.OwnerName, req.OwnerName, strings.TrimSpace)
	set("ownerPhone", &updated.OwnerPhone, req.OwnerPhone, strings.TrimSpace)
	set("note", &updated.Note, req.Note, strings.TrimSpace)

	if req.Images != nil && (req.Images.PlateImageURL != "" || req.Images.VehicleImageURL != "") {
		images := entity.VehicleImages{}
		if updated.Images != nil {
			images = *updated.Images
		}
		if req.Images.PlateImageURL != "" {
			images.PlateImageURL = req.Images.PlateImageURL
		}
		if req.Images.VehicleImageURL != "" {
			images.VehicleImageURL = req.Images.VehicleImageURL
		}
		// фото с телефона оператора
		images.CaptureMethod = entity.CaptureMobileCamera
		images.CapturedAt = &now
		updated.Images = &images
		changed = append(changed, "images")
	}

	return updated, changed, nil
}

// RefreshAmounts пересчитывает сумму к оплате для занятых билетов.
// Статус билета не меняется; билет, сменивший статус, пропускается.
func (s *lifecycleService) RefreshAmounts(ctx context.Context) (int, error) {
	tickets, err := s.tickets.GetAll(ctx)
	if err != nil {
		return 0, entity.Internal(err, "failed to list tickets")
	}
	tariff, err := s.tariffs.CurrentTariff(ctx)
	if err != nil {
		return 0, entity.Internal(err, "failed to load tariff")
	}

	now := s.now()
	updated := 0
	for _, t := range tickets {
		if t.VehicleSnapshot == nil {
			continue
		}
		if t.Status != entity.TicketOccupied && t.Status != entity.TicketValidated {
			continue
		}
		amount := tariff.AmountDue(t.VehicleSnapshot.EnteredAt, now)
		if amount == t.ComputedAmount {
			continue
		}
		if err := s.tickets.UpdateAmount(ctx, t.Code, t.Status, amount); err != nil {
			if errors.Is(err, entity.ErrStaleWrite) {
				continue
			}
			return updated, entity.Internal(err, "failed to update amount of ticket %s", t.Code)
		}
		updated++
	}
	return updated, nil
}

func (s *lifecycleService) loadTicket(ctx context.Context, code string) (*entity.Ticket, error) {
	ticket, err := s.tickets.GetByCode(ctx, code)
	if errors.Is(err, entity.ErrTicketNotFound) {
		return nil, entity.NotFound(err, "ticket %s not found", code)
	}
	if err != nil {
		return nil, entity.Internal(err, "failed to load ticket %s", code)
	}
	return ticket, nil
}

// notify is best effort: failures are logged and counted, never returned.
func (s *lifecycleService) notify(ctx context.Context, target Target, event string, payload map[string]interface{}) {
	payload["ticketCode"] = target.TicketCode
	if err := s.notifier.Notify(context.WithoutCancel(ctx), target, event, payload); err != nil {
		metrics.Notifications.WithLabelValues("enqueue_failed").Inc()
		logrus.WithFields(logrus.Fields{
			"event":       event,
			"role":        target.Role,
			"ticket_code": target.TicketCode,
		}).WithError(err).Warn("Failed to send notification")
	}
}

func (s *lifecycleService) observe(op string, errp *error) {
	result := "ok"
	if *errp != nil {
		result = string(entity.KindOf(*errp))
		entry := logrus.WithFields(logrus.Fields{"op": op, "reason": entity.ReasonOf(*errp)}).WithError(*errp)
		if entity.KindOf(*errp) == entity.KindInternal {
			entry.Error("Lifecycle operation failed")
		} else {
			entry.Info("Lifecycle operation rejected")
		}
	}
	metrics.LifecycleOperations.WithLabelValues(op, result).Inc()
}

func staleOrInternal(err error, format string, args ...interface{}) error {
	if errors.Is(err, entity.ErrStaleWrite) {
		return entity.Conflict(entity.ReasonConcurrentUpdate, format, args...).Wrap(err)
	}
	return entity.Internal(err, format, args...)
}

func ticketStatusIn(s entity.TicketStatus, set []entity.TicketStatus) bool {
	for _, x := range set {
		if s == x {
			return true
		}
	}
	return false
}

func vehicleStatusIn(s entity.VehicleStatus, set []entity.VehicleStatus) bool {
	for _, x := range set {
		if s == x {
			return true
		}
	}
	return false
}

func statusList[T ~string](set []T) []interface{} {
	out := make([]interface{}, len(set))
	for i, s := range set {
		out[i] = s
	}
	return out
}
