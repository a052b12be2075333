package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ds124wfegd/WB_L3/parking/internal/database"
	"github.com/ds124wfegd/WB_L3/parking/internal/database/memory"
	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTariff = Tariff{DayRate: 3, NightRate: 4, NightStart: 0, NightEnd: 6, ExchangeRate: 36}

// faultyTickets подменяет условное обновление билета
type faultyTickets struct {
	database.TicketRepository
	transitionErr error
}

func (f *faultyTickets) Transition(ctx context.Context, code string, expected []entity.TicketStatus, upd entity.TicketUpdate) (*entity.Ticket, error) {
	if f.transitionErr != nil {
		return nil, f.transitionErr
	}
	return f.TicketRepository.Transition(ctx, code, expected, upd)
}

type faultyVehicles struct {
	database.VehicleRepository
	updateErr error
}

func (f *faultyVehicles) UpdateStatus(ctx context.Context, id string, expected []entity.VehicleStatus, status entity.VehicleStatus, at time.Time) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	return f.VehicleRepository.UpdateStatus(ctx, id, expected, status, at)
}

type faultyHistory struct {
	database.HistoryRepository
	createErr error
	appendErr error
}

func (f *faultyHistory) Create(ctx context.Context, entry *entity.HistoryEntry) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.HistoryRepository.Create(ctx, entry)
}

func (f *faultyHistory) Append(ctx context.Context, vehicleID string, ev *entity.HistoryEvent, r entity.HistoryRollup) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	return f.HistoryRepository.Append(ctx, vehicleID, ev, r)
}

type notification struct {
	target Target
	event  string
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notification
	err   error
}

func (r *recordingNotifier) Notify(ctx context.Context, target Target, eventType string, payload map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, notification{target: target, event: eventType})
	return r.err
}

func (r *recordingNotifier) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.event
	}
	return out
}

func newTestEngine(t *testing.T, codes ...string) (*lifecycleService, *database.Repositories, *recordingNotifier) {
	t.Helper()
	repos := memory.NewStore().Repositories()
	for _, code := range codes {
		require.NoError(t, repos.Tickets.Create(context.Background(), &entity.Ticket{Code: code}))
	}
	notifier := &recordingNotifier{}
	return newLifecycleService(repos, notifier, testTariff), repos, notifier
}

func eventCount(t *testing.T, repos *database.Repositories, vehicleID string) int {
	t.Helper()
	h, err := repos.History.GetByVehicle(context.Background(), vehicleID)
	require.NoError(t, err)
	return len(h.Events)
}

// TestRegisterVehicleExample проверяет регистрацию ABC123 на билет T-01
func TestRegisterVehicleExample(t *testing.T) {
	ctx := context.Background()
	svc, repos, notifier := newTestEngine(t, "T-01")

	v, err := svc.RegisterVehicle(ctx, &RegisterVehicleRequest{Plate: "abc123", TicketCode: "T-01"})
	require.NoError(t, err)
	assert.Equal(t, "ABC123", v.Plate)
	assert.Equal(t, entity.VehicleParked, v.Status)

	ticket, err := repos.Tickets.GetByCode(ctx, "T-01")
	require.NoError(t, err)
	assert.Equal(t, entity.TicketOccupied, ticket.Status)
	require.NotNil(t, ticket.VehicleSnapshot)
	assert.Equal(t, v.ID, ticket.VehicleSnapshot.VehicleID)

	active, err := repos.Vehicles.GetActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	h, err := repos.History.GetByVehicle(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, h.Events, 1)
	assert.Equal(t, entity.EventInitialRegistration, h.Events[0].Type)
	assert.True(t, h.IsActive)

	_, err = svc.RegisterVehicle(ctx, &RegisterVehicleRequest{Plate: "XYZ999", TicketCode: "T-01"})
	require.Error(t, err)
	assert.Equal(t, entity.KindConflict, entity.KindOf(err))
	assert.Equal(t, entity.ReasonTicketNotAvailable, entity.ReasonOf(err))

	assert.Equal(t, []string{NotifyVehicleRegistered}, notifier.events())
}

func TestRegisterVehicleValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestEngine(t, "T-01")

	tests := []struct {
		name   string
		req    *RegisterVehicleRequest
		kind   entity.Kind
		reason string
	}{
		{name: "missing plate", req: &RegisterVehicleRequest{TicketCode: "T-01"}, kind: entity.KindValidation, reason: entity.ReasonRequired},
		{name: "missing ticket code", req: &RegisterVehicleRequest{Plate: "ABC123"}, kind: entity.KindValidation, reason: entity.ReasonRequired},
		{name: "unknown ticket", req: &RegisterVehicleRequest{Plate: "ABC123", TicketCode: "T-99"}, kind: entity.KindConflict, reason: entity.ReasonTicketMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RegisterVehicle(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, entity.KindOf(err))
			assert.Equal(t, tt.reason, entity.ReasonOf(err))
		})
	}

	_, err := svc.RegisterVehicle(ctx, &RegisterVehicleRequest{Plate: "ABC123", TicketCode: "T-99"})
	assert.ErrorIs(t, err, entity.ErrTicketNotFound)
}

// TestRegisterVehicleMutualExclusion проверяет, что гонку за билет выигрывает один вызов
func TestRegisterVehicleMutualExclusion(t *testing.T) {
	ctx := context.Background()

	for round := 0; round < 20; round++ {
		svc, repos, _ := newTestEngine(t, "T-01")

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = svc.RegisterVehicle(ctx, &RegisterVehicleRequest{Plate: "CAR00" + string(rune('1'+i)), TicketCode: "T-01"})
			}(i)
		}
		wg.Wait()

		successes := 0
		for _, err := range errs {
			if err == nil {
				successes++
				continue
			}
			assert.Equal(t, entity.KindConflict, entity.KindOf(err))
		}
		assert.Equal(t, 1, successes)

		active, err := repos.Vehicles.GetActive(ctx)
		require.NoError(t, err)
		assert.Len(t, active, 1)
	}
}

// TestRegisterVehicleCompensation проверяет откат вставки автомобиля
func TestRegisterVehicleCompensation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		err    error
		kind   entity.Kind
		reason string
	}{
		{name: "lost race", err: entity.ErrStaleWrite, kind: entity.KindConflict, reason: entity.ReasonTicketRaceLost},
		{name: "store failure", err: errors.New("connection reset"), kind: entity.KindInternal, reason: entity.ReasonInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repos, notifier := newTestEngine(t, "T-01")
			svc.tickets = &faultyTickets{TicketRepository: repos.Tickets, transitionErr: tt.err}

			_, err := svc.RegisterVehicle(ctx, &RegisterVehicleRequest{Plate: "ABC123", TicketCode: "T-01"})
			require.Error(t, err)
			assert.Equal(t, tt.kind, entity.KindOf(err))
			assert.Equal(t, tt.reason, entity.ReasonOf(err))

			active, err := repos.Vehicles.GetActive(ctx)
			require.NoError(t, err)
			assert.Empty(t, active)
			assert.Empty(t, notifier.events())
		})
	}
}

func TestRegisterVehicleHistoryFailureReleasesTicket(t *testing.T) {
	ctx := context.Background()
	svc, repos, _ := newTestEngine(t, "T-01")
	svc.history = &faultyHistory{HistoryRepository: repos.History, createErr: errors.New("disk full")}

	_, err := svc.RegisterVehicle(ctx, &RegisterVehicleRequest{Plate: "ABC123", TicketCode: "T-01"})
	require.Error(t, err)
	assert.Equal(t, entity.KindInternal, entity.KindOf(err))

	ticket, err := repos.Tickets.GetByCode(ctx, "T-01")
	require.NoError(t, err)
	assert.Equal(t, entity.TicketAvailable, ticket.Status)
	assert.Nil(t, ticket.VehicleSnapshot)

	active, err := repos.Vehicles.GetActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

// TestFullLifecycle проходит весь путь билета и следит за ростом истории
func TestFullLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, repos, notifier := newTestEngine(t, "T-01")

	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	now := start
	svc.now = func() time.Time { return now }

	v, err := svc.RegisterVehicle(ctx, &RegisterVehicleRequest{Plate: "ABC123", TicketCode: "T-01", OwnerName: "Ana"})
	require.NoError(t, err)
	counts := []int{eventCount(t, repos, v.ID)}

	now = now.Add(5 * time.Minute)
	confirmed, err := svc.ConfirmParking(ctx, "T-01")
	require.NoError(t, err)
	assert.Equal(t, &ConfirmResult{TicketCode: "T-01", VehicleID: v.ID, Plate: "ABC123"}, confirmed)
	counts = append(counts, eventCount(t, repos, v.ID))

	_, err = svc.ConfirmParking(ctx, "T-01")
	require.Error(t, err)
	assert.Equal(t, entity.KindConflict, entity.KindOf(err))

	now = now.Add(90 * time.Minute)
	paid, err := svc.SubmitPayment(ctx, &SubmitPaymentRequest{TicketCode: "T-01", Amount: 216, AmountForeign: 6, Method: "pago_movil"})
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentPendingValidation, paid.Status)
	counts = append(counts, eventCount(t, repos, v.ID))

	ticket, err := repos.Tickets.GetByCode(ctx, "T-01")
	require.NoError(t, err)
	assert.Equal(t, entity.TicketPaymentPending, ticket.Status)
	assert.Equal(t, 6.0, ticket.ComputedAmount)

	h, err := repos.History.GetByVehicle(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, h.PendingAmounts, 1)

	res, err := svc.ValidatePayment(ctx, paid.PaymentID)
	require.NoError(t, err)
	assert.False(t, res.AlreadyValidated)
	counts = append(counts, eventCount(t, repos, v.ID))

	again, err := svc.ValidatePayment(ctx, paid.PaymentID)
	require.NoError(t, err)
	assert.True(t, again.AlreadyValidated)
	counts = append(counts, eventCount(t, repos, v.ID))

	h, err = repos.History.GetByVehicle(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 216.0, h.TotalPaid)
	assert.Empty(t, h.PendingAmounts)
	assert.Len(t, h.Payments, 1)
	assert.Equal(t, entity.HistoryPaid, h.CurrentStatus)

	now = now.Add(10 * time.Minute)
	exit, err := svc.Exit(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, &ExitResult{TicketCode: "T-01", DurationMinutes: 105}, exit)
	counts = append(counts, eventCount(t, repos, v.ID))

	assert.Equal(t, []int{1, 2, 2, 3, 3, 4}, counts)
	for i := 1; i < len(counts); i++ {
		assert.GreaterOrEqual(t, counts[i], counts[i-1])
	}

	ticket, err = repos.Tickets.GetByCode(ctx, "T-01")
	require.NoError(t, err)
	assert.Equal(t, entity.TicketAvailable, ticket.Status)
	assert.Nil(t, ticket.VehicleSnapshot)

	_, err = repos.Vehicles.GetByID(ctx, v.ID)
	assert.ErrorIs(t, err, entity.ErrVehicleNotFound)

	h, err = repos.History.GetByVehicle(ctx, v.ID)
	require.NoError(t, err)
	assert.False(t, h.IsActive)
	assert.True(t, h.IsComplete)
	assert.Equal(t, entity.ExitNormal, h.ExitType)
	assert.Equal(t, entity.EventExit, h.Events[3].Type)

	assert.Equal(t, []string{
		NotifyVehicleRegistered,
		NotifyVehicleParked,
		NotifyPaymentReceived,
		NotifyPaymentValidated,
		NotifyVehicleExit,
		NotifyVehicleExit,
	}, notifier.events())
}

func TestExitRequiresPaidTicket(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestEngine(t, "T-01")

	v, err := svc.RegisterVehicle(ctx, &RegisterVehicleRequest{Plate: "ABC123", TicketCode: "T-01"})
	require.NoError(t, err)

	_, err = svc.Exit(ctx, v.ID)
	require.Error(t, err)
	assert.Equal(t, entity.KindConflict, entity.KindOf(err))

	_, err = svc.Exit(ctx, uuid.NewString())
	assert.Equal(t, entity.KindNotFound, entity.KindOf(err))
}

// TestQuickExitJustification проверяет минимальную длину обоснования
func TestQuickExitJustification(t *testing.T) {
	ctx := context.Background()
	svc, repos, _ := newTestEngine(t, "T-01")

	v, err := svc.RegisterVehicle(ctx, &RegisterVehicleRequest{Plate: "ABC123", TicketCode: "T-01"})
	require.NoError(t, err)

	tests := []struct {
		name string
		note string
	}{
		{name: "short word", note: "short"},
		{name: "nine characters", note: "nine-char"},
		{name: "padded nine characters", note: "   nine-char   "},
		{name: "nine runes", note: "ñandúñand"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.QuickExit(ctx, v.ID, tt.note)
			require.Error(t, err)
			assert.Equal(t, entity.KindValidation, entity.KindOf(err))
			assert.Equal(t, entity.ReasonNoteTooShort, entity.ReasonOf(err))
		})
	}
	assert.Equal(t, 1, eventCount(t, repos, v.ID))

	res, err := svc.QuickExit(ctx, v.ID, "ten-chars!")
	require.NoError(t, err)
	assert.Equal(t, "T-01", res.TicketCode)

	h, err := repos.History.GetByVehicle(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, h.Events, 2)
	last := h.Events[1]
	assert.Equal(t, entity.EventQuickExit, last.Type)
	assert.Equal(t, "ten-chars!", last.Payload["exitNote"])
	assert.Equal(t, "ten-chars!", h.ExitNote)
	assert.Equal(t, entity.ExitQuick, h.ExitType)

	ticket, err := repos.Tickets.GetByCode(ctx, "T-01")
	require.NoError(t, err)
	assert.Equal(t, entity.TicketAvailable, ticket.Status)
	assert.Nil(t, ticket.VehicleSnapshot)
}

func TestQuickExitRejectsPendingPayment(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestEngine(t, "T-01")

	v, err := svc.RegisterVehicle(ctx, &RegisterVehicleRequest{Plate: "ABC123", TicketCode: "T-01"})
	require.NoError(t, err)
	_, err = svc.ConfirmParking(ctx, "T-01")
	require.NoError(t, err)
	_, err = svc.SubmitPayment(ctx, &SubmitPaymentRequest{TicketCode: "T-01", Amount: 100, Method: "cash"})
	require.NoError(t, err)

	_, err = svc.QuickExit(ctx, v.ID, "customer left in a hurry")
	require.Error(t, err)
	assert.Equal(t, entity.KindConflict, entity.KindOf(err))
}

func TestSubmitPaymentCompensation(t *testing.T) {
	ctx := context.Background()
	svc, repos, _ := newTestEngine(t, "T-01")

	_, err := svc.RegisterVehicle(ctx, &RegisterVehicleRequest{Plate: "ABC123", TicketCode: "T-01"})
	require.NoError(t, err)
	_, err = svc.ConfirmParking(ctx, "T-01")
	require.NoError(t, err)

	svc.vehicles = &faultyVehicles{VehicleRepository: repos.Vehicles, updateErr: errors.New("timeout")}
	_, err = svc.SubmitPayment(ctx, &SubmitPaymentRequest{TicketCode: "T-01", Amount: 100, Method: "cash"})
	require.Error(t, err)
	assert.Equal(t, entity.KindInternal, entity.KindOf(err))

	pending, err := repos.Payments.GetByStatus(ctx, entity.PaymentPendingValidation)
	require.NoError(t, err)
	assert.Empty(t, pending)

	ticket, err := repos.Tickets.GetByCode(ctx, "T-01")
	require.NoError(t, err)
	assert.Equal(t, entity.TicketValidated, ticket.Status)
	assert.NotNil(t, ticket.VehicleSnapshot)
}

func TestSubmitPaymentValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestEngine(t, "T-01")

	tests := []struct {
		name string
		req  *SubmitPaymentRequest
		kind entity.Kind
	}{
		{name: "missing method", req: &SubmitPaymentRequest{TicketCode: "T-01", Amount: 10}, kind: entity.KindValidation},
		{name: "zero amount", req: &SubmitPaymentRequest{TicketCode: "T-01", Method: "cash"}, kind: entity.KindValidation},
		{name: "unknown ticket", req: &SubmitPaymentRequest{TicketCode: "T-77", Amount: 10, Method: "cash"}, kind: entity.KindNotFound},
		{name: "no vehicle", req: &SubmitPaymentRequest{TicketCode: "T-01", Amount: 10, Method: "cash"}, kind: entity.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SubmitPayment(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, entity.KindOf(err))
		})
	}
}

func TestValidatePaymentCompensation(t *testing.T) {
	ctx := context.Background()
	svc, repos, _ := newTestEngine(t, "T-01")

	v, err := svc.RegisterVehicle(ctx, &RegisterVehicleRequest{Plate: "ABC123", TicketCode: "T-01"})
	require.NoError(t, err)
	_, err = svc.ConfirmParking(ctx, "T-01")
	require.NoError(t, err)
	paid, err := svc.SubmitPayment(ctx, &SubmitPaymentRequest{TicketCode: "T-01", Amount: 100, Method: "cash"})
	require.NoError(t, err)

	svc.history = &faultyHistory{HistoryRepository: repos.History, appendErr: errors.New("write failed")}
	_, err = svc.ValidatePayment(ctx, paid.PaymentID)
	require.Error(t, err)

	p, err := repos.Payments.GetByID(ctx, paid.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentPendingValidation, p.Status)
	assert.Nil(t, p.ValidatedAt)

	ticket, err := repos.Tickets.GetByCode(ctx, "T-01")
	require.NoError(t, err)
	assert.Equal(t, entity.TicketPaymentPending, ticket.Status)
	assert.Nil(t, ticket.PaymentValidatedAt)
	assert.Equal(t, 2, eventCount(t, repos, v.ID))
}

func TestValidatePaymentErrors(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestEngine(t)

	_, err := svc.ValidatePayment(ctx, "not-a-uuid")
	assert.Equal(t, entity.KindValidation, entity.KindOf(err))
	assert.Equal(t, entity.ReasonInvalidID, entity.ReasonOf(err))

	_, err = svc.ValidatePayment(ctx, uuid.NewString())
	assert.Equal(t, entity.KindNotFound, entity.KindOf(err))
}

func TestNotificationFailureDoesNotFailOperation(t *testing.T) {
	ctx := context.Background()
	svc, _, notifier := newTestEngine(t, "T-01")
	notifier.err = errors.New("queue down")

	_, err := svc.RegisterVehicle(ctx, &RegisterVehicleRequest{Plate: "ABC123", TicketCode: "T-01"})
	assert.NoError(t, err)
}

func TestRefreshAmounts(t *testing.T) {
	ctx := context.Background()
	svc, repos, _ := newTestEngine(t, "T-01", "T-02")

	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }
	_, err := svc.RegisterVehicle(ctx, &RegisterVehicleRequest{Plate: "ABC123", TicketCode: "T-01"})
	require.NoError(t, err)

	svc.now = func() time.Time { return start.Add(150 * time.Minute) }
	n, err := svc.RefreshAmounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ticket, err := repos.Tickets.GetByCode(ctx, "T-01")
	require.NoError(t, err)
	assert.Equal(t, 9.0, ticket.ComputedAmount)
	assert.Equal(t, entity.TicketOccupied, ticket.Status)

	n, err = svc.RefreshAmounts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// TestExitCompensation проверяет, что сбой записи истории при выезде
// возвращает автомобиль и билет в исходное состояние
func TestExitCompensation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name          string
		prepare       func(t *testing.T, svc *lifecycleService)
		exit          func(svc *lifecycleService, id string) error
		vehicleStatus entity.VehicleStatus
		ticketStatus  entity.TicketStatus
		events        int
	}{
		{
			name:          "quick exit of parked vehicle",
			prepare:       func(t *testing.T, svc *lifecycleService) {},
			exit:          quickExit,
			vehicleStatus: entity.VehicleParked,
			ticketStatus:  entity.TicketOccupied,
			events:        1,
		},
		{
			name: "quick exit of confirmed vehicle",
			prepare: func(t *testing.T, svc *lifecycleService) {
				_, err := svc.ConfirmParking(ctx, "T-01")
				require.NoError(t, err)
			},
			exit:          quickExit,
			vehicleStatus: entity.VehicleParkedConfirmed,
			ticketStatus:  entity.TicketValidated,
			events:        2,
		},
		{
			name: "exit after validated payment",
			prepare: func(t *testing.T, svc *lifecycleService) {
				_, err := svc.ConfirmParking(ctx, "T-01")
				require.NoError(t, err)
				paid, err := svc.SubmitPayment(ctx, &SubmitPaymentRequest{TicketCode: "T-01", Amount: 100, Method: "cash"})
				require.NoError(t, err)
				_, err = svc.ValidatePayment(ctx, paid.PaymentID)
				require.NoError(t, err)
			},
			exit: func(svc *lifecycleService, id string) error {
				_, err := svc.Exit(ctx, id)
				return err
			},
			vehicleStatus: entity.VehiclePaymentPending,
			ticketStatus:  entity.TicketPaid,
			events:        3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repos, notifier := newTestEngine(t, "T-01")

			v, err := svc.RegisterVehicle(ctx, &RegisterVehicleRequest{Plate: "ABC123", TicketCode: "T-01"})
			require.NoError(t, err)
			tt.prepare(t, svc)

			before, err := repos.Tickets.GetByCode(ctx, "T-01")
			require.NoError(t, err)
			sent := len(notifier.events())

			svc.history = &faultyHistory{HistoryRepository: repos.History, appendErr: errors.New("write failed")}
			err = tt.exit(svc, v.ID)
			require.Error(t, err)
			assert.Equal(t, entity.KindInternal, entity.KindOf(err))

			vehicle, err := repos.Vehicles.GetByID(ctx, v.ID)
			require.NoError(t, err, "vehicle must be re-inserted")
			assert.Equal(t, tt.vehicleStatus, vehicle.Status)
			assert.Equal(t, v.EnteredAt, vehicle.EnteredAt)

			ticket, err := repos.Tickets.GetByCode(ctx, "T-01")
			require.NoError(t, err)
			assert.Equal(t, tt.ticketStatus, ticket.Status)
			require.NotNil(t, ticket.VehicleSnapshot)
			assert.Equal(t, v.ID, ticket.VehicleSnapshot.VehicleID)
			assert.True(t, ticket.SnapshotConsistent())
			assert.Equal(t, before.OccupiedAt, ticket.OccupiedAt)
			assert.Equal(t, before.ValidatedAt, ticket.ValidatedAt)
			assert.Equal(t, before.PaymentValidatedAt, ticket.PaymentValidatedAt)

			assert.Equal(t, tt.events, eventCount(t, repos, v.ID))
			assert.Len(t, notifier.events(), sent)

			active, err := repos.Vehicles.GetActive(ctx)
			require.NoError(t, err)
			assert.Len(t, active, 1)
		})
	}
}

func quickExit(svc *lifecycleService, id string) error {
	_, err := svc.QuickExit(context.Background(), id, "gate opened by supervisor")
	return err
}

// TestConfirmParkingCompensation проверяет откат подтверждения парковки
func TestConfirmParkingCompensation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		inject func(svc *lifecycleService, repos *database.Repositories)
		kind   entity.Kind
	}{
		{
			name: "history append fails",
			inject: func(svc *lifecycleService, repos *database.Repositories) {
				svc.history = &faultyHistory{HistoryRepository: repos.History, appendErr: errors.New("write failed")}
			},
			kind: entity.KindInternal,
		},
		{
			name: "ticket changed concurrently",
			inject: func(svc *lifecycleService, repos *database.Repositories) {
				svc.tickets = &faultyTickets{TicketRepository: repos.Tickets, transitionErr: entity.ErrStaleWrite}
			},
			kind: entity.KindConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repos, notifier := newTestEngine(t, "T-01")

			v, err := svc.RegisterVehicle(ctx, &RegisterVehicleRequest{Plate: "ABC123", TicketCode: "T-01"})
			require.NoError(t, err)

			tt.inject(svc, repos)
			_, err = svc.ConfirmParking(ctx, "T-01")
			require.Error(t, err)
			assert.Equal(t, tt.kind, entity.KindOf(err))

			vehicle, err := repos.Vehicles.GetByID(ctx, v.ID)
			require.NoError(t, err)
			assert.Equal(t, entity.VehicleParked, vehicle.Status)
			assert.Nil(t, vehicle.ConfirmedAt)

			ticket, err := repos.Tickets.GetByCode(ctx, "T-01")
			require.NoError(t, err)
			assert.Equal(t, entity.TicketOccupied, ticket.Status)
			assert.Nil(t, ticket.ValidatedAt)
			require.NotNil(t, ticket.VehicleSnapshot)
			assert.Equal(t, entity.VehicleParked, ticket.VehicleSnapshot.Status)

			assert.Equal(t, 1, eventCount(t, repos, v.ID))
			assert.Equal(t, []string{NotifyVehicleRegistered}, notifier.events())
		})
	}
}

func strPtr(s string) *string { return &s }

// TestUpdateVehicle проверяет правку данных автомобиля и копии в билете
func TestUpdateVehicle(t *testing.T) {
	ctx := context.Background()
	svc, repos, notifier := newTestEngine(t, "T-01")

	v, err := svc.RegisterVehicle(ctx, &RegisterVehicleRequest{Plate: "ABC123", Color: "red", TicketCode: "T-01"})
	require.NoError(t, err)
	_, err = svc.ConfirmParking(ctx, "T-01")
	require.NoError(t, err)

	tests := []struct {
		name    string
		id      string
		req     UpdateVehicleRequest
		kind    entity.Kind
		plate   string
		changed bool
	}{
		{"plate and color", v.ID, UpdateVehicleRequest{Plate: strPtr(" xyz999 "), Color: strPtr("blue")}, "", "XYZ999", true},
		{"same values", v.ID, UpdateVehicleRequest{Plate: strPtr("XYZ999"), Color: strPtr("blue")}, "", "XYZ999", false},
		{"empty plate", v.ID, UpdateVehicleRequest{Plate: strPtr("   ")}, entity.KindValidation, "XYZ999", false},
		{"unknown vehicle", uuid.NewString(), UpdateVehicleRequest{Color: strPtr("green")}, entity.KindNotFound, "XYZ999", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := eventCount(t, repos, v.ID)
			notified := len(notifier.events())

			updated, err := svc.UpdateVehicle(ctx, tt.id, &tt.req)
			if tt.kind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.kind, entity.KindOf(err))
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.plate, updated.Plate)
				assert.Equal(t, entity.VehicleParkedConfirmed, updated.Status)
			}

			ticket, err := repos.Tickets.GetByCode(ctx, "T-01")
			require.NoError(t, err)
			assert.Equal(t, entity.TicketValidated, ticket.Status)
			require.NotNil(t, ticket.VehicleSnapshot)
			assert.Equal(t, tt.plate, ticket.VehicleSnapshot.Plate)
			assert.True(t, ticket.SnapshotConsistent())

			h, err := repos.History.GetByVehicle(ctx, v.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.plate, h.Plate)
			if tt.changed {
				assert.Equal(t, before+1, len(h.Events))
				assert.Equal(t, entity.EventVehicleUpdated, h.Events[len(h.Events)-1].Type)
				assert.Equal(t, NotifyVehicleUpdated, notifier.events()[len(notifier.events())-1])
			} else {
				assert.Equal(t, before, len(h.Events))
				assert.Len(t, notifier.events(), notified)
			}
		})
	}
}

func TestUpdateVehicleImages(t *testing.T) {
	ctx := context.Background()
	svc, repos, _ := newTestEngine(t, "T-01")

	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	v, err := svc.RegisterVehicle(ctx, &RegisterVehicleRequest{
		Plate:      "ABC123",
		TicketCode: "T-01",
		Images:     &entity.VehicleImages{PlateImageURL: "https://img/plate.jpg", CaptureMethod: "upload"},
	})
	require.NoError(t, err)

	later := now.Add(time.Hour)
	svc.now = func() time.Time { return later }
	updated, err := svc.UpdateVehicle(ctx, v.ID, &UpdateVehicleRequest{
		Images: &entity.VehicleImages{VehicleImageURL: "https://img/car.jpg"},
	})
	require.NoError(t, err)
	require.NotNil(t, updated.Images)
	assert.Equal(t, "https://img/plate.jpg", updated.Images.PlateImageURL)
	assert.Equal(t, "https://img/car.jpg", updated.Images.VehicleImageURL)
	assert.Equal(t, entity.CaptureMobileCamera, updated.Images.CaptureMethod)
	require.NotNil(t, updated.Images.CapturedAt)
	assert.True(t, later.Equal(*updated.Images.CapturedAt))

	stored, err := repos.Vehicles.GetByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.Images.VehicleImageURL, stored.Images.VehicleImageURL)
}

func TestUpdateVehicleAfterExit(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestEngine(t, "T-01")

	v, err := svc.RegisterVehicle(ctx, &RegisterVehicleRequest{Plate: "ABC123", TicketCode: "T-01"})
	require.NoError(t, err)
	require.NoError(t, quickExit(svc, v.ID))

	_, err = svc.UpdateVehicle(ctx, v.ID, &UpdateVehicleRequest{Color: strPtr("blue")})
	require.Error(t, err)
	assert.Equal(t, entity.KindConflict, entity.KindOf(err))
	assert.Equal(t, entity.ReasonVehicleState, entity.ReasonOf(err))
}

// TestUpdateVehicleCompensation проверяет откат правки при сбое на любом шаге
func TestUpdateVehicleCompensation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		inject func(svc *lifecycleService, repos *database.Repositories)
		kind   entity.Kind
	}{
		{
			name: "history append fails",
			inject: func(svc *lifecycleService, repos *database.Repositories) {
				svc.history = &faultyHistory{HistoryRepository: repos.History, appendErr: errors.New("write failed")}
			},
			kind: entity.KindInternal,
		},
		{
			name: "ticket changed concurrently",
			inject: func(svc *lifecycleService, repos *database.Repositories) {
				svc.tickets = &faultyTickets{TicketRepository: repos.Tickets, transitionErr: entity.ErrStaleWrite}
			},
			kind: entity.KindConflict,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repos, notifier := newTestEngine(t, "T-01")
			v, err := svc.RegisterVehicle(ctx, &RegisterVehicleRequest{Plate: "ABC123", Color: "red", TicketCode: "T-01"})
			require.NoError(t, err)

			tt.inject(svc, repos)
			_, err = svc.UpdateVehicle(ctx, v.ID, &UpdateVehicleRequest{Plate: strPtr("XYZ999"), Color: strPtr("blue")})
			require.Error(t, err)
			assert.Equal(t, tt.kind, entity.KindOf(err))

			stored, err := repos.Vehicles.GetByID(ctx, v.ID)
			require.NoError(t, err)
			assert.Equal(t, "ABC123", stored.Plate)
			assert.Equal(t, "red", stored.Color)

			ticket, err := repos.Tickets.GetByCode(ctx, "T-01")
			require.NoError(t, err)
			assert.Equal(t, entity.TicketOccupied, ticket.Status)
			assert.Equal(t, "ABC123", ticket.VehicleSnapshot.Plate)
			assert.Equal(t, "red", ticket.VehicleSnapshot.Color)

			assert.Equal(t, 1, eventCount(t, repos, v.ID))
			assert.Equal(t, []string{NotifyVehicleRegistered}, notifier.events())
		})
	}
}

// TestHistorySummaryTotals проверяет суммы ledger: отклоненных платежей нет,
// поэтому TotalRejected всегда ноль
func TestHistorySummaryTotals(t *testing.T) {
	ctx := context.Background()
	svc, repos, _ := newTestEngine(t, "T-01")
	history := NewHistoryService(repos.History)

	v, err := svc.RegisterVehicle(ctx, &RegisterVehicleRequest{Plate: "ABC123", TicketCode: "T-01"})
	require.NoError(t, err)
	_, err = svc.ConfirmParking(ctx, "T-01")
	require.NoError(t, err)
	paid, err := svc.SubmitPayment(ctx, &SubmitPaymentRequest{TicketCode: "T-01", Amount: 108, Method: "cash"})
	require.NoError(t, err)

	steps := []struct {
		name string
		run  func() error
		want entity.HistorySummary
	}{
		{"payment pending", func() error { return nil }, entity.HistorySummary{TotalPending: 108, Records: 1, Active: 1}},
		{"payment validated", func() error { _, err := svc.ValidatePayment(ctx, paid.PaymentID); return err }, entity.HistorySummary{TotalPaid: 108, Records: 1, Active: 1}},
		{"vehicle left", func() error { _, err := svc.Exit(ctx, v.ID); return err }, entity.HistorySummary{TotalPaid: 108, Records: 1, Completed: 1}},
	}
	for _, st := range steps {
		t.Run(st.name, func(t *testing.T) {
			require.NoError(t, st.run())
			sum, err := history.Summary(ctx)
			require.NoError(t, err)
			assert.Equal(t, st.want, *sum)

			h, err := history.GetHistory(ctx, v.ID)
			require.NoError(t, err)
			assert.Empty(t, h.RejectedAmounts)
		})
	}
}
