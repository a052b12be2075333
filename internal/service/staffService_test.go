package service

import (
	"context"
	"strings"
	"testing"

	"github.com/ds124wfegd/WB_L3/parking/internal/database/memory"
	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestCreateStaff(t *testing.T) {
	ctx := context.Background()
	svc := NewStaffService(memory.NewStore().Repositories().Staff)

	created, err := svc.CreateStaff(ctx, &CreateStaffRequest{FirstName: "Ana", LastName: "Diaz", Email: "Ana@Example.com", Role: "operator"})
	require.NoError(t, err)
	assert.Equal(t, DefaultStaffPassword, created.TemporaryPassword)
	assert.Equal(t, "ana@example.com", created.Staff.Email)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.Staff.PasswordHash), []byte(DefaultStaffPassword)))

	_, err = svc.CreateStaff(ctx, &CreateStaffRequest{FirstName: "Ana", LastName: "Diaz", Email: "ana@example.com", Role: "admin", Password: "secret"})
	assert.Equal(t, entity.KindConflict, entity.KindOf(err))

	_, err = svc.CreateStaff(ctx, &CreateStaffRequest{FirstName: "Ana", Email: "x@y.z", Role: "admin"})
	assert.Equal(t, entity.KindValidation, entity.KindOf(err))

	require.NoError(t, svc.DeleteStaff(ctx, created.Staff.ID))
	assert.Equal(t, entity.KindNotFound, entity.KindOf(svc.DeleteStaff(ctx, uuid.NewString())))
	assert.Equal(t, entity.KindValidation, entity.KindOf(svc.DeleteStaff(ctx, "1")))
}

// TestUpdateStaff проверяет уникальность email и смену пароля при обновлении
func TestUpdateStaff(t *testing.T) {
	ctx := context.Background()
	svc := NewStaffService(memory.NewStore().Repositories().Staff)

	ana, err := svc.CreateStaff(ctx, &CreateStaffRequest{FirstName: "Ana", LastName: "Diaz", Email: "ana@example.com", Role: "operator", Password: "first-secret"})
	require.NoError(t, err)
	_, err = svc.CreateStaff(ctx, &CreateStaffRequest{FirstName: "Luis", LastName: "Rojas", Email: "luis@example.com", Role: "admin", Password: "other"})
	require.NoError(t, err)
	id := ana.Staff.ID

	tests := []struct {
		name     string
		id       string
		req      UpdateStaffRequest
		kind     entity.Kind
		reason   string
		password string
	}{
		{"email of another member", id, UpdateStaffRequest{FirstName: "Ana", LastName: "Diaz", Email: "LUIS@example.com", Role: "operator"}, entity.KindConflict, entity.ReasonDuplicate, "first-secret"},
		{"missing role", id, UpdateStaffRequest{FirstName: "Ana", LastName: "Diaz", Email: "ana@example.com"}, entity.KindValidation, entity.ReasonRequired, "first-secret"},
		{"bad id", "42", UpdateStaffRequest{FirstName: "Ana", LastName: "Diaz", Email: "ana@example.com", Role: "admin"}, entity.KindValidation, entity.ReasonInvalidID, "first-secret"},
		{"unknown member", uuid.NewString(), UpdateStaffRequest{FirstName: "Ana", LastName: "Diaz", Email: "nobody@example.com", Role: "admin"}, entity.KindNotFound, entity.ReasonNotFound, "first-secret"},
		{"blank password keeps hash", id, UpdateStaffRequest{FirstName: "Ana María", LastName: "Diaz", Email: "Ana.Diaz@example.com", Role: "admin", Password: "  "}, "", "", "first-secret"},
		{"new password is rehashed", id, UpdateStaffRequest{FirstName: "Ana", LastName: "Diaz", Email: "ana@example.com", Role: "admin", Password: "second-secret"}, "", "", "second-secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updated, err := svc.UpdateStaff(ctx, tt.id, &tt.req)
			if tt.kind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.kind, entity.KindOf(err))
				assert.Equal(t, tt.reason, entity.ReasonOf(err))
			} else {
				require.NoError(t, err)
				assert.Equal(t, strings.ToLower(strings.TrimSpace(tt.req.Email)), updated.Email)
				assert.Equal(t, tt.req.Role, updated.Role)
				assert.Equal(t, ana.Staff.CreatedAt, updated.CreatedAt)
			}

			all, err := svc.GetAllStaff(ctx)
			require.NoError(t, err)
			for _, st := range all {
				if st.ID == id {
					assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(st.PasswordHash), []byte(tt.password)))
				}
			}
		})
	}
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	repos := memory.NewStore().Repositories()
	require.NoError(t, repos.Tickets.Create(ctx, &entity.Ticket{Code: "T-01"}))
	svc := NewSubscriptionService(repos.Subscriptions, repos.Tickets)

	sub, err := svc.Subscribe(ctx, &SubscribeRequest{Role: entity.RoleUser, TicketCode: "T-01", Endpoint: "https://push/1"})
	require.NoError(t, err)
	assert.True(t, sub.IsActive)
	assert.Equal(t, entity.StageActive, sub.Stage)

	_, err = svc.Subscribe(ctx, &SubscribeRequest{Role: entity.RoleUser, TicketCode: "T-09", Endpoint: "https://push/1"})
	assert.Equal(t, entity.KindNotFound, entity.KindOf(err))

	_, err = svc.Subscribe(ctx, &SubscribeRequest{Role: "guest", Endpoint: "https://push/1"})
	assert.Equal(t, entity.KindValidation, entity.KindOf(err))
}

func TestCreateTickets(t *testing.T) {
	ctx := context.Background()
	svc := NewTicketService(memory.NewStore().Repositories().Tickets)

	created, err := svc.CreateTickets(ctx, []string{"t-01", "T-01", " t-02 "})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, "T-02", created[1].Code)

	_, err = svc.CreateTickets(ctx, []string{"T-02"})
	assert.Equal(t, entity.KindConflict, entity.KindOf(err))

	all, err := svc.GetAllTickets(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
