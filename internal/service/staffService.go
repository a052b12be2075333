package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/ds124wfegd/WB_L3/parking/internal/database"
	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// DefaultStaffPassword is assigned when a staff member is created without one.
const DefaultStaffPassword = "123456"

const bcryptCost = 12

type staffService struct {
	repo database.StaffRepository
	now  func() time.Time
}

func NewStaffService(repo database.StaffRepository) StaffService {
	return &staffService{repo: repo, now: clock}
}

// CreateStaff создает сотрудника; пароль хранится только в виде bcrypt хэша
func (s *staffService) CreateStaff(ctx context.Context, req *CreateStaffRequest) (*CreatedStaff, error) {
	first := strings.TrimSpace(req.FirstName)
	last := strings.TrimSpace(req.LastName)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	role := strings.TrimSpace(req.Role)
	if first == "" || last == "" || email == "" || role == "" {
		return nil, entity.Validation(entity.ReasonRequired, "firstName, lastName, email and role are required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, entity.Validation(entity.ReasonRequired, "invalid email %q", req.Email)
	}

	password := req.Password
	temporary := ""
	if password == "" {
		password = DefaultStaffPassword
		temporary = DefaultStaffPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, entity.Internal(err, "failed to hash password")
	}

	staff := &entity.Staff{
		ID:           uuid.New().String(),
		FirstName:    first,
		LastName:     last,
		Email:        email,
		Role:         role,
		PasswordHash: string(hash),
		Active:       true,
		CreatedAt:    s.now(),
	}
	if err := s.repo.Create(ctx, staff); err != nil {
		if errors.Is(err, entity.ErrStaffAlreadyExists) {
			return nil, entity.Conflict(entity.ReasonDuplicate, "email %s is already registered", email).Wrap(err)
		}
		return nil, entity.Internal(err, "failed to create staff member")
	}

	logrus.WithFields(logrus.Fields{"staff_id": staff.ID, "role": role}).Info("Staff member created")
	return &CreatedStaff{Staff: staff, TemporaryPassword: temporary}, nil
}

func (s *staffService) GetAllStaff(ctx context.Context) ([]*entity.Staff, error) {
	staff, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, entity.Internal(err, "failed to list staff")
	}
	return staff, nil
}

// UpdateStaff перезаписывает данные сотрудника. Пустой пароль оставляет прежний хэш.
func (s *staffService) UpdateStaff(ctx context.Context, id string, req *UpdateStaffRequest) (*entity.Staff, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, entity.Validation(entity.ReasonInvalidID, "invalid staff id %q", id)
	}
	first := strings.TrimSpace(req.FirstName)
	last := strings.TrimSpace(req.LastName)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	role := strings.TrimSpace(req.Role)
	if first == "" || last == "" || email == "" || role == "" {
		return nil, entity.Validation(entity.ReasonRequired, "firstName, lastName, email and role are required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, entity.Validation(entity.ReasonRequired, "invalid email %q", req.Email)
	}

	owner, err := s.repo.GetByEmail(ctx, email)
	switch {
	case err == nil && owner.ID != id:
		return nil, entity.Conflict(entity.ReasonDuplicate, "email %s is already registered", email).Wrap(entity.ErrStaffAlreadyExists)
	case err != nil && !errors.Is(err, entity.ErrStaffNotFound):
		return nil, entity.Internal(err, "failed to check staff email")
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, entity.ErrStaffNotFound) {
			return nil, entity.NotFound(err, "staff member %s not found", id)
		}
		return nil, entity.Internal(err, "failed to get staff member")
	}

	updated := *current
	updated.FirstName = first
	updated.LastName = last
	updated.Email = email
	updated.Role = role
	if strings.TrimSpace(req.Password) != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
		if err != nil {
			return nil, entity.Internal(err, "failed to hash password")
		}
		updated.PasswordHash = string(hash)
	}

	if err := s.repo.Update(ctx, &updated); err != nil {
		switch {
		case errors.Is(err, entity.ErrStaffAlreadyExists):
			return nil, entity.Conflict(entity.ReasonDuplicate, "email %s is already registered", email).Wrap(err)
		case errors.Is(err, entity.ErrStaffNotFound):
			return nil, entity.NotFound(err, "staff member %s not found", id)
		}
		return nil, entity.Internal(err, "failed to update staff member")
	}

	logrus.WithFields(logrus.Fields{"staff_id": id, "role": role}).Info("Staff member updated")
	return &updated, nil
}

func (s *staffService) DeleteStaff(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return entity.Validation(entity.ReasonInvalidID, "invalid staff id %q", id)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, entity.ErrStaffNotFound) {
			return entity.NotFound(err, "staff member %s not found", id)
		}
		return entity.Internal(err, "failed to delete staff member")
	}
	return nil
}
