package service

import (
	"context"
	"errors"
	"strings"

	"github.com/ds124wfegd/WB_L3/parking/internal/database"
	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
	"github.com/sirupsen/logrus"
)

type ticketService struct {
	repo database.TicketRepository
}

func NewTicketService(repo database.TicketRepository) TicketService {
	return &ticketService{repo: repo}
}

// CreateTickets создает свободные билеты; коды приводятся к верхнему регистру
func (s *ticketService) CreateTickets(ctx context.Context, codes []string) ([]*entity.Ticket, error) {
	if len(codes) == 0 {
		return nil, entity.Validation(entity.ReasonRequired, "at least one ticket code is required")
	}

	seen := make(map[string]struct{}, len(codes))
	created := make([]*entity.Ticket, 0, len(codes))
	for _, raw := range codes {
		code := strings.ToUpper(strings.TrimSpace(raw))
		if code == "" {
			return created, entity.Validation(entity.ReasonRequired, "ticket code must not be empty")
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}

		t := &entity.Ticket{Code: code, Status: entity.TicketAvailable}
		if err := s.repo.Create(ctx, t); err != nil {
			if errors.Is(err, entity.ErrTicketAlreadyExists) {
				return created, entity.Conflict(entity.ReasonDuplicate, "ticket %s already exists", code).Wrap(err)
			}
			return created, entity.Internal(err, "failed to create ticket %s", code)
		}
		created = append(created, t)
	}

	logrus.WithField("count", len(created)).Info("Tickets created")
	return created, nil
}

func (s *ticketService) GetAllTickets(ctx context.Context) ([]*entity.Ticket, error) {
	tickets, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, entity.Internal(err, "failed to list tickets")
	}
	return tickets, nil
}
