package service

import (
	"context"
	"errors"
	"strings"

	"github.com/ds124wfegd/WB_L3/parking/internal/database"
	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
	"github.com/google/uuid"
)

type subscriptionService struct {
	subs    database.SubscriptionRepository
	tickets database.TicketRepository
}

func NewSubscriptionService(subs database.SubscriptionRepository, tickets database.TicketRepository) SubscriptionService {
	return &subscriptionService{subs: subs, tickets: tickets}
}

// Subscribe registers a push endpoint. Admin subscriptions start watching
// every ticket that is currently taken.
func (s *subscriptionService) Subscribe(ctx context.Context, req *SubscribeRequest) (*entity.Subscription, error) {
	endpoint := strings.TrimSpace(req.Endpoint)
	if endpoint == "" {
		return nil, entity.Validation(entity.ReasonRequired, "endpoint is required")
	}

	sub := &entity.Subscription{
		ID:       uuid.New().String(),
		Role:     req.Role,
		Endpoint: endpoint,
		IsActive: true,
		Stage:    entity.StageActive,
	}

	switch req.Role {
	case entity.RoleAdmin:
		tickets, err := s.tickets.GetAll(ctx)
		if err != nil {
			return nil, entity.Internal(err, "failed to list tickets")
		}
		for _, t := range tickets {
			if t.Status != entity.TicketAvailable {
				sub.TicketCodes = append(sub.TicketCodes, t.Code)
			}
		}
	case entity.RoleUser:
		code := strings.TrimSpace(req.TicketCode)
		if code == "" {
			return nil, entity.Validation(entity.ReasonRequired, "ticketCode is required for user subscriptions")
		}
		if _, err := s.tickets.GetByCode(ctx, code); err != nil {
			if errors.Is(err, entity.ErrTicketNotFound) {
				return nil, entity.NotFound(err, "ticket %s not found", code)
			}
			return nil, entity.Internal(err, "failed to load ticket %s", code)
		}
		sub.TicketCode = code
	default:
		return nil, entity.Validation(entity.ReasonRequired, "role must be admin or user")
	}

	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, entity.Internal(err, "failed to create subscription")
	}
	return sub, nil
}
