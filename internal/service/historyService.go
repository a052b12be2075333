package service

import (
	"context"
	"errors"

	"github.com/ds124wfegd/WB_L3/parking/internal/database"
	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
)

const defaultHistoryLimit = 50

type historyService struct {
	repo database.HistoryRepository
}

func NewHistoryService(repo database.HistoryRepository) HistoryService {
	return &historyService{repo: repo}
}

func (s *historyService) GetHistory(ctx context.Context, vehicleID string) (*entity.HistoryEntry, error) {
	h, err := s.repo.GetByVehicle(ctx, vehicleID)
	if errors.Is(err, entity.ErrHistoryNotFound) {
		return nil, entity.NotFound(err, "history of vehicle %s not found", vehicleID)
	}
	if err != nil {
		return nil, entity.Internal(err, "failed to load history")
	}
	return h, nil
}

func (s *historyService) GetRecent(ctx context.Context, limit int) ([]*entity.HistoryEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultHistoryLimit
	}
	entries, err := s.repo.GetAll(ctx, limit)
	if err != nil {
		return nil, entity.Internal(err, "failed to list history")
	}
	return entries, nil
}

// Summary returns money totals across every ledger.
func (s *historyService) Summary(ctx context.Context) (*entity.HistorySummary, error) {
	sum, err := s.repo.Summary(ctx)
	if err != nil {
		return nil, entity.Internal(err, "failed to summarize history")
	}
	return sum, nil
}
