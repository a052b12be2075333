package service

import (
	"context"
	"errors"

	"github.com/ds124wfegd/WB_L3/parking/config"
	"github.com/ds124wfegd/WB_L3/parking/internal/database"
	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

type settingsService struct {
	repo     database.SettingsRepository
	defaults Tariff
	seed     singleflight.Group
}

// NewSettingsService создает сервис настроек; defaults сохраняются при первом чтении.
func NewSettingsService(repo database.SettingsRepository, defaults config.TariffConfig) SettingsService {
	return &settingsService{repo: repo, defaults: NewTariff(defaults)}
}

func (s *settingsService) GetSettings(ctx context.Context) (*entity.CompanySettings, error) {
	settings, err := s.repo.Get(ctx)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, entity.ErrSettingsNotFound) {
		return nil, entity.Internal(err, "failed to get company settings")
	}

	// первое чтение: сохраняем тарифы из конфигурации
	v, err, _ := s.seed.Do("seed", func() (interface{}, error) {
		if current, err := s.repo.Get(ctx); err == nil {
			return current, nil
		}
		seeded := &entity.CompanySettings{Tariffs: s.defaults.settings()}
		if err := s.repo.Save(ctx, seeded); err != nil {
			return nil, err
		}
		logrus.WithField("settings", seeded.String()).Info("Company settings seeded with defaults")
		return seeded, nil
	})
	if err != nil {
		return nil, entity.Internal(err, "failed to seed company settings")
	}
	c := *v.(*entity.CompanySettings)
	return &c, nil
}

// UpdateSettings сохраняет только переданные разделы, остальные берутся из текущей записи.
func (s *settingsService) UpdateSettings(ctx context.Context, req *UpdateSettingsRequest) (*entity.CompanySettings, error) {
	if req.MobilePayment == nil && req.Transfer == nil && req.Tariffs == nil {
		return nil, entity.Validation(entity.ReasonRequired, "nothing to update")
	}
	if req.Tariffs != nil {
		if err := req.Tariffs.Validate(); err != nil {
			return nil, err
		}
	}

	current, err := s.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	updated := *current
	if req.MobilePayment != nil {
		updated.MobilePayment = *req.MobilePayment
	}
	if req.Transfer != nil {
		updated.Transfer = *req.Transfer
	}
	if req.Tariffs != nil {
		updated.Tariffs = *req.Tariffs
	}

	if err := s.repo.Save(ctx, &updated); err != nil {
		if errors.Is(err, entity.ErrInvalidInput) {
			return nil, entity.Validation(entity.ReasonInvalidAmount, "settings rejected by storage")
		}
		return nil, entity.Internal(err, "failed to save company settings")
	}

	logrus.WithField("settings", updated.String()).Info("Company settings updated")
	return &updated, nil
}

func (s *settingsService) CurrentTariff(ctx context.Context) (Tariff, error) {
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return Tariff{}, err
	}
	return TariffFromSettings(settings.Tariffs), nil
}
