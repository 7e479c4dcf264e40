package settings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/avalove/avalove-ledger/internal/domain/ledger"
)

// ChangeNotifier is told when pool-affecting configuration changes.
type ChangeNotifier interface {
	PoolChanged(ctx context.Context)
}

type Service struct {
	repo     Repository
	defaults Defaults
	notifier ChangeNotifier
}

func NewService(repo Repository, defaults Defaults, notifier ChangeNotifier) *Service {
	if defaults.PoolCeiling.IsZero() {
		defaults.PoolCeiling = DefaultPoolCeiling
	}
	return &Service{repo: repo, defaults: defaults, notifier: notifier}
}

// Load reads the current configuration. It is called on every computation so
// a changed rate takes effect without a restart.
func (s *Service) Load(ctx context.Context) (Ledger, error) {
	records, err := s.repo.List(ctx)
	if err != nil {
		return Ledger{}, err
	}

	cfg := Ledger{
		DecayRatePerSecond:  s.defaults.EarnRatePerSecond,
		TotalPoolCeiling:    s.defaults.PoolCeiling,
		ActiveWindowSeconds: int64(s.defaults.ActiveWindow / time.Second),
	}
	for _, rec := range records {
		value, err := decimal.NewFromString(strings.TrimSpace(rec.Value))
		if err != nil || value.IsNegative() {
			// Writes are validated, so this only happens after a manual DB edit.
			log.Warn().Str("key", rec.Key).Str("value", rec.Value).Msg("ignoring invalid stored setting")
			continue
		}
		switch rec.Key {
		case KeyDecayRatePerSecond:
			cfg.DecayRatePerSecond = value
			cfg.DecayRateVersion = rec.Version
		case KeyTotalPoolCeiling:
			cfg.TotalPoolCeiling = value
			cfg.CeilingVersion = rec.Version
		case KeyActiveWindowSeconds:
			cfg.ActiveWindowSeconds = value.IntPart()
		}
	}
	return cfg, nil
}

// List returns the raw stored rows.
func (s *Service) List(ctx context.Context) ([]Record, error) {
	return s.repo.List(ctx)
}

// Update validates every value before anything is written.
func (s *Service) Update(ctx context.Context, adminID uuid.UUID, updates map[string]string) (Ledger, error) {
	if len(updates) == 0 {
		return Ledger{}, fmt.Errorf("%w: no settings given", ledger.ErrInvalidConfiguration)
	}

	normalized := make(map[string]string, len(updates))
	for key, raw := range updates {
		value, err := Validate(key, raw)
		if err != nil {
			return Ledger{}, err
		}
		normalized[key] = value.String()
	}

	if _, err := s.repo.PutAll(ctx, normalized, adminID); err != nil {
		return Ledger{}, err
	}

	log.Info().Str("admin_id", adminID.String()).Interface("settings", normalized).Msg("ledger settings updated")

	if s.notifier != nil {
		s.notifier.PoolChanged(ctx)
	}
	return s.Load(ctx)
}

// Validate parses a setting value, rejecting unknown keys and negative or non-numeric values.
func Validate(key, raw string) (decimal.Decimal, error) {
	switch key {
	case KeyDecayRatePerSecond, KeyTotalPoolCeiling, KeyActiveWindowSeconds:
	default:
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s is not numeric", ledger.ErrInvalidConfiguration, key)
	}
	if value.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s must not be negative", ledger.ErrInvalidConfiguration, key)
	}
	if key == KeyActiveWindowSeconds && !value.IsInteger() {
		return decimal.Zero, fmt.Errorf("%w: %s must be whole seconds", ledger.ErrInvalidConfiguration, key)
	}
	return value, nil
}
