package event

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/questforge/engine/audit"
	"github.com/questforge/engine/cache"
	"github.com/questforge/engine/config"
	"github.com/questforge/engine/engine/errs"
	"github.com/questforge/engine/engine/progress"
	"github.com/questforge/engine/engine/registry"
	"github.com/questforge/engine/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const seenKeyPrefix = "evt:seen:"

// Subscriber normalizes and deduplicates inbound action notifications from
// the external ledger before handing them to the progress tracker.
//
// Dedup is two-layered: a cache SetNX fast path and the persisted SeenEvent
// table. The idempotency source of truth is still the reward ledger's unique
// key, so a redelivered event that slips past both layers is harmless.
type Subscriber struct {
	db       *gorm.DB
	cache    cache.Cache
	registry *registry.Service
	tracker  *progress.Tracker
	audit    *audit.Service
	cfg      config.EventsConfig
	logger   *zap.Logger
}

// NewSubscriber creates an event Subscriber.
func NewSubscriber(
	db *gorm.DB,
	c cache.Cache,
	reg *registry.Service,
	tracker *progress.Tracker,
	auditSvc *audit.Service,
	cfg config.EventsConfig,
	logger *zap.Logger,
) *Subscriber {
	return &Subscriber{
		db:       db,
		cache:    c,
		registry: reg,
		tracker:  tracker,
		audit:    auditSvc,
		cfg:      cfg,
		logger:   logger,
	}
}

// Submit validates, deduplicates, and applies one inbound action.
//
// Malformed payloads fail with ErrValidation and unknown quests with
// ErrUnknownReference, both before any state change. A redelivered source
// event id is an accepted no-op, not an error: replay tolerance is
// intentional. The seen-set entry is written only after the action has been
// fully applied, so a failed action stays retryable under the same id.
func (s *Subscriber) Submit(ctx context.Context, a progress.Action) (*progress.Result, error) {
	if err := s.validate(a); err != nil {
		return nil, err
	}
	if _, err := s.registry.Get(ctx, a.QuestID); err != nil {
		return nil, err
	}

	dup, err := s.alreadySeen(ctx, a.SourceEventID)
	if err != nil {
		return nil, err
	}
	if dup {
		s.absorbReplay(a)
		return &progress.Result{Duplicate: true}, nil
	}

	result, err := s.tracker.Apply(ctx, a)
	if err != nil {
		return nil, err
	}

	if err := s.markSeen(ctx, a); err != nil {
		// A concurrent delivery of the same event finished first. Its
		// effects are identical; record the replay and move on.
		if errors.Is(err, errDuplicateSeen) {
			s.absorbReplay(a)
			return result, nil
		}
		return nil, err
	}
	return result, nil
}

func (s *Subscriber) validate(a progress.Action) error {
	switch {
	case strings.TrimSpace(a.Type) == "":
		return fmt.Errorf("%w: event type is required", errs.ErrValidation)
	case strings.TrimSpace(a.Player) == "":
		return fmt.Errorf("%w: player is required", errs.ErrValidation)
	case strings.TrimSpace(a.QuestID) == "":
		return fmt.Errorf("%w: quest id is required", errs.ErrValidation)
	case strings.TrimSpace(a.SourceEventID) == "":
		return fmt.Errorf("%w: source event id is required", errs.ErrValidation)
	case a.ObservedAt.IsZero():
		return fmt.Errorf("%w: observed-at timestamp is required", errs.ErrValidation)
	case a.Score < 0 || (s.cfg.MaxScore > 0 && a.Score > s.cfg.MaxScore):
		return fmt.Errorf("%w: score %d out of range", errs.ErrValidation, a.Score)
	}
	return nil
}

func (s *Subscriber) alreadySeen(ctx context.Context, sourceEventID string) (bool, error) {
	if exists, err := s.cache.Exists(ctx, seenKeyPrefix+sourceEventID); err == nil && exists {
		return true, nil
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&model.SeenEvent{}).
		Where("source_event_id = ?", sourceEventID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

var errDuplicateSeen = errors.New("event: source event already seen")

func (s *Subscriber) markSeen(ctx context.Context, a progress.Action) error {
	seen := &model.SeenEvent{
		SourceEventID: a.SourceEventID,
		PlayerID:      a.Player,
		ObservedAt:    a.ObservedAt,
	}
	if err := s.db.WithContext(ctx).Create(seen).Error; err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate") {
			return errDuplicateSeen
		}
		return err
	}
	_ = s.cache.Set(ctx, seenKeyPrefix+a.SourceEventID, "1", s.cfg.DedupTTL)
	return nil
}

func (s *Subscriber) absorbReplay(a progress.Action) {
	s.logger.Debug("redelivered event absorbed",
		zap.String("player", a.Player),
		zap.String("source_event_id", a.SourceEventID))
	if s.audit != nil {
		s.audit.Log(audit.Entry{
			PlayerID: a.Player,
			Action:   "event_replayed",
			Detail: map[string]interface{}{
				"source_event_id": a.SourceEventID,
				"quest_id":        a.QuestID,
			},
		})
	}
}

// PruneSeen removes persisted seen-event rows older than the configured
// retention, keeping the dedup set bounded. Driven by the scheduler.
func (s *Subscriber) PruneSeen(ctx context.Context) error {
	if s.cfg.SeenRetention <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-s.cfg.SeenRetention)
	res := s.db.WithContext(ctx).
		Where("observed_at < ?", cutoff).
		Delete(&model.SeenEvent{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		s.logger.Info("seen events pruned", zap.Int64("rows", res.RowsAffected))
	}
	return nil
}
