package reward

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/questforge/engine/audit"
	"github.com/questforge/engine/engine/errs"
	"github.com/questforge/engine/engine/hook"
	"github.com/questforge/engine/engine/issuer"
	"github.com/questforge/engine/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Ledger is the authoritative, append-only record of issued rewards. The
// unique (player, source event id) index is the single idempotency
// checkpoint for the whole reward path; upstream dedup is only a fast path.
type Ledger struct {
	db     *gorm.DB
	issuer issuer.TokenIssuer
	audit  *audit.Service
	hooks  *hook.Center
	logger *zap.Logger
}

// NewLedger creates a reward Ledger.
func NewLedger(db *gorm.DB, ti issuer.TokenIssuer, auditSvc *audit.Service, hooks *hook.Center, logger *zap.Logger) *Ledger {
	return &Ledger{db: db, issuer: ti, audit: auditSvc, hooks: hooks, logger: logger}
}

// Issue transfers value to the player and records it. A repeated call with
// the same (player, sourceEventID) is absorbed as a no-op and returns the
// existing record. The record is written only after the TokenIssuer call
// succeeds, so an ErrIssuanceFailed leaves no orphaned record and the same
// source event id can be retried safely.
func (l *Ledger) Issue(ctx context.Context, player, questID, sourceEventID string, amount int64, kind string) (*model.RewardRecord, error) {
	if player == "" || sourceEventID == "" {
		return nil, fmt.Errorf("%w: player and source event id are required", errs.ErrValidation)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", errs.ErrValidation)
	}

	var existing model.RewardRecord
	err := l.db.WithContext(ctx).
		Where("player_id = ? AND source_event_id = ?", player, sourceEventID).
		First(&existing).Error
	if err == nil {
		l.absorbDuplicate(player, sourceEventID, &existing)
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// External transfer first; the record is the proof it happened.
	if err := l.issuer.Mint(ctx, player, amount, kind); err != nil {
		l.logger.Error("token issuer mint failed",
			zap.String("player", player),
			zap.String("source_event_id", sourceEventID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", errs.ErrIssuanceFailed, err)
	}

	record := &model.RewardRecord{
		PlayerID:      player,
		SourceEventID: sourceEventID,
		QuestID:       questID,
		Amount:        amount,
		Kind:          kind,
		IssuedAt:      time.Now(),
	}
	if err := l.db.WithContext(ctx).Create(record).Error; err != nil {
		// A concurrent retry won the race; the unique index is the truth.
		if isUniqueViolation(err) {
			if ferr := l.db.WithContext(ctx).
				Where("player_id = ? AND source_event_id = ?", player, sourceEventID).
				First(&existing).Error; ferr == nil {
				l.absorbDuplicate(player, sourceEventID, &existing)
				return &existing, nil
			}
		}
		return nil, err
	}

	l.logger.Info("reward issued",
		zap.String("player", player),
		zap.String("quest_id", questID),
		zap.String("source_event_id", sourceEventID),
		zap.Int64("amount", amount),
		zap.String("kind", kind))
	if l.hooks != nil {
		_, _ = l.hooks.Trigger(ctx, hook.OnRewardIssued, record)
	}
	return record, nil
}

// Balance returns the sum of all rewards issued to the player.
func (l *Ledger) Balance(ctx context.Context, player string) (int64, error) {
	var total int64
	err := l.db.WithContext(ctx).Model(&model.RewardRecord{}).
		Where("player_id = ?", player).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}

// Records returns the player's reward history, newest first.
func (l *Ledger) Records(ctx context.Context, player string) ([]model.RewardRecord, error) {
	var records []model.RewardRecord
	err := l.db.WithContext(ctx).
		Where("player_id = ?", player).
		Order("issued_at DESC").
		Find(&records).Error
	return records, err
}

func (l *Ledger) absorbDuplicate(player, sourceEventID string, existing *model.RewardRecord) {
	l.logger.Debug("duplicate issuance absorbed",
		zap.String("player", player),
		zap.String("source_event_id", sourceEventID))
	if l.audit != nil {
		l.audit.Log(audit.Entry{
			PlayerID: player,
			Action:   "duplicate_issuance",
			Detail: map[string]interface{}{
				"source_event_id": sourceEventID,
				"record_id":       existing.ID,
			},
			Error: errs.ErrDuplicateIssuance.Error(),
		})
	}
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}
