package raffle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/questforge/engine/audit"
	"github.com/questforge/engine/config"
	"github.com/questforge/engine/engine/errs"
	"github.com/questforge/engine/engine/hook"
	"github.com/questforge/engine/engine/random"
	"github.com/questforge/engine/engine/reward"
	"github.com/questforge/engine/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Manager drives the raffle round state machine:
//
//	Open → Requested → Drawn → Paid → Closed
//
// with Requested → Closed for zero-entrant rounds and a force-close escape
// hatch from any non-terminal state. Transitions are strictly forward-only.
type Manager struct {
	db     *gorm.DB
	rand   *random.Client
	ledger *reward.Ledger
	cfg    config.RaffleConfig
	audit  *audit.Service
	hooks  *hook.Center
	logger *zap.Logger

	// mu serializes round transitions. Round volume is admin-driven and
	// low, so a single mutex is enough.
	mu sync.Mutex
}

// NewManager creates a raffle Manager and registers its fulfillment
// listener on the randomness client.
func NewManager(
	db *gorm.DB,
	rand *random.Client,
	ledger *reward.Ledger,
	cfg config.RaffleConfig,
	auditSvc *audit.Service,
	hooks *hook.Center,
	logger *zap.Logger,
) *Manager {
	m := &Manager{
		db:     db,
		rand:   rand,
		ledger: ledger,
		cfg:    cfg,
		audit:  auditSvc,
		hooks:  hooks,
		logger: logger,
	}
	rand.AddListener(m.onFulfilled)
	return m
}

// StartRound opens a new raffle round.
func (m *Manager) StartRound(ctx context.Context) (*model.RaffleRound, error) {
	now := time.Now()
	round := &model.RaffleRound{
		ID:            uuid.New().String(),
		Status:        model.RaffleOpen,
		Entrants:      datatypes.JSON([]byte("[]")),
		PayoutAmount:  m.cfg.PayoutAmount,
		OpenedAt:      now,
		EntryDeadline: now.Add(m.cfg.EntryWindow),
	}
	if err := m.db.WithContext(ctx).Create(round).Error; err != nil {
		return nil, err
	}
	m.logger.Info("raffle round opened",
		zap.String("round_id", round.ID),
		zap.Time("entry_deadline", round.EntryDeadline))
	return round, nil
}

// Enter adds a player to an open round. One entry per player per round;
// a repeat entry is a no-op.
func (m *Manager) Enter(ctx context.Context, roundID, player string) error {
	if player == "" {
		return fmt.Errorf("%w: player is required", errs.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	round, err := m.get(ctx, roundID)
	if err != nil {
		return err
	}
	if round.Status != model.RaffleOpen {
		return fmt.Errorf("%w: round %s is %s, not open", errs.ErrValidation, roundID, round.Status)
	}

	entrants := decodeEntrants(round.Entrants)
	for _, e := range entrants {
		if e == player {
			return nil
		}
	}
	entrants = append(entrants, player)
	round.Entrants = encodeEntrants(entrants)
	return m.db.WithContext(ctx).Save(round).Error
}

// CloseEntries ends the entry window: the round moves to Requested and
// exactly one randomness request tagged with the round id is issued.
func (m *Manager) CloseEntries(ctx context.Context, roundID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	round, err := m.get(ctx, roundID)
	if err != nil {
		return err
	}
	if round.Status != model.RaffleOpen {
		return fmt.Errorf("%w: round %s is %s, not open", errs.ErrValidation, roundID, round.Status)
	}

	reqID, err := m.rand.Request(ctx, round.ID)
	if err != nil {
		return err
	}
	round.Status = model.RaffleRequested
	round.RandomnessID = reqID
	if err := m.db.WithContext(ctx).Save(round).Error; err != nil {
		return err
	}
	m.logger.Info("raffle entries closed",
		zap.String("round_id", round.ID),
		zap.String("randomness_id", reqID),
		zap.Int("entrants", len(decodeEntrants(round.Entrants))))
	return nil
}

// onFulfilled reacts to a randomness fulfillment tagged with one of our
// rounds. A fulfillment for a round that has already left Requested (for
// example force-closed by an operator) is recorded but has no effect.
func (m *Manager) onFulfilled(ctx context.Context, req *model.RandomnessRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var round model.RaffleRound
	err := m.db.WithContext(ctx).Where("randomness_id = ?", req.ID).First(&round).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return // not a raffle request
	}
	if err != nil {
		m.logger.Error("raffle fulfillment lookup failed", zap.Error(err))
		return
	}

	if round.Status != model.RaffleRequested {
		m.logger.Info("late randomness fulfillment ignored",
			zap.String("round_id", round.ID),
			zap.String("status", round.Status))
		if m.audit != nil {
			m.audit.Log(audit.Entry{
				Action: "raffle_late_fulfillment",
				Detail: map[string]interface{}{
					"round_id":   round.ID,
					"request_id": req.ID,
					"status":     round.Status,
				},
			})
		}
		return
	}

	entrants := decodeEntrants(round.Entrants)
	if len(entrants) == 0 {
		// Nothing to draw; the round terminates without a winner.
		now := time.Now()
		round.Status = model.RaffleClosed
		round.ClosedAt = &now
		if err := m.db.WithContext(ctx).Save(&round).Error; err != nil {
			m.logger.Error("raffle close failed", zap.String("round_id", round.ID), zap.Error(err))
			return
		}
		m.logger.Info("raffle round closed with no entrants", zap.String("round_id", round.ID))
		if m.hooks != nil {
			_, _ = m.hooks.Trigger(ctx, hook.OnRaffleClosed, &round)
		}
		return
	}

	value, err := random.Value(req)
	if err != nil {
		m.logger.Error("raffle draw failed", zap.String("round_id", round.ID), zap.Error(err))
		return
	}
	idx := new(big.Int).Mod(value, big.NewInt(int64(len(entrants)))).Int64()
	round.Winner = entrants[idx]
	round.Status = model.RaffleDrawn
	if err := m.db.WithContext(ctx).Save(&round).Error; err != nil {
		m.logger.Error("raffle draw persist failed", zap.String("round_id", round.ID), zap.Error(err))
		return
	}
	m.logger.Info("raffle winner drawn",
		zap.String("round_id", round.ID),
		zap.String("winner", round.Winner),
		zap.Int("entrants", len(entrants)))
	if m.hooks != nil {
		_, _ = m.hooks.Trigger(ctx, hook.OnRaffleDrawn, &round)
	}

	if err := m.payout(ctx, &round); err != nil {
		// The round stays Drawn; the sweep retries the payout. The synthetic
		// source event id makes the retry idempotent.
		m.logger.Error("raffle payout failed, will retry",
			zap.String("round_id", round.ID), zap.Error(err))
	}
}

// payout issues the winner's payout through the reward ledger. The synthetic
// source event id derived from the round id gives raffle payouts the same
// idempotency guarantee as quest rewards. Caller holds m.mu.
func (m *Manager) payout(ctx context.Context, round *model.RaffleRound) error {
	if round.Status != model.RaffleDrawn {
		return fmt.Errorf("%w: round %s is %s, not drawn", errs.ErrValidation, round.ID, round.Status)
	}
	sourceEventID := "raffle:" + round.ID
	if _, err := m.ledger.Issue(ctx, round.Winner, "", sourceEventID, round.PayoutAmount, "raffle"); err != nil {
		return err
	}
	round.Status = model.RafflePaid
	if err := m.db.WithContext(ctx).Save(round).Error; err != nil {
		return err
	}
	m.logger.Info("raffle payout issued",
		zap.String("round_id", round.ID),
		zap.String("winner", round.Winner),
		zap.Int64("amount", round.PayoutAmount))
	if m.hooks != nil {
		_, _ = m.hooks.Trigger(ctx, hook.OnRafflePaid, round)
	}
	return nil
}

// ForceClose is the operator escape hatch: it closes a round from any
// non-terminal state. A randomness fulfillment arriving afterwards is
// recorded by the randomness client but no longer affects the round.
func (m *Manager) ForceClose(ctx context.Context, roundID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.close(ctx, roundID)
}

func (m *Manager) close(ctx context.Context, roundID string) error {
	round, err := m.get(ctx, roundID)
	if err != nil {
		return err
	}
	if round.Status == model.RaffleClosed {
		return nil
	}
	now := time.Now()
	round.Status = model.RaffleClosed
	round.ClosedAt = &now
	if err := m.db.WithContext(ctx).Save(round).Error; err != nil {
		return err
	}
	m.logger.Info("raffle round closed", zap.String("round_id", roundID))
	if m.hooks != nil {
		_, _ = m.hooks.Trigger(ctx, hook.OnRaffleClosed, round)
	}
	return nil
}

// Sweep advances rounds that are due: open rounds past their entry deadline
// get their entries closed, drawn rounds retry payout, and paid rounds are
// closed. Driven by the scheduler.
func (m *Manager) Sweep(ctx context.Context) {
	now := time.Now()

	var due []model.RaffleRound
	if err := m.db.WithContext(ctx).
		Where("status = ? AND entry_deadline <= ?", model.RaffleOpen, now).
		Find(&due).Error; err != nil {
		m.logger.Error("raffle sweep query failed", zap.Error(err))
		return
	}
	for i := range due {
		if err := m.CloseEntries(ctx, due[i].ID); err != nil {
			m.logger.Error("raffle sweep close-entries failed",
				zap.String("round_id", due[i].ID), zap.Error(err))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var drawn []model.RaffleRound
	if err := m.db.WithContext(ctx).
		Where("status = ?", model.RaffleDrawn).
		Find(&drawn).Error; err == nil {
		for i := range drawn {
			if err := m.payout(ctx, &drawn[i]); err != nil {
				m.logger.Error("raffle sweep payout retry failed",
					zap.String("round_id", drawn[i].ID), zap.Error(err))
			}
		}
	}

	var paid []model.RaffleRound
	if err := m.db.WithContext(ctx).
		Where("status = ?", model.RafflePaid).
		Find(&paid).Error; err == nil {
		for i := range paid {
			if err := m.close(ctx, paid[i].ID); err != nil {
				m.logger.Error("raffle sweep close failed",
					zap.String("round_id", paid[i].ID), zap.Error(err))
			}
		}
	}
}

// Get returns the round with the given id. Read-only.
func (m *Manager) Get(ctx context.Context, roundID string) (*model.RaffleRound, error) {
	return m.get(ctx, roundID)
}

func (m *Manager) get(ctx context.Context, roundID string) (*model.RaffleRound, error) {
	var round model.RaffleRound
	err := m.db.WithContext(ctx).Where("id = ?", roundID).First(&round).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: raffle round %q", errs.ErrUnknownReference, roundID)
	}
	if err != nil {
		return nil, err
	}
	return &round, nil
}

func decodeEntrants(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var entrants []string
	_ = json.Unmarshal(raw, &entrants)
	return entrants
}

func encodeEntrants(entrants []string) datatypes.JSON {
	raw, _ := json.Marshal(entrants)
	return datatypes.JSON(raw)
}
