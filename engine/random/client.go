package random

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/questforge/engine/audit"
	"github.com/questforge/engine/engine/errs"
	"github.com/questforge/engine/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Listener is invoked after a request transitions to Fulfilled. It runs on
// the fulfillment caller's goroutine; consumers that need isolation should
// hand off internally.
type Listener func(ctx context.Context, req *model.RandomnessRequest)

// Client manages two-phase randomness: Request registers a Pending row and
// returns immediately; the oracle later calls Fulfill exactly once. A
// request never reverts to Pending.
type Client struct {
	db     *gorm.DB
	audit  *audit.Service
	logger *zap.Logger

	mu        sync.RWMutex
	listeners []Listener
}

// NewClient creates a randomness Client.
func NewClient(db *gorm.DB, auditSvc *audit.Service, logger *zap.Logger) *Client {
	return &Client{db: db, audit: auditSvc, logger: logger}
}

// AddListener registers a fulfillment listener. Listeners are called in
// registration order for every first-time fulfillment.
func (c *Client) AddListener(fn Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Request registers a Pending randomness request tagged with the consumer
// reference (e.g. a raffle round id) and returns its id. Non-blocking; the
// value arrives later through Fulfill.
func (c *Client) Request(ctx context.Context, consumerRef string) (string, error) {
	if consumerRef == "" {
		return "", fmt.Errorf("%w: consumer ref is required", errs.ErrValidation)
	}
	req := &model.RandomnessRequest{
		ID:          uuid.New().String(),
		ConsumerRef: consumerRef,
		Status:      model.RandomnessPending,
		RequestedAt: time.Now(),
	}
	if err := c.db.WithContext(ctx).Create(req).Error; err != nil {
		return "", err
	}
	c.logger.Info("randomness requested",
		zap.String("request_id", req.ID),
		zap.String("consumer_ref", consumerRef))
	return req.ID, nil
}

// Fulfill records the oracle's value for a pending request. Fulfillment is
// accepted at most once: a repeat for an already-fulfilled request is
// absorbed as a no-op and audit-logged, since oracle redelivery is an
// expected operating condition. Safe to call concurrently with unrelated
// Requests.
func (c *Client) Fulfill(ctx context.Context, requestID, value string) error {
	if _, ok := parseValue(value); !ok {
		return fmt.Errorf("%w: value must be a non-negative integer", errs.ErrValidation)
	}

	var req model.RandomnessRequest
	err := c.db.WithContext(ctx).Where("id = ?", requestID).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: randomness request %q", errs.ErrUnknownReference, requestID)
	}
	if err != nil {
		return err
	}

	if req.Status == model.RandomnessFulfilled {
		c.logger.Debug("duplicate fulfillment absorbed", zap.String("request_id", requestID))
		if c.audit != nil {
			c.audit.Log(audit.Entry{
				Action: "duplicate_fulfillment",
				Detail: map[string]interface{}{"request_id": requestID},
				Error:  errs.ErrDuplicateFulfillment.Error(),
			})
		}
		return nil
	}

	now := time.Now()
	// Guard on status so concurrent fulfillments race to a single winner.
	res := c.db.WithContext(ctx).Model(&model.RandomnessRequest{}).
		Where("id = ? AND status = ?", requestID, model.RandomnessPending).
		Updates(map[string]interface{}{
			"status":       model.RandomnessFulfilled,
			"value":        value,
			"fulfilled_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Lost the race; the other caller's value stands.
		if c.audit != nil {
			c.audit.Log(audit.Entry{
				Action: "duplicate_fulfillment",
				Detail: map[string]interface{}{"request_id": requestID},
				Error:  errs.ErrDuplicateFulfillment.Error(),
			})
		}
		return nil
	}

	req.Status = model.RandomnessFulfilled
	req.Value = value
	req.FulfilledAt = &now

	c.logger.Info("randomness fulfilled",
		zap.String("request_id", requestID),
		zap.String("consumer_ref", req.ConsumerRef))

	c.mu.RLock()
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.RUnlock()
	for _, fn := range listeners {
		fn(ctx, &req)
	}
	return nil
}

// Get returns the request with the given id.
func (c *Client) Get(ctx context.Context, requestID string) (*model.RandomnessRequest, error) {
	var req model.RandomnessRequest
	err := c.db.WithContext(ctx).Where("id = ?", requestID).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: randomness request %q", errs.ErrUnknownReference, requestID)
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// Value reduces a fulfilled value modulo n. Values are ≥128-bit unsigned
// integers carried as decimal strings, so the arithmetic goes through
// math/big.
func Value(req *model.RandomnessRequest) (*big.Int, error) {
	if req.Status != model.RandomnessFulfilled {
		return nil, fmt.Errorf("randomness request %s not fulfilled", req.ID)
	}
	v, ok := parseValue(req.Value)
	if !ok {
		return nil, fmt.Errorf("randomness request %s has malformed value", req.ID)
	}
	return v, nil
}

func parseValue(s string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}
