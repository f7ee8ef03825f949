package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/questforge/engine/cache"
	"github.com/questforge/engine/engine/hook"
	"go.uber.org/zap"
)

// FeedChannel is the pub/sub channel the feed publisher writes to and the
// websocket handler subscribes to.
const FeedChannel = "feed:events"

type frame struct {
	Event string      `json:"event"`
	At    time.Time   `json:"at"`
	Data  interface{} `json:"data"`
}

// RegisterPublisher subscribes to the engine's hook events and republishes
// each one as a JSON frame on FeedChannel. Publish failures are logged and
// never interrupt the triggering operation.
func RegisterPublisher(hooks *hook.Center, ps cache.PubSub, logger *zap.Logger) {
	events := []string{
		hook.OnQuestCompleted,
		hook.OnRewardIssued,
		hook.OnTierEvolved,
		hook.OnRaffleDrawn,
		hook.OnRafflePaid,
		hook.OnRaffleClosed,
	}
	for _, ev := range events {
		hooks.Register(ev, 100, "ws-feed", func(ctx context.Context, event string, data interface{}) (interface{}, error) {
			payload, err := json.Marshal(frame{Event: event, At: time.Now().UTC(), Data: data})
			if err != nil {
				logger.Warn("feed marshal failed", zap.String("event", event), zap.Error(err))
				return data, nil
			}
			if err := ps.Publish(ctx, FeedChannel, string(payload)); err != nil {
				logger.Warn("feed publish failed", zap.String("event", event), zap.Error(err))
			}
			return data, nil
		})
	}
}
