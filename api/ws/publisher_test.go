package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/questforge/engine/engine/hook"
	"github.com/questforge/engine/model"
	"github.com/questforge/engine/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nopLogger() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

func TestRegisterPublisher_ForwardsHookEvents(t *testing.T) {
	_, ps := testutil.SetupTestCache(t)
	hooks := hook.NewCenter()
	RegisterPublisher(hooks, ps, nopLogger())

	msgs, cancel, err := ps.Subscribe(context.Background(), FeedChannel)
	require.NoError(t, err)
	defer cancel()

	record := &model.RewardRecord{PlayerID: "alice", Amount: 70, Kind: "points"}
	_, err = hooks.Trigger(context.Background(), hook.OnRewardIssued, record)
	require.NoError(t, err)

	select {
	case msg := <-msgs:
		var f frame
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &f))
		assert.Equal(t, hook.OnRewardIssued, f.Event)
		data, _ := json.Marshal(f.Data)
		assert.Contains(t, string(data), "alice")
	case <-time.After(time.Second):
		t.Fatal("no feed frame published")
	}
}

func TestRegisterPublisher_DataPassesThrough(t *testing.T) {
	_, ps := testutil.SetupTestCache(t)
	hooks := hook.NewCenter()
	RegisterPublisher(hooks, ps, nopLogger())

	// The publisher must not replace or interrupt the trigger chain.
	out, err := hooks.Trigger(context.Background(), hook.OnRaffleDrawn, "payload")
	require.NoError(t, err)
	assert.Equal(t, "payload", out)
}
