package registry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/questforge/engine/engine/errs"
	"github.com/questforge/engine/model"
	"github.com/questforge/engine/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

func nopLogger() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

func def(id string, prereqs ...string) *model.QuestDefinition {
	raw, _ := json.Marshal(prereqs)
	return &model.QuestDefinition{
		ID:            id,
		Title:         "Quest " + id,
		Tier:          1,
		RequiredScore: 10,
		RewardPoints:  50,
		Prerequisites: datatypes.JSON(raw),
	}
}

// staticCompletions is a fixed CompletionSource for eligibility tests.
type staticCompletions map[string]map[string]bool

func (s staticCompletions) CompletedSet(_ context.Context, player string) (map[string]bool, error) {
	if set, ok := s[player]; ok {
		return set, nil
	}
	return map[string]bool{}, nil
}

func TestCreateQuest_Persists(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc, err := NewService(db, nopLogger())
	require.NoError(t, err)

	require.NoError(t, svc.CreateQuest(context.Background(), def("q1")))

	got, err := svc.Get(context.Background(), "q1")
	require.NoError(t, err)
	assert.Equal(t, "Quest q1", got.Title)

	var rows []model.QuestDefinition
	db.Find(&rows)
	assert.Len(t, rows, 1)
}

func TestCreateQuest_LoadedOnRestart(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc, err := NewService(db, nopLogger())
	require.NoError(t, err)
	require.NoError(t, svc.CreateQuest(context.Background(), def("q1")))

	// A new service over the same DB sees the definition.
	svc2, err := NewService(db, nopLogger())
	require.NoError(t, err)
	_, err = svc2.Get(context.Background(), "q1")
	assert.NoError(t, err)
}

func TestCreateQuest_Validation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc, err := NewService(db, nopLogger())
	require.NoError(t, err)

	bad := def("q1")
	bad.Title = ""
	assert.ErrorIs(t, svc.CreateQuest(context.Background(), bad), errs.ErrValidation)

	bad = def("q1")
	bad.RewardPoints = 0
	assert.ErrorIs(t, svc.CreateQuest(context.Background(), bad), errs.ErrValidation)
}

func TestCreateQuest_DuplicateID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc, err := NewService(db, nopLogger())
	require.NoError(t, err)

	require.NoError(t, svc.CreateQuest(context.Background(), def("q1")))
	assert.ErrorIs(t, svc.CreateQuest(context.Background(), def("q1")), errs.ErrValidation)
}

func TestCreateQuest_UnknownPrerequisite(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc, err := NewService(db, nopLogger())
	require.NoError(t, err)

	err = svc.CreateQuest(context.Background(), def("q2", "missing"))
	assert.ErrorIs(t, err, errs.ErrUnknownReference)

	// Nothing was registered.
	_, err = svc.Get(context.Background(), "q2")
	assert.ErrorIs(t, err, errs.ErrUnknownReference)
}

func TestCreateQuest_SelfReferenceIsCycle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc, err := NewService(db, nopLogger())
	require.NoError(t, err)

	err = svc.CreateQuest(context.Background(), def("q1", "q1"))
	assert.ErrorIs(t, err, errs.ErrCycle)
}

func TestCreateQuest_ChainIsNotCycle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc, err := NewService(db, nopLogger())
	require.NoError(t, err)

	require.NoError(t, svc.CreateQuest(context.Background(), def("a")))
	require.NoError(t, svc.CreateQuest(context.Background(), def("b", "a")))
	require.NoError(t, svc.CreateQuest(context.Background(), def("c", "a", "b")))
}

func TestCreateQuest_CycleRejected(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc, err := NewService(db, nopLogger())
	require.NoError(t, err)

	require.NoError(t, svc.CreateQuest(context.Background(), def("a")))
	require.NoError(t, svc.CreateQuest(context.Background(), def("b", "a")))

	// Definitions are immutable, so a cycle can only be attempted through a
	// new definition referencing an existing chain head... which fails on the
	// unknown-reference check first. Simulate a pre-seeded inconsistent graph
	// instead: a→c exists in the DB before c is defined.
	seedRaw, _ := json.Marshal([]string{"c"})
	svc.defs["a"].Prerequisites = datatypes.JSON(seedRaw)

	err = svc.CreateQuest(context.Background(), def("c", "b"))
	assert.ErrorIs(t, err, errs.ErrCycle)
}

func TestIsEligible_NoPrerequisites(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc, err := NewService(db, nopLogger())
	require.NoError(t, err)
	require.NoError(t, svc.CreateQuest(context.Background(), def("q1")))

	ok, err := svc.IsEligible(context.Background(), "alice", "q1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsEligible_GatesOnCompletedSet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc, err := NewService(db, nopLogger())
	require.NoError(t, err)
	require.NoError(t, svc.CreateQuest(context.Background(), def("a")))
	require.NoError(t, svc.CreateQuest(context.Background(), def("b", "a")))

	svc.SetCompletionSource(staticCompletions{
		"alice": {"a": true},
		"bob":   {},
	})

	ok, err := svc.IsEligible(context.Background(), "alice", "b")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsEligible(context.Background(), "bob", "b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGet_Unknown(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc, err := NewService(db, nopLogger())
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, errs.ErrUnknownReference)
}
