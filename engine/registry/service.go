package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/questforge/engine/engine/errs"
	"github.com/questforge/engine/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CompletionSource answers which quests a player has completed. The progress
// tracker implements it; the indirection keeps the registry free of a
// dependency on the tracker package.
type CompletionSource interface {
	CompletedSet(ctx context.Context, player string) (map[string]bool, error)
}

// Service holds the quest definitions and their prerequisite graph.
// Definitions are immutable once created; "updating" a quest means
// publishing a new id.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger

	mu          sync.RWMutex
	defs        map[string]*model.QuestDefinition
	completions CompletionSource
}

// NewService creates a quest registry and loads existing definitions.
func NewService(db *gorm.DB, logger *zap.Logger) (*Service, error) {
	svc := &Service{
		db:     db,
		logger: logger,
		defs:   make(map[string]*model.QuestDefinition),
	}
	var defs []model.QuestDefinition
	if err := db.Find(&defs).Error; err != nil {
		return nil, err
	}
	for i := range defs {
		svc.defs[defs[i].ID] = &defs[i]
	}
	return svc, nil
}

// SetCompletionSource wires in the progress tracker after construction.
func (svc *Service) SetCompletionSource(src CompletionSource) {
	svc.mu.Lock()
	svc.completions = src
	svc.mu.Unlock()
}

// Prerequisites decodes a definition's prerequisite id list.
func Prerequisites(def *model.QuestDefinition) []string {
	if len(def.Prerequisites) == 0 {
		return nil
	}
	var ids []string
	_ = json.Unmarshal(def.Prerequisites, &ids)
	return ids
}

// CreateQuest validates and persists a new quest definition. The registry is
// left unchanged on any failure.
func (svc *Service) CreateQuest(ctx context.Context, def *model.QuestDefinition) error {
	if def.ID == "" || def.Title == "" {
		return fmt.Errorf("%w: quest id and title are required", errs.ErrValidation)
	}
	if def.RequiredScore <= 0 || def.RewardPoints <= 0 {
		return fmt.Errorf("%w: required score and reward points must be positive", errs.ErrValidation)
	}
	if def.Tier < 1 {
		def.Tier = 1
	}
	if def.Version < 1 {
		def.Version = 1
	}
	if len(def.Prerequisites) == 0 {
		def.Prerequisites = datatypes.JSON([]byte("[]"))
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	if _, exists := svc.defs[def.ID]; exists {
		return fmt.Errorf("%w: quest %q already exists", errs.ErrValidation, def.ID)
	}
	for _, pre := range Prerequisites(def) {
		if pre == def.ID {
			continue // self-reference is caught by the cycle check
		}
		if _, ok := svc.defs[pre]; !ok {
			return fmt.Errorf("%w: prerequisite quest %q", errs.ErrUnknownReference, pre)
		}
	}
	if svc.wouldCycle(def) {
		return fmt.Errorf("%w: quest %q", errs.ErrCycle, def.ID)
	}

	if err := svc.db.WithContext(ctx).Create(def).Error; err != nil {
		return err
	}
	svc.defs[def.ID] = def
	svc.logger.Info("quest created",
		zap.String("quest_id", def.ID),
		zap.Int("tier", def.Tier),
		zap.Strings("prerequisites", Prerequisites(def)))
	return nil
}

// wouldCycle runs a DFS over the prerequisite graph including the candidate
// definition. Caller holds the lock.
func (svc *Service) wouldCycle(candidate *model.QuestDefinition) bool {
	prereqs := func(id string) []string {
		if id == candidate.ID {
			return Prerequisites(candidate)
		}
		if def, ok := svc.defs[id]; ok {
			return Prerequisites(def)
		}
		return nil
	}

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int)

	var visit func(id string) bool
	visit = func(id string) bool {
		switch state[id] {
		case inStack:
			return true
		case done:
			return false
		}
		state[id] = inStack
		for _, pre := range prereqs(id) {
			if visit(pre) {
				return true
			}
		}
		state[id] = done
		return false
	}
	return visit(candidate.ID)
}

// Get returns the definition for the given quest id.
func (svc *Service) Get(_ context.Context, id string) (*model.QuestDefinition, error) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	def, ok := svc.defs[id]
	if !ok {
		return nil, fmt.Errorf("%w: quest %q", errs.ErrUnknownReference, id)
	}
	return def, nil
}

// IsEligible reports whether every prerequisite of questID is in the
// player's completed set.
func (svc *Service) IsEligible(ctx context.Context, player, questID string) (bool, error) {
	def, err := svc.Get(ctx, questID)
	if err != nil {
		return false, err
	}
	prereqs := Prerequisites(def)
	if len(prereqs) == 0 {
		return true, nil
	}

	svc.mu.RLock()
	src := svc.completions
	svc.mu.RUnlock()
	if src == nil {
		return false, errors.New("registry: completion source not set")
	}

	completed, err := src.CompletedSet(ctx, player)
	if err != nil {
		return false, err
	}
	for _, pre := range prereqs {
		if !completed[pre] {
			return false, nil
		}
	}
	return true, nil
}
