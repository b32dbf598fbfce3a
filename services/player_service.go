// services/player_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wfunc/roundtable/admission"
	"github.com/wfunc/roundtable/models"
	"github.com/wfunc/roundtable/persistence"
)

// CharacterRequest carries the fields of a new character.
type CharacterRequest struct {
	PlatformUserID string
	Name           string
	Class          string
	Backstory      string
	Stats          models.Stats
}

// Validation is the stat report shown to a DM.
type Validation struct {
	Player     models.Participant
	PointsUsed int
	Budget     int
	Err        error
}

type PlayerService struct {
	store persistence.Store
	gate  *admission.Gate
}

func NewPlayerService(store persistence.Store, gate *admission.Gate) *PlayerService {
	return &PlayerService{store: store, gate: gate}
}

// CreateCharacter registers the single character a platform user may own.
func (s *PlayerService) CreateCharacter(ctx context.Context, req CharacterRequest) (models.Participant, error) {
	name := strings.TrimSpace(req.Name)
	class := strings.TrimSpace(req.Class)
	if name == "" {
		return models.Participant{}, fmt.Errorf("%w: character name is required", ErrInvalidArgument)
	}
	if class == "" {
		return models.Participant{}, fmt.Errorf("%w: character class is required", ErrInvalidArgument)
	}
	if len(req.Stats) == 0 {
		return models.Participant{}, fmt.Errorf("%w: stats are required", ErrInvalidArgument)
	}
	if err := s.gate.CheckStatAllocation(req.Stats); err != nil {
		return models.Participant{}, err
	}

	hp := s.gate.Rules().DefaultHP
	p, err := s.store.CreatePlayer(ctx, models.Participant{
		PlatformUserID: req.PlatformUserID,
		Name:           name,
		Class:          class,
		Backstory:      strings.TrimSpace(req.Backstory),
		Stats:          req.Stats,
		HP:             hp,
		MaxHP:          hp,
		Inventory:      models.Inventory{Items: []models.Item{}},
	})
	if errors.Is(err, persistence.ErrConflict) {
		return models.Participant{}, ErrCharacterExists
	}
	return p, err
}

func (s *PlayerService) GetByPlatformUser(ctx context.Context, platformUserID string) (models.Participant, error) {
	p, err := s.store.GetPlayerByPlatformUser(ctx, platformUserID)
	if errors.Is(err, persistence.ErrRecordNotFound) {
		return models.Participant{}, ErrNoCharacter
	}
	return p, err
}

// ValidatePlayer re-checks a stored character against the current rules.
func (s *PlayerService) ValidatePlayer(ctx context.Context, platformUserID string) (Validation, error) {
	p, err := s.GetByPlatformUser(ctx, platformUserID)
	if err != nil {
		return Validation{}, err
	}
	return Validation{
		Player:     p,
		PointsUsed: admission.PointsUsed(p.Stats),
		Budget:     s.gate.Rules().PointBuyMax,
		Err:        s.gate.CheckStatAllocation(p.Stats),
	}, nil
}

// AddItem adds an item, refusing anything that would push the character
// past the encumbrance threshold.
func (s *PlayerService) AddItem(ctx context.Context, playerID uint, item models.Item) (models.Participant, error) {
	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" || item.Weight < 0 {
		return models.Participant{}, fmt.Errorf("%w: item needs a name and a non-negative weight", ErrInvalidArgument)
	}
	return s.update(ctx, playerID, func(p *models.Participant) error {
		if err := s.gate.CheckInventory(*p, item.Weight, true); err != nil {
			return err
		}
		p.Inventory.Items = append(p.Inventory.Items, item)
		return nil
	})
}

// DropItem removes the first item whose name matches, ignoring case.
func (s *PlayerService) DropItem(ctx context.Context, playerID uint, name string) (models.Participant, error) {
	name = strings.TrimSpace(name)
	return s.update(ctx, playerID, func(p *models.Participant) error {
		for i, item := range p.Inventory.Items {
			if strings.EqualFold(item.Name, name) {
				p.Inventory.Items = append(p.Inventory.Items[:i], p.Inventory.Items[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrItemNotFound, name)
	})
}

// ApplyHP heals (healing) or damages the character by amount.
func (s *PlayerService) ApplyHP(ctx context.Context, playerID uint, amount int, healing bool) (models.Participant, error) {
	if amount < 0 {
		return models.Participant{}, fmt.Errorf("%w: amount must not be negative", ErrInvalidArgument)
	}
	return s.update(ctx, playerID, func(p *models.Participant) error {
		if err := s.gate.CheckHPDelta(*p, amount, healing); err != nil {
			return err
		}
		if healing {
			p.HP += amount
		} else {
			p.HP -= amount
		}
		return nil
	})
}

func (s *PlayerService) update(ctx context.Context, playerID uint, fn func(*models.Participant) error) (models.Participant, error) {
	p, err := s.store.UpdatePlayer(ctx, playerID, fn)
	if errors.Is(err, persistence.ErrRecordNotFound) {
		return models.Participant{}, ErrNoCharacter
	}
	return p, err
}

// Capacity is the character's carrying capacity in pounds.
func (s *PlayerService) Capacity(p models.Participant) float64 {
	return s.gate.Capacity(p)
}
