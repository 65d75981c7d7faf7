package engine

import (
	"fmt"
	"time"

	"frycast/internal/models"
)

const minCookTime = 30 * time.Second

// catalog is an immutable snapshot of the applied business profile.
// It is swapped atomically on reconfiguration and never mutated.
type catalog struct {
	profile  models.BusinessProfile
	index    map[string]int
	cookTime time.Duration
}

func newCatalog(profile models.BusinessProfile, opts Options) *catalog {
	index := make(map[string]int, len(profile.MenuItems))
	for i, item := range profile.MenuItems {
		index[item.Key] = i
	}
	cookTime := opts.CookTime
	if cookTime <= 0 {
		cookTime = time.Duration(profile.DropCadenceMin * float64(time.Minute))
	}
	return &catalog{
		profile:  profile,
		index:    index,
		cookTime: max(minCookTime, cookTime),
	}
}

func (c *catalog) item(key string) (models.ItemProfile, bool) {
	i, ok := c.index[key]
	if !ok {
		return models.ItemProfile{}, false
	}
	return c.profile.MenuItems[i], true
}

func (c *catalog) items() []models.ItemProfile {
	return c.profile.MenuItems
}

// Profile returns a copy of the applied business profile
func (e *Engine) Profile() models.BusinessProfile {
	profile := e.catalog.Load().profile
	profile.MenuItems = append([]models.ItemProfile(nil), profile.MenuItems...)
	return profile
}

// Configure validates and applies a new business profile. Inventory and decision
// state are rebuilt; feedback multipliers survive for keys still in the menu.
// On a validation error nothing is changed.
func (e *Engine) Configure(profile models.BusinessProfile) (models.BusinessProfile, error) {
	normalized := models.NormalizeBusinessProfile(profile)
	if err := models.ValidateBusinessProfile(&normalized); err != nil {
		return models.BusinessProfile{}, err
	}

	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	e.apply(normalized)

	e.logger.Info().
		Str("business", normalized.BusinessName).
		Int("items", len(normalized.MenuItems)).
		Float64("drop_cadence_min", normalized.DropCadenceMin).
		Msg("business profile applied")

	return e.Profile(), nil
}

// Reset restores the sample business profile
func (e *Engine) Reset() (models.BusinessProfile, error) {
	profile, err := e.Configure(models.SampleBusinessProfile(e.opts.DropCadenceMin, e.opts.AvgTicketUSD))
	if err != nil {
		return models.BusinessProfile{}, fmt.Errorf("failed to reset business profile: %w", err)
	}
	return profile, nil
}

// apply must be called with e.mu held
func (e *Engine) apply(profile models.BusinessProfile) {
	cat := newCatalog(profile, e.opts)

	inventories := make(map[string]*inventory, len(profile.MenuItems))
	feedback := make(map[string]*FeedbackState, len(profile.MenuItems))
	for _, item := range profile.MenuItems {
		inventories[item.Key] = newInventory(item.BaselineUnits())
		if state, ok := e.feedback[item.Key]; ok {
			feedback[item.Key] = state
		} else {
			feedback[item.Key] = newFeedbackState()
		}
	}

	e.inventory = inventories
	e.feedback = feedback
	e.lastUnits = make(map[string]int, len(profile.MenuItems))
	e.clock.reset()
	e.latest = nil
	e.catalog.Store(cat)
}
