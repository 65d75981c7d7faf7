package engine

import (
	"fmt"

	"frycast/internal/forecast"
	"frycast/internal/models"
)

// Feedback controller bounds
const (
	MinMultiplier = 0.75
	MaxMultiplier = 1.25
	minSignal     = 0.65
	maxSignal     = 1.35
	smoothing     = 0.18
)

// FeedbackState is the per-item operator feedback multiplier
type FeedbackState struct {
	Multiplier float64 `json:"multiplier"`
	Events     int     `json:"events"`
}

func newFeedbackState() *FeedbackState {
	return &FeedbackState{Multiplier: 1}
}

// NextMultiplier is one step of the online feedback controller
func NextMultiplier(old float64, action models.FeedbackAction, recommended, chosen int) float64 {
	signal := 1.0
	if action != models.ActionAccept {
		signal = forecast.Clamp(float64(chosen)/float64(max(1, recommended)), minSignal, maxSignal)
	}
	return forecast.Clamp((1-smoothing)*old+smoothing*signal, MinMultiplier, MaxMultiplier)
}

// FeedbackContext is what the caller needs to persist a feedback record for an item
type FeedbackContext struct {
	Item         models.ItemProfile
	Feedback     FeedbackState
	HorizonMin   float64
	AvgTicketUSD float64
	Latest       *models.ItemRecommendation
	QueueState   models.QueueState
	Projected    float64
}

// FeedbackFunc turns an item's feedback context into the recommended and chosen units
// of the event, persisting it on the way. It runs without the planning lock held, so
// ticks carry on, but no other feedback or Configure can land until it returns. An
// error leaves the multiplier untouched and is returned from ApplyFeedback as is.
type FeedbackFunc func(fc FeedbackContext) (recommended, chosen int, err error)

// ApplyFeedback looks up key, hands its context to resolve and nudges the item's
// multiplier toward the operator's choice. A record persisted by resolve always matches
// the catalog entry and multiplier it moved.
// It fails with ErrUnknownItem without calling resolve when key is not in the catalog.
func (e *Engine) ApplyFeedback(key string, action models.FeedbackAction, resolve FeedbackFunc) (FeedbackState, error) {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	fc, err := e.feedbackContext(key)
	if err != nil {
		return FeedbackState{}, err
	}

	recommended, chosen, err := resolve(fc)
	if err != nil {
		return FeedbackState{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	state := e.feedbackFor(key)
	state.Multiplier = NextMultiplier(state.Multiplier, action, recommended, chosen)
	state.Events++

	e.logger.Info().
		Str("item", key).
		Str("action", string(action)).
		Int("recommended_units", recommended).
		Int("chosen_units", chosen).
		Float64("multiplier", state.Multiplier).
		Msg("feedback applied")

	return *state, nil
}

func (e *Engine) feedbackContext(key string) (FeedbackContext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cat := e.catalog.Load()
	item, ok := cat.item(key)
	if !ok {
		return FeedbackContext{}, fmt.Errorf("%w: %s", ErrUnknownItem, key)
	}

	fc := FeedbackContext{
		Item:         item,
		Feedback:     *e.feedbackFor(key),
		HorizonMin:   e.opts.HorizonMin,
		AvgTicketUSD: cat.profile.AvgTicketUSD,
		QueueState:   models.QueueUnavailable,
	}
	if e.latest != nil {
		fc.QueueState = e.latest.Forecast.QueueState
		fc.Projected = e.latest.Forecast.ProjectedCustomers
		if rec, found := e.latest.Item(key); found {
			fc.Latest = &rec
		}
	}
	return fc, nil
}

// FeedbackStates returns a copy of every item's feedback state
func (e *Engine) FeedbackStates() map[string]FeedbackState {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]FeedbackState, len(e.feedback))
	for key, state := range e.feedback {
		out[key] = *state
	}
	return out
}

// feedbackFor must be called with e.mu held
func (e *Engine) feedbackFor(key string) *FeedbackState {
	state, ok := e.feedback[key]
	if !ok {
		state = newFeedbackState()
		e.feedback[key] = state
	}
	return state
}
