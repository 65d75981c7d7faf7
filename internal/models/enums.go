package models

import "strings"

// StreamStatus represents the health of the camera feeds behind a snapshot
type StreamStatus string

const (
	// Stream statuses
	StreamOK           StreamStatus = "ok"
	StreamDegraded     StreamStatus = "degraded"
	StreamError        StreamStatus = "error"
	StreamInitializing StreamStatus = "initializing"
)

// ParseStreamStatus normalizes a raw status string. A pipeline that omits the status
// is taken as ok; unknown values map to initializing.
func ParseStreamStatus(raw string) StreamStatus {
	switch StreamStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case "", StreamOK:
		return StreamOK
	case StreamDegraded:
		return StreamDegraded
	case StreamError:
		return StreamError
	default:
		return StreamInitializing
	}
}

// Healthy reports whether the planner may use the trend path for this status
func (s StreamStatus) Healthy() bool {
	return s == StreamOK
}

// QueueState represents the direction of customer load
type QueueState string

const (
	// Queue states
	QueueSurging     QueueState = "surging"
	QueueSteady      QueueState = "steady"
	QueueFalling     QueueState = "falling"
	QueueUnavailable QueueState = "unavailable"
)

// Urgency represents how strongly the UI should emphasize a recommendation
type Urgency string

const (
	// Urgency levels
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// FeedbackAction represents what the operator did with a recommendation
type FeedbackAction string

const (
	// Feedback actions
	ActionAccept   FeedbackAction = "accept"
	ActionOverride FeedbackAction = "override"
	ActionIgnore   FeedbackAction = "ignore"
)

// ParseFeedbackAction validates a raw action string
func ParseFeedbackAction(raw string) (FeedbackAction, bool) {
	switch FeedbackAction(strings.ToLower(strings.TrimSpace(raw))) {
	case ActionAccept:
		return ActionAccept, true
	case ActionOverride:
		return ActionOverride, true
	case ActionIgnore:
		return ActionIgnore, true
	}
	return "", false
}

// OutcomeStatus represents the retrospective evaluation state of a record
type OutcomeStatus string

const (
	// Outcome statuses. Evaluated and insufficient data are terminal.
	OutcomePending          OutcomeStatus = "pending"
	OutcomeEvaluated        OutcomeStatus = "evaluated"
	OutcomeInsufficientData OutcomeStatus = "insufficient_data"
)

// Calibration labels for forecast bias
const (
	CalibrationUnder = "under-predicting"
	CalibrationOver  = "over-predicting"
	CalibrationWell  = "well-calibrated"
)
