package models

import "time"

// Snapshot is the periodic business snapshot produced by the video pipeline
type Snapshot struct {
	Timestamp    time.Time    `json:"timestamp"`
	StreamSource string       `json:"stream_source,omitempty"`
	StreamStatus StreamStatus `json:"stream_status"`
	StreamError  string       `json:"stream_error,omitempty"`
	DriveThru    DriveThru    `json:"drive_thru"`
	InStore      InStore      `json:"in_store"`
	Aggregates   Aggregates   `json:"aggregates"`
	Performance  Performance  `json:"performance"`
}

// DriveThru holds the drive-thru camera counts
type DriveThru struct {
	CarCount      int     `json:"car_count"`
	EstPassengers float64 `json:"est_passengers"`
}

// InStore holds the counter camera counts
type InStore struct {
	PersonCount int `json:"person_count"`
}

// Aggregates holds the combined customer load
type Aggregates struct {
	TotalCustomers       float64 `json:"total_customers"`
	AvgServiceTimeSec    float64 `json:"avg_service_time_sec,omitempty"`
	EstimatedWaitTimeMin float64 `json:"estimated_wait_time_min"`
}

// Performance holds inference throughput
type Performance struct {
	ProcessingFPS float64 `json:"processing_fps"`
}

// InitializingSnapshot returns the snapshot reported before any pipeline data has arrived
func InitializingSnapshot(now time.Time) Snapshot {
	return Snapshot{
		Timestamp:    now.UTC(),
		StreamStatus: StreamInitializing,
	}
}
