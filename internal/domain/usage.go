package domain

import "time"

// Usage is one row of transformation accounting, recorded per served
// request.
type Usage struct {
	Path            string
	Route           string
	SourceBytes     int64
	OutputBytes     int64
	PixelsProcessed int64
	ComputeTimeMS   int64
	Status          int
	CreatedAt       time.Time
}
