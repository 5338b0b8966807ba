package record

import "time"

// Position is a raw location reading from the acquisition layer.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	Altitude  float64 `json:"altitude,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
	Bearing   float64 `json:"bearing,omitempty"`
}

// Fix is what the location source hands us: a position, the context it was
// observed under, and when it was observed. Timestamps come from the source
// and are not guaranteed to be strictly increasing.
type Fix struct {
	Position   Position  `json:"position"`
	Context    Context   `json:"context"`
	ObservedAt time.Time `json:"observed_at"`
}
