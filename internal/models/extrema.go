package models

// ExtremaSummary is a drained min/max/mean over a batch of samples
type ExtremaSummary struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
}
