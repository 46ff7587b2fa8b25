package models

import "time"

// CadencePoint is one export of tick-cadence measurements. TPS and SPT cover
// everything recorded since the previous point.
type CadencePoint struct {
	Timestamp time.Time      `json:"timestamp"`
	ServerID  int            `json:"server_id,omitempty"`
	TPS       ExtremaSummary `json:"tps"`
	SPT       ExtremaSummary `json:"spt"`
	Health    HealthSnapshot `json:"health"`
}
