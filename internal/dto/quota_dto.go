package dto

import "time"

// QuotaResponse reports the current allowance to the mobile client. A nil
// total means unlimited.
type QuotaResponse struct {
	Tier             string    `json:"tier"`
	TotalSimulations *int      `json:"total_simulations"`
	SimulationsUsed  int       `json:"simulations_used"`
	Remaining        *int      `json:"remaining"`
	PeriodStart      time.Time `json:"period_start"`
	PeriodEnd        time.Time `json:"period_end"`
}

type SimulationStartResponse struct {
	Started   bool `json:"started"`
	Remaining *int `json:"remaining"`
}
