package api

import (
	"github.com/leafsii/redis-demo/internal/scenario"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type HealthDTO struct {
	Status    string `json:"status"`
	LastError string `json:"last_error,omitempty"`
}

type ScenarioListDTO struct {
	Scenarios []scenario.Info `json:"scenarios"`
}

// RunDTO is the outcome of one POST to the run endpoints
type RunDTO struct {
	Passed  bool              `json:"passed"`
	Reports []scenario.Report `json:"reports"`
}

type HistoryDTO struct {
	Reports []scenario.Report `json:"reports"`
}
