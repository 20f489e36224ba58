package api

import "github.com/samcharles93/datenorm/internal/inference"

// ErrorBody is the payload under "error" in every failed response.
type ErrorBody struct {
	Message  string `json:"message"`
	Type     string `json:"type"`
	Param    string `json:"param,omitempty"`
	Char     string `json:"char,omitempty"`
	Position *int   `json:"position,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// DataResponse is the body of GET /.
type DataResponse struct {
	Data string `json:"data"`
}

type NormalizeResponse struct {
	Data       string      `json:"data"`
	Input      string      `json:"input"`
	Steps      int         `json:"steps"`
	StopReason string      `json:"stop_reason"`
	Tokens     []string    `json:"tokens"`
	Attention  [][]float32 `json:"attention,omitempty"`
	Model      string      `json:"model"`
	DurationMS float64     `json:"duration_ms"`
}

type HealthResponse struct {
	Status string               `json:"status"`
	Model  *inference.ModelInfo `json:"model,omitempty"`
}

type ReloadResponse struct {
	Reloaded bool                `json:"reloaded"`
	Model    inference.ModelInfo `json:"model"`
}
