package api

import (
	"bytes"
	"encoding/json"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status       string `json:"status"`
	SessionCount int    `json:"session_count"`
}

// TermResponse is one entry of a session's term list.
type TermResponse struct {
	ID        string  `json:"id"`
	Value     float64 `json:"value"`
	Error     float64 `json:"error"`
	Unit      string  `json:"unit"`
	Operation string  `json:"operation"`
	// Display is the chip text, e.g. "[3.2 cm ± 0.5 cm]".
	Display string `json:"display"`
}

// ResultResponse is the aggregated result with every display string.
type ResultResponse struct {
	Value            float64          `json:"value"`
	Error            float64          `json:"error"`
	Unit             string           `json:"unit"`
	RelativeErrorPct float64          `json:"relative_error_pct"`
	Headline         string           `json:"headline"`
	DetailValue      string           `json:"detail_value"`
	DetailError      string           `json:"detail_error"`
	Relative         string           `json:"relative"`
	Formula          string           `json:"formula"`
	Diagnostics      []DiagnosticHint `json:"diagnostics"`
}

// SessionResponse is the payload for GET /api/v1/sessions/{id} and the data
// of every WebSocket push.
type SessionResponse struct {
	ID        string         `json:"id"`
	Terms     []TermResponse `json:"terms"`
	Result    ResultResponse `json:"result"`
	CreatedAt string         `json:"created_at"` // RFC3339Nano
	UpdatedAt string         `json:"updated_at"` // RFC3339Nano
	Revision  uint64         `json:"revision"`
}

// RemoveResponse is the payload for DELETE /api/v1/sessions/{id}/terms/{termID}.
// Removed is false when the term was the last one and was kept.
type RemoveResponse struct {
	Removed bool            `json:"removed"`
	Session SessionResponse `json:"session"`
}

// TermRequest is the body of POST /api/v1/sessions/{id}/terms. Value and
// Error are free text like the form fields; JSON numbers are accepted too.
type TermRequest struct {
	Value     FreeText `json:"value" schema:"value"`
	Error     FreeText `json:"error" schema:"error"`
	Unit      string   `json:"unit" schema:"unit"`
	Operation string   `json:"operation" schema:"operation"`
}

// OperationRequest is the body of PATCH /api/v1/sessions/{id}/terms/{termID}.
type OperationRequest struct {
	Operation string `json:"operation" schema:"operation"`
}

// EvaluateRequest is the body of POST /api/v1/evaluate.
type EvaluateRequest struct {
	Terms []TermRequest `json:"terms"`
}

// EvaluateResponse is the stateless counterpart of SessionResponse.
type EvaluateResponse struct {
	Terms  []TermResponse `json:"terms"`
	Result ResultResponse `json:"result"`
}

// FreeText holds a user-typed field. It decodes from a JSON string or a JSON
// number and is parsed later, so that bad input yields a validation error
// rather than a decode failure.
type FreeText string

// UnmarshalJSON accepts "3.2", 3.2 and null.
func (f *FreeText) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FreeText(s)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*f = FreeText(n.String())
	}
	return nil
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
