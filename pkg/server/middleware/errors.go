package middleware

import (
	"encoding/json"
	"net/http"

	"mercator-hq/compass/pkg/telemetry/logging"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes an ErrorResponse carrying the request ID of r.
func WriteError(w http.ResponseWriter, r *http.Request, status int, detail ErrorDetail) {
	detail.RequestID = logging.GetRequestID(r.Context())
	if detail.RequestID == "" {
		detail.RequestID = w.Header().Get(RequestIDHeader)
	}
	WriteJSON(w, status, ErrorResponse{Error: detail})
}
