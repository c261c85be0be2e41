package http

import (
	"encoding/json"
	"net/http"
	"time"
)

// ComponentStatus is the health of one dependency.
type ComponentStatus struct {
	Status    string      `json:"status"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// HealthCheckResponse represents the health check response structure
type HealthCheckResponse struct {
	Code    int                        `json:"code"`
	Message string                     `json:"message"`
	Data    map[string]ComponentStatus `json:"data"`
}

// Check reports whether a component is healthy, with a message and optional details.
type Check func(r *http.Request) (healthy bool, message string, details interface{})

// NewHealthHandler answers GET with 200 when every check passes and 503 otherwise.
func NewHealthHandler(checks map[string]Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"code":    405,
				"message": "method not allowed",
			})
			return
		}

		response := HealthCheckResponse{
			Code:    200,
			Message: "success",
			Data:    make(map[string]ComponentStatus, len(checks)),
		}

		for name, check := range checks {
			healthy, message, details := check(r)
			status := ComponentStatus{
				Status:    "healthy",
				Message:   message,
				Details:   details,
				Timestamp: time.Now().Unix(),
			}
			if !healthy {
				status.Status = "unhealthy"
				response.Code = 503
			}
			response.Data[name] = status
		}

		if response.Code == 503 {
			response.Message = "service unavailable"
		}

		w.WriteHeader(response.Code)
		json.NewEncoder(w).Encode(response)
	}
}
