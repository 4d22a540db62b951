package api

import (
	"encoding/json"
	"net/http"
	"time"
)

const statusMessage = "Transcription service is running"

type StatusResponse struct {
	Message       string            `json:"message"`
	APIKeyStatus  string            `json:"api_key_status"`
	Provider      string            `json:"provider"`
	Model         string            `json:"model"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// ConnChecker reports broker connectivity.
type ConnChecker interface {
	IsConnected() bool
}

type StatusHandler struct {
	provider   string
	model      string
	keyPresent bool
	events     ConnChecker
	version    string
	startTime  time.Time
}

// NewStatusHandler builds the GET / handler. The credential itself is never
// exposed, only whether one is configured. events may be nil.
func NewStatusHandler(provider, model string, keyPresent bool, events ConnChecker, version string, startTime time.Time) *StatusHandler {
	return &StatusHandler{
		provider:   provider,
		model:      model,
		keyPresent: keyPresent,
		events:     events,
		version:    version,
		startTime:  startTime,
	}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	keyStatus := "Missing"
	if h.keyPresent {
		keyStatus = "Configured"
	}

	checks := make(map[string]string)
	if h.events != nil {
		if h.events.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	resp := StatusResponse{
		Message:       statusMessage,
		APIKeyStatus:  keyStatus,
		Provider:      h.provider,
		Model:         h.model,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}
