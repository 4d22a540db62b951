package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/snarg/transcribe-api/internal/config"
)

type fakeConn bool

func (f fakeConn) IsConnected() bool { return bool(f) }

func TestStatusHandler(t *testing.T) {
	tests := []struct {
		name       string
		keyPresent bool
		events     ConnChecker
		wantKey    string
		wantMQTT   string
	}{
		{"configured", true, nil, "Configured", "not_configured"},
		{"missing", false, nil, "Missing", "not_configured"},
		{"mqtt_ok", true, fakeConn(true), "Configured", "ok"},
		{"mqtt_down", true, fakeConn(false), "Configured", "disconnected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewStatusHandler("openai", "whisper-1", tt.keyPresent, tt.events, "v1.2.3", time.Now().Add(-90*time.Second))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			var resp StatusResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Message != "Transcription service is running" {
				t.Errorf("Message = %q", resp.Message)
			}
			if resp.APIKeyStatus != tt.wantKey {
				t.Errorf("APIKeyStatus = %q, want %q", resp.APIKeyStatus, tt.wantKey)
			}
			if resp.Provider != "openai" || resp.Model != "whisper-1" || resp.Version != "v1.2.3" {
				t.Errorf("resp = %+v", resp)
			}
			if resp.UptimeSeconds < 90 {
				t.Errorf("UptimeSeconds = %d, want >= 90", resp.UptimeSeconds)
			}
			if resp.Checks["mqtt"] != tt.wantMQTT {
				t.Errorf("mqtt check = %q, want %q", resp.Checks["mqtt"], tt.wantMQTT)
			}
		})
	}
}

func TestStatusNeverLeaksKey(t *testing.T) {
	env := newTestEnv(t, &stubProvider{})
	rec := env.do(httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "sk-test") {
		t.Error("status response leaks the API key")
	}
	if !strings.Contains(rec.Body.String(), `"api_key_status":"Configured"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestRouterReportsCredentialStatus(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{"google_default_credentials", config.Config{Provider: config.ProviderGoogle}, "Configured"},
		{"google_key", config.Config{Provider: config.ProviderGoogle, GoogleAPIKey: "AIza"}, "Configured"},
		{"openai_missing", config.Config{Provider: config.ProviderOpenAI}, "Missing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.MaxUploadBytes = 1 << 20
			env := newTestEnvWithConfig(t, &stubProvider{}, &tt.cfg)
			rec := env.do(httptest.NewRequest("GET", "/", nil))

			var resp StatusResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.APIKeyStatus != tt.want {
				t.Errorf("api_key_status = %q, want %q", resp.APIKeyStatus, tt.want)
			}
		})
	}
}
