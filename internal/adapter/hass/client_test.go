package hass_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rainwatch/internal/adapter/hass"
	"rainwatch/internal/config"
	"rainwatch/internal/observability"
)

const testToken = "long-lived-test-token"

func newTestClient(t *testing.T, handler http.HandlerFunc) *hass.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		HassURL:     srv.URL,
		HassToken:   testToken,
		HassTimeout: 5 * time.Second,
	}
	return hass.NewClient(cfg, slog.Default(), observability.NewMetricsForTesting())
}

func stateHandler(t *testing.T, wantPath string, body any) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
		assert.Equal(t, wantPath, r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode(body))
	}
}

func TestGetState(t *testing.T) {
	client := newTestClient(t, stateHandler(t, "/api/states/binary_sensor.balcony_door", map[string]any{
		"entity_id": "binary_sensor.balcony_door",
		"state":     "on",
	}))

	state, err := client.GetState(context.Background(), "binary_sensor.balcony_door")
	require.NoError(t, err)
	assert.Equal(t, "on", state)
}

func TestGetAttribute_StringValue(t *testing.T) {
	forecast := `[{"datetime":"2025-01-01T12:05:00Z","precipitation":0.5}]`
	client := newTestClient(t, stateHandler(t, "/api/states/sensor.met_nowcast", map[string]any{
		"entity_id":  "sensor.met_nowcast",
		"state":      "ok",
		"attributes": map[string]any{"forecast_json": forecast},
	}))

	got, err := client.GetAttribute(context.Background(), "sensor.met_nowcast", "forecast_json")
	require.NoError(t, err)
	assert.Equal(t, forecast, got)
}

func TestGetAttribute_StructuredValue(t *testing.T) {
	// Some integrations store the forecast as a nested JSON array rather
	// than a string; the raw JSON text comes back either way.
	client := newTestClient(t, stateHandler(t, "/api/states/sensor.met_nowcast", map[string]any{
		"entity_id": "sensor.met_nowcast",
		"state":     "ok",
		"attributes": map[string]any{
			"forecast_json": []map[string]any{{"datetime": "2025-01-01T12:05:00Z", "precipitation": 0.5}},
		},
	}))

	got, err := client.GetAttribute(context.Background(), "sensor.met_nowcast", "forecast_json")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"datetime":"2025-01-01T12:05:00Z","precipitation":0.5}]`, got)
}

func TestGetAttribute_Absent(t *testing.T) {
	client := newTestClient(t, stateHandler(t, "/api/states/sensor.met_nowcast", map[string]any{
		"entity_id":  "sensor.met_nowcast",
		"state":      "ok",
		"attributes": map[string]any{},
	}))

	got, err := client.GetAttribute(context.Background(), "sensor.met_nowcast", "forecast_json")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetState_UnknownEntityIsAbsentNotError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	state, err := client.GetState(context.Background(), "binary_sensor.gone")
	require.NoError(t, err)
	assert.Empty(t, state)
}

func TestGetState_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.GetState(context.Background(), "binary_sensor.balcony_door")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestSend(t *testing.T) {
	var gotPath, gotMessage string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
		gotPath = r.URL.Path

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var payload map[string]string
		require.NoError(t, json.Unmarshal(body, &payload))
		gotMessage = payload["message"]

		w.WriteHeader(http.StatusOK)
	})

	err := client.Send(context.Background(), "mobile_app_alice_phone", "Rain expected in 5 minutes")
	require.NoError(t, err)
	assert.Equal(t, "/api/services/notify/mobile_app_alice_phone", gotPath)
	assert.Equal(t, "Rain expected in 5 minutes", gotMessage)
}

func TestSend_Rejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unknown service", http.StatusBadRequest)
	})

	err := client.Send(context.Background(), "mobile_app_nobody", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mobile_app_nobody")
}
