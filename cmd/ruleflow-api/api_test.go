package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/ruleflow/pkg/cmd"
	"github.com/dukex/ruleflow/pkg/config"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	engine, err := cmd.NewEngine(t.Context(), logger, cmd.EngineOptions{
		Config:      config.Default(),
		DatabaseURL: "file://" + t.TempDir(),
		EventBus:    "gochannel",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close(context.Background()) })

	return NewAPI(logger, engine).App()
}

func get(t *testing.T, app *fiber.App, path string) (int, string) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

func TestAPI_Endpoints(t *testing.T) {
	app := setupTestApp(t)

	tests := []struct {
		name     string
		path     string
		status   int
		contains string
	}{
		{name: "root", path: "/", status: http.StatusOK, contains: "Ruleflow API"},
		{name: "liveness", path: "/livez", status: http.StatusOK, contains: "OK"},
		{name: "health", path: "/health", status: http.StatusOK, contains: "healthy"},
		{name: "metrics", path: "/metrics", status: http.StatusOK, contains: "go_goroutines"},
		{name: "empty workflows", path: "/workflows", status: http.StatusOK, contains: `"total_count":0`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := get(t, app, tt.path)
			assert.Equal(t, tt.status, status)
			assert.Contains(t, body, tt.contains)
		})
	}
}
