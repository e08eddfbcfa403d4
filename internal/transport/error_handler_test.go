package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/docdrop/internal/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStatusFromError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: fmt.Errorf("%w: bad", domain.ErrValidation), want: 400},
		{name: "ingestion", err: fmt.Errorf("%w: .exe", domain.ErrIngestionRejected), want: 400},
		{name: "unauthenticated", err: domain.ErrUnauthenticated, want: 401},
		{name: "not found", err: fmt.Errorf("%w: session", domain.ErrNotFound), want: 404},
		{name: "not removable", err: domain.ErrNotRemovable, want: 409},
		{name: "conflict", err: domain.ErrConflict, want: 409},
		{name: "fiber error", err: fiber.NewError(fiber.StatusTeapot, "tea"), want: 418},
		{name: "unknown", err: errors.New("boom"), want: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFromError(tt.err); got != tt.want {
				t.Fatalf("StatusFromError() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorHandlerHidesInternalErrors(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.InfoLevel)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.New(core))})
	app.Get("/internal", func(c *fiber.Ctx) error { return errors.New("dsn=postgres://secret") })
	app.Get("/missing", func(c *fiber.Ctx) error { return fmt.Errorf("%w: upload session x", domain.ErrNotFound) })

	status, body := get(t, app, "/internal")
	if status != 500 || body["error"] != "internal server error" {
		t.Fatalf("internal: status=%d body=%v", status, body)
	}
	if recorded.FilterMessage("request error").Len() != 1 {
		t.Fatal("internal errors should be logged at error level")
	}

	status, body = get(t, app, "/missing")
	if status != 404 || body["error"] != "not found: upload session x" {
		t.Fatalf("missing: status=%d body=%v", status, body)
	}
	if recorded.FilterMessage("request rejected").Len() != 1 {
		t.Fatal("client errors should be logged at warn level")
	}
}

func TestToHTTPError(t *testing.T) {
	t.Parallel()

	if ToHTTPError(nil) != nil {
		t.Fatal("ToHTTPError(nil) should be nil")
	}

	var fiberErr *fiber.Error
	if err := ToHTTPError(domain.ErrNotRemovable); !errors.As(err, &fiberErr) || fiberErr.Code != 409 {
		t.Fatalf("ToHTTPError(ErrNotRemovable) = %v", err)
	}

	raw := errors.New("boom")
	if err := ToHTTPError(raw); err != raw {
		t.Fatalf("ToHTTPError(raw) = %v, want the original error", err)
	}
}

func get(t *testing.T, app *fiber.App, path string) (int, map[string]any) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("json.Unmarshal() error = %v (body=%s)", err, data)
	}
	return resp.StatusCode, body
}
