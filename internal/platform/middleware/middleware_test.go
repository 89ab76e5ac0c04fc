package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newCtx(method, path string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func logEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line %q is not JSON: %v", buf.String(), err)
	}
	return entry
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		inbound  string
		wantKeep bool
	}{
		{"missing header", "", false},
		{"well formed", "booking-7f3a", true},
		{"oversized", strings.Repeat("x", 200), false},
		{"contains spaces", "a b", false},
		{"contains newline", "abc\ndef", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newCtx(http.MethodGet, "/api/v1/doctors")
			if tt.inbound != "" {
				c.Request().Header.Set(RequestIDHeader, tt.inbound)
			}

			var seen string
			err := RequestID(zerolog.Nop())(func(c echo.Context) error {
				seen = RequestIDFrom(c)
				return nil
			})(c)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			got := rec.Header().Get(RequestIDHeader)
			if got != seen {
				t.Errorf("header %q does not match context %q", got, seen)
			}
			if tt.wantKeep && got != tt.inbound {
				t.Errorf("expected %q kept, got %q", tt.inbound, got)
			}
			if !tt.wantKeep && len(got) != 36 {
				t.Errorf("expected a generated UUID, got %q", got)
			}
		})
	}
}

func TestRequestID_AttachesContextLogger(t *testing.T) {
	var buf bytes.Buffer
	c, _ := newCtx(http.MethodPost, "/api/v1/appointments")
	c.Request().Header.Set(RequestIDHeader, "req-ctx")

	_ = RequestID(zerolog.New(&buf))(func(c echo.Context) error {
		zerolog.Ctx(c.Request().Context()).Info().Msg("booked")
		return nil
	})(c)

	entry := logEntry(t, &buf)
	if entry["request_id"] != "req-ctx" || entry["message"] != "booked" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		handler    echo.HandlerFunc
		wantLevel  string
		wantStatus int
	}{
		{
			name:       "success",
			path:       "/api/v1/doctors/101/slots",
			handler:    func(c echo.Context) error { return c.String(http.StatusOK, "[]") },
			wantLevel:  "info",
			wantStatus: http.StatusOK,
		},
		{
			name:       "conflict",
			path:       "/api/v1/appointments",
			handler:    func(echo.Context) error { return echo.NewHTTPError(http.StatusConflict, "slot unavailable") },
			wantLevel:  "warn",
			wantStatus: http.StatusConflict,
		},
		{
			name:       "plain error",
			path:       "/api/v1/appointments",
			handler:    func(echo.Context) error { return errors.New("store down") },
			wantLevel:  "error",
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "health check",
			path:       "/health",
			handler:    func(c echo.Context) error { return c.NoContent(http.StatusOK) },
			wantLevel:  "debug",
			wantStatus: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			c, _ := newCtx(http.MethodPost, tt.path)
			c.Set(requestIDKey, "req-123")

			_ = Logger(zerolog.New(&buf))(tt.handler)(c)

			entry := logEntry(t, &buf)
			if entry["level"] != tt.wantLevel {
				t.Errorf("expected level %s, got %v", tt.wantLevel, entry["level"])
			}
			if entry["status"] != float64(tt.wantStatus) {
				t.Errorf("expected status %d, got %v", tt.wantStatus, entry["status"])
			}
			if entry["request_id"] != "req-123" {
				t.Errorf("expected request_id req-123, got %v", entry["request_id"])
			}
		})
	}
}

func TestLogger_ClientErrorMessage(t *testing.T) {
	var buf bytes.Buffer
	c, _ := newCtx(http.MethodPost, "/api/v1/appointments")

	err := Logger(zerolog.New(&buf))(func(echo.Context) error {
		return echo.NewHTTPError(http.StatusConflict, "slot unavailable")
	})(c)
	if err == nil {
		t.Fatal("expected handler error to propagate")
	}
	if msg, _ := logEntry(t, &buf)["error"].(string); !strings.Contains(msg, "slot unavailable") {
		t.Errorf("expected error message in log, got %q", msg)
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	c, _ := newCtx(http.MethodGet, "/api/v1/doctors/101")

	err := Recovery(zerolog.Nop())(func(echo.Context) error {
		panic("nil map")
	})(c)

	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 HTTPError, got %v", err)
	}
}

func TestRecovery_PassesThrough(t *testing.T) {
	c, rec := newCtx(http.MethodGet, "/api/v1/doctors/101")

	err := Recovery(zerolog.Nop())(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})(c)
	if err != nil || rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 without error, got %d %v", rec.Code, err)
	}
}

func TestRecovery_LogsPanic(t *testing.T) {
	var buf bytes.Buffer
	c, _ := newCtx(http.MethodPost, "/api/v1/appointments")
	c.Set(requestIDKey, "req-panic")

	_ = Recovery(zerolog.New(&buf))(func(echo.Context) error {
		panic(errors.New("nil doctor"))
	})(c)

	entry := logEntry(t, &buf)
	if entry["error"] != "nil doctor" || entry["request_id"] != "req-panic" {
		t.Errorf("unexpected log entry: %v", entry)
	}
	if entry["stack"] == nil {
		t.Error("expected stack in log entry")
	}
}

func TestRecovery_RepanicsOnAbort(t *testing.T) {
	c, _ := newCtx(http.MethodGet, "/")

	defer func() {
		if r := recover(); r != http.ErrAbortHandler {
			t.Errorf("expected ErrAbortHandler to propagate, got %v", r)
		}
	}()
	_ = Recovery(zerolog.Nop())(func(echo.Context) error {
		panic(http.ErrAbortHandler)
	})(c)
	t.Error("expected panic to propagate")
}
