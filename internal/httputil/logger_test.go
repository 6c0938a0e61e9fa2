package httputil

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
)

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	app := fiber.New()
	app.Use(RequestLogger(logger))
	app.Get("/ping", func(c fiber.Ctx) error {
		return c.SendString("pong")
	})

	req := httptest.NewRequest("GET", "/ping", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if buf.Len() == 0 {
		t.Error("expected a log line to be written")
	}
}

func TestRequestLoggerLevelForStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	app := fiber.New()
	app.Use(RequestLogger(logger))
	app.Get("/err", func(c fiber.Ctx) error {
		return c.Status(500).SendString("boom")
	})

	req := httptest.NewRequest("GET", "/err", nil)
	if _, err := app.Test(req); err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"level":"error"`)) {
		t.Error("expected error-level log line for 5xx response")
	}
}
