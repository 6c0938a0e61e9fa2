package httputil

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/ourchat/ourchat-server/internal/apierrors"
)

func TestSuccess(t *testing.T) {
	app := fiber.New()
	app.Get("/ok", func(c fiber.Ctx) error {
		return Success(c, fiber.Map{"hello": "world"})
	})

	req := httptest.NewRequest("GET", "/ok", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var got SuccessResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
}

func TestSuccessStatus(t *testing.T) {
	app := fiber.New()
	app.Get("/created", func(c fiber.Ctx) error {
		return SuccessStatus(c, 201, fiber.Map{"id": 1})
	})

	req := httptest.NewRequest("GET", "/created", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != 201 {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
}

func TestFail(t *testing.T) {
	app := fiber.New()
	app.Get("/fail", func(c fiber.Ctx) error {
		return Fail(c, 404, apierrors.CodeNotFound, "not found")
	})

	req := httptest.NewRequest("GET", "/fail", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var got ErrorResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Error.Code != apierrors.CodeNotFound {
		t.Errorf("code = %q, want %q", got.Error.Code, apierrors.CodeNotFound)
	}
}

func TestFailErr(t *testing.T) {
	app := fiber.New()
	app.Get("/fail-err", func(c fiber.Ctx) error {
		return FailErr(c, apierrors.New(apierrors.CodePermissionDenied, "nope"))
	})

	req := httptest.NewRequest("GET", "/fail-err", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != apierrors.HTTPStatus(apierrors.CodePermissionDenied) {
		t.Fatalf("status = %d, want %d", resp.StatusCode, apierrors.HTTPStatus(apierrors.CodePermissionDenied))
	}
}
