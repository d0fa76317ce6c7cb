package utils

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

func TestFormatValidationErrors(t *testing.T) {
	type input struct {
		Name  string `validate:"required"`
		Level string `validate:"oneof=low high"`
	}
	err := validator.New().Struct(input{Level: "mid"})

	got := FormatValidationErrors(err)
	want := []string{
		"Field 'Name' failed on the 'required' tag",
		"Field 'Level' failed on the 'oneof' tag (value: low high)",
	}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got := FormatValidationErrors(errors.New("plain")); len(got) != 1 || got[0] != "plain" {
		t.Fatalf("plain error = %q", got)
	}
	if got := FormatValidationErrors(nil); got != nil {
		t.Fatalf("nil error = %q", got)
	}
}

func TestResponseEnvelopes(t *testing.T) {
	app := fiber.New()
	app.Get("/ok", func(c *fiber.Ctx) error { return RespondWithJSON(c, fiber.StatusCreated, fiber.Map{"id": "1"}) })
	app.Get("/err", func(c *fiber.Ctx) error { return RespondWithError(c, fiber.StatusNotFound, "missing") })

	for path, want := range map[string]struct {
		code   int
		status string
	}{"/ok": {201, "success"}, "/err": {404, "error"}} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil))
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		var env map[string]interface{}
		if err := json.Unmarshal(body, &env); err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		if resp.StatusCode != want.code || env["status"] != want.status {
			t.Fatalf("%s: code %d body %s", path, resp.StatusCode, body)
		}
	}
}
