package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

type testAddress struct {
	City    string `json:"city" validate:"required"`
	Country string `json:"country" validate:"required"`
}

type testRequest struct {
	Email    string      `json:"email" validate:"required,email"`
	Quantity int         `json:"quantity" validate:"gte=1,lte=100"`
	Address  testAddress `json:"shipping_address"`
}

func decodeTestRequest(body map[string]interface{}) error {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", "/test", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	var out testRequest
	return DecodeAndValidate(req, &out)
}

func validBody() map[string]interface{} {
	return map[string]interface{}{
		"email":            "ada@example.com",
		"quantity":         2,
		"shipping_address": map[string]string{"city": "London", "country": "GB"},
	}
}

// Feature: storefront, Property: required field validation works
func TestProperty_RequiredFieldValidationWorks(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("missing required fields are rejected", prop.ForAll(
		func(includeEmail bool, includeCity bool) bool {
			body := validBody()
			if !includeEmail {
				delete(body, "email")
			}
			if !includeCity {
				body["shipping_address"] = map[string]string{"country": "GB"}
			}

			err := decodeTestRequest(body)
			if includeEmail && includeCity {
				return err == nil
			}
			return err != nil && len(FormatValidationErrors(err)) > 0
		},
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: storefront, Property: quantity bounds are enforced
func TestProperty_QuantityRangeValidation(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("quantity outside 1..100 is rejected", prop.ForAll(
		func(quantity int) bool {
			body := validBody()
			body["quantity"] = quantity
			err := decodeTestRequest(body)

			if quantity >= 1 && quantity <= 100 {
				return err == nil
			}
			return err != nil
		},
		gen.IntRange(-50, 200),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestFormatValidationErrors_UsesJSONFieldPaths(t *testing.T) {
	body := validBody()
	body["email"] = "not-an-email"
	body["shipping_address"] = map[string]string{"city": "London"}

	errs := FormatValidationErrors(decodeTestRequest(body))
	fields := map[string]string{}
	for _, e := range errs {
		fields[e.Field] = e.Message
	}

	if fields["email"] != "Invalid email format" {
		t.Errorf("expected email error, got %v", fields)
	}
	if fields["shipping_address.country"] != "This field is required" {
		t.Errorf("expected nested country error, got %v", fields)
	}
}

func TestDecodeAndValidate_MalformedBody(t *testing.T) {
	req := httptest.NewRequest("POST", "/test", strings.NewReader(`{"email":`))
	var out testRequest
	err := DecodeAndValidate(req, &out)

	if !errors.Is(err, ErrMalformedBody) {
		t.Fatalf("expected ErrMalformedBody, got %v", err)
	}
	if len(FormatValidationErrors(err)) != 0 {
		t.Error("malformed bodies carry no field errors")
	}

	w := httptest.NewRecorder()
	RespondWithDecodeError(w, err)
	if w.Code != 400 {
		t.Errorf("expected 400, got %d", w.Code)
	}
}
