package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
)

type triggerPayload struct {
	UserID string `json:"user_id" validate:"required"`
	Title  string `json:"title" validate:"required,max=200"`
	Type   string `json:"type" validate:"required,oneof=deal_risk system"`
}

type quietHoursPayload struct {
	Start    string `json:"start" validate:"omitempty,hhmm"`
	Timezone string `json:"timezone" validate:"omitempty,timezone"`
}

func TestValidateStructSuccess(t *testing.T) {
	payload := triggerPayload{
		UserID: "rep-1",
		Title:  "Deal at risk",
		Type:   "deal_risk",
	}

	if err := ValidateStruct(payload); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateStructFailures(t *testing.T) {
	payload := triggerPayload{
		UserID: "",
		Title:  "",
		Type:   "unknown",
	}

	err := ValidateStruct(payload)
	if err == nil {
		t.Fatal("expected validation error")
	}

	vErrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	if len(vErrs) != 3 {
		t.Fatalf("expected 3 validation errors, got %d", len(vErrs))
	}

	messages := vErrs.Messages()
	if messages[0] != "user_id is required" {
		t.Fatalf("unexpected first message %q", messages[0])
	}
	if messages[2] != "type must satisfy oneof=deal_risk system" {
		t.Fatalf("unexpected oneof message %q", messages[2])
	}
}

func TestClockAndTimezoneRules(t *testing.T) {
	if err := ValidateStruct(quietHoursPayload{Start: "07:30", Timezone: "America/New_York"}); err != nil {
		t.Fatalf("expected valid quiet hours, got %v", err)
	}
	if err := ValidateStruct(quietHoursPayload{Start: "24:00"}); err == nil {
		t.Fatal("expected 24:00 to be rejected")
	}
	if err := ValidateStruct(quietHoursPayload{Start: "7:30"}); err == nil {
		t.Fatal("expected single digit hour to be rejected")
	}
	if err := ValidateStruct(quietHoursPayload{Timezone: "Mars/Olympus"}); err == nil {
		t.Fatal("expected unknown timezone to be rejected")
	}
}

func TestRegisterValidation(t *testing.T) {
	err := RegisterValidation("crm_source", func(fl validator.FieldLevel) bool {
		return fl.Field().String() == "salesforce"
	})
	if err != nil {
		t.Fatalf("register validation: %v", err)
	}

	type custom struct {
		Value string `validate:"crm_source"`
	}

	if err := ValidateStruct(custom{Value: "salesforce"}); err != nil {
		t.Fatalf("expected validation to pass, got %v", err)
	}
	if err := ValidateStruct(custom{Value: "other"}); err == nil {
		t.Fatal("expected validation to fail for non-matching value")
	}
}

func TestValidateVar(t *testing.T) {
	if err := ValidateVar("rep@example.com", "email"); err != nil {
		t.Fatalf("expected valid email, got %v", err)
	}
	if err := ValidateVar("rep-1", "email"); err == nil {
		t.Fatal("expected plain user id to be rejected")
	}
}
