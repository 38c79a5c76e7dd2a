package validate

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type reading struct {
	HeartRate *float64 `json:"heartRate" validate:"required" msg:"Health fields cannot be empty. Use 0 if not needed."`
	Pressure  string   `json:"bloodPressure" validate:"notblank" msg:"Health fields cannot be empty. Use 0 if not needed."`
}

type patientForm struct {
	Name        string   `json:"name" validate:"required,nodigits" msg:"Name cannot contain numbers"`
	Phone       string   `json:"phone" validate:"phone10" msg:"Phone must be 10 digits"`
	FamilyEmail string   `json:"familyEmail" validate:"required,email" msg:"required=Family email required;email=Invalid family email"`
	FamilyPhone string   `json:"familyPhone" validate:"omitempty,phone10"`
	Gender      string   `json:"gender" validate:"oneof=Male Female Other"`
	Reading     *reading `json:"reading" validate:"required"`
}

func float(v float64) *float64 { return &v }

func validForm() patientForm {
	return patientForm{
		Name:        "Asha Rao",
		Phone:       "9876543210",
		FamilyEmail: "family@example.com",
		Gender:      "Female",
		Reading:     &reading{HeartRate: float(0), Pressure: "120/80"},
	}
}

func messageOf(t *testing.T, err error) string {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %T: %v", err, err)
	}
	if he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", he.Code)
	}
	msg, _ := he.Message.(string)
	return msg
}

func TestValidator_Messages(t *testing.T) {
	v := New()
	tests := []struct {
		name   string
		mutate func(*patientForm)
		want   string
	}{
		{"digit in name", func(f *patientForm) { f.Name = "Asha 2" }, "Name cannot contain numbers"},
		{"empty name", func(f *patientForm) { f.Name = "" }, "Name cannot contain numbers"},
		{"short phone", func(f *patientForm) { f.Phone = "98765" }, "Phone must be 10 digits"},
		{"letters in phone", func(f *patientForm) { f.Phone = "98765abcde" }, "Phone must be 10 digits"},
		{"missing family email", func(f *patientForm) { f.FamilyEmail = "" }, "Family email required"},
		{"bad family email", func(f *patientForm) { f.FamilyEmail = "family@" }, "Invalid family email"},
		{"bad family phone", func(f *patientForm) { f.FamilyPhone = "12" }, "familyPhone is invalid"},
		{"bad gender", func(f *patientForm) { f.Gender = "" }, "gender must be one of: Male Female Other"},
		{"missing heart rate", func(f *patientForm) { f.Reading.HeartRate = nil }, "Health fields cannot be empty. Use 0 if not needed."},
		{"blank pressure", func(f *patientForm) { f.Reading.Pressure = "  " }, "Health fields cannot be empty. Use 0 if not needed."},
		{"missing reading", func(f *patientForm) { f.Reading = nil }, "reading is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validForm()
			tt.mutate(&f)
			if got := messageOf(t, v.Validate(&f)); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestValidator_ValidForm(t *testing.T) {
	f := validForm()
	if err := New().Validate(&f); err != nil {
		t.Fatalf("expected valid form, got %v", err)
	}
}

func TestPickMessage(t *testing.T) {
	if got := pickMessage("plain", "email"); got != "plain" {
		t.Errorf("expected plain, got %q", got)
	}
	if got := pickMessage("required=A;email=B", "email"); got != "B" {
		t.Errorf("expected B, got %q", got)
	}
	if got := pickMessage("required=A", "email"); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestBind(t *testing.T) {
	e := echo.New()
	e.Validator = New()

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		var f patientForm
		err := Bind(e.NewContext(req, httptest.NewRecorder()), &f)
		if got := messageOf(t, err); got != "invalid request body" {
			t.Errorf("expected invalid request body, got %q", got)
		}
	})

	t.Run("validated body", func(t *testing.T) {
		body := `{"name":"Asha Rao","phone":"9876543210","familyEmail":"x@y.com","gender":"Female","reading":{"heartRate":72,"bloodPressure":"120/80"}}`
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		var f patientForm
		if err := Bind(e.NewContext(req, httptest.NewRecorder()), &f); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if *f.Reading.HeartRate != 72 {
			t.Errorf("expected heart rate 72, got %v", *f.Reading.HeartRate)
		}
	})
}

type ageForm struct {
	Age string `json:"age" validate:"required,numeric,age" msg:"required=Age must be a number;numeric=Age must be a number;age=Age must be between 0 and 150"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		age      string
		wantRule string
		wantMsg  string
	}{
		{"34", "", ""},
		{"0", "", ""},
		{"150", "", ""},
		{"151", "age", "Age must be between 0 and 150"},
		{"-2", "age", "Age must be between 0 and 150"},
		{"abc", "numeric", "Age must be a number"},
		{"", "required", "Age must be a number"},
	}
	for _, tt := range tests {
		t.Run(tt.age, func(t *testing.T) {
			err := Struct(ageForm{Age: tt.age})
			if tt.wantRule == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FieldError, got %T: %v", err, err)
			}
			if fe.Rule != tt.wantRule || fe.Message != tt.wantMsg || fe.Field != "age" {
				t.Errorf("expected age/%s %q, got %s/%s %q", tt.wantRule, tt.wantMsg, fe.Field, fe.Rule, fe.Message)
			}

			// The request path reports the same text as a 400.
			if got := messageOf(t, New().Validate(ageForm{Age: tt.age})); got != tt.wantMsg {
				t.Errorf("expected %q from Validate, got %q", tt.wantMsg, got)
			}
		})
	}
}
