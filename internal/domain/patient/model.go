package patient

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wardwatch/wardwatch/internal/domain/vitals"
	"github.com/wardwatch/wardwatch/internal/platform/validate"
)

// ActiveStatus is the lifecycle state of a patient record.
type ActiveStatus string

const (
	Active     ActiveStatus = "Active"
	Discharged ActiveStatus = "Discharged"
)

func (s ActiveStatus) Valid() bool { return s == Active || s == Discharged }

var (
	ErrNotFound      = errors.New("Patient not found!")
	ErrDischarged    = errors.New("Cannot edit discharged patients! Change status to Active first if you need to edit.")
	ErrNotDischarged = errors.New("Only discharged patients can be deleted!")
	ErrInvalidStatus = errors.New("Status must be Active or Discharged")
)

// ValidationError is rejected input with a message meant for the user.
type ValidationError struct{ Message string }

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string) error { return &ValidationError{Message: msg} }

// Patient is a person under the care of one doctor.
type Patient struct {
	ID           uuid.UUID    `db:"id" json:"id"`
	DoctorID     uuid.UUID    `db:"doctor_id" json:"doctorId"`
	Name         string       `db:"name" json:"name"`
	Age          int          `db:"age" json:"age"`
	Gender       string       `db:"gender" json:"gender"`
	Phone        string       `db:"phone" json:"phone"`
	FamilyEmail  string       `db:"family_email" json:"familyEmail"`
	FamilyPhone  string       `db:"family_phone" json:"familyPhone,omitempty"`
	ActiveStatus ActiveStatus `db:"active_status" json:"activeStatus"`
	IsEdited     bool         `db:"is_edited" json:"isEdited"`
	CreatedAt    time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updatedAt"`

	// Derived from the latest reading on read.
	CurrentStatus   vitals.Status `db:"-" json:"currentStatus"`
	LatestReadingID *uuid.UUID    `db:"-" json:"latestReadingId"`
}

func (p *Patient) IsDischarged() bool { return p.ActiveStatus == Discharged }

// HasFamilyContact reports whether anyone can be notified about the patient.
func (p *Patient) HasFamilyContact() bool {
	return p.FamilyEmail != "" || p.FamilyPhone != ""
}

// Age accepts a JSON number or a numeric string, the way form inputs
// arrive. The raw text is kept so validation can report it.
type Age string

func (a *Age) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	if s == "null" {
		s = ""
	}
	*a = Age(strings.TrimSpace(s))
	return nil
}

func (a Age) Int() (int, error) {
	f, err := strconv.ParseFloat(string(a), 64)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// Fields are the editable attributes of a patient.
type Fields struct {
	Name        string `json:"name" validate:"notblank,nodigits" msg:"Name cannot contain numbers"`
	Age         Age    `json:"age" validate:"required,numeric,age" msg:"required=Age must be a number;numeric=Age must be a number;age=Age must be between 0 and 150"`
	Gender      string `json:"gender" validate:"oneof=Male Female Other" msg:"Select gender"`
	Phone       string `json:"phone" validate:"phone10" msg:"Phone must be 10 digits"`
	FamilyEmail string `json:"familyEmail" validate:"required,email" msg:"required=Family email required;email=Invalid family email"`
	FamilyPhone string `json:"familyPhone" validate:"omitempty,phone10" msg:"Family phone must be 10 digits"`
}

// Check validates f by its tags and returns the first user-facing problem.
func (f Fields) Check() error {
	if err := validate.Struct(f); err != nil {
		return invalid(err.Error())
	}
	return nil
}

func (f Fields) apply(p *Patient) {
	p.Name = strings.TrimSpace(f.Name)
	p.Age, _ = f.Age.Int()
	p.Gender = f.Gender
	p.Phone = f.Phone
	p.FamilyEmail = strings.ToLower(strings.TrimSpace(f.FamilyEmail))
	p.FamilyPhone = f.FamilyPhone
}

// Stats summarises a doctor's patients.
type Stats struct {
	Total      int `json:"total"`
	Active     int `json:"active"`
	Discharged int `json:"discharged"`
	Critical   int `json:"critical"`
}

// ListQuery narrows a patient listing.
type ListQuery struct {
	DoctorID uuid.UUID
	Status   ActiveStatus
	Search   string
	From     time.Time
	To       time.Time
}
