package vitals

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the health classification carried by a reading.
type Status string

const (
	StatusNormal   Status = "Normal"
	StatusCritical Status = "Critical"
)

func (s Status) Valid() bool {
	return s == StatusNormal || s == StatusCritical
}

var (
	ErrNotFound        = errors.New("reading not found")
	ErrPatientNotFound = errors.New("patient not found")
	ErrNoHealthData    = errors.New("No health data found for this patient")
	ErrNotLatest       = errors.New("only the latest reading can be changed")
	ErrDischarged      = errors.New("Cannot update health data of discharged patients!")
	ErrEmptyFields     = errors.New("Health fields cannot be empty. Use 0 if not needed.")
	ErrInvalidStatus   = errors.New("Status must be Normal or Critical")
)

// Reading is one vital-sign measurement of a patient.
type Reading struct {
	ID            uuid.UUID `db:"id" json:"id"`
	PatientID     uuid.UUID `db:"patient_id" json:"patientId"`
	HeartRate     *float64  `db:"heart_rate" json:"heartRate"`
	BloodPressure string    `db:"blood_pressure" json:"bloodPressure"`
	Oxygen        *float64  `db:"oxygen" json:"oxygen"`
	Temperature   *float64  `db:"temperature" json:"temperature"`
	Status        Status    `db:"status" json:"status"`
	RecordedAt    time.Time `db:"recorded_at" json:"timestamp"`
}

// Fields are the caller-supplied values of a reading.
type Fields struct {
	HeartRate     *float64 `json:"heartRate" validate:"required" msg:"Health fields cannot be empty. Use 0 if not needed."`
	BloodPressure string   `json:"bloodPressure" validate:"notblank" msg:"Health fields cannot be empty. Use 0 if not needed."`
	Oxygen        *float64 `json:"oxygen" validate:"required" msg:"Health fields cannot be empty. Use 0 if not needed."`
	Temperature   *float64 `json:"temperature" validate:"required" msg:"Health fields cannot be empty. Use 0 if not needed."`
	Status        Status   `json:"status" validate:"oneof=Normal Critical" msg:"Status must be Normal or Critical"`
}

// Check reports the first problem with f.
func (f Fields) Check() error {
	if f.HeartRate == nil || f.Oxygen == nil || f.Temperature == nil || strings.TrimSpace(f.BloodPressure) == "" {
		return ErrEmptyFields
	}
	if !f.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

func (f Fields) apply(r *Reading) {
	r.HeartRate = f.HeartRate
	r.BloodPressure = strings.TrimSpace(f.BloodPressure)
	r.Oxygen = f.Oxygen
	r.Temperature = f.Temperature
	r.Status = f.Status
}

// PatientRef is what the log needs to know about the owning patient.
type PatientRef struct {
	ID         uuid.UUID
	DoctorID   uuid.UUID
	Discharged bool
}

// ChangeKind says which write produced a Change.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeUpdated ChangeKind = "updated"
	ChangeStatus  ChangeKind = "status"
)

// Change is delivered to listeners after a reading write commits.
type Change struct {
	Kind     ChangeKind `json:"kind"`
	DoctorID uuid.UUID  `json:"doctorId"`
	Reading  *Reading   `json:"reading"`
}
