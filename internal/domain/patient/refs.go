package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/wardwatch/wardwatch/internal/domain/vitals"
)

// Refs answers ownership questions about patients for the reading log and
// the live feed without depending on the full Service.
type Refs struct {
	patients Repository
}

func NewRefs(patients Repository) *Refs {
	return &Refs{patients: patients}
}

func (r *Refs) PatientRef(ctx context.Context, id uuid.UUID) (*vitals.PatientRef, error) {
	p, err := r.patients.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, vitals.ErrPatientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &vitals.PatientRef{ID: p.ID, DoctorID: p.DoctorID, Discharged: p.IsDischarged()}, nil
}

func (r *Refs) DoctorOfPatient(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	p, err := r.patients.GetByID(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	return p.DoctorID, nil
}
