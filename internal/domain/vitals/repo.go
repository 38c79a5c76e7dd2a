package vitals

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Reading) error
	GetByID(ctx context.Context, id uuid.UUID) (*Reading, error)
	Latest(ctx context.Context, patientID uuid.UUID) (*Reading, error)
	LatestForPatients(ctx context.Context, patientIDs []uuid.UUID) (map[uuid.UUID]*Reading, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Reading, int, error)
	Update(ctx context.Context, r *Reading) error
	DeleteByPatient(ctx context.Context, patientID uuid.UUID) (int64, error)
}

// Patients resolves the patient that owns a reading.
type Patients interface {
	PatientRef(ctx context.Context, id uuid.UUID) (*PatientRef, error)
}
