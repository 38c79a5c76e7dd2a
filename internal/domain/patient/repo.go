package patient

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	UpdateActiveStatus(ctx context.Context, id uuid.UUID, status ActiveStatus, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, q ListQuery, limit, offset int) ([]*Patient, int, error)
	ListAll(ctx context.Context, doctorID uuid.UUID) ([]*Patient, error)
}
