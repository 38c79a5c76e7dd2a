package alerting

import (
	"context"

	"github.com/google/uuid"
)

type LogRepository interface {
	Create(ctx context.Context, l *NotificationLog) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*NotificationLog, int, error)
}
