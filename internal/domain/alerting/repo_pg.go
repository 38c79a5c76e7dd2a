package alerting

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wardwatch/wardwatch/internal/platform/db"
)

type logRepoPG struct{ pool *pgxpool.Pool }

func NewLogRepoPG(pool *pgxpool.Pool) LogRepository {
	return &logRepoPG{pool: pool}
}

func (r *logRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const logCols = `id, patient_id, doctor_id, type, old_status, new_status, email_recipient,
	sms_recipient, email_result, sms_result, success, error_message, created_at`

func (r *logRepoPG) scanLog(row pgx.Row) (*NotificationLog, error) {
	var l NotificationLog
	err := row.Scan(&l.ID, &l.PatientID, &l.DoctorID, &l.Type, &l.OldStatus, &l.NewStatus,
		&l.EmailRecipient, &l.SMSRecipient, &l.EmailResult, &l.SMSResult, &l.Success,
		&l.ErrorMessage, &l.CreatedAt)
	return &l, err
}

func (r *logRepoPG) Create(ctx context.Context, l *NotificationLog) error {
	l.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO notification_logs (id, patient_id, doctor_id, type, old_status, new_status,
			email_recipient, sms_recipient, email_result, sms_result, success, error_message, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		l.ID, l.PatientID, l.DoctorID, l.Type, l.OldStatus, l.NewStatus,
		l.EmailRecipient, l.SMSRecipient, l.EmailResult, l.SMSResult, l.Success, l.ErrorMessage, l.CreatedAt)
	return err
}

func (r *logRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*NotificationLog, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM notification_logs WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+logCols+` FROM notification_logs
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*NotificationLog
	for rows.Next() {
		l, err := r.scanLog(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, l)
	}
	return items, total, rows.Err()
}
