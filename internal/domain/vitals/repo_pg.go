package vitals

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wardwatch/wardwatch/internal/platform/db"
)

type readingRepoPG struct{ pool *pgxpool.Pool }

func NewReadingRepoPG(pool *pgxpool.Pool) Repository {
	return &readingRepoPG{pool: pool}
}

func (r *readingRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const readingCols = `id, patient_id, heart_rate, blood_pressure, oxygen, temperature, status, recorded_at`

func (r *readingRepoPG) scanReading(row pgx.Row) (*Reading, error) {
	var v Reading
	err := row.Scan(&v.ID, &v.PatientID, &v.HeartRate, &v.BloodPressure, &v.Oxygen,
		&v.Temperature, &v.Status, &v.RecordedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &v, err
}

func (r *readingRepoPG) Create(ctx context.Context, v *Reading) error {
	v.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO vital_readings (id, patient_id, heart_rate, blood_pressure, oxygen,
			temperature, status, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		v.ID, v.PatientID, v.HeartRate, v.BloodPressure, v.Oxygen,
		v.Temperature, v.Status, v.RecordedAt)
	return err
}

func (r *readingRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Reading, error) {
	return r.scanReading(r.conn(ctx).QueryRow(ctx, `SELECT `+readingCols+` FROM vital_readings WHERE id = $1`, id))
}

func (r *readingRepoPG) Latest(ctx context.Context, patientID uuid.UUID) (*Reading, error) {
	return r.scanReading(r.conn(ctx).QueryRow(ctx, `
		SELECT `+readingCols+` FROM vital_readings
		WHERE patient_id = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1`, patientID))
}

func (r *readingRepoPG) LatestForPatients(ctx context.Context, patientIDs []uuid.UUID) (map[uuid.UUID]*Reading, error) {
	out := make(map[uuid.UUID]*Reading, len(patientIDs))
	if len(patientIDs) == 0 {
		return out, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT DISTINCT ON (patient_id) `+readingCols+` FROM vital_readings
		WHERE patient_id = ANY($1)
		ORDER BY patient_id, recorded_at DESC, id DESC`, patientIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		v, err := r.scanReading(rows)
		if err != nil {
			return nil, err
		}
		out[v.PatientID] = v
	}
	return out, rows.Err()
}

func (r *readingRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Reading, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM vital_readings WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+readingCols+` FROM vital_readings
		WHERE patient_id = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Reading
	for rows.Next() {
		v, err := r.scanReading(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, v)
	}
	return items, total, rows.Err()
}

func (r *readingRepoPG) Update(ctx context.Context, v *Reading) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE vital_readings SET heart_rate=$2, blood_pressure=$3, oxygen=$4, temperature=$5,
			status=$6, recorded_at=$7
		WHERE id = $1`,
		v.ID, v.HeartRate, v.BloodPressure, v.Oxygen, v.Temperature, v.Status, v.RecordedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *readingRepoPG) DeleteByPatient(ctx context.Context, patientID uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM vital_readings WHERE patient_id = $1`, patientID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
