package vitals

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Listener is told about every committed reading write.
type Listener func(ctx context.Context, ch Change)

type Service struct {
	readings Repository
	patients Patients
	logger   zerolog.Logger
	now      func() time.Time

	mu        sync.RWMutex
	listeners []Listener
}

func NewService(readings Repository, patients Patients, logger zerolog.Logger) *Service {
	return &Service{
		readings: readings,
		patients: patients,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// OnChange registers l. Listeners run synchronously, in registration order,
// after the write succeeds.
func (s *Service) OnChange(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

func (s *Service) emit(ctx context.Context, ch Change) {
	s.mu.RLock()
	ls := append([]Listener(nil), s.listeners...)
	s.mu.RUnlock()
	for _, l := range ls {
		l(ctx, ch)
	}
}

// owned loads the patient and checks that doctorID may write its readings.
func (s *Service) owned(ctx context.Context, doctorID, patientID uuid.UUID) (*PatientRef, error) {
	ref, err := s.patients.PatientRef(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if ref.DoctorID != doctorID {
		return nil, ErrPatientNotFound
	}
	if ref.Discharged {
		return nil, ErrDischarged
	}
	return ref, nil
}

// Patient returns the owner reference of a patient for access checks.
func (s *Service) Patient(ctx context.Context, patientID uuid.UUID) (*PatientRef, error) {
	return s.patients.PatientRef(ctx, patientID)
}

// RecordInitial stores the first reading of a patient created in the same
// transaction. It does not notify listeners.
func (s *Service) RecordInitial(ctx context.Context, patientID uuid.UUID, f Fields) (*Reading, error) {
	if err := f.Check(); err != nil {
		return nil, err
	}
	r := &Reading{PatientID: patientID, RecordedAt: s.now()}
	f.apply(r)
	if err := s.readings.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) AddReading(ctx context.Context, doctorID, patientID uuid.UUID, f Fields) (*Reading, error) {
	if err := f.Check(); err != nil {
		return nil, err
	}
	ref, err := s.owned(ctx, doctorID, patientID)
	if err != nil {
		return nil, err
	}
	r := &Reading{PatientID: patientID, RecordedAt: s.now()}
	f.apply(r)
	if err := s.readings.Create(ctx, r); err != nil {
		return nil, err
	}
	s.emit(ctx, Change{Kind: ChangeAdded, DoctorID: ref.DoctorID, Reading: r})
	return r, nil
}

// ListReadings returns a patient's readings, newest first.
func (s *Service) ListReadings(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Reading, int, error) {
	return s.readings.ListByPatient(ctx, patientID, limit, offset)
}

// Latest returns the most recent reading or ErrNoHealthData.
func (s *Service) Latest(ctx context.Context, patientID uuid.UUID) (*Reading, error) {
	r, err := s.readings.Latest(ctx, patientID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNoHealthData
	}
	return r, err
}

// LatestForPatients returns the latest reading of each patient that has one.
func (s *Service) LatestForPatients(ctx context.Context, patientIDs []uuid.UUID) (map[uuid.UUID]*Reading, error) {
	return s.readings.LatestForPatients(ctx, patientIDs)
}

// editable loads a reading and checks that it is the latest one of a patient
// doctorID may still write to.
func (s *Service) editable(ctx context.Context, doctorID, readingID uuid.UUID) (*Reading, *PatientRef, error) {
	r, err := s.readings.GetByID(ctx, readingID)
	if err != nil {
		return nil, nil, err
	}
	ref, err := s.owned(ctx, doctorID, r.PatientID)
	if err != nil {
		return nil, nil, err
	}
	latest, err := s.readings.Latest(ctx, r.PatientID)
	if err != nil {
		return nil, nil, err
	}
	if latest.ID != r.ID {
		return nil, nil, ErrNotLatest
	}
	return r, ref, nil
}

// UpdateReading rewrites the latest reading. The timestamp is always reset
// to now, so an edit moves the reading to the present.
func (s *Service) UpdateReading(ctx context.Context, doctorID, readingID uuid.UUID, f Fields) (*Reading, error) {
	if err := f.Check(); err != nil {
		return nil, err
	}
	r, ref, err := s.editable(ctx, doctorID, readingID)
	if err != nil {
		return nil, err
	}
	f.apply(r)
	r.RecordedAt = s.now()
	if err := s.readings.Update(ctx, r); err != nil {
		return nil, err
	}
	s.emit(ctx, Change{Kind: ChangeUpdated, DoctorID: ref.DoctorID, Reading: r})
	return r, nil
}

// UpdateStatusOnly flips the status of the latest reading and stamps it now.
func (s *Service) UpdateStatusOnly(ctx context.Context, doctorID, readingID uuid.UUID, status Status) (*Reading, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	r, ref, err := s.editable(ctx, doctorID, readingID)
	if err != nil {
		return nil, err
	}
	r.Status = status
	r.RecordedAt = s.now()
	if err := s.readings.Update(ctx, r); err != nil {
		return nil, err
	}
	s.emit(ctx, Change{Kind: ChangeStatus, DoctorID: ref.DoctorID, Reading: r})
	return r, nil
}

// DeleteForPatient removes every reading of a patient. Callers gate this on
// the patient's lifecycle.
func (s *Service) DeleteForPatient(ctx context.Context, patientID uuid.UUID) (int64, error) {
	n, err := s.readings.DeleteByPatient(ctx, patientID)
	if err != nil {
		return 0, err
	}
	s.logger.Debug().Str("patient_id", patientID.String()).Int64("count", n).Msg("readings deleted")
	return n, nil
}
