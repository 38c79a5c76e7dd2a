package patient

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/wardwatch/wardwatch/internal/domain/vitals"
	"github.com/wardwatch/wardwatch/internal/platform/db"
	"github.com/wardwatch/wardwatch/internal/platform/websocket"
)

type Service struct {
	patients Repository
	readings *vitals.Service
	tx       db.TxRunner
	pub      websocket.Publisher
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService wires the registry. pub may be nil when no live feed runs.
func NewService(patients Repository, readings *vitals.Service, tx db.TxRunner, pub websocket.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		patients: patients,
		readings: readings,
		tx:       tx,
		pub:      pub,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) publish(ctx context.Context, msgType string, p *Patient) {
	if s.pub == nil {
		return
	}
	msg, err := websocket.NewMessage(msgType, websocket.DoctorTopic(p.DoctorID), p)
	if err != nil {
		s.logger.Error().Err(err).Msg("encode patient change")
		return
	}
	if err := s.pub.Publish(ctx, msg); err != nil {
		s.logger.Warn().Err(err).Str("patient_id", p.ID.String()).Msg("publish patient change")
	}
}

// owned loads a patient and hides it from anyone but its doctor.
func (s *Service) owned(ctx context.Context, doctorID, patientID uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if p.DoctorID != doctorID {
		return nil, ErrNotFound
	}
	return p, nil
}

// AddPatient creates an Active patient and its first reading in one
// transaction. Nothing is written when either part is invalid.
func (s *Service) AddPatient(ctx context.Context, doctorID uuid.UUID, f Fields, initial vitals.Fields) (*Patient, error) {
	if err := f.Check(); err != nil {
		return nil, err
	}
	if err := initial.Check(); err != nil {
		return nil, err
	}

	now := s.now()
	p := &Patient{
		DoctorID:     doctorID,
		ActiveStatus: Active,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.apply(p)

	var reading *vitals.Reading
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.patients.Create(ctx, p); err != nil {
			return err
		}
		r, err := s.readings.RecordInitial(ctx, p.ID, initial)
		if err != nil {
			return err
		}
		reading = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.CurrentStatus = reading.Status
	p.LatestReadingID = &reading.ID
	s.logger.Info().Str("patient_id", p.ID.String()).Str("doctor_id", doctorID.String()).Msg("patient added")
	s.publish(ctx, websocket.TypePatientCreated, p)
	return p, nil
}

// UpdatePatient edits the demographic fields of an Active patient.
func (s *Service) UpdatePatient(ctx context.Context, doctorID, patientID uuid.UUID, f Fields) (*Patient, error) {
	p, err := s.owned(ctx, doctorID, patientID)
	if err != nil {
		return nil, err
	}
	if p.IsDischarged() {
		return nil, ErrDischarged
	}
	if err := f.Check(); err != nil {
		return nil, err
	}
	f.apply(p)
	p.IsEdited = true
	p.UpdatedAt = s.now()
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	if err := s.derive(ctx, []*Patient{p}); err != nil {
		return nil, err
	}
	s.publish(ctx, websocket.TypePatientUpdated, p)
	return p, nil
}

// UpdateActiveStatus discharges or re-admits a patient. Readings are left
// as they are.
func (s *Service) UpdateActiveStatus(ctx context.Context, doctorID, patientID uuid.UUID, status ActiveStatus) (*Patient, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	p, err := s.owned(ctx, doctorID, patientID)
	if err != nil {
		return nil, err
	}
	p.ActiveStatus = status
	p.UpdatedAt = s.now()
	if err := s.patients.UpdateActiveStatus(ctx, p.ID, status, p.UpdatedAt); err != nil {
		return nil, err
	}
	if err := s.derive(ctx, []*Patient{p}); err != nil {
		return nil, err
	}
	s.publish(ctx, websocket.TypePatientUpdated, p)
	return p, nil
}

// DeletePatient removes a Discharged patient and all of its readings.
func (s *Service) DeletePatient(ctx context.Context, doctorID, patientID uuid.UUID) error {
	p, err := s.owned(ctx, doctorID, patientID)
	if err != nil {
		return err
	}
	if !p.IsDischarged() {
		return ErrNotDischarged
	}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.readings.DeleteForPatient(ctx, p.ID); err != nil {
			return err
		}
		return s.patients.Delete(ctx, p.ID)
	})
	if err != nil {
		return err
	}
	s.logger.Info().Str("patient_id", p.ID.String()).Str("doctor_id", doctorID.String()).Msg("patient deleted")
	s.publish(ctx, websocket.TypePatientDeleted, p)
	return nil
}

// GetPatient returns a patient with its current status.
func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.derive(ctx, []*Patient{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// ListPatients returns a doctor's patients newest first.
func (s *Service) ListPatients(ctx context.Context, doctorID uuid.UUID, status ActiveStatus, r Range, search string, limit, offset int) ([]*Patient, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, ErrInvalidStatus
	}
	from, to, err := r.Bounds(s.now())
	if err != nil {
		return nil, 0, invalid(err.Error())
	}
	q := ListQuery{
		DoctorID: doctorID,
		Status:   status,
		Search:   strings.TrimSpace(search),
		From:     from,
		To:       to,
	}
	items, total, err := s.patients.List(ctx, q, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if err := s.derive(ctx, items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Stats counts a doctor's patients by lifecycle and current health.
func (s *Service) Stats(ctx context.Context, doctorID uuid.UUID) (*Stats, error) {
	items, err := s.patients.ListAll(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if err := s.derive(ctx, items); err != nil {
		return nil, err
	}
	return &Stats{
		Total:      len(items),
		Active:     lo.CountBy(items, func(p *Patient) bool { return p.ActiveStatus == Active }),
		Discharged: lo.CountBy(items, func(p *Patient) bool { return p.ActiveStatus == Discharged }),
		Critical:   lo.CountBy(items, func(p *Patient) bool { return p.CurrentStatus == vitals.StatusCritical }),
	}, nil
}

// derive fills CurrentStatus and LatestReadingID. A patient without
// readings is Normal.
func (s *Service) derive(ctx context.Context, items []*Patient) error {
	if len(items) == 0 {
		return nil
	}
	latest, err := s.readings.LatestForPatients(ctx, lo.Map(items, func(p *Patient, _ int) uuid.UUID { return p.ID }))
	if err != nil {
		return err
	}
	for _, p := range items {
		p.CurrentStatus = vitals.StatusNormal
		p.LatestReadingID = nil
		if r, ok := latest[p.ID]; ok {
			p.CurrentStatus = r.Status
			id := r.ID
			p.LatestReadingID = &id
		}
	}
	return nil
}
