package alerting

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wardwatch/wardwatch/internal/domain/patient"
	"github.com/wardwatch/wardwatch/internal/domain/vitals"
	"github.com/wardwatch/wardwatch/internal/platform/notification"
)

// Patients loads patients with their derived current status.
type Patients interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

// Readings persists status flips on the latest reading.
type Readings interface {
	Latest(ctx context.Context, patientID uuid.UUID) (*vitals.Reading, error)
	UpdateStatusOnly(ctx context.Context, doctorID, readingID uuid.UUID, status vitals.Status) (*vitals.Reading, error)
}

// Dispatcher sends one rendered notification on every requested channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, req notification.Request) (notification.Outcome, error)
}

type Service struct {
	patients   Patients
	readings   Readings
	dispatcher Dispatcher
	logs       LogRepository
	board      *StatusBoard
	locks      *patientLocks
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(patients Patients, readings Readings, dispatcher Dispatcher, logs LogRepository, board *StatusBoard, logger zerolog.Logger) *Service {
	return &Service{
		patients:   patients,
		readings:   readings,
		dispatcher: dispatcher,
		logs:       logs,
		board:      board,
		locks:      newPatientLocks(),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ChangeStatus moves a patient's current health status to next and tells
// the family. The steps are ordered so that nothing is sent unless the new
// status was stored:
//
//  1. discharged patients are rejected before any write
//  2. an unchanged status is a no-op
//  3. the board shows next tentatively, then the latest reading is flipped
//  4. a failed write replays the prior status on the board
//  5. with a family contact, one dispatch goes out and one log is written
//
// Steps 1 to 4 run under the patient's lock.
func (s *Service) ChangeStatus(ctx context.Context, doctorID, patientID uuid.UUID, next vitals.Status) (*Result, error) {
	if !next.Valid() {
		return nil, vitals.ErrInvalidStatus
	}
	p, res, err := s.flip(ctx, doctorID, patientID, next)
	if err != nil || !res.Changed {
		return res, err
	}

	if !p.HasFamilyContact() {
		res.Message = noContactMessage
		return res, nil
	}

	entry := s.notify(ctx, p, res.OldStatus, next)
	res.Log = entry
	res.Outcome = &notification.Outcome{Email: entry.EmailResult, SMS: entry.SMSResult}
	res.Notified = entry.Success
	if entry.Success {
		res.Message = "Status updated and family notified"
	} else {
		res.Message = "Status updated, but the notification could not be delivered"
	}
	return res, nil
}

// flip reads the current status and persists next while holding the
// patient's lock, so of two identical requests only one sees a change.
func (s *Service) flip(ctx context.Context, doctorID, patientID uuid.UUID, next vitals.Status) (*patient.Patient, *Result, error) {
	unlock := s.locks.lock(patientID)
	defer unlock()

	p, err := s.patients.GetPatient(ctx, patientID)
	if err != nil {
		return nil, nil, err
	}
	if p.DoctorID != doctorID {
		return nil, nil, patient.ErrNotFound
	}
	if p.IsDischarged() {
		return nil, nil, ErrDischarged
	}

	prior := p.CurrentStatus
	if prior == "" {
		prior = vitals.StatusNormal
	}
	res := &Result{PatientID: p.ID, OldStatus: prior, NewStatus: next}
	if prior == next {
		res.Message = "Status unchanged"
		return p, res, nil
	}

	t := s.board.Apply(ctx, p.ID, prior, next)
	if err := s.persist(ctx, p, next); err != nil {
		s.board.Rollback(ctx, t)
		return nil, nil, err
	}
	s.board.Commit(t)
	res.Changed = true
	return p, res, nil
}

func (s *Service) persist(ctx context.Context, p *patient.Patient, next vitals.Status) error {
	var readingID uuid.UUID
	if p.LatestReadingID != nil {
		readingID = *p.LatestReadingID
	} else {
		latest, err := s.readings.Latest(ctx, p.ID)
		if err != nil {
			return err
		}
		readingID = latest.ID
	}
	_, err := s.readings.UpdateStatusOnly(ctx, p.DoctorID, readingID, next)
	return err
}

// notify dispatches once and writes exactly one log entry whatever happens.
func (s *Service) notify(ctx context.Context, p *patient.Patient, prior, next vitals.Status) *NotificationLog {
	now := s.now()
	req := notification.Request{
		TemplateID: notification.TransitionTemplate(string(prior), string(next)),
		Data: map[string]string{
			"patient_name":  p.Name,
			"patient_phone": p.Phone,
			"old_status":    string(prior),
			"new_status":    string(next),
			"time":          now.Format("02 Jan 2006, 03:04 PM MST"),
		},
		EmailTo: p.FamilyEmail,
		SMSTo:   p.FamilyPhone,
	}

	entry := &NotificationLog{
		PatientID:      p.ID,
		DoctorID:       p.DoctorID,
		Type:           TypeHealthStatusChange,
		OldStatus:      prior,
		NewStatus:      next,
		EmailRecipient: p.FamilyEmail,
		SMSRecipient:   p.FamilyPhone,
		CreatedAt:      now,
	}

	out, err := s.safeDispatch(ctx, req)
	entry.EmailResult = out.Email
	entry.SMSResult = out.SMS
	entry.Success = out.Succeeded()
	switch {
	case err != nil:
		entry.ErrorMessage = err.Error()
	case !entry.Success:
		entry.ErrorMessage = out.Errors()
	}

	if err := s.logs.Create(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("patient_id", p.ID.String()).Msg("write notification log")
	}
	s.logger.Info().
		Str("patient_id", p.ID.String()).
		Str("old_status", string(prior)).
		Str("new_status", string(next)).
		Bool("success", entry.Success).
		Msg("family notification")
	return entry
}

// safeDispatch never lets a dispatcher failure escape, panics included.
func (s *Service) safeDispatch(ctx context.Context, req notification.Request) (out notification.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("dispatcher panicked")
			out = notification.Outcome{}
			err = errors.New("notification dispatch failed")
		}
	}()
	return s.dispatcher.Dispatch(ctx, req)
}

// ListLogs returns a patient's notification history, newest first.
func (s *Service) ListLogs(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*NotificationLog, int, error) {
	return s.logs.ListByPatient(ctx, patientID, limit, offset)
}

// Patient exposes the owner lookup for handlers.
func (s *Service) Patient(ctx context.Context, id uuid.UUID) (*patient.Patient, error) {
	return s.patients.GetPatient(ctx, id)
}
