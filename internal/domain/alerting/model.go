package alerting

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wardwatch/wardwatch/internal/domain/vitals"
	"github.com/wardwatch/wardwatch/internal/platform/notification"
)

// TypeHealthStatusChange is the only kind of family notification.
const TypeHealthStatusChange = "health_status_change"

const noContactMessage = "Status updated, but no family contact is registered"

var ErrDischarged = errors.New("Cannot update health status of discharged patients!")

// NotificationLog records one family notification attempt. Results are
// nil for channels that had no recipient.
type NotificationLog struct {
	ID             uuid.UUID                   `db:"id" json:"id"`
	PatientID      uuid.UUID                   `db:"patient_id" json:"patientId"`
	DoctorID       uuid.UUID                   `db:"doctor_id" json:"doctorId"`
	Type           string                      `db:"type" json:"type"`
	OldStatus      vitals.Status               `db:"old_status" json:"oldStatus"`
	NewStatus      vitals.Status               `db:"new_status" json:"newStatus"`
	EmailRecipient string                      `db:"email_recipient" json:"emailRecipient,omitempty"`
	SMSRecipient   string                      `db:"sms_recipient" json:"smsRecipient,omitempty"`
	EmailResult    *notification.ChannelResult `db:"email_result" json:"email"`
	SMSResult      *notification.ChannelResult `db:"sms_result" json:"sms"`
	Success        bool                        `db:"success" json:"success"`
	ErrorMessage   string                      `db:"error_message" json:"error,omitempty"`
	CreatedAt      time.Time                   `db:"created_at" json:"createdAt"`
}

// Result is what a status change reports back to the doctor.
type Result struct {
	PatientID uuid.UUID             `json:"patientId"`
	OldStatus vitals.Status         `json:"oldStatus"`
	NewStatus vitals.Status         `json:"newStatus"`
	Changed   bool                  `json:"changed"`
	Notified  bool                  `json:"notified"`
	Outcome   *notification.Outcome `json:"results,omitempty"`
	Log       *NotificationLog      `json:"log,omitempty"`
	Message   string                `json:"message"`
}
