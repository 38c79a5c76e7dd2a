package notification

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	ReplyTo string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu          sync.Mutex
	calls       []EmailCall
	ShouldFail  bool
	FailError   string
	ShouldPanic bool
}

func (m *MockEmailSender) SendEmail(_ context.Context, msg Email) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: msg.To, ReplyTo: msg.ReplyTo, Subject: msg.Subject, Body: msg.HTMLBody})
	if m.ShouldPanic {
		panic("mock email sender panic")
	}
	if m.ShouldFail {
		return "", errors.New(m.FailError)
	}
	return "<" + uuid.NewString() + "@mock>", nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// SMSCall records a single call to SendSMS.
type SMSCall struct {
	To   string
	Body string
}

// MockSMSSender is a test double for SMSSender.
type MockSMSSender struct {
	mu          sync.Mutex
	calls       []SMSCall
	ShouldFail  bool
	FailError   string
	ShouldPanic bool
}

func (m *MockSMSSender) SendSMS(_ context.Context, to, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SMSCall{To: to, Body: body})
	if m.ShouldPanic {
		panic("mock sms sender panic")
	}
	if m.ShouldFail {
		return "", errors.New(m.FailError)
	}
	return "SM" + uuid.NewString()[:8], nil
}

// Calls returns a copy of recorded SMS calls.
func (m *MockSMSSender) Calls() []SMSCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SMSCall, len(m.calls))
	copy(out, m.calls)
	return out
}
