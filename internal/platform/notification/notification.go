// Package notification delivers email and SMS messages through pluggable
// senders and renders the message templates used across the service.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ---------------------------------------------------------------------------
// Channels and messages
// ---------------------------------------------------------------------------

// Channel is a delivery medium.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

var (
	ErrEmailNotConfigured = errors.New("SMTP credentials not configured. Please set SMTP_USER and SMTP_PASSWORD environment variables.")
	ErrSMSNotConfigured   = errors.New("SMS gateway credentials not configured. Please set TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER.")
)

// Email is one outbound email.
type Email struct {
	To       string
	ReplyTo  string
	Subject  string
	HTMLBody string
	TextBody string
}

// EmailSender delivers an email and returns the provider's message id.
type EmailSender interface {
	SendEmail(ctx context.Context, msg Email) (messageID string, err error)
}

// SMSSender delivers a text message and returns the provider's message id.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) (messageID string, err error)
}

// UnconfiguredEmail stands in when SMTP settings are absent so callers still
// get a per-channel failure instead of a nil sender.
type UnconfiguredEmail struct{}

func (UnconfiguredEmail) SendEmail(context.Context, Email) (string, error) {
	return "", ErrEmailNotConfigured
}

// UnconfiguredSMS stands in when the SMS gateway is not configured.
type UnconfiguredSMS struct{}

func (UnconfiguredSMS) SendSMS(context.Context, string, string) (string, error) {
	return "", ErrSMSNotConfigured
}

// ---------------------------------------------------------------------------
// Results
// ---------------------------------------------------------------------------

// ChannelResult reports a single delivery attempt.
type ChannelResult struct {
	Success   bool   `json:"success"`
	Recipient string `json:"recipient,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Outcome holds per-channel results. A nil result means the channel was not
// attempted because no contact was supplied for it.
type Outcome struct {
	Email *ChannelResult `json:"email"`
	SMS   *ChannelResult `json:"sms"`
}

// Attempted lists the channels that were tried.
func (o Outcome) Attempted() []Channel {
	var out []Channel
	if o.Email != nil {
		out = append(out, ChannelEmail)
	}
	if o.SMS != nil {
		out = append(out, ChannelSMS)
	}
	return out
}

// Delivered lists the channels that succeeded.
func (o Outcome) Delivered() []Channel {
	var out []Channel
	if o.Email != nil && o.Email.Success {
		out = append(out, ChannelEmail)
	}
	if o.SMS != nil && o.SMS.Success {
		out = append(out, ChannelSMS)
	}
	return out
}

// Succeeded is true when at least one channel delivered.
func (o Outcome) Succeeded() bool { return len(o.Delivered()) > 0 }

// Errors joins the failure messages of every failed channel.
func (o Outcome) Errors() string {
	var msgs []string
	if o.Email != nil && !o.Email.Success {
		msgs = append(msgs, "email: "+o.Email.Error)
	}
	if o.SMS != nil && !o.SMS.Success {
		msgs = append(msgs, "sms: "+o.SMS.Error)
	}
	return strings.Join(msgs, "; ")
}

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

// Request asks for one rendered template to go out on every channel that has
// a recipient. Empty recipients are skipped.
type Request struct {
	TemplateID string
	Data       map[string]string
	EmailTo    string
	ReplyTo    string
	SMSTo      string
}

// Dispatcher renders templates and fans them out to the configured senders.
// Channels are attempted concurrently and never affect each other.
type Dispatcher struct {
	email       EmailSender
	sms         SMSSender
	templates   *TemplateEngine
	countryCode string
	timeout     time.Duration
	logger      zerolog.Logger
}

func NewDispatcher(email EmailSender, sms SMSSender, templates *TemplateEngine, countryCode string, logger zerolog.Logger) *Dispatcher {
	if email == nil {
		email = UnconfiguredEmail{}
	}
	if sms == nil {
		sms = UnconfiguredSMS{}
	}
	return &Dispatcher{
		email:       email,
		sms:         sms,
		templates:   templates,
		countryCode: countryCode,
		timeout:     30 * time.Second,
		logger:      logger,
	}
}

// SendEmail renders templateID and sends it to a single address.
func (d *Dispatcher) SendEmail(ctx context.Context, templateID string, data map[string]string, to, replyTo string) (*ChannelResult, error) {
	rendered, err := d.templates.Render(templateID, data)
	if err != nil {
		return nil, err
	}
	res := d.sendEmail(ctx, rendered, to, replyTo)
	if !res.Success {
		return res, errors.New(res.Error)
	}
	return res, nil
}

// Dispatch renders req.TemplateID once and attempts every channel with a
// recipient. It never returns an error for delivery failures; those are in
// the Outcome. Only an unknown template is an error.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Outcome, error) {
	rendered, err := d.templates.Render(req.TemplateID, req.Data)
	if err != nil {
		return Outcome{}, err
	}

	var (
		out Outcome
		g   errgroup.Group
	)
	if req.EmailTo != "" {
		g.Go(func() error {
			out.Email = d.sendEmail(ctx, rendered, req.EmailTo, req.ReplyTo)
			return nil
		})
	}
	if req.SMSTo != "" {
		g.Go(func() error {
			out.SMS = d.sendSMS(ctx, rendered, req.SMSTo)
			return nil
		})
	}
	_ = g.Wait()

	d.logger.Info().
		Str("template", req.TemplateID).
		Interface("attempted", out.Attempted()).
		Interface("delivered", out.Delivered()).
		Msg("notification dispatched")
	return out, nil
}

func (d *Dispatcher) sendEmail(ctx context.Context, r Rendered, to, replyTo string) (res *ChannelResult) {
	res = &ChannelResult{Recipient: to}
	defer recoverInto(res, d.logger, ChannelEmail)

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	id, err := d.email.SendEmail(ctx, Email{
		To:       to,
		ReplyTo:  replyTo,
		Subject:  r.Subject,
		HTMLBody: r.HTMLBody,
		TextBody: r.Text,
	})
	if err != nil {
		d.logger.Warn().Err(err).Msg("email delivery failed")
		res.Error = err.Error()
		return res
	}
	res.Success = true
	res.MessageID = id
	return res
}

func (d *Dispatcher) sendSMS(ctx context.Context, r Rendered, to string) (res *ChannelResult) {
	number := NormalizePhone(to, d.countryCode)
	res = &ChannelResult{Recipient: number}
	defer recoverInto(res, d.logger, ChannelSMS)

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	id, err := d.sms.SendSMS(ctx, number, r.Text)
	if err != nil {
		d.logger.Warn().Err(err).Msg("sms delivery failed")
		res.Error = err.Error()
		return res
	}
	res.Success = true
	res.MessageID = id
	return res
}

// recoverInto turns a sender panic into a failed channel result.
func recoverInto(res *ChannelResult, logger zerolog.Logger, ch Channel) {
	if r := recover(); r != nil {
		logger.Error().Str("channel", string(ch)).Str("panic", fmt.Sprintf("%v", r)).Msg("sender panicked")
		res.Success = false
		res.MessageID = ""
		res.Error = fmt.Sprintf("%s sender failed: %v", ch, r)
	}
}

// NormalizePhone prefixes numbers lacking a leading "+" with countryCode.
func NormalizePhone(phone, countryCode string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" || strings.HasPrefix(phone, "+") || countryCode == "" {
		return phone
	}
	return countryCode + phone
}
