package alerting

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wardwatch/wardwatch/internal/domain/vitals"
	"github.com/wardwatch/wardwatch/internal/platform/websocket"
)

// Tentative identifies one optimistic status change on the board.
type Tentative struct {
	PatientID uuid.UUID     `json:"patientId"`
	Version   uint64        `json:"version"`
	Prior     vitals.Status `json:"prior"`
	Status    vitals.Status `json:"status"`
}

type boardEntry struct {
	status  vitals.Status
	pending *Tentative
}

// StatusBoard holds the displayed health status of each patient. A status
// change is applied tentatively before it is persisted; the prior value is
// kept so a failed write can be replayed.
type StatusBoard struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*boardEntry
	version uint64
	pub     websocket.Publisher
	logger  zerolog.Logger
}

func NewStatusBoard(pub websocket.Publisher, logger zerolog.Logger) *StatusBoard {
	return &StatusBoard{
		entries: make(map[uuid.UUID]*boardEntry),
		pub:     pub,
		logger:  logger,
	}
}

func (b *StatusBoard) entry(patientID uuid.UUID) *boardEntry {
	e, ok := b.entries[patientID]
	if !ok {
		e = &boardEntry{status: vitals.StatusNormal}
		b.entries[patientID] = e
	}
	return e
}

// Apply shows next for the patient. prior is recorded before the board is
// mutated.
func (b *StatusBoard) Apply(ctx context.Context, patientID uuid.UUID, prior, next vitals.Status) Tentative {
	b.mu.Lock()
	b.version++
	t := Tentative{PatientID: patientID, Version: b.version, Prior: prior, Status: next}
	e := b.entry(patientID)
	e.status = next
	e.pending = &t
	b.mu.Unlock()

	b.broadcast(ctx, websocket.TypeStatusTentative, t)
	return t
}

// Commit marks t as persisted. A newer tentative change stays pending.
func (b *StatusBoard) Commit(t Tentative) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entry(t.PatientID)
	if e.pending != nil && e.pending.Version == t.Version {
		e.pending = nil
	}
}

// Rollback replays t's prior status unless a newer change replaced it. It
// reports whether the prior value was restored.
func (b *StatusBoard) Rollback(ctx context.Context, t Tentative) bool {
	b.mu.Lock()
	e := b.entry(t.PatientID)
	if e.pending == nil || e.pending.Version != t.Version {
		b.mu.Unlock()
		return false
	}
	e.status = t.Prior
	e.pending = nil
	b.mu.Unlock()

	b.broadcast(ctx, websocket.TypeStatusRolledBack, t)
	return true
}

// Status returns the displayed status and whether it is still unconfirmed.
func (b *StatusBoard) Status(patientID uuid.UUID) (vitals.Status, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[patientID]
	if !ok {
		return vitals.StatusNormal, false
	}
	return e.status, e.pending != nil
}

// Observe merges a committed reading change. While a tentative change is
// in flight the displayed value is left alone.
func (b *StatusBoard) Observe(_ context.Context, ch vitals.Change) {
	if ch.Reading == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entry(ch.Reading.PatientID)
	if e.pending != nil {
		return
	}
	e.status = ch.Reading.Status
}

func (b *StatusBoard) broadcast(ctx context.Context, msgType string, t Tentative) {
	if b.pub == nil {
		return
	}
	msg, err := websocket.NewMessage(msgType, websocket.PatientTopic(t.PatientID), t)
	if err != nil {
		b.logger.Error().Err(err).Msg("encode status change")
		return
	}
	if err := b.pub.Publish(ctx, msg); err != nil {
		b.logger.Warn().Err(err).Str("patient_id", t.PatientID.String()).Msg("publish status change")
	}
}
