package vitals

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/wardwatch/wardwatch/internal/platform/websocket"
)

// PublishChanges forwards reading changes to the patient's live topic.
func PublishChanges(pub websocket.Publisher, logger zerolog.Logger) Listener {
	return func(ctx context.Context, ch Change) {
		if pub == nil || ch.Reading == nil {
			return
		}
		msg, err := websocket.NewMessage(websocket.TypeReadingChanged, websocket.PatientTopic(ch.Reading.PatientID), ch)
		if err != nil {
			logger.Error().Err(err).Msg("encode reading change")
			return
		}
		if err := pub.Publish(ctx, msg); err != nil {
			logger.Warn().Err(err).Str("patient_id", ch.Reading.PatientID.String()).Msg("publish reading change")
		}
	}
}
