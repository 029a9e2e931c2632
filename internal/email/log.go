package email

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogSender logs emails instead of sending them. Useful for development.
type LogSender struct {
	Log *zap.Logger
}

func (s *LogSender) Send(_ context.Context, msg Message) (string, error) {
	id := uuid.NewString()
	s.Log.Info("email (dev mode, not sent)",
		zap.String("message_id", id),
		zap.String("from", msg.From),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Any("headers", msg.Headers),
		zap.Any("tags", msg.Tags),
	)
	return id, nil
}
