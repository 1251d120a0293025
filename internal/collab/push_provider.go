package collab

import (
	"context"

	"go.uber.org/zap"
)

// LoggingPushProvider is the dependency-free PushProvider fallback: it
// logs the notification instead of delivering it, for environments with
// no push gateway configured.
type LoggingPushProvider struct {
	log *zap.Logger
}

func NewLoggingPushProvider(log *zap.Logger) *LoggingPushProvider {
	return &LoggingPushProvider{log: log}
}

func (p *LoggingPushProvider) Send(ctx context.Context, deviceToken string, payload PushPayload) error {
	p.log.Info("push_notification",
		zap.String("device_token", deviceToken),
		zap.String("title", payload.Title),
		zap.String("body", payload.Body),
	)
	return nil
}
