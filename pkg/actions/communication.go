package actions

import (
	"context"

	"github.com/dukex/trellis/pkg/models"
)

func (e *Executor) sendEmail(ctx context.Context, config *models.SendEmailConfig) (map[string]any, error) {
	if e.ports.Communication == nil {
		return nil, portMissing("communication")
	}

	return e.bounded(ctx, 0, func(ctx context.Context) (map[string]any, error) {
		return e.ports.Communication.SendEmail(ctx, config.To, config.Subject, config.Body)
	})
}

func (e *Executor) sendSMS(ctx context.Context, config *models.SendSMSConfig) (map[string]any, error) {
	if e.ports.Communication == nil {
		return nil, portMissing("communication")
	}

	return e.bounded(ctx, 0, func(ctx context.Context) (map[string]any, error) {
		return e.ports.Communication.SendSMS(ctx, config.To, config.Body)
	})
}
