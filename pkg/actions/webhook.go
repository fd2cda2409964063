package actions

import (
	"context"
	"time"

	"github.com/dukex/trellis/pkg/models"
	"github.com/dukex/trellis/pkg/protocol"
)

func (e *Executor) sendWebhook(ctx context.Context, config *models.SendWebhookConfig) (map[string]any, error) {
	if e.ports.Webhooks == nil {
		return nil, portMissing("webhooks")
	}

	request := protocol.WebhookRequest{
		URL:     config.URL,
		Method:  config.Method,
		Headers: config.Headers,
		Body:    config.Body,
	}

	timeout := time.Duration(config.TimeoutSeconds) * time.Second

	return e.bounded(ctx, timeout, func(ctx context.Context) (map[string]any, error) {
		response, err := e.ports.Webhooks.Send(ctx, request)
		if response == nil {
			return nil, err
		}

		return map[string]any{
			"status_code": response.StatusCode,
			"body":        response.Body,
		}, err
	})
}
