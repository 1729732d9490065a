package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/semmidev/backdrop/internal/config"
	"github.com/semmidev/backdrop/internal/domain"
)

type route struct {
	name      string
	onSuccess bool
	onFailure bool
	notifier  domain.Notifier
}

// Dispatcher fans a run event out to every configured notifier that wants
// it. Degraded runs count as failures: an operator should look at them.
type Dispatcher struct {
	routes []route
}

func NewDispatcher(cfg *config.NotifyConfig) (*Dispatcher, error) {
	var routes []route

	if cfg.Telegram.Enabled {
		tg, err := NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIEndpoint)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		routes = append(routes, route{
			name:      "telegram",
			onSuccess: cfg.Telegram.OnSuccess,
			onFailure: cfg.Telegram.OnFailure,
			notifier:  tg,
		})
	}

	if cfg.Webhook.Enabled {
		wh, err := NewWebhook(cfg.Webhook.URL, cfg.Webhook.Headers)
		if err != nil {
			return nil, fmt.Errorf("webhook: %w", err)
		}
		routes = append(routes, route{
			name:      "webhook",
			onSuccess: cfg.Webhook.OnSuccess,
			onFailure: cfg.Webhook.OnFailure,
			notifier:  wh,
		})
	}

	return &Dispatcher{routes: routes}, nil
}

func (d *Dispatcher) Len() int {
	if d == nil {
		return 0
	}
	return len(d.routes)
}

func (d *Dispatcher) Notify(ctx context.Context, event domain.Event) error {
	if d == nil {
		return nil
	}

	var errs []error
	for _, r := range d.routes {
		if !r.wants(event.Status) {
			continue
		}
		if err := r.notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.name, err))
		}
	}
	return errors.Join(errs...)
}

func (r route) wants(status string) bool {
	switch status {
	case domain.EventSuccess:
		return r.onSuccess
	case domain.EventDegraded, domain.EventFailure:
		return r.onFailure
	default:
		return false
	}
}
