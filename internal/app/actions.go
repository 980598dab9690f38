package app

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/store"
)

// fireBindings runs every enabled plugin binding for a spoken label. Runs
// happen off the session goroutine; when all slots are busy the label's
// actions are dropped rather than queued.
func (a *App) fireBindings(p session.Prediction) {
	if a.config.Store == nil || a.config.Plugins == nil || a.config.Executor == nil {
		return
	}

	bindings, err := a.config.Store.Bindings().ListByLabel(p.Label)
	if err != nil {
		a.log.WithError(err).WithField("label", p.Label).Warn("failed to load bindings")
		return
	}

	for _, b := range bindings {
		if !a.actions.TryGo(func() error {
			a.runBinding(context.Background(), b, p)
			return nil
		}) {
			a.metrics.RecordAction(context.Background(), "dropped")
			a.log.WithFields(logrus.Fields{
				"label":  p.Label,
				"plugin": b.PluginName,
			}).Warn("action slots busy, dropping action")
		}
	}
}

func (a *App) runBinding(ctx context.Context, b *store.Binding, p session.Prediction) {
	log := a.log.WithFields(logrus.Fields{
		"binding": b.ID,
		"label":   p.Label,
		"plugin":  b.PluginName,
		"action":  b.ActionName,
	})

	plug, err := a.config.Plugins.Get(b.PluginName)
	if err != nil {
		a.metrics.RecordAction(ctx, "rejected")
		log.WithError(err).Warn("bound plugin unavailable")
		return
	}

	resp, err := a.config.Executor.Execute(ctx, plug, &plugin.Request{
		Action:     b.ActionName,
		Label:      p.Label,
		Confidence: p.Confidence,
		SessionID:  p.SessionID,
		Config:     b.Config,
	})
	switch {
	case errors.Is(err, plugin.ErrUnsupportedAction):
		a.metrics.RecordAction(ctx, "rejected")
		log.WithError(err).Warn("binding names an undeclared action")
	case err != nil:
		a.metrics.RecordAction(ctx, "failed")
		log.WithError(err).Warn("plugin run failed")
	case !resp.Success:
		a.metrics.RecordAction(ctx, "failed")
		log.WithField("error", resp.Error).Warn("plugin reported failure")
	default:
		a.metrics.RecordAction(ctx, "ok")
		log.Debug("action completed")
	}
}
