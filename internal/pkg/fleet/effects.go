package fleet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/metrics"
	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/sentry"
)

const (
	alertTitle    = "Sentry Mode"
	alertPriority = "high"
)

// StatusSink receives the per-tick status of a vehicle.
type StatusSink interface {
	PublishStatus(ctx context.Context, v sentry.Vehicle, status sentry.Status) error
}

// Notifier delivers push notifications.
type Notifier interface {
	Notify(ctx context.Context, title, body, priority string) error
}

func alertBody(v sentry.Vehicle) string {
	return fmt.Sprintf("%s triggered Sentry Mode alert!", v.Name())
}

// execute runs the intents of one transition. Failures are logged and never
// roll back the transition that produced them.
func (s *Scheduler) execute(ctx context.Context, m *sentry.Monitor, intents []sentry.Intent, now time.Time) {
	for _, intent := range intents {
		var err error

		switch intent.Kind {
		case sentry.ScheduleSkip:
			m.SkipUntil(now.Add(intent.Skip))
			s.logger.Infof("%s: skipping this vehicle for %s", m.Vehicle.VIN, intent.Skip)
		case sentry.RunDeterrents:
			err = s.runDeterrents(ctx, m.Vehicle)
		case sentry.SendAlert:
			err = s.sendAlert(ctx, m.Vehicle)
		case sentry.PublishStatus:
			err = s.publishStatus(ctx, m.Vehicle, intent.Status)
		}

		status := "success"
		if err != nil {
			status = "failed"
			s.logger.Errorf("%s: executing %s: %s", m.Vehicle.VIN, intent.Kind, err)
		}
		metrics.IntentTotal.WithLabelValues(intent.Kind.String(), status).Inc()
	}
}

func (s *Scheduler) runDeterrents(ctx context.Context, v sentry.Vehicle) error {
	var commands []sentry.Command
	if s.cfg.Policy.FlashLights {
		commands = append(commands, sentry.CommandFlashLights)
	}
	if s.cfg.Policy.HonkHorn {
		commands = append(commands, sentry.CommandHonkHorn)
	}

	var errs []error
	for _, cmd := range commands {
		cmdCtx, cancel := s.withTimeout(ctx)
		err := s.provider.SendCommand(cmdCtx, v, cmd)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("sending %s command: %w", cmd, err))
			continue
		}
		s.logger.Infof("%s: sent %s command", v.VIN, cmd)
	}
	return errors.Join(errs...)
}

func (s *Scheduler) sendAlert(ctx context.Context, v sentry.Vehicle) error {
	if s.notifier == nil {
		return nil
	}

	notifyCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.notifier.Notify(notifyCtx, alertTitle, alertBody(v), alertPriority); err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	s.logger.Infof("%s: Sentry Mode alert sent", v.VIN)
	return nil
}

func (s *Scheduler) publishStatus(ctx context.Context, v sentry.Vehicle, status sentry.Status) error {
	var errs []error
	for _, sink := range s.statusSinks {
		pubCtx, cancel := s.withTimeout(ctx)
		err := sink.PublishStatus(pubCtx, v, status)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("publishing status: %w", err))
		}
	}
	return errors.Join(errs...)
}
