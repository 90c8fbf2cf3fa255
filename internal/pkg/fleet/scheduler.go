package fleet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/metrics"
	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/sentry"
)

const (
	defaultConcurrency  = 4
	defaultFetchTimeout = 30 * time.Second
)

// Provider is the vehicle telemetry collaborator.
type Provider interface {
	ListVehicles(ctx context.Context) ([]sentry.Vehicle, error)
	FetchStatus(ctx context.Context, v sentry.Vehicle) (sentry.Snapshot, error)
	SendCommand(ctx context.Context, v sentry.Vehicle, cmd sentry.Command) error
}

type Config struct {
	Policy          sentry.Policy
	VINFilter       []string
	Concurrency     int
	FetchTimeout    time.Duration
	RefreshInterval time.Duration
}

type Option func(*Scheduler)

// WithStatusSink adds a sink that receives the status published on every tick.
func WithStatusSink(sink StatusSink) Option {
	return func(s *Scheduler) {
		s.statusSinks = append(s.statusSinks, sink)
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Scheduler) {
		s.notifier = n
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// Scheduler drives the poll loop for every tracked vehicle.
type Scheduler struct {
	cfg         Config
	provider    Provider
	statusSinks []StatusSink
	notifier    Notifier
	logger      *zap.SugaredLogger
	now         func() time.Time
	filter      map[string]bool

	mu       sync.RWMutex
	monitors map[string]*sentry.Monitor
}

func New(cfg Config, provider Provider, logger *zap.SugaredLogger, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:      cfg,
		provider: provider,
		logger:   logger,
		now:      time.Now,
		filter:   make(map[string]bool),
		monitors: make(map[string]*sentry.Monitor),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.cfg.Concurrency < 1 {
		s.cfg.Concurrency = defaultConcurrency
	}
	if s.cfg.FetchTimeout <= 0 {
		s.cfg.FetchTimeout = defaultFetchTimeout
	}

	for _, vin := range cfg.VINFilter {
		vin = strings.ToUpper(strings.TrimSpace(vin))
		if vin != "" {
			s.filter[vin] = true
		}
	}

	// intents are only emitted for effects that have somewhere to go
	s.cfg.Policy.PublishStatus = len(s.statusSinks) > 0
	s.cfg.Policy.Notify = s.notifier != nil

	return s
}

// Run enumerates the fleet and polls it every poll interval until ctx is
// cancelled. Failing to list vehicles at startup is returned as an error.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Refresh(ctx); err != nil {
		return fmt.Errorf("listing vehicles: %w", err)
	}
	lastRefresh := s.now()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Poll loop stopped")
			return nil
		case <-timer.C:
		}

		start := s.now()
		if s.cfg.RefreshInterval > 0 && start.Sub(lastRefresh) >= s.cfg.RefreshInterval {
			if err := s.Refresh(ctx); err != nil {
				s.logger.Errorf("refreshing vehicle list: %s", err)
			} else {
				lastRefresh = start
			}
		}

		s.Tick(ctx)

		elapsed := s.now().Sub(start)
		metrics.TickDuration.Observe(elapsed.Seconds())

		wait := s.cfg.Policy.PollInterval - elapsed
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// Refresh lists the provider's vehicles and reconciles the tracked set:
// new vehicles get a fresh monitor, vehicles no longer listed are dropped.
func (s *Scheduler) Refresh(ctx context.Context) error {
	fetchCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	vehicles, err := s.provider.ListVehicles(fetchCtx)
	if err != nil {
		return err
	}
	s.logger.Infof("Got %d vehicles from provider", len(vehicles))

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	for _, v := range vehicles {
		if !s.matches(v.VIN) {
			continue
		}
		seen[v.VIN] = true
		if _, ok := s.monitors[v.VIN]; ok {
			continue
		}
		s.logger.Infof("%s: tracking %s", v.VIN, v.Name())
		s.monitors[v.VIN] = sentry.NewMonitor(v, s.cfg.Policy)
	}

	for vin := range s.monitors {
		if !seen[vin] {
			s.logger.Infof("%s: no longer listed, dropping", vin)
			delete(s.monitors, vin)
		}
	}

	if len(s.filter) > 0 {
		s.logger.Infof("Tracking %d vehicles after VIN filter applied", len(s.monitors))
	}
	metrics.TrackedVehicles.Set(float64(len(s.monitors)))

	return nil
}

// Tick polls every vehicle that is not inside a skip window. It returns once
// all polls have completed.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()

	g := &errgroup.Group{}
	g.SetLimit(s.cfg.Concurrency)

	for _, m := range s.tracked() {
		if ctx.Err() != nil {
			break
		}
		if !m.Due(now) {
			s.logger.Debugf("%s: sentry off or vehicle offline, skipping until %s", m.Vehicle.VIN, m.State().SkipUntil.Format(time.RFC3339))
			metrics.SkippedTotal.Inc()
			continue
		}

		m := m
		g.Go(func() error {
			s.poll(ctx, m, now)
			return nil
		})
	}

	_ = g.Wait()
}

func (s *Scheduler) poll(ctx context.Context, m *sentry.Monitor, now time.Time) {
	vin := m.Vehicle.VIN

	fetchCtx, cancel := s.withTimeout(ctx)
	snapshot, fetchErr := s.provider.FetchStatus(fetchCtx, m.Vehicle)
	cancel()

	obs, err := sentry.Observe(snapshot, fetchErr, now)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.FetchTotal.WithLabelValues("error").Inc()
		s.logger.Errorf("%s: fetching vehicle status: %s", vin, err)
		return
	}

	if errors.Is(fetchErr, sentry.ErrVehicleUnreachable) {
		metrics.FetchTotal.WithLabelValues("unreachable").Inc()
		s.logger.Infof("%s: vehicle is offline or sleeping", vin)
	} else {
		metrics.FetchTotal.WithLabelValues("ok").Inc()
		s.logReading(vin, obs)
	}

	s.execute(ctx, m, m.Apply(obs), now)
}

func (s *Scheduler) logReading(vin string, obs sentry.Observation) {
	switch obs.Reading {
	case sentry.Inactive:
		s.logger.Infof("%s: Sentry Mode OFF", vin)
	case sentry.Standby:
		s.logger.Infof("%s: Sentry Mode ON - No Activity", vin)
	case sentry.Triggered:
		s.logger.Infof("%s: Sentry Mode ON - Triggered", vin)
	}
}

// Vehicles returns the tracked vehicles and their current monitor state,
// ordered by VIN.
func (s *Scheduler) Vehicles() []VehicleState {
	monitors := s.tracked()
	states := make([]VehicleState, 0, len(monitors))
	for _, m := range monitors {
		states = append(states, VehicleState{Vehicle: m.Vehicle, State: m.State()})
	}
	return states
}

type VehicleState struct {
	sentry.Vehicle
	sentry.State
}

func (s *Scheduler) tracked() []*sentry.Monitor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	monitors := make([]*sentry.Monitor, 0, len(s.monitors))
	for _, m := range s.monitors {
		monitors = append(monitors, m)
	}
	sort.Slice(monitors, func(i, j int) bool {
		return monitors[i].Vehicle.VIN < monitors[j].Vehicle.VIN
	})
	return monitors
}

func (s *Scheduler) matches(vin string) bool {
	if len(s.filter) == 0 {
		return true
	}
	return s.filter[strings.ToUpper(vin)]
}

func (s *Scheduler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.FetchTimeout)
}
