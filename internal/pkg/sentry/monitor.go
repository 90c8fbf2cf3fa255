package sentry

import (
	"sync"
	"time"
)

type IntentKind int

const (
	ScheduleSkip IntentKind = iota
	RunDeterrents
	SendAlert
	PublishStatus
)

func (k IntentKind) String() string {
	switch k {
	case ScheduleSkip:
		return "schedule_skip"
	case RunDeterrents:
		return "run_deterrents"
	case SendAlert:
		return "send_alert"
	case PublishStatus:
		return "publish_status"
	default:
		return "unknown"
	}
}

type Status struct {
	Online        bool
	SentryEnabled bool
	Triggered     bool
	Timestamp     time.Time
}

// Intent is a side effect requested by a transition. Skip is set for
// ScheduleSkip and Status for PublishStatus.
type Intent struct {
	Kind   IntentKind
	Skip   time.Duration
	Status Status
}

// Policy holds the configuration that shapes which intents a transition emits.
type Policy struct {
	PollInterval    time.Duration
	BackoffInterval time.Duration
	PublishStatus   bool
	Notify          bool
	FlashLights     bool
	HonkHorn        bool
}

func (p Policy) deterrents() bool {
	return p.FlashLights || p.HonkHorn
}

type State struct {
	LastReading      Reading   `json:"last_reading"`
	NotificationSent bool      `json:"notification_sent"`
	DeterrentSent    bool      `json:"deterrent_sent"`
	SkipUntil        time.Time `json:"skip_until"`
}

// Transition applies one observation to a vehicle's state. It is pure: the
// returned intents are executed by the caller.
func Transition(s State, obs Observation, p Policy) (State, []Intent) {
	var intents []Intent
	next := s
	next.LastReading = obs.Reading

	switch obs.Reading {
	case Inactive:
		next.NotificationSent = false
		next.DeterrentSent = false
		if p.BackoffInterval > p.PollInterval {
			intents = append(intents, Intent{Kind: ScheduleSkip, Skip: p.BackoffInterval})
		}
	case Standby:
		next.NotificationSent = false
		next.DeterrentSent = false
	case Triggered:
		if !next.DeterrentSent {
			if p.deterrents() {
				intents = append(intents, Intent{Kind: RunDeterrents})
			}
			next.DeterrentSent = true
		}
		if !next.NotificationSent {
			if p.Notify {
				intents = append(intents, Intent{Kind: SendAlert})
			}
			next.NotificationSent = true
		}
	}

	if p.PublishStatus {
		intents = append(intents, Intent{
			Kind: PublishStatus,
			Status: Status{
				Online:        obs.Online,
				SentryEnabled: obs.SentryEnabled,
				Triggered:     obs.Reading == Triggered,
				Timestamp:     obs.At,
			},
		})
	}

	return next, intents
}

// Monitor owns the state of one tracked vehicle.
type Monitor struct {
	Vehicle Vehicle

	mu     sync.Mutex
	state  State
	policy Policy
}

func NewMonitor(v Vehicle, p Policy) *Monitor {
	return &Monitor{
		Vehicle: v,
		policy:  p,
	}
}

// Apply runs Transition against the monitor's state and stores the result.
func (m *Monitor) Apply(obs Observation) []Intent {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, intents := Transition(m.state, obs, m.policy)
	m.state = next
	return intents
}

// Due reports whether the vehicle should be polled at now. An elapsed skip
// window is cleared.
func (m *Monitor) Due(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.SkipUntil.IsZero() {
		return true
	}
	if now.Before(m.state.SkipUntil) {
		return false
	}
	m.state.SkipUntil = time.Time{}
	return true
}

func (m *Monitor) SkipUntil(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.SkipUntil = t
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
