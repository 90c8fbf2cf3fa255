package sentry

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var allEffects = Policy{
	PollInterval:    10 * time.Second,
	BackoffInterval: 120 * time.Second,
	PublishStatus:   true,
	Notify:          true,
	FlashLights:     true,
	HonkHorn:        true,
}

func obsOf(r Reading) Observation {
	return Observation{
		Reading:       r,
		Online:        r != Inactive,
		SentryEnabled: r != Inactive,
		At:            time.Unix(0, 0),
	}
}

func count(intents []Intent, kind IntentKind) int {
	n := 0
	for _, i := range intents {
		if i.Kind == kind {
			n++
		}
	}
	return n
}

// run feeds readings through Transition and returns the intents emitted per tick.
func run(p Policy, readings ...Reading) (State, [][]Intent) {
	var s State
	ticks := make([][]Intent, 0, len(readings))
	for _, r := range readings {
		var intents []Intent
		s, intents = Transition(s, obsOf(r), p)
		ticks = append(ticks, intents)
	}
	return s, ticks
}

func Test_Scenario(t *testing.T) {
	_, ticks := run(allEffects, Standby, Triggered, Triggered, Standby, Triggered)

	alerts, deterrents, publishes := 0, 0, 0
	for i, intents := range ticks {
		a := count(intents, SendAlert)
		d := count(intents, RunDeterrents)
		if i == 1 || i == 4 {
			assert.Equal(t, 1, a, "tick %d", i+1)
			assert.Equal(t, 1, d, "tick %d", i+1)
		} else {
			assert.Equal(t, 0, a, "tick %d", i+1)
			assert.Equal(t, 0, d, "tick %d", i+1)
		}
		alerts += a
		deterrents += d
		publishes += count(intents, PublishStatus)
	}

	assert.Equal(t, 2, alerts)
	assert.Equal(t, 2, deterrents)
	assert.Equal(t, 5, publishes)
}

func Test_IdempotentRepeat(t *testing.T) {
	for _, n := range []int{2, 3, 10} {
		readings := make([]Reading, n)
		for i := range readings {
			readings[i] = Triggered
		}

		s, ticks := run(allEffects, readings...)

		var all []Intent
		for _, intents := range ticks {
			all = append(all, intents...)
		}
		assert.Equal(t, 1, count(all, SendAlert))
		assert.Equal(t, 1, count(all, RunDeterrents))
		assert.Equal(t, n, count(all, PublishStatus))
		assert.True(t, s.NotificationSent)
		assert.True(t, s.DeterrentSent)
	}
}

func Test_ReArm(t *testing.T) {
	for _, between := range []Reading{Standby, Inactive} {
		_, ticks := run(allEffects, Triggered, between, Triggered)
		assert.Equal(t, 1, count(ticks[0], SendAlert))
		assert.Equal(t, 0, count(ticks[1], SendAlert))
		assert.Equal(t, 1, count(ticks[2], SendAlert), "re-arm after %s", between)
		assert.Equal(t, 1, count(ticks[2], RunDeterrents), "re-arm after %s", between)
	}
}

func Test_EdgeTriggerUniqueness(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	readings := []Reading{Inactive, Standby, Triggered}

	for iter := 0; iter < 200; iter++ {
		seq := make([]Reading, rng.Intn(40)+1)
		for i := range seq {
			seq[i] = readings[rng.Intn(len(readings))]
		}

		runs := 0
		for i, r := range seq {
			if r == Triggered && (i == 0 || seq[i-1] != Triggered) {
				runs++
			}
		}

		var s State
		alerts := 0
		for _, r := range seq {
			var intents []Intent
			s, intents = Transition(s, obsOf(r), allEffects)
			alerts += count(intents, SendAlert)

			if s.LastReading != Triggered {
				assert.False(t, s.NotificationSent)
				assert.False(t, s.DeterrentSent)
			}
		}

		assert.Equal(t, runs, alerts, "sequence %v", seq)
	}
}

func Test_InactiveBackoff(t *testing.T) {
	s, intents := Transition(State{}, obsOf(Inactive), allEffects)
	assert.Equal(t, Inactive, s.LastReading)
	assert.Equal(t, 1, count(intents, ScheduleSkip))
	assert.Equal(t, 120*time.Second, intents[0].Skip)

	p := allEffects
	p.BackoffInterval = p.PollInterval
	_, intents = Transition(State{}, obsOf(Inactive), p)
	assert.Equal(t, 0, count(intents, ScheduleSkip))

	_, intents = Transition(State{}, obsOf(Standby), allEffects)
	assert.Equal(t, 0, count(intents, ScheduleSkip))
}

func Test_DisabledEffects(t *testing.T) {
	p := Policy{PollInterval: time.Second}

	s, intents := Transition(State{}, obsOf(Triggered), p)
	assert.Empty(t, intents)
	assert.True(t, s.NotificationSent)
	assert.True(t, s.DeterrentSent)

	p.HonkHorn = true
	_, intents = Transition(State{}, obsOf(Triggered), p)
	assert.Equal(t, []Intent{{Kind: RunDeterrents}}, intents)
}

func Test_PublishStatusPayload(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	_, intents := Transition(State{}, Observation{Reading: Triggered, Online: true, SentryEnabled: true, At: at}, Policy{PublishStatus: true})

	assert.Len(t, intents, 1)
	assert.Equal(t, Status{Online: true, SentryEnabled: true, Triggered: true, Timestamp: at}, intents[0].Status)
}

func Test_MonitorDue(t *testing.T) {
	m := NewMonitor(Vehicle{VIN: "VIN1"}, allEffects)
	now := time.Unix(1000, 0)

	assert.True(t, m.Due(now))

	m.SkipUntil(now.Add(2 * time.Minute))
	assert.False(t, m.Due(now.Add(time.Minute)))
	assert.True(t, m.Due(now.Add(2*time.Minute)))
	assert.True(t, m.State().SkipUntil.IsZero())
}

func Test_MonitorApply(t *testing.T) {
	m := NewMonitor(Vehicle{VIN: "VIN1"}, allEffects)

	intents := m.Apply(obsOf(Triggered))
	assert.Equal(t, 1, count(intents, SendAlert))
	assert.Equal(t, Triggered, m.State().LastReading)

	intents = m.Apply(obsOf(Triggered))
	assert.Equal(t, 0, count(intents, SendAlert))
}
