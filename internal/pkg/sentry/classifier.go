package sentry

import (
	"errors"
	"time"
)

// AlarmDisplayState is the center display state a vehicle reports while
// sentry mode is recording an event.
const AlarmDisplayState = 7

// ErrVehicleUnreachable is wrapped by providers when the vehicle is asleep
// or offline. It is expected and classifies as Inactive.
var ErrVehicleUnreachable = errors.New("vehicle unreachable")

type Reading int

const (
	Inactive Reading = iota
	Standby
	Triggered
)

func (r Reading) String() string {
	switch r {
	case Inactive:
		return "inactive"
	case Standby:
		return "standby"
	case Triggered:
		return "triggered"
	default:
		return "unknown"
	}
}

func (r Reading) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Observation is a classified snapshot plus the raw flags that get published
// on every tick.
type Observation struct {
	Reading       Reading
	Online        bool
	SentryEnabled bool
	At            time.Time
}

// Classify maps a fetch result to an alarm reading. Any error other than an
// unreachable vehicle is returned unchanged and no reading is produced.
func Classify(s Snapshot, fetchErr error) (Reading, error) {
	if fetchErr != nil {
		if errors.Is(fetchErr, ErrVehicleUnreachable) {
			return Inactive, nil
		}
		return Inactive, fetchErr
	}

	if !s.Online || !s.SentryModeEnabled {
		return Inactive, nil
	}

	if s.DisplayState == AlarmDisplayState {
		return Triggered, nil
	}

	return Standby, nil
}

// Observe classifies the fetch result and records when it was taken.
func Observe(s Snapshot, fetchErr error, at time.Time) (Observation, error) {
	r, err := Classify(s, fetchErr)
	if err != nil {
		return Observation{}, err
	}

	if fetchErr != nil {
		return Observation{Reading: r, At: at}, nil
	}

	return Observation{
		Reading:       r,
		Online:        s.Online,
		SentryEnabled: s.Online && s.SentryModeEnabled,
		At:            at,
	}, nil
}
