package sentry

// Command is a fire-and-forget deterrent issued to a vehicle.
type Command string

const (
	CommandFlashLights Command = "flash_lights"
	CommandHonkHorn    Command = "honk_horn"
)

type Vehicle struct {
	VIN         string `json:"vin"`
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
}

// Name returns the display name, falling back to the VIN.
func (v Vehicle) Name() string {
	if v.DisplayName != "" {
		return v.DisplayName
	}
	return v.VIN
}

type Snapshot struct {
	Online            bool
	SentryModeEnabled bool
	DisplayState      int
}
