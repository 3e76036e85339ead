package climate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pgrootkop-cmyk/honairco/internal/hon"
)

// ValidationError rejects a capability operation before any network call.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return "validation: " + e.Reason
}

// Snapshot is the device's last known capability state. Wire commands are
// full state, not deltas, so the builder needs it even for a single-field
// change.
type Snapshot struct {
	Power             bool
	Mode              Mode
	TargetTemperature float64
	FanSpeed          FanSpeed
	Swing             Swing
	EcoPilot          EcoPilot
	Toggles           map[string]bool
}

// Change is the capability-level request; nil fields are carried over from
// the snapshot.
type Change struct {
	Power             *bool
	Mode              *Mode
	TargetTemperature *float64
	FanSpeed          *FanSpeed
	Swing             *Swing
	EcoPilot          *EcoPilot
	Toggles           map[string]bool
}

// Builder assembles command envelopes from one appliance's resolved schema.
type Builder struct {
	def hon.CommandDefinition
}

func NewBuilder(def hon.CommandDefinition) *Builder {
	return &Builder{def: def}
}

// Build translates a capability change into the wire command. Power-off is
// the distinguished stop command; power-on and mode switches start a
// program; everything else adjusts settings on the running unit.
func (b *Builder) Build(current Snapshot, change Change) (hon.CommandRequest, error) {
	if change.Power != nil && !*change.Power {
		return b.stop(), nil
	}

	mode := current.Mode
	if change.Mode != nil {
		if !change.Mode.Valid() {
			return hon.CommandRequest{}, ValidationError{Reason: fmt.Sprintf("unknown mode %q", *change.Mode)}
		}
		mode = *change.Mode
	}
	if mode == "" {
		mode = ModeAuto
	}

	if change.TargetTemperature != nil && mode == ModeAntiFreeze {
		return hon.CommandRequest{}, ValidationError{Reason: "target temperature is fixed while anti-freeze is active"}
	}
	if change.FanSpeed != nil && !change.FanSpeed.Valid() {
		return hon.CommandRequest{}, ValidationError{Reason: fmt.Sprintf("unknown fan speed %q", *change.FanSpeed)}
	}
	if change.Swing != nil && !change.Swing.Valid() {
		return hon.CommandRequest{}, ValidationError{Reason: fmt.Sprintf("unknown swing setting %q", *change.Swing)}
	}
	if change.EcoPilot != nil && !change.EcoPilot.Valid() {
		return hon.CommandRequest{}, ValidationError{Reason: fmt.Sprintf("unknown eco-pilot setting %q", *change.EcoPilot)}
	}
	for name := range change.Toggles {
		if _, ok := ToggleByCapability(name); !ok {
			return hon.CommandRequest{}, ValidationError{Reason: fmt.Sprintf("unknown toggle %q", name)}
		}
	}

	params := b.mandatory()
	params[ParamOnOff] = "1"
	params[ParamMode] = mode.WireValue()

	if mode == ModeAntiFreeze {
		params[ParamTemp] = formatTemperature(AntiFreezeTemperature)
		params[ParamAntiFreeze] = "1"
	} else {
		temp := current.TargetTemperature
		if change.TargetTemperature != nil {
			temp = *change.TargetTemperature
		}
		params[ParamTemp] = formatTemperature(ClampTemperature(temp))
		params[ParamAntiFreeze] = "0"
	}

	fan := current.FanSpeed
	if change.FanSpeed != nil {
		fan = *change.FanSpeed
	}
	if fan == "" {
		fan = FanAuto
	}
	params[ParamFan] = fan.WireValue()

	swing := current.Swing
	if change.Swing != nil {
		swing = *change.Swing
	}
	if swing == "" {
		swing = SwingOff
	}
	params[ParamSwingH], params[ParamSwingV] = swing.WirePair()

	eco := current.EcoPilot
	if change.EcoPilot != nil {
		eco = *change.EcoPilot
	}
	if eco == "" {
		eco = EcoPilotOff
	}
	params[ParamEcoPilot] = eco.WireValue()

	for _, toggle := range Toggles {
		on, known := current.Toggles[toggle.Capability]
		if v, changed := change.Toggles[toggle.Capability]; changed {
			on, known = v, true
		}
		if known {
			params[toggle.Parameter] = toggle.WireValue(on)
		}
	}

	// Turning on or switching mode starts a program; a start always settles
	// the anti-freeze flag, so leaving anti-freeze cannot stick.
	if (change.Power != nil && *change.Power) || change.Mode != nil || !current.Power {
		return hon.CommandRequest{
			CommandName: "startProgram",
			ProgramName: strings.ToUpper(modePrograms[mode]),
			Parameters:  params,
			Ancillary:   b.ancillary(),
		}, nil
	}

	return hon.CommandRequest{
		CommandName: "settings",
		Parameters:  params,
		Ancillary:   b.ancillary(),
	}, nil
}

// stop sends only the power-off flag over the mandatory set; no mode,
// temperature, or fan fields ride along.
func (b *Builder) stop() hon.CommandRequest {
	params := b.mandatory()
	params[ParamOnOff] = "0"
	return hon.CommandRequest{
		CommandName: "stopProgram",
		Parameters:  params,
		Ancillary:   b.ancillary(),
	}
}

func (b *Builder) mandatory() map[string]string {
	params := make(map[string]string, len(b.def.MandatoryParameters)+12)
	for name, value := range b.def.MandatoryParameters {
		params[name] = value
	}
	return params
}

func (b *Builder) ancillary() map[string]string {
	ancillary := make(map[string]string, len(b.def.AncillaryParameters))
	for name, value := range b.def.AncillaryParameters {
		ancillary[name] = value
	}
	return ancillary
}

// ClampTemperature bounds a setpoint to the supported range. Callers that
// report a setpoint back to the host must report the clamped value, since it
// is what actually goes on the wire.
func ClampTemperature(temp float64) float64 {
	if temp < TemperatureMin {
		return TemperatureMin
	}
	if temp > TemperatureMax {
		return TemperatureMax
	}
	return temp
}

// formatTemperature keeps fractional setpoints (22.5) intact on the wire.
func formatTemperature(temp float64) string {
	return strconv.FormatFloat(temp, 'f', -1, 64)
}
