package climate

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/pgrootkop-cmyk/honairco/internal/hon"
)

// Wire parameter names used by AC appliances.
const (
	ParamOnOff       = "onOffStatus"
	ParamMode        = "machMode"
	ParamTemp        = "tempSel"
	ParamFan         = "windSpeed"
	ParamSwingH      = "windDirectionHorizontal"
	ParamSwingV      = "windDirectionVertical"
	ParamEcoPilot    = "humanSensingStatus"
	ParamAntiFreeze  = "10degreeHeatingStatus"
	ParamTempIndoor  = "tempIndoor"
	ParamTempOutdoor = "tempOutdoor"
)

// Capability names exposed to the host platform.
const (
	CapPower             = "onoff"
	CapTargetTemperature = "target_temperature"
	CapMode              = "thermostat_mode"
	CapFanSpeed          = "fan_mode"
	CapSwing             = "swing_mode"
	CapEcoPilot          = "eco_pilot"
	CapIndoorTemp        = "measure_temperature.indoor"
	CapOutdoorTemp       = "measure_temperature.outdoor"
)

const (
	// Anti-freeze runs the unit as a fixed 10 degree heating program; the
	// wire temperature parameter is not authoritative while it is active.
	AntiFreezeTemperature = 10.0

	TemperatureMin = 16.0
	TemperatureMax = 30.0
)

// Swing sentinel and rest positions for the direction pair.
const (
	swingHorizontalOn   = 7
	swingHorizontalRest = 0
	swingVerticalOn     = 8
	swingVerticalRest   = 5
)

// Mode is the abstract HVAC mode.
type Mode string

const (
	ModeAuto       Mode = "auto"
	ModeCool       Mode = "cool"
	ModeDry        Mode = "dry"
	ModeHeat       Mode = "heat"
	ModeFanOnly    Mode = "fan_only"
	ModeAntiFreeze Mode = "anti_freeze"
)

// Wire values 3 and 5 are aliases; the reverse direction picks one canonical
// wire value per mode, so 3 round-trips to 2 and 5 to 6 by design.
var modeFromWire = map[int]Mode{
	0: ModeAuto,
	1: ModeCool,
	2: ModeDry,
	3: ModeDry,
	4: ModeHeat,
	5: ModeFanOnly,
	6: ModeFanOnly,
}

var modeToWire = map[Mode]string{
	ModeAuto:    "0",
	ModeCool:    "1",
	ModeHeat:    "4",
	ModeDry:     "2",
	ModeFanOnly: "6",
	// Anti-freeze is not a machMode of its own: it rides on heat plus the
	// dedicated flag.
	ModeAntiFreeze: "4",
}

// Program identifiers sent (upper-cased) with startProgram.
var modePrograms = map[Mode]string{
	ModeAuto:       "iot_auto",
	ModeCool:       "iot_cool",
	ModeDry:        "iot_dry",
	ModeHeat:       "iot_heat",
	ModeFanOnly:    "iot_fan",
	ModeAntiFreeze: "iot_10_heating",
}

// WireValue returns the canonical machMode value for the mode.
func (m Mode) WireValue() string {
	return modeToWire[m]
}

// Valid reports whether m is one of the supported modes.
func (m Mode) Valid() bool {
	_, ok := modeToWire[m]
	return ok
}

// FanSpeed is the abstract fan speed.
type FanSpeed string

const (
	FanAuto   FanSpeed = "auto"
	FanLow    FanSpeed = "low"
	FanMedium FanSpeed = "medium"
	FanHigh   FanSpeed = "high"
)

// Wire value 4 is an alias of 5 (auto); 5 is canonical on the way back.
var fanFromWire = map[int]FanSpeed{
	1: FanHigh,
	2: FanMedium,
	3: FanLow,
	4: FanAuto,
	5: FanAuto,
}

var fanToWire = map[FanSpeed]string{
	FanHigh:   "1",
	FanMedium: "2",
	FanLow:    "3",
	FanAuto:   "5",
}

func (f FanSpeed) WireValue() string {
	return fanToWire[f]
}

func (f FanSpeed) Valid() bool {
	_, ok := fanToWire[f]
	return ok
}

// Swing is the louver swing setting, derived from the direction pair.
type Swing string

const (
	SwingOff        Swing = "off"
	SwingVertical   Swing = "vertical"
	SwingHorizontal Swing = "horizontal"
	SwingBoth       Swing = "both"
)

// SwingFromWire collapses the (horizontal, vertical) pair: either axis is
// swinging only at its sentinel position.
func SwingFromWire(horizontal, vertical int) Swing {
	h := horizontal == swingHorizontalOn
	v := vertical == swingVerticalOn
	switch {
	case h && v:
		return SwingBoth
	case h:
		return SwingHorizontal
	case v:
		return SwingVertical
	default:
		return SwingOff
	}
}

// WirePair returns the canonical (horizontal, vertical) wire values.
func (s Swing) WirePair() (string, string) {
	h, v := swingHorizontalRest, swingVerticalRest
	if s == SwingHorizontal || s == SwingBoth {
		h = swingHorizontalOn
	}
	if s == SwingVertical || s == SwingBoth {
		v = swingVerticalOn
	}
	return strconv.Itoa(h), strconv.Itoa(v)
}

func (s Swing) Valid() bool {
	switch s {
	case SwingOff, SwingVertical, SwingHorizontal, SwingBoth:
		return true
	}
	return false
}

// EcoPilot is the human-sensing airflow setting.
type EcoPilot string

const (
	EcoPilotOff    EcoPilot = "off"
	EcoPilotAvoid  EcoPilot = "avoid"
	EcoPilotFollow EcoPilot = "follow"
)

var ecoPilotFromWire = map[int]EcoPilot{
	0: EcoPilotOff,
	1: EcoPilotAvoid,
	2: EcoPilotFollow,
}

var ecoPilotToWire = map[EcoPilot]string{
	EcoPilotOff:    "0",
	EcoPilotAvoid:  "1",
	EcoPilotFollow: "2",
}

func (e EcoPilot) WireValue() string {
	return ecoPilotToWire[e]
}

func (e EcoPilot) Valid() bool {
	_, ok := ecoPilotToWire[e]
	return ok
}

// Toggle binds a boolean capability to its wire parameter. Inverted toggles
// report true when the wire value is 0.
type Toggle struct {
	Capability string
	Parameter  string
	Inverted   bool
}

var Toggles = []Toggle{
	{Capability: "silent_mode", Parameter: "muteStatus"},
	{Capability: "rapid_mode", Parameter: "rapidMode"},
	{Capability: "screen_display", Parameter: "screenDisplayStatus"},
	{Capability: "self_cleaning", Parameter: "selfCleaningStatus"},
	{Capability: "echo", Parameter: "echoStatus", Inverted: true},
}

// FromWire translates the wire boolean to the capability value.
func (t Toggle) FromWire(on bool) bool {
	if t.Inverted {
		return !on
	}
	return on
}

// WireValue translates the capability value to the wire "0"/"1" string.
func (t Toggle) WireValue(on bool) string {
	if t.Inverted {
		on = !on
	}
	if on {
		return "1"
	}
	return "0"
}

// ToggleByCapability looks a toggle up by its capability name.
func ToggleByCapability(capability string) (Toggle, bool) {
	for _, t := range Toggles {
		if t.Capability == capability {
			return t, true
		}
	}
	return Toggle{}, false
}

// Mapper translates polled wire state into capability values. Unrecognized
// enum values fall back to safe defaults and are logged, never fatal.
type Mapper struct {
	log *zap.Logger
}

func NewMapper(log *zap.Logger) *Mapper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Mapper{log: log}
}

// Capabilities maps wire state to capability values, including only the
// capabilities whose parameters are present in the state.
func (m *Mapper) Capabilities(state hon.DeviceState) map[string]any {
	caps := make(map[string]any)

	if v, ok := wireBool(state, ParamOnOff); ok {
		caps[CapPower] = v
	}

	antiFreeze, antiFreezeKnown := wireBool(state, ParamAntiFreeze)
	if antiFreezeKnown && antiFreeze {
		// The flag overrides machMode: the unit is anti-freeze heating at
		// the fixed setpoint regardless of the reported mode.
		caps[CapMode] = ModeAntiFreeze
		caps[CapTargetTemperature] = AntiFreezeTemperature
	} else {
		if v, ok := wireInt(state, ParamMode); ok {
			caps[CapMode] = m.modeFor(v)
		}
		if v, ok := wireFloat(state, ParamTemp); ok {
			caps[CapTargetTemperature] = v
		}
	}

	if v, ok := wireInt(state, ParamFan); ok {
		caps[CapFanSpeed] = m.fanFor(v)
	}

	if h, hok := wireInt(state, ParamSwingH); hok {
		v, vok := wireInt(state, ParamSwingV)
		if !vok {
			v = swingVerticalRest
		}
		caps[CapSwing] = SwingFromWire(h, v)
	} else if v, vok := wireInt(state, ParamSwingV); vok {
		caps[CapSwing] = SwingFromWire(swingHorizontalRest, v)
	}

	if v, ok := wireInt(state, ParamEcoPilot); ok {
		caps[CapEcoPilot] = m.ecoPilotFor(v)
	}

	for _, toggle := range Toggles {
		if v, ok := wireBool(state, toggle.Parameter); ok {
			caps[toggle.Capability] = toggle.FromWire(v)
		}
	}

	if v, ok := wireFloat(state, ParamTempIndoor); ok {
		caps[CapIndoorTemp] = v
	}
	if v, ok := wireFloat(state, ParamTempOutdoor); ok {
		caps[CapOutdoorTemp] = v
	}

	return caps
}

func (m *Mapper) modeFor(wire int) Mode {
	if mode, ok := modeFromWire[wire]; ok {
		return mode
	}
	m.log.Warn("unknown machMode value, defaulting to auto", zap.Int("value", wire))
	return ModeAuto
}

func (m *Mapper) fanFor(wire int) FanSpeed {
	if fan, ok := fanFromWire[wire]; ok {
		return fan
	}
	m.log.Warn("unknown windSpeed value, defaulting to auto", zap.Int("value", wire))
	return FanAuto
}

func (m *Mapper) ecoPilotFor(wire int) EcoPilot {
	if eco, ok := ecoPilotFromWire[wire]; ok {
		return eco
	}
	m.log.Warn("unknown humanSensingStatus value, defaulting to off", zap.Int("value", wire))
	return EcoPilotOff
}

func wireFloat(state hon.DeviceState, name string) (float64, bool) {
	value, ok := state[name]
	if !ok {
		return 0, false
	}
	return value.Float64()
}

func wireInt(state hon.DeviceState, name string) (int, bool) {
	f, ok := wireFloat(state, name)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func wireBool(state hon.DeviceState, name string) (bool, bool) {
	value, ok := state[name]
	if !ok {
		return false, false
	}
	return value.Bool()
}
