package climate

import (
	"encoding/json"
	"testing"

	"github.com/pgrootkop-cmyk/honairco/internal/hon"
)

func wireState(t *testing.T, raw string) hon.DeviceState {
	t.Helper()
	var state hon.DeviceState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	return state
}

func TestCapabilitiesFullState(t *testing.T) {
	state := wireState(t, `{
		"onOffStatus": "1",
		"machMode": {"parNewVal": "1"},
		"tempSel": {"parNewVal": "22"},
		"windSpeed": "3",
		"windDirectionHorizontal": "7",
		"windDirectionVertical": "5",
		"humanSensingStatus": "2",
		"10degreeHeatingStatus": "0",
		"muteStatus": "1",
		"echoStatus": "0",
		"tempIndoor": "21.5",
		"tempOutdoor": "8"
	}`)

	caps := NewMapper(nil).Capabilities(state)

	if caps[CapPower] != true {
		t.Errorf("power: %v", caps[CapPower])
	}
	if caps[CapMode] != ModeCool {
		t.Errorf("mode: %v", caps[CapMode])
	}
	if caps[CapTargetTemperature] != 22.0 {
		t.Errorf("target temperature: %v", caps[CapTargetTemperature])
	}
	if caps[CapFanSpeed] != FanLow {
		t.Errorf("fan: %v", caps[CapFanSpeed])
	}
	if caps[CapSwing] != SwingHorizontal {
		t.Errorf("swing: %v", caps[CapSwing])
	}
	if caps[CapEcoPilot] != EcoPilotFollow {
		t.Errorf("eco pilot: %v", caps[CapEcoPilot])
	}
	if caps["silent_mode"] != true {
		t.Errorf("silent mode: %v", caps["silent_mode"])
	}
	// echoStatus is inverted on the wire: 0 means sounds enabled.
	if caps["echo"] != true {
		t.Errorf("echo: %v", caps["echo"])
	}
	if caps[CapIndoorTemp] != 21.5 || caps[CapOutdoorTemp] != 8.0 {
		t.Errorf("sensors: %v %v", caps[CapIndoorTemp], caps[CapOutdoorTemp])
	}
}

func TestCapabilitiesAntiFreezeOverridesMode(t *testing.T) {
	state := wireState(t, `{
		"machMode": "4",
		"tempSel": "24",
		"10degreeHeatingStatus": "1"
	}`)

	caps := NewMapper(nil).Capabilities(state)

	if caps[CapMode] != ModeAntiFreeze {
		t.Errorf("expected anti-freeze mode, got %v", caps[CapMode])
	}
	if caps[CapTargetTemperature] != AntiFreezeTemperature {
		t.Errorf("expected fixed setpoint, got %v", caps[CapTargetTemperature])
	}
}

func TestCapabilitiesOnlyPresentParameters(t *testing.T) {
	caps := NewMapper(nil).Capabilities(wireState(t, `{"tempSel": "20"}`))

	if len(caps) != 1 {
		t.Fatalf("expected only the present parameter, got %v", caps)
	}
	if caps[CapTargetTemperature] != 20.0 {
		t.Fatalf("target temperature: %v", caps[CapTargetTemperature])
	}
}

func TestCapabilitiesUnknownEnumsFallBack(t *testing.T) {
	state := wireState(t, `{
		"machMode": "9",
		"windSpeed": "99",
		"humanSensingStatus": "7"
	}`)

	caps := NewMapper(nil).Capabilities(state)

	if caps[CapMode] != ModeAuto {
		t.Errorf("unknown mode should default to auto, got %v", caps[CapMode])
	}
	if caps[CapFanSpeed] != FanAuto {
		t.Errorf("unknown fan should default to auto, got %v", caps[CapFanSpeed])
	}
	if caps[CapEcoPilot] != EcoPilotOff {
		t.Errorf("unknown eco pilot should default to off, got %v", caps[CapEcoPilot])
	}
}

func TestModeWireAliases(t *testing.T) {
	// 3 and 5 are wire aliases; they collapse to the canonical value on the
	// way back out.
	cases := []struct {
		wire      int
		mode      Mode
		canonical string
	}{
		{0, ModeAuto, "0"},
		{1, ModeCool, "1"},
		{2, ModeDry, "2"},
		{3, ModeDry, "2"},
		{4, ModeHeat, "4"},
		{5, ModeFanOnly, "6"},
		{6, ModeFanOnly, "6"},
	}
	m := NewMapper(nil)
	for _, tc := range cases {
		if got := m.modeFor(tc.wire); got != tc.mode {
			t.Errorf("modeFor(%d) = %s, want %s", tc.wire, got, tc.mode)
		}
		if got := tc.mode.WireValue(); got != tc.canonical {
			t.Errorf("%s.WireValue() = %s, want %s", tc.mode, got, tc.canonical)
		}
	}
}

func TestFanWireAliases(t *testing.T) {
	m := NewMapper(nil)
	if got := m.fanFor(4); got != FanAuto {
		t.Errorf("fanFor(4) = %s, want auto", got)
	}
	if got := FanAuto.WireValue(); got != "5" {
		t.Errorf("auto canonical wire value = %s, want 5", got)
	}
	if got := m.fanFor(1); got != FanHigh {
		t.Errorf("fanFor(1) = %s, want high", got)
	}
}

func TestSwingPairRoundTrip(t *testing.T) {
	cases := []struct {
		h, v  int
		swing Swing
	}{
		{0, 5, SwingOff},
		{7, 5, SwingHorizontal},
		{0, 8, SwingVertical},
		{7, 8, SwingBoth},
		{3, 2, SwingOff},
	}
	for _, tc := range cases {
		if got := SwingFromWire(tc.h, tc.v); got != tc.swing {
			t.Errorf("SwingFromWire(%d, %d) = %s, want %s", tc.h, tc.v, got, tc.swing)
		}
	}

	h, v := SwingBoth.WirePair()
	if h != "7" || v != "8" {
		t.Errorf("both: got (%s, %s)", h, v)
	}
	h, v = SwingOff.WirePair()
	if h != "0" || v != "5" {
		t.Errorf("off should use rest positions, got (%s, %s)", h, v)
	}
}

func TestToggleInversion(t *testing.T) {
	echo, ok := ToggleByCapability("echo")
	if !ok {
		t.Fatalf("echo toggle missing")
	}
	if !echo.FromWire(false) || echo.FromWire(true) {
		t.Errorf("echo wire inversion broken")
	}
	if echo.WireValue(true) != "0" || echo.WireValue(false) != "1" {
		t.Errorf("echo wire encoding broken")
	}

	silent, ok := ToggleByCapability("silent_mode")
	if !ok {
		t.Fatalf("silent_mode toggle missing")
	}
	if silent.WireValue(true) != "1" || !silent.FromWire(true) {
		t.Errorf("plain toggle broken")
	}
}
