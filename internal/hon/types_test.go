package hon

import (
	"encoding/json"
	"testing"
)

func TestCanonicalMAC(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"12-34-56-78-9a-bc", "12-34-56-78-9a-bc"},
		{"12-34-56-78-9a-bc#2021-06-01T10:00:00Z", "12-34-56-78-9a-bc"},
		{"12-34-56-78-9a-bc#", "12-34-56-78-9a-bc"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := CanonicalMAC(tc.in); got != tc.want {
			t.Errorf("CanonicalMAC(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValueExtraction(t *testing.T) {
	var state DeviceState
	raw := `{
		"tempSel": {"parNewVal": "22", "lastUpdate": "2026-03-01T10:00:00.000Z"},
		"machMode": {"currentValue": 1},
		"onOffStatus": "1",
		"tempIndoor": 21.5,
		"rapidMode": {"parNewVal": false},
		"programRules": {"nested": {"deep": true}}
	}`
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}

	if got := state["tempSel"].String(); got != "22" {
		t.Errorf("wrapped parNewVal: got %q", got)
	}
	if got := state["tempSel"].Timestamp; got != "2026-03-01T10:00:00.000Z" {
		t.Errorf("timestamp not captured: %q", got)
	}
	if f, ok := state["machMode"].Float64(); !ok || f != 1 {
		t.Errorf("wrapped currentValue: got %v %v", f, ok)
	}
	if b, ok := state["onOffStatus"].Bool(); !ok || !b {
		t.Errorf("bare string boolean: got %v %v", b, ok)
	}
	if f, ok := state["tempIndoor"].Float64(); !ok || f != 21.5 {
		t.Errorf("bare number: got %v %v", f, ok)
	}
	if b, ok := state["rapidMode"].Bool(); !ok || b {
		t.Errorf("wrapped false: got %v %v", b, ok)
	}
	if state["programRules"].Ok() {
		t.Errorf("object without scalar must not extract")
	}
}

func TestResolveSchema(t *testing.T) {
	raw := `{
		"operationName": {"typology": "fixed", "mandatory": 1, "fixedValue": "grCustom"},
		"tempSel": {"typology": "range", "mandatory": 1, "defaultValue": 22},
		"muteStatus": {"typology": "enum", "mandatory": 0, "defaultValue": "0"},
		"programRules": {"typology": "fixed", "mandatory": 1, "fixedValue": "ignored"},
		"emptyParam": {"typology": "enum", "mandatory": 0}
	}`
	var params map[string]schemaParameter
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		t.Fatalf("unmarshal schema: %v", err)
	}

	def := resolveSchema(params)

	if got := def.MandatoryParameters["operationName"]; got != "grCustom" {
		t.Errorf("fixed parameter: got %q", got)
	}
	if got := def.MandatoryParameters["tempSel"]; got != "22" {
		t.Errorf("default parameter: got %q", got)
	}
	if got := def.AncillaryParameters["muteStatus"]; got != "0" {
		t.Errorf("ancillary parameter: got %q", got)
	}
	if _, ok := def.MandatoryParameters["programRules"]; ok {
		t.Errorf("rules parameter must be excluded")
	}
	if _, ok := def.AncillaryParameters["emptyParam"]; ok {
		t.Errorf("unresolvable parameter must be dropped")
	}
}

func TestTransactionID(t *testing.T) {
	got := transactionID("12-34-56-78-9a-bc", "2026-03-01T10:00:00.000Z")
	want := "12-34-56-78-9a-bc_2026-03-01T10:00:00.000Z"
	if got != want {
		t.Fatalf("transactionID = %q, want %q", got, want)
	}
}
