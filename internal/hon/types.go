package hon

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// programRules is a server-side rules blob with no runtime meaning for
// commands; it must never be forwarded back to the cloud.
const excludedParameter = "programRules"

// CanonicalMAC strips the volatile "#timestamp" suffix the cloud appends to
// appliance MAC addresses. MACs without a suffix pass through unchanged.
func CanonicalMAC(mac string) string {
	if idx := strings.IndexByte(mac, '#'); idx >= 0 {
		return mac[:idx]
	}
	return mac
}

// Appliance identifies one air conditioner registered to the account.
// MacAddress is always canonical.
type Appliance struct {
	MacAddress    string
	ModelID       int64
	FirmwareID    string
	ApplianceType string
	Series        string
	ModelName     string
	Nickname      string
}

type applianceEntry struct {
	MacAddress        string `json:"macAddress"`
	ApplianceModelID  int64  `json:"applianceModelId"`
	ApplianceTypeName string `json:"applianceTypeName"`
	FwVersion         string `json:"fwVersion"`
	Series            string `json:"series"`
	ModelName         string `json:"modelName"`
	NickName          string `json:"nickName"`
}

func (e applianceEntry) toAppliance() Appliance {
	return Appliance{
		MacAddress:    CanonicalMAC(e.MacAddress),
		ModelID:       e.ApplianceModelID,
		FirmwareID:    e.FwVersion,
		ApplianceType: e.ApplianceTypeName,
		Series:        e.Series,
		ModelName:     e.ModelName,
		Nickname:      e.NickName,
	}
}

// Value is one wire parameter value. The cloud delivers either a bare scalar
// or a wrapper object carrying the scalar under "parNewVal" or "currentValue"
// with an update timestamp alongside; both forms resolve to the same scalar.
type Value struct {
	raw       json.RawMessage
	scalar    string
	ok        bool
	Timestamp string
}

func (v *Value) UnmarshalJSON(data []byte) error {
	v.raw = append(json.RawMessage(nil), data...)

	var wrapper struct {
		ParNewVal    *json.RawMessage `json:"parNewVal"`
		CurrentValue *json.RawMessage `json:"currentValue"`
		LastUpdate   string           `json:"lastUpdate"`
	}
	if err := json.Unmarshal(data, &wrapper); err == nil {
		inner := wrapper.ParNewVal
		if inner == nil {
			inner = wrapper.CurrentValue
		}
		if inner != nil {
			v.scalar, v.ok = scalarString(*inner)
			v.Timestamp = wrapper.LastUpdate
			return nil
		}
	}

	v.scalar, v.ok = scalarString(data)
	return nil
}

func scalarString(data json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s, true
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		if b {
			return "1", true
		}
		return "0", true
	}
	return "", false
}

// String returns the extracted scalar, or "" when no scalar was found.
func (v Value) String() string {
	return v.scalar
}

// Ok reports whether a scalar could be extracted.
func (v Value) Ok() bool {
	return v.ok
}

// Float64 coerces the scalar through a numeric parse. Wire booleans are
// string-typed "0"/"1", so numeric comparisons must go through here.
func (v Value) Float64() (float64, bool) {
	if !v.ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v.scalar), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Bool interprets the scalar as a wire boolean (nonzero means true).
func (v Value) Bool() (bool, bool) {
	f, ok := v.Float64()
	if !ok {
		return false, false
	}
	return f != 0, true
}

// DeviceState maps wire parameter names to their extracted values.
type DeviceState map[string]Value

// CommandDefinition is the per-appliance resolved command schema: every
// command must carry all mandatory parameters, plus the ancillary set.
type CommandDefinition struct {
	MandatoryParameters map[string]string
	AncillaryParameters map[string]string
}

type schemaParameter struct {
	Typology     string `json:"typology"`
	Mandatory    int    `json:"mandatory"`
	FixedValue   Value  `json:"fixedValue"`
	DefaultValue Value  `json:"defaultValue"`
}

// resolve picks the literal for a fixed parameter or the default otherwise.
func (p schemaParameter) resolve() (string, bool) {
	if p.Typology == "fixed" {
		return p.FixedValue.String(), p.FixedValue.Ok()
	}
	return p.DefaultValue.String(), p.DefaultValue.Ok()
}

// resolveSchema folds a raw parameter schema into a CommandDefinition,
// dropping the excluded rules parameter.
func resolveSchema(params map[string]schemaParameter) CommandDefinition {
	def := CommandDefinition{
		MandatoryParameters: make(map[string]string),
		AncillaryParameters: make(map[string]string),
	}
	for name, param := range params {
		if name == excludedParameter {
			continue
		}
		value, ok := param.resolve()
		if !ok {
			continue
		}
		if param.Mandatory == 1 {
			def.MandatoryParameters[name] = value
		} else {
			def.AncillaryParameters[name] = value
		}
	}
	return def
}

// CommandRequest is what the builder hands to the client: the command kind,
// the full parameter set, and the program for startProgram commands.
type CommandRequest struct {
	CommandName string
	ProgramName string
	Parameters  map[string]string
	Ancillary   map[string]string
}

// commandEnvelope is the POST body for /commands/v1/send.
type commandEnvelope struct {
	MacAddress          string            `json:"macAddress"`
	Timestamp           string            `json:"timestamp"`
	CommandName         string            `json:"commandName"`
	TransactionID       string            `json:"transactionId"`
	ProgramName         string            `json:"programName,omitempty"`
	ApplianceOptions    map[string]any    `json:"applianceOptions"`
	Device              deviceBlock       `json:"device"`
	Attributes          attributesBlock   `json:"attributes"`
	AncillaryParameters map[string]string `json:"ancillaryParameters"`
	Parameters          map[string]string `json:"parameters"`
	ApplianceType       string            `json:"applianceType"`
}

type deviceBlock struct {
	AppVersion  string `json:"appVersion"`
	MobileID    string `json:"mobileId"`
	MobileOs    string `json:"mobileOs"`
	OsVersion   string `json:"osVersion"`
	DeviceModel string `json:"deviceModel"`
}

type attributesBlock struct {
	Channel     string `json:"channel"`
	Origin      string `json:"origin"`
	EnergyLabel string `json:"energyLabel"`
}

// transactionID derives the deterministic per-command id from the canonical
// MAC and the envelope timestamp.
func transactionID(mac, timestamp string) string {
	return fmt.Sprintf("%s_%s", mac, timestamp)
}
