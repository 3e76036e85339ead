package device

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pgrootkop-cmyk/honairco/internal/climate"
	"github.com/pgrootkop-cmyk/honairco/internal/hon"
	"github.com/pgrootkop-cmyk/honairco/internal/poll"
)

// ChangeHook fires after an observed or optimistic capability change; the
// host platform hangs its flow triggers off it.
type ChangeHook func(capability string, value any)

// Commander is the slice of the cloud client a device needs.
type Commander interface {
	Context(ctx context.Context, mac string) (hon.DeviceState, error)
	SendCommand(ctx context.Context, app hon.Appliance, cmd hon.CommandRequest) error
}

// Device is one air conditioner: capability surface for the host platform on
// one side, command builder and cloud client on the other.
type Device struct {
	appliance   hon.Appliance
	client      Commander
	builder     *climate.Builder
	mapper      *climate.Mapper
	caps        CapabilityStore
	coord       *poll.Coordinator
	settleDelay time.Duration
	log         *zap.Logger

	mu                sync.Mutex
	hooks             []ChangeHook
	available         bool
	unavailableReason string
}

type Options struct {
	PollInterval time.Duration
	SettleDelay  time.Duration
	Store        CapabilityStore
}

func New(app hon.Appliance, client Commander, def hon.CommandDefinition, opts Options, log *zap.Logger) *Device {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = poll.DefaultSettleDelay
	}

	d := &Device{
		appliance:   app,
		client:      client,
		builder:     climate.NewBuilder(def),
		mapper:      climate.NewMapper(log),
		caps:        opts.Store,
		settleDelay: opts.SettleDelay,
		log:         log.With(zap.String("mac", app.MacAddress)),
	}
	d.coord = poll.NewCoordinator(app.MacAddress, d, opts.PollInterval, log)
	return d
}

func (d *Device) Appliance() hon.Appliance {
	return d.appliance
}

// Start begins polling; Stop cancels the poll loop and any pending
// settle-window timer.
func (d *Device) Start(ctx context.Context) {
	d.coord.Start(ctx)
}

func (d *Device) Stop() {
	d.coord.Stop()
}

// OnChange registers a capability-change hook.
func (d *Device) OnChange(hook ChangeHook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = append(d.hooks, hook)
}

// Poll fetches current state and reconciles it into capability storage. Only
// capabilities present in the response are pushed.
func (d *Device) Poll(ctx context.Context) error {
	state, err := d.client.Context(ctx, d.appliance.MacAddress)
	if err != nil {
		return err
	}
	for capability, value := range d.mapper.Capabilities(state) {
		d.setCapability(capability, value)
	}
	return nil
}

func (d *Device) SetAvailable() {
	d.mu.Lock()
	changed := !d.available
	d.available = true
	d.unavailableReason = ""
	d.mu.Unlock()
	if changed {
		d.log.Info("device available")
	}
}

func (d *Device) SetUnavailable(reason string) {
	d.mu.Lock()
	changed := d.available || d.unavailableReason != reason
	d.available = false
	d.unavailableReason = reason
	d.mu.Unlock()
	if changed {
		d.log.Warn("device unavailable", zap.String("reason", reason))
	}
}

// Available reports availability and, when unavailable, the reason.
func (d *Device) Available() (bool, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.available, d.unavailableReason
}

// Capabilities returns a copy of the current capability values.
func (d *Device) Capabilities() map[string]any {
	return d.caps.Snapshot()
}

func (d *Device) SetPower(ctx context.Context, on bool) error {
	return d.apply(ctx, climate.Change{Power: &on})
}

func (d *Device) SetTargetTemperature(ctx context.Context, celsius float64) error {
	return d.apply(ctx, climate.Change{TargetTemperature: &celsius})
}

func (d *Device) SetMode(ctx context.Context, mode climate.Mode) error {
	return d.apply(ctx, climate.Change{Mode: &mode})
}

func (d *Device) SetFanSpeed(ctx context.Context, fan climate.FanSpeed) error {
	return d.apply(ctx, climate.Change{FanSpeed: &fan})
}

func (d *Device) SetSwing(ctx context.Context, swing climate.Swing) error {
	return d.apply(ctx, climate.Change{Swing: &swing})
}

func (d *Device) SetEcoPilot(ctx context.Context, eco climate.EcoPilot) error {
	return d.apply(ctx, climate.Change{EcoPilot: &eco})
}

func (d *Device) SetToggle(ctx context.Context, capability string, on bool) error {
	return d.apply(ctx, climate.Change{Toggles: map[string]bool{capability: on}})
}

// IndoorTemperature returns the last polled indoor sensor reading.
func (d *Device) IndoorTemperature() (float64, bool) {
	return d.temperature(climate.CapIndoorTemp)
}

// OutdoorTemperature returns the last polled outdoor sensor reading.
func (d *Device) OutdoorTemperature() (float64, bool) {
	return d.temperature(climate.CapOutdoorTemp)
}

func (d *Device) temperature(capability string) (float64, bool) {
	value, ok := d.caps.Get(capability)
	if !ok {
		return 0, false
	}
	celsius, ok := value.(float64)
	return celsius, ok
}

// apply runs the write path: build the full-state command, send it, record
// the optimistic capability values, and open the settle window so the next
// polls cannot clobber them.
func (d *Device) apply(ctx context.Context, change climate.Change) error {
	cmd, err := d.builder.Build(d.snapshot(), change)
	if err != nil {
		return err
	}
	if err := d.client.SendCommand(ctx, d.appliance, cmd); err != nil {
		return err
	}

	d.applyOptimistic(change)
	d.coord.Suppress(d.settleDelay)
	d.log.Info("command sent", zap.String("command", cmd.CommandName))
	return nil
}

func (d *Device) applyOptimistic(change climate.Change) {
	if change.Power != nil {
		d.setCapability(climate.CapPower, *change.Power)
		if !*change.Power {
			return
		}
	} else if change.Mode != nil {
		// A mode switch starts a program, which powers the unit on.
		d.setCapability(climate.CapPower, true)
	}
	if change.Mode != nil {
		d.setCapability(climate.CapMode, *change.Mode)
		if *change.Mode == climate.ModeAntiFreeze {
			d.setCapability(climate.CapTargetTemperature, climate.AntiFreezeTemperature)
		} else if celsius, ok := d.temperature(climate.CapTargetTemperature); ok {
			// Leaving anti-freeze: the pinned 10 °C is below the wire range,
			// so the command carried the clamped value.
			d.setCapability(climate.CapTargetTemperature, climate.ClampTemperature(celsius))
		}
	}
	if change.TargetTemperature != nil {
		// Store the clamped setpoint the command actually carried, not the
		// caller's raw request.
		d.setCapability(climate.CapTargetTemperature, climate.ClampTemperature(*change.TargetTemperature))
	}
	if change.FanSpeed != nil {
		d.setCapability(climate.CapFanSpeed, *change.FanSpeed)
	}
	if change.Swing != nil {
		d.setCapability(climate.CapSwing, *change.Swing)
	}
	if change.EcoPilot != nil {
		d.setCapability(climate.CapEcoPilot, *change.EcoPilot)
	}
	for name, on := range change.Toggles {
		d.setCapability(name, on)
	}
}

func (d *Device) setCapability(capability string, value any) {
	if !d.caps.Set(capability, value) {
		return
	}
	d.mu.Lock()
	hooks := make([]ChangeHook, len(d.hooks))
	copy(hooks, d.hooks)
	d.mu.Unlock()
	for _, hook := range hooks {
		hook(capability, value)
	}
}

func (d *Device) snapshot() climate.Snapshot {
	snap := climate.Snapshot{Toggles: make(map[string]bool)}
	if v, ok := d.caps.Get(climate.CapPower); ok {
		snap.Power, _ = v.(bool)
	}
	if v, ok := d.caps.Get(climate.CapMode); ok {
		if mode, ok := v.(climate.Mode); ok {
			snap.Mode = mode
		}
	}
	if v, ok := d.caps.Get(climate.CapTargetTemperature); ok {
		if celsius, ok := v.(float64); ok {
			snap.TargetTemperature = celsius
		}
	}
	if v, ok := d.caps.Get(climate.CapFanSpeed); ok {
		if fan, ok := v.(climate.FanSpeed); ok {
			snap.FanSpeed = fan
		}
	}
	if v, ok := d.caps.Get(climate.CapSwing); ok {
		if swing, ok := v.(climate.Swing); ok {
			snap.Swing = swing
		}
	}
	if v, ok := d.caps.Get(climate.CapEcoPilot); ok {
		if eco, ok := v.(climate.EcoPilot); ok {
			snap.EcoPilot = eco
		}
	}
	for _, toggle := range climate.Toggles {
		if v, ok := d.caps.Get(toggle.Capability); ok {
			if on, ok := v.(bool); ok {
				snap.Toggles[toggle.Capability] = on
			}
		}
	}
	return snap
}
