package habitron

import "fmt"

// GroupMode is the high-nibble operating mode of a module group.
type GroupMode byte

// Group operating modes.
const (
	GroupModeAbsent   GroupMode = 16
	GroupModePresent  GroupMode = 32
	GroupModeSleeping GroupMode = 48
	GroupModeUpdate   GroupMode = 63
	GroupModeConfig   GroupMode = 64
	GroupModeSummer   GroupMode = 80
	GroupModeUser1    GroupMode = 96
	GroupModeUser2    GroupMode = 112
)

var groupModeNames = map[GroupMode]string{
	GroupModeAbsent:   "absent",
	GroupModePresent:  "present",
	GroupModeSleeping: "sleeping",
	GroupModeUpdate:   "update",
	GroupModeConfig:   "config",
	GroupModeSummer:   "summer",
	GroupModeUser1:    "user1",
	GroupModeUser2:    "user2",
}

// String returns the mode name, or its numeric value for unknown modes.
func (m GroupMode) String() string {
	if name, ok := groupModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", byte(m))
}

// ParseGroupMode resolves a mode name to its GroupMode value.
func ParseGroupMode(name string) (GroupMode, error) {
	for mode, n := range groupModeNames {
		if n == name {
			return mode, nil
		}
	}
	return 0, fmt.Errorf("%w: group mode %q", ErrInvalidArgument, name)
}

// DaytimeMode is the day/night part of a decoded mode byte.
type DaytimeMode byte

// Daytime modes.
const (
	DaytimeDay       DaytimeMode = 1
	DaytimeNight     DaytimeMode = 2
	DaytimeUndefined DaytimeMode = 3
)

// ParseDaytimeMode resolves "day" or "night" to its DaytimeMode value.
func ParseDaytimeMode(name string) (DaytimeMode, error) {
	switch name {
	case "day":
		return DaytimeDay, nil
	case "night":
		return DaytimeNight, nil
	}
	return 0, fmt.Errorf("%w: daytime mode %q", ErrInvalidArgument, name)
}

// AlarmMode is the alarm part of a decoded mode byte.
type AlarmMode byte

// Alarm modes.
const (
	AlarmOff AlarmMode = 0
	AlarmOn  AlarmMode = 4
)

// DaytimeOf extracts the daytime mode from a raw mode byte.
func DaytimeOf(mode byte) DaytimeMode { return DaytimeMode(mode & 0x03) }

// AlarmOf extracts the alarm mode from a raw mode byte.
func AlarmOf(mode byte) AlarmMode { return AlarmMode(mode & 0x04) }

// GroupModeOf extracts the group operating mode from a raw mode byte.
func GroupModeOf(mode byte) GroupMode {
	if GroupMode(mode) == GroupModeUpdate {
		return GroupModeUpdate
	}
	return GroupMode(mode & 0xF0)
}

// Channel number bounds for actuator commands. Channel numbers on the bus
// are 1-based.
const (
	maxOutputNumber  = 24
	maxDimmerNumber  = 4
	maxCoverNumber   = 8
	maxFlagNumber    = 16
	maxCounterNumber = 10
	maxSetpointRaw   = 0xFFFF
)

// Builder turns high-level intents into ready-to-send frames. All methods
// are pure: they validate argument ranges and encode, no I/O happens here.
// Out-of-range input fails with ErrInvalidArgument before anything could
// reach the wire.
type Builder struct {
	cat Catalog
}

// NewBuilder creates a Builder over a command catalog.
func NewBuilder(cat Catalog) *Builder {
	return &Builder{cat: cat}
}

// SetOutput builds an output on/off frame.
//
// Parameters:
//   - router: Router index
//   - module: Module bus address
//   - output: Output number, 1-24
//   - on: Desired state
func (b *Builder) SetOutput(router, module, output int, on bool) ([]byte, error) {
	if err := checkAddr(router, module); err != nil {
		return nil, err
	}
	if output < 1 || output > maxOutputNumber {
		return nil, fmt.Errorf("%w: output %d not in 1..%d", ErrInvalidArgument, output, maxOutputNumber)
	}
	name := CmdSetOutputOff
	if on {
		name = CmdSetOutputOn
	}
	return b.cat.Encode(name, Substitution{Router: router, Module: module, Arg1: output})
}

// SetDimmer builds a dimmer value frame. Percent is 0-100.
func (b *Builder) SetDimmer(router, module, dimmer, percent int) ([]byte, error) {
	if err := checkAddr(router, module); err != nil {
		return nil, err
	}
	if dimmer < 1 || dimmer > maxDimmerNumber {
		return nil, fmt.Errorf("%w: dimmer %d not in 1..%d", ErrInvalidArgument, dimmer, maxDimmerNumber)
	}
	if err := checkPercent(percent); err != nil {
		return nil, err
	}
	return b.cat.Encode(CmdSetDimmerValue, Substitution{Router: router, Module: module, Arg1: dimmer, Arg2: percent})
}

// SetShutterPosition builds a shutter position frame.
//
// openPercent follows the open-percentage convention of the decoded state;
// the wire carries the inverted closed-percentage.
func (b *Builder) SetShutterPosition(router, module, shutter, openPercent int) ([]byte, error) {
	return b.setCoverValue(CmdSetShutterPosition, router, module, shutter, openPercent)
}

// SetBlindTilt builds a blind tilt frame, same conventions as
// SetShutterPosition.
func (b *Builder) SetBlindTilt(router, module, blind, openPercent int) ([]byte, error) {
	return b.setCoverValue(CmdSetBlindTilt, router, module, blind, openPercent)
}

func (b *Builder) setCoverValue(name Command, router, module, cover, openPercent int) ([]byte, error) {
	if err := checkAddr(router, module); err != nil {
		return nil, err
	}
	if cover < 1 || cover > maxCoverNumber {
		return nil, fmt.Errorf("%w: cover %d not in 1..%d", ErrInvalidArgument, cover, maxCoverNumber)
	}
	if err := checkPercent(openPercent); err != nil {
		return nil, err
	}
	return b.cat.Encode(name, Substitution{Router: router, Module: module, Arg1: cover, Arg2: 100 - openPercent})
}

// SetSetpoint builds a setpoint frame. The value is scaled by 10 and split
// into low/high bytes on the wire.
func (b *Builder) SetSetpoint(router, module, number int, value float64) ([]byte, error) {
	if err := checkAddr(router, module); err != nil {
		return nil, err
	}
	if number < 1 {
		return nil, fmt.Errorf("%w: setpoint %d not positive", ErrInvalidArgument, number)
	}
	raw := int(value * 10)
	if raw < 0 || raw > maxSetpointRaw {
		return nil, fmt.Errorf("%w: setpoint value %.1f out of range", ErrInvalidArgument, value)
	}
	return b.cat.Encode(CmdSetSetpointValue, Substitution{
		Router: router, Module: module,
		Arg1: number, Arg2: raw & 0xFF, Arg3: raw >> 8,
	})
}

// SetGroupMode builds a group mode frame. Group 0 addresses all groups.
func (b *Builder) SetGroupMode(router, group int, mode GroupMode) ([]byte, error) {
	if router < 0 || group < 0 {
		return nil, fmt.Errorf("%w: router %d group %d", ErrInvalidArgument, router, group)
	}
	if _, ok := groupModeNames[mode]; !ok {
		return nil, fmt.Errorf("%w: group mode %d", ErrInvalidArgument, mode)
	}
	return b.cat.Encode(CmdSetGroupMode, Substitution{Router: router, Module: group, Arg1: int(mode)})
}

// SetDaytimeMode builds a frame switching a group between day and night.
// Group 0 addresses all groups. Rides on the group mode command with
// dedicated argument values.
func (b *Builder) SetDaytimeMode(router, group int, mode DaytimeMode) ([]byte, error) {
	if router < 0 || group < 0 {
		return nil, fmt.Errorf("%w: router %d group %d", ErrInvalidArgument, router, group)
	}
	var arg int
	switch mode {
	case DaytimeDay:
		arg = 0x42
	case DaytimeNight:
		arg = 0x43
	default:
		return nil, fmt.Errorf("%w: daytime mode %d", ErrInvalidArgument, mode)
	}
	return b.cat.Encode(CmdSetGroupMode, Substitution{Router: router, Module: group, Arg1: arg})
}

// SetAlarmMode builds a frame arming or disarming a group's alarm mode.
// Group 0 addresses all groups.
func (b *Builder) SetAlarmMode(router, group int, armed bool) ([]byte, error) {
	if router < 0 || group < 0 {
		return nil, fmt.Errorf("%w: router %d group %d", ErrInvalidArgument, router, group)
	}
	arg := 0x41
	if armed {
		arg = 0x40
	}
	return b.cat.Encode(CmdSetGroupMode, Substitution{Router: router, Module: group, Arg1: arg})
}

// CallCollCommand builds a collective command call.
func (b *Builder) CallCollCommand(router, number int) ([]byte, error) {
	if router < 0 || number < 1 || number > 0xFF {
		return nil, fmt.Errorf("%w: collective command %d", ErrInvalidArgument, number)
	}
	return b.cat.Encode(CmdCallCollCommand, Substitution{Router: router, Arg1: number})
}

// CallVisCommand builds a visualization command call. The command number is
// split into low/high bytes on the wire.
func (b *Builder) CallVisCommand(router, module, number int) ([]byte, error) {
	if err := checkAddr(router, module); err != nil {
		return nil, err
	}
	if number < 0 || number > 0xFFFF {
		return nil, fmt.Errorf("%w: vis command %d", ErrInvalidArgument, number)
	}
	return b.cat.Encode(CmdCallVisCommand, Substitution{
		Router: router, Module: module,
		Arg1: number & 0xFF, Arg2: number >> 8,
	})
}

// SetFlag builds a local flag on/off frame. Flag numbers are 1-16.
func (b *Builder) SetFlag(router, module, flag int, on bool) ([]byte, error) {
	if err := checkAddr(router, module); err != nil {
		return nil, err
	}
	if flag < 1 || flag > maxFlagNumber {
		return nil, fmt.Errorf("%w: flag %d not in 1..%d", ErrInvalidArgument, flag, maxFlagNumber)
	}
	name := CmdSetFlagOff
	if on {
		name = CmdSetFlagOn
	}
	return b.cat.Encode(name, Substitution{Router: router, Module: module, Arg1: flag})
}

// CounterUp builds a counter increment frame.
func (b *Builder) CounterUp(router, module, counter int) ([]byte, error) {
	return b.counterCmd(CmdCounterUp, router, module, counter)
}

// CounterDown builds a counter decrement frame.
func (b *Builder) CounterDown(router, module, counter int) ([]byte, error) {
	return b.counterCmd(CmdCounterDown, router, module, counter)
}

// CounterSet builds a counter assignment frame.
func (b *Builder) CounterSet(router, module, counter, value int) ([]byte, error) {
	if err := checkAddr(router, module); err != nil {
		return nil, err
	}
	if counter < 1 || counter > maxCounterNumber {
		return nil, fmt.Errorf("%w: counter %d not in 1..%d", ErrInvalidArgument, counter, maxCounterNumber)
	}
	if value < 0 || value > 0xFF {
		return nil, fmt.Errorf("%w: counter value %d", ErrInvalidArgument, value)
	}
	return b.cat.Encode(CmdCounterSet, Substitution{Router: router, Module: module, Arg1: counter, Arg2: value})
}

func (b *Builder) counterCmd(name Command, router, module, counter int) ([]byte, error) {
	if err := checkAddr(router, module); err != nil {
		return nil, err
	}
	if counter < 1 || counter > maxCounterNumber {
		return nil, fmt.Errorf("%w: counter %d not in 1..%d", ErrInvalidArgument, counter, maxCounterNumber)
	}
	return b.cat.Encode(name, Substitution{Router: router, Module: module, Arg1: counter})
}

// SetRGB builds an RGB LED on/off frame.
func (b *Builder) SetRGB(router, module, led int, on bool) ([]byte, error) {
	if err := checkAddr(router, module); err != nil {
		return nil, err
	}
	if led < 1 || led > 0xFF {
		return nil, fmt.Errorf("%w: led %d", ErrInvalidArgument, led)
	}
	name := CmdSetRGBOff
	if on {
		name = CmdSetRGBOn
	}
	return b.cat.Encode(name, Substitution{Router: router, Module: module, Arg1: led})
}

// StartMirror builds a mirror start frame.
func (b *Builder) StartMirror(router int) ([]byte, error) {
	return b.routerCmd(CmdStartMirror, router)
}

// StopMirror builds a mirror stop frame.
func (b *Builder) StopMirror(router int) ([]byte, error) {
	return b.routerCmd(CmdStopMirror, router)
}

// RestartHub builds a hub restart frame.
func (b *Builder) RestartHub(router int) ([]byte, error) {
	return b.routerCmd(CmdRestartHub, router)
}

// RebootRouter builds a router reboot frame.
func (b *Builder) RebootRouter(router int) ([]byte, error) {
	return b.routerCmd(CmdRebootRouter, router)
}

// RebootModule builds a module reboot frame. Module 0xFF reboots all
// modules on the router.
func (b *Builder) RebootModule(router, module int) ([]byte, error) {
	if err := checkAddr(router, module); err != nil {
		return nil, err
	}
	return b.cat.Encode(CmdRebootModule, Substitution{Router: router, Module: module})
}

// Status read frames.

// GetCompactStatus builds the recurring compact status read.
func (b *Builder) GetCompactStatus(router int) ([]byte, error) {
	return b.routerCmd(CmdGetCompactStatus, router)
}

// GetModules builds the module enumeration read.
func (b *Builder) GetModules(router int) ([]byte, error) {
	return b.routerCmd(CmdGetModules, router)
}

// GetRouterStatus builds the router status read.
func (b *Builder) GetRouterStatus(router int) ([]byte, error) {
	return b.routerCmd(CmdGetRouterStatus, router)
}

// GetRouterSMR builds the router definition read.
func (b *Builder) GetRouterSMR(router int) ([]byte, error) {
	return b.routerCmd(CmdGetRouterSMR, router)
}

// GetGlobalDescriptions builds the description table read.
func (b *Builder) GetGlobalDescriptions(router int) ([]byte, error) {
	return b.routerCmd(CmdGetGlobalDescriptions, router)
}

// GetModuleMirror builds the single-module diagnostic mirror read.
func (b *Builder) GetModuleMirror(router, module int) ([]byte, error) {
	if err := checkAddr(router, module); err != nil {
		return nil, err
	}
	return b.cat.Encode(CmdReadModuleMirror, Substitution{Router: router, Module: module})
}

// GetModuleSMC builds the module definition read (names, commands).
func (b *Builder) GetModuleSMC(router, module int) ([]byte, error) {
	if err := checkAddr(router, module); err != nil {
		return nil, err
	}
	return b.cat.Encode(CmdGetModuleSMC, Substitution{Router: router, Module: module})
}

// GetModuleSMG builds the module settings read.
func (b *Builder) GetModuleSMG(router, module int) ([]byte, error) {
	if err := checkAddr(router, module); err != nil {
		return nil, err
	}
	return b.cat.Encode(CmdGetModuleSMG, Substitution{Router: router, Module: module})
}

// CheckCommStatus builds the communication health probe.
func (b *Builder) CheckCommStatus() ([]byte, error) {
	return b.cat.Encode(CmdCheckCommStatus, Substitution{})
}

func (b *Builder) routerCmd(name Command, router int) ([]byte, error) {
	if router < 0 || router > 0xFF {
		return nil, fmt.Errorf("%w: router %d", ErrInvalidArgument, router)
	}
	return b.cat.Encode(name, Substitution{Router: router})
}

// checkAddr validates a router/module address pair.
func checkAddr(router, module int) error {
	if router < 0 || router > 0xFF {
		return fmt.Errorf("%w: router %d", ErrInvalidArgument, router)
	}
	if module < 1 || module > 0xFF {
		return fmt.Errorf("%w: module %d", ErrInvalidArgument, module)
	}
	return nil
}

// checkPercent validates a percentage argument.
func checkPercent(percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: percent %d not in 0..100", ErrInvalidArgument, percent)
	}
	return nil
}
