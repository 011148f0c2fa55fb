package habitron

import "fmt"

// Command names the entries of the command catalog.
type Command string

// Catalog command names. Grouped by the first payload byte (command class).
const (
	// Reads (class 0x0A).
	CmdGetModules            Command = "get_modules"
	CmdGetModuleSMG          Command = "get_module_smg"
	CmdGetModuleSMC          Command = "get_module_smc"
	CmdGetRouterSMR          Command = "get_router_smr"
	CmdGetRouterStatus       Command = "get_router_status"
	CmdGetModuleStatus       Command = "get_module_status"
	CmdGetCompactStatus      Command = "get_compact_status"
	CmdGetHubInfo            Command = "get_hub_info"
	CmdGetGlobalDescriptions Command = "get_global_descriptions"

	// Hub / mode control (class 0x14).
	CmdGetHubStatus    Command = "get_hub_status"
	CmdGetHubFirmware  Command = "get_hub_firmware"
	CmdGetGroupMode    Command = "get_group_mode"
	CmdSetGroupMode    Command = "set_group_mode"
	CmdStartMirror     Command = "start_mirror"
	CmdStopMirror      Command = "stop_mirror"
	CmdCheckCommStatus Command = "check_comm_status"

	// Actuators (class 0x1E).
	CmdSetOutputOn        Command = "set_output_on"
	CmdSetOutputOff       Command = "set_output_off"
	CmdSetDimmerValue     Command = "set_dimmer_value"
	CmdSetShutterPosition Command = "set_shutter_position"
	CmdSetBlindTilt       Command = "set_blind_tilt"
	CmdSetSetpointValue   Command = "set_setpoint_value"
	CmdCallVisCommand     Command = "call_vis_command"
	CmdCallCollCommand    Command = "call_coll_command"
	CmdSetFlagOn          Command = "set_flag_on"
	CmdSetFlagOff         Command = "set_flag_off"
	CmdCounterUp          Command = "counter_up"
	CmdCounterDown        Command = "counter_down"
	CmdCounterSet         Command = "counter_set"
	CmdSetRGBOn           Command = "set_rgb_on"
	CmdSetRGBOff          Command = "set_rgb_off"

	// Maintenance (class 0x3C, 0x64).
	CmdRestartHub       Command = "restart_hub"
	CmdRebootHub        Command = "reboot_hub"
	CmdGetCurrentError  Command = "get_current_error"
	CmdGetLastError     Command = "get_last_error"
	CmdRebootRouter     Command = "reboot_router"
	CmdRebootModule     Command = "reboot_module"
	CmdReadModuleMirror Command = "read_module_mirror"
)

// Field identifies which substitution value fills a placeholder slot.
type Field uint8

// Placeholder field kinds.
const (
	FieldRouter Field = iota
	FieldModule
	FieldArg1
	FieldArg2
	FieldArg3
)

// Slot binds a payload offset to a substitution field. Several slots may
// reference the same field; the router address for instance appears twice in
// most actuator payloads.
type Slot struct {
	Offset int
	Field  Field
}

// Template is one immutable catalog entry: the literal payload bytes with
// zeroed placeholder positions, plus the slots to fill.
type Template struct {
	Name    Command
	Pattern []byte
	Slots   []Slot
}

// Substitution carries the values for one encode call. Fields are declared
// as int so out-of-byte-range values can be rejected instead of silently
// truncated.
type Substitution struct {
	Router int
	Module int
	Arg1   int
	Arg2   int
	Arg3   int
}

func (s Substitution) value(f Field) int {
	switch f {
	case FieldRouter:
		return s.Router
	case FieldModule:
		return s.Module
	case FieldArg1:
		return s.Arg1
	case FieldArg2:
		return s.Arg2
	default:
		return s.Arg3
	}
}

// Catalog maps command names to their templates. Construct one with
// NewCatalog at startup and pass it by reference into the components that
// need it; entries are never mutated afterwards.
type Catalog map[Command]Template

// Encode fills a template's placeholder slots from sub and wraps the result
// into a complete wire frame.
//
// Parameters:
//   - name: Catalog entry to encode
//   - sub: Placeholder values; every field must fit in one byte
//
// Returns:
//   - []byte: Complete frame (preamble, length, payload, CRC, terminator)
//   - error: ErrUnknownCommand or ErrEncoding
func (c Catalog) Encode(name Command, sub Substitution) ([]byte, error) {
	tpl, ok := c[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}

	payload := make([]byte, len(tpl.Pattern))
	copy(payload, tpl.Pattern)
	for _, slot := range tpl.Slots {
		v := sub.value(slot.Field)
		if v < 0 || v > 0xFF {
			return nil, fmt.Errorf("%w: %q slot %d value %d out of byte range", ErrEncoding, name, slot.Offset, v)
		}
		payload[slot.Offset] = byte(v)
	}

	return wrapFrame(payload)
}

// NewCatalog builds the command catalog.
//
// Each pattern is the payload as the router firmware expects it; placeholder
// positions hold zero and are listed in Slots. Actuator payloads repeat the
// router/module pair after an inner length word, mirroring the forwarding
// format the router uses on the bus.
func NewCatalog() Catalog {
	entries := []Template{
		{CmdGetModules, []byte{0x0A, 0x01, 0x02, 0, 0, 0, 0},
			[]Slot{{3, FieldRouter}}},
		{CmdGetModuleSMG, []byte{0x0A, 0x02, 0x07, 0, 0, 0, 0},
			[]Slot{{3, FieldRouter}, {4, FieldModule}}},
		{CmdGetModuleSMC, []byte{0x0A, 0x03, 0x07, 0, 0, 0, 0},
			[]Slot{{3, FieldRouter}, {4, FieldModule}}},
		{CmdGetRouterSMR, []byte{0x0A, 0x04, 0x03, 0, 0, 0, 0},
			[]Slot{{3, FieldRouter}}},
		{CmdGetRouterStatus, []byte{0x0A, 0x04, 0x04, 0, 0, 0, 0},
			[]Slot{{3, FieldRouter}}},
		{CmdGetModuleStatus, []byte{0x0A, 0x05, 0x01, 0, 0, 0, 0},
			[]Slot{{3, FieldRouter}, {4, FieldModule}}},
		{CmdGetCompactStatus, []byte{0x0A, 0x05, 0x02, 0, 0xFF, 0, 0},
			[]Slot{{3, FieldRouter}}},
		{CmdGetHubInfo, []byte{0x0A, 0x06, 0x02, 0, 0, 0, 0}, nil},
		{CmdGetGlobalDescriptions, []byte{0x0A, 0x07, 0x01, 0, 0, 0, 0},
			[]Slot{{3, FieldRouter}}},

		{CmdGetHubStatus, []byte{0x14, 0x00, 0x00, 0, 0, 0, 0}, nil},
		{CmdGetHubFirmware, []byte{0x14, 0x1E, 0x00, 0, 0, 0, 0}, nil},
		{CmdGetGroupMode, []byte{0x14, 0x02, 0x01, 0, 0, 0, 0},
			[]Slot{{3, FieldRouter}, {4, FieldModule}}},
		{CmdSetGroupMode, []byte{0x14, 0x02, 0x02, 0, 0, 0x03, 0, 0, 0, 0},
			[]Slot{{3, FieldRouter}, {4, FieldModule}, {7, FieldRouter}, {8, FieldModule}, {9, FieldArg1}}},
		{CmdStartMirror, []byte{0x14, 0x28, 0x01, 0, 0, 0, 0},
			[]Slot{{3, FieldRouter}}},
		{CmdStopMirror, []byte{0x14, 0x28, 0x02, 0, 0, 0, 0},
			[]Slot{{3, FieldRouter}}},
		{CmdCheckCommStatus, []byte{0x14, 0x64, 0x00, 0, 0, 0, 0}, nil},

		{CmdSetOutputOn, []byte{0x1E, 0x01, 0x01, 0, 0, 0x03, 0, 0, 0, 0},
			[]Slot{{3, FieldRouter}, {4, FieldModule}, {7, FieldRouter}, {8, FieldModule}, {9, FieldArg1}}},
		{CmdSetOutputOff, []byte{0x1E, 0x01, 0x02, 0, 0, 0x03, 0, 0, 0, 0},
			[]Slot{{3, FieldRouter}, {4, FieldModule}, {7, FieldRouter}, {8, FieldModule}, {9, FieldArg1}}},
		{CmdSetDimmerValue, []byte{0x1E, 0x01, 0x03, 0, 0, 0x04, 0, 0, 0, 0, 0},
			[]Slot{{3, FieldRouter}, {4, FieldModule}, {7, FieldRouter}, {8, FieldModule}, {9, FieldArg1}, {10, FieldArg2}}},
		{CmdSetShutterPosition, []byte{0x1E, 0x01, 0x04, 0, 0, 0x05, 0, 0, 0, 0x01, 0, 0},
			[]Slot{{3, FieldRouter}, {7, FieldRouter}, {8, FieldModule}, {10, FieldArg1}, {11, FieldArg2}}},
		{CmdSetBlindTilt, []byte{0x1E, 0x01, 0x04, 0, 0, 0x05, 0, 0, 0, 0x02, 0, 0},
			[]Slot{{3, FieldRouter}, {7, FieldRouter}, {8, FieldModule}, {10, FieldArg1}, {11, FieldArg2}}},
		{CmdSetSetpointValue, []byte{0x1E, 0x02, 0x01, 0, 0, 0x05, 0, 0, 0, 0, 0, 0},
			[]Slot{{3, FieldRouter}, {7, FieldRouter}, {8, FieldModule}, {9, FieldArg1}, {10, FieldArg2}, {11, FieldArg3}}},
		{CmdCallVisCommand, []byte{0x1E, 0x03, 0x01, 0, 0, 0x04, 0, 0, 0, 0, 0},
			[]Slot{{7, FieldRouter}, {8, FieldModule}, {9, FieldArg1}, {10, FieldArg2}}},
		{CmdCallCollCommand, []byte{0x1E, 0x04, 0x01, 0, 0, 0, 0},
			[]Slot{{3, FieldRouter}, {4, FieldArg1}}},
		{CmdSetFlagOff, []byte{0x1E, 0x0F, 0x00, 0, 0, 0x01, 0, 0},
			[]Slot{{3, FieldRouter}, {4, FieldModule}, {7, FieldArg1}}},
		{CmdSetFlagOn, []byte{0x1E, 0x0F, 0x01, 0, 0, 0x01, 0, 0},
			[]Slot{{3, FieldRouter}, {4, FieldModule}, {7, FieldArg1}}},
		{CmdCounterUp, []byte{0x1E, 0x10, 0x02, 0, 0, 0x01, 0, 0},
			[]Slot{{3, FieldRouter}, {4, FieldModule}, {7, FieldArg1}}},
		{CmdCounterDown, []byte{0x1E, 0x10, 0x03, 0, 0, 0x01, 0, 0},
			[]Slot{{3, FieldRouter}, {4, FieldModule}, {7, FieldArg1}}},
		{CmdCounterSet, []byte{0x1E, 0x10, 0x04, 0, 0, 0x02, 0, 0, 0},
			[]Slot{{3, FieldRouter}, {4, FieldModule}, {7, FieldArg1}, {8, FieldArg2}}},
		{CmdSetRGBOff, []byte{0x1E, 0x0C, 0x00, 0, 0, 0x01, 0, 0},
			[]Slot{{3, FieldRouter}, {4, FieldModule}, {7, FieldArg1}}},
		{CmdSetRGBOn, []byte{0x1E, 0x0C, 0x01, 0, 0, 0x01, 0, 0},
			[]Slot{{3, FieldRouter}, {4, FieldModule}, {7, FieldArg1}}},

		{CmdRestartHub, []byte{0x3C, 0x00, 0x02, 0, 0, 0, 0},
			[]Slot{{3, FieldRouter}}},
		{CmdRebootHub, []byte{0x3C, 0x00, 0x03, 0, 0, 0, 0}, nil},
		{CmdGetCurrentError, []byte{0x3C, 0x01, 0x02, 0, 0, 0, 0},
			[]Slot{{3, FieldRouter}}},
		{CmdGetLastError, []byte{0x3C, 0x01, 0x03, 0, 0, 0, 0},
			[]Slot{{3, FieldRouter}}},
		{CmdRebootRouter, []byte{0x3C, 0x01, 0x04, 0, 0, 0, 0},
			[]Slot{{3, FieldRouter}}},
		{CmdRebootModule, []byte{0x3C, 0x03, 0x01, 0, 0, 0, 0},
			[]Slot{{3, FieldRouter}, {4, FieldModule}}},
		{CmdReadModuleMirror, []byte{0x64, 0x01, 0x05, 0, 0, 0, 0},
			[]Slot{{3, FieldRouter}, {4, FieldModule}}},
	}

	cat := make(Catalog, len(entries))
	for _, e := range entries {
		cat[e.Name] = e
	}
	return cat
}
