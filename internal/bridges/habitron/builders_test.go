package habitron

import (
	"errors"
	"testing"
)

func newTestBuilder() *Builder {
	return NewBuilder(NewCatalog())
}

func TestBuilder_SetOutput(t *testing.T) {
	b := newTestBuilder()

	frame, err := b.SetOutput(1, 5, 3, true)
	if err != nil {
		t.Fatalf("SetOutput() error = %v", err)
	}
	payload := framePayload(t, frame)
	if payload[0] != 0x1E || payload[2] != 0x01 {
		t.Errorf("payload class/op = 0x%02X/0x%02X, want 0x1E/0x01", payload[0], payload[2])
	}
	if payload[9] != 3 {
		t.Errorf("output number byte = %d, want 3", payload[9])
	}

	frame, err = b.SetOutput(1, 5, 3, false)
	if err != nil {
		t.Fatalf("SetOutput(off) error = %v", err)
	}
	if payload := framePayload(t, frame); payload[2] != 0x02 {
		t.Errorf("off opcode = 0x%02X, want 0x02", payload[2])
	}
}

func TestBuilder_SetOutput_Validation(t *testing.T) {
	b := newTestBuilder()

	tests := []struct {
		name                   string
		router, module, output int
	}{
		{"output zero", 1, 5, 0},
		{"output above range", 1, 5, 25},
		{"module zero", 1, 0, 1},
		{"router negative", -1, 5, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := b.SetOutput(tt.router, tt.module, tt.output, true); !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("SetOutput() error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestBuilder_SetShutterPosition_InvertsPercent(t *testing.T) {
	b := newTestBuilder()

	// Callers speak open-percentages, the wire carries closed ones.
	frame, err := b.SetShutterPosition(1, 2, 1, 70)
	if err != nil {
		t.Fatalf("SetShutterPosition() error = %v", err)
	}
	payload := framePayload(t, frame)
	if payload[10] != 1 {
		t.Errorf("shutter number byte = %d, want 1", payload[10])
	}
	if payload[11] != 30 {
		t.Errorf("wire percent = %d, want 30 (inverted from open 70)", payload[11])
	}

	if _, err := b.SetShutterPosition(1, 2, 1, 101); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("SetShutterPosition(101%%) error = %v, want ErrInvalidArgument", err)
	}
	if _, err := b.SetShutterPosition(1, 2, 9, 50); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("SetShutterPosition(cover 9) error = %v, want ErrInvalidArgument", err)
	}
}

func TestBuilder_SetDimmer(t *testing.T) {
	b := newTestBuilder()

	frame, err := b.SetDimmer(1, 4, 2, 55)
	if err != nil {
		t.Fatalf("SetDimmer() error = %v", err)
	}
	payload := framePayload(t, frame)
	if payload[9] != 2 || payload[10] != 55 {
		t.Errorf("dimmer/value bytes = %d/%d, want 2/55", payload[9], payload[10])
	}

	if _, err := b.SetDimmer(1, 4, 5, 50); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("SetDimmer(dimmer 5) error = %v, want ErrInvalidArgument", err)
	}
	if _, err := b.SetDimmer(1, 4, 2, 101); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("SetDimmer(101%%) error = %v, want ErrInvalidArgument", err)
	}
	if _, err := b.SetDimmer(1, 4, 2, -1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("SetDimmer(-1%%) error = %v, want ErrInvalidArgument", err)
	}
}

func TestBuilder_SetSetpoint_SplitsValue(t *testing.T) {
	b := newTestBuilder()

	// 21.5 degrees scales to raw 215, low byte first.
	frame, err := b.SetSetpoint(1, 3, 1, 21.5)
	if err != nil {
		t.Fatalf("SetSetpoint() error = %v", err)
	}
	payload := framePayload(t, frame)
	if payload[9] != 1 {
		t.Errorf("setpoint number = %d, want 1", payload[9])
	}
	if payload[10] != 215 || payload[11] != 0 {
		t.Errorf("raw bytes = %d/%d, want 215/0", payload[10], payload[11])
	}

	// 3276.8 overflows the two-byte raw value.
	if _, err := b.SetSetpoint(1, 3, 1, 7000.0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("SetSetpoint(7000) error = %v, want ErrInvalidArgument", err)
	}
	if _, err := b.SetSetpoint(1, 3, 1, -1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("SetSetpoint(-1) error = %v, want ErrInvalidArgument", err)
	}
}

func TestBuilder_SetGroupMode(t *testing.T) {
	b := newTestBuilder()

	frame, err := b.SetGroupMode(1, 0, GroupModePresent)
	if err != nil {
		t.Fatalf("SetGroupMode() error = %v", err)
	}
	payload := framePayload(t, frame)
	if payload[9] != byte(GroupModePresent) {
		t.Errorf("mode byte = %d, want %d", payload[9], GroupModePresent)
	}

	if _, err := b.SetGroupMode(1, 0, GroupMode(7)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("SetGroupMode(7) error = %v, want ErrInvalidArgument", err)
	}
}

func TestBuilder_SetDaytimeMode(t *testing.T) {
	b := newTestBuilder()

	frame, err := b.SetDaytimeMode(1, 0, DaytimeNight)
	if err != nil {
		t.Fatalf("SetDaytimeMode() error = %v", err)
	}
	if got := framePayload(t, frame)[9]; got != 0x43 {
		t.Errorf("night arg = 0x%02X, want 0x43", got)
	}

	frame, err = b.SetDaytimeMode(1, 2, DaytimeDay)
	if err != nil {
		t.Fatalf("SetDaytimeMode() error = %v", err)
	}
	if got := framePayload(t, frame)[9]; got != 0x42 {
		t.Errorf("day arg = 0x%02X, want 0x42", got)
	}

	if _, err := b.SetDaytimeMode(1, 0, DaytimeUndefined); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("SetDaytimeMode(undefined) error = %v, want ErrInvalidArgument", err)
	}
}

func TestBuilder_SetAlarmMode(t *testing.T) {
	b := newTestBuilder()

	frame, err := b.SetAlarmMode(1, 0, true)
	if err != nil {
		t.Fatalf("SetAlarmMode() error = %v", err)
	}
	if got := framePayload(t, frame)[9]; got != 0x40 {
		t.Errorf("armed arg = 0x%02X, want 0x40", got)
	}

	frame, err = b.SetAlarmMode(1, 0, false)
	if err != nil {
		t.Fatalf("SetAlarmMode() error = %v", err)
	}
	if got := framePayload(t, frame)[9]; got != 0x41 {
		t.Errorf("disarmed arg = 0x%02X, want 0x41", got)
	}
}

func TestParseDaytimeMode(t *testing.T) {
	if mode, err := ParseDaytimeMode("day"); err != nil || mode != DaytimeDay {
		t.Errorf("ParseDaytimeMode(day) = %v, %v", mode, err)
	}
	if mode, err := ParseDaytimeMode("night"); err != nil || mode != DaytimeNight {
		t.Errorf("ParseDaytimeMode(night) = %v, %v", mode, err)
	}
	if _, err := ParseDaytimeMode("dusk"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("ParseDaytimeMode(dusk) error = %v, want ErrInvalidArgument", err)
	}
}

func TestBuilder_Counters(t *testing.T) {
	b := newTestBuilder()

	if _, err := b.CounterUp(1, 2, 1); err != nil {
		t.Errorf("CounterUp() error = %v", err)
	}
	if _, err := b.CounterDown(1, 2, 10); err != nil {
		t.Errorf("CounterDown() error = %v", err)
	}
	if _, err := b.CounterUp(1, 2, 11); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("CounterUp(counter 11) error = %v, want ErrInvalidArgument", err)
	}

	frame, err := b.CounterSet(1, 2, 3, 42)
	if err != nil {
		t.Fatalf("CounterSet() error = %v", err)
	}
	payload := framePayload(t, frame)
	if payload[7] != 3 || payload[8] != 42 {
		t.Errorf("counter/value bytes = %d/%d, want 3/42", payload[7], payload[8])
	}
	if _, err := b.CounterSet(1, 2, 3, 300); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("CounterSet(300) error = %v, want ErrInvalidArgument", err)
	}
}

func TestBuilder_CallVisCommand_SplitsNumber(t *testing.T) {
	b := newTestBuilder()

	frame, err := b.CallVisCommand(1, 2, 0x0204)
	if err != nil {
		t.Fatalf("CallVisCommand() error = %v", err)
	}
	payload := framePayload(t, frame)
	if payload[9] != 0x04 || payload[10] != 0x02 {
		t.Errorf("vis command bytes = 0x%02X/0x%02X, want 0x04/0x02", payload[9], payload[10])
	}

	if _, err := b.CallVisCommand(1, 2, 0x10000); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("CallVisCommand(0x10000) error = %v, want ErrInvalidArgument", err)
	}
}

func TestBuilder_RouterCommands(t *testing.T) {
	b := newTestBuilder()

	for name, build := range map[string]func(int) ([]byte, error){
		"GetCompactStatus":      b.GetCompactStatus,
		"GetModules":            b.GetModules,
		"GetRouterStatus":       b.GetRouterStatus,
		"GetRouterSMR":          b.GetRouterSMR,
		"GetGlobalDescriptions": b.GetGlobalDescriptions,
		"StartMirror":           b.StartMirror,
		"StopMirror":            b.StopMirror,
		"RebootRouter":          b.RebootRouter,
		"RestartHub":            b.RestartHub,
	} {
		if _, err := build(1); err != nil {
			t.Errorf("%s(1) error = %v", name, err)
		}
		if _, err := build(256); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("%s(256) error = %v, want ErrInvalidArgument", name, err)
		}
	}
}

func TestParseGroupMode(t *testing.T) {
	tests := []struct {
		name    string
		want    GroupMode
		wantErr bool
	}{
		{"present", GroupModePresent, false},
		{"absent", GroupModeAbsent, false},
		{"sleeping", GroupModeSleeping, false},
		{"user2", GroupModeUser2, false},
		{"party", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseGroupMode(tt.name)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("ParseGroupMode(%q) error = %v, want ErrInvalidArgument", tt.name, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseGroupMode(%q) = %v, %v, want %v", tt.name, got, err, tt.want)
		}
	}
}

func TestModeByteDecomposition(t *testing.T) {
	// Mode 0x25: present group mode, day, alarm on.
	if got := GroupModeOf(0x25); got != GroupModePresent {
		t.Errorf("GroupModeOf(0x25) = %v, want present", got)
	}
	if got := DaytimeOf(0x25); got != DaytimeDay {
		t.Errorf("DaytimeOf(0x25) = %v, want day", got)
	}
	if got := AlarmOf(0x25); got != AlarmOn {
		t.Errorf("AlarmOf(0x25) = %v, want on", got)
	}

	// 63 is the update sentinel, not a masked high nibble.
	if got := GroupModeOf(63); got != GroupModeUpdate {
		t.Errorf("GroupModeOf(63) = %v, want update", got)
	}
}

func TestGroupMode_String(t *testing.T) {
	if got := GroupModeSummer.String(); got != "summer" {
		t.Errorf("String() = %q, want summer", got)
	}
	if got := GroupMode(9).String(); got != "mode(9)" {
		t.Errorf("String() = %q, want mode(9)", got)
	}
}
