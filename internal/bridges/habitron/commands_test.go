package habitron

import (
	"bytes"
	"errors"
	"testing"
)

// framePayload strips preamble and trailer from a wrapped frame.
func framePayload(t *testing.T, frame []byte) []byte {
	t.Helper()
	if !verifyFrame(frame) {
		t.Fatal("frame does not verify")
	}
	return frame[len(framePreamble) : len(frame)-frameTrailerLen]
}

func TestCatalog_EncodeSetOutputOn(t *testing.T) {
	cat := NewCatalog()

	frame, err := cat.Encode(CmdSetOutputOn, Substitution{Router: 1, Module: 5, Arg1: 3})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	// Actuator payloads repeat the router/module pair after the inner
	// length word before the channel argument.
	want := []byte{0x1E, 0x01, 0x01, 0x01, 0x05, 0x03, 0x00, 0x01, 0x05, 0x03}
	if got := framePayload(t, frame); !bytes.Equal(got, want) {
		t.Errorf("payload = % X, want % X", got, want)
	}
}

func TestCatalog_EncodeGetCompactStatus(t *testing.T) {
	cat := NewCatalog()

	frame, err := cat.Encode(CmdGetCompactStatus, Substitution{Router: 2})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	want := []byte{0x0A, 0x05, 0x02, 0x02, 0xFF, 0x00, 0x00}
	if got := framePayload(t, frame); !bytes.Equal(got, want) {
		t.Errorf("payload = % X, want % X", got, want)
	}
}

func TestCatalog_EncodeErrors(t *testing.T) {
	cat := NewCatalog()

	t.Run("unknown command", func(t *testing.T) {
		_, err := cat.Encode(Command("no_such_command"), Substitution{})
		if !errors.Is(err, ErrUnknownCommand) {
			t.Errorf("Encode() error = %v, want ErrUnknownCommand", err)
		}
	})

	t.Run("value above byte range", func(t *testing.T) {
		_, err := cat.Encode(CmdGetModules, Substitution{Router: 300})
		if !errors.Is(err, ErrEncoding) {
			t.Errorf("Encode() error = %v, want ErrEncoding", err)
		}
	})

	t.Run("negative value", func(t *testing.T) {
		_, err := cat.Encode(CmdGetModules, Substitution{Router: -1})
		if !errors.Is(err, ErrEncoding) {
			t.Errorf("Encode() error = %v, want ErrEncoding", err)
		}
	})
}

func TestCatalog_AllEntriesEncode(t *testing.T) {
	cat := NewCatalog()
	sub := Substitution{Router: 1, Module: 2, Arg1: 3, Arg2: 4, Arg3: 5}

	for name := range cat {
		frame, err := cat.Encode(name, sub)
		if err != nil {
			t.Errorf("Encode(%q) error = %v", name, err)
			continue
		}
		if !verifyFrame(frame) {
			t.Errorf("Encode(%q) produced a frame that does not verify", name)
		}
	}
}

func TestCatalog_SlotsInsidePattern(t *testing.T) {
	for name, tpl := range NewCatalog() {
		for _, slot := range tpl.Slots {
			if slot.Offset < 0 || slot.Offset >= len(tpl.Pattern) {
				t.Errorf("%q: slot offset %d outside pattern of %d bytes", name, slot.Offset, len(tpl.Pattern))
			}
		}
	}
}
