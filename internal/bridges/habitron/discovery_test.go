package habitron

import "testing"

// fingerprint builds a minimal valid discovery response.
func fingerprint(hwType [2]byte) []byte {
	resp := make([]byte, discoveryResponseMin)
	copy(resp, discoveryReply)
	resp[5], resp[6], resp[7] = 4, 1, 2 // version 2.1.4, major last
	resp[8], resp[9] = hwType[0], hwType[1]
	copy(resp[20:24], "A7F3")
	copy(resp[24:30], []byte{0x00, 0x80, 0xA3, 0x12, 0x34, 0x56})
	return resp
}

func TestParseFingerprint_SmartHub(t *testing.T) {
	info, ok := parseFingerprint(fingerprint([2]byte{'X', '9'}), "192.0.2.10")
	if !ok {
		t.Fatal("parseFingerprint() rejected a valid response")
	}

	if info.Type != "X-9" {
		t.Errorf("Type = %q, want X-9", info.Type)
	}
	if info.Version != "2.1.4" {
		t.Errorf("Version = %q, want 2.1.4 (major first)", info.Version)
	}
	if info.Serial != "A7F3" {
		t.Errorf("Serial = %q", info.Serial)
	}
	if info.MAC != "00:80:A3:12:34:56" {
		t.Errorf("MAC = %q", info.MAC)
	}
	if info.Name != "SmartHub_0080A3123456" {
		t.Errorf("Name = %q", info.Name)
	}
	if info.IP != "192.0.2.10" {
		t.Errorf("IP = %q", info.IP)
	}
	if info.IsClassic() {
		t.Error("IsClassic() = true for a SmartHub fingerprint")
	}
}

func TestParseFingerprint_ClassicSmartIP(t *testing.T) {
	info, ok := parseFingerprint(fingerprint([2]byte{'E', '5'}), "192.0.2.11")
	if !ok {
		t.Fatal("parseFingerprint() rejected a valid response")
	}

	if !info.IsClassic() {
		t.Error("IsClassic() = false for an E-5 fingerprint")
	}
	if info.Name != "SmartIP_0080A3123456" {
		t.Errorf("Name = %q, want SmartIP prefix for classic hardware", info.Name)
	}
}

func TestParseFingerprint_Rejections(t *testing.T) {
	valid := fingerprint([2]byte{'X', '9'})

	tests := []struct {
		name string
		resp []byte
	}{
		{"too short", valid[:discoveryResponseMin-1]},
		{"wrong header", append([]byte{0x00, 0x00, 0x00, 0xF6}, valid[4:]...)},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := parseFingerprint(tt.resp, "192.0.2.10"); ok {
				t.Error("parseFingerprint() accepted a malformed response")
			}
		})
	}
}
