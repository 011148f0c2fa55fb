package habitron

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Discovery constants.
const (
	// DefaultDiscoveryPort is the UDP port SmartIP/SmartHub devices answer on.
	DefaultDiscoveryPort = 30718

	// defaultDiscoveryTimeout bounds the collection window for broadcast
	// discovery and the wait for a unicast query.
	defaultDiscoveryTimeout = 2 * time.Second

	// discoveryResponseMin is the shortest fingerprint response carrying all
	// fixed-offset fields.
	discoveryResponseMin = 30
)

// discoveryProbe is the fixed 4-byte request header.
var discoveryProbe = []byte{0x00, 0x00, 0x00, 0xF6}

// discoveryReply is the fixed 4-byte header a device fingerprint starts with.
var discoveryReply = []byte{0x00, 0x00, 0x00, 0xF7}

// classicSmartIPType is the type fingerprint of first-generation hardware.
const classicSmartIPType = "E-5"

// DeviceInfo is one discovered SmartIP/SmartHub fingerprint.
type DeviceInfo struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Version string `json:"version"`
	Serial  string `json:"serial"`
	MAC     string `json:"mac"`
	IP      string `json:"ip"`
}

// IsClassic reports whether the device is a first-generation SmartIP.
func (d DeviceInfo) IsClassic() bool {
	return d.Type == classicSmartIPType
}

// Discover broadcasts the probe on the local subnet and collects device
// fingerprints until timeout expires. Used at setup time only, never on the
// poll path.
//
// Parameters:
//   - timeout: Collection window; zero means the 2 second default
//
// Returns:
//   - []DeviceInfo: All devices that answered, possibly empty
//   - error: ErrConnection if the socket cannot be opened
func Discover(timeout time.Duration) ([]DeviceInfo, error) {
	if timeout == 0 {
		timeout = defaultDiscoveryTimeout
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("%w: opening discovery socket: %w", ErrConnection, err)
	}
	defer conn.Close()

	bcast := &net.UDPAddr{IP: net.IPv4bcast, Port: DefaultDiscoveryPort}
	if _, err := conn.WriteToUDP(discoveryProbe, bcast); err != nil {
		return nil, fmt.Errorf("%w: sending discovery probe: %w", ErrConnection, err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("%w: setting deadline: %w", ErrConnection, err)
	}

	var found []DeviceInfo
	buf := make([]byte, 1024)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			// Deadline expiry ends the collection window.
			break
		}
		if info, ok := parseFingerprint(buf[:n], addr.IP.String()); ok {
			found = append(found, info)
		}
	}
	return found, nil
}

// Query sends the probe to a single known host and parses its fingerprint.
//
// Parameters:
//   - host: Device address (IP or DNS name)
//   - timeout: Response wait; zero means the 2 second default
//
// Returns:
//   - DeviceInfo: The device fingerprint
//   - error: ErrConnection or ErrTimeout
func Query(host string, timeout time.Duration) (DeviceInfo, error) {
	if timeout == 0 {
		timeout = defaultDiscoveryTimeout
	}

	addr := net.JoinHostPort(host, strconv.Itoa(DefaultDiscoveryPort))
	conn, err := net.Dial("udp4", addr)
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("%w: dialing %s: %w", ErrConnection, addr, err)
	}
	defer conn.Close()

	if _, err := conn.Write(discoveryProbe); err != nil {
		return DeviceInfo{}, fmt.Errorf("%w: sending probe to %s: %w", ErrConnection, addr, err)
	}
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return DeviceInfo{}, fmt.Errorf("%w: setting deadline: %w", ErrConnection, err)
	}

	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return DeviceInfo{}, fmt.Errorf("%w: no fingerprint from %s", ErrTimeout, addr)
		}
		return DeviceInfo{}, fmt.Errorf("%w: reading fingerprint from %s: %w", ErrConnection, addr, err)
	}

	info, ok := parseFingerprint(buf[:n], host)
	if !ok {
		return DeviceInfo{}, fmt.Errorf("%w: fingerprint of %d bytes from %s", ErrFraming, n, addr)
	}
	return info, nil
}

// parseFingerprint extracts the fixed-offset fields from a discovery
// response:
//
//	Byte 0-3:   reply header 00 00 00 F7
//	Byte 5-7:   firmware version, minor to major
//	Byte 8-9:   hardware type, two ASCII chars rendered "X-Y"
//	Byte 20-23: serial, four ASCII chars
//	Byte 24-29: MAC address
func parseFingerprint(resp []byte, ip string) (DeviceInfo, bool) {
	if len(resp) < discoveryResponseMin {
		return DeviceInfo{}, false
	}
	for i, b := range discoveryReply {
		if resp[i] != b {
			return DeviceInfo{}, false
		}
	}

	info := DeviceInfo{
		Type:    fmt.Sprintf("%c-%c", resp[8], resp[9]),
		Version: fmt.Sprintf("%d.%d.%d", resp[7], resp[6], resp[5]),
		Serial:  string(resp[20:24]),
		MAC: fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
			resp[24], resp[25], resp[26], resp[27], resp[28], resp[29]),
		IP: ip,
	}

	macFlat := ""
	for _, b := range resp[24:30] {
		macFlat += fmt.Sprintf("%02X", b)
	}
	if info.IsClassic() {
		info.Name = "SmartIP_" + macFlat
	} else {
		info.Name = "SmartHub_" + macFlat
	}
	return info, true
}
