package habitron

import (
	"encoding/binary"
	"fmt"
)

// Decoded channel views. These are transient per-cycle values; the device
// registry owns the long-lived runtime state.

// BoolChannel is one decoded input, output, LED or flag bit.
type BoolChannel struct {
	Number int  `json:"number"`
	On     bool `json:"on"`
}

// ValueChannel is one decoded raw byte value (dimmer level).
type ValueChannel struct {
	Number int `json:"number"`
	Value  int `json:"value"`
}

// CoverChannel is one decoded cover. Position and tilt are open-percentages:
// the hardware reports closed-percentages, the decoder inverts them.
type CoverChannel struct {
	Number   int `json:"number"`
	Position int `json:"position"`
	Tilt     int `json:"tilt"`
}

// Sensor is one decoded physical measurement.
type Sensor struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Counter is one decoded logic counter triplet.
type Counter struct {
	Number int `json:"number"`
	Max    int `json:"max"`
	Value  int `json:"value"`
}

// Sensor names used by the decoder.
const (
	SensorMovement    = "movement"
	SensorTemperature = "temperature"
	SensorTempExt     = "temperature_ext"
	SensorHumidity    = "humidity"
	SensorIlluminance = "illuminance"
	SensorAirQuality  = "air_quality"
	SensorWind        = "wind"
	SensorWindPeak    = "wind_peak"
	SensorRain        = "rain"
)

// ModuleRecord is the decoded view of one module's status record.
type ModuleRecord struct {
	Addr     byte           `json:"addr"`
	TypeCode ModuleTypeCode `json:"type_code"`
	TypeName string         `json:"type_name"`
	Mode     byte           `json:"mode"`

	// Unknown is set when the type code is not in the catalog and only the
	// minimal field set was decoded.
	Unknown bool `json:"unknown,omitempty"`

	Inputs    []BoolChannel  `json:"inputs,omitempty"`
	Outputs   []BoolChannel  `json:"outputs,omitempty"`
	LEDs      []BoolChannel  `json:"leds,omitempty"`
	Flags     []BoolChannel  `json:"flags,omitempty"`
	Dimmers   []ValueChannel `json:"dimmers,omitempty"`
	Covers    []CoverChannel `json:"covers,omitempty"`
	Sensors   []Sensor       `json:"sensors,omitempty"`
	Setpoints []Sensor       `json:"setpoints,omitempty"`
	Counters  []Counter      `json:"counters,omitempty"`
}

// RouterRecord is the decoded view of a router status read.
type RouterRecord struct {
	Mode0         byte      `json:"mode0"`
	GlobalFlags   uint16    `json:"global_flags"`
	Timeouts      []int     `json:"timeouts"`
	Currents      []float64 `json:"currents"` // amps per channel
	Voltage5      float64   `json:"voltage_5"`
	Voltage24     float64   `json:"voltage_24"`
	SystemOK      bool      `json:"system_ok"`
	MirrorStarted bool      `json:"mirror_started"`
}

// Decoder turns raw status blocks into typed records, dispatching on the
// per-module type code. One decoder handles all module families; behaviour
// differences are data (schema offsets, profiles, channel counts), not code.
type Decoder struct {
	types map[byte]ModuleTypeCode
}

// NewDecoder creates a decoder for a known module inventory.
//
// Parameters:
//   - types: Module bus address to hardware type code, from the module
//     enumeration at startup
func NewDecoder(types map[byte]ModuleTypeCode) *Decoder {
	return &Decoder{types: types}
}

// DecodeCompactStatus slices a compact status block into per-module records.
//
// The block must be an exact multiple of the compact record size; a
// remainder means a truncated or corrupt block and no partial output is
// produced.
//
// Parameters:
//   - raw: Compact status payload as returned by the router
//
// Returns:
//   - []ModuleRecord: One record per module in block order
//   - error: ErrFraming if the block length is not a record multiple
func (d *Decoder) DecodeCompactStatus(raw []byte) ([]ModuleRecord, error) {
	size := CompactSchema.RecordSize
	if len(raw)%size != 0 {
		return nil, fmt.Errorf("%w: compact block of %d bytes is not a multiple of %d", ErrFraming, len(raw), size)
	}

	records := make([]ModuleRecord, 0, len(raw)/size)
	for off := 0; off < len(raw); off += size {
		records = append(records, d.decodeRecord(CompactSchema, raw[off:off+size]))
	}
	return records, nil
}

// DecodeMirrorStatus decodes a single-module diagnostic mirror read.
//
// Modules with the full sensor set answer with the full mirror layout,
// the rest with the small one; the module's decode profile selects the
// schema. An uncatalogued module cannot select a layout, so the read
// fails with ErrUnknownModuleType instead of guessing offsets.
func (d *Decoder) DecodeMirrorStatus(raw []byte) (ModuleRecord, error) {
	if len(raw) < 2 {
		return ModuleRecord{}, fmt.Errorf("%w: mirror block of %d bytes", ErrFraming, len(raw))
	}

	addr := raw[SmallMirrorSchema.Addr]
	code, haveCode := d.types[addr]
	mt, known := LookupModuleType(code)
	if !haveCode || !known {
		return ModuleRecord{}, fmt.Errorf("%w: module %d type %d/%d", ErrUnknownModuleType, addr, code[0], code[1])
	}

	schema := SmallMirrorSchema
	if mt.Profile == ProfileController || mt.Profile == ProfileNature || mt.Profile == ProfileDetect {
		schema = FullMirrorSchema
	}
	if len(raw) < schema.RecordSize {
		return ModuleRecord{}, fmt.Errorf("%w: %s block of %d bytes, need %d", ErrFraming, schema.Name, len(raw), schema.RecordSize)
	}
	return d.decodeRecord(schema, raw[:schema.RecordSize]), nil
}

// DecodeRouterStatus decodes a router status read.
func DecodeRouterStatus(raw []byte) (RouterRecord, error) {
	s := DefaultRouterSchema
	if len(raw) < s.MinLength {
		return RouterRecord{}, fmt.Errorf("%w: router status of %d bytes, need %d", ErrFraming, len(raw), s.MinLength)
	}

	rec := RouterRecord{
		Mode0:         raw[s.Mode0],
		GlobalFlags:   binary.LittleEndian.Uint16(raw[s.FlagGlob:]),
		Voltage5:      float64(binary.LittleEndian.Uint16(raw[s.Voltage5:])) / 10,
		Voltage24:     float64(binary.LittleEndian.Uint16(raw[s.Voltage24:])) / 10,
		SystemOK:      raw[s.ErrSystem] == 0,
		MirrorStarted: raw[s.MirrorStarted] != 0,
	}
	for ch := 0; ch < routerChannels; ch++ {
		rec.Timeouts = append(rec.Timeouts, int(raw[s.TimeOut+ch]))
	}
	for ch := 0; ch < routerCurrentSlots; ch++ {
		mA := binary.LittleEndian.Uint16(raw[s.Currents+2*ch:])
		rec.Currents = append(rec.Currents, float64(mA)/1000)
	}
	return rec, nil
}

// decodeRecord extracts one module's fields per its type profile.
func (d *Decoder) decodeRecord(s StatusSchema, rec []byte) ModuleRecord {
	addr := rec[s.Addr]
	code, haveCode := d.types[addr]
	mt, known := LookupModuleType(code)

	out := ModuleRecord{
		Addr:     addr,
		TypeCode: code,
		TypeName: mt.Name,
		Mode:     rec[s.Mode],
		Unknown:  !haveCode || !known,
	}
	if out.Unknown {
		// Degraded decode: address and mode only.
		return out
	}

	switch mt.Profile {
	case ProfileController:
		out.Sensors = []Sensor{
			{SensorMovement, float64(rec[s.Mov])},
			{SensorTemperature, le16(rec, s.TempRoom) / 10},
			{SensorHumidity, float64(rec[s.Hum])},
			{SensorIlluminance, float64(rec[s.Lum]) * 10},
			{SensorAirQuality, float64(rec[s.AQI])},
		}
		if s.TSetp0 >= 0 {
			out.Setpoints = []Sensor{{SensorTemperature, le16(rec, s.TSetp0) / 10}}
		}
		out.Outputs = boolChannels(maskAt(rec, s.Out1_8, 2), mt.Outputs)
		out.Dimmers = valueChannels(rec, s.Dim1, mt.Dimmers)
		out.LEDs = boolChannels(uint32(rec[s.Out1_8+2]), mt.LEDs)
		out.Inputs = boolChannels(maskAt(rec, s.Inp1_8, 3), mt.Inputs)
		out.Covers = d.decodeCovers(s, rec, mt)
		out.Counters = decodeCounters(s, rec)
		out.Flags = decodeFlags(s, rec)

	case ProfileOutput:
		out.Outputs = boolChannels(uint32(rec[s.Out1_8]), mt.Outputs)
		out.Covers = d.decodeCovers(s, rec, mt)

	case ProfileDimmer:
		out.Inputs = boolChannels(uint32(rec[s.Inp1_8]), mt.Inputs)
		out.Outputs = boolChannels(uint32(rec[s.Out1_8]), mt.Outputs)
		out.Dimmers = valueChannels(rec, s.Dim1, mt.Dimmers)

	case ProfileUpDown:
		out.Inputs = boolChannels(uint32(rec[s.Inp1_8]), mt.Inputs)
		out.Outputs = boolChannels(uint32(rec[s.Out1_8]), mt.Outputs)
		out.Covers = d.decodeCovers(s, rec, mt)

	case ProfileInput, ProfileEKey:
		out.Inputs = boolChannels(uint32(rec[s.Inp1_8]), mt.Inputs)

	case ProfileDetect:
		out.Sensors = []Sensor{
			{SensorMovement, float64(rec[s.Mov])},
			{SensorIlluminance, float64(rec[s.Lum]) * 10},
		}

	case ProfileNature:
		out.Sensors = []Sensor{
			{SensorTemperature, le16(rec, s.TempRoom) / 10},
			{SensorHumidity, float64(rec[s.Hum])},
			{SensorIlluminance, le16(rec, s.Lum)},
		}
		if s.Wind >= 0 {
			out.Sensors = append(out.Sensors,
				Sensor{SensorWind, float64(rec[s.Wind])},
				Sensor{SensorRain, float64(rec[s.Rain])},
				Sensor{SensorWindPeak, float64(rec[s.WindPeak])},
			)
		}
	}

	return out
}

// decodeCovers reads position and tilt for every logical cover through the
// module type's slot map, inverting raw closed-percentages to open ones.
func (d *Decoder) decodeCovers(s StatusSchema, rec []byte, mt ModuleType) []CoverChannel {
	covers := make([]CoverChannel, 0, len(mt.CoverSlotMap))
	for i, slot := range mt.CoverSlotMap {
		if i >= mt.Covers || slot >= coverSlots {
			break
		}
		covers = append(covers, CoverChannel{
			Number:   i,
			Position: invertPercent(rec[s.CoverPos+slot]),
			Tilt:     invertPercent(rec[s.CoverTilt+slot]),
		})
	}
	return covers
}

// decodeCounters scans the logic region for configured counter triplets.
func decodeCounters(s StatusSchema, rec []byte) []Counter {
	if s.Counter < 0 {
		return nil
	}
	var counters []Counter
	for n := 0; ; n++ {
		off := s.Counter + n*counterStride
		if off+counterStride > s.RecordSize || rec[off] != counterTypeCode {
			break
		}
		counters = append(counters, Counter{
			Number: n,
			Max:    int(rec[off+1]),
			Value:  int(rec[off+2]),
		})
	}
	return counters
}

// decodeFlags expands the local flag mask. Flag numbers are 1-based on the
// bus; bit n-1 carries flag n.
func decodeFlags(s StatusSchema, rec []byte) []BoolChannel {
	if s.FlagLoc < 0 {
		return nil
	}
	mask := binary.LittleEndian.Uint16(rec[s.FlagLoc:])
	flags := make([]BoolChannel, 16)
	for i := range flags {
		flags[i] = BoolChannel{Number: i + 1, On: mask&(1<<i) != 0}
	}
	return flags
}

// boolChannels expands the low count bits of mask, one channel per bit.
func boolChannels(mask uint32, count int) []BoolChannel {
	chans := make([]BoolChannel, count)
	for i := 0; i < count; i++ {
		chans[i] = BoolChannel{Number: i, On: mask&(1<<i) != 0}
	}
	return chans
}

// valueChannels reads count consecutive raw bytes starting at off.
func valueChannels(rec []byte, off, count int) []ValueChannel {
	chans := make([]ValueChannel, count)
	for i := 0; i < count; i++ {
		chans[i] = ValueChannel{Number: i, Value: int(rec[off+i])}
	}
	return chans
}

// maskAt assembles an n-byte little-endian mask.
func maskAt(rec []byte, off, n int) uint32 {
	var mask uint32
	for i := 0; i < n; i++ {
		mask |= uint32(rec[off+i]) << (8 * i)
	}
	return mask
}

// le16 reads a two-byte little-endian field as float64.
func le16(rec []byte, off int) float64 {
	return float64(binary.LittleEndian.Uint16(rec[off:]))
}

// invertPercent converts a reported closed-percentage to an open one.
func invertPercent(raw byte) int {
	v := 100 - int(raw)
	if v < 0 {
		v = 0
	}
	return v
}
