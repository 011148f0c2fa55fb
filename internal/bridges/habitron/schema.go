package habitron

// Status record layouts.
//
// The router answers status reads with tightly packed fixed-size records,
// one per module, addressed by constant byte offsets. Three distinct layouts
// exist and must stay separate tables: the offsets are not additive between
// variants, module families shift later field positions.
//
//   - compact:      the recurring poll payload, all modules in one block
//   - full mirror:  on-demand single-module diagnostics, superset of fields
//   - small mirror: reduced variant for modules without the full sensor set

// StatusSchema names the byte offsets of one record layout. A value of -1
// marks a field the layout does not carry.
type StatusSchema struct {
	// Name identifies the layout in logs.
	Name string

	// RecordSize is the stride between modules. A block whose length is not
	// a multiple of RecordSize is malformed.
	RecordSize int

	Addr int
	Mode int

	// Inp1_8 starts three consecutive input mask bytes (1-8, 9-16, 17-24).
	Inp1_8 int

	// Out1_8 starts three consecutive output mask bytes.
	Out1_8 int

	// Dim1 starts four consecutive dimmer value bytes.
	Dim1 int

	// Two-byte little-endian fields, value scaled by 1/10.
	TempRoom int
	TempExt  int
	TempPwr  int

	Hum int
	AQI int
	Lum int
	Mov int

	Wind     int
	WindPeak int
	Rain     int

	// CoverPos and CoverTilt start eight single-byte slots each. Cover slot
	// maps are 1-based, so both offsets hold the table base minus one. Raw
	// values are closed-percentages; decode inverts them to open-percentages.
	CoverPos  int
	CoverTilt int

	// Setpoints, two-byte little-endian, 1/10 scaling.
	TSetp0 int
	TSetp1 int
	TSetp2 int

	// FlagLoc starts a two-byte little-endian local flag mask.
	FlagLoc int

	// Counter starts the logic region: triplets of (type, max, value).
	// A type byte of counterTypeCode marks a configured counter.
	Counter int
}

// counterTypeCode marks a logic slot configured as a counter.
const counterTypeCode = 5

// counterStride is the size of one (type, max, value) logic triplet.
const counterStride = 3

// coverSlots is the number of cover position/tilt slots per record.
const coverSlots = 8

// CompactSchema is the layout of one module record inside the recurring
// compact status block.
var CompactSchema = StatusSchema{
	Name:       "compact",
	RecordSize: 89,
	Addr:       0,
	Mode:       1,
	Inp1_8:     2,
	Dim1:       10,
	Out1_8:     6,
	TempRoom:   16,
	TempExt:    18,
	TempPwr:    20,
	Hum:        22,
	AQI:        23,
	Lum:        24,
	Mov:        26,
	CoverPos:   29,
	CoverTilt:  37,
	Wind:       45,
	WindPeak:   46,
	Rain:       47,
	TSetp0:     48,
	TSetp1:     50,
	TSetp2:     52,
	FlagLoc:    57,
	Counter:    59,
}

// FullMirrorSchema is the layout of a single-module diagnostic mirror read.
var FullMirrorSchema = StatusSchema{
	Name:       "full mirror",
	RecordSize: 93,
	Addr:       1,
	Mode:       4,
	Inp1_8:     5,
	Out1_8:     10,
	Dim1:       14,
	TempRoom:   20,
	TempPwr:    22,
	TempExt:    24,
	Hum:        26,
	AQI:        27,
	Lum:        28,
	Mov:        30,
	Wind:       32,
	WindPeak:   33,
	CoverPos:   41,
	CoverTilt:  57,
	TSetp0:     49,
	TSetp1:     72,
	TSetp2:     74,
	Rain:       79,
	FlagLoc:    -1,
	Counter:    -1,
}

// SmallMirrorSchema is the reduced mirror layout for modules without the
// full sensor set. Single input/output mask byte families, two dimmers.
var SmallMirrorSchema = StatusSchema{
	Name:       "small mirror",
	RecordSize: 42,
	Addr:       1,
	Mode:       4,
	Inp1_8:     5,
	Out1_8:     9,
	Dim1:       13,
	TempRoom:   16,
	TempPwr:    18,
	TempExt:    20,
	Hum:        22,
	AQI:        23,
	Lum:        24,
	Mov:        25,
	Wind:       -1,
	WindPeak:   -1,
	Rain:       -1,
	CoverPos:   27,
	CoverTilt:  32,
	TSetp0:     -1,
	TSetp1:     38,
	TSetp2:     40,
	FlagLoc:    -1,
	Counter:    -1,
}

// RouterSchema names the byte offsets inside a router status read.
type RouterSchema struct {
	Mode0         int
	FlagGlob      int // 2-byte little-endian global flag mask
	TimeOut       int // one byte per channel, 4 channels
	Currents      int // 2-byte little-endian per channel, milliamps
	Voltage5      int // 2-byte little-endian, tenths of a volt
	Voltage24     int // 2-byte little-endian, tenths of a volt
	ErrSystem     int
	MirrorStarted int

	// MinLength is the shortest status block the offsets above fit into.
	MinLength int
}

// routerChannels is the number of bus channels on a router.
const routerChannels = 4

// routerCurrentSlots is the number of measured current channels.
const routerCurrentSlots = 8

// DefaultRouterSchema is the router status layout.
var DefaultRouterSchema = RouterSchema{
	Mode0:         0,
	FlagGlob:      2,
	TimeOut:       4,
	Currents:      8,
	Voltage5:      24,
	Voltage24:     26,
	ErrSystem:     28,
	MirrorStarted: 29,
	MinLength:     30,
}

// ModuleTypeCode is the 2-byte hardware type identifier reported for every
// module, high family byte first.
type ModuleTypeCode [2]byte

// Family returns the first (family) byte of the type code.
func (t ModuleTypeCode) Family() byte { return t[0] }

// Profile selects the decode behaviour for a module family.
type Profile uint8

// Decode profiles. The profile decides which channels a record populates
// and which cover slot table applies.
const (
	ProfileController Profile = iota
	ProfileOutput
	ProfileDimmer
	ProfileUpDown
	ProfileInput
	ProfileDetect
	ProfileNature
	ProfileEKey
	ProfileUnknown
)

// ModuleType describes one catalog entry: human-readable name plus the
// decode profile and channel counts.
type ModuleType struct {
	Name    string
	Profile Profile

	Inputs    int
	Outputs   int
	Dimmers   int
	Covers    int
	LEDs      int
	Sensors   int
	Setpoints int

	// CoverSlotMap maps a logical cover index to its position/tilt slot.
	// The mapping is hardware-model-specific; see coverSlotsController.
	CoverSlotMap []int
}

// coverSlotsController is the Smart Controller cover remap. The controller
// wires its five covers to slots 1-5 but reports logical covers 0-1 on
// slots 4-5 and logical covers 2-4 on slots 1-3.
var coverSlotsController = []int{4, 5, 1, 2, 3}

// coverSlotsOutput is the identity mapping used by output modules, whose
// four covers sit on slots 1-4.
var coverSlotsOutput = []int{1, 2, 3, 4}

// coverSlotsUpDown is the single-cover mapping of the flush-mounted
// up/down module, which reports on slot 0.
var coverSlotsUpDown = []int{0}

// moduleTypes maps hardware type codes to their descriptors. Load-time
// table, never mutated.
var moduleTypes = map[ModuleTypeCode]ModuleType{
	{1, 1}:    {Name: "Smart Controller", Profile: ProfileController, Inputs: 18, Outputs: 15, Dimmers: 2, Covers: 5, LEDs: 8, Sensors: 5, Setpoints: 1, CoverSlotMap: coverSlotsController},
	{1, 2}:    {Name: "Smart Controller", Profile: ProfileController, Inputs: 18, Outputs: 15, Dimmers: 2, Covers: 5, LEDs: 8, Sensors: 5, Setpoints: 1, CoverSlotMap: coverSlotsController},
	{50, 1}:   {Name: "Smart Controller Mini", Profile: ProfileController, Inputs: 10, Outputs: 8, Dimmers: 2, Covers: 3, LEDs: 8, Sensors: 5, Setpoints: 1, CoverSlotMap: coverSlotsController},
	{10, 1}:   {Name: "Smart Out 8/R", Profile: ProfileOutput, Outputs: 8, Covers: 4, CoverSlotMap: coverSlotsOutput},
	{10, 2}:   {Name: "Smart Out 8/T", Profile: ProfileOutput, Outputs: 8, Covers: 4, CoverSlotMap: coverSlotsOutput},
	{10, 50}:  {Name: "Smart Out 8/R", Profile: ProfileOutput, Outputs: 8, Covers: 4, CoverSlotMap: coverSlotsOutput},
	{10, 51}:  {Name: "Smart Out 8/T", Profile: ProfileOutput, Outputs: 8, Covers: 4, CoverSlotMap: coverSlotsOutput},
	{10, 20}:  {Name: "Smart Dimm", Profile: ProfileDimmer, Inputs: 4, Outputs: 4, Dimmers: 4},
	{10, 21}:  {Name: "Smart Dimm", Profile: ProfileDimmer, Inputs: 4, Outputs: 4, Dimmers: 4},
	{10, 22}:  {Name: "Smart Dimm", Profile: ProfileDimmer, Inputs: 4, Outputs: 4, Dimmers: 4},
	{10, 30}:  {Name: "Smart UpM", Profile: ProfileUpDown, Inputs: 2, Outputs: 2, Covers: 1, CoverSlotMap: coverSlotsUpDown},
	{11, 1}:   {Name: "Smart In 8/230V", Profile: ProfileInput, Inputs: 8},
	{11, 2}:   {Name: "Smart In 8/24V", Profile: ProfileInput, Inputs: 8},
	{80, 100}: {Name: "Smart Detect 360", Profile: ProfileDetect, Sensors: 2},
	{80, 101}: {Name: "Smart Detect 360", Profile: ProfileDetect, Sensors: 2},
	{20, 1}:   {Name: "Smart Nature", Profile: ProfileNature, Sensors: 6},
	{30, 1}:   {Name: "Smart EKey", Profile: ProfileEKey, Inputs: 1},
}

// LookupModuleType resolves a type code against the catalog.
//
// Unknown codes return a degraded generic descriptor and false; the caller
// should record the module as unknown but keep decoding the minimal fields.
func LookupModuleType(code ModuleTypeCode) (ModuleType, bool) {
	if mt, ok := moduleTypes[code]; ok {
		return mt, true
	}
	return ModuleType{Name: "Unknown", Profile: ProfileUnknown}, false
}
