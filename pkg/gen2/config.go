package gen2

// BLF is the backscatter link frequency, in kHz.
type BLF int

const (
	BLF640 BLF = 640
	BLF320 BLF = 320
	BLF256 BLF = 256
	BLF213 BLF = 213
	BLF160 BLF = 160
	BLF40  BLF = 40
)

// Tari is the reader-to-tag reference interval, in microseconds.
type Tari float64

const (
	Tari25_00 Tari = 25.00
	Tari12_50 Tari = 12.50
	Tari6_25  Tari = 6.25
)

// Coding selects the tag-to-reader line code.
type Coding int

const (
	FM0 Coding = iota
	Miller2
	Miller4
	Miller8
)

// Session selects which of the four Gen2 inventoried flags a round
// targets.
type Session int

const (
	SessionS0 Session = iota
	SessionS1
	SessionS2
	SessionS3
)

// Target selects the inventoried-flag value (A/B) a round is looking
// for.
type Target int

const (
	TargetA Target = iota
	TargetB
)

// SelState is the Query Sel field: which subset of the population
// (by SL flag) participates in the round.
type SelState int

const (
	SelAll0 SelState = iota
	SelAll1
	SelNotSL
	SelSL
)

// DivideRatio is the Query DR field.
type DivideRatio int

const (
	DR8 DivideRatio = iota
	DR64of3
)

// Config is the immutable per-round session configuration: link
// parameters plus the inventoried-flag selection. Derived register
// values (DR, noRespTime, ...) are produced from this by
// DeriveTimingProfile.
type Config struct {
	BLF     BLF
	Tari    Tari
	Coding  Coding
	TRext   bool
	Session Session
	Target  Target
	Sel     SelState

	// T4Min overrides the table-derived T4 spacing in microseconds; 0
	// means "use the table default for Tari".
	T4Min uint32
}

// SelectTargetField is the 3-bit Target field of a Select command: the
// flag the command's Action acts on.
type SelectTargetField byte

const (
	SelectTargetS0 SelectTargetField = 0
	SelectTargetS1 SelectTargetField = 1
	SelectTargetS2 SelectTargetField = 2
	SelectTargetS3 SelectTargetField = 3
	SelectTargetSL SelectTargetField = 4
)

// SelectParams parameterizes one Select command.
type SelectParams struct {
	Target    SelectTargetField
	Action    byte // 3-bit Gen2 Select action code
	MemBank   byte // 2-bit
	Pointer   uint32
	MaskBits  byte // mask length in bits
	Mask      []byte
	Truncate  bool
}

// EventMask records which notable events occurred during a slot.
type EventMask uint16

const (
	EventCollision EventMask = 1 << iota
	EventEmptySlot
	EventTagFound
	EventQueryRep
	EventPreambleErr
	EventCRCErr
	EventHeaderErr
	EventRXCountErr
	EventResendAck
	EventSkipFollowCmd
)

// InventoryCallbacks is the capability trait the inventory engine
// drives per slot and per found tag.
type InventoryCallbacks interface {
	// TagFound is invoked once per successfully singulated tag. A false
	// return aborts the round at the next slot boundary.
	TagFound(tag *Tag) bool
	// SlotFinished reports the outcome of every slot, successful or
	// not.
	SlotFinished(slotTime uint32, events EventMask, q int)
	// ContinueScanning is polled once per slot; a false return aborts
	// the round at the next slot boundary, after completing teardown.
	ContinueScanning() bool
}

// FollowTagCommander is an optional extension to InventoryCallbacks: if
// the caller's callback value also implements this, the engine invokes
// it once per found tag instead of calling TagFound directly, and drops
// the tag (incrementing the skip counter) if it reports failure.
type FollowTagCommander interface {
	FollowTagCommand(tag *Tag) bool
}

// AdaptiveQConfig configures the adaptive-Q heuristic (§9: preserved
// exactly, fixed-point, no floating state).
type AdaptiveQConfig struct {
	Enabled bool

	// MinQ, MaxQ bound the floating accumulator, each scaled by 1e5.
	MinQ, MaxQ int32

	// C1 is the per-Q empty-slot decrement, in percent (0..100) of a
	// full Q step; C2 is the per-Q collision-slot increment, in the
	// same units. SearchForTags scales these to x1e5 fixed-point deltas
	// at round start.
	C1, C2 [16]int32

	ResetQAfterRound bool
	UseCeilFloor     bool
	SingleAdj        bool
	UseQueryAdjNIC   bool
}

// SearchParams parameterizes one inventory round.
type SearchParams struct {
	Q int

	// Singulate requests the auto-ACK hardware operate in one-tag mode
	// rather than all-tags ("fast") mode. In both manual and auto-ACK
	// rounds, a false value also makes each slot skip the handle
	// exchange after the EPC is received.
	Singulate bool

	AdaptiveQ *AdaptiveQConfig
	Callbacks InventoryCallbacks
}

// Statistics accumulates per-round counters, mutated by the inventory
// engine as it classifies each slot.
type Statistics struct {
	EmptyCount      uint32
	CollisionCount  uint32
	TagCount        uint32
	SkipCount       uint32
	PreambleErrCount uint32
	CRCErrCount     uint32
	HeaderErrCount  uint32
	RXCountErrCount uint32

	Q int

	// RSSILogSum is the running sum of (rssiLogI + rssiLogQ) across kept
	// tags, reset whenever TagCount is 0; the accumulator behind
	// RSSILogMean, mirroring the original firmware's separate
	// gGen2RssiLogIandQSum global rather than feeding the mean back into
	// itself.
	RSSILogSum uint32

	// RSSILogMean is the running mean of (rssiLogI + rssiLogQ) across
	// found tags, computed with the integer-rounding heuristic of §9
	// open question 2. Preserved verbatim.
	RSSILogMean uint32
}

// adaptiveQState is the mutable per-round accumulator driving the
// Q-adjustment decision tree of §4.7 step 7.
type adaptiveQState struct {
	qfp    int32 // x1e5
	adjCnt int   // remaining adjustments; -1 means unlimited
}
