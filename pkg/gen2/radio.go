package gen2

import "errors"

// Radio is the transceiver collaborator the core drives. Implementations
// talk to the physical UHF chip (register map, IRQ handling, PHY
// modulation) which are out of scope for this package; see
// internal/pcscradio for a concrete PC/SC-backed adapter.
type Radio interface {
	SingleRead(reg byte) (byte, error)
	SingleWrite(reg byte, val byte) error
	ContinuousRead(reg byte, n int) ([]byte, error)
	ContinuousWrite(reg byte, buf []byte) error
	SingleCommand(cmd byte) error

	// TxRxGen2Bytes transmits a PDU and awaits backscatter, optionally
	// chaining a follow-command in hardware. rxBits is an in/out
	// parameter: callers pass the maximum receive length and the radio
	// reports back the number of bits actually received. Radio-link
	// errors are reported as a *RadioError; transport failures may be
	// returned as other error types.
	TxRxGen2Bytes(cmd byte, tx []byte, txBits int, rx []byte, rxBits *int, noRespTime byte, followCmd byte, waitTxIRQ bool) error

	// RxGen2EPC is a specialized EPC receive with built-in ACK retry,
	// used by the slot executor only when manualAck is false; the
	// manual-ACK path sends ACK through TxRxGen2Bytes and does not
	// retry. retriesRemaining is in/out: the caller passes MaxAckRetry
	// and the radio decrements it
	// once per retry actually performed.
	RxGen2EPC(rx []byte, rxBits *int, noRespTime byte, followCmd byte, waitTxIRQ bool, retriesRemaining *int) error

	AntennaPower(on bool) error
	ClrResponse() error
	GetADC() (int8, error)
	WaitForResponse(mask uint16) error
}

// Clock is the monotonic tick and busy-wait collaborator.
type Clock interface {
	// Ticks returns a monotonic millisecond counter.
	Ticks() uint32
	// DelayMicros busy-waits for the given number of microseconds. Used
	// to observe the T4 reader-to-tag link spacing and similar
	// mandatory timing windows.
	DelayMicros(us uint32)
}

// RadioErrorCode enumerates the radio-link error taxonomy of spec §7.
type RadioErrorCode int

const (
	ErrNone RadioErrorCode = iota
	ErrNoResponse
	ErrPreamble
	ErrCollision
	ErrCRC
	ErrHeader
	ErrRXCount
	ErrChipHeader
)

func (c RadioErrorCode) String() string {
	switch c {
	case ErrNone:
		return "none"
	case ErrNoResponse:
		return "no response"
	case ErrPreamble:
		return "preamble error"
	case ErrCollision:
		return "collision"
	case ErrCRC:
		return "CRC error"
	case ErrHeader:
		return "header error"
	case ErrRXCount:
		return "RX count error"
	case ErrChipHeader:
		return "chip-reported header error"
	default:
		return "unknown radio error"
	}
}

// RadioError wraps one of the radio-link error codes reported by a
// Radio implementation.
type RadioError struct {
	Code RadioErrorCode
}

func (e *RadioError) Error() string { return "gen2: radio: " + e.Code.String() }

// radioCode extracts the RadioErrorCode carried by err, if any.
func radioCode(err error) (RadioErrorCode, bool) {
	var re *RadioError
	if errors.As(err, &re) {
		return re.Code, true
	}
	return 0, false
}

// IsNoResponse reports whether err is a radio "no response" condition
// (an empty slot, not a collision).
func IsNoResponse(err error) bool {
	code, ok := radioCode(err)
	return ok && code == ErrNoResponse
}

// IsCollision reports whether err should be counted as a collision: the
// slot executor promotes PREAMBLE errors to the same bucket as COLLISION,
// per spec §4.7 step 4.
func IsCollision(err error) bool {
	code, ok := radioCode(err)
	return ok && (code == ErrCollision || code == ErrPreamble)
}

// IsCRCError reports whether err is a CRC-link error.
func IsCRCError(err error) bool {
	code, ok := radioCode(err)
	return ok && code == ErrCRC
}

// IsChipHeaderError reports whether err is a delayed-reply error-header
// condition (ERR_CHIP_HEADER in the original firmware).
func IsChipHeaderError(err error) bool {
	code, ok := radioCode(err)
	return ok && code == ErrChipHeader
}
