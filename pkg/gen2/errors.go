package gen2

import "fmt"

// TagErrorCode enumerates the Gen2v2 Annex I tag-reported error codes,
// surfaced when a delayed-reply command returns with its header bit set.
type TagErrorCode byte

const (
	TagErrOther                TagErrorCode = 0x00
	TagErrNotSupported         TagErrorCode = 0x01
	TagErrInsufficientPrivilege TagErrorCode = 0x02
	TagErrNoMem                TagErrorCode = 0x03
	TagErrMemLocked            TagErrorCode = 0x04
	TagErrCrypto               TagErrorCode = 0x05
	TagErrEncapsulation        TagErrorCode = 0x06
	TagErrRespBufOverflow      TagErrorCode = 0x07
	TagErrSecurityTimeout      TagErrorCode = 0x08
	TagErrPowerShortage        TagErrorCode = 0x0B
	TagErrNonspecific          TagErrorCode = 0x0F
)

func (c TagErrorCode) String() string {
	switch c {
	case TagErrOther:
		return "other error"
	case TagErrNotSupported:
		return "not supported"
	case TagErrInsufficientPrivilege:
		return "insufficient privileges"
	case TagErrNoMem:
		return "insufficient memory"
	case TagErrMemLocked:
		return "memory locked"
	case TagErrCrypto:
		return "cryptographic suite error"
	case TagErrEncapsulation:
		return "command not encapsulated"
	case TagErrRespBufOverflow:
		return "response buffer overflow"
	case TagErrSecurityTimeout:
		return "security timeout"
	case TagErrPowerShortage:
		return "insufficient power"
	case TagErrNonspecific:
		return "nonspecific error"
	default:
		return "nonspecific error"
	}
}

// classifyTagErrorCode maps a raw Annex I error byte onto the known
// taxonomy, collapsing anything unrecognized to Nonspecific, per
// gen2ProcessErrorCode in the original firmware.
func classifyTagErrorCode(raw byte) TagErrorCode {
	switch raw {
	case 0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x0B, 0x0F:
		return TagErrorCode(raw)
	default:
		return TagErrNonspecific
	}
}

// TagError reports a Gen2v2 Annex I error code returned by a tag in the
// header byte of a delayed reply.
type TagError struct {
	Code TagErrorCode
}

func (e *TagError) Error() string { return "gen2: tag: " + e.Code.String() }

// ParamError reports a local parameter-validation failure, e.g. a
// wordCount exceeding the scratch buffer's capacity.
type ParamError struct {
	msg string
}

func (e *ParamError) Error() string { return "gen2: " + e.msg }

func paramErrorf(format string, args ...any) error {
	return &ParamError{msg: fmt.Sprintf(format, args...)}
}

// ProtocolError reports a protocol-level mismatch that is not a raw
// radio-link error: a handle echoed back by a tag that does not match
// the handle sent, or a PC.L field inconsistent with the received EPC
// and XPC lengths.
type ProtocolError struct {
	msg string
}

func (e *ProtocolError) Error() string { return "gen2: " + e.msg }

// IsTagError reports whether err carries a Gen2v2 Annex I tag error
// code.
func IsTagError(err error) bool {
	_, ok := err.(*TagError)
	return ok
}

// IsParamError reports whether err is a local parameter-validation
// failure.
func IsParamError(err error) bool {
	_, ok := err.(*ParamError)
	return ok
}

// IsProtocolError reports whether err is a protocol-level mismatch
// (handle echo, PC.L length check) rather than a raw radio-link error.
func IsProtocolError(err error) bool {
	_, ok := err.(*ProtocolError)
	return ok
}
