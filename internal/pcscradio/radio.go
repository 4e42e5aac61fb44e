// Package pcscradio adapts a PC/SC smart-card connection to this
// reader family's UHF Gen2 front end onto gen2.Radio, framing every
// register access and link-level exchange as a single APDU transmit.
package pcscradio

import (
	"fmt"
	"sync"

	"github.com/ebfe/scard"

	"github.com/rfreader/gen2core/pkg/gen2"
)

// Proprietary instruction codes this reader's CCID interface exposes
// for the Gen2 front end, one per gen2.Radio method.
const (
	insSingleRead      = 0xD0
	insSingleWrite     = 0xD1
	insContinuousRead  = 0xD2
	insContinuousWrite = 0xD3
	insSingleCommand   = 0xD4
	insTxRxGen2        = 0xD5
	insRxGen2EPC       = 0xD6
	insAntennaPower    = 0xD7
	insClrResponse     = 0xD8
	insGetADC          = 0xD9
	insWaitForResponse = 0xDA
)

const claGen2 = 0xF0

// swOK is the ISO 7816 "command completed normally" status word.
const swOK = 0x9000

// Radio-link error codes carried in the status byte that follows the
// two-byte received-bit count in a TxRxGen2Bytes/RxGen2EPC response
// body, mirroring gen2.RadioErrorCode.
const (
	rcNone byte = iota
	rcNoResponse
	rcPreamble
	rcCollision
	rcCRC
	rcHeader
	rcRXCount
	rcChipHeader
)

var rcToGen2 = map[byte]gen2.RadioErrorCode{
	rcNoResponse: gen2.ErrNoResponse,
	rcPreamble:   gen2.ErrPreamble,
	rcCollision:  gen2.ErrCollision,
	rcCRC:        gen2.ErrCRC,
	rcHeader:     gen2.ErrHeader,
	rcRXCount:    gen2.ErrRXCount,
	rcChipHeader: gen2.ErrChipHeader,
}

var _ gen2.Radio = (*Radio)(nil)

// cardTransmitter is the slice of *scard.Card this package depends on,
// narrowed so the APDU framing logic can be driven by a fake in tests
// without a real PC/SC stack.
type cardTransmitter interface {
	Transmit(apdu []byte) ([]byte, error)
}

// Radio implements gen2.Radio over a PC/SC connection. It is not safe
// for concurrent use beyond the serialization gen2.Session already
// assumes; mu only guards against concurrent Close.
type Radio struct {
	mu     sync.Mutex
	ctx    *scard.Context
	realCard *scard.Card // nil in tests; used only to Disconnect on Close
	card   cardTransmitter
	Reader string
}

// Connect establishes a PC/SC context and connects to the reader at
// readerIndex (0-based, per ctx.ListReaders order).
func Connect(readerIndex int) (*Radio, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("pcscradio: establish context: %w", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil || len(readers) == 0 {
		_ = ctx.Release()
		return nil, fmt.Errorf("pcscradio: no readers found: %w", err)
	}
	if readerIndex < 0 || readerIndex >= len(readers) {
		_ = ctx.Release()
		return nil, fmt.Errorf("pcscradio: reader index out of range (0..%d)", len(readers)-1)
	}

	reader := readers[readerIndex]
	card, err := ctx.Connect(reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		_ = ctx.Release()
		return nil, fmt.Errorf("pcscradio: connect: %w", err)
	}

	return &Radio{ctx: ctx, card: card, realCard: card, Reader: reader}, nil
}

// Close disconnects the card and releases the PC/SC context.
func (r *Radio) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.realCard != nil {
		_ = r.realCard.Disconnect(scard.LeaveCard)
	}
	if r.ctx != nil {
		return r.ctx.Release()
	}
	return nil
}

// transmit sends one APDU (CLA=claGen2, the given INS, P1=P2=0, the
// given data as Lc/data) and strips the trailing two-byte status word,
// returning an error unless it is swOK.
func (r *Radio) transmit(ins byte, data []byte) ([]byte, error) {
	apdu := make([]byte, 0, 5+len(data))
	apdu = append(apdu, claGen2, ins, 0x00, 0x00, byte(len(data)))
	apdu = append(apdu, data...)

	resp, err := r.card.Transmit(apdu)
	if err != nil {
		return nil, fmt.Errorf("pcscradio: transmit: %w", err)
	}
	if len(resp) < 2 {
		return nil, fmt.Errorf("pcscradio: short response (%d bytes)", len(resp))
	}
	sw := uint16(resp[len(resp)-2])<<8 | uint16(resp[len(resp)-1])
	body := resp[:len(resp)-2]
	if sw != swOK {
		return body, fmt.Errorf("pcscradio: reader returned SW %#04x", sw)
	}
	return body, nil
}

func (r *Radio) SingleRead(reg byte) (byte, error) {
	resp, err := r.transmit(insSingleRead, []byte{reg})
	if err != nil {
		return 0, err
	}
	if len(resp) < 1 {
		return 0, fmt.Errorf("pcscradio: SingleRead: empty response")
	}
	return resp[0], nil
}

func (r *Radio) SingleWrite(reg, val byte) error {
	_, err := r.transmit(insSingleWrite, []byte{reg, val})
	return err
}

func (r *Radio) ContinuousRead(reg byte, n int) ([]byte, error) {
	resp, err := r.transmit(insContinuousRead, []byte{reg, byte(n)})
	if err != nil {
		return nil, err
	}
	if len(resp) < n {
		return nil, fmt.Errorf("pcscradio: ContinuousRead: got %d bytes, want %d", len(resp), n)
	}
	return resp[:n], nil
}

func (r *Radio) ContinuousWrite(reg byte, buf []byte) error {
	data := append([]byte{reg}, buf...)
	_, err := r.transmit(insContinuousWrite, data)
	return err
}

func (r *Radio) SingleCommand(cmd byte) error {
	_, err := r.transmit(insSingleCommand, []byte{cmd})
	return err
}

func (r *Radio) TxRxGen2Bytes(cmd byte, tx []byte, txBits int, rx []byte, rxBits *int, noRespTime byte, followCmd byte, waitTxIRQ bool) error {
	data := make([]byte, 0, 7+len(tx))
	data = append(data, cmd, byte(txBits>>8), byte(txBits), byte(len(tx)))
	data = append(data, tx...)
	data = append(data, noRespTime, followCmd, boolByte(waitTxIRQ), byte(len(rx)>>8), byte(len(rx)))

	resp, err := r.transmit(insTxRxGen2, data)
	if len(resp) >= 3 {
		*rxBits = int(resp[0])<<8 | int(resp[1])
		n := copy(rx, resp[3:])
		_ = n
		if code, ok := rcToGen2[resp[2]]; ok {
			return &gen2.RadioError{Code: code}
		}
	}
	return err
}

func (r *Radio) RxGen2EPC(rx []byte, rxBits *int, noRespTime byte, followCmd byte, waitTxIRQ bool, retriesRemaining *int) error {
	data := []byte{noRespTime, followCmd, boolByte(waitTxIRQ), byte(*retriesRemaining), byte(len(rx) >> 8), byte(len(rx))}

	resp, err := r.transmit(insRxGen2EPC, data)
	if len(resp) >= 4 {
		*rxBits = int(resp[0])<<8 | int(resp[1])
		*retriesRemaining = int(resp[3])
		copy(rx, resp[4:])
		if code, ok := rcToGen2[resp[2]]; ok {
			return &gen2.RadioError{Code: code}
		}
	}
	return err
}

func (r *Radio) AntennaPower(on bool) error {
	_, err := r.transmit(insAntennaPower, []byte{boolByte(on)})
	return err
}

func (r *Radio) ClrResponse() error {
	_, err := r.transmit(insClrResponse, nil)
	return err
}

func (r *Radio) GetADC() (int8, error) {
	resp, err := r.transmit(insGetADC, nil)
	if err != nil {
		return 0, err
	}
	if len(resp) < 1 {
		return 0, fmt.Errorf("pcscradio: GetADC: empty response")
	}
	return int8(resp[0]), nil
}

func (r *Radio) WaitForResponse(mask uint16) error {
	_, err := r.transmit(insWaitForResponse, []byte{byte(mask >> 8), byte(mask)})
	return err
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
