package gen2

import (
	"fmt"
	"log/slog"
)

// SlotCommandKind selects which PDU begins a slot.
type SlotCommandKind int

const (
	SlotQuery SlotCommandKind = iota
	SlotQueryRep
	SlotQueryAdjustUp
	SlotQueryAdjustDown
	SlotQueryAdjustNIC
)

// SlotOutcome classifies a completed slot.
type SlotOutcome int

const (
	SlotCollision SlotOutcome = -1
	SlotEmpty     SlotOutcome = 0
	SlotTagFound  SlotOutcome = 1
)

// ExecuteSlot runs one inventory slot end-to-end: Query/QueryRep/
// QueryAdjust -> RN16 -> ACK -> PC+[XPC]+EPC -> Req_RN -> handle, per
// §4.6. followCmd is the chip command chained automatically after a
// successful EPC receive (typically QueryRep, to toggle the session
// flag for the next slot).
func (s *Session) ExecuteSlot(kind SlotCommandKind, q int, manualAck, fast, truncating bool, followCmd byte) (outcome SlotOutcome, tag *Tag, events EventMask, err error) {
	txBuf, txBits := s.encodeSlotCommand(kind, q)

	rn16Buf := s.scratch[:2]
	rxBits := 16
	txErr := s.radio.TxRxGen2Bytes(cmdTransmitCRC, txBuf, txBits, rn16Buf, &rxBits, s.profile.RxNoResponseWaitTime, followCmd, true)
	if IsNoResponse(txErr) {
		return SlotEmpty, nil, 0, nil
	}
	if txErr != nil {
		return SlotCollision, nil, 0, txErr
	}

	rn16, perr := ParseRN16Reply(rn16Buf, rxBits, false)
	if perr != nil {
		return SlotCollision, nil, 0, perr
	}

	t := &Tag{RN16: rn16}

	rssiLinI, adcErr := s.radio.GetADC()
	if adcErr == nil {
		t.RSSILinI = rssiLinI
	}
	rssiLinQ, adcErr := s.radio.GetADC()
	if adcErr == nil {
		t.RSSILinQ = rssiLinQ
	}

	epcBuf := s.scratch[:scratchBufferSize]
	epcBits := len(epcBuf) * 8
	retriesRemaining := MaxAckRetry

	var epcErr error
	if manualAck {
		ackBuf, ackBits := EncodeACK(rn16)
		epcErr = s.radio.TxRxGen2Bytes(cmdTransmitCRC, ackBuf, ackBits, epcBuf, &epcBits, s.profile.RxNoResponseWaitTime, followCmd, false)
	} else {
		epcErr = s.radio.RxGen2EPC(epcBuf, &epcBits, s.profile.RxNoResponseWaitTime, followCmd, false, &retriesRemaining)
	}
	if retriesRemaining < MaxAckRetry-1 {
		events |= EventResendAck
		slog.Debug("gen2: ACK retried", "rn16", rn16, "retries_remaining", retriesRemaining)
	}
	if epcErr != nil {
		return SlotCollision, nil, events, epcErr
	}

	parsed, perr := ParseACKReply(epcBuf, epcBits, truncating, s.rxIncludesCRC)
	if perr != nil {
		return SlotCollision, nil, events, perr
	}

	if truncating {
		// Inverted semantics preserved verbatim (§9 open question 1): a
		// CRC that validates here is reported as an error, a
		// missing/invalid CRC as success.
		if s.rxIncludesCRC && epcBits >= 16 {
			got := crc16Bitwise(epcBuf, epcBits-16)
			want := uint16(newBitReader(epcBuf, epcBits).readBitsAt(epcBits-16, 16))
			if got == want {
				slog.Debug("gen2: truncated ACK CRC validated, treating as collision per inverted-CRC erratum")
				return SlotCollision, nil, events, &ProtocolError{msg: "truncated ACK reply validated (treated as error)"}
			}
		}
		t.PC = [2]byte{0, 0}
		t.Truncated = true
		t.EPC = parsed.EPC
		t.EPCLen = len(parsed.EPC)
	} else {
		t.PC = parsed.PC
		t.XPC = parsed.XPC
		t.EPC = parsed.EPC
		t.EPCLen = len(parsed.EPC)
		if t.EPCLen > MaxEPCLength {
			t.EPCLen = MaxEPCLength
			t.EPC = t.EPC[:MaxEPCLength]
		}
		if !checkPCLengthInvariant(t.PC, t.EPCLen, len(t.XPC)) {
			return SlotCollision, nil, events, &ProtocolError{msg: "PC.L does not match received EPC+XPC length"}
		}
	}

	if !fast {
		handleBuf := s.scratch[:4]
		handleBits := 32
		hErr := s.radio.TxRxGen2Bytes(0, nil, 0, handleBuf, &handleBits, s.profile.RxNoResponseWaitTime, followCmd, false)
		if hErr != nil {
			return SlotCollision, nil, events, fmt.Errorf("gen2: slot: handle receive: %w", hErr)
		}
		handle, herr := ParseHandle32(handleBuf, handleBits)
		if herr != nil {
			return SlotCollision, nil, events, herr
		}
		t.Handle = handle
	}

	agc, rssiLogI, rssiLogQ := s.readAgcRssiLog()
	t.AGC, t.RSSILogI, t.RSSILogQ = agc, rssiLogI, rssiLogQ

	return SlotTagFound, t, events, nil
}

// encodeSlotCommand builds the PDU bytes for the given slot command
// kind under the session's current link configuration.
func (s *Session) encodeSlotCommand(kind SlotCommandKind, q int) ([]byte, int) {
	switch kind {
	case SlotQuery:
		return EncodeQuery(s.cfg, q)
	case SlotQueryRep:
		return EncodeQueryRep(s.cfg.Session)
	case SlotQueryAdjustUp:
		return EncodeQueryAdjust(s.cfg.Session, QueryAdjustUp)
	case SlotQueryAdjustDown:
		return EncodeQueryAdjust(s.cfg.Session, QueryAdjustDown)
	case SlotQueryAdjustNIC:
		return EncodeQueryAdjust(s.cfg.Session, QueryAdjustNIC)
	default:
		return EncodeQueryRep(s.cfg.Session)
	}
}

// readAgcRssiLog reads the radio's packed AGC/RSSI-log status register:
// the RSSI-log I value is its high nibble, the RSSI-log Q value its low
// nibble, and the AGC value returned is the whole register byte.
func (s *Session) readAgcRssiLog() (agc, rssiLogI, rssiLogQ byte) {
	status, err := s.radio.SingleRead(regAgcRssiLog)
	if err != nil {
		return 0, 0, 0
	}
	return status, (status >> 4) & 0x0F, status & 0x0F
}

const regAgcRssiLog = 0x0E
