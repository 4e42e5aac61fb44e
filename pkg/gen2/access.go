package gen2

import (
	"fmt"
	"log/slog"
)

// Select transmits a Select command, updating the population's SL or
// session flags, and returns a token describing whether this Select
// armed the truncate latch (target SL, EPC memory bank, truncation
// requested). The token must be passed to the next SearchForTags or
// QueryMeasureRSSI call; it is consumed whether or not that call
// actually observes truncation.
func (s *Session) Select(p SelectParams) (TruncateToken, error) {
	buf, bits := EncodeSelect(p)
	rx := s.scratch[:1]
	rxBits := 1
	err := s.radio.TxRxGen2Bytes(cmdTransmitCRC, buf, bits, rx, &rxBits, 1, 0, true)
	if err != nil && !IsNoResponse(err) {
		return TruncateToken{}, fmt.Errorf("gen2: select: %w", err)
	}

	s.clock.DelayMicros(s.profile.T4Micros)

	truncate := p.Truncate && p.Target == SelectTargetSL && MemBank(p.MemBank) == MemBankEPC
	return TruncateToken{active: truncate}, nil
}

// AccessTag performs the two-pass access-password sequence of §4.8. A
// zero password short-circuits to success without transmitting
// anything.
func (s *Session) AccessTag(tag *Tag, password [4]byte) error {
	if password == ([4]byte{}) {
		return nil
	}

	halves := [2]uint16{
		uint16(password[0])<<8 | uint16(password[1]),
		uint16(password[2])<<8 | uint16(password[3]),
	}

	for _, half := range halves {
		rn16, err := s.reqRN(tag.Handle)
		if err != nil {
			return fmt.Errorf("gen2: access: %w", err)
		}

		coded := coverCode(half, rn16)
		buf, bits := EncodeAccess(coded, tag.Handle)
		rx := s.scratch[:4]
		rxBits := 32
		err = s.radio.TxRxGen2Bytes(cmdTransmitCRC, buf, bits, rx, &rxBits, s.profile.RxNoResponseWaitTime, 0, true)
		if err != nil {
			if IsChipHeaderError(err) && rxBits > 0 {
				return &TagError{Code: classifyTagErrorCode(rx[0])}
			}
			return &ProtocolError{msg: "access: handle echo failed"}
		}

		echoed := uint16(rx[0])<<8 | uint16(rx[1])
		if echoed != tag.Handle {
			return &ProtocolError{msg: "access: handle echo mismatch"}
		}
	}
	return nil
}

// LockTag sends a Lock command with a 20-bit mask/action payload and
// awaits the delayed reply.
func (s *Session) LockTag(tag *Tag, maskAction [3]byte) (tagReply TagErrorCode, err error) {
	buf, bits := EncodeLock(maskAction, tag.Handle)
	rx := s.scratch[:5]
	rxBits := 33

	err = s.withLongWait(func() error {
		return s.radio.TxRxGen2Bytes(cmdTransmitCRCExpHead, buf, bits, rx, &rxBits, 0xFF, 0, true)
	})

	if IsChipHeaderError(err) && rxBits > 0 {
		code := classifyTagErrorCode(rx[0])
		slog.Warn("gen2: lock returned tag error", "handle", tag.Handle, "code", code)
		return code, &TagError{Code: code}
	}
	if err != nil {
		return 0, fmt.Errorf("gen2: lock: %w", err)
	}
	return 0, nil
}

// KillTag performs the two-pass kill sequence: the first pass carries
// rfu in the 3-bit RFU/Recom field (callers pass 0 for zeroed RFU
// bits), the second carries the recom bits and expects a header bit.
func (s *Session) KillTag(tag *Tag, password [4]byte, rfu, recom byte) (tagError TagErrorCode, err error) {
	halves := [2]uint16{
		uint16(password[0])<<8 | uint16(password[1]),
		uint16(password[2])<<8 | uint16(password[3]),
	}

	for pass, half := range halves {
		rn16, rerr := s.reqRN(tag.Handle)
		if rerr != nil {
			return 0, fmt.Errorf("gen2: kill: %w", rerr)
		}

		coded := coverCode(half, rn16)
		bits3 := rfu
		cmd := byte(cmdTransmitCRC)
		rxBits := 32
		if pass == 1 {
			bits3 = recom
			cmd = cmdTransmitCRCExpHead
			rxBits = 33
		}

		buf, bits := EncodeKill(coded, bits3, tag.Handle)
		rx := s.scratch[:5]

		werr := s.withLongWait(func() error {
			return s.radio.TxRxGen2Bytes(cmd, buf, bits, rx, &rxBits, 0xFF, 0, true)
		})
		if werr != nil {
			if IsChipHeaderError(werr) && rxBits > 0 {
				return classifyTagErrorCode(rx[0]), &TagError{Code: classifyTagErrorCode(rx[0])}
			}
			return 0, fmt.Errorf("gen2: kill: %w", werr)
		}
	}
	return 0, nil
}

// WriteWordToTag writes one cover-coded 16-bit word via Req_RN ->
// Write and awaits the delayed reply.
func (s *Session) WriteWordToTag(tag *Tag, bank MemBank, wordPtr uint32, data [2]byte) (tagError TagErrorCode, err error) {
	rn16, rerr := s.reqRN(tag.Handle)
	if rerr != nil {
		return 0, fmt.Errorf("gen2: write: %w", rerr)
	}

	plaintext := uint16(data[0])<<8 | uint16(data[1])
	coded := coverCode(plaintext, rn16)

	buf, bits := EncodeWrite(bank, wordPtr, coded, tag.Handle)
	rx := s.scratch[:5]
	rxBits := 33

	werr := s.withLongWait(func() error {
		return s.radio.TxRxGen2Bytes(cmdTransmitCRCExpHead, buf, bits, rx, &rxBits, 0xFF, 0, true)
	})
	if IsChipHeaderError(werr) && rxBits > 0 {
		code := classifyTagErrorCode(rx[0])
		return code, &TagError{Code: code}
	}
	if werr != nil {
		return 0, fmt.Errorf("gen2: write: %w", werr)
	}
	return 0, nil
}

// WriteBlockToTag writes N words in one BlockWrite command, without
// Req_RN cover-coding, and awaits the delayed reply.
func (s *Session) WriteBlockToTag(tag *Tag, bank MemBank, wordPtr uint32, words []uint16) (tagError TagErrorCode, err error) {
	buf, bits := EncodeBlockWrite(bank, wordPtr, words, tag.Handle)
	rx := s.scratch[:5]
	rxBits := 33

	werr := s.withLongWait(func() error {
		return s.radio.TxRxGen2Bytes(cmdTransmitCRCExpHead, buf, bits, rx, &rxBits, 0xFF, 0, true)
	})
	if IsChipHeaderError(werr) && rxBits > 0 {
		code := classifyTagErrorCode(rx[0])
		return code, &TagError{Code: code}
	}
	if werr != nil {
		return 0, fmt.Errorf("gen2: blockwrite: %w", werr)
	}
	return 0, nil
}

// maxReadDataLen bounds one Read's payload in bytes, matching the
// scratch buffer sizing of readFromTag's temporary buffers.
const maxReadDataLen = 64

// ReadFromTag reads wordCount words from bank starting at wordPtr.
// wordCount == 0 requests "the rest of the bank": the core rescans the
// received buffer for the first wordCount at which the handle and a
// bit-exact CRC-16 over a leading zero header bit, the candidate data,
// and the handle all agree, per §4.8.
func (s *Session) ReadFromTag(tag *Tag, bank MemBank, wordPtr uint32, wordCount *byte, dest []byte) error {
	if *wordCount > maxReadDataLen/2 {
		return paramErrorf("wordCount %d exceeds maximum %d", *wordCount, maxReadDataLen/2)
	}

	buf, bits := EncodeRead(bank, wordPtr, *wordCount, tag.Handle)

	readBuf := make([]byte, maxReadDataLen+5)
	rxBits := 2*2*8 + 1
	if *wordCount != 0 {
		rxBits += int(*wordCount) * 2 * 8
	} else {
		rxBits += maxReadDataLen * 8
	}

	rerr := s.radio.TxRxGen2Bytes(cmdTransmitCRCExpHead, buf, bits, readBuf, &rxBits, s.profile.RxNoResponseWaitTime, 0, true)

	var outErr error
	if IsChipHeaderError(rerr) {
		outErr = &TagError{Code: classifyTagErrorCode(readBuf[0])}
	} else if rerr != nil {
		outErr = rerr
	}

	if *wordCount == 0 && IsRXCountError(rerr) {
		found := false
		for *wordCount < maxReadDataLen/2 {
			n := int(*wordCount)
			if readBuf[n*2] == byte(tag.Handle>>8) && readBuf[n*2+1] == byte(tag.Handle) {
				crcInput := make([]byte, n*2+3)
				prependZeroBit(crcInput, readBuf[:n*2+2])
				calculated := crc16Bitwise(crcInput, n*16+16+1)
				got := uint16(readBuf[n*2+2])<<8 | uint16(readBuf[n*2+3])
				if calculated == got {
					outErr = nil
					found = true
					break
				}
			}
			*wordCount++
		}
		_ = found
	}

	if *wordCount > 0 {
		copy(dest, readBuf[:int(*wordCount)*2])
	}
	return outErr
}

// prependZeroBit writes a single zero header bit followed by source
// into dest, matching the bit-exact CRC input the auto-sized Read path
// must reconstruct.
func prependZeroBit(dest []byte, source []byte) {
	insertBitStream(dest, source, 7)
}

// ContinueCommand resumes a pending delayed-reply receive, for callers
// that perform other work between issuing a delayed command and
// collecting its reply.
func (s *Session) ContinueCommand() (tagError TagErrorCode, err error) {
	if err := s.radio.SingleCommand(cmdEnableRx); err != nil {
		return 0, fmt.Errorf("gen2: continue: %w", err)
	}
	rx := s.scratch[:5]
	rxBits := 33
	rerr := s.radio.WaitForResponse(0xFFFF)
	if rerr != nil {
		if IsChipHeaderError(rerr) && rxBits > 0 {
			code := classifyTagErrorCode(rx[0])
			return code, &TagError{Code: code}
		}
		return 0, fmt.Errorf("gen2: continue: %w", rerr)
	}
	return 0, nil
}

// IsRXCountError reports whether err is the radio's RXCOUNT condition
// (payload length could not be determined at command time).
func IsRXCountError(err error) bool {
	code, ok := radioCode(err)
	return ok && code == ErrRXCount
}
