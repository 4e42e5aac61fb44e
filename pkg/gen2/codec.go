package gen2

// MemBank identifies one of the four Gen2 logical memory banks.
type MemBank byte

const (
	MemBankReserved MemBank = 0
	MemBankEPC      MemBank = 1
	MemBankTID      MemBank = 2
	MemBankUser     MemBank = 3
)

// QueryAdjustDir selects the UpDn field of a QueryAdjust command.
type QueryAdjustDir byte

const (
	QueryAdjustUp   QueryAdjustDir = 0x1 // 001: Q = Q+1
	QueryAdjustNIC  QueryAdjustDir = 0x3 // 011: Q unchanged, re-evaluate slot
	QueryAdjustDown QueryAdjustDir = 0x4 // 100: Q = Q-1
)

// bitWriter assembles a Gen2 PDU bit-by-bit, MSB-first, into a byte
// buffer sized for the codec's worst-case command.
type bitWriter struct {
	buf []byte
	pos int
}

func newBitWriter(buf []byte) *bitWriter {
	for i := range buf {
		buf[i] = 0
	}
	return &bitWriter{buf: buf}
}

func (w *bitWriter) writeBits(value uint32, nbits int) {
	for i := nbits - 1; i >= 0; i-- {
		if (value>>uint(i))&1 != 0 {
			w.buf[w.pos/8] |= 1 << uint(7-w.pos%8)
		}
		w.pos++
	}
}

func (w *bitWriter) writeBytes(b []byte) {
	for _, by := range b {
		w.writeBits(uint32(by), 8)
	}
}

// writeEBV appends value encoded as an extensible bit vector,
// returning the number of bytes it occupied.
func (w *bitWriter) writeEBV(value uint32) int {
	ebv := uint32ToEBV(value)
	w.writeBytes(ebv)
	return len(ebv)
}

func (w *bitWriter) bits() int { return w.pos }

func (w *bitWriter) bytes() []byte {
	return w.buf[:(w.pos+7)/8]
}

// appendCRC5 appends a 5-bit CRC-5 computed over the bits written so
// far, per §4.3 (used for the reader-to-tag Query PDU).
func (w *bitWriter) appendCRC5() {
	crc := crc5(w.buf, w.pos)
	w.writeBits(uint32(crc), 5)
}

// appendCRC16 appends a 16-bit CRC-16/CCITT computed over the bits
// written so far.
func (w *bitWriter) appendCRC16() {
	crc := crc16Bitwise(w.buf, w.pos)
	w.writeBits(uint32(crc), 16)
}

// scratchBufferSize is the minimum shared transmit/receive buffer size
// required by the codec, per §3: 8 + MAX_EPC + MAX_XPC + 2.
const scratchBufferSize = 8 + MaxEPCLength + MaxXPCLength + 2

// EncodeQuery builds a Query command: opcode 1000, DR, M, TRext, Sel,
// Session, Target, Q, CRC-5.
func EncodeQuery(cfg Config, q int) (buf []byte, bits int) {
	w := newBitWriter(make([]byte, 4))
	w.writeBits(0b1000, 4)
	w.writeBits(uint32(cfg.DerivedDR()), 1)
	w.writeBits(uint32(codingBits(cfg.Coding)), 2)
	if cfg.TRext {
		w.writeBits(1, 1)
	} else {
		w.writeBits(0, 1)
	}
	w.writeBits(uint32(cfg.Sel), 2)
	w.writeBits(uint32(cfg.Session), 2)
	w.writeBits(uint32(cfg.Target), 1)
	w.writeBits(uint32(q), 4)
	w.appendCRC5()
	return w.bytes(), w.bits()
}

// EncodeQueryRep builds a QueryRep command: opcode 00, Session.
func EncodeQueryRep(session Session) (buf []byte, bits int) {
	w := newBitWriter(make([]byte, 1))
	w.writeBits(0b00, 2)
	w.writeBits(uint32(session), 2)
	return w.bytes(), w.bits()
}

// EncodeQueryAdjust builds a QueryAdjust command: opcode 1001, Session,
// UpDn.
func EncodeQueryAdjust(session Session, dir QueryAdjustDir) (buf []byte, bits int) {
	w := newBitWriter(make([]byte, 2))
	w.writeBits(0b1001, 4)
	w.writeBits(uint32(session), 2)
	w.writeBits(uint32(dir), 3)
	return w.bytes(), w.bits()
}

// EncodeACK builds an ACK command: opcode 01, RN16.
func EncodeACK(rn16 uint16) (buf []byte, bits int) {
	w := newBitWriter(make([]byte, 3))
	w.writeBits(0b01, 2)
	w.writeBits(uint32(rn16), 16)
	return w.bytes(), w.bits()
}

// EncodeNAK builds a NAK command: opcode 11000000.
func EncodeNAK() (buf []byte, bits int) {
	w := newBitWriter(make([]byte, 1))
	w.writeBits(0b11000000, 8)
	return w.bytes(), w.bits()
}

// EncodeReqRN builds a Req_RN command: opcode 11000001, handle, CRC-16.
func EncodeReqRN(handle uint16) (buf []byte, bits int) {
	w := newBitWriter(make([]byte, 5))
	w.writeBits(0b11000001, 8)
	w.writeBits(uint32(handle), 16)
	w.appendCRC16()
	return w.bytes(), w.bits()
}

// EncodeRead builds a Read command: opcode 11000010, MemBank, WordPtr
// (EBV), WordCount, handle, CRC-16.
func EncodeRead(bank MemBank, wordPtr uint32, wordCount byte, handle uint16) (buf []byte, bits int) {
	// Worst case: opcode(8) + bank(2) + EBV pointer(up to 40) + wordCount(8)
	// + handle(16) + CRC-16(16) = 90 bits, needing 12 bytes.
	w := newBitWriter(make([]byte, 12))
	w.writeBits(0b11000010, 8)
	w.writeBits(uint32(bank), 2)
	w.writeEBV(wordPtr)
	w.writeBits(uint32(wordCount), 8)
	w.writeBits(uint32(handle), 16)
	w.appendCRC16()
	return w.bytes(), w.bits()
}

// EncodeWrite builds a Write command: opcode 11000011, MemBank, WordPtr
// (EBV), cover-coded Data, handle, CRC-16. data must already be XORed
// with a freshly fetched RN16.
func EncodeWrite(bank MemBank, wordPtr uint32, coverCodedData uint16, handle uint16) (buf []byte, bits int) {
	// Worst case: opcode(8) + bank(2) + EBV pointer(up to 40) + data(16)
	// + handle(16) + CRC-16(16) = 98 bits, needing 13 bytes.
	w := newBitWriter(make([]byte, 13))
	w.writeBits(0b11000011, 8)
	w.writeBits(uint32(bank), 2)
	w.writeEBV(wordPtr)
	w.writeBits(uint32(coverCodedData), 16)
	w.writeBits(uint32(handle), 16)
	w.appendCRC16()
	return w.bytes(), w.bits()
}

// EncodeKill builds one pass of a Kill command: opcode 11000100,
// cover-coded password half, RFU(3)/recom bits, handle, CRC-16.
func EncodeKill(coverCodedPasswordHalf uint16, rfuOrRecom byte, handle uint16) (buf []byte, bits int) {
	w := newBitWriter(make([]byte, 8))
	w.writeBits(0b11000100, 8)
	w.writeBits(uint32(coverCodedPasswordHalf), 16)
	w.writeBits(uint32(rfuOrRecom), 3)
	w.writeBits(uint32(handle), 16)
	w.appendCRC16()
	return w.bytes(), w.bits()
}

// EncodeLock builds a Lock command: opcode 11000101, 20-bit mask/action
// payload, handle, CRC-16.
func EncodeLock(maskAction [3]byte, handle uint16) (buf []byte, bits int) {
	w := newBitWriter(make([]byte, 8))
	w.writeBits(0b11000101, 8)
	w.writeBits(uint32(maskAction[0]), 8)
	w.writeBits(uint32(maskAction[1]), 8)
	w.writeBits(uint32(maskAction[2])>>4, 4)
	w.writeBits(uint32(handle), 16)
	w.appendCRC16()
	return w.bytes(), w.bits()
}

// EncodeAccess builds one pass of an Access command: opcode 11000110,
// cover-coded password half, handle, CRC-16.
func EncodeAccess(coverCodedPasswordHalf uint16, handle uint16) (buf []byte, bits int) {
	w := newBitWriter(make([]byte, 7))
	w.writeBits(0b11000110, 8)
	w.writeBits(uint32(coverCodedPasswordHalf), 16)
	w.writeBits(uint32(handle), 16)
	w.appendCRC16()
	return w.bytes(), w.bits()
}

// EncodeBlockWrite builds a BlockWrite command: opcode 11000111,
// MemBank, WordPtr (EBV), WordCount, N words of data (not
// cover-coded), handle, CRC-16.
func EncodeBlockWrite(bank MemBank, wordPtr uint32, words []uint16, handle uint16) (buf []byte, bits int) {
	w := newBitWriter(make([]byte, 12+2*len(words)))
	w.writeBits(0b11000111, 8)
	w.writeBits(uint32(bank), 2)
	w.writeEBV(wordPtr)
	w.writeBits(uint32(len(words)), 8)
	for _, word := range words {
		w.writeBits(uint32(word), 16)
	}
	w.writeBits(uint32(handle), 16)
	w.appendCRC16()
	return w.bytes(), w.bits()
}

// EncodeSelect builds a Select command: opcode 1010, Target, Action,
// MemBank, Pointer (EBV), Length, Mask, Truncate, CRC-16.
func EncodeSelect(p SelectParams) (buf []byte, bits int) {
	// Worst case: opcode(4)+target(3)+action(3)+membank(2)+EBV pointer(up
	// to 40)+length(8)+truncate(1)+CRC-16(16) = 77 bits besides the mask,
	// needing 10 bytes plus the mask's own bytes.
	w := newBitWriter(make([]byte, 10+len(p.Mask)))
	w.writeBits(0b1010, 4)
	w.writeBits(uint32(p.Target), 3)
	w.writeBits(uint32(p.Action), 3)
	w.writeBits(uint32(p.MemBank), 2)
	w.writeEBV(p.Pointer)
	w.writeBits(uint32(p.MaskBits), 8)
	for _, b := range p.Mask {
		w.writeBits(uint32(b), 8)
	}
	if p.Truncate {
		w.writeBits(1, 1)
	} else {
		w.writeBits(0, 1)
	}
	w.appendCRC16()
	return w.bytes(), w.bits()
}

// DerivedDR returns the Query DR field value for the config's derived
// divide ratio.
func (c Config) DerivedDR() DivideRatio {
	return DeriveTimingProfile(c).DR
}
