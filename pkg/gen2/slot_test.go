package gen2

import "testing"

// TestExecuteSlotSingleTag covers spec §8 scenario 1: a single tag
// answers Query with RN16 0x1234, then PC 0x3000 and a 12-byte EPC, and
// a Req_RN-equivalent exchange yields handle 0xABCD.
func TestExecuteSlotSingleTag(t *testing.T) {
	epc := []byte{0xE2, 0x80, 0x11, 0xA0, 0x60, 0x00, 0x02, 0x14, 0x00, 0x00, 0x00, 0x00}
	pcAndEPC := append([]byte{0x30, 0x00}, epc...)

	radio := newFakeRadio(t)
	radio.txrx = []txrxStep{
		{rx: []byte{0x12, 0x34}, bits: 16},        // RN16
		{rx: pcAndEPC, bits: len(pcAndEPC) * 8},   // PC + EPC
		{rx: []byte{0xAB, 0xCD}, bits: 16},        // handle, no CRC
	}
	radio.adc = []int8{5, 6}
	radio.singleRead[regAgcRssiLog] = 0x00

	s := newTestSession(radio, &fakeClock{})

	outcome, tag, _, err := s.ExecuteSlot(SlotQuery, 0, true, false, false, 0)
	if err != nil {
		t.Fatalf("ExecuteSlot returned error: %v", err)
	}
	if outcome != SlotTagFound {
		t.Fatalf("got outcome %d, want SlotTagFound", outcome)
	}
	if tag.EPCLen != 12 {
		t.Fatalf("got EPCLen %d, want 12", tag.EPCLen)
	}
	if tag.PCLength()*2 != tag.EPCLen {
		t.Fatalf("PC.L*2 (%d) != EPCLen (%d)", tag.PCLength()*2, tag.EPCLen)
	}
	if tag.Handle != 0xABCD {
		t.Fatalf("got handle %#04x, want 0xABCD", tag.Handle)
	}
	if tag.RN16 != 0x1234 {
		t.Fatalf("got RN16 %#04x, want 0x1234", tag.RN16)
	}
}

// TestExecuteSlotTruncatedEPC covers spec §8 scenario 5: under an
// active truncate latch, the ACK reply carries 5 leading zero bits
// directly followed by the EPC, with no PC.L check and no XPC.
func TestExecuteSlotTruncatedEPC(t *testing.T) {
	// 5 zero bits followed by a 48-bit (6-byte) EPC, byte-packed as the
	// radio would deliver it (no trailing CRC: rxIncludesCRC is false on
	// a freshly-configured session, taking the "success" branch of the
	// inverted truncated-CRC rule).
	epc := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	w := newBitWriter(make([]byte, 1+len(epc)))
	w.writeBits(0, 5)
	w.writeBytes(epc)

	radio := newFakeRadio(t)
	radio.txrx = []txrxStep{
		{rx: []byte{0x56, 0x78}, bits: 16}, // RN16
		{rx: w.bytes(), bits: w.bits()},    // truncated PC + EPC
		{rx: []byte{0x11, 0x22}, bits: 16}, // handle
	}
	radio.adc = []int8{0, 0}
	radio.singleRead[regAgcRssiLog] = 0x00

	s := newTestSession(radio, &fakeClock{})

	outcome, tag, _, err := s.ExecuteSlot(SlotQuery, 0, true, false, true, 0)
	if err != nil {
		t.Fatalf("ExecuteSlot returned error: %v", err)
	}
	if outcome != SlotTagFound {
		t.Fatalf("got outcome %d, want SlotTagFound", outcome)
	}
	if !tag.Truncated {
		t.Fatal("expected tag.Truncated to be true")
	}
	if tag.PC != ([2]byte{0, 0}) {
		t.Fatalf("got PC %v, want zeroed", tag.PC)
	}
	if tag.EPCLen != len(epc) {
		t.Fatalf("got EPCLen %d, want %d", tag.EPCLen, len(epc))
	}
	for i, b := range tag.EPC {
		if b != epc[i] {
			t.Fatalf("EPC byte %d: got %#02x want %#02x", i, b, epc[i])
		}
	}
}

// TestExecuteSlotTruncatedEPCValidCRCIsError covers §9 open question 1:
// in the truncated path a CRC that validates is treated as an error,
// not success.
func TestExecuteSlotTruncatedEPCValidCRCIsError(t *testing.T) {
	epc := []byte{0x01, 0x02, 0x03, 0x04}
	w := newBitWriter(make([]byte, 1+len(epc)+2))
	w.writeBits(0, 5)
	w.writeBytes(epc)
	w.appendCRC16()

	radio := newFakeRadio(t)
	radio.txrx = []txrxStep{
		{rx: []byte{0x00, 0x01}, bits: 16},
		{rx: w.bytes(), bits: w.bits()},
	}
	radio.adc = []int8{0, 0}

	s := newTestSession(radio, &fakeClock{})
	s.rxIncludesCRC = true

	outcome, _, _, err := s.ExecuteSlot(SlotQuery, 0, true, true, true, 0)
	if outcome != SlotCollision {
		t.Fatalf("got outcome %d, want SlotCollision (valid CRC treated as error)", outcome)
	}
	if err == nil {
		t.Fatal("expected an error for a validating truncated CRC")
	}
}

func TestExecuteSlotEmptyOnNoResponse(t *testing.T) {
	radio := newFakeRadio(t)
	radio.txrx = []txrxStep{
		{rx: nil, bits: 0, err: &RadioError{Code: ErrNoResponse}},
	}
	s := newTestSession(radio, &fakeClock{})

	outcome, tag, _, err := s.ExecuteSlot(SlotQuery, 4, true, true, false, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != SlotEmpty || tag != nil {
		t.Fatalf("got outcome %d tag %v, want empty slot with no tag", outcome, tag)
	}
}

func TestExecuteSlotCollisionOnPreamble(t *testing.T) {
	radio := newFakeRadio(t)
	radio.txrx = []txrxStep{
		{rx: nil, bits: 0, err: &RadioError{Code: ErrPreamble}},
	}
	s := newTestSession(radio, &fakeClock{})

	outcome, _, _, err := s.ExecuteSlot(SlotQuery, 4, true, true, false, 0)
	if outcome != SlotCollision {
		t.Fatalf("got outcome %d, want SlotCollision", outcome)
	}
	if !IsCollision(err) {
		t.Fatalf("expected IsCollision(err) to be true, got %v", err)
	}
}

func TestExecuteSlotPCLengthMismatchIsCollision(t *testing.T) {
	// PC.L claims 6 words (12 bytes) but only 4 EPC bytes follow.
	badEPC := []byte{0x30, 0x00, 0x01, 0x02, 0x03, 0x04}

	radio := newFakeRadio(t)
	radio.txrx = []txrxStep{
		{rx: []byte{0x99, 0x99}, bits: 16},
		{rx: badEPC, bits: len(badEPC) * 8},
	}
	radio.adc = []int8{0, 0}

	s := newTestSession(radio, &fakeClock{})

	outcome, _, _, err := s.ExecuteSlot(SlotQuery, 0, true, true, false, 0)
	if outcome != SlotCollision {
		t.Fatalf("got outcome %d, want SlotCollision", outcome)
	}
	if !IsProtocolError(err) {
		t.Fatalf("expected a protocol error, got %v", err)
	}
}
