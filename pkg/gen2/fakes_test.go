package gen2

import "testing"

// txrxStep scripts one TxRxGen2Bytes call's canned reply for tests that
// drive the slot executor, inventory engine, or access machine against a
// fixed protocol exchange rather than a live radio.
type txrxStep struct {
	rx   []byte
	bits int
	err  error
}

// fakeRadio is a scripted Radio used across the gen2 test suite. Each
// TxRxGen2Bytes call consumes the next queued step in order; the test
// author is responsible for queuing steps in the exact sequence the
// code under test issues them.
type fakeRadio struct {
	t *testing.T

	txrx    []txrxStep
	txrxIdx int

	rxEPC []txrxStep
	epcIdx int

	adc    []int8
	adcIdx int

	singleRead  map[byte]byte
	singleWrite []struct{ reg, val byte }
	commands    []byte
	antenna     []bool
	clrCount    int
	waitErr     error
	contWrites  [][]byte

	// sentTx records the tx payload of every TxRxGen2Bytes call, for
	// tests that need to inspect an encoded command (e.g. cover-coding).
	sentTx [][]byte
}

func newFakeRadio(t *testing.T) *fakeRadio {
	return &fakeRadio{t: t, singleRead: map[byte]byte{}}
}

func (r *fakeRadio) SingleRead(reg byte) (byte, error) {
	return r.singleRead[reg], nil
}

func (r *fakeRadio) SingleWrite(reg, val byte) error {
	r.singleWrite = append(r.singleWrite, struct{ reg, val byte }{reg, val})
	return nil
}

func (r *fakeRadio) ContinuousRead(reg byte, n int) ([]byte, error) {
	return make([]byte, n), nil
}

func (r *fakeRadio) ContinuousWrite(reg byte, buf []byte) error {
	r.contWrites = append(r.contWrites, append([]byte(nil), buf...))
	return nil
}

func (r *fakeRadio) SingleCommand(cmd byte) error {
	r.commands = append(r.commands, cmd)
	return nil
}

func (r *fakeRadio) TxRxGen2Bytes(cmd byte, tx []byte, txBits int, rx []byte, rxBits *int, noRespTime byte, followCmd byte, waitTxIRQ bool) error {
	r.sentTx = append(r.sentTx, append([]byte(nil), tx...))
	if r.txrxIdx >= len(r.txrx) {
		r.t.Fatalf("unscripted TxRxGen2Bytes call #%d", r.txrxIdx+1)
	}
	step := r.txrx[r.txrxIdx]
	r.txrxIdx++
	n := len(step.rx)
	if n > len(rx) {
		n = len(rx)
	}
	copy(rx, step.rx[:n])
	*rxBits = step.bits
	return step.err
}

func (r *fakeRadio) RxGen2EPC(rx []byte, rxBits *int, noRespTime byte, followCmd byte, waitTxIRQ bool, retriesRemaining *int) error {
	if r.epcIdx >= len(r.rxEPC) {
		r.t.Fatalf("unscripted RxGen2EPC call #%d", r.epcIdx+1)
	}
	step := r.rxEPC[r.epcIdx]
	r.epcIdx++
	n := len(step.rx)
	if n > len(rx) {
		n = len(rx)
	}
	copy(rx, step.rx[:n])
	*rxBits = step.bits
	return step.err
}

func (r *fakeRadio) AntennaPower(on bool) error {
	r.antenna = append(r.antenna, on)
	return nil
}

func (r *fakeRadio) ClrResponse() error {
	r.clrCount++
	return nil
}

func (r *fakeRadio) GetADC() (int8, error) {
	if r.adcIdx >= len(r.adc) {
		return 0, nil
	}
	v := r.adc[r.adcIdx]
	r.adcIdx++
	return v, nil
}

func (r *fakeRadio) WaitForResponse(mask uint16) error { return r.waitErr }

// fakeClock is a deterministic Clock: Ticks increments by one per call,
// DelayMicros just records the total requested delay.
type fakeClock struct {
	tick        uint32
	totalDelays uint32
}

func (c *fakeClock) Ticks() uint32 {
	c.tick++
	return c.tick
}

func (c *fakeClock) DelayMicros(us uint32) { c.totalDelays += us }

func testConfig() Config {
	return Config{
		BLF:     BLF640,
		Tari:    Tari6_25,
		Coding:  FM0,
		TRext:   true,
		Session: SessionS0,
		Target:  TargetA,
		Sel:     SelAll0,
	}
}

// newTestSession builds a Session with the given radio/clock and an
// already-derived timing profile for testConfig, bypassing Open (which
// would require scripting the register-programming reads/writes too).
func newTestSession(radio Radio, clock Clock) *Session {
	s := NewSession(radio, clock)
	s.Configure(testConfig())
	s.profile = DeriveTimingProfile(s.cfg)
	return s
}
