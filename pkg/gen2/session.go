package gen2

import "fmt"

// MaxAckRetry bounds the slot executor's internal RN16-then-short-EPC
// retry loop.
const MaxAckRetry = 2

// TruncateToken is returned by Select and consumed by the next
// SearchForTags or QueryMeasureRSSI call. It replaces the module-global
// truncate latch of the original firmware (§9 design note: "make the
// Select return a token the next inventory round consumes, rather than
// a global flag cleared on teardown").
type TruncateToken struct {
	active bool
}

// Active reports whether the token represents an active truncate
// latch.
func (t TruncateToken) Active() bool { return t.active }

// Session owns the single shared transmit/receive scratch buffer, the
// programmed timing profile, and the radio/clock collaborators. It
// replaces the original firmware's module-global configuration,
// scratch buffer, and lastErr/gGen2Truncate/gRxWithoutCRC latches (§9
// design note 1). A Session is not safe for concurrent use: the codec
// and inventory loop are single-threaded cooperative, per §5.
type Session struct {
	radio Radio
	clock Clock

	cfg     Config
	profile TimingProfile

	// rxIncludesCRC mirrors gRxWithoutCRC: whether received frames
	// still carry a CRC tail the core must verify (rather than one the
	// radio has already validated and stripped). Cached at Open and
	// refreshed at the start of every SearchForTags round.
	rxIncludesCRC bool

	scratch [scratchBufferSize]byte
}

// NewSession constructs a Session bound to the given radio and clock.
// Configure or Open must be called before any other operation.
func NewSession(radio Radio, clock Clock) *Session {
	return &Session{radio: radio, clock: clock}
}

// Configure validates and stores the session configuration without
// touching the radio, per gen2Configure: invalid sessions collapse to
// S0, and FM0/Miller2 coding forces TRext on.
func (s *Session) Configure(cfg Config) {
	if cfg.Session > SessionS3 {
		cfg.Session = SessionS0
	}
	if cfg.Coding == FM0 || cfg.Coding == Miller2 {
		cfg.TRext = true
	}
	s.cfg = cfg
}

// Open is idempotent: it configures the session, derives the timing
// profile, and programs the radio's register set for the link
// parameters.
func (s *Session) Open(cfg Config) error {
	s.Configure(cfg)
	s.profile = DeriveTimingProfile(s.cfg)

	regs := []byte{
		s.profile.TxOptions,
		s.profile.RxOptions,
		s.profile.TRcalHigh,
		s.profile.TRcalLow,
		s.profile.AutoACKTimer,
		s.profile.RxNoResponseWaitTime,
		s.profile.RxWaitTime,
		s.profile.RxFilter,
	}
	if err := s.radio.ContinuousWrite(RegTxOptions, regs); err != nil {
		return fmt.Errorf("gen2: open: program timing registers: %w", err)
	}

	txSetting, err := s.radio.SingleRead(RegTxSetting)
	if err != nil {
		return fmt.Errorf("gen2: open: read TXSETTING: %w", err)
	}
	txSetting = (txSetting &^ 0x03) | byte(s.cfg.Session)
	if err := s.radio.SingleWrite(RegTxSetting, txSetting); err != nil {
		return fmt.Errorf("gen2: open: write TXSETTING: %w", err)
	}

	protocolCtrl, err := s.radio.SingleRead(RegProtocolCtrl)
	if err != nil {
		return fmt.Errorf("gen2: open: read PROTOCOLCTRL: %w", err)
	}
	protocolCtrl &= 0xB8
	if err := s.radio.SingleWrite(RegProtocolCtrl, protocolCtrl); err != nil {
		return fmt.Errorf("gen2: open: write PROTOCOLCTRL: %w", err)
	}
	s.rxIncludesCRC = protocolCtrl&0x04 == 0

	modCtrl2, err := s.radio.SingleRead(RegModulatorControl2)
	if err != nil {
		return fmt.Errorf("gen2: open: read MODULATORCONTROL2: %w", err)
	}
	if modCtrl2&0x40 != 0 {
		if err := s.radio.SingleWrite(RegModulatorControl2, s.profile.ModulatorControl2PRASK); err != nil {
			return fmt.Errorf("gen2: open: write MODULATORCONTROL2: %w", err)
		}
		if err := s.radio.SingleWrite(RegModulatorControl4, s.profile.ModulatorControl4PRASK); err != nil {
			return fmt.Errorf("gen2: open: write MODULATORCONTROL4: %w", err)
		}
	} else {
		if err := s.radio.SingleWrite(RegModulatorControl2, s.profile.ModulatorControl2ASK); err != nil {
			return fmt.Errorf("gen2: open: write MODULATORCONTROL2: %w", err)
		}
		if err := s.radio.SingleWrite(RegModulatorControl4, s.profile.ModulatorControl4ASK); err != nil {
			return fmt.Errorf("gen2: open: write MODULATORCONTROL4: %w", err)
		}
	}

	return nil
}

// Close releases any session-held state. The original firmware's
// gen2Close is a no-op; kept for symmetry and future radio teardown.
func (s *Session) Close() error { return nil }

// reqRN sends Req_RN with the given handle and returns the tag's fresh
// 16-bit random number, per §4.4/§4.8.
func (s *Session) reqRN(handle uint16) (uint16, error) {
	buf, bits := EncodeReqRN(handle)
	rx := s.scratch[:4]
	rxBits := 32
	err := s.radio.TxRxGen2Bytes(cmdTransmitCRC, buf, bits, rx, &rxBits, s.profile.RxNoResponseWaitTime, 0, true)
	if err != nil {
		return 0, fmt.Errorf("gen2: Req_RN: %w", err)
	}
	rn16, err := ParseHandle32(rx, rxBits)
	if err != nil {
		return 0, fmt.Errorf("gen2: Req_RN: %w", err)
	}
	return rn16, nil
}

// coverCode XORs a 16-bit plaintext word with a freshly fetched RN16,
// per §4.4's cover-coding rule.
func coverCode(plaintext, rn16 uint16) uint16 { return plaintext ^ rn16 }

// withLongWait temporarily switches RXNORESPONSEWAITTIME to the
// delayed-reply "wait up to 20ms" value (0xFF) for the duration of fn,
// restoring the previous value on every exit path. This implements §9
// design note 4: the save/restore around Write/BlockWrite/Lock/Kill is
// essential, and is modeled here as scoped acquisition.
func (s *Session) withLongWait(fn func() error) error {
	prev := s.profile.RxNoResponseWaitTime
	if err := s.radio.SingleWrite(RegRxNoResponseWaitTime, 0xFF); err != nil {
		return fmt.Errorf("gen2: set long wait: %w", err)
	}
	defer func() {
		_ = s.radio.SingleWrite(RegRxNoResponseWaitTime, prev)
	}()
	return fn()
}

// Chip direct-command opcodes used with Radio.TxRxGen2Bytes /
// SingleCommand.
const (
	cmdTransmitCRC        = 0x01 // TRANSMCRC: transmit, append CRC-16 in hardware
	cmdTransmitCRCExpHead = 0x02 // TRANSMCRCEHEAD: transmit, expect a delayed reply header bit
	cmdQueryAdjustUp      = 0x10
	cmdQueryAdjustDown    = 0x11
	cmdQueryAdjustNIC     = 0x12
	cmdEnableRx           = 0x20 // ENABLERX: resume a pending delayed-reply receive

	// cmdQueryRepChain is the followCmd value passed to TxRxGen2Bytes
	// when a FollowTagCommander is registered: the radio chains a
	// hardware QueryRep immediately after the EPC receive instead of
	// waiting for the software round loop to issue one.
	cmdQueryRepChain = 0x16
)
