package gen2

// Radio register addresses relevant to the Gen2 timing profile. These
// are chip register indices, not Go identifiers with semantic meaning
// beyond "which byte this value gets written to".
const (
	RegTxOptions            = 0x01
	RegRxOptions            = 0x02
	RegTRcalHigh             = 0x03
	RegTRcalLow              = 0x04
	RegAutoACKTimer          = 0x05
	RegRxNoResponseWaitTime  = 0x06
	RegRxWaitTime            = 0x07
	RegRxFilter              = 0x08
	RegTxSetting             = 0x09
	RegProtocolCtrl          = 0x0A
	RegModulatorControl2     = 0x0B
	RegModulatorControl4     = 0x0C
	RegICD                   = 0x0D
)

// icdMillerErratumOn/Off bracket any inventory or RSSI-measure call
// made with Miller-4 coding and no TRext: a short-preamble erratum
// workaround for that combination.
const (
	icdMillerErratumOn  = 0xF0
	icdMillerErratumOff = 0x00
)

// TimingProfile is the register set and derived timing values produced
// from a Config by DeriveTimingProfile.
type TimingProfile struct {
	TxOptions           byte
	RxOptions            byte
	TRcalHigh            byte
	TRcalLow             byte
	AutoACKTimer         byte
	RxNoResponseWaitTime byte
	RxWaitTime           byte
	RxFilter             byte

	DR DivideRatio

	// ModulatorControl2/4 come in a PR-ASK and an ASK variant, both set
	// by DeriveTimingProfile; Session.Open writes one pair after probing
	// the modulation-type bit of MODULATORCONTROL2.
	ModulatorControl2PRASK byte
	ModulatorControl4PRASK byte
	ModulatorControl2ASK   byte
	ModulatorControl4ASK   byte

	// T4Micros is the mandatory reader-to-tag link spacing observed
	// before any QueryAdjust* command and after Select.
	T4Micros uint32

	// MillerErratum is true when the Miller-4/no-TRext short-preamble
	// workaround must bracket inventory and RSSI-measure calls.
	MillerErratum bool
}

// t4ForTari returns the default T4 spacing for a Tari value, per the
// table in spec §4.5.
func t4ForTari(tari Tari) uint32 {
	switch tari {
	case Tari25_00:
		return 150
	case Tari12_50:
		return 75
	default:
		return 38 // Tari 6.25 -> 37.5us, rounded
	}
}

// DeriveTimingProfile derives the radio register set and T4 spacing
// for the given link configuration. It is a pure function: the BLF
// selects the base register table (per-BLF branch of the original
// firmware's open sequence), Tari refines DR, TRcal and RxWaitTime, and
// Coding/TRext refine RxFilter within that branch.
func DeriveTimingProfile(cfg Config) TimingProfile {
	var p TimingProfile
	p.DR = DR64of3

	switch cfg.BLF {
	case BLF640:
		p.TxOptions = 0x20
		p.RxOptions = 0xF0
		p.TRcalHigh = 0x01
		p.TRcalLow = 0x4D
		p.AutoACKTimer = 0x03
		p.RxNoResponseWaitTime = 0x02
		p.RxWaitTime = 0x01
		p.RxFilter = 0x02

	case BLF320:
		p.TxOptions = 0x20
		p.RxOptions = 0xC0
		if cfg.Tari == Tari6_25 {
			p.DR = DR8
			p.TRcalHigh = 0x00
			p.TRcalLow = 0xFA
		} else {
			p.TRcalHigh = 0x02
			p.TRcalLow = 0x9B
		}
		p.AutoACKTimer = 0x04
		p.RxNoResponseWaitTime = 0x02
		if cfg.Tari == Tari25_00 {
			p.RxWaitTime = 0x05
		} else {
			p.RxWaitTime = 0x04
		}
		if cfg.Coding > Miller2 {
			p.RxFilter = 0x24
		} else {
			p.RxFilter = 0x27
		}

	case BLF256:
		p.TxOptions = 0x20
		p.RxOptions = 0x90
		if cfg.Tari == Tari6_25 {
			p.DR = DR8
			p.TRcalHigh = 0x01
			p.TRcalLow = 0x39
		} else {
			p.TRcalHigh = 0x03
			p.TRcalLow = 0x41
		}
		p.AutoACKTimer = 0x05
		p.RxNoResponseWaitTime = 0x05
		if cfg.Tari == Tari25_00 {
			p.RxWaitTime = 0x0B
		} else {
			p.RxWaitTime = 0x05
		}
		switch {
		case cfg.Coding > Miller2:
			p.RxFilter = 0x34
		case cfg.Coding == Miller2 && cfg.TRext:
			p.RxFilter = 0x27
		default:
			p.RxFilter = 0x37
		}

	case BLF213:
		p.TxOptions = 0x20
		p.RxOptions = 0x80
		if cfg.Tari == Tari6_25 {
			p.DR = DR8
			p.TRcalHigh = 0x01
			p.TRcalLow = 0x77
		} else {
			p.TRcalHigh = 0x03
			p.TRcalLow = 0xE8
		}
		p.AutoACKTimer = 0x06
		p.RxNoResponseWaitTime = 0x05
		if cfg.Tari == Tari25_00 {
			p.RxWaitTime = 0x0B
		} else {
			p.RxWaitTime = 0x06
		}
		if cfg.Coding > Miller2 {
			p.RxFilter = 0x34
		} else {
			p.RxFilter = 0x37
		}

	case BLF160:
		p.TxOptions = 0x20
		p.RxOptions = 0x60
		if cfg.Tari == Tari12_50 {
			p.DR = DR8
			p.TRcalHigh = 0x01
			p.TRcalLow = 0xF4
		} else {
			p.TRcalHigh = 0x05
			p.TRcalLow = 0x35
		}
		p.AutoACKTimer = 0x0A
		p.RxNoResponseWaitTime = 0x05
		// Tari25_00 falls through to the else branch in the source
		// (the TARI_25_00 check has no else-if chaining to the
		// TARI_12_50 check below it) - preserved verbatim.
		if cfg.Tari == Tari12_50 {
			p.RxWaitTime = 0x09
		} else {
			p.RxWaitTime = 0x08
		}
		// An earlier RxFilter table (FM0 0x90, Miller2+TRext 0x27,
		// else 0x3F) is dead code in the source; only the final
		// assignment below takes effect. Preserved, not "fixed".
		if cfg.Coding == FM0 {
			p.RxFilter = 0xBF
		} else {
			p.RxFilter = 0x3F
		}

	case BLF40:
		p.TxOptions = 0x30
		p.RxOptions = 0x00
		p.TRcalHigh = 0x07
		p.TRcalLow = 0xD0
		p.AutoACKTimer = 0x3F
		p.RxNoResponseWaitTime = 0x0C
		p.RxWaitTime = 0x24
		p.RxFilter = 0xFF
		p.DR = DR8

	default:
		return p
	}

	p.TxOptions |= byte(tariBits(cfg.Tari))
	p.RxOptions = (p.RxOptions & 0xF0) | codingBits(cfg.Coding)
	if cfg.TRext {
		p.RxOptions |= 0x08
	}

	p.ModulatorControl2PRASK = 0xE3
	if cfg.Tari == Tari25_00 {
		p.ModulatorControl2PRASK = 0xEF
	}
	p.ModulatorControl4PRASK = 0x89
	p.ModulatorControl2ASK = 0x9D
	p.ModulatorControl4ASK = 0x7E

	if cfg.T4Min != 0 {
		p.T4Micros = cfg.T4Min
	} else {
		p.T4Micros = t4ForTari(cfg.Tari)
	}

	p.MillerErratum = cfg.Coding == Miller4 && !cfg.TRext

	return p
}

// tariBits encodes the reader's Tari selection into the low bits of
// TXOPTIONS, matching the gen2Config_t.tari enum values folded directly
// into the register byte by the original firmware.
func tariBits(tari Tari) byte {
	switch tari {
	case Tari25_00:
		return 0x02
	case Tari12_50:
		return 0x01
	default:
		return 0x00
	}
}

// codingBits encodes the line-code selection into the low bits of
// RXOPTIONS.
func codingBits(c Coding) byte {
	switch c {
	case FM0:
		return 0x00
	case Miller2:
		return 0x01
	case Miller4:
		return 0x02
	case Miller8:
		return 0x03
	default:
		return 0x00
	}
}
