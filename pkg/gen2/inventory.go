package gen2

import (
	"fmt"
	"log/slog"
)

const (
	qFixedPointScale = 100000 // x1e5
)

// scaledQ converts an integer Q (0..15) to the x1e5 fixed-point
// representation used by the adaptive-Q accumulator.
func scaledQ(q int) int32 { return int32(q) * qFixedPointScale }

// scalePercent converts a C1/C2 table entry, given as a percentage of a
// full Q-step (0..100), into the x1e5 fixed-point delta applied to qfp
// per slot outcome, per §4.7's "scale configured fixed-point tables by
// 1e5" initialization step.
func scalePercent(p int32) int32 { return p * (qFixedPointScale / 100) }

// SearchForTags drives one inventory round of up to 2^Q slots, per
// §4.7. truncate is the token returned by a preceding Select call (the
// zero value means "no truncation active").
func (s *Session) SearchForTags(manualAck bool, truncate TruncateToken, params SearchParams) (tagsFound int, err error) {
	if err := s.radio.AntennaPower(true); err != nil {
		return 0, fmt.Errorf("gen2: search: antenna power: %w", err)
	}
	if err := s.radio.ClrResponse(); err != nil {
		return 0, fmt.Errorf("gen2: search: clear response: %w", err)
	}

	protocolCtrl, err := s.radio.SingleRead(RegProtocolCtrl)
	if err == nil {
		s.rxIncludesCRC = protocolCtrl&0x04 == 0
	}

	if s.profile.MillerErratum {
		_ = s.radio.SingleWrite(RegICD, icdMillerErratumOn)
		defer func() { _ = s.radio.SingleWrite(RegICD, icdMillerErratumOff) }()
	}

	if !manualAck {
		cmd := byte(cmdEnableAutoAckFast)
		if params.Singulate {
			cmd = cmdEnableAutoAckSingulated
		}
		if err := s.radio.SingleCommand(cmd); err != nil {
			return 0, fmt.Errorf("gen2: search: enable auto-ack: %w", err)
		}
	}

	q := params.Q
	startQ := q
	var aq *adaptiveQState
	var cfg AdaptiveQConfig
	if params.AdaptiveQ != nil && params.AdaptiveQ.Enabled {
		cfg = *params.AdaptiveQ
		for i := range cfg.C1 {
			cfg.C1[i] = scalePercent(cfg.C1[i])
			cfg.C2[i] = scalePercent(cfg.C2[i])
		}
		aq = &adaptiveQState{qfp: scaledQ(q)}
		if cfg.SingleAdj {
			aq.adjCnt = 1
		} else {
			aq.adjCnt = -1
		}
	}
	startQfp := int32(0)
	if aq != nil {
		startQfp = aq.qfp
	}

	stats := &Statistics{Q: q}

	slotsRemaining := 1 << uint(q)
	cmd := SlotQuery
	fast := !params.Singulate
	var lastTag *Tag

	for slotsRemaining > 0 {
		if cmd == SlotQueryAdjustUp || cmd == SlotQueryAdjustDown || cmd == SlotQueryAdjustNIC {
			s.clock.DelayMicros(s.profile.T4Micros)
		}

		slotTime := s.clock.Ticks()

		followCmd := byte(0)
		if _, ok := params.Callbacks.(FollowTagCommander); ok {
			followCmd = cmdQueryRepChain
		}
		outcome, tag, events, slotErr := s.ExecuteSlot(cmd, q, manualAck, fast, truncate.Active(), followCmd)

		switch outcome {
		case SlotCollision:
			stats.CollisionCount++
			events |= EventCollision
			if aq != nil {
				aq.qfp = clampI32(aq.qfp+cfg.C2[q], cfg.MinQ, cfg.MaxQ)
			}
		case SlotEmpty:
			stats.EmptyCount++
			events |= EventEmptySlot
			if aq != nil {
				aq.qfp = clampI32(aq.qfp-cfg.C1[q], cfg.MinQ, cfg.MaxQ)
			}
		case SlotTagFound:
			tag.TimeStamp = slotTime

			keep := true
			if fc, ok := params.Callbacks.(FollowTagCommander); ok {
				if !fc.FollowTagCommand(tag) {
					events |= EventSkipFollowCmd
					stats.SkipCount++
					keep = false
				}
			}
			if keep {
				events |= EventTagFound
				n := stats.TagCount
				if n == 0 {
					stats.RSSILogSum = 0
				}
				stats.RSSILogSum += uint32(tag.RSSILogI) + uint32(tag.RSSILogQ)
				stats.RSSILogMean = (stats.RSSILogSum + n) / ((n + 1) * 2)
				stats.TagCount++

				lastTag = tag
				if !params.Callbacks.TagFound(tag) {
					slotsRemaining = 0
				}
			}
		}

		if slotErr != nil {
			switch code, _ := radioCode(slotErr); code {
			case ErrPreamble:
				stats.PreambleErrCount++
				events |= EventPreambleErr
			case ErrCRC:
				stats.CRCErrCount++
				events |= EventCRCErr
			case ErrHeader:
				stats.HeaderErrCount++
				events |= EventHeaderErr
			case ErrRXCount:
				stats.RXCountErrCount++
				events |= EventRXCountErr
			}
		}

		params.Callbacks.SlotFinished(slotTime, events, q)

		if slotsRemaining > 0 {
			slotsRemaining--
		}

		cmd, q = s.nextSlotCommand(outcome, q, aq, &cfg, stats, &slotsRemaining)

		if !params.Callbacks.ContinueScanning() {
			break
		}
	}

	if s.profile.MillerErratum {
		_ = s.radio.SingleWrite(RegICD, icdMillerErratumOff)
	}
	_ = s.disableAutoAck()
	// The truncate latch is consumed by this round regardless of
	// outcome: the caller's token cannot be reused for a later round.

	if lastTag != nil {
		followBuf, followBits := EncodeQueryRep(s.cfg.Session)
		rx := s.scratch[:1]
		rxBits := 0
		_ = s.radio.TxRxGen2Bytes(cmdTransmitCRC, followBuf, followBits, rx, &rxBits, s.profile.RxNoResponseWaitTime, 0, true)
	} else {
		s.clock.DelayMicros(150)
	}

	if cfg.ResetQAfterRound && aq != nil {
		stats.Q = startQ
		aq.qfp = startQfp
	} else if aq != nil {
		stats.Q = q
	}

	return int(stats.TagCount), nil
}

// nextSlotCommand implements the Q-adjustment decision tree of §4.7
// step 7. It returns both the next slot command and the working Q the
// caller must use from here on: once an adjustment fires, later C1/C2
// lookups and slot counts key off the new Q, not the one the round
// started with.
func (s *Session) nextSlotCommand(outcome SlotOutcome, q int, aq *adaptiveQState, cfg *AdaptiveQConfig, stats *Statistics, slotsRemaining *int) (SlotCommandKind, int) {
	if aq == nil {
		return SlotQueryRep, q
	}

	var tmpQ int
	switch {
	case cfg.UseCeilFloor && outcome == SlotEmpty:
		tmpQ = int(ceilDiv(aq.qfp, qFixedPointScale))
	case cfg.UseCeilFloor && outcome == SlotCollision:
		tmpQ = int(aq.qfp / qFixedPointScale)
	default:
		tmpQ = int(roundDiv(aq.qfp, qFixedPointScale))
	}

	if tmpQ == q {
		if cfg.UseQueryAdjNIC && outcome != SlotTagFound {
			return SlotQueryAdjustNIC, q
		}
		return SlotQueryRep, q
	}

	if aq.adjCnt != 0 {
		if aq.adjCnt > 0 {
			aq.adjCnt--
		}
		stats.Q = tmpQ
		*slotsRemaining = 1 << uint(tmpQ)
		aq.qfp = scaledQ(tmpQ)
		if tmpQ > q {
			slog.Debug("gen2: adaptive-Q adjust up", "from", q, "to", tmpQ)
			return SlotQueryAdjustUp, tmpQ
		}
		slog.Debug("gen2: adaptive-Q adjust down", "from", q, "to", tmpQ)
		return SlotQueryAdjustDown, tmpQ
	}

	return SlotQueryRep, q
}

func clampI32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func ceilDiv(a, b int32) int32 {
	if a%b == 0 {
		return a / b
	}
	return a/b + 1
}

func roundDiv(a, b int32) int32 {
	return (a + b/2) / b
}

// disableAutoAck turns off the radio's auto-ACK hardware mode at round
// teardown.
func (s *Session) disableAutoAck() error {
	return s.radio.SingleCommand(cmdDisableAutoAck)
}

const (
	cmdDisableAutoAck          = 0x13
	cmdEnableAutoAckSingulated = 0x14 // one-tag auto-ACK mode
	cmdEnableAutoAckFast       = 0x15 // all-tags ("fast") auto-ACK mode
)

// QueryMeasureRSSI issues a single Query and reports AGC/RSSI metrics,
// used for antenna/field diagnostics ahead of a full inventory round.
func (s *Session) QueryMeasureRSSI(q int, truncate TruncateToken) (agc, rssiLogI, rssiLogQ byte, rssiLinI, rssiLinQ int8, err error) {
	if s.profile.MillerErratum {
		_ = s.radio.SingleWrite(RegICD, icdMillerErratumOn)
		defer func() { _ = s.radio.SingleWrite(RegICD, icdMillerErratumOff) }()
	}

	if _, err = s.singleQueryForRSSI(q); err != nil {
		return 0, 0, 0, 0, 0, err
	}

	rssiLinI, _ = s.radio.GetADC()
	rssiLinQ, _ = s.radio.GetADC()
	agc, rssiLogI, rssiLogQ = s.readAgcRssiLog()
	return agc, rssiLogI, rssiLogQ, rssiLinI, rssiLinQ, nil
}

func (s *Session) singleQueryForRSSI(q int) (rn16 uint16, err error) {
	buf, bits := EncodeQuery(s.cfg, q)
	rx := s.scratch[:2]
	rxBits := 16
	if err := s.radio.TxRxGen2Bytes(cmdTransmitCRC, buf, bits, rx, &rxBits, s.profile.RxNoResponseWaitTime, 0, true); err != nil {
		return 0, err
	}
	return ParseRN16Reply(rx, rxBits, false)
}
