// Command gen2inventory drives repeated Gen2 inventory rounds against a
// configured PC/SC-backed radio and prints each tag as it is found.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/rfreader/gen2core/internal/config"
	"github.com/rfreader/gen2core/internal/pcscradio"
	"github.com/rfreader/gen2core/pkg/gen2"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to reader/session configuration")
	rounds := flag.Int("rounds", 0, "number of inventory rounds to run (0 = run until interrupted)")
	manualAck := flag.Bool("manual-ack", true, "drive ACK in software rather than the radio's auto-ACK hardware")
	verbose := flag.Bool("v", false, "enable debug logging")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if *logFormat == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, opts)))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	radio, err := pcscradio.Connect(*cfg.Reader.Index)
	if err != nil {
		log.Fatalf("connect to reader failed: %v", err)
	}
	defer radio.Close()
	fmt.Printf("Using reader [%d]: %s\n", *cfg.Reader.Index, radio.Reader)

	sess := gen2.NewSession(radio, wallClock{})
	gen2Cfg, err := cfg.ToGen2()
	if err != nil {
		log.Fatalf("invalid session config: %v", err)
	}
	if err := sess.Open(gen2Cfg); err != nil {
		log.Fatalf("open session failed: %v", err)
	}
	defer sess.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)

	cb := &printingCallbacks{stop: sigCh}

	round := 0
	for *rounds == 0 || round < *rounds {
		round++
		params := gen2.SearchParams{
			Q:         4,
			Singulate: false,
			AdaptiveQ: cfg.ToGen2AdaptiveQ(),
			Callbacks: cb,
		}
		found, err := sess.SearchForTags(*manualAck, gen2.TruncateToken{}, params)
		if err != nil {
			slog.Warn("inventory round failed", "round", round, "error", err)
			continue
		}
		slog.Debug("inventory round complete", "round", round, "tags_found", found)
		if cb.stopped {
			break
		}
	}
}

type printingCallbacks struct {
	stop    chan os.Signal
	stopped bool
}

func (c *printingCallbacks) TagFound(tag *gen2.Tag) bool {
	fmt.Printf("tag: PC=%02X%02X EPC=% X handle=%04X rssi(log)=%d/%d\n",
		tag.PC[0], tag.PC[1], tag.EPC[:tag.EPCLen], tag.Handle, tag.RSSILogI, tag.RSSILogQ)
	return c.ContinueScanning()
}

func (c *printingCallbacks) SlotFinished(slotTime uint32, events gen2.EventMask, q int) {
	if events&gen2.EventCollision != 0 {
		slog.Debug("slot collision", "q", q, "time", slotTime)
	}
}

func (c *printingCallbacks) ContinueScanning() bool {
	select {
	case <-c.stop:
		c.stopped = true
		return false
	default:
		return true
	}
}

// wallClock implements gen2.Clock over the real wall clock.
type wallClock struct{}

func (wallClock) Ticks() uint32 { return uint32(time.Now().UnixMilli()) }

func (wallClock) DelayMicros(us uint32) { time.Sleep(time.Duration(us) * time.Microsecond) }
