// Command gen2access selects a single tag and performs one read, write,
// lock, kill, or access-password-verify operation against it, prompting
// for passwords via raw-mode terminal input when not supplied on the
// command line or in the configuration file.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/rfreader/gen2core/internal/config"
	"github.com/rfreader/gen2core/internal/pcscradio"
	"github.com/rfreader/gen2core/pkg/gen2"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to reader/session configuration")
	op := flag.String("op", "read", "operation: read, write, lock, kill, access")
	bank := flag.String("bank", "epc", "memory bank: reserved, epc, tid, user")
	wordPtr := flag.Uint("word-ptr", 0, "starting word address")
	wordCount := flag.Uint("word-count", 0, "words to read (0 = rest of bank)")
	dataHex := flag.String("data", "", "hex-encoded data: one 16-bit word for write, 3 mask/action bytes for lock")
	passwordHex := flag.String("password", "", "hex-encoded 4-byte access/kill password; prompted interactively if empty")
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

	memBank, err := parseBank(*bank)
	if err != nil {
		log.Fatalf("invalid -bank: %v", err)
	}

	tag, err := singulateOne(sess)
	if err != nil {
		log.Fatalf("no tag found: %v", err)
	}
	fmt.Printf("singulated tag: EPC=% X handle=%04X\n", tag.EPC[:tag.EPCLen], tag.Handle)

	switch *op {
	case "read":
		wc := byte(*wordCount)
		dest := make([]byte, 256)
		if err := sess.ReadFromTag(tag, memBank, uint32(*wordPtr), &wc, dest); err != nil {
			log.Fatalf("read failed: %v", err)
		}
		fmt.Printf("read %d words: % X\n", wc, dest[:int(wc)*2])

	case "write":
		password := resolvePassword(cfg, *passwordHex, "access password")
		if err := sess.AccessTag(tag, password); err != nil {
			log.Fatalf("access failed: %v", err)
		}
		data, err := decodeWordHex(*dataHex)
		if err != nil {
			log.Fatalf("invalid -data: %v", err)
		}
		tagErr, err := sess.WriteWordToTag(tag, memBank, uint32(*wordPtr), data)
		if err != nil {
			log.Fatalf("write failed (tag error %s): %v", tagErr, err)
		}
		fmt.Println("write ok")

	case "lock":
		password := resolvePassword(cfg, *passwordHex, "access password")
		if err := sess.AccessTag(tag, password); err != nil {
			log.Fatalf("access failed: %v", err)
		}
		maskAction, err := decodeMaskAction(*dataHex)
		if err != nil {
			log.Fatalf("invalid -data (want 3 bytes mask/action): %v", err)
		}
		tagReply, err := sess.LockTag(tag, maskAction)
		if err != nil {
			log.Fatalf("lock failed (tag reply %s): %v", tagReply, err)
		}
		fmt.Println("lock ok")

	case "kill":
		password := resolvePassword(cfg, *passwordHex, "kill password")
		if password == [4]byte{} {
			log.Fatalf("kill requires a non-zero password")
		}
		tagErr, err := sess.KillTag(tag, password, 0, 0)
		if err != nil {
			log.Fatalf("kill failed (tag error %s): %v", tagErr, err)
		}
		fmt.Println("kill ok")

	case "access":
		password := resolvePassword(cfg, *passwordHex, "access password")
		if err := sess.AccessTag(tag, password); err != nil {
			log.Fatalf("access failed: %v", err)
		}
		fmt.Println("access ok")

	default:
		log.Fatalf("unknown -op %q (want read, write, lock, kill, access)", *op)
	}
}

// singulateOne runs a minimal Q=0 singulated round and returns the
// first tag found.
func singulateOne(sess *gen2.Session) (*gen2.Tag, error) {
	var found *gen2.Tag
	cb := &singulateCallbacks{onTag: func(t *gen2.Tag) { found = t }}
	_, err := sess.SearchForTags(true, gen2.TruncateToken{}, gen2.SearchParams{
		Q:         0,
		Singulate: true,
		Callbacks: cb,
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("gen2access: no tag singulated")
	}
	return found, nil
}

type singulateCallbacks struct {
	onTag func(*gen2.Tag)
	done  bool
}

func (c *singulateCallbacks) TagFound(tag *gen2.Tag) bool {
	c.onTag(tag)
	c.done = true
	return false
}

func (c *singulateCallbacks) SlotFinished(uint32, gen2.EventMask, int) {}

func (c *singulateCallbacks) ContinueScanning() bool { return !c.done }

// resolvePassword resolves a password from the command line, the
// configured password file, or interactive raw-mode terminal entry, in
// that priority order.
func resolvePassword(cfg *config.Config, flagHex, prompt string) [4]byte {
	if flagHex != "" {
		pw, err := decodePasswordHex(flagHex)
		if err != nil {
			log.Fatalf("invalid -password: %v", err)
		}
		return pw
	}

	file := cfg.Passwords.AccessPasswordFile
	if strings.Contains(strings.ToLower(prompt), "kill") {
		file = cfg.Passwords.KillPasswordFile
	}
	if file != "" {
		raw, err := os.ReadFile(file)
		if err == nil {
			decoded, err := hex.DecodeString(strings.TrimSpace(string(raw)))
			if err == nil && len(decoded) == 4 {
				return [4]byte(decoded)
			}
		}
	}

	fmt.Printf("%s (hex, 8 chars): ", prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		log.Fatalf("read password: %v", err)
	}
	decoded, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil || len(decoded) != 4 {
		log.Fatalf("password must be 8 hex characters")
	}
	return [4]byte(decoded)
}

func parseBank(s string) (gen2.MemBank, error) {
	switch strings.ToLower(s) {
	case "reserved":
		return gen2.MemBankReserved, nil
	case "epc":
		return gen2.MemBankEPC, nil
	case "tid":
		return gen2.MemBankTID, nil
	case "user":
		return gen2.MemBankUser, nil
	default:
		return 0, fmt.Errorf("unknown bank %q", s)
	}
}

func decodeWordHex(s string) ([2]byte, error) {
	decoded, err := hex.DecodeString(s)
	if err != nil || len(decoded) != 2 {
		return [2]byte{}, fmt.Errorf("want 4 hex characters (one 16-bit word)")
	}
	return [2]byte(decoded), nil
}

func decodePasswordHex(s string) ([4]byte, error) {
	decoded, err := hex.DecodeString(s)
	if err != nil || len(decoded) != 4 {
		return [4]byte{}, fmt.Errorf("want 8 hex characters (4 bytes)")
	}
	return [4]byte(decoded), nil
}

func decodeMaskAction(s string) ([3]byte, error) {
	decoded, err := hex.DecodeString(s)
	if err != nil || len(decoded) != 3 {
		return [3]byte{}, fmt.Errorf("want 6 hex characters (3 bytes)")
	}
	return [3]byte(decoded), nil
}

type wallClock struct{}

func (wallClock) Ticks() uint32 { return uint32(time.Now().UnixMilli()) }

func (wallClock) DelayMicros(us uint32) { time.Sleep(time.Duration(us) * time.Microsecond) }
