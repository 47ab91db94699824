package isotp

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Frame is a single bus datagram: an arbitration ID, 0..8 (classic) or
// 0..64 (FD) payload bytes, and the FD flag.
type Frame struct {
	ArbitrationID uint32
	Data          []byte
	IsFD          bool
}

// Bus is the external frame transport collaborator. Sessions never dial,
// listen, or otherwise own a link; they only Send/Recv single frames
// against a caller-supplied Bus.
type Bus interface {
	Send(ctx context.Context, f Frame) error
	Recv(ctx context.Context) (Frame, error)
}

// Config holds every tunable of a Session.
type Config struct {
	Padding       bool
	IsFD          bool
	BlockSize     uint8
	STmin         time.Duration
	Deadlines     Deadlines
	MaxBuffer     int
	WaitWatermark int
	MaxWaitFrames int

	// WaitCount, when set, overrides how many FC(Wait) frames the
	// receiver emits per watermark crossing (default: MaxWaitFrames); the
	// count it returns is capped at MaxWaitFrames.
	WaitCount func() int

	Logger *logrus.Logger
}

// DefaultConfig returns conservative defaults: no padding, classic frames,
// BS=15, STmin=10ms, 1s deadlines, 10000-byte overflow threshold,
// 1000-byte wait watermark, at most 2 consecutive waits.
func DefaultConfig() Config {
	return Config{
		Padding:       false,
		IsFD:          false,
		BlockSize:     15,
		STmin:         10 * time.Millisecond,
		Deadlines:     DefaultDeadlines(),
		MaxBuffer:     10000,
		WaitWatermark: 1000,
		MaxWaitFrames: 2,
	}
}

// Option configures a Session at construction time.
type Option func(*Config)

func WithPadding(enabled bool) Option { return func(c *Config) { c.Padding = enabled } }
func WithFD(enabled bool) Option      { return func(c *Config) { c.IsFD = enabled } }
func WithBlockSize(bs uint8) Option { return func(c *Config) { c.BlockSize = bs } }

// WithSTmin sets the minimum separation time a receiver advertises to its
// peer in its Flow Control frames. It has no effect on a Session acting as
// sender: the sender always paces Consecutive Frames by the STmin value it
// receives on the wire from the peer's FC, never by its own Config.STmin.
func WithSTmin(d time.Duration) Option {
	return func(c *Config) { c.STmin = d }
}
func WithDeadlines(d Deadlines) Option { return func(c *Config) { c.Deadlines = d } }
func WithMaxBuffer(n int) Option       { return func(c *Config) { c.MaxBuffer = n } }
func WithWaitWatermark(n int) Option   { return func(c *Config) { c.WaitWatermark = n } }
func WithMaxWaitFrames(n int) Option   { return func(c *Config) { c.MaxWaitFrames = n } }
func WithWaitCount(f func() int) Option {
	return func(c *Config) { c.WaitCount = f }
}
func WithLogger(lg *logrus.Logger) Option { return func(c *Config) { c.Logger = lg } }

// Session exposes "send one SDU" and "receive one SDU" over a single
// arbitration ID. It is not safe for concurrent use by two transfers in
// the same direction on the same ID: the underlying link is half-duplex
// for that ID.
type Session struct {
	bus           Bus
	arbitrationID uint32
	cfg           Config
	lg            *logrus.Logger
}

// NewSession builds a Session against bus for the given 11-bit
// arbitration ID, applying opts over DefaultConfig().
func NewSession(bus Bus, arbitrationID uint32, opts ...Option) *Session {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	lg := cfg.Logger
	if lg == nil {
		lg = pkgLogger
	}
	return &Session{bus: bus, arbitrationID: arbitrationID, cfg: cfg, lg: lg}
}

// Send transmits sdu as a single transfer: one Single Frame if it fits,
// otherwise a First Frame followed by flow-control-paced Consecutive
// Frames.
func (s *Session) Send(ctx context.Context, sdu []byte) error {
	snd := &sender{bus: s.bus, arbID: s.arbitrationID, cfg: s.cfg, lg: s.lg}
	return snd.send(ctx, sdu)
}

// Receive reassembles one incoming transfer, issuing flow control as
// needed, and returns the complete SDU.
func (s *Session) Receive(ctx context.Context) ([]byte, error) {
	rcv := &receiver{bus: s.bus, arbID: s.arbitrationID, cfg: s.cfg, lg: s.lg}
	return rcv.receive(ctx)
}
