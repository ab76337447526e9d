package logx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ---- Config ----

const (
	formatFull    = "full"
	formatCompact = "compact"
	formatPretty  = "pretty"
	formatJSON    = "json"

	targetStdout = "stdout"
	targetStderr = "stderr"
	targetFile   = "file"
)

// Config is the "logger" section of an application config.
//
// Defaults (when fields are omitted):
//   - level: "trace"
//   - format: "full"
//   - show_time: true
//   - show_caller: true
//   - write_target: "stdout"
//   - rate_per_sec: 0 (unlimited)
//   - buffer_size: 1024 (lines held by the non-blocking writer)
type Config struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	ShowTime   bool   `json:"show_time"`
	ShowCaller bool   `json:"show_caller"`
	Target     string `json:"write_target"`
	FileName   string `json:"file_name,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	BufferSize int    `json:"buffer_size,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Level:      "trace",
		Format:     formatFull,
		ShowTime:   true,
		ShowCaller: true,
		Target:     targetStdout,
		BufferSize: 1024,
	}
}

// UnmarshalJSON fills omitted fields from DefaultConfig and rejects unknown keys.
func (c *Config) UnmarshalJSON(b []byte) error {
	type plain Config
	p := plain(DefaultConfig())
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return err
	}
	*c = Config(p)
	return nil
}

func (c Config) validate() error {
	if !knownLevel(c.Level) {
		return fmt.Errorf("logger.level: unknown level %q", c.Level)
	}
	switch strings.ToLower(strings.TrimSpace(c.Format)) {
	case "", formatFull, formatCompact, formatPretty, formatJSON:
	default:
		return fmt.Errorf("logger.format: unknown format %q", c.Format)
	}
	switch strings.ToLower(strings.TrimSpace(c.Target)) {
	case "", targetStdout, targetStderr:
	case targetFile:
		if strings.TrimSpace(c.FileName) == "" {
			return fmt.Errorf("logger.file_name required when write_target is %q", targetFile)
		}
	default:
		return fmt.Errorf("logger.write_target: unknown target %q", c.Target)
	}
	if c.RatePerSec < 0 {
		return fmt.Errorf("logger.rate_per_sec must be >= 0")
	}
	if c.BufferSize < 0 {
		return fmt.Errorf("logger.buffer_size must be >= 0")
	}
	return nil
}

// ---- Service ----

// active is the Service that logx.Default() currently routes to.
var active atomic.Pointer[Service]

// Service owns the log outputs (including the background writer) for one configuration.
type Service struct {
	mu  sync.Mutex
	cfg Config

	root atomic.Value // stores zerolog.Logger

	// out is the non-blocking writer in front of the sink. Closing it flushes
	// pending lines and closes the file sink (if any).
	out io.Closer

	prevGlobal *zerolog.Logger
	closed     bool

	showCaller atomic.Bool
	dropped    atomic.Uint64
}

// New creates the logging service and applies cfg immediately.
// The service is not routed process-wide until Activate is called.
func New(cfg Config) (*Service, error) {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = consoleTimeFormat

	s := &Service{}
	s.root.Store(zerolog.Nop())
	if err := s.Apply(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) current() zerolog.Logger {
	v := s.root.Load()
	if v == nil {
		return zerolog.Nop()
	}
	zl, ok := v.(zerolog.Logger)
	if !ok {
		return zerolog.Nop()
	}
	return zl
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// Dropped reports how many lines were discarded by the rate limiter or
// because the background writer was full.
func (s *Service) Dropped() uint64 { return s.dropped.Load() }

// Apply swaps logger outputs/levels at runtime.
// It is safe to call concurrently.
func (s *Service) Apply(cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("logx: service closed")
	}

	sink, err := openSink(cfg)
	if err != nil {
		return err
	}

	size := cfg.BufferSize
	if size <= 0 {
		size = 1024
	}
	dw := diode.NewWriter(sink, size, 10*time.Millisecond, func(missed int) {
		s.dropped.Add(uint64(missed))
	})

	format := strings.ToLower(strings.TrimSpace(cfg.Format))
	var w io.Writer = dw
	if format != formatJSON {
		w = newConsoleWriter(dw, format, cfg.ShowTime, cfg.ShowCaller)
	}
	if cfg.RatePerSec > 0 {
		w = &limitedWriter{
			next:    w,
			limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
			min:     zerolog.WarnLevel,
			dropped: &s.dropped,
		}
	}

	zc := zerolog.New(w).Level(parseLevel(cfg.Level, zerolog.TraceLevel)).With()
	if cfg.ShowTime {
		zc = zc.Timestamp()
	}
	zl := zc.Logger()

	prev := s.out
	s.cfg = cfg
	s.out = dw
	s.showCaller.Store(cfg.ShowCaller)
	s.root.Store(zl)
	if active.Load() == s {
		zlog.Logger = zl
	}

	// Flush whatever the previous writer still holds.
	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

// Activate routes Default() loggers and zerolog's global logger to this service.
// Activating more than one service per process is a usage error; the last one wins.
func (s *Service) Activate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prevGlobal == nil {
		prev := zlog.Logger
		s.prevGlobal = &prev
	}
	active.Store(s)
	zlog.Logger = s.current()
}

// Active reports whether this service currently receives Default() logs.
func (s *Service) Active() bool { return active.Load() == s }

// Close deactivates the service (if active), flushes the background writer
// and closes the sink. Further logging through this service is discarded.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if active.CompareAndSwap(s, nil) && s.prevGlobal != nil {
		zlog.Logger = *s.prevGlobal
	}
	out := s.out
	s.out = nil
	s.root.Store(zerolog.Nop())
	s.mu.Unlock()

	if out != nil {
		return out.Close()
	}
	return nil
}

func openSink(cfg Config) (io.Writer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Target)) {
	case targetStderr:
		return writerOnly{Stderr()}, nil
	case targetFile:
		f, err := os.OpenFile(strings.TrimSpace(cfg.FileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logx: open log file %q: %w", cfg.FileName, err)
		}
		return f, nil
	default:
		return writerOnly{Stdout()}, nil
	}
}

func newConsoleWriter(w io.Writer, format string, showTime, showCaller bool) io.Writer {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat, NoColor: format != formatPretty}
	// Keep caller short and stable.
	cw.FormatCaller = func(i interface{}) string {
		s, _ := i.(string)
		return s
	}
	var exclude []string
	if !showTime {
		exclude = append(exclude, zerolog.TimestampFieldName)
	}
	if !showCaller || format == formatCompact {
		exclude = append(exclude, zerolog.CallerFieldName)
	}
	if format == formatCompact {
		cw.TimeFormat = time.Kitchen
	}
	cw.PartsExclude = exclude
	return cw
}

// writerOnly hides Close so the diode writer never closes stdout/stderr.
type writerOnly struct{ io.Writer }

// limitedWriter drops lines below min once the limiter is exhausted.
type limitedWriter struct {
	next    io.Writer
	limiter *rate.Limiter
	min     zerolog.Level
	dropped *atomic.Uint64
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.NoLevel, p)
}

func (w *limitedWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < w.min && !w.limiter.Allow() {
		w.dropped.Add(1)
		return len(p), nil
	}
	return w.next.Write(p)
}

// Stdout returns the configured stdout sink.
func Stdout() io.Writer { return os.Stdout }

// Stderr returns the configured stderr sink.
func Stderr() io.Writer { return os.Stderr }
