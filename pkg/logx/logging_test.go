package logx

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileService(t *testing.T, mutate func(*Config)) (*Service, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.log")
	cfg := DefaultConfig()
	cfg.Format = formatJSON
	cfg.Target = targetFile
	cfg.FileName = path
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := New(cfg)
	require.NoError(t, err)
	return svc, path
}

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(b)), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), "line: %s", line)
		out = append(out, m)
	}
	return out
}

func TestConfigDefaultsOnPartialSection(t *testing.T) {
	t.Parallel()
	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(`{"level":"info"}`), &cfg))

	want := DefaultConfig()
	want.Level = "info"
	assert.Equal(t, want, cfg)
}

func TestConfigRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	var cfg Config
	err := json.Unmarshal([]byte(`{"colour":"red"}`), &cfg)
	assert.Error(t, err)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	tests := map[string]func(*Config){
		"unknown level":      func(c *Config) { c.Level = "verbose" },
		"unknown format":     func(c *Config) { c.Format = "xml" },
		"unknown target":     func(c *Config) { c.Target = "syslog" },
		"file without name":  func(c *Config) { c.Target = targetFile },
		"negative rate":      func(c *Config) { c.RatePerSec = -1 },
		"negative buffer sz": func(c *Config) { c.BufferSize = -5 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}

func TestConfigAcceptsKnownLevels(t *testing.T) {
	t.Parallel()
	for _, lvl := range []string{"", "off", "trace", "DEBUG", " info ", "warning", "error"} {
		cfg := DefaultConfig()
		cfg.Level = lvl
		assert.NoError(t, cfg.validate(), "level %q", lvl)
	}
}

func TestServiceWritesJSONAndFlushesOnClose(t *testing.T) {
	svc, path := newFileService(t, nil)

	log := svc.Logger().With(String("comp", "test"))
	log.Info("hello", Int("n", 3))
	log.Trace("fine grained")
	require.NoError(t, svc.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	assert.Equal(t, "hello", lines[0]["message"])
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "test", lines[0]["comp"])
	assert.EqualValues(t, 3, lines[0]["n"])
	assert.Contains(t, lines[0], "time")
	assert.Contains(t, lines[0]["caller"], "logging_test.go")
	assert.Equal(t, "trace", lines[1]["level"])

	// Closed services discard silently.
	log.Info("after close")
	assert.NoError(t, svc.Close())
	assert.Len(t, readLines(t, path), 2)
}

func TestServiceHonoursLevelAndToggles(t *testing.T) {
	svc, path := newFileService(t, func(c *Config) {
		c.Level = "warn"
		c.ShowTime = false
		c.ShowCaller = false
	})
	log := svc.Logger()
	log.Info("dropped by level")
	log.Warn("kept")
	require.NoError(t, svc.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.Equal(t, "kept", lines[0]["message"])
	assert.NotContains(t, lines[0], "time")
	assert.NotContains(t, lines[0], "caller")
}

func TestDefaultRoutesToActiveService(t *testing.T) {
	log := Default().With(String("comp", "routing"))
	assert.False(t, log.IsZero())
	log.Info("nobody listens yet")

	svc, path := newFileService(t, nil)
	svc.Activate()
	assert.True(t, svc.Active())
	log.Info("routed")
	require.NoError(t, svc.Close())
	assert.False(t, svc.Active())

	log.Info("after deactivation")

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.Equal(t, "routed", lines[0]["message"])
	assert.Equal(t, "routing", lines[0]["comp"])
}

func TestRateLimitDropsBelowWarn(t *testing.T) {
	svc, path := newFileService(t, func(c *Config) { c.RatePerSec = 1 })
	log := svc.Logger()
	for i := 0; i < 20; i++ {
		log.Info("chatty")
	}
	log.Error("important")
	require.NoError(t, svc.Close())

	lines := readLines(t, path)
	var infos, errs int
	for _, l := range lines {
		switch l["level"] {
		case "info":
			infos++
		case "error":
			errs++
		}
	}
	assert.Less(t, infos, 20)
	assert.Equal(t, 1, errs)
	assert.Positive(t, svc.Dropped())
}

func TestZeroAndNopLoggersAreSafe(t *testing.T) {
	t.Parallel()
	var zero Logger
	assert.True(t, zero.IsZero())
	zero.Info("ignored")
	Nop().Error("ignored", Err(os.ErrNotExist))
	assert.False(t, Nop().Enabled(LevelError))
}
