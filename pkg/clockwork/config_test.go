package clockwork

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeterConfig struct {
	Greeting string   `json:"greeting"`
	Names    []string `json:"names"`
}

func TestDecodeConfigFillsDefaults(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		format Format
		doc    string
	}{
		{"toml", FormatTOML, `
[runtime]
max_threads = 8

[app]
greeting = "hi"
names = ["ada", "grace"]
`},
		{"yaml", FormatYAML, `
runtime:
  max_threads: 8
app:
  greeting: hi
  names: [ada, grace]
`},
		{"json", FormatJSON, `{"runtime":{"max_threads":8},"app":{"greeting":"hi","names":["ada","grace"]}}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := DecodeConfig[greeterConfig]([]byte(tt.doc), tt.format)
			require.NoError(t, err)
			assert.True(t, cfg.Runtime.EnableIO)
			assert.True(t, cfg.Runtime.EnableTime)
			assert.Equal(t, 8, cfg.Runtime.MaxThreads)
			assert.Equal(t, "5s", cfg.Runtime.ShutdownTimeout)
			assert.Nil(t, cfg.Logger)
			assert.Nil(t, cfg.Observability)
			assert.Equal(t, greeterConfig{Greeting: "hi", Names: []string{"ada", "grace"}}, cfg.App)
		})
	}
}

func TestDecodeConfigWithoutRuntimeSection(t *testing.T) {
	t.Parallel()
	cfg, err := DecodeConfig[greeterConfig]([]byte("[app]\ngreeting = \"yo\"\n"), FormatTOML)
	require.NoError(t, err)
	assert.Equal(t, DefaultRuntimeConfig(), cfg.Runtime)
	assert.Equal(t, "yo", cfg.App.Greeting)
}

func TestDecodeConfigOptionalSections(t *testing.T) {
	t.Parallel()
	doc := `
[runtime]
enable_io = false
timezone = "UTC"

[logger]
level = "info"

[observability]
enabled = true
addr = "127.0.0.1:0"

[app]
`
	cfg, err := DecodeConfig[struct{}]([]byte(doc), FormatTOML)
	require.NoError(t, err)
	assert.False(t, cfg.Runtime.EnableIO)
	assert.True(t, cfg.Runtime.EnableTime)
	assert.Equal(t, "UTC", cfg.Runtime.Timezone)

	require.NotNil(t, cfg.Logger)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "stdout", cfg.Logger.Target)

	require.NotNil(t, cfg.Observability)
	assert.True(t, cfg.Observability.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestDecodeConfigRejectsBadDocuments(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown runtime key", "[runtime]\nmax_thread = 4\n"},
		{"unknown top-level key", "[extra]\nx = 1\n"},
		{"unknown app key", "[app]\ngreetin = \"typo\"\n"},
		{"wrong type", "[runtime]\nmax_threads = \"many\"\n"},
		{"syntax", "[runtime\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeConfig[greeterConfig]([]byte(tt.doc), FormatTOML)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestDecodeConfigNamesMisspelledAppKey(t *testing.T) {
	t.Parallel()
	_, err := DecodeConfig[greeterConfig]([]byte("[app]\ngreeting = \"hi\"\nnamez = [\"ada\"]\n"), FormatTOML)
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorContains(t, err, `"namez"`)
}

func TestAppConfigValidate(t *testing.T) {
	t.Parallel()
	cfg := DefaultAppConfig[greeterConfig]()
	assert.NoError(t, cfg.Validate())

	cfg.Runtime.MaxThreads = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultAppConfig[greeterConfig]()
	cfg.Observability = &ObservabilityConfig{Enabled: true, Addr: "0.0.0.0:9464"}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	// Disabled sections are not validated.
	cfg.Observability.Enabled = false
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigUsesExtension(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  greeting: hello\n"), 0o600))

	cfg, err := LoadConfig[greeterConfig](path)
	require.NoError(t, err)
	assert.Equal(t, "hello", cfg.App.Greeting)

	_, err = LoadConfig[greeterConfig](filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}
