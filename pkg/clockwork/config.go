package clockwork

import (
	"bytes"
	"encoding/json"
	"time"

	"clockwork/internal/config"
	"clockwork/internal/observability/server"
	"clockwork/internal/schedule"
	"clockwork/pkg/logx"
)

const (
	DefaultMaxThreads      = 512
	DefaultShutdownTimeout = 5 * time.Second
)

// Format is the text format of a configuration document.
type Format = config.Format

const (
	FormatJSON = config.FormatJSON
	FormatYAML = config.FormatYAML
	FormatTOML = config.FormatTOML
)

// ObservabilityConfig is the optional "observability" section (metrics, health, pprof).
type ObservabilityConfig = server.Config

// RuntimeConfig is the "runtime" section.
//
// Defaults (when fields are omitted):
//   - enable_io: true (OS signal integration in Host)
//   - enable_time: true (timer-based scheduling)
//   - max_threads: 512 (units of work executing at once)
//   - shutdown_timeout: "5s" (bound on runtime teardown)
//   - timezone: "" (Local; used by cron schedules)
type RuntimeConfig struct {
	EnableIO        bool   `json:"enable_io"`
	EnableTime      bool   `json:"enable_time"`
	MaxThreads      int    `json:"max_threads"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
	Timezone        string `json:"timezone,omitempty"`
}

func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		EnableIO:        true,
		EnableTime:      true,
		MaxThreads:      DefaultMaxThreads,
		ShutdownTimeout: DefaultShutdownTimeout.String(),
	}
}

// UnmarshalJSON fills omitted fields from DefaultRuntimeConfig and rejects unknown keys.
func (c *RuntimeConfig) UnmarshalJSON(b []byte) error {
	type plain RuntimeConfig
	p := plain(DefaultRuntimeConfig())
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return err
	}
	*c = RuntimeConfig(p)
	return nil
}

type runtimeSettings struct {
	shutdownTimeout time.Duration
	loc             *time.Location
}

func (c RuntimeConfig) settings() (runtimeSettings, error) {
	var s runtimeSettings
	if c.MaxThreads <= 0 {
		return s, invalidConfig("runtime.max_threads must be > 0, got %d", c.MaxThreads)
	}
	d, err := config.ParseDurationOrDefault("runtime.shutdown_timeout", c.ShutdownTimeout, DefaultShutdownTimeout)
	if err != nil {
		return s, invalidConfig("%v", err)
	}
	loc, err := schedule.LoadLocation(c.Timezone)
	if err != nil {
		return s, invalidConfig("runtime.timezone: %v", err)
	}
	s.shutdownTimeout = d
	s.loc = loc
	return s, nil
}

// Validate reports the first invalid field.
func (c RuntimeConfig) Validate() error {
	_, err := c.settings()
	return err
}

// AppConfig is a whole application document: runtime settings, optional
// collaborators and the application's own section.
type AppConfig[C any] struct {
	Runtime       RuntimeConfig        `json:"runtime"`
	Logger        *logx.Config         `json:"logger,omitempty"`
	Observability *ObservabilityConfig `json:"observability,omitempty"`
	App           C                    `json:"app"`
}

// DefaultAppConfig returns the config used for omitted sections.
func DefaultAppConfig[C any]() AppConfig[C] {
	return AppConfig[C]{Runtime: DefaultRuntimeConfig()}
}

func (c AppConfig[C]) Validate() error {
	if err := c.Runtime.Validate(); err != nil {
		return err
	}
	if c.Observability != nil && c.Observability.Enabled {
		if err := c.Observability.Validate(); err != nil {
			return invalidConfig("%v", err)
		}
	}
	if v, ok := any(c.App).(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return invalidConfig("app: %v", err)
		}
	}
	return nil
}
