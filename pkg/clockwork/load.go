package clockwork

import (
	"fmt"

	"clockwork/internal/config"
	"clockwork/pkg/logx"
)

// NewHostFromConfig validates cfg, builds the runtime and the optional
// collaborators, and configures a new T from cfg.App.
//
// Type arguments: C is the app section type, T the app type (P is inferred as *T):
//
//	host, err := clockwork.NewHostFromConfig[echo.Config, echo.App](cfg)
func NewHostFromConfig[C any, T any, P interface {
	*T
	App[C]
}](cfg AppConfig[C], opts ...HostOption) (*Host, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rt, err := NewRuntime(cfg.Runtime)
	if err != nil {
		return nil, err
	}

	var hopts []HostOption
	if cfg.Logger != nil {
		svc, err := logx.New(*cfg.Logger)
		if err != nil {
			return nil, invalidConfig("logger: %v", err)
		}
		hopts = append(hopts, WithLogging(svc))
	}
	if cfg.Observability != nil {
		hopts = append(hopts, WithObservability(*cfg.Observability))
	}

	app := P(new(T))
	app.Configure(cfg.App)
	return NewHost(rt, app, append(hopts, opts...)...), nil
}

// DecodeConfig decodes a whole application document. Omitted sections and
// fields take their defaults. Unknown keys are rejected in every section,
// the app section included, so a misspelled key fails with ErrInvalidConfig
// instead of silently keeping its default.
func DecodeConfig[C any](data []byte, format Format) (AppConfig[C], error) {
	cfg := DefaultAppConfig[C]()
	if err := config.Decode(data, format, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// LoadConfig reads and decodes path; the format follows the file extension.
func LoadConfig[C any](path string) (AppConfig[C], error) {
	b, err := config.ReadFile(path)
	if err != nil {
		return AppConfig[C]{}, fmt.Errorf("clockwork: read config: %w", err)
	}
	cfg, err := DecodeConfig[C](b, config.FormatFromPath(path))
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// HostFromString builds a host from configuration text.
func HostFromString[C any, T any, P interface {
	*T
	App[C]
}](text string, format Format, opts ...HostOption) (*Host, error) {
	cfg, err := DecodeConfig[C]([]byte(text), format)
	if err != nil {
		return nil, err
	}
	return NewHostFromConfig[C, T, P](cfg, opts...)
}

// HostFromFile builds a host from a configuration file.
func HostFromFile[C any, T any, P interface {
	*T
	App[C]
}](path string, opts ...HostOption) (*Host, error) {
	cfg, err := LoadConfig[C](path)
	if err != nil {
		return nil, err
	}
	return NewHostFromConfig[C, T, P](cfg, opts...)
}

// Must aborts on construction errors: a bad configuration is a deployment error.
func Must(h *Host, err error) *Host {
	if err != nil {
		panic(fmt.Sprintf("clockwork: cannot build host: %v", err))
	}
	return h
}
