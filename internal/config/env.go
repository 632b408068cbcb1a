package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Settings are process-level settings read from the environment.
type Settings struct {
	DBPath      string `env:"MSGGATE_DB" envDefault:"msggate.db"`
	RedisAddr   string `env:"MSGGATE_REDIS_ADDR"`
	ConfigPath  string `env:"MSGGATE_CONFIG" envDefault:"gateway.cue"`
	Environment string `env:"MSGGATE_ENV"`
	MetricsFile string `env:"MSGGATE_METRICS_FILE"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadSettings returns Settings populated from the environment.
func LoadSettings() (Settings, error) {
	var s Settings
	if err := ParseEnv(&s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Apply overrides the gateway environment when s names one.
func (s Settings) Apply(g Gateway) (Gateway, error) {
	if s.Environment == "" {
		return g, nil
	}
	switch s.Environment {
	case EnvDevelopment, EnvTest, EnvProduction:
	default:
		return Gateway{}, fmt.Errorf("MSGGATE_ENV: unknown environment %q", s.Environment)
	}
	g.Environment = s.Environment
	if g.Environment == EnvProduction && !g.Signatures.Enabled {
		return Gateway{}, &Error{
			Field:   "MSGGATE_ENV",
			Message: "signature enforcement cannot be disabled in production",
		}
	}
	return g, nil
}
