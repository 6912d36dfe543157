package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Settings are runtime knobs read from the environment. Cron drops most of
// the interactive environment, so everything has a default and CLI flags
// override whatever is set here.
type Settings struct {
	Region           string        `envconfig:"AUTOSNAP_REGION" default:""`
	CredentialsFile  string        `envconfig:"AUTOSNAP_CREDENTIALS_FILE" default:""`
	PolicyFile       string        `envconfig:"AUTOSNAP_POLICY_FILE" default:"/etc/autosnap/policies.yaml"`
	LogLevel         string        `envconfig:"AUTOSNAP_LOG_LEVEL" default:"INFO"`
	Parallelism      int           `envconfig:"AUTOSNAP_PARALLELISM" default:"4"`
	RetryMaxAttempts int           `envconfig:"AUTOSNAP_RETRY_MAX_ATTEMPTS" default:"4"`
	RetryBaseDelay   time.Duration `envconfig:"AUTOSNAP_RETRY_BASE_DELAY" default:"500ms"`
}

func SettingsFromEnv() (Settings, error) {
	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
