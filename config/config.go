package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config carries everything the components need. It is built once at startup
// and passed explicitly; nothing reads configuration ambiently.
type Config struct {
	DataDir  string
	LogFile  string
	LogLevel string

	// Delivery retry policy.
	RetryMaxAttempts int
	RetryBackoff     time.Duration

	// Maintenance tick.
	JobInitialDelay time.Duration
	JobInterval     time.Duration

	// Waiting-window deadlines.
	AcceptDeadline   time.Duration
	PaymentDeadline  time.Duration
	RecourseDeadline time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "data")
	v.SetDefault("log.file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("retry.max_attempts", 10)
	v.SetDefault("retry.backoff", "30s")
	v.SetDefault("jobs.initial_delay", "5s")
	v.SetDefault("jobs.interval", "1m")
	v.SetDefault("deadlines.accept", "48h")
	v.SetDefault("deadlines.payment", "48h")
	v.SetDefault("deadlines.recourse", "48h")
}

// Load reads the config file at path (optional; defaults apply when absent)
// plus EBILL_-prefixed environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("EBILL")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	return &Config{
		DataDir:          v.GetString("data_dir"),
		LogFile:          v.GetString("log.file"),
		LogLevel:         v.GetString("log.level"),
		RetryMaxAttempts: v.GetInt("retry.max_attempts"),
		RetryBackoff:     v.GetDuration("retry.backoff"),
		JobInitialDelay:  v.GetDuration("jobs.initial_delay"),
		JobInterval:      v.GetDuration("jobs.interval"),
		AcceptDeadline:   v.GetDuration("deadlines.accept"),
		PaymentDeadline:  v.GetDuration("deadlines.payment"),
		RecourseDeadline: v.GetDuration("deadlines.recourse"),
	}, nil
}
