package config

import (
	"os"
	"time"

	"codeberg.org/mutker/umctl/internal/errors"
	"codeberg.org/mutker/umctl/internal/logger"
	"codeberg.org/mutker/umctl/internal/recorder"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	TransportBLE    = "ble"
	TransportSerial = "serial"

	DefaultTransport      = TransportBLE
	DefaultBaudRate       = 9600
	DefaultIntervalMS     = 500
	DefaultConnectTimeout = 30
	DefaultLogLevel       = "info"
	DefaultHistorySize    = 100

	configEnvVar = "UMCTL_CONFIG"
	envPrefix    = "UMCTL"
	configName   = "umctl"
)

type Config struct {
	Transport      string `mapstructure:"transport"`
	Device         string `mapstructure:"device"`
	BaudRate       int    `mapstructure:"baud_rate"`
	IntervalMS     int    `mapstructure:"interval_ms"`
	ConnectTimeout int    `mapstructure:"connect_timeout"`
	LogLevel       string `mapstructure:"log_level"`
	Record         bool   `mapstructure:"record"`
	RecordDB       string `mapstructure:"record_db"`
	BatchSize      int    `mapstructure:"batch_size"`
	BatchTimeout   int    `mapstructure:"batch_timeout"`
	HistorySize    int    `mapstructure:"history_size"`
}

// flagKeys maps command line flag names to configuration keys.
var flagKeys = map[string]string{
	"transport":       "transport",
	"device":          "device",
	"baud-rate":       "baud_rate",
	"interval":        "interval_ms",
	"connect-timeout": "connect_timeout",
	"log-level":       "log_level",
	"record":          "record",
	"record-db":       "record_db",
}

// RegisterFlags defines the flags Load knows how to bind.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("transport", "t", DefaultTransport, "Link to the meter: ble or serial")
	fs.StringP("device", "d", "", "BLE address or name filter, or serial port path")
	fs.Int("baud-rate", DefaultBaudRate, "Serial baud rate")
	fs.Int("interval", DefaultIntervalMS, "Delay in milliseconds before requesting the next snapshot")
	fs.Int("connect-timeout", DefaultConnectTimeout, "Seconds to wait for the meter to connect")
	fs.String("log-level", DefaultLogLevel, "Log level: debug, info, warning or error")
	fs.Bool("record", false, "Record snapshots to SQLite")
	fs.String("record-db", recorder.DefaultConfig().DBPath, "Path to the recording database")
}

func setDefaults(v *viper.Viper) {
	rec := recorder.DefaultConfig()

	v.SetDefault("transport", DefaultTransport)
	v.SetDefault("device", "")
	v.SetDefault("baud_rate", DefaultBaudRate)
	v.SetDefault("interval_ms", DefaultIntervalMS)
	v.SetDefault("connect_timeout", DefaultConnectTimeout)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("record", rec.Enabled)
	v.SetDefault("record_db", rec.DBPath)
	v.SetDefault("batch_size", rec.BatchSize)
	v.SetDefault("batch_timeout", rec.BatchTimeout)
	v.SetDefault("history_size", DefaultHistorySize)
}

// Load merges defaults, the config file, UMCTL_* environment variables
// and flags, in increasing order of precedence. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	errFactory := errors.New()
	v := viper.New()

	setDefaults(v)

	if path := os.Getenv(configEnvVar); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
		v.AddConfigPath("$HOME/.config/umctl")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, errFactory.Wrap(errors.ErrBindFlags, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	switch c.Transport {
	case TransportBLE, TransportSerial:
	default:
		return errFactory.WithData(errors.ErrInvalidTransport, c.Transport)
	}

	if c.IntervalMS <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.IntervalMS)
	}

	if c.ConnectTimeout <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
			Value int
		}{"connect_timeout", c.ConnectTimeout})
	}

	if c.Transport == TransportSerial && c.BaudRate <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
			Value int
		}{"baud_rate", c.BaudRate})
	}

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	// The display and history windows are sized at compile time.
	if c.HistorySize != DefaultHistorySize {
		return errFactory.WithData(errors.ErrInvalidHistory, c.HistorySize)
	}

	if err := c.RecorderConfig().Validate(); err != nil {
		return errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	return nil
}

func (c *Config) GetTransport() string { return c.Transport }

func (c *Config) GetDevice() string { return c.Device }

func (c *Config) GetBaudRate() int { return c.BaudRate }

func (c *Config) GetInterval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

func (c *Config) GetLogLevel() string { return c.LogLevel }

func (c *Config) IsRecordEnabled() bool { return c.Record }

func (c *Config) RecorderConfig() recorder.Config {
	return recorder.Config{
		DBPath:       c.RecordDB,
		Enabled:      c.Record,
		BatchSize:    c.BatchSize,
		BatchTimeout: c.BatchTimeout,
	}
}
