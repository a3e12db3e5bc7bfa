package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Receiver  ReceiverConfig  `yaml:"receiver"`
	Ntrip     NtripConfig     `yaml:"ntrip"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	Buttons   ButtonsConfig   `yaml:"buttons"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ReceiverConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

type NtripConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Mount          string        `yaml:"mount"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	SendPosition   bool          `yaml:"send_position"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

type StorageConfig struct {
	Dir           string        `yaml:"dir"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

type LoggingConfig struct {
	MinSampleInterval time.Duration `yaml:"min_sample_interval"`
}

type ButtonsConfig struct {
	Enable    bool          `yaml:"enable"`
	Chip      string        `yaml:"chip"`
	LogPin    int           `yaml:"log_pin"`
	ViewPin   int           `yaml:"view_pin"`
	Debounce  time.Duration `yaml:"debounce"`
	LongPress time.Duration `yaml:"long_press"`
}

type TelemetryConfig struct {
	Enable      bool          `yaml:"enable"`
	Broker      string        `yaml:"broker"`
	ClientID    string        `yaml:"client_id"`
	TopicPrefix string        `yaml:"topic_prefix"`
	Interval    time.Duration `yaml:"interval"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if cfg.Receiver.Device == "" {
		return Config{}, fmt.Errorf("receiver.device is required")
	}
	if cfg.Receiver.Baud <= 0 {
		cfg.Receiver.Baud = 38400
	}

	if cfg.Ntrip.Host != "" {
		if cfg.Ntrip.Mount == "" {
			return Config{}, fmt.Errorf("ntrip.mount is required when ntrip.host is set")
		}
		if cfg.Ntrip.Port <= 0 {
			cfg.Ntrip.Port = 2101
		}
		if cfg.Ntrip.ReconnectDelay <= 0 {
			cfg.Ntrip.ReconnectDelay = 1 * time.Second
		}
	}

	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "/"
	}
	if cfg.Storage.RetryAttempts <= 0 {
		cfg.Storage.RetryAttempts = 3
	}
	if cfg.Storage.RetryDelay <= 0 {
		cfg.Storage.RetryDelay = 50 * time.Millisecond
	}

	if cfg.Logging.MinSampleInterval <= 0 {
		cfg.Logging.MinSampleInterval = 1 * time.Second
	}

	if cfg.Buttons.Enable {
		if cfg.Buttons.Chip == "" {
			cfg.Buttons.Chip = "gpiochip0"
		}
		if cfg.Buttons.LogPin == cfg.Buttons.ViewPin {
			return Config{}, fmt.Errorf("buttons.log_pin and buttons.view_pin must differ")
		}
		if cfg.Buttons.Debounce <= 0 {
			cfg.Buttons.Debounce = 30 * time.Millisecond
		}
		if cfg.Buttons.LongPress <= 0 {
			cfg.Buttons.LongPress = 1500 * time.Millisecond
		}
	}

	if cfg.Telemetry.Enable {
		if cfg.Telemetry.Broker == "" {
			return Config{}, fmt.Errorf("telemetry.broker is required when telemetry.enable is true")
		}
		if cfg.Telemetry.ClientID == "" {
			cfg.Telemetry.ClientID = "rtkrover"
		}
		if cfg.Telemetry.TopicPrefix == "" {
			cfg.Telemetry.TopicPrefix = "rtkrover"
		}
		if cfg.Telemetry.Interval <= 0 {
			cfg.Telemetry.Interval = 10 * time.Second
		}
	}

	return cfg, nil
}
