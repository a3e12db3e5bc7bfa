package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_RequiresDevice(t *testing.T) {
	path := writeTempConfig(t, "receiver: {}\n")
	_, err := Load(path)
	requireErrEq(t, err, "receiver.device is required")
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "receiver:\n  device: /dev/ttyACM0\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Receiver.Baud != 38400 {
		t.Fatalf("baud=%d want 38400", cfg.Receiver.Baud)
	}
	if cfg.Storage.Dir != "/" {
		t.Fatalf("storage.dir=%q want /", cfg.Storage.Dir)
	}
	if cfg.Storage.RetryAttempts != 3 || cfg.Storage.RetryDelay != 50*time.Millisecond {
		t.Fatalf("retry=%d/%s want 3/50ms", cfg.Storage.RetryAttempts, cfg.Storage.RetryDelay)
	}
	if cfg.Logging.MinSampleInterval != 1*time.Second {
		t.Fatalf("min_sample_interval=%s want 1s", cfg.Logging.MinSampleInterval)
	}
}

func TestLoad_NtripMountRequiredWithHost(t *testing.T) {
	path := writeTempConfig(t, "receiver:\n  device: /dev/ttyACM0\nntrip:\n  host: caster.example.com\n")
	_, err := Load(path)
	requireErrEq(t, err, "ntrip.mount is required when ntrip.host is set")
}

func TestLoad_NtripDefaults(t *testing.T) {
	path := writeTempConfig(t, "receiver:\n  device: /dev/ttyACM0\nntrip:\n  host: caster.example.com\n  mount: RTCM3\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Ntrip.Port != 2101 {
		t.Fatalf("port=%d want 2101", cfg.Ntrip.Port)
	}
	if cfg.Ntrip.ReconnectDelay != 1*time.Second {
		t.Fatalf("reconnect_delay=%s want 1s", cfg.Ntrip.ReconnectDelay)
	}
}

func TestLoad_NtripAbsentLeavesZeroConfig(t *testing.T) {
	path := writeTempConfig(t, "receiver:\n  device: /dev/ttyACM0\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Ntrip.Host != "" || cfg.Ntrip.Port != 0 {
		t.Fatalf("ntrip=%+v want zero", cfg.Ntrip)
	}
}

func TestLoad_ButtonsPinsMustDiffer(t *testing.T) {
	path := writeTempConfig(t, "receiver:\n  device: /dev/ttyACM0\nbuttons:\n  enable: true\n  log_pin: 17\n  view_pin: 17\n")
	_, err := Load(path)
	requireErrEq(t, err, "buttons.log_pin and buttons.view_pin must differ")
}

func TestLoad_ButtonsDefaults(t *testing.T) {
	path := writeTempConfig(t, "receiver:\n  device: /dev/ttyACM0\nbuttons:\n  enable: true\n  log_pin: 17\n  view_pin: 27\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Buttons.Chip != "gpiochip0" {
		t.Fatalf("chip=%q want gpiochip0", cfg.Buttons.Chip)
	}
	if cfg.Buttons.Debounce != 30*time.Millisecond || cfg.Buttons.LongPress != 1500*time.Millisecond {
		t.Fatalf("debounce=%s long_press=%s", cfg.Buttons.Debounce, cfg.Buttons.LongPress)
	}
}

func TestLoad_TelemetryRequiresBroker(t *testing.T) {
	path := writeTempConfig(t, "receiver:\n  device: /dev/ttyACM0\ntelemetry:\n  enable: true\n")
	_, err := Load(path)
	requireErrEq(t, err, "telemetry.broker is required when telemetry.enable is true")
}

func TestLoad_TelemetryDefaults(t *testing.T) {
	path := writeTempConfig(t, "receiver:\n  device: /dev/ttyACM0\ntelemetry:\n  enable: true\n  broker: tcp://localhost:1883\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Telemetry.ClientID != "rtkrover" || cfg.Telemetry.TopicPrefix != "rtkrover" {
		t.Fatalf("client_id=%q topic_prefix=%q", cfg.Telemetry.ClientID, cfg.Telemetry.TopicPrefix)
	}
	if cfg.Telemetry.Interval != 10*time.Second {
		t.Fatalf("interval=%s want 10s", cfg.Telemetry.Interval)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeTempConfig(t, "receiver: [not a map\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected yaml error")
	}
}
