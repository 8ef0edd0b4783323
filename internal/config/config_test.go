package config

import (
	"bytes"
	"strings"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
}

func TestValidateRejectsZeroPollInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PollInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected error for zero poll_interval")
	}
}

func TestValidateRejectsInvertedCurrentLimits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Controls.MinSetCurrent = 20
	cfg.Controls.MaxSetCurrent = 10
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected error when min_set_current > max_set_current")
	}
}

func TestValidateRejectsBadScheduleTime(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Schedule = []ScheduleItem{{Active: true, Days: []int{0}, StartTime: "9:00", EndTime: "10:00"}}
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected error for malformed schedule start_time")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Modbus.Host = "10.0.0.5"
	cfg.Controls.MaxSetCurrent = 25

	var buf bytes.Buffer
	if err := cfg.SaveConfigToWriter(&buf); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := LoadConfigFromReader(&buf)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Modbus.Host != "10.0.0.5" {
		t.Errorf("got host %q, want %q", loaded.Modbus.Host, "10.0.0.5")
	}
	if loaded.Controls.MaxSetCurrent != 25 {
		t.Errorf("got max_set_current %v, want 25", loaded.Controls.MaxSetCurrent)
	}
	if loaded.Controls.RetryDelay != cfg.Controls.RetryDelay {
		t.Errorf("duration round trip mismatch: got %v, want %v", loaded.Controls.RetryDelay, cfg.Controls.RetryDelay)
	}
}

func TestConfigStringEmitsDurationAsText(t *testing.T) {
	cfg := DefaultConfig()
	s := cfg.String()
	if !strings.Contains(s, `"poll_interval": "2s"`) {
		t.Errorf("expected poll_interval rendered as duration string, got: %s", s)
	}
}
