package perr

import (
	"errors"
	"testing"
)

func TestIsTransientClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout kind", Timeout("read_holding", nil), true},
		{"connection substring", ModbusIo("write_multiple", errors.New("connection reset by peer")), true},
		{"disconnected substring", ModbusIo("read_holding", errors.New("disconnected from charger")), true},
		{"timeout substring case-insensitive", ModbusIo("connect", errors.New("DIAL TIMEOUT")), true},
		{"unrelated error", ModbusProtocol("decode reply", errors.New("malformed frame")), false},
		{"exception not transient", ModbusException(2, "illegal data address"), false},
	}

	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.want {
			t.Errorf("%s: IsTransient() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestErrorIsBySentinelKind(t *testing.T) {
	err := Timeout("op", errors.New("boom"))
	if !errors.Is(err, New(KindTimeout)) {
		t.Errorf("expected errors.Is to match on Kind")
	}
	if errors.Is(err, New(KindConfig)) {
		t.Errorf("expected errors.Is to not match a different Kind")
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := Validation("mode", "must be 0, 1, or 2")
	want := "validation: mode: must be 0, 1, or 2"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
