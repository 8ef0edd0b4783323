package driver

import (
	"math"
	"testing"
	"time"

	"github.com/devskill-org/phaeton-driver/internal/codec"
	"github.com/devskill-org/phaeton-driver/internal/session"
)

func TestDecodeF32SafeSanitizesNonFinite(t *testing.T) {
	nanBits := codec.EncodeF32(float32(math.NaN()))
	v, err := decodeF32Safe(nanBits[:])
	if err != nil {
		t.Fatalf("decodeF32Safe: %v", err)
	}
	if v != 0 {
		t.Errorf("NaN input: got %v, want 0", v)
	}

	finite := codec.EncodeF32(42.5)
	v, err = decodeF32Safe(finite[:])
	if err != nil {
		t.Fatalf("decodeF32Safe: %v", err)
	}
	if v != 42.5 {
		t.Errorf("finite input: got %v, want 42.5", v)
	}
}

func TestDecodeF32SafeShortRegsErrors(t *testing.T) {
	if _, err := decodeF32Safe([]uint16{0x1234}); err == nil {
		t.Errorf("expected error for <2 registers")
	}
}

func TestClampRequestedCurrent(t *testing.T) {
	cases := []struct {
		in, lo, hi, want float32
	}{
		{-5, 6, 32, 0},
		{0, 6, 32, 0},
		{3, 6, 32, 6},
		{20, 6, 32, 20},
		{40, 6, 32, 32},
	}
	for _, c := range cases {
		got := clampRequested(c.in, c.lo, c.hi)
		if got != c.want {
			t.Errorf("clampRequested(%v, %v, %v) = %v, want %v", c.in, c.lo, c.hi, got, c.want)
		}
	}
}

func TestSessionSummaryPrefersActiveOverLast(t *testing.T) {
	last := &session.ChargingSession{ID: "last", Status: session.StatusCompleted}
	active := &session.ChargingSession{ID: "active", Status: session.StatusActive, StartTime: time.Now()}

	got := sessionSummary(active, last, "EUR")
	if got.ID != "active" || !got.Active {
		t.Errorf("expected active session to win, got %+v", got)
	}

	got = sessionSummary(nil, last, "EUR")
	if got.ID != "last" || got.Active {
		t.Errorf("expected fallback to last session, got %+v", got)
	}

	got = sessionSummary(nil, nil, "EUR")
	if got.ID != "" {
		t.Errorf("expected zero-value summary when no session exists, got %+v", got)
	}
}
