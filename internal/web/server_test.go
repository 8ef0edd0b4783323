package web

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http/httptest"
	"testing"

	"github.com/devskill-org/phaeton-driver/internal/bus"
	"github.com/devskill-org/phaeton-driver/internal/config"
	"github.com/devskill-org/phaeton-driver/internal/driver"
	"github.com/devskill-org/phaeton-driver/internal/logging"
)

type fakeSink struct {
	got []bus.Command
}

func (f *fakeSink) Enqueue(cmd bus.Command) { f.got = append(f.got, cmd) }

func newTestServer() (*Server, *fakeSink) {
	cfg := config.DefaultConfig()
	sink := &fakeSink{}
	s := NewServer(cfg, log.New(bytes.NewBuffer(nil), "", 0), driver.NewWatch(), logging.NewRingBuffer(100), sink)
	return s, sink
}

func TestHandleHealthReturnsOK(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest("GET", "/api/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "ok")
	}
}

func TestHandleSetModeValidation(t *testing.T) {
	s, sink := newTestServer()

	req := httptest.NewRequest("POST", "/api/mode", bytes.NewBufferString(`{"mode": 1}`))
	rec := httptest.NewRecorder()
	s.handleSetMode(rec, req)
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(sink.got) != 1 || sink.got[0].ModeValue != 1 {
		t.Errorf("expected one enqueued mode=1 command, got %+v", sink.got)
	}

	req = httptest.NewRequest("POST", "/api/mode", bytes.NewBufferString(`{"mode": 5}`))
	rec = httptest.NewRecorder()
	s.handleSetMode(rec, req)
	if rec.Code != 400 {
		t.Errorf("out-of-range mode: status = %d, want 400", rec.Code)
	}
}

func TestHandleSetCurrentValidation(t *testing.T) {
	s, sink := newTestServer()

	req := httptest.NewRequest("POST", "/api/set_current", bytes.NewBufferString(`{"amps": 16}`))
	rec := httptest.NewRecorder()
	s.handleSetCurrent(rec, req)
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(sink.got) != 1 || sink.got[0].CurrentA != 16 {
		t.Errorf("expected one enqueued current=16 command, got %+v", sink.got)
	}

	req = httptest.NewRequest("POST", "/api/set_current", bytes.NewBufferString(`{"amps": 999}`))
	rec = httptest.NewRecorder()
	s.handleSetCurrent(rec, req)
	if rec.Code != 400 {
		t.Errorf("over-limit current: status = %d, want 400", rec.Code)
	}
}

func TestHandleStatusReturnsLatestSnapshot(t *testing.T) {
	s, _ := newTestServer()
	s.watch.Publish(driver.DriverSnapshot{Mode: 1, TotalPolls: 3})

	req := httptest.NewRequest("GET", "/api/status", nil)
	rec := httptest.NewRecorder()
	s.handleStatus(rec, req)
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Mode != 1 || got.TotalPolls != 3 {
		t.Errorf("got %+v, want mode=1 total_polls=3", got)
	}
}
