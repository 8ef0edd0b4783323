package logging

import (
	"reflect"
	"testing"
	"time"
)

func TestRingBufferTailAndHead(t *testing.T) {
	rb := NewRingBuffer(3)
	rb.Write([]byte("one\n"))
	rb.Write([]byte("two\n"))
	rb.Write([]byte("three\n"))
	rb.Write([]byte("four\n"))

	got := rb.Tail(2)
	want := []string{"three", "four"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tail(2) = %v, want %v", got, want)
	}

	head := rb.Head(1)
	if !reflect.DeepEqual(head, []string{"two"}) {
		t.Errorf("Head(1) = %v, want [two]", head)
	}
}

func TestRingBufferSubscribeReceivesNewLines(t *testing.T) {
	rb := NewRingBuffer(10)
	ch, cancel := rb.Subscribe(4)
	defer cancel()

	rb.Write([]byte("hello\n"))

	select {
	case line := <-ch:
		if line != "hello" {
			t.Errorf("got %q, want %q", line, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscriber line")
	}
}

func TestRingBufferSlowSubscriberDoesNotBlockWriter(t *testing.T) {
	rb := NewRingBuffer(10)
	ch, cancel := rb.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			rb.Write([]byte("line\n"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("writer blocked on slow subscriber")
	}
	_ = ch
}
