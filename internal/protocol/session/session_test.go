package session

import (
	"errors"
	"testing"
	"time"

	"github.com/danmuck/tcpros/internal/testutil/testlog"
)

func TestLifecycleHappyPath(t *testing.T) {
	testlog.Start(t)
	l := NewLifecycle(RoleSubscriber, "/chatter", "127.0.0.1:1")
	if l.State() != StateConnecting {
		t.Fatalf("unexpected initial state: %s", l.State())
	}
	for _, next := range []State{StateNegotiating, StateStreaming, StateClosed} {
		if err := l.Transition(next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if err := l.Transition(StateClosed); err != nil {
		t.Fatalf("closing twice should be a no-op: %v", err)
	}
	if l.ID == "" {
		t.Fatalf("expected connection id")
	}
}

func TestLifecycleRejectsSkippingNegotiation(t *testing.T) {
	testlog.Start(t)
	l := NewLifecycle(RolePublisher, "/chatter", "peer")
	if err := l.Transition(StateStreaming); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	_ = l.Transition(StateNegotiating)
	if err := l.Transition(StateClosed); err != nil {
		t.Fatalf("negotiating -> closed: %v", err)
	}
	if err := l.Transition(StateStreaming); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected closed to be terminal, got %v", err)
	}
}

func TestLifecycleSnapshot(t *testing.T) {
	testlog.Start(t)
	l := NewLifecycle(RolePublisher, "/pose", "10.0.0.2:5000")
	l.Close()
	info := l.Snapshot()
	if info.State != "closed" || info.Topic != "/pose" || info.Role != RolePublisher {
		t.Fatalf("unexpected snapshot: %+v", info)
	}
	if time.Since(info.Since) > time.Minute {
		t.Fatalf("unexpected since: %v", info.Since)
	}
}

func TestConfigWithDefaultsAndValidate(t *testing.T) {
	testlog.Start(t)
	cfg := Config{QueuePolicy: " Drop-Oldest "}.WithDefaults()
	if cfg.QueuePolicy != QueueDropOldest {
		t.Fatalf("unexpected policy: %q", cfg.QueuePolicy)
	}
	if cfg.ConnectTimeout != 5*time.Second || cfg.QueueSize != 256 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	bad := DefaultConfig()
	bad.QueuePolicy = "spill"
	if err := bad.Validate(); !errors.Is(err, ErrInvalidQueuePolicy) {
		t.Fatalf("expected ErrInvalidQueuePolicy, got %v", err)
	}
	bad = DefaultConfig()
	bad.QueueSize = -1
	if err := bad.Validate(); !errors.Is(err, ErrInvalidQueueSize) {
		t.Fatalf("expected ErrInvalidQueueSize, got %v", err)
	}
}
