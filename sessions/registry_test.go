package sessions

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestCreateAndLookupRoundTrip(t *testing.T) {
	reg := NewRegistry(ModeStateful)

	sess, err := reg.CreateSession()
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if sess.ID() == "" {
		t.Fatal("expected a non-empty session id")
	}
	if sess.State() != StateOpen {
		t.Fatalf("expected open state, got %q", sess.State())
	}
	if !reg.Initialized() {
		t.Error("registry should report initialized after first create")
	}

	got, err := reg.Lookup(sess.ID())
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got != sess {
		t.Error("Lookup returned a different session")
	}

	if _, err := reg.Lookup("sess_does_not_exist"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("want ErrSessionNotFound, got %v", err)
	}
}

func TestSessionIdentifiersAreUnique(t *testing.T) {
	reg := NewRegistry(ModeStateful)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		sess, err := reg.CreateSession()
		if err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
		if seen[sess.ID()] {
			t.Fatalf("identifier %q issued twice", sess.ID())
		}
		seen[sess.ID()] = true
	}
}

func TestProtocolVersionPinsOnce(t *testing.T) {
	reg := NewRegistry(ModeStateful)
	sess, _ := reg.CreateSession()

	sess.SetProtocolVersion("2025-06-18")
	sess.SetProtocolVersion("2024-11-05")
	if got := sess.ProtocolVersion(); got != "2025-06-18" {
		t.Errorf("protocol version changed after pinning: got %q", got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	reg := NewRegistry(ModeStateful)
	sess, _ := reg.CreateSession()

	reg.Close(sess.ID())
	if sess.State() != StateClosed {
		t.Fatalf("expected closed state, got %q", sess.State())
	}
	// Second close of the same id, and of an unknown id, must be no-ops.
	reg.Close(sess.ID())
	reg.Close("sess_unknown")

	if _, err := reg.Lookup(sess.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("closed session should not resolve, got %v", err)
	}
}

func TestCloseAllDrainsAndBlocksCreation(t *testing.T) {
	reg := NewRegistry(ModeStateful)
	var all []*Session
	for i := 0; i < 5; i++ {
		sess, _ := reg.CreateSession()
		all = append(all, sess)
	}

	reg.CloseAll()
	for _, sess := range all {
		if sess.State() != StateClosed {
			t.Errorf("session %s not closed", sess.ID())
		}
	}
	if reg.Len() != 0 {
		t.Errorf("expected empty registry, got %d", reg.Len())
	}
	if _, err := reg.CreateSession(); !errors.Is(err, ErrRegistryDraining) {
		t.Errorf("want ErrRegistryDraining, got %v", err)
	}
	// Idempotent.
	reg.CloseAll()
}

func TestPublishPreservesOrder(t *testing.T) {
	reg := NewRegistry(ModeStateful)
	sess, _ := reg.CreateSession()

	msgs, release, err := sess.Attach()
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	defer release()

	ctx := context.Background()
	const n = 10
	for i := 0; i < n; i++ {
		if err := sess.Publish(ctx, []byte(fmt.Sprintf("msg-%d", i))); err != nil {
			t.Fatalf("Publish %d failed: %v", i, err)
		}
	}
	for i := 0; i < n; i++ {
		select {
		case got := <-msgs:
			if want := fmt.Sprintf("msg-%d", i); string(got) != want {
				t.Fatalf("message %d out of order: want %q got %q", i, want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestAttachIsExclusive(t *testing.T) {
	reg := NewRegistry(ModeStateful)
	sess, _ := reg.CreateSession()

	_, release, err := sess.Attach()
	if err != nil {
		t.Fatalf("first Attach failed: %v", err)
	}
	if _, _, err := sess.Attach(); !errors.Is(err, ErrStreamBusy) {
		t.Errorf("want ErrStreamBusy, got %v", err)
	}
	release()
	if _, release2, err := sess.Attach(); err != nil {
		t.Errorf("Attach after release failed: %v", err)
	} else {
		release2()
	}
}

func TestPublishAfterCloseFails(t *testing.T) {
	reg := NewRegistry(ModeStateful)
	sess, _ := reg.CreateSession()
	reg.Close(sess.ID())

	if err := sess.Publish(context.Background(), []byte("late")); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("want ErrSessionClosed, got %v", err)
	}
	select {
	case <-sess.Done():
	default:
		t.Error("Done channel should be closed")
	}
}

func TestStatelessSessionsAreEphemeral(t *testing.T) {
	reg := NewRegistry(ModeStateless)

	sess, err := reg.CreateSession()
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if !sess.Ephemeral() {
		t.Error("stateless sessions should be ephemeral")
	}
	if reg.Len() != 0 {
		t.Errorf("stateless sessions must not be recorded, got %d", reg.Len())
	}
	if _, err := reg.Lookup(sess.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("ephemeral session should not resolve, got %v", err)
	}
}
