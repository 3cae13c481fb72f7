package telephony

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/akorolev/Dial/internal/core"
	"github.com/akorolev/Dial/internal/domain"
)

type fakePerms struct{ mic core.Permission }

func (p *fakePerms) Microphone() core.Permission { return p.mic }

type fakeBridge struct {
	mu        sync.Mutex
	available bool
	requests  []Request
	handler   func(Event)
	submitErr error
}

func (b *fakeBridge) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.available
}

func (b *fakeBridge) Submit(req Request) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.submitErr != nil {
		return b.submitErr
	}
	b.requests = append(b.requests, req)
	return nil
}

func (b *fakeBridge) SetEventHandler(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = fn
}

func (b *fakeBridge) last() Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[len(b.requests)-1]
}

func (b *fakeBridge) emit(ev Event) {
	b.mu.Lock()
	fn := b.handler
	b.mu.Unlock()
	fn(ev)
}

type sinkCalls struct {
	mu    sync.Mutex
	ends  []uuid.UUID
	mutes []bool
}

func (s *sinkCalls) EndRequested(sid uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ends = append(s.ends, sid)
}

func (s *sinkCalls) MuteRequested(_ uuid.UUID, muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mutes = append(s.mutes, muted)
}

type fakeAudio struct {
	mu            sync.Mutex
	activations   int
	deactivations int
	active        bool
	err           error
}

func (a *fakeAudio) Activate(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.activations++
	a.active = true
	return nil
}

func (a *fakeAudio) Deactivate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deactivations++
	a.active = false
}

func TestUseHost(t *testing.T) {
	tests := []struct {
		available bool
		mic       core.Permission
		want      bool
	}{
		{true, core.PermissionGranted, true},
		{true, core.PermissionDenied, false},
		{true, core.PermissionUndetermined, false},
		{false, core.PermissionGranted, false},
	}
	for _, tt := range tests {
		if got := UseHost(tt.available, tt.mic); got != tt.want {
			t.Errorf("UseHost(%v, %v) = %v, want %v", tt.available, tt.mic, got, tt.want)
		}
	}
}

func TestHostConfirmsRequest(t *testing.T) {
	bridge := &fakeBridge{available: true}
	clk := clock.NewMock()
	h := NewHost(bridge, clk, 3*time.Second, &sinkCalls{})

	sid := uuid.New()
	done := make(chan error, 1)
	go func() {
		done <- h.RequestStart(context.Background(), sid, "bob")
	}()

	// Wait for the request to land on the bridge, then confirm it.
	deadline := time.After(2 * time.Second)
	for {
		bridge.mu.Lock()
		n := len(bridge.requests)
		bridge.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("request never submitted")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	req := bridge.last()
	if req.Op != OpStart || req.SID != sid || req.ID == "" {
		t.Fatalf("submitted = %+v", req)
	}

	bridge.emit(Event{Kind: EventOutcome, RequestID: req.ID})
	if err := <-done; err != nil {
		t.Fatalf("confirmed request returned %v", err)
	}
}

func TestHostConfirmationTimeout(t *testing.T) {
	bridge := &fakeBridge{available: true}
	clk := clock.NewMock()
	h := NewHost(bridge, clk, 3*time.Second, &sinkCalls{})

	done := make(chan error, 1)
	go func() {
		done <- h.RequestEnd(context.Background(), uuid.New())
	}()

	deadline := time.After(2 * time.Second)
	for {
		bridge.mu.Lock()
		n := len(bridge.requests)
		bridge.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("request never submitted")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	// Give the waiter a moment to reach its select before the clock moves.
	time.Sleep(10 * time.Millisecond)
	clk.Add(3 * time.Second)
	if err := <-done; !errors.Is(err, domain.ErrTelephonyReporting) {
		t.Fatalf("err = %v, want ErrTelephonyReporting", err)
	}
}

func TestHostSubmitFailureSurfacesImmediately(t *testing.T) {
	bridge := &fakeBridge{available: true, submitErr: errors.New("bridge down")}
	h := NewHost(bridge, clock.NewMock(), time.Second, &sinkCalls{})

	if err := h.RequestStart(context.Background(), uuid.New(), "bob"); err == nil {
		t.Fatal("submit failure not surfaced")
	}
}

func TestHostForwardsNativeActions(t *testing.T) {
	bridge := &fakeBridge{available: true}
	sink := &sinkCalls{}
	NewHost(bridge, clock.NewMock(), time.Second, sink)

	sid := uuid.New()
	bridge.emit(Event{Kind: EventEndedByHost, SID: sid})
	bridge.emit(Event{Kind: EventMuteByHost, SID: sid, Muted: true})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.ends) != 1 || sink.ends[0] != sid {
		t.Fatalf("ends = %v, want [%v]", sink.ends, sid)
	}
	if len(sink.mutes) != 1 || !sink.mutes[0] {
		t.Fatalf("mutes = %v, want [true]", sink.mutes)
	}
}

func TestInAppGatesIncomingOnMicrophone(t *testing.T) {
	perms := &fakePerms{mic: core.PermissionDenied}
	a := NewInApp(NopAudioSession{}, perms)

	err := a.ReportIncoming(context.Background(), uuid.New(), domain.Peer{ID: "bob", Username: "Bob"})
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}

	perms.mic = core.PermissionGranted
	if err := a.ReportIncoming(context.Background(), uuid.New(), domain.Peer{ID: "bob", Username: "Bob"}); err != nil {
		t.Fatalf("granted incoming err = %v", err)
	}
}

func TestInAppAudioLifecycle(t *testing.T) {
	audio := &fakeAudio{}
	a := NewInApp(audio, &fakePerms{mic: core.PermissionGranted})
	sid := uuid.New()

	if err := a.RequestStart(context.Background(), sid, "bob"); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Connected after start must not activate a second time.
	a.ReportConnected(sid)

	audio.mu.Lock()
	activations, active := audio.activations, audio.active
	audio.mu.Unlock()
	if activations != 1 || !active {
		t.Fatalf("activations = %d active=%v, want 1/true", activations, active)
	}

	a.ReportEnded(sid, "end")
	audio.mu.Lock()
	defer audio.mu.Unlock()
	if audio.active {
		t.Fatal("audio session still active after end")
	}
}

func TestInAppActivateFailureIsRetryable(t *testing.T) {
	audio := &fakeAudio{err: errors.New("audio route busy")}
	a := NewInApp(audio, &fakePerms{mic: core.PermissionGranted})
	sid := uuid.New()

	if err := a.RequestStart(context.Background(), sid, "bob"); err == nil {
		t.Fatal("activation failure not surfaced")
	}

	// Ending the failed call must not deactivate a session that never
	// came up.
	a.ReportEnded(sid, "failed")
	audio.mu.Lock()
	deactivations := audio.deactivations
	audio.mu.Unlock()
	if deactivations != 0 {
		t.Fatalf("deactivations = %d, want 0", deactivations)
	}

	// Once the route frees up, the same call can activate.
	audio.mu.Lock()
	audio.err = nil
	audio.mu.Unlock()
	if err := a.RequestStart(context.Background(), sid, "bob"); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	audio.mu.Lock()
	defer audio.mu.Unlock()
	if audio.activations != 1 || !audio.active {
		t.Fatalf("activations = %d active=%v, want 1/true", audio.activations, audio.active)
	}
}

func TestSelectorStickyPerCall(t *testing.T) {
	bridge := &fakeBridge{available: true}
	clk := clock.NewMock()
	sink := &sinkCalls{}
	perms := &fakePerms{mic: core.PermissionGranted}
	host := NewHost(bridge, clk, time.Second, sink)
	audio := &fakeAudio{}
	inApp := NewInApp(audio, perms)
	sel := NewSelector(host, inApp, perms)

	sid := uuid.New()
	done := make(chan error, 1)
	go func() {
		done <- sel.RequestStart(context.Background(), sid, "bob")
	}()

	deadline := time.After(2 * time.Second)
	for {
		bridge.mu.Lock()
		n := len(bridge.requests)
		bridge.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("host variant not selected with permission granted")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	bridge.emit(Event{Kind: EventOutcome, RequestID: bridge.last().ID})
	if err := <-done; err != nil {
		t.Fatalf("start: %v", err)
	}

	// Host becomes unavailable mid-call; the bound call keeps its variant.
	bridge.mu.Lock()
	bridge.available = false
	bridge.mu.Unlock()
	sel.ReportConnected(sid)
	bridge.mu.Lock()
	hostReqs := len(bridge.requests)
	bridge.mu.Unlock()
	if hostReqs != 2 {
		t.Fatalf("host requests = %d, want 2 (sticky binding)", hostReqs)
	}

	sel.ReportEnded(sid, "end")

	// A new call picks fresh: host is unavailable now, so in-app runs it.
	next := uuid.New()
	if err := sel.RequestStart(context.Background(), next, "bob"); err != nil {
		t.Fatalf("fallback start: %v", err)
	}
	audio.mu.Lock()
	defer audio.mu.Unlock()
	if audio.activations != 1 {
		t.Fatalf("in-app activations = %d, want 1", audio.activations)
	}
}
