package call

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/akorolev/Dial/internal/core"
	"github.com/akorolev/Dial/internal/domain"
	"github.com/akorolev/Dial/internal/signal"
)

const (
	selfID   = domain.PeerID("alice")
	peerID   = domain.PeerID("bob")
	otherID  = domain.PeerID("carol")
	ringTime = 30 * time.Second
)

type fakeTransport struct {
	mu        sync.Mutex
	envs      []signal.Envelope
	connected bool
	err       error
}

func (t *fakeTransport) Send(_ context.Context, env signal.Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	t.envs = append(t.envs, env)
	return nil
}

func (t *fakeTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *fakeTransport) sent() []signal.Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]signal.Envelope, len(t.envs))
	copy(out, t.envs)
	return out
}

func (t *fakeTransport) lastCategory() signal.Category {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.envs) == 0 {
		return ""
	}
	return t.envs[len(t.envs)-1].Category
}

func (t *fakeTransport) countCategory(cat signal.Category) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, env := range t.envs {
		if env.Category == cat {
			n++
		}
	}
	return n
}

type fakeSession struct {
	mu           sync.Mutex
	sid          uuid.UUID
	remote       []webrtc.SessionDescription
	candidates   []webrtc.ICECandidateInit
	mutes        []bool
	closed       bool
	onICE        func(webrtc.ICECandidateInit)
	onState      func(core.MediaState)
	offerErr     error
	answerErr    error
	remoteErr    error
	candidateErr error
}

func (s *fakeSession) CreateOffer(context.Context) (webrtc.SessionDescription, error) {
	if s.offerErr != nil {
		return webrtc.SessionDescription{}, s.offerErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 local offer"}, nil
}

func (s *fakeSession) CreateAnswer(context.Context) (webrtc.SessionDescription, error) {
	if s.answerErr != nil {
		return webrtc.SessionDescription{}, s.answerErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 local answer"}, nil
}

func (s *fakeSession) SetRemoteDescription(desc webrtc.SessionDescription) error {
	if s.remoteErr != nil {
		return s.remoteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remote = append(s.remote, desc)
	return nil
}

func (s *fakeSession) AddICECandidate(c webrtc.ICECandidateInit) error {
	if s.candidateErr != nil {
		return s.candidateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates = append(s.candidates, c)
	return nil
}

func (s *fakeSession) SetMuted(muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mutes = append(s.mutes, muted)
	return nil
}

func (s *fakeSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSession) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onICE = fn
}

func (s *fakeSession) OnStateChange(fn func(core.MediaState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onState = fn
}

func (s *fakeSession) fireState(st core.MediaState) {
	s.mu.Lock()
	fn := s.onState
	s.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

func (s *fakeSession) fireCandidate(ci webrtc.ICECandidateInit) {
	s.mu.Lock()
	fn := s.onICE
	s.mu.Unlock()
	if fn != nil {
		fn(ci)
	}
}

func (s *fakeSession) remoteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.remote)
}

func (s *fakeSession) appliedCandidates() []webrtc.ICECandidateInit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]webrtc.ICECandidateInit, len(s.candidates))
	copy(out, s.candidates)
	return out
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeEngine struct {
	mu       sync.Mutex
	sessions []*fakeSession
	err      error
}

func (e *fakeEngine) NewSession(_ context.Context, sid uuid.UUID) (core.MediaSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	s := &fakeSession{sid: sid}
	e.sessions = append(e.sessions, s)
	return s, nil
}

func (e *fakeEngine) last() *fakeSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sessions) == 0 {
		return nil
	}
	return e.sessions[len(e.sessions)-1]
}

type fakeTelephony struct {
	mu          sync.Mutex
	calls       []string
	startErr    error
	endErr      error
	muteErr     error
	incomingErr error
}

func (f *fakeTelephony) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
}

func (f *fakeTelephony) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeTelephony) RequestStart(_ context.Context, _ uuid.UUID, _ domain.PeerID) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.record("start")
	return nil
}

func (f *fakeTelephony) RequestEnd(_ context.Context, _ uuid.UUID) error {
	if f.endErr != nil {
		return f.endErr
	}
	f.record("end")
	return nil
}

func (f *fakeTelephony) RequestMute(_ context.Context, _ uuid.UUID, _ bool) error {
	if f.muteErr != nil {
		return f.muteErr
	}
	f.record("mute")
	return nil
}

func (f *fakeTelephony) ReportIncoming(_ context.Context, _ uuid.UUID, _ domain.Peer) error {
	if f.incomingErr != nil {
		return f.incomingErr
	}
	f.record("incoming")
	return nil
}

func (f *fakeTelephony) ReportConnecting(uuid.UUID) { f.record("connecting") }

func (f *fakeTelephony) ReportConnected(uuid.UUID) { f.record("connected") }

func (f *fakeTelephony) ReportEnded(_ uuid.UUID, reason string) { f.record("ended:" + reason) }

type memStore struct {
	mu   sync.Mutex
	recs []domain.Completion
	err  error
}

func (s *memStore) Append(_ context.Context, rec domain.Completion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.recs = append(s.recs, rec)
	return nil
}

func (s *memStore) ListByConversation(_ context.Context, conv domain.ConversationID, _ int) ([]domain.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Completion
	for _, r := range s.recs {
		if r.Conversation == conv {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) all() []domain.Completion {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Completion, len(s.recs))
	copy(out, s.recs)
	return out
}

type endedEvent struct {
	sid      uuid.UUID
	category signal.Category
	cause    error
}

type fakeEvents struct {
	mu        sync.Mutex
	incoming  []uuid.UUID
	connected []uuid.UUID
	ended     []endedEvent
	routes    []bool
	prompts   int
}

func (e *fakeEvents) IncomingCall(sid uuid.UUID, _ domain.Peer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.incoming = append(e.incoming, sid)
}

func (e *fakeEvents) CallConnected(sid uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connected = append(e.connected, sid)
}

func (e *fakeEvents) CallEnded(sid uuid.UUID, category signal.Category, cause error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ended = append(e.ended, endedEvent{sid: sid, category: category, cause: cause})
}

func (e *fakeEvents) AudioRouteChanged(speaker bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.routes = append(e.routes, speaker)
}

func (e *fakeEvents) PromptMicrophoneAccess() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prompts++
}

func (e *fakeEvents) endedEvents() []endedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]endedEvent, len(e.ended))
	copy(out, e.ended)
	return out
}

func (e *fakeEvents) incomingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.incoming)
}

type fakeReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *fakeReporter) ReportError(_ uuid.UUID, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *fakeReporter) reported() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]error, len(r.errs))
	copy(out, r.errs)
	return out
}

type dirBook map[domain.PeerID]domain.Peer

func (d dirBook) Resolve(id domain.PeerID) (*domain.Peer, bool) {
	p, ok := d[id]
	if !ok {
		return nil, false
	}
	return &p, true
}

type staticPerms struct{ mic core.Permission }

func (p staticPerms) Microphone() core.Permission { return p.mic }

type fixture struct {
	t       *testing.T
	clk     *clock.Mock
	tr      *fakeTransport
	media   *fakeEngine
	tel     *fakeTelephony
	store   *memStore
	events  *fakeEvents
	rep     *fakeReporter
	perms   *staticPerms
	coord   *Coordinator
	cancel  context.CancelFunc
	runDone chan struct{}
	stopped sync.Once
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:      t,
		clk:    clock.NewMock(),
		tr:     &fakeTransport{connected: true},
		media:  &fakeEngine{},
		tel:    &fakeTelephony{},
		store:  &memStore{},
		events: &fakeEvents{},
		rep:    &fakeReporter{},
		perms:  &staticPerms{mic: core.PermissionGranted},
	}
	f.coord = New(Deps{
		Self:      selfID,
		Transport: f.tr,
		Media:     f.media,
		Telephony: f.tel,
		Directory: dirBook{
			peerID:  {ID: peerID, Username: "Bob"},
			otherID: {ID: otherID, Username: "Carol"},
		},
		Store:       f.store,
		Events:      f.events,
		Reporter:    f.rep,
		Perms:       f.perms,
		Clock:       f.clk,
		RingTimeout: ringTime,
	})

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.runDone = make(chan struct{})
	go func() {
		f.coord.Run(ctx)
		close(f.runDone)
	}()
	t.Cleanup(f.stop)
	return f
}

// stop shuts the coordinator down and waits for Run to return, the way
// main joins the coordinator before closing the store.
func (f *fixture) stop() {
	f.stopped.Do(func() {
		f.cancel()
		<-f.runDone
	})
}

// sync drains everything queued before it and returns the state view.
func (f *fixture) sync() Snapshot {
	f.t.Helper()
	snap, err := f.coord.Snapshot(context.Background())
	if err != nil {
		f.t.Fatalf("snapshot: %v", err)
	}
	return snap
}

func (f *fixture) startCall(t *testing.T) uuid.UUID {
	t.Helper()
	sid, err := f.coord.Start(context.Background(), peerID)
	if err != nil {
		t.Fatalf("start call: %v", err)
	}
	return sid
}

func (f *fixture) deliverOffer(t *testing.T, from domain.PeerID) uuid.UUID {
	t.Helper()
	sid := uuid.New()
	f.deliverOfferSID(t, from, sid)
	return sid
}

func (f *fixture) deliverOfferSID(t *testing.T, from domain.PeerID, sid uuid.UUID) {
	t.Helper()
	payload, err := signal.EncodeDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  "v=0 remote offer",
	})
	if err != nil {
		t.Fatalf("encode offer: %v", err)
	}
	f.coord.HandleEnvelope(signal.Envelope{
		Category:  signal.CategoryOffer,
		SessionID: sid.String(),
		Sender:    from,
		Recipient: selfID,
		Payload:   payload,
		CreatedAt: f.clk.Now(),
	})
}

func (f *fixture) deliverAnswer(t *testing.T, sid uuid.UUID) {
	t.Helper()
	payload, err := signal.EncodeDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  "v=0 remote answer",
	})
	if err != nil {
		t.Fatalf("encode answer: %v", err)
	}
	f.coord.HandleEnvelope(signal.Envelope{
		Category:      signal.CategoryAnswer,
		CorrelationID: sid.String(),
		Sender:        peerID,
		Recipient:     selfID,
		Payload:       payload,
		CreatedAt:     f.clk.Now(),
	})
}

func (f *fixture) deliverCandidates(t *testing.T, sid uuid.UUID, raw ...string) {
	t.Helper()
	batch := make([]webrtc.ICECandidateInit, 0, len(raw))
	for _, c := range raw {
		batch = append(batch, webrtc.ICECandidateInit{Candidate: c})
	}
	payload, err := signal.EncodeCandidates(batch)
	if err != nil {
		t.Fatalf("encode candidates: %v", err)
	}
	f.coord.HandleEnvelope(signal.Envelope{
		Category:      signal.CategoryCandidate,
		CorrelationID: sid.String(),
		Sender:        peerID,
		Recipient:     selfID,
		Payload:       payload,
		CreatedAt:     f.clk.Now(),
	})
}

func (f *fixture) deliverTerminal(t *testing.T, sid uuid.UUID, category signal.Category) {
	t.Helper()
	f.coord.HandleEnvelope(signal.Envelope{
		Category:      category,
		CorrelationID: sid.String(),
		Sender:        peerID,
		Recipient:     selfID,
		CreatedAt:     f.clk.Now(),
	})
}
