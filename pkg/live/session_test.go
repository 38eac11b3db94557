package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/vai-live/pkg/core"
)

// sessionConn is a scriptable duplex connection for orchestrator tests.
type sessionConn struct {
	mu     sync.Mutex
	sent   []OutboundMessage
	sentCh chan OutboundMessage

	recv      chan InboundEvent
	closed    chan struct{}
	closeOnce sync.Once
}

func newSessionConn() *sessionConn {
	return &sessionConn{
		sentCh: make(chan OutboundMessage, 64),
		recv:   make(chan InboundEvent, 16),
		closed: make(chan struct{}),
	}
}

func (c *sessionConn) Send(msg OutboundMessage) error {
	select {
	case <-c.closed:
		return core.NewDisconnectedError("send on closed connection", nil)
	default:
	}
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	c.sentCh <- msg
	return nil
}

func (c *sessionConn) Receive() (InboundEvent, error) {
	select {
	case ev := <-c.recv:
		return ev, nil
	case <-c.closed:
		return nil, core.NewDisconnectedError("connection closed", nil)
	}
}

func (c *sessionConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *sessionConn) nextSend(t *testing.T) OutboundMessage {
	t.Helper()
	select {
	case msg := <-c.sentCh:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a send")
		return nil
	}
}

// dialStep scripts one Dial call: a classified error, or a fresh conn.
type dialStep struct {
	err  error
	gate chan struct{} // if non-nil, Dial blocks until closed
}

type sessionDialer struct {
	mu    sync.Mutex
	steps []dialStep
	calls []DialOptions
	conns []*sessionConn
}

func (d *sessionDialer) Dial(ctx context.Context, opts DialOptions) (TransportConn, error) {
	d.mu.Lock()
	var step dialStep
	if len(d.steps) > 0 {
		step = d.steps[0]
		d.steps = d.steps[1:]
	}
	d.calls = append(d.calls, opts)
	d.mu.Unlock()

	if step.gate != nil {
		select {
		case <-step.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if step.err != nil {
		return nil, step.err
	}
	conn := newSessionConn()
	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	return conn, nil
}

func (d *sessionDialer) models() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.calls))
	for i, c := range d.calls {
		out[i] = c.Model
	}
	return out
}

func (d *sessionDialer) conn(i int) *sessionConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

func testSessionConfig() SessionConfig {
	cfg := DefaultSessionConfig()
	cfg.Model = "models/alpha"
	cfg.FallbackModels = []string{"models/beta", "models/gamma"}
	cfg.ConnectAttempts = 1
	cfg.ConnectBackoff = time.Millisecond
	cfg.ReplayTurns = 2
	cfg.PlaybackEnqueueTimeout = 200 * time.Millisecond
	return cfg
}

func waitEvent[T Event](t *testing.T, s *Session) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				t.Fatal("event stream closed before expected event")
			}
			if want, match := ev.(T); match {
				return want
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func TestSessionFallsBackOnQuota(t *testing.T) {
	dialer := &sessionDialer{steps: []dialStep{
		{err: core.NewQuotaError("models/alpha", nil)},
		{err: core.NewQuotaError("models/beta", nil)},
		{}, // gamma connects
	}}
	s := NewSession(testSessionConfig(), dialer, Sources{}, &collectSink{}, testLogger())
	s.Start(t.Context())
	defer s.Close()

	ev := waitEvent[*ConnectedEvent](t, s)
	if ev.Model != "models/gamma" {
		t.Fatalf("connected model = %q, want models/gamma", ev.Model)
	}
	if got := dialer.models(); len(got) != 3 || got[0] != "models/alpha" || got[1] != "models/beta" || got[2] != "models/gamma" {
		t.Fatalf("dial order = %v", got)
	}
}

func TestSessionTerminatesWhenChainExhausted(t *testing.T) {
	dialer := &sessionDialer{steps: []dialStep{
		{err: core.NewQuotaError("models/alpha", nil)},
		{err: core.NewQuotaError("models/beta", nil)},
		{err: core.NewQuotaError("models/gamma", nil)},
	}}
	s := NewSession(testSessionConfig(), dialer, Sources{}, &collectSink{}, testLogger())
	s.Start(t.Context())

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate")
	}
	err := s.Err()
	if core.KindOf(err) != core.KindQuota {
		t.Fatalf("terminal error kind = %v, want quota: %v", core.KindOf(err), err)
	}
}

func TestSessionFatalDialStops(t *testing.T) {
	dialer := &sessionDialer{steps: []dialStep{
		{err: core.NewFatalError("invalid api key", nil)},
	}}
	s := NewSession(testSessionConfig(), dialer, Sources{}, &collectSink{}, testLogger())
	s.Start(t.Context())

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate")
	}
	if core.KindOf(s.Err()) != core.KindFatal {
		t.Fatalf("terminal error = %v, want fatal", s.Err())
	}
	if got := dialer.models(); len(got) != 1 {
		t.Fatalf("fatal error must not fall back, dialed %v", got)
	}
}

func TestSessionTextQueuedWhileConnectingSentFirst(t *testing.T) {
	gate := make(chan struct{})
	dialer := &sessionDialer{steps: []dialStep{{gate: gate}}}

	cfg := testSessionConfig()
	mic := &fakeAudioSource{frames: make(chan MediaFrame, 8)}
	for i := 0; i < 3; i++ {
		mic.frames <- MediaFrame{Kind: FrameAudio, Payload: []byte{byte(i)}}
	}
	s := NewSession(cfg, dialer, Sources{Mic: mic}, &collectSink{}, testLogger())
	s.Start(t.Context())
	defer s.Close()

	if err := s.SendText("hello there"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	close(gate)
	waitEvent[*ConnectedEvent](t, s)
	conn := dialer.conn(0)

	first := conn.nextSend(t)
	turn, ok := first.(TextTurn)
	if !ok {
		t.Fatalf("first send = %T, want TextTurn", first)
	}
	if turn.Text != "hello there" {
		t.Fatalf("first text = %q", turn.Text)
	}
	if _, ok := conn.nextSend(t).(TurnComplete); !ok {
		t.Fatal("second send should close the user turn")
	}
}

func TestSessionReconnectReplaysRecentTurns(t *testing.T) {
	dialer := &sessionDialer{}
	s := NewSession(testSessionConfig(), dialer, Sources{}, &collectSink{}, testLogger())
	s.Start(t.Context())
	defer s.Close()

	waitEvent[*ConnectedEvent](t, s)
	conn1 := dialer.conn(0)

	if err := s.SendText("what is this?"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	conn1.nextSend(t) // TextTurn
	conn1.nextSend(t) // TurnComplete

	conn1.recv <- InboundText{Text: "A test."}
	conn1.recv <- InboundTurnComplete{}
	waitEvent[*TurnCompleteEvent](t, s)

	// Drop the connection out from under the session.
	conn1.Close()
	waitEvent[*ReconnectingEvent](t, s)
	waitEvent[*ConnectedEvent](t, s)
	conn2 := dialer.conn(1)

	r1, ok := conn2.nextSend(t).(TextTurn)
	if !ok || r1.Role != "user" || r1.Text != "what is this?" {
		t.Fatalf("first replay = %+v", r1)
	}
	r2, ok := conn2.nextSend(t).(TextTurn)
	if !ok || r2.Role != "model" || r2.Text != "A test." {
		t.Fatalf("second replay = %+v", r2)
	}
}

func TestSessionStatusHistoryClear(t *testing.T) {
	dialer := &sessionDialer{}
	s := NewSession(testSessionConfig(), dialer, Sources{}, &collectSink{}, testLogger())
	s.Start(t.Context())
	defer s.Close()

	waitEvent[*ConnectedEvent](t, s)

	status, err := s.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.State != StateActive {
		t.Fatalf("state = %v, want ACTIVE", status.State)
	}
	if status.Model != "models/alpha" {
		t.Fatalf("model = %q", status.Model)
	}

	if err := s.SendText("remember me"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	hist, err := s.History()
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 || hist[0].Role != "user" || hist[0].Text != "remember me" {
		t.Fatalf("history = %+v", hist)
	}

	if err := s.ClearHistory(); err != nil {
		t.Fatalf("ClearHistory: %v", err)
	}
	hist, _ = s.History()
	if len(hist) != 0 {
		t.Fatalf("history after clear = %+v", hist)
	}
}

func TestSessionCameraFailureDegrades(t *testing.T) {
	dialer := &sessionDialer{}
	cfg := testSessionConfig()
	cfg.VideoMode = VideoModeCamera

	cam := newFakeImageSource()
	cam.err = core.NewDeviceUnavailableError("camera", nil)
	ticks := make(chan time.Time)

	s := NewSession(cfg, dialer, Sources{Camera: cam}, &collectSink{}, testLogger())
	s.ticks = manualTicks(ticks)
	s.Start(t.Context())
	defer s.Close()

	waitEvent[*ConnectedEvent](t, s)
	ticks <- time.Now()
	<-cam.done

	ev := waitEvent[*SourceDisabledEvent](t, s)
	if ev.Source != "camera" {
		t.Fatalf("disabled source = %q", ev.Source)
	}

	status, err := s.Status()
	if err != nil {
		t.Fatalf("Status after degrade: %v", err)
	}
	if status.State != StateActive {
		t.Fatal("device failure must not take down the session")
	}
	if status.CameraOn {
		t.Fatal("camera should be reported off")
	}
}

func TestSessionSearchToggleAppliesAtReconnect(t *testing.T) {
	dialer := &sessionDialer{}
	s := NewSession(testSessionConfig(), dialer, Sources{}, &collectSink{}, testLogger())
	s.Start(t.Context())
	defer s.Close()

	waitEvent[*ConnectedEvent](t, s)
	dialer.mu.Lock()
	searchAtStart := dialer.calls[0].EnableSearch
	dialer.mu.Unlock()
	if searchAtStart {
		t.Fatal("search should start disabled")
	}

	if err := s.EnableSearch(true); err != nil {
		t.Fatalf("EnableSearch: %v", err)
	}
	dialer.conn(0).Close()
	waitEvent[*ReconnectingEvent](t, s)
	waitEvent[*ConnectedEvent](t, s)

	dialer.mu.Lock()
	last := dialer.calls[len(dialer.calls)-1]
	dialer.mu.Unlock()
	if !last.EnableSearch {
		t.Fatal("search toggle not applied at reconnect")
	}
}

func TestSessionQuotaNoticeAdvancesModel(t *testing.T) {
	dialer := &sessionDialer{}
	s := NewSession(testSessionConfig(), dialer, Sources{}, &collectSink{}, testLogger())
	s.Start(t.Context())
	defer s.Close()

	waitEvent[*ConnectedEvent](t, s)
	dialer.conn(0).recv <- InboundErrorNotice{Kind: "quota", Message: "out of tokens"}

	fb := waitEvent[*ModelFallbackEvent](t, s)
	if fb.From != "models/alpha" || fb.To != "models/beta" {
		t.Fatalf("fallback = %s -> %s", fb.From, fb.To)
	}
	ev := waitEvent[*ConnectedEvent](t, s)
	if ev.Model != "models/beta" {
		t.Fatalf("reconnected model = %q, want models/beta", ev.Model)
	}
}

// Repeated connection loss while the mic floods frames: workers from a
// dying connection must never observe the orchestrator rebinding its
// per-connection channels. Run with -race.
func TestSessionTeardownUnderReconnectChurn(t *testing.T) {
	dialer := &sessionDialer{}
	mic := &fakeAudioSource{frames: make(chan MediaFrame, 64)}
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case mic.frames <- MediaFrame{Kind: FrameAudio, Payload: []byte{1}}:
			case <-stop:
				return
			}
		}
	}()

	s := NewSession(testSessionConfig(), dialer, Sources{Mic: mic}, &collectSink{}, testLogger())
	s.Start(t.Context())

	for i := 0; i < 3; i++ {
		waitEvent[*ConnectedEvent](t, s)
		dialer.conn(i).Close()
		waitEvent[*ReconnectingEvent](t, s)
	}
	waitEvent[*ConnectedEvent](t, s)
	if err := s.Close(); err != nil {
		t.Fatalf("Close after churn: %v", err)
	}
}

func TestSessionCloseIsClean(t *testing.T) {
	dialer := &sessionDialer{}
	s := NewSession(testSessionConfig(), dialer, Sources{}, &collectSink{}, testLogger())
	s.Start(t.Context())

	waitEvent[*ConnectedEvent](t, s)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.SendText("too late"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("SendText after close = %v, want ErrSessionClosed", err)
	}
}
