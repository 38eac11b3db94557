package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/vango-go/vai-live/pkg/core"
)

// Session is a live multimodal conversation: microphone and image
// capture multiplexed up one duplex connection, synthesized audio and
// text routed back down. A single orchestrator goroutine owns all
// session state; the public methods are messages to it.
type Session struct {
	cfg    SessionConfig
	dialer TransportDialer
	src    Sources
	sink   MediaSink
	logger *slog.Logger

	id     string
	cmds   chan command
	events chan Event

	startOnce sync.Once
	closeOnce sync.Once
	started   atomic.Bool
	runCancel context.CancelFunc
	done      chan struct{}

	errMu sync.Mutex
	err   error // terminal error, readable after done

	// ticks overrides image capture pacing in tests.
	ticks tickFactory
}

// SessionStatus is a point-in-time snapshot of the orchestrator state.
type SessionStatus struct {
	SessionID string    `json:"session_id"`
	State     ConnState `json:"state"`
	Model     string    `json:"model"`

	MicOn    bool `json:"mic_on"`
	CameraOn bool `json:"camera_on"`
	ScreenOn bool `json:"screen_on"`
	SearchOn bool `json:"search_on"`

	QueueDepth       int    `json:"queue_depth"`
	DroppedAudio     uint64 `json:"dropped_audio"`
	DroppedImages    uint64 `json:"dropped_images"`
	PlaybackBuffered int    `json:"playback_buffered"`
	Turns            int    `json:"turns"`
}

type cmdOp int

const (
	cmdSendText cmdOp = iota
	cmdEndTurn
	cmdSetVideoMode
	cmdSetCamera
	cmdSetScreen
	cmdSetSearch
	cmdStatus
	cmdHistory
	cmdClearHistory
)

type command struct {
	op    cmdOp
	text  string
	mode  VideoMode
	flag  bool
	reply chan cmdResult
}

type cmdResult struct {
	status  SessionStatus
	history []Turn
	err     error
}

// ErrSessionClosed is returned by commands issued after termination.
var ErrSessionClosed = errors.New("session closed")

// NewSession assembles a session from its collaborators. Call Start to
// begin connecting.
func NewSession(cfg SessionConfig, dialer TransportDialer, src Sources, sink MediaSink, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Session{
		cfg:    cfg.withDefaults(),
		dialer: dialer,
		src:    src,
		sink:   sink,
		logger: logger.With("session_id", id),
		id:     id,
		cmds:   make(chan command, 16),
		events: make(chan Event, 256),
		done:   make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Events returns the session event stream. The channel is closed after
// the ClosedEvent; a slow consumer loses intermediate events rather
// than stalling the engine.
func (s *Session) Events() <-chan Event { return s.events }

// Done is closed when the orchestrator has fully terminated.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the terminal error, if any, once Done is closed.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Start launches the orchestrator. The session runs until ctx ends, a
// terminal error occurs, or Close is called.
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		select {
		case <-s.done: // closed without ever starting
			return
		default:
		}
		runCtx, cancel := context.WithCancel(ctx)
		s.runCancel = cancel
		s.started.Store(true)
		go s.run(runCtx)
	})
}

// Close shuts the session down and waits for termination. Closing a
// session that never started just releases its channels.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if !s.started.Load() {
			close(s.events)
			close(s.done)
			return
		}
		s.runCancel()
	})
	<-s.done
	return s.Err()
}

// SendText queues a user text message. Delivery survives reconnects and
// always precedes queued media.
func (s *Session) SendText(text string) error {
	_, err := s.do(command{op: cmdSendText, text: text})
	return err
}

// EndTurn explicitly closes the current user turn.
func (s *Session) EndTurn() error {
	_, err := s.do(command{op: cmdEndTurn})
	return err
}

// SetVideoMode enables exactly the image sources the mode names,
// starting and stopping capture goroutines as needed.
func (s *Session) SetVideoMode(mode VideoMode) error {
	_, err := s.do(command{op: cmdSetVideoMode, mode: mode})
	return err
}

// EnableCamera toggles the camera capture source.
func (s *Session) EnableCamera(on bool) error {
	_, err := s.do(command{op: cmdSetCamera, flag: on})
	return err
}

// EnableScreen toggles the screen capture source.
func (s *Session) EnableScreen(on bool) error {
	_, err := s.do(command{op: cmdSetScreen, flag: on})
	return err
}

// EnableSearch toggles Google Search grounding. The change applies at
// the next (re)connect.
func (s *Session) EnableSearch(on bool) error {
	_, err := s.do(command{op: cmdSetSearch, flag: on})
	return err
}

// Status returns a snapshot of the orchestrator state.
func (s *Session) Status() (SessionStatus, error) {
	res, err := s.do(command{op: cmdStatus})
	return res.status, err
}

// History returns a copy of the conversation window.
func (s *Session) History() ([]Turn, error) {
	res, err := s.do(command{op: cmdHistory})
	return res.history, err
}

// ClearHistory empties the conversation window. Replay after the next
// reconnect starts from scratch.
func (s *Session) ClearHistory() error {
	_, err := s.do(command{op: cmdClearHistory})
	return err
}

func (s *Session) do(cmd command) (cmdResult, error) {
	cmd.reply = make(chan cmdResult, 1)
	select {
	case s.cmds <- cmd:
	case <-s.done:
		return cmdResult{}, ErrSessionClosed
	}
	select {
	case res := <-cmd.reply:
		return res, res.err
	case <-s.done:
		return cmdResult{}, ErrSessionClosed
	}
}

// sessionState is the orchestrator-goroutine-private mutable state.
type sessionState struct {
	state    ConnState
	modelIdx int // index into the model chain, never rewinds
	models   []string

	conn       TransportConn
	connCtx    context.Context
	connCancel context.CancelFunc
	connecting chan connectResult
	workers    sync.WaitGroup

	media  *frameQueue
	pb     *playback
	window *turnWindow

	// textIn is the per-connection uplink text channel; pendingText
	// holds messages awaiting a connection, in order.
	textIn      chan OutboundMessage
	pendingText []OutboundMessage

	micOn, cameraOn, screenOn bool
	micDead, camDead, scrDead bool
	searchOn                  bool
	promptSent                bool

	camCancel, scrCancel context.CancelFunc

	// notices is per-connection: recreated in wire so failure reports
	// from a torn-down connection cannot affect its successor.
	notices chan notice

	// ticks paces image capture loops; tests override it.
	ticks tickFactory
}

func (s *Session) run(ctx context.Context) {
	cfg := s.cfg

	st := &sessionState{
		state:    StateDisconnected,
		models:   append([]string{cfg.Model}, cfg.FallbackModels...),
		media:    newFrameQueue(cfg.MediaQueueSize),
		pb:       newPlayback(s.sink, cfg.PlaybackLookahead, cfg.PlaybackEnqueueTimeout, s.logger),
		window:   newTurnWindow(cfg.ConversationMemory),
		micOn:    true,
		cameraOn: cfg.VideoMode.CameraEnabled(),
		screenOn: cfg.VideoMode.ScreenEnabled(),
		searchOn: cfg.EnableSearch,
		ticks:    s.ticks,
	}

	pbCtx, pbCancel := context.WithCancel(ctx)
	go st.pb.run(pbCtx)

	terminal := s.loop(ctx, st)

	// Teardown: stop workers, close the connection, flush playback.
	s.setState(st, StateClosed)
	s.disconnect(st)
	if st.connecting != nil {
		// ctx is gone; the connect helper finishes promptly.
		if res := <-st.connecting; res.conn != nil {
			_ = res.conn.Close()
		}
	}
	pbCancel()
	st.pb.Flush()

	if n := len(st.pendingText); n > 0 {
		s.logger.Warn("discarding undelivered text", "count", n)
	}

	s.closeDevices()

	s.errMu.Lock()
	s.err = terminal
	s.errMu.Unlock()

	s.emit(&ClosedEvent{Err: terminal})
	close(s.events)
	close(s.done)
}

// connectResult reports the outcome of one connect episode.
type connectResult struct {
	conn     TransportConn
	model    string
	modelIdx int
	err      error
}

// loop is the orchestrator main loop. It returns the terminal error
// (nil for clean shutdown). Connection establishment runs in a helper
// goroutine so commands and text stay accepted while dialing.
func (s *Session) loop(ctx context.Context, st *sessionState) error {
	for {
		if st.conn == nil && st.connecting == nil {
			if st.state != StateReconnecting {
				s.setState(st, StateConnecting)
			}
			s.beginConnect(ctx, st)
		}

		// Opportunistically move pending text toward the uplink.
		s.flushPending(st)

		select {
		case <-ctx.Done():
			s.sendStreamEnd(st)
			return nil

		case cmd := <-s.cmds:
			s.handleCommand(st, cmd)

		case res := <-st.connecting:
			st.connecting = nil
			if res.err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return res.err
			}
			st.modelIdx = res.modelIdx
			s.wire(ctx, st, res.conn, res.model)

		case n := <-st.notices:
			if err := s.handleNotice(ctx, st, n); err != nil {
				return err
			}
		}
	}
}

// beginConnect launches the connect episode. The helper goroutine only
// reads a snapshot of orchestrator state and reports on the channel.
func (s *Session) beginConnect(ctx context.Context, st *sessionState) {
	ch := make(chan connectResult, 1)
	st.connecting = ch
	models := st.models
	idx := st.modelIdx
	search := st.searchOn
	go func() {
		ch <- s.dialChain(ctx, models, idx, search)
	}()
}

func (s *Session) handleCommand(st *sessionState, cmd command) {
	res := cmdResult{}
	switch cmd.op {
	case cmdSendText:
		turn := TextTurn{Role: "user", Text: cmd.text}
		st.window.Append(Turn{Role: "user", Text: cmd.text, At: time.Now()})
		s.queueText(st, turn)
		if s.cfg.AutoEndTurn {
			s.queueText(st, TurnComplete{})
		}

	case cmdEndTurn:
		s.queueText(st, TurnComplete{})

	case cmdSetVideoMode:
		s.setCamera(st, cmd.mode.CameraEnabled())
		s.setScreen(st, cmd.mode.ScreenEnabled())

	case cmdSetCamera:
		s.setCamera(st, cmd.flag)

	case cmdSetScreen:
		s.setScreen(st, cmd.flag)

	case cmdSetSearch:
		st.searchOn = cmd.flag
		s.logger.Info("search grounding toggled", "enabled", cmd.flag)

	case cmdStatus:
		audio, images := st.media.Dropped()
		res.status = SessionStatus{
			SessionID:        s.id,
			State:            st.state,
			Model:            st.models[st.modelIdx],
			MicOn:            st.micOn && !st.micDead,
			CameraOn:         st.cameraOn && !st.camDead,
			ScreenOn:         st.screenOn && !st.scrDead,
			SearchOn:         st.searchOn,
			QueueDepth:       st.media.Len(),
			DroppedAudio:     audio,
			DroppedImages:    images,
			PlaybackBuffered: st.pb.Buffered(),
			Turns:            st.window.Len(),
		}

	case cmdHistory:
		res.history = st.window.Snapshot()

	case cmdClearHistory:
		st.window.Clear()
	}
	cmd.reply <- res
}

// queueText appends a text-path message, preserving order with any
// messages still awaiting a connection.
func (s *Session) queueText(st *sessionState, msg OutboundMessage) {
	st.pendingText = append(st.pendingText, msg)
	s.flushPending(st)
}

// flushPending moves pending text into the live uplink channel without
// blocking the orchestrator.
func (s *Session) flushPending(st *sessionState) {
	if st.conn == nil || st.textIn == nil {
		return
	}
	for len(st.pendingText) > 0 {
		select {
		case st.textIn <- st.pendingText[0]:
			st.pendingText = st.pendingText[1:]
		default:
			return
		}
	}
}

func (s *Session) handleNotice(ctx context.Context, st *sessionState, n notice) error {
	switch n.kind {
	case noticeTurnComplete:
		if n.text != "" {
			st.window.Append(Turn{Role: "model", Text: n.text, At: time.Now()})
		}
		s.emit(&TurnCompleteEvent{Text: n.text})
		return nil

	case noticeToolCall:
		s.emit(&ToolCallEvent{ID: n.call.ID, Name: n.call.Name, Args: n.call.Args})
		return nil

	case noticeSourceFailed:
		s.degradeSource(st, n.source, n.err)
		return nil

	case noticeErrorNotice:
		s.emit(&ErrorEvent{Kind: n.source, Message: n.text})
		// A quota notice on a live connection means the model is out of
		// capacity: drop the connection and walk the fallback chain.
		if n.source == string(core.KindQuota) {
			cause := core.NewQuotaError(st.models[st.modelIdx], errors.New(n.text))
			s.logger.Warn("service quota notice, reconnecting", "message", n.text)
			s.emit(&ReconnectingEvent{Reason: n.text})
			s.setState(st, StateReconnecting)
			s.disconnect(st)
			return s.advanceModel(st, cause)
		}
		return nil

	case noticeSendFailed, noticeReceiveFailed, noticeGoAway:
		reason := "connection lost"
		if n.err != nil {
			reason = n.err.Error()
		}
		s.logger.Warn("transport failure, reconnecting", "reason", reason)
		s.emit(&ReconnectingEvent{Reason: reason})
		s.setState(st, StateReconnecting)

		s.disconnect(st)
		if n.unsent != nil {
			st.pendingText = append([]OutboundMessage{n.unsent}, st.pendingText...)
		}
		// Quota surfaced mid-session advances the model chain.
		if core.KindOf(n.err) == core.KindQuota {
			if err := s.advanceModel(st, n.err); err != nil {
				return err
			}
		}
		return nil

	default:
		return nil
	}
}

// degradeSource permanently disables a failed capture device. The
// session itself keeps running.
func (s *Session) degradeSource(st *sessionState, source string, err error) {
	s.logger.Warn("capture source failed", "source", source, "error", err)
	switch source {
	case "mic":
		st.micDead = true
	case "camera":
		st.camDead = true
		st.cameraOn = false
		st.camCancel = nil
	case "screen":
		st.scrDead = true
		st.screenOn = false
		st.scrCancel = nil
	}
	reason := "device unavailable"
	if err != nil {
		reason = err.Error()
	}
	s.emit(&SourceDisabledEvent{Source: source, Reason: reason})
}

// dialChain walks the model chain, starting at idx: transient dial
// errors are retried with exponential backoff on the same model, quota
// errors advance to the next fallback, fatal errors terminate. The
// chain never rewinds.
func (s *Session) dialChain(ctx context.Context, models []string, idx int, search bool) connectResult {
	for {
		model := models[idx]
		opts := DialOptions{Model: model, EnableSearch: search}

		var conn TransportConn
		backoff := retry.WithMaxRetries(uint64(s.cfg.ConnectAttempts-1), retry.NewExponential(s.cfg.ConnectBackoff))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			c, err := s.dialer.Dial(ctx, opts)
			if err != nil {
				if core.KindOf(err) == core.KindTransient {
					s.logger.Debug("dial failed, retrying", "model", model, "error", err)
					return retry.RetryableError(err)
				}
				return err
			}
			conn = c
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return connectResult{err: err}
			}
			if core.KindOf(err) == core.KindFatal {
				return connectResult{err: err}
			}
			// Quota, or transient retries exhausted: try the next model.
			if idx+1 >= len(models) {
				return connectResult{err: exhaustedErr(model, err)}
			}
			s.logger.Warn("model unavailable, falling back", "from", model, "to", models[idx+1], "cause", err)
			s.emit(&ModelFallbackEvent{From: model, To: models[idx+1]})
			idx++
			continue
		}

		return connectResult{conn: conn, model: model, modelIdx: idx}
	}
}

// exhaustedErr is the terminal error after the whole model chain failed.
func exhaustedErr(lastModel string, cause error) error {
	return core.NewQuotaError(lastModel, fmt.Errorf(
		"no fallback models left after %q; wait for quota to reset or configure a model with available capacity: %w",
		lastModel, cause))
}

// advanceModel moves to the next fallback after a mid-session quota
// signal, or returns the terminal error when the chain is exhausted.
func (s *Session) advanceModel(st *sessionState, cause error) error {
	from := st.models[st.modelIdx]
	if st.modelIdx+1 >= len(st.models) {
		return exhaustedErr(from, cause)
	}
	st.modelIdx++
	to := st.models[st.modelIdx]
	s.logger.Warn("model unavailable, falling back", "from", from, "to", to, "cause", cause)
	s.emit(&ModelFallbackEvent{From: from, To: to})
	return nil
}

// wire starts the per-connection workers and primes the uplink text
// channel: initial prompt first (once per session), then replayed
// context, then any text queued while disconnected.
func (s *Session) wire(ctx context.Context, st *sessionState, conn TransportConn, model string) {
	connCtx, cancel := context.WithCancel(ctx)
	st.conn = conn
	st.connCtx = connCtx
	st.connCancel = cancel
	st.notices = make(chan notice, 32)

	reconnecting := st.state == StateReconnecting

	head := make([]OutboundMessage, 0, s.cfg.ReplayTurns+2)
	if !st.promptSent && s.cfg.EnableInitialPrompt && strings.TrimSpace(s.cfg.InitialPrompt) != "" {
		head = append(head, TextTurn{Role: "user", Text: s.cfg.InitialPrompt})
		st.promptSent = true
	}
	if reconnecting && s.cfg.ReplayTurns > 0 {
		for _, t := range st.window.Recent(s.cfg.ReplayTurns) {
			head = append(head, TextTurn{Role: t.Role, Text: t.Text})
		}
	}
	st.pendingText = append(head, st.pendingText...)

	// Prime the uplink channel before any worker runs, so everything
	// queued while offline precedes the first captured frame.
	st.textIn = make(chan OutboundMessage, s.cfg.TextQueueSize+s.cfg.ReplayTurns+2)
	s.flushPending(st)

	// Workers get their channels by value: the orchestrator rebinds the
	// st fields on disconnect while late goroutines may still be starting.
	textIn, media, notices, pb := st.textIn, st.media, st.notices, st.pb

	st.workers.Add(2)
	go func() {
		defer st.workers.Done()
		uplinkLoop(connCtx, conn, textIn, media, notices, s.logger)
	}()
	go func() {
		defer st.workers.Done()
		downlinkLoop(connCtx, conn, pb, notices, s.emit, s.logger)
	}()

	if st.micOn && !st.micDead && s.src.Mic != nil {
		st.workers.Add(1)
		go func() {
			defer st.workers.Done()
			audioCaptureLoop(connCtx, s.src.Mic, media, notices, s.logger)
		}()
	}
	if st.cameraOn {
		s.startCamera(st, connCtx)
	}
	if st.screenOn {
		s.startScreen(st, connCtx)
	}

	s.setState(st, StateActive)
	s.emit(&ConnectedEvent{Model: model})
	s.logger.Info("connected", "model", model, "reconnect", reconnecting)
}

func (s *Session) startCamera(st *sessionState, connCtx context.Context) {
	if st.camDead || s.src.Camera == nil || st.camCancel != nil {
		if s.src.Camera == nil {
			st.cameraOn = false
		}
		return
	}
	ctx, cancel := context.WithCancel(connCtx)
	st.camCancel = cancel
	media, notices, ticks := st.media, st.notices, st.ticks
	st.workers.Add(1)
	go func() {
		defer st.workers.Done()
		imageCaptureLoop(ctx, "camera", s.src.Camera, s.cfg.CameraInterval, media, notices, s.logger, ticks)
	}()
}

func (s *Session) startScreen(st *sessionState, connCtx context.Context) {
	if st.scrDead || s.src.Screen == nil || st.scrCancel != nil {
		if s.src.Screen == nil {
			st.screenOn = false
		}
		return
	}
	ctx, cancel := context.WithCancel(connCtx)
	st.scrCancel = cancel
	media, notices, ticks := st.media, st.notices, st.ticks
	st.workers.Add(1)
	go func() {
		defer st.workers.Done()
		imageCaptureLoop(ctx, "screen", s.src.Screen, s.cfg.ScreenInterval, media, notices, s.logger, ticks)
	}()
}

// setCamera toggles camera capture. Starting a goroutine acquires the
// device; stopping it releases it.
func (s *Session) setCamera(st *sessionState, on bool) {
	if on == st.cameraOn {
		return
	}
	st.cameraOn = on
	if st.conn == nil || st.connCancel == nil {
		return // applied at next connect
	}
	if on {
		s.startCamera(st, st.connCtx)
	} else if st.camCancel != nil {
		st.camCancel()
		st.camCancel = nil
	}
}

func (s *Session) setScreen(st *sessionState, on bool) {
	if on == st.screenOn {
		return
	}
	st.screenOn = on
	if st.conn == nil || st.connCancel == nil {
		return
	}
	if on {
		s.startScreen(st, st.connCtx)
	} else if st.scrCancel != nil {
		st.scrCancel()
		st.scrCancel = nil
	}
}

// disconnect stops the per-connection workers, closes the transport,
// discards connection-scoped media and flushes playback. Text survives:
// whatever sits in the uplink channel returns to the pending list.
func (s *Session) disconnect(st *sessionState) {
	if st.connCancel != nil {
		st.connCancel()
		st.connCancel = nil
	}
	if st.conn != nil {
		_ = st.conn.Close()
		st.conn = nil
	}
	// Rebind connection-scoped fields only after every worker is gone.
	st.workers.Wait()
	st.connCtx = nil
	st.camCancel = nil
	st.scrCancel = nil
	st.notices = nil

	if st.textIn != nil {
		for {
			select {
			case msg := <-st.textIn:
				st.pendingText = append(st.pendingText, msg)
				continue
			default:
			}
			break
		}
		st.textIn = nil
	}

	dropped := st.media.Drain()
	if dropped > 0 {
		s.logger.Debug("discarded stale media on disconnect", "frames", dropped)
	}
	st.pb.Flush()
}

// sendStreamEnd tells the endpoint no more audio will follow. Best
// effort during shutdown.
func (s *Session) sendStreamEnd(st *sessionState) {
	if st.conn != nil {
		_ = st.conn.Send(ControlSignal{Op: ControlAudioStreamEnd})
	}
}

func (s *Session) setState(st *sessionState, to ConnState) {
	if st.state == to {
		return
	}
	from := st.state
	st.state = to
	s.logger.Debug("state changed", "from", from.String(), "to", to.String())
	s.emit(&StateChangedEvent{From: from, To: to})
}

// emit delivers an event without ever blocking the engine. A full
// buffer drops the oldest event first.
func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		select {
		case <-s.events:
		default:
		}
		select {
		case s.events <- ev:
		default:
		}
	}
}

func (s *Session) closeDevices() {
	if s.src.Mic != nil {
		_ = s.src.Mic.Close()
	}
	if s.src.Camera != nil {
		_ = s.src.Camera.Close()
	}
	if s.src.Screen != nil {
		_ = s.src.Screen.Close()
	}
	if s.sink != nil {
		_ = s.sink.Close()
	}
}
