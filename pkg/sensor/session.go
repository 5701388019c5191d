package sensor

import (
	"context"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/lore95/BleMultiForceSensersHandler/pkg/calibration"
	"github.com/lore95/BleMultiForceSensersHandler/pkg/despike"
	"github.com/lore95/BleMultiForceSensersHandler/pkg/recorder"
)

// State is the lifecycle phase of one device session.
type State string

const (
	StateIdle          State = "Idle"
	StateConnecting    State = "Connecting"
	StateCalibrating   State = "BaselineCalibrating"
	StateArmed         State = "Armed"
	StateReading       State = "Reading"
	StateStopping      State = "Stopping"
	StateDisconnecting State = "Disconnecting"
)

// Fixed acquisition policy values. The baseline window is deliberately not a
// user setting; tests override it through Options.
const (
	DefaultBaselineWindow = 5 * time.Second
	DefaultConnectTimeout = 20 * time.Second
	DefaultPromptTimeout  = 60 * time.Second

	// DefaultNotifyChannel is the Nordic UART TX characteristic the sensors
	// stream frames on.
	DefaultNotifyChannel = "6e400003-b5a3-f393-e0a9-e50e24dcca9e"
)

// ConfirmSaveFunc decides whether a partial capture is kept after an
// error-path disconnect. It may block until a user answers; the context
// carries the prompt deadline.
type ConfirmSaveFunc func(ctx context.Context, id, name string) (bool, error)

// StateChangedFunc is the no-payload signal fired whenever connectivity or
// error flags change. Subscribers pull details from Status.
type StateChangedFunc func()

// ArtifactSavedFunc is called after an artifact has been written.
type ArtifactSavedFunc func(id, path string, rows int)

// Options configure a Session. Transport, Calibrator and Recorder are
// required; capabilities and timing overrides are optional.
type Options struct {
	Transport  Transport
	Calibrator *calibration.Model
	Recorder   *recorder.Recorder

	// NotifyChannel identifies the notification characteristic to subscribe.
	NotifyChannel string

	BaselineWindow time.Duration
	ConnectTimeout time.Duration
	PromptTimeout  time.Duration

	ConfirmSave   ConfirmSaveFunc
	StateChanged  StateChangedFunc
	ArtifactSaved ArtifactSavedFunc
}

// Status is a synthesized view model of one session, exposed via HTTP and
// rendered by watching clients.
type Status struct {
	ID        string  `json:"id"`
	Name      string  `json:"name,omitempty"`
	State     State   `json:"state"`
	Connected bool    `json:"connected"`
	Reading   bool    `json:"reading"`
	LinkError bool    `json:"linkError"`
	Baseline  float64 `json:"baseline"`
	Buffered  int     `json:"bufferedSamples"`
}

// Session owns one device's lifecycle: connect, baseline calibration, armed,
// reading, disconnect and link-loss recovery. All transport operations and
// state transitions run on a single worker goroutine; external callers and
// the transport's link-lost signal submit messages into its inbox, so session
// state has exactly one writer.
type Session struct {
	id   string
	name string

	transport  Transport
	calibrator *calibration.Model
	recorder   *recorder.Recorder
	channel    string

	baselineWindow time.Duration
	connectTimeout time.Duration
	promptTimeout  time.Duration

	confirmSave   ConfirmSaveFunc
	stateChanged  StateChangedFunc
	artifactSaved ArtifactSavedFunc

	inbox  chan func()
	closed chan struct{}
	once   sync.Once

	// Worker-owned. Never touched outside the worker goroutine.
	link        Link
	gen         uint64
	intentional bool

	// Shared with the transport's frame handler and with Status readers.
	mu        sync.Mutex
	state     State
	connected bool
	reading   bool
	linkError bool
	baseline  float64
	raw       []recorder.Sample
	force     []recorder.Sample
	meta      recorder.Meta

	log *logrus.Entry
}

// NewSession creates a session for one device identity and starts its worker.
// The session persists across reconnects; it is torn down with Close.
func NewSession(id, name string, opts Options) *Session {
	s := &Session{
		id:             id,
		name:           name,
		transport:      opts.Transport,
		calibrator:     opts.Calibrator,
		recorder:       opts.Recorder,
		channel:        opts.NotifyChannel,
		baselineWindow: opts.BaselineWindow,
		connectTimeout: opts.ConnectTimeout,
		promptTimeout:  opts.PromptTimeout,
		confirmSave:    opts.ConfirmSave,
		stateChanged:   opts.StateChanged,
		artifactSaved:  opts.ArtifactSaved,
		inbox:          make(chan func(), 16),
		closed:         make(chan struct{}),
		state:          StateIdle,
		log:            logrus.WithField("device", id),
	}
	if s.channel == "" {
		s.channel = DefaultNotifyChannel
	}
	if s.baselineWindow <= 0 {
		s.baselineWindow = DefaultBaselineWindow
	}
	if s.connectTimeout <= 0 {
		s.connectTimeout = DefaultConnectTimeout
	}
	if s.promptTimeout <= 0 {
		s.promptTimeout = DefaultPromptTimeout
	}

	go s.run()
	return s
}

// ID returns the device identity this session is keyed by.
func (s *Session) ID() string { return s.id }

// Name returns the advertised device name from discovery.
func (s *Session) Name() string { return s.name }

// Status returns a point-in-time view of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		ID:        s.id,
		Name:      s.name,
		State:     s.state,
		Connected: s.connected,
		Reading:   s.reading,
		LinkError: s.linkError,
		Baseline:  s.baseline,
		Buffered:  len(s.raw),
	}
}

// Close stops the session worker. Pending operations return ErrSessionClosed.
func (s *Session) Close() {
	s.once.Do(func() { close(s.closed) })
}

func (s *Session) run() {
	for {
		select {
		case f := <-s.inbox:
			f()
		case <-s.closed:
			return
		}
	}
}

// submit runs f on the worker and waits for it to finish.
func (s *Session) submit(f func()) error {
	done := make(chan struct{})
	select {
	case s.inbox <- func() { f(); close(done) }:
	case <-s.closed:
		return ErrSessionClosed
	}
	select {
	case <-done:
		return nil
	case <-s.closed:
		return ErrSessionClosed
	}
}

// post enqueues f without waiting. Used by the transport's link-lost signal,
// which must not block a transport goroutine on session work.
func (s *Session) post(f func()) {
	select {
	case s.inbox <- f:
	case <-s.closed:
	}
}

// Connect opens a fresh link, runs the baseline calibration window and leaves
// the session Armed. On failure the session returns to Idle; retrying is the
// caller's decision.
func (s *Session) Connect(ctx context.Context) error {
	var err error
	if serr := s.submit(func() { err = s.connect(ctx) }); serr != nil {
		return serr
	}
	return err
}

func (s *Session) connect(ctx context.Context) error {
	// A stale link from a previous attempt is closed best-effort first.
	if s.link != nil {
		_ = s.link.Unsubscribe(s.channel)
		_ = s.link.Close()
		s.link = nil
	}

	s.mu.Lock()
	s.linkError = false
	s.mu.Unlock()
	s.setState(StateConnecting)

	s.log.Info("connecting")
	openCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	gen := s.gen + 1
	link, err := s.transport.Open(openCtx, s.id, func() { s.post(func() { s.handleLinkLost(gen) }) })
	if err != nil {
		s.setState(StateIdle)
		return pkgerrors.Wrapf(err, "failed to connect to %s", s.id)
	}
	s.gen = gen
	s.link = link

	s.setState(StateCalibrating)
	baseline, err := s.collectBaseline(link)
	if err != nil {
		_ = link.Close()
		s.link = nil
		s.setState(StateIdle)
		return err
	}

	if err := link.Subscribe(s.channel, s.handleFrame); err != nil {
		_ = link.Close()
		s.link = nil
		s.setState(StateIdle)
		return pkgerrors.Wrap(err, "failed to subscribe notifications")
	}

	// Only here is the session fully healthy again.
	s.mu.Lock()
	s.baseline = baseline
	s.linkError = false
	s.connected = true
	s.mu.Unlock()
	s.setState(StateArmed)
	s.log.WithField("baseline", baseline).Info("connected, notifications active")

	return nil
}

// collectBaseline subscribes a transient handler for the warm-up window and
// returns the median of everything received. Receiving nothing is non-fatal:
// acquisition continues with a zero baseline.
func (s *Session) collectBaseline(link Link) (float64, error) {
	var bmu sync.Mutex
	var samples []float64

	handler := func(data []byte) {
		f, ok := ParseFrame(data)
		if !ok {
			return
		}
		bmu.Lock()
		samples = append(samples, f.V3)
		bmu.Unlock()
	}

	if err := link.Subscribe(s.channel, handler); err != nil {
		return 0, pkgerrors.Wrap(err, "failed to subscribe baseline handler")
	}
	s.log.Infof("collecting baseline for %v", s.baselineWindow)
	time.Sleep(s.baselineWindow)
	_ = link.Unsubscribe(s.channel)

	bmu.Lock()
	defer bmu.Unlock()
	if len(samples) == 0 {
		s.log.Warn("no baseline samples received, baseline set to 0")
		return 0, nil
	}
	baseline := despike.Median(samples)
	s.log.WithFields(logrus.Fields{
		"baseline": baseline,
		"samples":  len(samples),
	}).Info("baseline median set")
	return baseline, nil
}

// handleFrame runs on a transport goroutine. It appends a raw sample and its
// force conversion in lock-step while the session is Reading; malformed
// frames are expected wire noise and dropped without a trace.
func (s *Session) handleFrame(data []byte) {
	hostTime := float64(time.Now().UnixNano()) / 1e9

	f, ok := ParseFrame(data)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.reading {
		return
	}
	s.raw = append(s.raw, recorder.Sample{HostTime: hostTime, Value: f.V3})
	forceN := s.calibrator.Convert(f.V3, s.baseline)
	s.force = append(s.force, recorder.Sample{HostTime: hostTime, Value: forceN})
}

// StartReading clears the buffers, snapshots meta and begins collecting
// samples. Fails with ErrNotConnected if the link is down.
func (s *Session) StartReading(meta recorder.Meta) error {
	var err error
	if serr := s.submit(func() { err = s.startReading(meta) }); serr != nil {
		return serr
	}
	return err
}

func (s *Session) startReading(meta recorder.Meta) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.raw = nil
	s.force = nil
	s.meta = meta
	s.reading = true
	s.mu.Unlock()

	s.setState(StateReading)
	s.log.Info("data logging started")
	return nil
}

// StopReading ends the Reading phase, persists the buffered samples and
// returns the artifact path. An empty buffer returns ("", nil). A persistence
// failure is surfaced, but the session stays alive and returns to Armed.
func (s *Session) StopReading(meta recorder.Meta) (string, error) {
	var path string
	var err error
	if serr := s.submit(func() { path, err = s.stopReading(meta) }); serr != nil {
		return "", serr
	}
	return path, err
}

func (s *Session) stopReading(meta recorder.Meta) (string, error) {
	s.mu.Lock()
	if !s.reading {
		s.mu.Unlock()
		return "", ErrNotReading
	}
	s.reading = false
	s.meta = meta
	raw, force := s.raw, s.force
	s.raw = nil
	s.force = nil
	s.mu.Unlock()
	s.setState(StateStopping)

	path, err := s.recorder.Write(raw, force, meta)

	s.mu.Lock()
	s.meta = recorder.Meta{}
	s.mu.Unlock()
	s.setState(StateArmed)

	if err == recorder.ErrNoData {
		s.log.Info("data logging stopped, nothing to save")
		return "", nil
	}
	if err != nil {
		return "", pkgerrors.Wrap(err, "failed to persist session")
	}

	s.log.WithFields(logrus.Fields{
		"path":    path,
		"samples": len(raw),
	}).Info("data logging stopped, session saved")
	if s.artifactSaved != nil {
		s.artifactSaved(s.id, path, len(raw))
	}
	return path, nil
}

// Disconnect closes the link intentionally. The save prompt never fires on
// this path, and a disconnect always succeeds from the caller's perspective
// once attempted.
func (s *Session) Disconnect() error {
	return s.submit(s.disconnect)
}

func (s *Session) disconnect() {
	s.intentional = true
	s.setState(StateDisconnecting)

	if s.link != nil {
		_ = s.link.Unsubscribe(s.channel)
		_ = s.link.Close()
		s.link = nil
	}

	s.mu.Lock()
	s.connected = false
	s.reading = false
	s.raw = nil
	s.force = nil
	s.meta = recorder.Meta{}
	s.mu.Unlock()

	s.intentional = false
	s.setState(StateIdle)
	s.log.Info("explicitly disconnected")
}

// handleLinkLost runs on the worker after the transport reported an
// unexpected drop. Events from links that have since been closed or replaced
// carry a stale generation and are swallowed.
func (s *Session) handleLinkLost(gen uint64) {
	if s.intentional || s.link == nil || gen != s.gen {
		return
	}

	s.log.Warn("device disconnected unexpectedly")

	// Flip the visible error state first, so a watching UI renders the
	// indicator while the recovery below is still deciding what to keep.
	s.mu.Lock()
	s.linkError = true
	s.connected = false
	s.reading = false
	s.mu.Unlock()
	s.notifyStateChanged()

	s.recoverLink()
}

// recoverLink is the error-path teardown: close the dead link, decide whether
// to keep buffered data, and leave the session Idle with buffers cleared no
// matter the outcome.
func (s *Session) recoverLink() {
	link := s.link
	s.link = nil
	if link != nil {
		_ = link.Close()
	}

	s.mu.Lock()
	raw, force, meta := s.raw, s.force, s.meta
	s.mu.Unlock()

	if len(raw) > 0 {
		save := true
		if s.confirmSave != nil {
			ctx, cancel := context.WithTimeout(context.Background(), s.promptTimeout)
			keep, err := s.confirmSave(ctx, s.id, s.name)
			cancel()
			if err != nil {
				s.log.WithError(err).Warn("save prompt failed, defaulting to save")
			} else {
				save = keep
			}
		}

		if save {
			path, err := s.recorder.Write(raw, force, meta)
			if err != nil {
				s.log.WithError(err).Error("failed to save partial session")
			} else {
				s.log.WithField("path", path).Info("partial session saved")
				if s.artifactSaved != nil {
					s.artifactSaved(s.id, path, len(raw))
				}
			}
		} else {
			s.log.Info("partial session discarded")
		}
	}

	s.mu.Lock()
	s.raw = nil
	s.force = nil
	s.meta = recorder.Meta{}
	s.mu.Unlock()
	s.setState(StateIdle)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.notifyStateChanged()
}

func (s *Session) notifyStateChanged() {
	if s.stateChanged != nil {
		s.stateChanged()
	}
}
