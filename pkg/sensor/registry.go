package sensor

import (
	"context"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/lore95/BleMultiForceSensersHandler/pkg/calibration"
	"github.com/lore95/BleMultiForceSensersHandler/pkg/recorder"
)

// Registry maps device identities to their live sessions. Sessions are
// created lazily on first connect and reused across reconnects; each gets its
// own calibration Model over the shared read-only table so baseline shifts
// never cross-talk. Batch operations fan out strictly sequentially with
// best-effort semantics.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	table   []calibration.Point
	calOpts calibration.Options
	opts    Options
}

// NewRegistry creates a registry. opts is the template every new session is
// built from; table and calOpts feed each session's private Model.
func NewRegistry(table []calibration.Point, calOpts calibration.Options, opts Options) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		table:    table,
		calOpts:  calOpts,
		opts:     opts,
	}
}

// Get returns the live session for id, if any.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Sessions returns all live sessions, sorted by device id.
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (r *Registry) ensure(id, name string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s, nil
	}

	model, err := calibration.New(r.table, r.calOpts)
	if err != nil {
		return nil, err
	}
	opts := r.opts
	opts.Calibrator = model
	s := NewSession(id, name, opts)
	r.sessions[id] = s
	return s, nil
}

// Connect creates the session for id if needed and connects it. A session
// that is already connected is left alone.
func (r *Registry) Connect(ctx context.Context, id, name string) error {
	s, err := r.ensure(id, name)
	if err != nil {
		return err
	}
	if s.Status().Connected {
		return nil
	}
	return s.Connect(ctx)
}

// Disconnect disconnects the session for id. Unknown identities succeed.
func (r *Registry) Disconnect(id string) error {
	s, ok := r.Get(id)
	if !ok {
		return nil
	}
	return s.Disconnect()
}

// Start begins reading on the session for id.
func (r *Registry) Start(id string, meta recorder.Meta) error {
	s, ok := r.Get(id)
	if !ok {
		return ErrNotConnected
	}
	return s.StartReading(meta)
}

// Stop ends reading on the session for id and returns the artifact path.
func (r *Registry) Stop(id string, meta recorder.Meta) (string, error) {
	s, ok := r.Get(id)
	if !ok {
		return "", ErrNotConnected
	}
	return s.StopReading(meta)
}

// ConnectAll connects each device in turn. A failure on one device is
// recorded and the rest proceed.
func (r *Registry) ConnectAll(ctx context.Context, devices []DeviceInfo) map[string]error {
	failed := make(map[string]error)
	for _, d := range devices {
		if err := r.Connect(ctx, d.ID, d.Name); err != nil {
			logrus.WithField("device", d.ID).WithError(err).Error("connect failed")
			failed[d.ID] = err
		}
	}
	return failed
}

// StartAll begins reading on each identity in turn, best-effort.
func (r *Registry) StartAll(ids []string, meta recorder.Meta) map[string]error {
	failed := make(map[string]error)
	for _, id := range ids {
		if err := r.Start(id, meta); err != nil {
			logrus.WithField("device", id).WithError(err).Error("start failed")
			failed[id] = err
		}
	}
	return failed
}

// StopAll ends reading on each identity in turn and collects artifact paths
// for the ones that saved.
func (r *Registry) StopAll(ids []string, meta recorder.Meta) (map[string]string, map[string]error) {
	paths := make(map[string]string)
	failed := make(map[string]error)
	for _, id := range ids {
		path, err := r.Stop(id, meta)
		if err != nil {
			logrus.WithField("device", id).WithError(err).Error("stop failed")
			failed[id] = err
			continue
		}
		if path != "" {
			paths[id] = path
		}
	}
	return paths, failed
}

// DisconnectAll disconnects every session, swallowing per-device errors. Used
// at shutdown.
func (r *Registry) DisconnectAll() {
	for _, s := range r.Sessions() {
		if err := s.Disconnect(); err != nil {
			logrus.WithField("device", s.ID()).WithError(err).Debug("disconnect failed")
		}
	}
}

// Close disconnects and tears down every session. The registry is not usable
// afterwards.
func (r *Registry) Close() {
	r.DisconnectAll()
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		s.Close()
		delete(r.sessions, id)
	}
}
