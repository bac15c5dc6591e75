package usecase

import (
	"errors"
	"time"

	"github.com/eliteGoblin/focusd/appguard/internal/domain"
)

var errHostRejected = errors.New("host rejected request")

// fakeClock runs scheduled callbacks on virtual time, in deadline order.
type fakeClock struct {
	start  time.Time
	now    time.Time
	seq    int
	timers []fakeTimer
}

type fakeTimer struct {
	at  time.Time
	seq int
	fn  func()
}

func newFakeClock() *fakeClock {
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return &fakeClock{start: t0, now: t0}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) AfterFunc(d time.Duration, f func()) {
	c.seq++
	c.timers = append(c.timers, fakeTimer{at: c.now.Add(d), seq: c.seq, fn: f})
}

// Elapsed returns virtual time since the clock was created.
func (c *fakeClock) Elapsed() time.Duration { return c.now.Sub(c.start) }

// AdvanceTo moves to start+offset, firing every timer due on the way.
func (c *fakeClock) AdvanceTo(offset time.Duration) {
	c.Advance(c.start.Add(offset).Sub(c.now))
}

func (c *fakeClock) Advance(d time.Duration) {
	end := c.now.Add(d)
	for {
		idx := -1
		for i, t := range c.timers {
			if t.at.After(end) {
				continue
			}
			if idx < 0 || t.at.Before(c.timers[idx].at) ||
				(t.at.Equal(c.timers[idx].at) && t.seq < c.timers[idx].seq) {
				idx = i
			}
		}
		if idx < 0 {
			break
		}
		t := c.timers[idx]
		c.timers = append(c.timers[:idx], c.timers[idx+1:]...)
		c.now = t.at
		t.fn()
	}
	c.now = end
}

func (c *fakeClock) Pending() int { return len(c.timers) }

// fakeSource is a scripted foreground source.
type fakeSource struct {
	current domain.AppID
	err     error
	panics  bool
	calls   int
}

func (s *fakeSource) Foreground() (domain.AppID, error) {
	s.calls++
	if s.panics {
		panic("window went away")
	}
	if s.err != nil {
		return "", s.err
	}
	return s.current, nil
}

type action struct {
	name string
	at   time.Duration
}

// fakeNavigator records actions with their virtual time.
type fakeNavigator struct {
	clock   *fakeClock
	backErr error
	homeErr error
	fbErr   error
	actions []action
}

func (n *fakeNavigator) record(name string, err error) error {
	n.actions = append(n.actions, action{name: name, at: n.clock.Elapsed()})
	return err
}

func (n *fakeNavigator) NavigateBack() error { return n.record("back", n.backErr) }
func (n *fakeNavigator) NavigateHome() error { return n.record("home", n.homeErr) }
func (n *fakeNavigator) LaunchHome() error   { return n.record("launch_home", n.fbErr) }

func (n *fakeNavigator) names() []string {
	out := make([]string, len(n.actions))
	for i, a := range n.actions {
		out[i] = a.name
	}
	return out
}

func (n *fakeNavigator) countAt(name string, at time.Duration) int {
	count := 0
	for _, a := range n.actions {
		if a.name == name && a.at == at {
			count++
		}
	}
	return count
}

type shown struct {
	activation domain.OverlayActivation
	at         time.Duration
}

type fakeOverlay struct {
	clock *fakeClock
	err   error
	shown []shown
}

func (o *fakeOverlay) Show(a domain.OverlayActivation) error {
	o.shown = append(o.shown, shown{activation: a, at: o.clock.Elapsed()})
	return o.err
}

type fakeRegistry struct {
	labels map[domain.AppID]string
	err    error
}

func (r *fakeRegistry) Label(id domain.AppID) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	label, ok := r.labels[id]
	if !ok {
		return "", domain.ErrAppNotFound
	}
	return label, nil
}

func (r *fakeRegistry) Installed() ([]domain.InstalledApp, error) { return nil, r.err }

type fakeHistory struct {
	sessions []domain.SuppressionSession
	err      error
}

func (h *fakeHistory) RecordSession(s domain.SuppressionSession) error {
	if h.err != nil {
		return h.err
	}
	h.sessions = append(h.sessions, s)
	return nil
}

func (h *fakeHistory) RecentSessions(limit int) ([]domain.SuppressionSession, error) {
	return h.sessions, nil
}

type fakeConfigRepo struct {
	saved   []domain.BlockConfiguration
	loaded  *domain.BlockConfiguration
	loadErr error
	saveErr error
}

func (r *fakeConfigRepo) LoadBlockConfiguration() (*domain.BlockConfiguration, error) {
	return r.loaded, r.loadErr
}

func (r *fakeConfigRepo) SaveBlockConfiguration(cfg domain.BlockConfiguration) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saved = append(r.saved, cfg.Clone())
	return nil
}

// staticBlockList is a fixed BlockListReader.
type staticBlockList struct {
	cfg domain.BlockConfiguration
}

func (s *staticBlockList) Snapshot() domain.BlockConfiguration { return s.cfg }

func blocked(ids ...domain.AppID) *staticBlockList {
	return &staticBlockList{cfg: domain.NewBlockConfiguration(true, ids)}
}
