// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/appguard/internal/domain"
)

// Action is one navigation request received by FakeHost.
type Action struct {
	Name string
	At   time.Time
}

// FakeHost is a scriptable desktop. By default every successful navigation
// brings the home app to the foreground; a sticky host ignores navigation
// so every recheck finds the target still in front.
type FakeHost struct {
	mu         sync.Mutex
	home       domain.AppID
	foreground domain.AppID
	sticky     bool
	failBack   error
	failHome   error
	failLaunch error
	actions    []Action
}

// NewFakeHost creates a host whose desktop reports as home.
func NewFakeHost(home domain.AppID) *FakeHost {
	return &FakeHost{home: home, foreground: home}
}

// SetForeground brings id to the front. Empty means nothing is focused.
func (h *FakeHost) SetForeground(id domain.AppID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.foreground = id
}

// SetSticky makes navigation leave the foreground unchanged.
func (h *FakeHost) SetSticky(sticky bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sticky = sticky
}

// FailBack makes NavigateBack return err.
func (h *FakeHost) FailBack(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failBack = err
}

// FailHome makes NavigateHome return err.
func (h *FakeHost) FailHome(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failHome = err
}

// FailLaunch makes LaunchHome return err.
func (h *FakeHost) FailLaunch(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failLaunch = err
}

// Foreground implements domain.ForegroundSource.
func (h *FakeHost) Foreground() (domain.AppID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.foreground == "" {
		return "", domain.ErrNoForeground
	}
	return h.foreground, nil
}

// NavigateBack implements domain.Navigator.
func (h *FakeHost) NavigateBack() error { return h.navigate("back", h.failBack) }

// NavigateHome implements domain.Navigator.
func (h *FakeHost) NavigateHome() error { return h.navigate("home", h.failHome) }

// LaunchHome implements domain.Navigator.
func (h *FakeHost) LaunchHome() error { return h.navigate("launch_home", h.failLaunch) }

func (h *FakeHost) navigate(name string, fail error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.actions = append(h.actions, Action{Name: name, At: time.Now()})
	if fail != nil {
		return fail
	}
	if !h.sticky {
		h.foreground = h.home
	}
	return nil
}

// Actions returns a copy of the navigation log.
func (h *FakeHost) Actions() []Action {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Action(nil), h.actions...)
}

// Count returns how many times the named action was requested.
func (h *FakeHost) Count(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, a := range h.actions {
		if a.Name == name {
			n++
		}
	}
	return n
}
