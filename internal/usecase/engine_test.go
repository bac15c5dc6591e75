package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/appguard/internal/blocklist"
	"github.com/eliteGoblin/focusd/appguard/internal/domain"
)

type engineHarness struct {
	clock   *fakeClock
	source  *fakeSource
	nav     *fakeNavigator
	overlay *fakeOverlay
	store   *blocklist.Store
	history *fakeHistory
	engine  *Engine
}

func newEngineHarness(enabled bool, ids ...domain.AppID) *engineHarness {
	clock := newFakeClock()
	h := &engineHarness{
		clock:   clock,
		source:  &fakeSource{},
		nav:     &fakeNavigator{clock: clock},
		overlay: &fakeOverlay{clock: clock},
		store:   blocklist.NewStoreWith(domain.NewBlockConfiguration(enabled, ids)),
		history: &fakeHistory{},
	}

	logger := zap.NewNop()
	sampler := NewSampler(h.source, logger)
	sequencer := NewSequencer(clock, sampler, h.nav, h.overlay, DefaultSequenceTimings(), logger)
	h.engine = NewEngine(
		h.store,
		sampler,
		NewDebouncer(h.store, DefaultCooldown),
		sequencer,
		NewNameResolver(nil, logger),
		clock,
		logger,
	)
	h.engine.SetHistory(h.history)
	return h
}

// tick advances one poll interval and samples.
func (h *engineHarness) tick() {
	h.clock.Advance(ms(50))
	h.engine.Tick()
}

func TestEngine_DisabledIsNoOp(t *testing.T) {
	h := newEngineHarness(false, social)
	h.source.current = social

	for i := 0; i < 20; i++ {
		h.tick()
	}

	assert.Empty(t, h.nav.actions)
	assert.Empty(t, h.overlay.shown)
	assert.Equal(t, domain.InterventionRecord{}, h.engine.debouncer.Record())
}

func TestEngine_EmptyBlockListIsNoOp(t *testing.T) {
	h := newEngineHarness(true)
	h.source.current = social

	for i := 0; i < 20; i++ {
		h.tick()
	}
	assert.Empty(t, h.nav.actions)
}

func TestEngine_UnblockedAppIgnored(t *testing.T) {
	h := newEngineHarness(true, social)
	h.source.current = launcher

	for i := 0; i < 20; i++ {
		h.tick()
	}
	assert.Empty(t, h.nav.actions)
}

func TestEngine_ArmsOnceWhileUserStays(t *testing.T) {
	h := newEngineHarness(true, social)
	h.source.current = social

	armed := h.engine.Observe(domain.Observation{AppID: social, ObservedAt: h.clock.Now()})
	require.True(t, armed)

	// Ticks during the session are dropped; the session's own rechecks act.
	for h.clock.Elapsed() < ms(450) {
		h.tick()
	}
	assert.Equal(t, 1, countNames(h.nav.names(), "back"))

	_, active := h.engine.Status()
	require.NotNil(t, active)
	assert.Equal(t, social, active.TargetID)
	assert.Equal(t, "This app", active.TargetLabel)
}

func TestEngine_RearmsAfterSessionAndCooldown(t *testing.T) {
	h := newEngineHarness(true, social)
	h.source.current = social

	for h.clock.Elapsed() < ms(2000) {
		h.tick()
	}

	// Sessions last 500ms and the cool-down admits the next trigger right after.
	assert.GreaterOrEqual(t, countNames(h.nav.names(), "back"), 3)
	assert.Equal(t, countNames(h.nav.names(), "back"), len(h.history.sessions)+1)
}

// A distinct blocked app opened during the tail of a session is dropped, not queued.
func TestEngine_SecondAppDroppedWhileBusy(t *testing.T) {
	h := newEngineHarness(true, social, "com.example.video")

	require.True(t, h.engine.Observe(domain.Observation{AppID: social, ObservedAt: h.clock.Now()}))
	h.clock.AdvanceTo(ms(300))

	assert.False(t, h.engine.Observe(domain.Observation{AppID: "com.example.video", ObservedAt: h.clock.Now()}))
	assert.Equal(t, social, h.engine.debouncer.Record().LastBlockedID)

	h.clock.AdvanceTo(ms(600))
	assert.True(t, h.engine.Observe(domain.Observation{AppID: "com.example.video", ObservedAt: h.clock.Now()}))
}

func TestEngine_PushedChangeTakesSamePath(t *testing.T) {
	h := newEngineHarness(true, social)

	h.engine.ForegroundChanged("")
	assert.Empty(t, h.nav.actions)

	h.source.current = social
	h.engine.ForegroundChanged(social)
	assert.Equal(t, []string{"back", "home"}, h.nav.names())
}

func TestEngine_ConfigChangeTakesEffectNextObservation(t *testing.T) {
	h := newEngineHarness(true)
	h.source.current = social

	h.tick()
	assert.Empty(t, h.nav.actions)

	h.store.SetBlockedIDs([]domain.AppID{social})
	h.tick()
	assert.Equal(t, []string{"back", "home"}, h.nav.names())
}

func TestEngine_RecordsHistory(t *testing.T) {
	h := newEngineHarness(true, social)
	h.source.current = social

	h.engine.Observe(domain.Observation{AppID: social, ObservedAt: h.clock.Now()})
	h.clock.Advance(ms(600))

	require.Len(t, h.history.sessions, 1)
	assert.Equal(t, domain.StageDone, h.history.sessions[0].Stage)
}

func TestEngine_HistoryFailureIsLogged(t *testing.T) {
	h := newEngineHarness(true, social)
	h.history.err = errHostRejected
	h.source.current = social

	h.engine.Observe(domain.Observation{AppID: social, ObservedAt: h.clock.Now()})
	assert.NotPanics(t, func() { h.clock.Advance(ms(600)) })
}

func TestEngine_Shutdown(t *testing.T) {
	h := newEngineHarness(true, social)
	h.source.current = social

	h.engine.Observe(domain.Observation{AppID: social, ObservedAt: h.clock.Now()})
	h.engine.Shutdown()
	h.clock.Advance(ms(600))

	assert.Empty(t, h.overlay.shown)
	assert.Equal(t, domain.InterventionRecord{}, h.engine.debouncer.Record())
	assert.False(t, h.engine.Observe(domain.Observation{AppID: social, ObservedAt: h.clock.Now()}))
}

func countNames(names []string, want string) int {
	n := 0
	for _, name := range names {
		if name == want {
			n++
		}
	}
	return n
}
