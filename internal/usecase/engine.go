package usecase

import (
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/appguard/internal/domain"
)

// Engine routes foreground observations into suppression sessions.
//
// Polled samples and pushed change notifications take the same path. An
// observation is acted on only when monitoring is enabled, the app is
// blocked, no session is in flight and the cool-down gate lets it through.
// Must be driven from a single execution context.
type Engine struct {
	blocklist BlockListReader
	sampler   *Sampler
	debouncer *Debouncer
	sequencer *Sequencer
	resolver  *NameResolver
	clock     domain.Clock
	history   domain.HistoryRecorder
	logger    *zap.Logger
}

// NewEngine wires the suppression pipeline together.
func NewEngine(
	blocklist BlockListReader,
	sampler *Sampler,
	debouncer *Debouncer,
	sequencer *Sequencer,
	resolver *NameResolver,
	clock domain.Clock,
	logger *zap.Logger,
) *Engine {
	e := &Engine{
		blocklist: blocklist,
		sampler:   sampler,
		debouncer: debouncer,
		sequencer: sequencer,
		resolver:  resolver,
		clock:     clock,
		logger:    logger,
	}
	sequencer.OnComplete(e.sessionFinished)
	return e
}

// SetHistory enables session history. Nil disables it.
func (e *Engine) SetHistory(h domain.HistoryRecorder) {
	e.history = h
}

// Tick samples the foreground once and feeds the result through Observe.
func (e *Engine) Tick() {
	id, ok := e.sampler.Poll()
	if !ok {
		return
	}
	e.Observe(domain.Observation{AppID: id, ObservedAt: e.clock.Now()})
}

// ForegroundChanged handles a pushed notification.
func (e *Engine) ForegroundChanged(id domain.AppID) {
	if id == "" {
		return
	}
	e.Observe(domain.Observation{AppID: id, ObservedAt: e.clock.Now()})
}

// Observe evaluates one observation and arms a session if warranted.
// It returns true when a session was armed.
func (e *Engine) Observe(obs domain.Observation) bool {
	cfg := e.blocklist.Snapshot()
	if !cfg.Active() || !cfg.IsBlocked(obs.AppID) {
		return false
	}

	// An in-flight session drops the observation before the cool-down
	// record is touched.
	if e.sequencer.Busy() {
		e.logger.Debug("session in flight, observation dropped",
			zap.String("app_id", string(obs.AppID)))
		return false
	}

	if !e.debouncer.Accept(obs.AppID, obs.ObservedAt) {
		return false
	}

	label := e.resolver.Resolve(obs.AppID)
	_, armed := e.sequencer.Arm(obs.AppID, label, cfg)
	return armed
}

// Status returns the intervention record and the in-flight session, if any.
func (e *Engine) Status() (domain.InterventionRecord, *domain.SuppressionSession) {
	record := e.debouncer.Record()
	if sess, ok := e.sequencer.Active(); ok {
		return record, &sess
	}
	return record, nil
}

// Shutdown stops the sequencer and forgets the intervention record.
func (e *Engine) Shutdown() {
	e.sequencer.Shutdown()
	e.debouncer.Reset()
}

func (e *Engine) sessionFinished(sess domain.SuppressionSession) {
	if e.history == nil {
		return
	}
	if err := e.history.RecordSession(sess); err != nil {
		e.logger.Warn("failed to record session",
			zap.String("session", sess.ID),
			zap.Error(err))
	}
}
