package usecase

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/appguard/internal/domain"
)

// SequenceTimings are the stage offsets, all measured from arming time.
type SequenceTimings struct {
	OverlayDelay  time.Duration
	FirstRecheck  time.Duration
	SecondRecheck time.Duration
	FinalRecheck  time.Duration
}

// DefaultSequenceTimings returns the standard retry ladder.
func DefaultSequenceTimings() SequenceTimings {
	return SequenceTimings{
		OverlayDelay:  20 * time.Millisecond,
		FirstRecheck:  50 * time.Millisecond,
		SecondRecheck: 200 * time.Millisecond,
		FinalRecheck:  500 * time.Millisecond,
	}
}

// Validate checks that the offsets are positive and strictly increasing.
func (t SequenceTimings) Validate() error {
	offsets := []time.Duration{t.OverlayDelay, t.FirstRecheck, t.SecondRecheck, t.FinalRecheck}
	prev := time.Duration(0)
	for i, d := range offsets {
		if d <= prev {
			return fmt.Errorf("sequence offset %d (%v) must be greater than %v", i, d, prev)
		}
		prev = d
	}
	return nil
}

// ForegroundPoller samples the current foreground app.
type ForegroundPoller interface {
	Poll() (domain.AppID, bool)
}

// Sequencer drives one suppression session at a time through its staged
// actions. Every stage re-samples the foreground before acting, so a single
// failed or undone action is retried by the next layer and a user who already
// left the app sees no further flicker.
//
// All methods must be called from the monitor's execution context.
type Sequencer struct {
	clock      domain.Clock
	poller     ForegroundPoller
	navigator  domain.Navigator
	overlay    domain.OverlayPresenter
	timings    SequenceTimings
	logger     *zap.Logger
	onComplete func(domain.SuppressionSession)

	active *domain.SuppressionSession
	alive  bool
}

// NewSequencer creates a sequencer.
func NewSequencer(
	clock domain.Clock,
	poller ForegroundPoller,
	navigator domain.Navigator,
	overlay domain.OverlayPresenter,
	timings SequenceTimings,
	logger *zap.Logger,
) *Sequencer {
	return &Sequencer{
		clock:     clock,
		poller:    poller,
		navigator: navigator,
		overlay:   overlay,
		timings:   timings,
		logger:    logger,
		alive:     true,
	}
}

// OnComplete registers a callback invoked with every finished session.
func (s *Sequencer) OnComplete(fn func(domain.SuppressionSession)) {
	s.onComplete = fn
}

// Busy reports whether a session is in flight.
func (s *Sequencer) Busy() bool {
	return s.active != nil
}

// Active returns a copy of the in-flight session.
func (s *Sequencer) Active() (domain.SuppressionSession, bool) {
	if s.active == nil {
		return domain.SuppressionSession{}, false
	}
	return copySession(s.active), true
}

// Arm starts a session against target. It returns false when a session is
// already active or the sequencer has been shut down; the observation is
// dropped, not queued.
func (s *Sequencer) Arm(target domain.AppID, label string, snapshot domain.BlockConfiguration) (string, bool) {
	if !s.alive || s.active != nil {
		return "", false
	}

	sess := &domain.SuppressionSession{
		ID:          uuid.NewString(),
		TargetID:    target,
		TargetLabel: label,
		ArmedAt:     s.clock.Now(),
		Stage:       domain.StageArmed,
		Blocked:     snapshot.Clone(),
	}
	s.active = sess

	s.logger.Info("suppression armed",
		zap.String("session", sess.ID),
		zap.String("app_id", string(target)),
		zap.String("label", label))

	if !s.issueInitial(sess) {
		s.finish(sess)
		return sess.ID, true
	}

	s.schedule(sess, s.timings.OverlayDelay, s.showOverlay)
	s.schedule(sess, s.timings.FirstRecheck, s.recheckHomeOnly)
	s.schedule(sess, s.timings.SecondRecheck, s.recheckWithOverlay)
	s.schedule(sess, s.timings.FinalRecheck, s.finalRecheck)

	return sess.ID, true
}

// Shutdown marks the sequencer dead. Timers that still fire become no-ops.
func (s *Sequencer) Shutdown() {
	s.alive = false
	s.active = nil
}

// issueInitial fires back and home navigation. If either is rejected, the
// generic home launch is tried once; false means the session must end.
func (s *Sequencer) issueInitial(sess *domain.SuppressionSession) bool {
	err := s.act(sess, domain.StageBackNav, 0, s.navigator.NavigateBack)
	if err == nil {
		err = s.act(sess, domain.StageHomeNav, 0, s.navigator.NavigateHome)
	}
	if err == nil {
		return true
	}

	if fbErr := s.act(sess, domain.StageFallbackHome, 0, s.navigator.LaunchHome); fbErr != nil {
		s.logger.Error("fallback home launch failed, ending session",
			zap.String("session", sess.ID),
			zap.Error(fbErr))
		return false
	}
	return true
}

// schedule arms a stage timer. The callback carries the session as its
// liveness token and does nothing once the session or sequencer is gone.
func (s *Sequencer) schedule(sess *domain.SuppressionSession, offset time.Duration, stage func(*domain.SuppressionSession, time.Duration)) {
	s.clock.AfterFunc(offset, func() {
		if !s.alive || s.active != sess {
			return
		}
		stage(sess, offset)
	})
}

func (s *Sequencer) showOverlay(sess *domain.SuppressionSession, offset time.Duration) {
	s.display(sess, offset, 1)
}

func (s *Sequencer) recheckHomeOnly(sess *domain.SuppressionSession, offset time.Duration) {
	if !s.stillForeground(sess, offset) {
		return
	}
	s.act(sess, domain.StageForceHome, offset, s.navigator.NavigateHome)
}

func (s *Sequencer) recheckWithOverlay(sess *domain.SuppressionSession, offset time.Duration) {
	if !s.stillForeground(sess, offset) {
		return
	}
	s.act(sess, domain.StageForceHome, offset, s.navigator.NavigateHome)
	s.display(sess, offset, 2)
}

func (s *Sequencer) finalRecheck(sess *domain.SuppressionSession, offset time.Duration) {
	s.recheckWithOverlay(sess, offset)
	s.finish(sess)
}

// stillForeground samples the foreground; a mismatch records a skipped recheck.
func (s *Sequencer) stillForeground(sess *domain.SuppressionSession, offset time.Duration) bool {
	sess.Stage = domain.StageRecheck
	id, ok := s.poller.Poll()
	if ok && id == sess.TargetID {
		return true
	}

	sess.Outcomes = append(sess.Outcomes, domain.StageOutcome{
		Stage:   domain.StageRecheck,
		Offset:  offset,
		Skipped: true,
	})
	s.logger.Debug("target left foreground, stage skipped",
		zap.String("session", sess.ID),
		zap.Duration("offset", offset),
		zap.String("foreground", string(id)))
	return false
}

func (s *Sequencer) display(sess *domain.SuppressionSession, offset time.Duration, stage int) {
	activation := domain.OverlayActivation{
		SessionID:    sess.ID,
		BlockedID:    sess.TargetID,
		BlockedLabel: sess.TargetLabel,
		Stage:        stage,
	}
	s.act(sess, domain.StageOverlayShown, offset, func() error {
		return s.overlay.Show(activation)
	})
}

// act runs one host action. Failures are logged and recorded; they never
// abort later stages.
func (s *Sequencer) act(sess *domain.SuppressionSession, stage domain.Stage, offset time.Duration, action func() error) error {
	sess.Stage = stage
	err := safeCall(action)

	outcome := domain.StageOutcome{Stage: stage, Offset: offset}
	if err != nil {
		outcome.Error = err.Error()
		s.logger.Warn("suppression action failed",
			zap.String("session", sess.ID),
			zap.String("stage", string(stage)),
			zap.Duration("offset", offset),
			zap.Error(err))
	}
	sess.Outcomes = append(sess.Outcomes, outcome)
	return err
}

func (s *Sequencer) finish(sess *domain.SuppressionSession) {
	sess.Stage = domain.StageDone
	sess.CompletedAt = s.clock.Now()
	if s.active == sess {
		s.active = nil
	}

	s.logger.Info("suppression finished",
		zap.String("session", sess.ID),
		zap.String("app_id", string(sess.TargetID)),
		zap.Int("actions", len(sess.Outcomes)))

	if s.onComplete != nil {
		s.onComplete(copySession(sess))
	}
}

func safeCall(action func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()
	return action()
}

func copySession(sess *domain.SuppressionSession) domain.SuppressionSession {
	out := *sess
	out.Outcomes = append([]domain.StageOutcome(nil), sess.Outcomes...)
	return out
}
