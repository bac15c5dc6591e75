//go:build integration

package integration

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/appguard/internal/blocklist"
	"github.com/eliteGoblin/focusd/appguard/internal/control"
	"github.com/eliteGoblin/focusd/appguard/internal/daemon"
	"github.com/eliteGoblin/focusd/appguard/internal/domain"
	"github.com/eliteGoblin/focusd/appguard/internal/infra"
	"github.com/eliteGoblin/focusd/appguard/internal/usecase"
	"github.com/eliteGoblin/focusd/appguard/test/fixtures"
)

const (
	desktop domain.AppID = "desktop"
	steam   domain.AppID = "steam"
)

// harness runs the whole daemon pipeline against a FakeHost.
type harness struct {
	tmpDir      string
	host        *fixtures.FakeHost
	store       *infra.EncryptedStore
	client      *control.Client
	overlay     *control.OverlayClient
	activations chan domain.OverlayActivation
	cancel      context.CancelFunc
	done        chan struct{}
}

func startHarness(seed domain.BlockConfiguration) *harness {
	logger := zap.NewNop()
	h := &harness{
		host:        fixtures.NewFakeHost(desktop),
		activations: make(chan domain.OverlayActivation, 32),
		done:        make(chan struct{}),
	}

	var err error
	h.tmpDir, err = os.MkdirTemp("", "appguard-integration-*")
	Expect(err).NotTo(HaveOccurred())

	key, err := infra.EnsureKey(infra.NewFileKeyProvider(h.tmpDir))
	Expect(err).NotTo(HaveOccurred())
	h.store, err = infra.NewEncryptedStore(h.tmpDir, key)
	Expect(err).NotTo(HaveOccurred())

	blockStore := blocklist.NewStore()
	blockSvc := usecase.NewBlockListService(blockStore, h.store, logger)
	Expect(blockSvc.LoadOrSeed(seed)).To(Succeed())

	hub := control.NewHub(h.host, logger)
	clock := daemon.NewLoopClock()
	sampler := usecase.NewSampler(h.host, logger)
	sequencer := usecase.NewSequencer(clock, sampler, h.host, hub, usecase.DefaultSequenceTimings(), logger)
	engine := usecase.NewEngine(
		blockStore,
		sampler,
		usecase.NewDebouncer(blockStore, usecase.DefaultCooldown),
		sequencer,
		usecase.NewNameResolver(nil, logger),
		clock,
		logger,
	)
	engine.SetHistory(h.store)

	monitor := daemon.NewMonitor(daemon.DefaultMonitorConfig(), engine, clock, logger)
	server := control.NewServer(hub, blockSvc, monitor, "", logger)
	server.SetHistory(h.store)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { _ = server.Serve(ctx, ln) }()
	go func() {
		defer close(h.done)
		_ = monitor.Run(ctx)
	}()

	addr := ln.Addr().String()
	h.client = control.NewClient(addr, "")
	h.overlay, err = control.DialOverlay(addr, "")
	Expect(err).NotTo(HaveOccurred())
	go func() {
		for {
			a, err := h.overlay.Next()
			if err != nil {
				return
			}
			h.activations <- a
		}
	}()
	Eventually(func() int {
		st, err := h.client.Status()
		if err != nil {
			return 0
		}
		return st.OverlayClients
	}).Should(Equal(1))

	return h
}

func (h *harness) stop() {
	h.cancel()
	Eventually(h.done, 2*time.Second).Should(BeClosed())
	h.overlay.Close()
	h.store.Close()
	os.RemoveAll(h.tmpDir)
}

// firstSession returns the oldest recorded session.
func (h *harness) firstSession() domain.SuppressionSession {
	var sessions []domain.SuppressionSession
	Eventually(func() int {
		var err error
		sessions, err = h.store.RecentSessions(50)
		Expect(err).NotTo(HaveOccurred())
		return len(sessions)
	}, 3*time.Second, 20*time.Millisecond).Should(BeNumerically(">=", 1))
	return sessions[len(sessions)-1]
}

func stagesOf(sess domain.SuppressionSession) []domain.Stage {
	stages := make([]domain.Stage, 0, len(sess.Outcomes))
	for _, o := range sess.Outcomes {
		stages = append(stages, o.Stage)
	}
	return stages
}

var _ = Describe("Suppression pipeline", func() {
	var h *harness

	AfterEach(func() {
		if h != nil {
			h.stop()
			h = nil
		}
	})

	Context("when a blocked app comes to the foreground", func() {
		BeforeEach(func() {
			h = startHarness(domain.NewBlockConfiguration(true, []domain.AppID{steam}))
		})

		It("navigates away and shows the overlay once", func() {
			h.host.SetForeground(steam)

			var a domain.OverlayActivation
			Eventually(h.activations, time.Second).Should(Receive(&a))
			Expect(a.BlockedID).To(Equal(steam))
			Expect(a.BlockedLabel).To(Equal("Steam"))
			Expect(a.Stage).To(Equal(1))

			sess := h.firstSession()
			Expect(sess.TargetID).To(Equal(steam))
			Expect(sess.Stage).To(Equal(domain.StageDone))
			Expect(stagesOf(sess)[:3]).To(Equal([]domain.Stage{
				domain.StageBackNav, domain.StageHomeNav, domain.StageOverlayShown,
			}))

			// The user left on the first action, so every recheck stands down.
			for _, o := range sess.Outcomes[3:] {
				Expect(o.Skipped).To(BeTrue())
			}
			Expect(h.host.Count("back")).To(Equal(1))
			Expect(h.host.Count("home")).To(Equal(1))
			Consistently(h.activations, 300*time.Millisecond).ShouldNot(Receive())
		})

		It("keeps pushing home while the app refuses to leave", func() {
			h.host.SetSticky(true)
			h.host.SetForeground(steam)

			sess := h.firstSession()
			h.host.SetForeground(desktop)
			h.host.SetSticky(false)

			Expect(stagesOf(sess)).To(Equal([]domain.Stage{
				domain.StageBackNav,
				domain.StageHomeNav,
				domain.StageOverlayShown,
				domain.StageForceHome,
				domain.StageForceHome,
				domain.StageOverlayShown,
				domain.StageForceHome,
				domain.StageOverlayShown,
			}))
			Expect(sess.CompletedAt.Sub(sess.ArmedAt)).To(BeNumerically(">=", 500*time.Millisecond))

			var stages []int
			for i := 0; i < 3; i++ {
				var a domain.OverlayActivation
				Eventually(h.activations, time.Second).Should(Receive(&a))
				stages = append(stages, a.Stage)
			}
			Expect(stages).To(Equal([]int{1, 2, 2}))
		})

		It("falls back to the home launcher when back navigation is refused", func() {
			h.host.FailBack(errors.New("no window"))
			h.host.SetForeground(steam)

			sess := h.firstSession()
			Expect(stagesOf(sess)[:2]).To(Equal([]domain.Stage{domain.StageBackNav, domain.StageFallbackHome}))
			Expect(sess.Outcomes[0].Error).To(ContainSubstring("no window"))
			Expect(h.host.Count("launch_home")).To(Equal(1))
			Expect(h.host.Count("home")).To(Equal(0))
		})

		It("ends the session at once when the fallback also fails", func() {
			h.host.SetSticky(true)
			h.host.FailBack(errors.New("no window"))
			h.host.FailLaunch(errors.New("no launcher"))
			h.host.SetForeground(steam)

			sess := h.firstSession()
			h.host.SetForeground(desktop)

			Expect(stagesOf(sess)).To(Equal([]domain.Stage{domain.StageBackNav, domain.StageFallbackHome}))
			Expect(sess.CompletedAt.Sub(sess.ArmedAt)).To(BeNumerically("<", 20*time.Millisecond))
			Consistently(h.activations, 100*time.Millisecond).ShouldNot(Receive())
		})

		It("redirects home when the overlay is dismissed", func() {
			h.host.SetSticky(true)
			h.host.SetForeground(steam)
			Eventually(h.activations, time.Second).Should(Receive())

			before := h.host.Count("home")
			Expect(h.overlay.Dismiss()).To(Succeed())
			Eventually(func() int { return h.host.Count("home") }).Should(BeNumerically(">", before))

			h.host.SetForeground(desktop)
		})
	})

	Context("when monitoring is disabled", func() {
		BeforeEach(func() {
			h = startHarness(domain.NewBlockConfiguration(false, []domain.AppID{steam}))
		})

		It("ignores blocked apps until enabled over the control channel", func() {
			h.host.SetForeground(steam)
			Consistently(func() int { return len(h.host.Actions()) }, 200*time.Millisecond).Should(BeZero())

			Expect(h.client.SetEnabled(true)).To(Succeed())
			Eventually(h.activations, time.Second).Should(Receive())

			st, err := h.client.Status()
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Enabled).To(BeTrue())
			Expect(st.LastBlockedID).To(Equal(steam))
		})
	})

	Context("when the block list changes at runtime", func() {
		BeforeEach(func() {
			h = startHarness(domain.NewBlockConfiguration(true, nil))
		})

		It("acts on newly blocked apps and persists the change", func() {
			h.host.SetForeground("discord")
			Consistently(func() int { return len(h.host.Actions()) }, 200*time.Millisecond).Should(BeZero())

			ids, err := h.client.AddBlocked([]domain.AppID{"discord"})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(ConsistOf(domain.AppID("discord")))

			var a domain.OverlayActivation
			Eventually(h.activations, time.Second).Should(Receive(&a))
			Expect(a.BlockedLabel).To(Equal("Discord"))

			persisted, err := h.store.LoadBlockConfiguration()
			Expect(err).NotTo(HaveOccurred())
			Expect(persisted.IsBlocked("discord")).To(BeTrue())

			Eventually(func() []domain.AppID {
				history, err := h.client.History(5)
				Expect(err).NotTo(HaveOccurred())
				var targets []domain.AppID
				for _, s := range history {
					targets = append(targets, s.TargetID)
				}
				return targets
			}, 2*time.Second).Should(ContainElement(domain.AppID("discord")))
		})
	})
})

var _ = Describe("Encrypted store", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "appguard-store-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("restores the block list across restarts", func() {
		provider := infra.NewFileKeyProvider(tmpDir)
		key, err := infra.EnsureKey(provider)
		Expect(err).NotTo(HaveOccurred())

		store, err := infra.NewEncryptedStore(tmpDir, key)
		Expect(err).NotTo(HaveOccurred())
		svc := usecase.NewBlockListService(blocklist.NewStore(), store, zap.NewNop())
		Expect(svc.LoadOrSeed(domain.NewBlockConfiguration(true, []domain.AppID{steam}))).To(Succeed())
		Expect(svc.AddBlockedIDs([]domain.AppID{"discord"})).To(Succeed())
		Expect(svc.SetEnabled(false)).To(Succeed())
		Expect(store.Close()).To(Succeed())

		key, err = infra.EnsureKey(provider)
		Expect(err).NotTo(HaveOccurred())
		store, err = infra.NewEncryptedStore(tmpDir, key)
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()

		restored := usecase.NewBlockListService(blocklist.NewStore(), store, zap.NewNop())
		Expect(restored.LoadOrSeed(domain.NewBlockConfiguration(true, nil))).To(Succeed())
		snap := restored.Snapshot()
		Expect(snap.Enabled).To(BeFalse())
		Expect(snap.IDs()).To(Equal([]domain.AppID{"discord", steam}))
	})

	It("keeps the database unreadable without the key", func() {
		key, err := infra.GenerateKey()
		Expect(err).NotTo(HaveOccurred())
		store, err := infra.NewEncryptedStore(tmpDir, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.SaveBlockConfiguration(domain.NewBlockConfiguration(true, []domain.AppID{steam}))).To(Succeed())
		Expect(store.Close()).To(Succeed())

		data, err := os.ReadFile(filepath.Join(tmpDir, "appguard.db"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).NotTo(ContainSubstring("steam"))
		Expect(string(data)).NotTo(HavePrefix("SQLite format 3"))
	})
})
