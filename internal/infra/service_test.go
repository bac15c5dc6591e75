package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kardianos/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeService is an in-memory service.Service.
type fakeService struct {
	installed bool
	running   bool
	statusErr error
	startErr  error
	calls     []string
}

func (f *fakeService) Run() error { f.calls = append(f.calls, "run"); return nil }

func (f *fakeService) Start() error {
	f.calls = append(f.calls, "start")
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeService) Stop() error {
	f.calls = append(f.calls, "stop")
	f.running = false
	return nil
}

func (f *fakeService) Restart() error { return nil }

func (f *fakeService) Install() error {
	f.calls = append(f.calls, "install")
	f.installed = true
	return nil
}

func (f *fakeService) Uninstall() error {
	f.calls = append(f.calls, "uninstall")
	f.installed = false
	return nil
}

func (f *fakeService) Logger(errs chan<- error) (service.Logger, error)       { return nil, nil }
func (f *fakeService) SystemLogger(errs chan<- error) (service.Logger, error) { return nil, nil }
func (f *fakeService) String() string                                         { return ServiceName }
func (f *fakeService) Platform() string                                       { return "fake" }

func (f *fakeService) Status() (service.Status, error) {
	if f.statusErr != nil {
		return service.StatusUnknown, f.statusErr
	}
	if !f.installed {
		return service.StatusUnknown, service.ErrNotInstalled
	}
	if f.running {
		return service.StatusRunning, nil
	}
	return service.StatusStopped, nil
}

func newTestServiceManager(svc *fakeService) *ServiceManagerImpl {
	return NewServiceManagerWithService(svc, ExecModeUser, zap.NewNop())
}

func TestServiceManager_RequestEnable(t *testing.T) {
	svc := &fakeService{}
	m := newTestServiceManager(svc)

	assert.False(t, m.IsMonitoringEnabled())
	require.NoError(t, m.RequestEnable())
	assert.True(t, m.IsMonitoringEnabled())
	assert.Equal(t, []string{"install", "start"}, svc.calls)

	// Already running: nothing to do.
	svc.calls = nil
	require.NoError(t, m.RequestEnable())
	assert.Empty(t, svc.calls)
}

func TestServiceManager_RequestEnableStartFails(t *testing.T) {
	svc := &fakeService{startErr: errors.New("unit masked")}
	m := newTestServiceManager(svc)

	err := m.RequestEnable()
	assert.ErrorContains(t, err, "unit masked")
	assert.False(t, m.IsMonitoringEnabled())
}

func TestServiceManager_Uninstall(t *testing.T) {
	svc := &fakeService{installed: true, running: true}
	m := newTestServiceManager(svc)

	require.NoError(t, m.Uninstall())
	assert.Equal(t, []string{"stop", "uninstall"}, svc.calls)
	assert.False(t, m.IsInstalled())

	// Not installed: no-op.
	svc.calls = nil
	require.NoError(t, m.Uninstall())
	assert.Empty(t, svc.calls)
}

func TestServiceManager_StatusString(t *testing.T) {
	tests := []struct {
		name string
		svc  *fakeService
		want string
	}{
		{name: "not installed", svc: &fakeService{}, want: "not installed"},
		{name: "stopped", svc: &fakeService{installed: true}, want: "stopped"},
		{name: "running", svc: &fakeService{installed: true, running: true}, want: "running"},
		{name: "error", svc: &fakeService{statusErr: errors.New("dbus down")}, want: "unknown (dbus down)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, newTestServiceManager(tt.svc).StatusString())
		})
	}
}

func TestServiceProgram_StartStop(t *testing.T) {
	started := make(chan struct{})
	p := NewServiceProgram(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	require.NoError(t, p.Start(nil))
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("run was not started")
	}
	assert.NoError(t, p.Stop(nil))
}

func TestServiceProgram_StopPropagatesError(t *testing.T) {
	boom := errors.New("store closed")
	p := NewServiceProgram(func(ctx context.Context) error {
		<-ctx.Done()
		return boom
	})

	require.NoError(t, p.Start(nil))
	assert.ErrorIs(t, p.Stop(nil), boom)
}

func TestServiceProgram_StopBeforeStart(t *testing.T) {
	p := NewServiceProgram(func(ctx context.Context) error { return nil })
	assert.NoError(t, p.Stop(nil))
}
