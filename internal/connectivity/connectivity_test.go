package connectivity

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/stockpro/internal/remote"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMonitor_RegainedFiresOnTransitionOnly(t *testing.T) {
	m := NewMonitor(true)
	var fired atomic.Int32
	m.OnRegained(func() { fired.Add(1) })

	m.SetOnline(true)
	assert.Equal(t, int32(0), fired.Load(), "online to online is not a regain")

	m.SetOnline(false)
	assert.False(t, m.IsOnline())
	assert.Equal(t, int32(0), fired.Load())

	m.SetOnline(true)
	assert.True(t, m.IsOnline())
	assert.Equal(t, int32(1), fired.Load())
}

func TestMonitor_Unsubscribe(t *testing.T) {
	m := NewMonitor(false)
	var fired atomic.Int32
	unsubscribe := m.OnRegained(func() { fired.Add(1) })
	unsubscribe()

	m.SetOnline(true)
	assert.Equal(t, int32(0), fired.Load())
}

func TestMonitor_ListenerMayReadState(t *testing.T) {
	m := NewMonitor(false)
	var sawOnline atomic.Bool
	m.OnRegained(func() { sawOnline.Store(m.IsOnline()) })

	m.SetOnline(true)
	assert.True(t, sawOnline.Load())
}

type fakePinger struct {
	err   atomic.Value
	count atomic.Int32
}

func (p *fakePinger) Ping(context.Context) error {
	p.count.Add(1)
	if v := p.err.Load(); v != nil {
		return v.(errBox).err
	}
	return nil
}

type errBox struct{ err error }

func (p *fakePinger) fail(err error) { p.err.Store(errBox{err}) }

func TestProber_Probe(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"reachable", nil, true},
		{"offline", remote.NewError(remote.ClassOffline, "dial", "connection refused"), false},
		{"transient", remote.NewError(remote.ClassTransient, "503", "unavailable"), false},
		{"auth still reachable", remote.NewError(remote.ClassAuth, "401", "jwt expired"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pinger := &fakePinger{}
			pinger.fail(tt.err)
			m := NewMonitor(!tt.want)
			p := NewProber(pinger, m)

			assert.Equal(t, tt.want, p.Probe(context.Background()))
			assert.Equal(t, tt.want, m.IsOnline())
		})
	}
}

func TestProber_StartStop(t *testing.T) {
	pinger := &fakePinger{}
	pinger.fail(remote.NewError(remote.ClassOffline, "dial", "no route"))
	m := NewMonitor(true)
	regained := make(chan struct{}, 1)
	m.OnRegained(func() {
		select {
		case regained <- struct{}{}:
		default:
		}
	})

	p := NewProber(pinger, m, WithInterval(5*time.Millisecond))
	p.Start(context.Background())
	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool { return !m.IsOnline() }, time.Second, time.Millisecond)

	pinger.fail(nil)
	select {
	case <-regained:
	case <-time.After(time.Second):
		t.Fatal("regain not observed")
	}
	assert.GreaterOrEqual(t, pinger.count.Load(), int32(2))
}

func TestProber_StopsOnContextCancel(t *testing.T) {
	pinger := &fakePinger{}
	p := NewProber(pinger, NewMonitor(true), WithInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()
	p.Stop()
}
