package subscription

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu      sync.Mutex
	frames  []ControlFrame
	offline bool
}

func (f *fakeSender) Send(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return errors.New("not connected")
	}
	f.frames = append(f.frames, v.(ControlFrame))
	return nil
}

func (f *fakeSender) sent() []ControlFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ControlFrame(nil), f.frames...)
}

type fakeRemover struct {
	removed []string
}

func (f *fakeRemover) RemoveInstrument(id string) int {
	f.removed = append(f.removed, id)
	return 1
}

func TestRegistry_SharedSubscription(t *testing.T) {
	s := &fakeSender{}
	rm := &fakeRemover{}
	r := NewRegistry(s, rm, nil)

	require.NoError(t, r.Subscribe("265598"))
	require.NoError(t, r.Subscribe("265598"))

	assert.Equal(t, []ControlFrame{{Type: "subscribe", Conid: "265598"}}, s.sent())
	assert.Equal(t, map[string]int{"265598": 2}, r.Active())

	r.Unsubscribe("265598")
	assert.Len(t, s.sent(), 1, "first release keeps the subscription")
	assert.Empty(t, rm.removed)

	r.Unsubscribe("265598")
	assert.Equal(t, []ControlFrame{
		{Type: "subscribe", Conid: "265598"},
		{Type: "unsubscribe", Conid: "265598"},
	}, s.sent())
	assert.Empty(t, r.Active())
	assert.Equal(t, []string{"265598"}, rm.removed)
}

func TestRegistry_UnsubscribeUnknownIsNoop(t *testing.T) {
	s := &fakeSender{}
	r := NewRegistry(s, nil, nil)

	r.Unsubscribe("nope")
	assert.Empty(t, s.sent())
}

func TestRegistry_EmptyID(t *testing.T) {
	r := NewRegistry(&fakeSender{}, nil, nil)

	assert.ErrorIs(t, r.Subscribe("  "), ErrEmptyID)
	_, err := r.Acquire("")
	assert.ErrorIs(t, err, ErrEmptyID)
}

func TestRegistry_LeaseReleaseIdempotent(t *testing.T) {
	s := &fakeSender{}
	r := NewRegistry(s, nil, nil)

	a, err := r.Acquire("AAPL")
	require.NoError(t, err)
	b, err := r.Acquire("AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", a.ID())

	a.Release()
	a.Release()
	assert.Equal(t, map[string]int{"AAPL": 1}, r.Active(), "double release counts once")

	b.Release()
	assert.Empty(t, r.Active())
	assert.Len(t, s.sent(), 2)
}

func TestRegistry_OfflineThenResubscribe(t *testing.T) {
	s := &fakeSender{offline: true}
	r := NewRegistry(s, nil, nil)

	require.NoError(t, r.Subscribe("MSFT"))
	require.NoError(t, r.Subscribe("AAPL"))
	require.NoError(t, r.Subscribe("AAPL"))
	assert.Empty(t, s.sent())

	s.mu.Lock()
	s.offline = false
	s.mu.Unlock()

	r.Resubscribe()
	assert.Equal(t, []ControlFrame{
		{Type: "subscribe", Conid: "AAPL"},
		{Type: "subscribe", Conid: "MSFT"},
	}, s.sent())
}

func TestRegistry_ConcurrentLeases(t *testing.T) {
	s := &fakeSender{}
	r := NewRegistry(s, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := r.Acquire("SPY")
			if err != nil {
				return
			}
			l.Release()
		}()
	}
	wg.Wait()

	assert.Empty(t, r.Active())
	frames := s.sent()
	require.NotEmpty(t, frames)
	subs, unsubs := 0, 0
	for _, f := range frames {
		switch f.Type {
		case TypeSubscribe:
			subs++
		case TypeUnsubscribe:
			unsubs++
		}
	}
	assert.Equal(t, subs, unsubs)
	assert.Equal(t, TypeUnsubscribe, frames[len(frames)-1].Type)
}
