package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kivara1314/kivara/internal/agent"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(ttl time.Duration) (*Store, *clock) {
	c := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewStore(ttl)
	s.nowFn = c.Now
	return s, c
}

func pushStress(v float64) func(agent.State) (agent.State, error) {
	return func(s agent.State) (agent.State, error) {
		_, next := agent.Decide(s, v)
		return next, nil
	}
}

func TestStore_StartIsIdempotent(t *testing.T) {
	s, _ := newTestStore(0)

	st, created, err := s.Start("a", agent.Female, 3)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, agent.Female, st.Gender)

	_, err = s.Update("a", agent.Female, 3, pushStress(0.5))
	require.NoError(t, err)

	st, created, err = s.Start("a", agent.Male, 1)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, agent.Female, st.Gender)
	assert.Equal(t, 1, st.History.Len())
}

func TestStore_StartRejectsInvalid(t *testing.T) {
	s, _ := newTestStore(0)
	_, _, err := s.Start("a", agent.Female, 0)
	assert.ErrorIs(t, err, agent.ErrInvalidState)
	assert.Zero(t, s.Len())
}

func TestStore_UpdateCreatesAndKeepsOnError(t *testing.T) {
	s, _ := newTestStore(0)

	st, err := s.Update("a", agent.Male, 1, pushStress(0.3))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.3}, st.History.Values())

	boom := errors.New("boom")
	st, err = s.Update("a", agent.Male, 1, func(in agent.State) (agent.State, error) {
		_, next := agent.Decide(in, 0.9)
		return next, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []float64{0.3}, st.History.Values())

	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.3}, got.History.Values())
}

func TestStore_ConcurrentUpdatesSerialised(t *testing.T) {
	s, _ := newTestStore(0)

	const writers, each = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				_, err := s.Update("shared", agent.Male, 1, func(in agent.State) (agent.State, error) {
					in.BaselineHR++
					return in, nil
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	st, err := s.Get("shared")
	require.NoError(t, err)
	assert.Equal(t, agent.InitialBaselineHR+writers*each, st.BaselineHR)
	assert.Equal(t, 1, s.Len())
}

func TestStore_SessionsIsolated(t *testing.T) {
	s, _ := newTestStore(0)
	_, err := s.Update("a", agent.Male, 1, pushStress(1))
	require.NoError(t, err)
	_, err = s.Update("b", agent.Male, 1, pushStress(0))
	require.NoError(t, err)

	a, err := s.Get("a")
	require.NoError(t, err)
	b, err := s.Get("b")
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, a.History.Values())
	assert.Equal(t, []float64{0}, b.History.Values())
}

func TestStore_End(t *testing.T) {
	s, _ := newTestStore(0)
	_, err := s.Update("a", agent.Male, 1, pushStress(0.4))
	require.NoError(t, err)

	final, err := s.End("a")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.4}, final.History.Values())
	assert.Zero(t, s.Len())

	_, err = s.Get("a")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.End("a")
	assert.ErrorIs(t, err, ErrNotFound)

	// the id starts over with fresh baselines
	st, err := s.Update("a", agent.Male, 1, pushStress(0.1))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1}, st.History.Values())
}

func TestStore_Sweep(t *testing.T) {
	s, c := newTestStore(10 * time.Minute)

	_, err := s.Update("idle", agent.Male, 1, pushStress(0.2))
	require.NoError(t, err)
	c.Advance(6 * time.Minute)
	_, err = s.Update("busy", agent.Male, 1, pushStress(0.2))
	require.NoError(t, err)

	assert.Empty(t, s.Sweep())

	c.Advance(5 * time.Minute)
	assert.Equal(t, []string{"idle"}, s.Sweep())
	assert.Equal(t, 1, s.Len())

	_, err = s.Get("busy")
	assert.NoError(t, err)
}

func TestStore_SweepDisabled(t *testing.T) {
	s, c := newTestStore(0)
	_, err := s.Update("a", agent.Male, 1, pushStress(0.2))
	require.NoError(t, err)
	c.Advance(24 * time.Hour)
	assert.Nil(t, s.Sweep())
	assert.Equal(t, 1, s.Len())
}
