package store

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingPrunable struct {
	calls atomic.Int32
	err   error
}

func (c *countingPrunable) Prune(time.Time) (int, error) {
	c.calls.Add(1)
	return 1, c.err
}

func TestPruner_RunsOnSchedule(t *testing.T) {
	target := &countingPrunable{}
	p := NewPruner(target, 20*time.Millisecond, nil)
	require.NoError(t, p.Start())
	defer p.Stop()

	require.Eventually(t, func() bool { return target.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestPruner_DisabledWithoutInterval(t *testing.T) {
	target := &countingPrunable{}
	p := NewPruner(target, 0, nil)
	require.NoError(t, p.Start())
	defer p.Stop()

	time.Sleep(30 * time.Millisecond)
	require.Zero(t, target.calls.Load())
}

func TestPruner_RunOnceSurvivesErrors(t *testing.T) {
	target := &countingPrunable{err: errors.New("database is locked")}
	p := NewPruner(target, time.Hour, nil)

	p.RunOnce()
	p.RunOnce()
	require.Equal(t, int32(2), target.calls.Load())
}
