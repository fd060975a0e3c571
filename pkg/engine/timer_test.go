package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerNotStarted(t *testing.T) {
	var tm Timer
	_, err := tm.Stop()
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestTimerElapsed(t *testing.T) {
	var tm Timer
	tm.Start()
	time.Sleep(2 * time.Millisecond)
	ns, err := tm.Stop()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ns, int64(2*time.Millisecond))
}

func TestTimerRestart(t *testing.T) {
	var tm Timer
	tm.Start()
	time.Sleep(20 * time.Millisecond)
	tm.Start()
	ns, err := tm.Stop()
	require.NoError(t, err)
	assert.Less(t, ns, int64(20*time.Millisecond))
}
