package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/marketguard/internal/auth"
	"github.com/stretchr/testify/assert"
)

func TestTimingDelay_WaitFrom_PadsToBase(t *testing.T) {
	td := auth.NewTimingDelay(auth.TimingConfig{BaseDelay: 50 * time.Millisecond})
	start := time.Now()

	td.WaitFrom(context.Background(), start)

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestTimingDelay_WaitFrom_NoExtraWhenAlreadySlow(t *testing.T) {
	td := auth.NewTimingDelay(auth.TimingConfig{BaseDelay: 10 * time.Millisecond})
	start := time.Now().Add(-time.Second)

	before := time.Now()
	td.WaitFrom(context.Background(), start)

	assert.Less(t, time.Since(before), 10*time.Millisecond)
}

func TestTimingDelay_WaitFrom_StopsOnCancel(t *testing.T) {
	td := auth.NewTimingDelay(auth.TimingConfig{BaseDelay: 5 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	before := time.Now()
	td.WaitFrom(ctx, time.Now())

	assert.Less(t, time.Since(before), time.Second)
}

func TestTimingDelay_NilIsNoop(t *testing.T) {
	var td *auth.TimingDelay
	assert.NotPanics(t, func() { td.WaitFrom(context.Background(), time.Now()) })
}
