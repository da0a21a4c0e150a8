package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAddRejectsBadSchedule(t *testing.T) {
	s := New(zap.NewNop().Sugar())
	err := s.Add("not a schedule", "job", func(ctx context.Context) error { return nil })
	assert.Error(t, err)
}

func TestAddAcceptsSixFieldSchedule(t *testing.T) {
	s := New(zap.NewNop().Sugar())
	err := s.Add("0 0 * * * *", "hourly", func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestScheduledJobRuns(t *testing.T) {
	s := New(zap.NewNop().Sugar())

	var runs atomic.Int32
	require.NoError(t, s.Add("* * * * * *", "every-second", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return runs.Load() >= 1
	}, 3*time.Second, 50*time.Millisecond)
}
