package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/farmacia/farmacia-backend/internal/inventory/service"
	"github.com/farmacia/farmacia-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (s *countingSweeper) EvaluateAll(ctx context.Context) (int, error) {
	s.calls.Add(1)
	return 0, s.err
}

func TestAlertScheduler_SweepsImmediatelyAndOnTick(t *testing.T) {
	sweeper := &countingSweeper{}
	s := service.NewAlertScheduler(sweeper, 10*time.Millisecond, logger.Nop())

	s.Start(context.Background())
	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	s.Stop()
	after := sweeper.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, sweeper.calls.Load(), "no sweeps after Stop")
}

func TestAlertScheduler_KeepsRunningAfterErrors(t *testing.T) {
	sweeper := &countingSweeper{err: errors.New("db down")}
	s := service.NewAlertScheduler(sweeper, 5*time.Millisecond, logger.Nop())

	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestAlertScheduler_StopWithoutStart(t *testing.T) {
	s := service.NewAlertScheduler(&countingSweeper{}, time.Minute, logger.Nop())
	assert.NotPanics(t, s.Stop)
}

func TestAlertScheduler_EngineSweep(t *testing.T) {
	env := newTestEnv(t)
	env.product(t, "p-1", "Paracetamol", 0)
	env.batch(t, "p-1", 3, days(60))
	env.notifier.reset()

	env.now = env.now.Add(50 * 24 * time.Hour)

	s := service.NewAlertScheduler(env.engine, time.Hour, logger.Nop())
	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return len(env.notifier.events()) > 0
	}, time.Second, 5*time.Millisecond)
}
