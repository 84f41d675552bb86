package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/mcclellann/saccoLoan/pkg/bonus"
	"github.com/mcclellann/saccoLoan/pkg/config"
	"github.com/mcclellann/saccoLoan/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRecomputer struct {
	calls int
	err   error
	panic bool
}

func (s *stubRecomputer) Recompute(context.Context) (*bonus.RecomputeResult, error) {
	s.calls++
	if s.panic {
		panic("boom")
	}
	if s.err != nil {
		return nil, s.err
	}
	return &bonus.RecomputeResult{Bonuses: []*models.Bonus{{ID: "B1"}}}, nil
}

func TestRecomputeBonusesJob(t *testing.T) {
	stub := &stubRecomputer{}
	NewJobRunner(stub).RecomputeBonuses()
	assert.Equal(t, 1, stub.calls)

	failing := &stubRecomputer{err: errors.New("database is locked")}
	NewJobRunner(failing).RecomputeBonuses()
	assert.Equal(t, 1, failing.calls)
}

func TestRecomputeBonusesRecoversFromPanic(t *testing.T) {
	stub := &stubRecomputer{panic: true}
	assert.NotPanics(t, func() { NewJobRunner(stub).RecomputeBonuses() })
	assert.Equal(t, 1, stub.calls)
}

func TestNewScheduler(t *testing.T) {
	s, err := NewScheduler(config.SchedulerConfig{Enabled: true, RecomputeBonuses: "0 0 1 1 * *"}, NewJobRunner(&stubRecomputer{}))
	require.NoError(t, err)

	s.Start()
	next := s.Next()
	s.Stop()
	assert.False(t, next.IsZero())
	assert.Equal(t, 1, next.Day())

	_, err = NewScheduler(config.SchedulerConfig{RecomputeBonuses: "not a cron spec"}, NewJobRunner(&stubRecomputer{}))
	assert.Error(t, err)
}
