package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpectedInterval(t *testing.T) {
	d, err := ExpectedInterval("*/5 * * * *", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, d)

	d, err = ExpectedInterval("0 * * * *", london)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, d)

	_, err = ExpectedInterval("every five minutes", time.UTC)
	assert.Error(t, err)
}

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	now := time.Now()
	p := newPipeline(standupFeeds(), nil, &fakeRenderer{}, &fakePublisher{}, &now)

	_, err := NewScheduler(p, "nope", "*/5 * * * *")
	assert.Error(t, err)
	_, err = NewScheduler(p, "*/5 * * * *", "61 * * * *")
	assert.Error(t, err)
}

func TestSchedulerRunsImmediately(t *testing.T) {
	now := time.Date(2025, 6, 2, 7, 0, 0, 0, london)
	pub := &fakePublisher{}
	p := newPipeline(standupFeeds(), nil, &fakeRenderer{}, pub, &now)

	s, err := NewScheduler(p, "0 0 1 1 *", "0 0 1 1 *")
	require.NoError(t, err)
	s.Start()
	s.Stop()

	_, ok := p.CurrentDay()
	assert.True(t, ok)
	assert.Len(t, pub.published, 1)
}
