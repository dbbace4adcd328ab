package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"guildwarden/internal/core/domain"
	"guildwarden/internal/infrastructure/repositories/memory"
	"guildwarden/pkg/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeActivitySource struct {
	mu         sync.Mutex
	activities map[string][]domain.Activity
	err        error
}

func (f *fakeActivitySource) Fetch(ctx context.Context, target domain.NotifierTarget) ([]domain.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.activities[target.URL], nil
}

func TestNotifierService_PollAnnouncesOnce(t *testing.T) {
	target := domain.NotifierTarget{Platform: "twitch", URL: "https://probe/stream", RoleID: "role-ping"}
	activity := domain.Activity{Target: target, Title: "speedrun", URL: "https://twitch.tv/live/1"}

	source := &fakeActivitySource{activities: map[string][]domain.Activity{
		target.URL: {activity},
	}}
	community := newFakeCommunity()
	svc := NewNotifierService(
		source, memory.NewMemoryNotifierStateRepository(), community,
		[]domain.NotifierTarget{target}, "chan-announce",
		10*time.Minute, clock.NewFake(time.Unix(1700000000, 0)),
		zaptest.NewLogger(t).Sugar(),
	)

	ctx := context.Background()
	assert.Equal(t, 1, svc.Poll(ctx))
	require.Len(t, community.messages, 1)
	assert.Contains(t, community.messages[0], "<@&role-ping>")
	assert.Contains(t, community.messages[0], "speedrun")

	// Same activity observed again: deduplicated.
	assert.Equal(t, 0, svc.Poll(ctx))
	assert.Len(t, community.messages, 1)

	// A new activity on the same target is announced.
	source.mu.Lock()
	source.activities[target.URL] = append(source.activities[target.URL],
		domain.Activity{Target: target, Title: "rerun", URL: "https://twitch.tv/live/2"})
	source.mu.Unlock()

	assert.Equal(t, 1, svc.Poll(ctx))
	assert.Len(t, community.messages, 2)
}

func TestNotifierService_ProbeFailureDoesNotStopOthers(t *testing.T) {
	working := domain.NotifierTarget{Platform: "youtube", URL: "https://probe/yt"}
	activity := domain.Activity{Target: working, Title: "upload", URL: "https://youtube/v/1"}

	source := &fakeActivitySource{activities: map[string][]domain.Activity{
		working.URL: {activity},
	}}
	community := newFakeCommunity()
	svc := NewNotifierService(
		source, memory.NewMemoryNotifierStateRepository(), community,
		[]domain.NotifierTarget{working}, "chan-announce",
		10*time.Minute, clock.NewFake(time.Unix(1700000000, 0)),
		zaptest.NewLogger(t).Sugar(),
	)

	ctx := context.Background()

	source.mu.Lock()
	source.err = domain.ErrTransientService
	source.mu.Unlock()
	assert.Equal(t, 0, svc.Poll(ctx))

	source.mu.Lock()
	source.err = nil
	source.mu.Unlock()
	assert.Equal(t, 1, svc.Poll(ctx))
}

func TestNotifierService_FailedAnnouncementRetriesNextPoll(t *testing.T) {
	target := domain.NotifierTarget{Platform: "twitch", URL: "https://probe/stream"}
	activity := domain.Activity{Target: target, Title: "live", URL: "https://twitch.tv/live/1"}

	source := &fakeActivitySource{activities: map[string][]domain.Activity{
		target.URL: {activity},
	}}
	community := newFakeCommunity()
	community.sendErr = domain.ErrTransientService

	svc := NewNotifierService(
		source, memory.NewMemoryNotifierStateRepository(), community,
		[]domain.NotifierTarget{target}, "chan-announce",
		10*time.Minute, clock.NewFake(time.Unix(1700000000, 0)),
		zaptest.NewLogger(t).Sugar(),
	)

	ctx := context.Background()
	assert.Equal(t, 0, svc.Poll(ctx), "failed send must not mark the activity seen")

	community.mu.Lock()
	community.sendErr = nil
	community.mu.Unlock()
	assert.Equal(t, 1, svc.Poll(ctx))
}
