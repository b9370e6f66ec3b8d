package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/voteboard/internal/apperror"
	"github.com/sakif/voteboard/internal/auth"
	"github.com/sakif/voteboard/internal/metrics"
	"github.com/sakif/voteboard/internal/model"
)

func newHelpFixture() (*HelpService, *fakeHelpRepo, *recordingPublisher) {
	repo := &fakeHelpRepo{}
	pub := &recordingPublisher{}
	return NewHelpService(repo, pub, metrics.Noop(), testLogger()), repo, pub
}

func TestRequestHelp(t *testing.T) {
	svc, _, pub := newHelpFixture()
	ctx := context.Background()

	entry, err := svc.RequestHelp(ctx, &auth.Session{Username: "alice"})
	require.NoError(t, err)
	assert.NotZero(t, entry.ID)
	assert.Equal(t, "alice", entry.Username)

	events := pub.named(model.EventUpdateHelp)
	require.Len(t, events, 1)
	assert.Equal(t, model.HelpUpdate{Action: model.HelpRequested, ID: entry.ID, Username: "alice"}, events[0].Data)
}

func TestRequestHelp_NoSession(t *testing.T) {
	svc, repo, pub := newHelpFixture()

	for _, s := range []*auth.Session{nil, {Username: ""}} {
		_, err := svc.RequestHelp(context.Background(), s)
		require.ErrorIs(t, err, apperror.ErrAuthRequired)
		assert.Equal(t, "User not logged in", err.Error())
	}
	assert.Empty(t, repo.entries)
	assert.Empty(t, pub.events)
}

func TestRequestHelp_DuplicatesAllowed(t *testing.T) {
	svc, _, _ := newHelpFixture()
	ctx := context.Background()
	s := &auth.Session{Username: "alice"}

	a, err := svc.RequestHelp(ctx, s)
	require.NoError(t, err)
	b, err := svc.RequestHelp(ctx, s)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	entries, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestHelpDelete(t *testing.T) {
	svc, _, pub := newHelpFixture()
	ctx := context.Background()

	var ids []int64
	for _, name := range []string{"a", "b", "c"} {
		e, err := svc.RequestHelp(ctx, &auth.Session{Username: name})
		require.NoError(t, err)
		ids = append(ids, e.ID)
	}

	require.NoError(t, svc.Delete(ctx, ids[1]))

	entries, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Username)
	assert.Equal(t, "c", entries[1].Username)

	// gone now
	err = svc.Delete(ctx, ids[1])
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	deleted := 0
	for _, ev := range pub.named(model.EventUpdateHelp) {
		if ev.Data.(model.HelpUpdate).Action == model.HelpDeleted {
			deleted++
		}
	}
	assert.Equal(t, 1, deleted)
}

func TestHelpDelete_StoreFaultIsInternal(t *testing.T) {
	svc, repo, _ := newHelpFixture()
	repo.err = errStore

	err := svc.Delete(context.Background(), 1)
	require.ErrorIs(t, err, apperror.ErrInternal)
	assert.False(t, errors.Is(err, apperror.ErrNotFound))

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.ErrorIs(t, appErr.Cause, errStore)
}

func TestClearAll(t *testing.T) {
	svc, _, pub := newHelpFixture()
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		_, err := svc.RequestHelp(ctx, &auth.Session{Username: name})
		require.NoError(t, err)
	}

	n, err := svc.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	entries, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// clearing an empty queue succeeds
	n, err = svc.ClearAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	events := pub.named(model.EventUpdateHelp)
	assert.Equal(t, model.HelpCleared, events[len(events)-1].Data.(model.HelpUpdate).Action)
}

func TestClearAll_StoreFault(t *testing.T) {
	svc, repo, pub := newHelpFixture()
	repo.err = errStore

	_, err := svc.ClearAll(context.Background())
	assert.ErrorIs(t, err, apperror.ErrInternal)
	assert.Empty(t, pub.events)
}

func TestList_StoreFault(t *testing.T) {
	svc, repo, _ := newHelpFixture()
	repo.err = errStore

	_, err := svc.List(context.Background())
	assert.ErrorIs(t, err, apperror.ErrInternal)
}
