package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"github.com/sakif/voteboard/internal/apperror"
	"github.com/sakif/voteboard/internal/model"
)

// =========================================================================
// FAKE REPOSITORIES
// =========================================================================
//
// In-memory stand-ins for the sqlite stores. They keep the same contracts
// (ErrConflict on duplicate usernames, ErrNotFound on unknown ids, an atomic
// MarkVoted) and can be told to fail with err.

var errStore = errors.New("disk I/O error")

type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]*model.User
	nextID int64

	err        error // returned by every call when set
	createHook func() // runs inside Create before the uniqueness check
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, u *model.User) error {
	if f.createHook != nil {
		f.createHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.users[u.Username]; ok {
		return apperror.Conflict("user", u.Username)
	}
	f.nextID++
	u.ID = f.nextID
	u.Vote = model.VoteNone
	stored := *u
	f.users[u.Username] = &stored
	return nil
}

func (f *fakeUserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[username]
	if !ok {
		return nil, apperror.NotFound("user", username)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) MarkVoted(_ context.Context, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	u, ok := f.users[username]
	if !ok || u.Vote != model.VoteNone {
		return false, nil
	}
	u.Vote = model.VoteCast
	return true, nil
}

func (f *fakeUserRepo) CountByVote(context.Context) (model.Tally, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return model.Tally{}, f.err
	}
	var t model.Tally
	for _, u := range f.users {
		if u.Vote == model.VoteCast {
			t.Voted++
		} else {
			t.Unvoted++
		}
	}
	return t, nil
}

func (f *fakeUserRepo) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type fakeHelpRepo struct {
	mu      sync.Mutex
	entries []model.HelpEntry
	nextID  int64
	err     error
}

func (f *fakeHelpRepo) Create(_ context.Context, e *model.HelpEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.nextID++
	e.ID = f.nextID
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeHelpRepo) List(context.Context) ([]model.HelpEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]model.HelpEntry{}, f.entries...), nil
}

func (f *fakeHelpRepo) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for i, e := range f.entries {
		if e.ID == id {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return nil
		}
	}
	return apperror.NotFound("help request", strconv.FormatInt(id, 10))
}

func (f *fakeHelpRepo) DeleteAll(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	n := int64(len(f.entries))
	f.entries = nil
	return n, nil
}

// =========================================================================
// FAKE PUBLISHER
// =========================================================================

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev model.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) named(name string) []model.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.Event
	for _, ev := range p.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}
