package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sakif/voteboard/internal/apperror"
	"github.com/sakif/voteboard/internal/metrics"
	"github.com/sakif/voteboard/internal/model"
)

type userFixture struct {
	svc     *UserService
	repo    *fakeUserRepo
	pub     *recordingPublisher
	metrics *metrics.Metrics
}

func newUserFixture(voteOnFirstCall bool) *userFixture {
	f := &userFixture{
		repo:    newFakeUserRepo(),
		pub:     &recordingPublisher{},
		metrics: metrics.Noop(),
	}
	f.svc = NewUserService(f.repo, f.pub, f.metrics, testLogger(), voteOnFirstCall)
	return f
}

// =========================================================================
// ENSURE USER
// =========================================================================

func TestEnsureUser_CreatesOnce(t *testing.T) {
	f := newUserFixture(false)
	ctx := context.Background()

	first, err := f.svc.EnsureUser(ctx, "alice")
	if err != nil {
		t.Fatalf("EnsureUser() error = %v", err)
	}
	second, err := f.svc.EnsureUser(ctx, "  alice  ")
	if err != nil {
		t.Fatalf("EnsureUser() second call error = %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("EnsureUser() returned ids %d and %d, want the same record", first.ID, second.ID)
	}
	if first.Vote != model.VoteNone {
		t.Errorf("new user Vote = %d, want 0", first.Vote)
	}
	if len(f.repo.users) != 1 {
		t.Errorf("repo holds %d users, want 1", len(f.repo.users))
	}
}

func TestEnsureUser_Validation(t *testing.T) {
	tests := []struct {
		name     string
		username string
	}{
		{"empty", ""},
		{"whitespace only", "   \t"},
		{"too long", strings.Repeat("x", model.MaxUsernameLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newUserFixture(false)
			_, err := f.svc.EnsureUser(context.Background(), tt.username)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("EnsureUser(%q) error = %v, want ErrValidation", tt.username, err)
			}
		})
	}
}

func TestEnsureUser_MaxLengthAccepted(t *testing.T) {
	f := newUserFixture(false)
	name := strings.Repeat("é", model.MaxUsernameLength) // multi-byte, counted in runes

	if _, err := f.svc.EnsureUser(context.Background(), name); err != nil {
		t.Errorf("EnsureUser() with %d runes error = %v", model.MaxUsernameLength, err)
	}
}

func TestEnsureUser_ConflictRefetches(t *testing.T) {
	f := newUserFixture(false)
	ctx := context.Background()

	// Simulate another request inserting "bob" between our lookup and insert.
	f.repo.createHook = func() {
		f.repo.createHook = nil
		f.repo.Create(ctx, &model.User{Username: "bob"})
	}

	u, err := f.svc.EnsureUser(ctx, "bob")
	if err != nil {
		t.Fatalf("EnsureUser() error = %v", err)
	}
	if u.Username != "bob" || u.ID == 0 {
		t.Errorf("EnsureUser() = %+v", u)
	}
	if len(f.repo.users) != 1 {
		t.Errorf("repo holds %d users, want 1", len(f.repo.users))
	}
}

func TestEnsureUser_StoreFault(t *testing.T) {
	f := newUserFixture(false)
	f.repo.fail(errStore)

	_, err := f.svc.EnsureUser(context.Background(), "alice")
	if !errors.Is(err, apperror.ErrInternal) {
		t.Errorf("EnsureUser() error = %v, want ErrInternal", err)
	}
}

// =========================================================================
// SUBMIT VOTE
// =========================================================================

func TestSubmitVote_Lifecycle(t *testing.T) {
	f := newUserFixture(false)
	ctx := context.Background()

	steps := []struct {
		name       string
		wantStatus model.VoteStatus
		wantVoted  int64
	}{
		{"first call registers", model.VoteRegistered, 0},
		{"second call counts", model.VoteCounted, 1},
		{"third call is a no-op", model.VoteAlreadyCast, 1},
	}

	for _, step := range steps {
		res, err := f.svc.SubmitVote(ctx, "alice")
		if err != nil {
			t.Fatalf("%s: SubmitVote() error = %v", step.name, err)
		}
		if res.Status != step.wantStatus {
			t.Errorf("%s: status = %s, want %s", step.name, res.Status, step.wantStatus)
		}
		tally, _ := f.svc.Tally(ctx)
		if tally.Voted != step.wantVoted {
			t.Errorf("%s: voted = %d, want %d", step.name, tally.Voted, step.wantVoted)
		}
	}

	updates := f.pub.named(model.EventUpdateVotes)
	if len(updates) != 1 {
		t.Fatalf("published %d update_votes events, want 1", len(updates))
	}
	if got := updates[0].Data.(model.VoteUpdate); got.Username != "alice" || got.Votes != 1 {
		t.Errorf("update_votes payload = %+v", got)
	}
	if updates[0].Key != "alice" {
		t.Errorf("event key = %q, want alice", updates[0].Key)
	}
}

func TestSubmitVote_ExistingUserCountsImmediately(t *testing.T) {
	f := newUserFixture(false)
	ctx := context.Background()

	if _, err := f.svc.EnsureUser(ctx, "alice"); err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.SubmitVote(ctx, "alice")
	if err != nil {
		t.Fatalf("SubmitVote() error = %v", err)
	}
	if res.Status != model.VoteCounted || res.Message != "Vote submitted successfully" {
		t.Errorf("SubmitVote() = %+v", res)
	}
}

func TestSubmitVote_VoteOnFirstCall(t *testing.T) {
	f := newUserFixture(true)

	res, err := f.svc.SubmitVote(context.Background(), "zoe")
	if err != nil {
		t.Fatalf("SubmitVote() error = %v", err)
	}
	if res.Status != model.VoteCounted {
		t.Errorf("status = %s, want counted", res.Status)
	}
	if n := len(f.pub.named(model.EventUpdateVotes)); n != 1 {
		t.Errorf("published %d update_votes, want 1", n)
	}
}

func TestSubmitVote_InvalidUsername(t *testing.T) {
	f := newUserFixture(true)

	_, err := f.svc.SubmitVote(context.Background(), " ")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("SubmitVote() error = %v, want ErrValidation", err)
	}
	if len(f.pub.events) != 0 {
		t.Errorf("published %d events for an invalid vote", len(f.pub.events))
	}
}

func TestSubmitVote_StoreFault(t *testing.T) {
	f := newUserFixture(true)
	f.repo.fail(errStore)

	_, err := f.svc.SubmitVote(context.Background(), "alice")
	if !errors.Is(err, apperror.ErrInternal) {
		t.Errorf("SubmitVote() error = %v, want ErrInternal", err)
	}
}

func TestSubmitVote_PublishFailureDoesNotFailVote(t *testing.T) {
	f := newUserFixture(true)
	f.pub.err = errors.New("hub closed")

	res, err := f.svc.SubmitVote(context.Background(), "alice")
	if err != nil {
		t.Fatalf("SubmitVote() error = %v", err)
	}
	if res.Status != model.VoteCounted {
		t.Errorf("status = %s, want counted", res.Status)
	}
}

func TestSubmitVote_ConcurrentSameUserCountsOnce(t *testing.T) {
	f := newUserFixture(false)
	ctx := context.Background()
	if _, err := f.svc.EnsureUser(ctx, "alice"); err != nil {
		t.Fatal(err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		counted int
	)
	for range 25 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.SubmitVote(ctx, "alice")
			if err != nil {
				t.Errorf("SubmitVote() error = %v", err)
				return
			}
			if res.Status == model.VoteCounted {
				mu.Lock()
				counted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if counted != 1 {
		t.Errorf("%d submissions counted, want 1", counted)
	}
	if n := len(f.pub.named(model.EventUpdateVotes)); n != 1 {
		t.Errorf("published %d update_votes, want 1", n)
	}
}

func TestSubmitVote_Metrics(t *testing.T) {
	f := newUserFixture(false)
	ctx := context.Background()

	for range 3 {
		f.svc.SubmitVote(ctx, "alice")
	}

	for _, status := range []model.VoteStatus{model.VoteRegistered, model.VoteCounted, model.VoteAlreadyCast} {
		if got := testutil.ToFloat64(f.metrics.VoteSubmissions.WithLabelValues(string(status))); got != 1 {
			t.Errorf("submissions{status=%s} = %v, want 1", status, got)
		}
	}
}

// =========================================================================
// TALLY
// =========================================================================

func TestTally_SumsToUserCount(t *testing.T) {
	f := newUserFixture(false)
	ctx := context.Background()

	for i := range 7 {
		if _, err := f.svc.EnsureUser(ctx, fmt.Sprintf("user-%d", i)); err != nil {
			t.Fatal(err)
		}
	}
	for i := range 3 {
		if _, err := f.svc.SubmitVote(ctx, fmt.Sprintf("user-%d", i)); err != nil {
			t.Fatal(err)
		}
	}

	tally, err := f.svc.Tally(ctx)
	if err != nil {
		t.Fatalf("Tally() error = %v", err)
	}
	if tally.Unvoted != 4 || tally.Voted != 3 || tally.Total() != 7 {
		t.Errorf("Tally() = %+v, want {4 3}", tally)
	}
}

func TestTally_StoreFault(t *testing.T) {
	f := newUserFixture(false)
	f.repo.fail(errStore)

	if _, err := f.svc.Tally(context.Background()); !errors.Is(err, apperror.ErrInternal) {
		t.Errorf("Tally() error = %v, want ErrInternal", err)
	}
}

func TestGetUser(t *testing.T) {
	f := newUserFixture(false)
	ctx := context.Background()

	if _, err := f.svc.GetUser(ctx, "nobody"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUser(nobody) error = %v, want ErrNotFound", err)
	}

	f.svc.EnsureUser(ctx, "alice")
	u, err := f.svc.GetUser(ctx, "alice")
	if err != nil || u.Username != "alice" {
		t.Errorf("GetUser(alice) = %+v, %v", u, err)
	}
}
