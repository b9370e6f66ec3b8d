package event

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/voteboard/internal/metrics"
	"github.com/sakif/voteboard/internal/model"
)

// recorder is a Publisher that keeps what it receives.
type recorder struct {
	events []model.Event
	err    error
}

func (r *recorder) Publish(_ context.Context, ev model.Event) error {
	r.events = append(r.events, ev)
	return r.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFanout_DeliversToAllDespiteErrors(t *testing.T) {
	failing := &recorder{err: errors.New("broker down")}
	ok := &recorder{}

	f := Fanout{failing, nil, ok}
	err := f.Publish(context.Background(), model.Event{Name: model.EventUpdateVotes})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Len(t, failing.events, 1)
	assert.Len(t, ok.events, 1)
}

func TestFanout_Empty(t *testing.T) {
	assert.NoError(t, Fanout{}.Publish(context.Background(), model.Event{Name: "x"}))
	assert.NoError(t, Discard.Publish(context.Background(), model.Event{Name: "x"}))
}

func TestKafkaMessage(t *testing.T) {
	ev := model.Event{
		Name: model.EventUpdateVotes,
		Data: model.VoteUpdate{Username: "alice", Votes: 1},
		Key:  "alice",
	}

	msg, err := kafkaMessage(ev)
	require.NoError(t, err)

	assert.Equal(t, "alice", string(msg.Key))
	assert.JSONEq(t, `{"event":"update_votes","data":{"username":"alice","votes":1}}`, string(msg.Value))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "update_votes", string(msg.Headers[0].Value))
}

func TestKafkaMessage_KeyFallsBackToName(t *testing.T) {
	msg, err := kafkaMessage(model.Event{Name: model.EventUpdateHelp})
	require.NoError(t, err)
	assert.Equal(t, "update_help", string(msg.Key))
}

func TestRelayDecode(t *testing.T) {
	r := &RedisRelay{origin: "self", logger: testLogger()}

	tests := []struct {
		name        string
		payload     string
		wantForward bool
		wantName    string
	}{
		{"other instance", `{"origin":"peer","event":"update_votes","data":{"username":"bob","votes":1}}`, true, "update_votes"},
		{"own message", `{"origin":"self","event":"update_votes","data":{}}`, false, ""},
		{"malformed", `not json`, false, ""},
		{"missing event name", `{"origin":"peer"}`, false, ""},
		{"no data", `{"origin":"peer","event":"update_help"}`, true, "update_help"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, forward := r.decode(tt.payload)
			assert.Equal(t, tt.wantForward, forward)
			assert.Equal(t, tt.wantName, ev.Name)
		})
	}
}

func TestRelayDecode_DataSurvivesReencoding(t *testing.T) {
	r := &RedisRelay{origin: "self", logger: testLogger()}

	ev, ok := r.decode(`{"origin":"peer","event":"update_votes","data":{"username":"bob","votes":1}}`)
	require.True(t, ok)

	out, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"update_votes","data":{"username":"bob","votes":1}}`, string(out))
}

// TestRedisRelay_RoundTrip needs a live Redis; set REDIS_URL to run it.
func TestRedisRelay_RoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	channel := "voteboard-test-" + time.Now().Format("150405.000")
	a, err := NewRedisRelay(ctx, url, channel, metrics.Noop(), testLogger())
	require.NoError(t, err)
	defer a.Close()
	b, err := NewRedisRelay(ctx, url, channel, metrics.Noop(), testLogger())
	require.NoError(t, err)
	defer b.Close()

	got := make(chan model.Event, 1)
	go b.Run(ctx, PublisherFunc(func(_ context.Context, ev model.Event) error {
		got <- ev
		return nil
	}))

	// Give the subscriber time to attach; Redis pub/sub does not buffer.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, a.Publish(ctx, model.Event{Name: model.EventUpdateHelp, Data: model.HelpUpdate{Action: model.HelpCleared}}))

	select {
	case ev := <-got:
		assert.Equal(t, model.EventUpdateHelp, ev.Name)
	case <-ctx.Done():
		t.Fatal("relay did not forward the event")
	}
}
