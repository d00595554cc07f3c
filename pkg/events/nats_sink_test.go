package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type publishedMsg struct {
	subject string
	data    []byte
}

// fakeJetStream satisfies JetStream without a NATS server. Publish errors
// are consumed from the front of publishErrs, then publishes succeed.
type fakeJetStream struct {
	mu            sync.Mutex
	published     []publishedMsg
	publishErrs   []error
	streamInfoErr error
	infoCalls     int
	added         *nats.StreamConfig
}

func (f *fakeJetStream) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMsg{subject: subj, data: data})
	if len(f.publishErrs) > 0 {
		err := f.publishErrs[0]
		f.publishErrs = f.publishErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &nats.PubAck{Stream: "RUN_EVENTS"}, nil
}

func (f *fakeJetStream) StreamInfo(stream string) (*nats.StreamInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infoCalls++
	if f.streamInfoErr != nil {
		return nil, f.streamInfoErr
	}
	return &nats.StreamInfo{State: nats.StreamState{Msgs: 3}}, nil
}

func (f *fakeJetStream) AddStream(cfg *nats.StreamConfig) (*nats.StreamInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = cfg
	f.streamInfoErr = nil
	return &nats.StreamInfo{Config: *cfg}, nil
}

func fastSinkConfig() NATSSinkConfig {
	cfg := DefaultNATSSinkConfig()
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func TestNATSSink_Publish_CreatesStreamOnFirstUse(t *testing.T) {
	js := &fakeJetStream{streamInfoErr: nats.ErrStreamNotFound}
	sink, err := NewNATSSink(js, fastSinkConfig(), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, sink.Publish(context.Background(), RunStarted("run-1", "registry", 5)))

	require.NotNil(t, js.added)
	assert.Equal(t, "RUN_EVENTS", js.added.Name)
	assert.Equal(t, []string{"events.>"}, js.added.Subjects)
	assert.Equal(t, nats.FileStorage, js.added.Storage)
	assert.Equal(t, 24*time.Hour, js.added.MaxAge)
	assert.Equal(t, int64(100000), js.added.MaxMsgs)
	assert.Equal(t, 1, js.added.Replicas)

	require.Len(t, js.published, 1)
	assert.Equal(t, "events.run.started", js.published[0].subject)

	decoded, err := FromBytes(js.published[0].data)
	require.NoError(t, err)
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Equal(t, TypeRunStarted, decoded.Type)
}

func TestNATSSink_Publish_EnsuresStreamOnce(t *testing.T) {
	js := &fakeJetStream{}
	sink, err := NewNATSSink(js, fastSinkConfig(), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, sink.Publish(context.Background(), RunStarted("run-2", "registry", 1)))
	require.NoError(t, sink.Publish(context.Background(), RunCompleted("run-2", "registry", 1, 0, time.Second)))

	assert.Equal(t, 1, js.infoCalls)
	assert.Nil(t, js.added)
	require.Len(t, js.published, 2)
	assert.Equal(t, "events.run.completed", js.published[1].subject)
}

func TestNATSSink_Publish_RetriesUntilSuccess(t *testing.T) {
	transient := errors.New("no responders")
	js := &fakeJetStream{publishErrs: []error{transient, transient}}
	sink, err := NewNATSSink(js, fastSinkConfig(), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, sink.Publish(context.Background(), RunStarted("run-3", "registry", 1)))

	assert.Len(t, js.published, 3)
}

func TestNATSSink_Publish_ExhaustsRetries(t *testing.T) {
	transient := errors.New("no responders")
	js := &fakeJetStream{publishErrs: []error{transient, transient, transient, transient}}
	cfg := fastSinkConfig()
	cfg.MaxRetries = 2
	sink, err := NewNATSSink(js, cfg, zap.NewNop())
	require.NoError(t, err)

	err = sink.Publish(context.Background(), RunStarted("run-4", "registry", 1))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish failed after 3 attempts")
	assert.ErrorIs(t, err, transient)
	assert.Len(t, js.published, 3)
}

func TestNATSSink_Publish_CancelledDuringRetry(t *testing.T) {
	js := &fakeJetStream{publishErrs: []error{errors.New("no responders")}}
	cfg := fastSinkConfig()
	cfg.RetryDelay = time.Minute
	sink, err := NewNATSSink(js, cfg, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = sink.Publish(ctx, RunStarted("run-5", "registry", 1))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled during retry")
	assert.Len(t, js.published, 1)
}

func TestNATSSink_Publish_StreamCheckFailureRetriedNextPublish(t *testing.T) {
	js := &fakeJetStream{streamInfoErr: errors.New("connection refused")}
	sink, err := NewNATSSink(js, fastSinkConfig(), zap.NewNop())
	require.NoError(t, err)

	err = sink.Publish(context.Background(), RunStarted("run-6", "registry", 1))
	require.Error(t, err)
	assert.Empty(t, js.published)

	js.streamInfoErr = nil
	require.NoError(t, sink.Publish(context.Background(), RunStarted("run-6", "registry", 1)))
	assert.Equal(t, 2, js.infoCalls)
}

func TestNewNATSSink_RequiresContext(t *testing.T) {
	_, err := NewNATSSink(nil, DefaultNATSSinkConfig(), zap.NewNop())
	require.Error(t, err)
}

func TestNewNATSSink_AppliesDefaults(t *testing.T) {
	js := &fakeJetStream{streamInfoErr: nats.ErrStreamNotFound}
	sink, err := NewNATSSink(js, NATSSinkConfig{}, nil)
	require.NoError(t, err)

	require.NoError(t, sink.Publish(context.Background(), RunStarted("run-7", "registry", 1)))

	require.NotNil(t, js.added)
	assert.Equal(t, "RUN_EVENTS", js.added.Name)
	assert.Equal(t, "events.run.started", js.published[0].subject)
}
