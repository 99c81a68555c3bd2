package sink

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	completed bool
	err       error
}

func (t *fakeToken) Wait() bool { return t.completed }

func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.completed }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (t *fakeToken) Error() error { return t.err }

type fakePublisher struct {
	topic   string
	qos     byte
	payload []byte
	token   *fakeToken
}

func (p *fakePublisher) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	p.topic = topic
	p.qos = qos
	p.payload = payload.([]byte)
	return p.token
}

func TestMQTTSink_Publish(t *testing.T) {
	pub := &fakePublisher{token: &fakeToken{completed: true}}
	s := newMQTTSink(pub, "sensors/probe-A", time.Second, testLogger())

	require.NoError(t, s.Persist(context.Background(), sampleReading()))

	assert.Equal(t, "sensors/probe-A", pub.topic)
	assert.Equal(t, byte(1), pub.qos)

	var row Row
	require.NoError(t, json.Unmarshal(pub.payload, &row))
	assert.Equal(t, int64(5), row.EntryID)
	assert.Equal(t, "probe-A", row.SensorID)
}

func TestMQTTSink_Timeout(t *testing.T) {
	s := newMQTTSink(&fakePublisher{token: &fakeToken{}}, "t", time.Millisecond, testLogger())

	err := s.Persist(context.Background(), sampleReading())
	assert.True(t, errors.Is(err, errPublishTimeout))
}

func TestMQTTSink_BrokerError(t *testing.T) {
	s := newMQTTSink(&fakePublisher{token: &fakeToken{completed: true, err: errors.New("not connected")}}, "t", time.Second, testLogger())

	err := s.Persist(context.Background(), sampleReading())
	var sinkErr *Error
	require.True(t, errors.As(err, &sinkErr))
	assert.Equal(t, "mqtt", sinkErr.Sink)
}
