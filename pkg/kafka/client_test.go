package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tender-match-go/internal/config"
	"tender-match-go/pkg/tasks"
)

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	closed    bool
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return kafka.Message{}, context.Canceled
	}
	m := f.messages[0]
	f.messages = f.messages[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

type memoryAttempts struct {
	counts map[string]int64
	err    error
}

func (m *memoryAttempts) Incr(_ context.Context, key string) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.counts[key]++
	return m.counts[key], nil
}

func (m *memoryAttempts) Reset(_ context.Context, key string) error {
	delete(m.counts, key)
	return nil
}

type scriptedProcessor struct {
	failures int
	calls    []tasks.IngestionTask
}

func (p *scriptedProcessor) Process(_ context.Context, task tasks.IngestionTask) error {
	p.calls = append(p.calls, task)
	if len(p.calls) <= p.failures {
		return errors.New("extract failed")
	}
	return nil
}

func message(t *testing.T, offset int64, task tasks.IngestionTask) kafka.Message {
	t.Helper()
	b, err := json.Marshal(task)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: b}
}

func TestConsumer_ProcessesAndCommits(t *testing.T) {
	task := tasks.IngestionTask{DocumentName: "a.pdf", ObjectName: "documents/x/a.pdf", FileMD5: "x"}
	reader := &fakeReader{messages: []kafka.Message{message(t, 7, task)}}
	attempts := &memoryAttempts{counts: map[string]int64{"x": 1}}
	proc := &scriptedProcessor{}

	c := newConsumer(reader, attempts, proc, 3)
	require.NoError(t, c.Run(context.Background()))

	require.Len(t, proc.calls, 1)
	assert.Equal(t, task, proc.calls[0])
	assert.Equal(t, []int64{7}, reader.committed)
	assert.Empty(t, attempts.counts)
	assert.True(t, reader.closed)
}

func TestConsumer_RetriesThenGivesUp(t *testing.T) {
	task := tasks.IngestionTask{DocumentName: "bad.pdf", FileMD5: "b"}
	reader := &fakeReader{messages: []kafka.Message{message(t, 1, task)}}
	attempts := &memoryAttempts{counts: map[string]int64{}}
	proc := &scriptedProcessor{failures: 10}

	c := newConsumer(reader, attempts, proc, 3)
	c.backoff = 0
	require.NoError(t, c.Run(context.Background()))

	assert.Len(t, proc.calls, 3)
	assert.Equal(t, []int64{1}, reader.committed)
	assert.Equal(t, int64(3), attempts.counts["b"])
}

func TestConsumer_RecoversAfterRetry(t *testing.T) {
	task := tasks.IngestionTask{DocumentName: "flaky.pdf", FileMD5: "f"}
	reader := &fakeReader{messages: []kafka.Message{message(t, 4, task)}}
	attempts := &memoryAttempts{counts: map[string]int64{}}
	proc := &scriptedProcessor{failures: 1}

	c := newConsumer(reader, attempts, proc, 3)
	c.backoff = 0
	require.NoError(t, c.Run(context.Background()))

	assert.Len(t, proc.calls, 2)
	assert.Equal(t, []int64{4}, reader.committed)
	assert.Empty(t, attempts.counts)
}

func TestConsumer_CounterFailureLeavesOffset(t *testing.T) {
	task := tasks.IngestionTask{DocumentName: "a.pdf", FileMD5: "a"}
	reader := &fakeReader{messages: []kafka.Message{message(t, 2, task)}}
	proc := &scriptedProcessor{failures: 1}

	c := newConsumer(reader, &memoryAttempts{err: errors.New("redis down")}, proc, 3)
	require.NoError(t, c.Run(context.Background()))

	assert.Len(t, proc.calls, 1)
	assert.Empty(t, reader.committed)
}

func TestConsumer_MalformedMessageIsCommitted(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{{Offset: 9, Value: []byte("{not json")}}}
	proc := &scriptedProcessor{}

	c := newConsumer(reader, &memoryAttempts{counts: map[string]int64{}}, proc, 3)
	require.NoError(t, c.Run(context.Background()))

	assert.Empty(t, proc.calls)
	assert.Equal(t, []int64{9}, reader.committed)
}

func TestTaskKey(t *testing.T) {
	assert.Equal(t, "md5", tasks.IngestionTask{DocumentName: "a", FileMD5: "md5"}.Key())
	assert.Equal(t, "a", tasks.IngestionTask{DocumentName: "a"}.Key())
}

func TestBrokers(t *testing.T) {
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, brokers(config.KafkaConfig{Brokers: "k1:9092, k2:9092,"}))
}

func TestRedisAttempts(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	attempts := RedisAttempts{RDB: rdb}
	ctx := context.Background()

	n, err := attempts.Incr(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = attempts.Incr(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 24*time.Hour, mr.TTL("kafka:attempts:abc"))

	require.NoError(t, attempts.Reset(ctx, "abc"))
	assert.False(t, mr.Exists("kafka:attempts:abc"))
}
