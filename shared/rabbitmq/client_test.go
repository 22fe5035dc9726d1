package rabbitmq

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestConfigQueueNames(t *testing.T) {
	cfg := &Config{QueueName: "jobs"}
	assert.Equal(t, "jobs.retry", cfg.retryQueue())
	assert.Equal(t, "jobs.failed", cfg.failedQueue())

	cfg.RetryQueueName = "jobs-wait"
	cfg.FailedQueueName = "jobs-dead"
	assert.Equal(t, "jobs-wait", cfg.retryQueue())
	assert.Equal(t, "jobs-dead", cfg.failedQueue())
}

func TestPublishing(t *testing.T) {
	c := &Client{config: &Config{QueueName: "jobs"}}

	p := c.publishing(Message{ID: "job-1", Body: []byte(`{"job_id":"job-1"}`), Attempt: 2})
	assert.Equal(t, "job-1", p.MessageId)
	assert.Equal(t, "application/json", p.ContentType)
	assert.Equal(t, amqp.Persistent, p.DeliveryMode)
	assert.Equal(t, int32(2), p.Headers[HeaderAttempt])

	p = c.publishing(Message{ID: "job-2"})
	assert.Equal(t, int32(1), p.Headers[HeaderAttempt])
}

func TestAttempt(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp.Table
		want    int
	}{
		{name: "missing header", headers: nil, want: 1},
		{name: "int32", headers: amqp.Table{HeaderAttempt: int32(3)}, want: 3},
		{name: "int64", headers: amqp.Table{HeaderAttempt: int64(2)}, want: 2},
		{name: "wrong type", headers: amqp.Table{HeaderAttempt: "2"}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Attempt(amqp.Delivery{Headers: tt.headers}))
		})
	}
}
