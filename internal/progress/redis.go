package progress

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rsilvagit/cratedig/internal/logger"
)

// RedisSink republishes events on a Redis pub/sub channel so observers in
// other processes can follow a run.
type RedisSink struct {
	client  *redis.Client
	channel string
	log     *logger.Entry
}

// NewRedisSink connects to redisURL (redis://host:port/db).
func NewRedisSink(redisURL, channel string, log *logger.Log) (*RedisSink, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("progress: invalid redis URL: %w", err)
	}
	if channel == "" {
		channel = "cratedig:progress"
	}
	return &RedisSink{
		client:  redis.NewClient(opts),
		channel: channel,
		log:     log.WithComponent("progress"),
	}, nil
}

// Forward drains events until ctx is done or the channel closes.
func (s *RedisSink) Forward(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			payload, err := encode(e)
			if err != nil {
				continue
			}
			if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
				s.log.WithError(err).Debug("redis publish failed")
			}
		}
	}
}

// Close closes the Redis connection.
func (s *RedisSink) Close() error {
	return s.client.Close()
}

type wireEvent struct {
	RunID   string `json:"run_id"`
	Percent int    `json:"percent"`
	Line    string `json:"line"`
}

func encode(e Event) ([]byte, error) {
	return json.Marshal(wireEvent{RunID: e.RunID, Percent: e.Percent, Line: Format(e)})
}
