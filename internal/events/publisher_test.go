package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRedisClient is a mock for Redis client
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	mockArgs := m.Called(ctx, args)
	cmd := redis.NewStringCmd(ctx)
	if mockArgs.Get(0) != nil {
		cmd.SetErr(mockArgs.Error(0))
	} else {
		cmd.SetVal("1234567890-0")
	}
	return cmd
}

func (m *MockRedisClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestPublishRunCompleted(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes the summary to the stream", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		publisher := NewPublisher(mockRedis, "audible:runs", nil)

		payload := &RunCompleted{
			RunID:            "run-1",
			Records:          42,
			Pages:            3,
			FinalState:       "done",
			StopReason:       "no_next_link",
			ImagesDownloaded: 40,
			ImagesFailed:     2,
		}

		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			vals, ok := args.Values.(map[string]interface{})
			if !ok {
				return false
			}
			if args.Stream != "audible:runs" || vals["event_type"] != string(EventTypeRunCompleted) {
				return false
			}
			var decoded RunCompleted
			if err := json.Unmarshal([]byte(vals["data"].(string)), &decoded); err != nil {
				return false
			}
			return decoded.Records == 42 && decoded.RunID == "run-1" && decoded.Source == "audible-scraper"
		})).Return(nil)

		id, err := publisher.PublishRunCompleted(ctx, payload)
		require.NoError(t, err)

		assert.Equal(t, "1234567890-0", id)
		assert.NotEmpty(t, payload.EventID)
		assert.False(t, payload.Timestamp.IsZero())
		mockRedis.AssertExpectations(t)
	})

	t.Run("keeps caller supplied event id", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		publisher := NewPublisher(mockRedis, "audible:runs", nil)

		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			vals, ok := args.Values.(map[string]interface{})
			return ok && vals["event_id"] == "fixed"
		})).Return(nil)

		_, err := publisher.PublishRunCompleted(ctx, &RunCompleted{EventID: "fixed"})
		require.NoError(t, err)
		mockRedis.AssertExpectations(t)
	})

	t.Run("handle Redis publish failure", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		publisher := NewPublisher(mockRedis, "audible:runs", nil)

		mockRedis.On("XAdd", ctx, mock.Anything).Return(errors.New("redis connection failed"))

		_, err := publisher.PublishRunCompleted(ctx, &RunCompleted{RunID: "run-2"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to publish to redis")
	})
}

func TestPublisherClose(t *testing.T) {
	mockRedis := new(MockRedisClient)
	mockRedis.On("Close").Return(nil)

	require.NoError(t, NewPublisher(mockRedis, "s", nil).Close())
	mockRedis.AssertExpectations(t)
}
