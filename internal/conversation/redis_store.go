package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RedisStore keeps frames in Redis as JSON. A zero TTL keeps them forever.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	return &RedisStore{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("cliniccall.internal.conversation.store"),
	}
}

func (s *RedisStore) GetOrCreate(ctx context.Context, id string) (string, *State, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_state")
	defer span.End()

	id = strings.TrimSpace(id)
	if id == "" {
		id = newConversationID()
	} else {
		data, err := s.redis.Get(ctx, stateKey(id)).Bytes()
		switch {
		case err == nil:
			var st State
			if err := json.Unmarshal(data, &st); err != nil {
				span.RecordError(err)
				return "", nil, fmt.Errorf("conversation: failed to decode state: %w", err)
			}
			span.SetAttributes(attribute.Bool("conversation.existing", true))
			return id, &st, nil
		case !errors.Is(err, redis.Nil):
			span.RecordError(err)
			return "", nil, fmt.Errorf("conversation: failed to load state: %w", err)
		}
	}

	st := NewState()
	data, err := json.Marshal(st)
	if err != nil {
		return "", nil, fmt.Errorf("conversation: failed to marshal state: %w", err)
	}
	if err := s.redis.SetNX(ctx, stateKey(id), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return "", nil, fmt.Errorf("conversation: failed to create state: %w", err)
	}
	return id, st, nil
}

func (s *RedisStore) Save(ctx context.Context, id string, state *State) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_state")
	defer span.End()

	data, err := json.Marshal(state)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal state: %w", err)
	}
	if err := s.redis.Set(ctx, stateKey(id), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist state: %w", err)
	}
	return nil
}

func stateKey(id string) string {
	return fmt.Sprintf("conversation:state:%s", id)
}
