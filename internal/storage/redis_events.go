package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/radiusdt/dynaq/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisEventStore implements EventStore on Redis. Each event is a JSON
// string under "<prefix>event:<id>"; "<prefix>project:<project_id>:events"
// is a sorted set of event ids scored by Unix milliseconds.
type RedisEventStore struct {
	client *redis.Client
	prefix string
}

// NewRedisEventStore creates a new Redis-backed event store.
func NewRedisEventStore(client *redis.Client, prefix string) *RedisEventStore {
	return &RedisEventStore{client: client, prefix: prefix}
}

func (s *RedisEventStore) eventKey(id string) string {
	return fmt.Sprintf("%sevent:%s", s.prefix, id)
}

func (s *RedisEventStore) projectKey(projectID string) string {
	return fmt.Sprintf("%sproject:%s:events", s.prefix, projectID)
}

func (s *RedisEventStore) SaveEvent(ctx context.Context, e *models.TrackingEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.eventKey(e.ID), data, 0)
	pipe.ZAdd(ctx, s.projectKey(e.ProjectID), redis.Z{
		Score:  float64(e.Timestamp.UnixMilli()),
		Member: e.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

func (s *RedisEventStore) GetEvent(ctx context.Context, id string) (*models.TrackingEvent, error) {
	data, err := s.client.Get(ctx, s.eventKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	var e models.TrackingEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode event %s: %w", id, err)
	}
	return &e, nil
}

func (s *RedisEventStore) DeleteEvent(ctx context.Context, id string) (bool, error) {
	e, err := s.GetEvent(ctx, id)
	if err != nil {
		return false, err
	}
	if e == nil {
		return false, nil
	}

	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.eventKey(id))
	pipe.ZRem(ctx, s.projectKey(e.ProjectID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to delete event: %w", err)
	}
	return del.Val() > 0, nil
}

func (s *RedisEventStore) ListEvents(ctx context.Context, q EventQuery) ([]*models.TrackingEvent, error) {
	rng := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if q.From != nil {
		rng.Min = strconv.FormatInt(q.From.UnixMilli(), 10)
	}
	if q.To != nil {
		rng.Max = strconv.FormatInt(q.To.UnixMilli(), 10)
	}

	ids, err := s.client.ZRevRangeByScore(ctx, s.projectKey(q.ProjectID), rng).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan project index: %w", err)
	}

	result := make([]*models.TrackingEvent, 0, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.eventKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	for i, v := range values {
		// index entry without a body: deleted concurrently
		str, ok := v.(string)
		if !ok {
			continue
		}
		var e models.TrackingEvent
		if err := json.Unmarshal([]byte(str), &e); err != nil {
			return nil, fmt.Errorf("failed to decode event %s: %w", ids[i], err)
		}
		// millisecond scores are coarser than timestamps
		if q.Match(&e) {
			result = append(result, &e)
		}
	}

	sortNewestFirst(result)
	return result, nil
}

func (s *RedisEventStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
