package calls

import (
	"context"
	"sort"
	"time"

	"voice-banking/pkg/utils"

	"github.com/redis/go-redis/v9"
)

const liveCallKeyPrefix = "voicebank:calls:live:"

// RedisMirror stores live-call snapshots in Redis so any instance can list the
// whole fleet. Entries expire on their own if an instance dies mid-call.
type RedisMirror struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisMirror(rdb *redis.Client, ttl time.Duration) *RedisMirror {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisMirror{rdb: rdb, ttl: ttl}
}

func (m *RedisMirror) Publish(ctx context.Context, ac ActiveCall) error {
	return utils.PutJSON(ctx, m.rdb, liveCallKeyPrefix+ac.CallID, ac, m.ttl)
}

func (m *RedisMirror) Remove(ctx context.Context, callID string) error {
	return m.rdb.Del(ctx, liveCallKeyPrefix+callID).Err()
}

// List returns every mirrored call ordered by start time.
func (m *RedisMirror) List(ctx context.Context) ([]ActiveCall, error) {
	var out []ActiveCall
	iter := m.rdb.Scan(ctx, 0, liveCallKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		var ac ActiveCall
		ok, err := utils.GetJSON(ctx, m.rdb, iter.Val(), &ac)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, ac)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}
