package appointment

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ListCache holds the appointment lists shown to doctors and patients. It is
// best effort: failures are logged and the store is read instead.
//
// A miss hands out a fill token. Fill stores a list only while the token is
// current, so a snapshot read before an Invalidate is never written back after it.
type ListCache interface {
	Get(ctx context.Context, key string) (list []Appointment, token string, hit bool)
	Fill(ctx context.Context, key, token string, list []Appointment)
	Invalidate(ctx context.Context, keys ...string)
}

func DoctorListKey(doctorID uuid.UUID) string {
	return "appointments:doctor:" + doctorID.String()
}

func PatientListKey(email string) string {
	return "appointments:patient:" + strings.ToLower(strings.TrimSpace(email))
}

// viewKeys are the cached lists that show a.
func viewKeys(a Appointment) []string {
	return []string{DoctorListKey(a.DoctorID), PatientListKey(a.PatientEmail)}
}

func generationKey(key string) string { return key + ":gen" }

// generationTTL outlives any fill in flight.
const generationTTL = 24 * time.Hour

// fillScript sets KEYS[1] only while the generation in KEYS[2] still equals ARGV[1].
var fillScript = redis.NewScript(`
local gen = redis.call("GET", KEYS[2])
if not gen then gen = "0" end
if gen ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

type RedisListCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewRedisListCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisListCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisListCache{client: client, ttl: ttl, logger: logger}
}

// Get reads the list and its generation in one round trip. An empty token means
// the cache could not be read and must not be filled.
func (c *RedisListCache) Get(ctx context.Context, key string) ([]Appointment, string, bool) {
	vals, err := c.client.MGet(ctx, key, generationKey(key)).Result()
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("appointment list cache read failed")
		return nil, "", false
	}

	token := "0"
	if gen, ok := vals[1].(string); ok {
		token = gen
	}

	data, ok := vals[0].(string)
	if !ok {
		return nil, token, false
	}
	var list []Appointment
	if err := json.Unmarshal([]byte(data), &list); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("appointment list cache entry unreadable")
		return nil, token, false
	}
	return list, token, true
}

func (c *RedisListCache) Fill(ctx context.Context, key, token string, list []Appointment) {
	if token == "" {
		return
	}
	if list == nil {
		list = []Appointment{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("encode appointment list")
		return
	}

	stored, err := fillScript.Run(ctx, c.client,
		[]string{key, generationKey(key)},
		token, data, strconv.FormatInt(c.ttl.Milliseconds(), 10),
	).Int()
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("appointment list cache write failed")
		return
	}
	if stored == 0 {
		c.logger.Debug().Str("key", key).Msg("appointment list changed during read, cache fill skipped")
	}
}

// Invalidate bumps the generation of each key before deleting it.
func (c *RedisListCache) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Incr(ctx, generationKey(key))
			pipe.Expire(ctx, generationKey(key), generationTTL)
		}
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Strs("keys", keys).Msg("appointment list cache invalidation failed")
	}
}

type NoopListCache struct{}

func (NoopListCache) Get(context.Context, string) ([]Appointment, string, bool) {
	return nil, "", false
}
func (NoopListCache) Fill(context.Context, string, string, []Appointment) {}
func (NoopListCache) Invalidate(context.Context, ...string)                {}
