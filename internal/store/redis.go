package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quillhq/quill/internal/schedule"
)

// instantFormat is the wire format for instants stored in Redis. Claim
// compares formatted strings for equality, so every writer must use it.
const instantFormat = time.RFC3339Nano

// claimScript is the optimistic-concurrency claim: it succeeds only while
// the stored next_run still equals the caller's expectation AND no claim is
// already held. Granting a claim marks the occurrence consumed (claimed_at)
// and removes the schedule from the due index, so concurrent schedulers
// that fetched the same due list cannot win a second time before Update
// advances next_run.
//
// KEYS[1] = schedule hash, KEYS[2] = due index
// ARGV[1] = schedule id, ARGV[2] = expected next_run, ARGV[3] = claim instant
var claimScript = redis.NewScript(`
if redis.call("exists", KEYS[1]) == 0 then
	return 0
end
if redis.call("hexists", KEYS[1], "claimed_at") == 1 then
	return 0
end
if redis.call("hget", KEYS[1], "enabled") ~= "1" then
	return 0
end
local es = redis.call("hget", KEYS[1], "error_state")
if es and es ~= "" then
	return 0
end
if redis.call("hget", KEYS[1], "next_run") ~= ARGV[2] then
	return 0
end
redis.call("zrem", KEYS[2], ARGV[1])
redis.call("hset", KEYS[1], "claimed_at", ARGV[3])
return 1
`)

// initScript assigns the first next_run only if none is set yet, so
// concurrent scheduler instances cannot double-initialize.
//
// KEYS[1] = schedule hash, KEYS[2] = pending set, KEYS[3] = due index
// ARGV[1] = schedule id, ARGV[2] = next_run, ARGV[3] = due score
var initScript = redis.NewScript(`
if redis.call("exists", KEYS[1]) == 0 then
	return 0
end
local nr = redis.call("hget", KEYS[1], "next_run")
if nr and nr ~= "" then
	return 0
end
redis.call("hset", KEYS[1], "next_run", ARGV[2])
redis.call("srem", KEYS[2], ARGV[1])
if redis.call("hget", KEYS[1], "enabled") == "1" then
	redis.call("zadd", KEYS[3], ARGV[3], ARGV[1])
end
return 1
`)

// updateScript writes the post-firing fields and re-indexes the schedule.
// Disabled or errored schedules stay out of the due index.
//
// KEYS[1] = schedule hash, KEYS[2] = due index
// ARGV[1] = id, ARGV[2] = next_run, ARGV[3] = last_run, ARGV[4] = run_count,
// ARGV[5] = failure_count, ARGV[6] = last_error, ARGV[7] = updated_at,
// ARGV[8] = due score
var updateScript = redis.NewScript(`
if redis.call("exists", KEYS[1]) == 0 then
	return 0
end
redis.call("hset", KEYS[1], "next_run", ARGV[2])
redis.call("hset", KEYS[1], "last_run", ARGV[3])
redis.call("hset", KEYS[1], "run_count", ARGV[4])
redis.call("hset", KEYS[1], "failure_count", ARGV[5])
redis.call("hset", KEYS[1], "last_error", ARGV[6])
redis.call("hset", KEYS[1], "updated_at", ARGV[7])
redis.call("hdel", KEYS[1], "claimed_at")
local es = redis.call("hget", KEYS[1], "error_state")
if redis.call("hget", KEYS[1], "enabled") == "1" and (not es or es == "") then
	redis.call("zadd", KEYS[2], ARGV[8], ARGV[1])
else
	redis.call("zrem", KEYS[2], ARGV[1])
end
return 1
`)

// releaseScript returns a claimed occurrence to the due index after the
// post-firing update could not be persisted. Re-indexing is guarded on the
// stored next_run still matching the releasing claimer's token, so a
// concurrent writer that advanced the schedule in the meantime wins.
//
// KEYS[1] = schedule hash, KEYS[2] = due index
// ARGV[1] = schedule id, ARGV[2] = expected next_run, ARGV[3] = due score
var releaseScript = redis.NewScript(`
if redis.call("exists", KEYS[1]) == 0 then
	return 0
end
redis.call("hdel", KEYS[1], "claimed_at")
if redis.call("hget", KEYS[1], "next_run") ~= ARGV[2] then
	return 0
end
local es = redis.call("hget", KEYS[1], "error_state")
if redis.call("hget", KEYS[1], "enabled") == "1" and (not es or es == "") then
	redis.call("zadd", KEYS[2], ARGV[3], ARGV[1])
end
return 1
`)

// RedisStore persists schedules in Redis: one hash per schedule, a ZSET
// keyed by next-run instant as the due index, and a pending set for
// schedules awaiting their first NextRun.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	// Pre-computed keys (avoid per-call string allocations)
	idsKey     string
	dueKey     string
	pendingKey string
}

// NewRedisStore connects to Redis and tests the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient wraps an existing Redis client (used by tests and
// callers that manage the client themselves).
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	prefix := "quill:"
	return &RedisStore{
		client:     client,
		keyPrefix:  prefix,
		idsKey:     prefix + "ids",
		dueKey:     prefix + "due",
		pendingKey: prefix + "pending",
	}
}

func (r *RedisStore) scheduleKey(id string) string {
	var b strings.Builder
	b.Grow(len(r.keyPrefix) + 9 + len(id)) // "schedule:" = 9 chars
	b.WriteString(r.keyPrefix)
	b.WriteString("schedule:")
	b.WriteString(id)
	return b.String()
}

// Create persists a new schedule and indexes it: pending when NextRun is
// unassigned, due when already initialized and enabled.
func (r *RedisStore) Create(ctx context.Context, s *schedule.Schedule) error {
	added, err := r.client.SAdd(ctx, r.idsKey, s.ID).Result()
	if err != nil {
		return fmt.Errorf("failed to register schedule ID: %w", err)
	}
	if added == 0 {
		return ErrAlreadyExists
	}

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, r.scheduleKey(s.ID), scheduleFields(s))
	switch {
	case s.NextRun == nil:
		pipe.SAdd(ctx, r.pendingKey, s.ID)
	case s.Enabled && s.ErrorState == "":
		pipe.ZAdd(ctx, r.dueKey, redis.Z{Score: float64(s.NextRun.Unix()), Member: s.ID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create schedule %s: %w", s.ID, err)
	}
	return nil
}

// Get returns a schedule by ID.
func (r *RedisStore) Get(ctx context.Context, id string) (*schedule.Schedule, error) {
	fields, err := r.client.HGetAll(ctx, r.scheduleKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return scheduleFromFields(id, fields)
}

// List returns all schedules.
func (r *RedisStore) List(ctx context.Context) ([]*schedule.Schedule, error) {
	ids, err := r.client.SMembers(ctx, r.idsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule IDs: %w", err)
	}
	return r.fetchByIDs(ctx, ids)
}

// Delete removes a schedule and all its index entries.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.scheduleKey(id))
	pipe.SRem(ctx, r.idsKey, id)
	pipe.SRem(ctx, r.pendingKey, id)
	pipe.ZRem(ctx, r.dueKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete schedule %s: %w", id, err)
	}
	return nil
}

// FetchDue returns schedules whose indexed next run is at or before now.
func (r *RedisStore) FetchDue(ctx context.Context, now time.Time) ([]*schedule.Schedule, error) {
	ids, err := r.client.ZRangeByScore(ctx, r.dueKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}
	return r.fetchByIDs(ctx, ids)
}

// FetchUninitialized returns schedules awaiting their first NextRun.
func (r *RedisStore) FetchUninitialized(ctx context.Context) ([]*schedule.Schedule, error) {
	ids, err := r.client.SMembers(ctx, r.pendingKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query pending schedules: %w", err)
	}
	return r.fetchByIDs(ctx, ids)
}

// InitNextRun atomically assigns the first NextRun.
func (r *RedisStore) InitNextRun(ctx context.Context, id string, nextRun time.Time) (bool, error) {
	res, err := initScript.Run(ctx, r.client,
		[]string{r.scheduleKey(id), r.pendingKey, r.dueKey},
		id,
		nextRun.UTC().Format(instantFormat),
		strconv.FormatInt(nextRun.Unix(), 10),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to initialize schedule %s: %w", id, err)
	}
	return res == 1, nil
}

// Claim attempts the optimistic-concurrency claim for one occurrence.
func (r *RedisStore) Claim(ctx context.Context, id string, expectedNextRun time.Time) (bool, error) {
	res, err := claimScript.Run(ctx, r.client,
		[]string{r.scheduleKey(id), r.dueKey},
		id,
		expectedNextRun.UTC().Format(instantFormat),
		time.Now().UTC().Format(instantFormat),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to claim schedule %s: %w", id, err)
	}
	return res == 1, nil
}

// ReleaseClaim returns an occurrence claimed by this process to the due
// index when its post-firing update could not be persisted. Without the
// release the schedule would be stranded: claimed, absent from every index,
// invisible to all future ticks.
func (r *RedisStore) ReleaseClaim(ctx context.Context, id string) error {
	s, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.NextRun == nil {
		// Pending schedules carry no claim; nothing to restore.
		return nil
	}

	err = releaseScript.Run(ctx, r.client,
		[]string{r.scheduleKey(id), r.dueKey},
		id,
		s.NextRun.UTC().Format(instantFormat),
		strconv.FormatInt(s.NextRun.Unix(), 10),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to release claim on schedule %s: %w", id, err)
	}
	return nil
}

// Update writes the post-firing fields and re-indexes the schedule.
func (r *RedisStore) Update(ctx context.Context, id string, u Update) error {
	res, err := updateScript.Run(ctx, r.client,
		[]string{r.scheduleKey(id), r.dueKey},
		id,
		u.NextRun.UTC().Format(instantFormat),
		u.LastRun.UTC().Format(instantFormat),
		strconv.FormatInt(u.RunCount, 10),
		strconv.FormatInt(u.FailureCount, 10),
		u.LastError,
		time.Now().UTC().Format(instantFormat),
		strconv.FormatInt(u.NextRun.Unix(), 10),
	).Int64()
	if err != nil {
		return fmt.Errorf("failed to update schedule %s: %w", id, err)
	}
	if res == 0 {
		return ErrNotFound
	}
	return nil
}

// SetEnabled toggles a schedule. Disabling freezes the stored NextRun and
// removes the schedule from the due index; enabling writes the recomputed
// nextRun and re-indexes.
func (r *RedisStore) SetEnabled(ctx context.Context, id string, enabled bool, nextRun *time.Time) error {
	if err := r.ensureExists(ctx, id); err != nil {
		return err
	}

	pipe := r.client.Pipeline()
	key := r.scheduleKey(id)
	pipe.HSet(ctx, key, "enabled", boolField(enabled), "updated_at", time.Now().UTC().Format(instantFormat))
	if !enabled {
		pipe.ZRem(ctx, r.dueKey, id)
	} else if nextRun != nil {
		pipe.HSet(ctx, key, "next_run", nextRun.UTC().Format(instantFormat))
		pipe.HDel(ctx, key, "claimed_at")
		pipe.SRem(ctx, r.pendingKey, id)
		pipe.ZAdd(ctx, r.dueKey, redis.Z{Score: float64(nextRun.Unix()), Member: id})
	} else {
		pipe.SAdd(ctx, r.pendingKey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set enabled for schedule %s: %w", id, err)
	}
	return nil
}

// SetErrorState flags a schedule as fatally misconfigured and withholds it
// from FetchDue until an operator clears the flag.
func (r *RedisStore) SetErrorState(ctx context.Context, id string, detail string) error {
	if err := r.ensureExists(ctx, id); err != nil {
		return err
	}

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, r.scheduleKey(id),
		"error_state", detail,
		"updated_at", time.Now().UTC().Format(instantFormat))
	pipe.ZRem(ctx, r.dueKey, id)
	pipe.SRem(ctx, r.pendingKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set error state for schedule %s: %w", id, err)
	}
	return nil
}

// ClearErrorState removes the error flag and returns the schedule to the
// pending pool, so the engine assigns a fresh NextRun on its next tick.
func (r *RedisStore) ClearErrorState(ctx context.Context, id string) error {
	if err := r.ensureExists(ctx, id); err != nil {
		return err
	}

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, r.scheduleKey(id),
		"error_state", "",
		"next_run", "",
		"updated_at", time.Now().UTC().Format(instantFormat))
	pipe.HDel(ctx, r.scheduleKey(id), "claimed_at")
	pipe.ZRem(ctx, r.dueKey, id)
	pipe.SAdd(ctx, r.pendingKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear error state for schedule %s: %w", id, err)
	}
	return nil
}

// Close releases the Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) ensureExists(ctx context.Context, id string) error {
	exists, err := r.client.Exists(ctx, r.scheduleKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to check schedule %s: %w", id, err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return nil
}

// fetchByIDs loads schedule hashes via a pipeline. Schedules deleted between
// the index read and the hash read are silently skipped.
func (r *RedisStore) fetchByIDs(ctx context.Context, ids []string) ([]*schedule.Schedule, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, r.scheduleKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to fetch schedules: %w", err)
	}

	schedules := make([]*schedule.Schedule, 0, len(ids))
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		s, err := scheduleFromFields(ids[i], fields)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, nil
}

// scheduleFields encodes a schedule as a Redis hash.
func scheduleFields(s *schedule.Schedule) map[string]interface{} {
	fields := map[string]interface{}{
		"name":           s.Name,
		"report_id":      s.ReportID,
		"frequency":      string(s.Frequency),
		"time_of_day":    s.TimeOfDay.String(),
		"timezone":       s.Timezone,
		"day_of_week":    strconv.Itoa(s.DayOfWeek),
		"day_of_month":   strconv.Itoa(s.DayOfMonth),
		"cron_expr":      s.CronExpr,
		"enabled":        boolField(s.Enabled),
		"next_run":       optionalInstant(s.NextRun),
		"last_run":       optionalInstant(s.LastRun),
		"run_count":      strconv.FormatInt(s.RunCount, 10),
		"failure_count":  strconv.FormatInt(s.FailureCount, 10),
		"last_error":     s.LastError,
		"error_state":    s.ErrorState,
		"output_formats": strings.Join(s.OutputFormats, ","),
		"recipients":     strings.Join(s.Recipients, ","),
		"created_at":     s.CreatedAt.UTC().Format(instantFormat),
		"updated_at":     s.UpdatedAt.UTC().Format(instantFormat),
	}
	return fields
}

// scheduleFromFields decodes a Redis hash into a schedule.
func scheduleFromFields(id string, fields map[string]string) (*schedule.Schedule, error) {
	tod, err := schedule.ParseTimeOfDay(fields["time_of_day"])
	if err != nil {
		return nil, fmt.Errorf("corrupt schedule %s: %w", id, err)
	}

	s := &schedule.Schedule{
		ID:         id,
		Name:       fields["name"],
		ReportID:   fields["report_id"],
		Frequency:  schedule.Frequency(fields["frequency"]),
		TimeOfDay:  tod,
		Timezone:   fields["timezone"],
		CronExpr:   fields["cron_expr"],
		Enabled:    fields["enabled"] == "1",
		LastError:  fields["last_error"],
		ErrorState: fields["error_state"],
	}

	if s.DayOfWeek, err = intField(fields, "day_of_week"); err != nil {
		return nil, fmt.Errorf("corrupt schedule %s: %w", id, err)
	}
	if s.DayOfMonth, err = intField(fields, "day_of_month"); err != nil {
		return nil, fmt.Errorf("corrupt schedule %s: %w", id, err)
	}
	if s.RunCount, err = int64Field(fields, "run_count"); err != nil {
		return nil, fmt.Errorf("corrupt schedule %s: %w", id, err)
	}
	if s.FailureCount, err = int64Field(fields, "failure_count"); err != nil {
		return nil, fmt.Errorf("corrupt schedule %s: %w", id, err)
	}
	if s.NextRun, err = instantField(fields, "next_run"); err != nil {
		return nil, fmt.Errorf("corrupt schedule %s: %w", id, err)
	}
	if s.LastRun, err = instantField(fields, "last_run"); err != nil {
		return nil, fmt.Errorf("corrupt schedule %s: %w", id, err)
	}

	if v := fields["output_formats"]; v != "" {
		s.OutputFormats = strings.Split(v, ",")
	}
	if v := fields["recipients"]; v != "" {
		s.Recipients = strings.Split(v, ",")
	}
	if v := fields["created_at"]; v != "" {
		if s.CreatedAt, err = time.Parse(instantFormat, v); err != nil {
			return nil, fmt.Errorf("corrupt schedule %s: %w", id, err)
		}
	}
	if v := fields["updated_at"]; v != "" {
		if s.UpdatedAt, err = time.Parse(instantFormat, v); err != nil {
			return nil, fmt.Errorf("corrupt schedule %s: %w", id, err)
		}
	}
	return s, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func optionalInstant(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(instantFormat)
}

func instantField(fields map[string]string, key string) (*time.Time, error) {
	v := fields[key]
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(instantFormat, v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return &t, nil
}

func intField(fields map[string]string, key string) (int, error) {
	v := fields[key]
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func int64Field(fields map[string]string, key string) (int64, error) {
	v := fields[key]
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}
