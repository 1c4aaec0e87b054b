package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"gatecheck/internal/guestlist/models"
	"gatecheck/internal/guestlist/ports"
	"gatecheck/pkg/platform/sentinel"
)

const (
	// Redis key prefix for per-event guest hashes.
	guestKeyPrefix = "guestlist:"
	// Suffix of the pub/sub channel that fans out change notifications.
	changeChannelSuffix = ":changes"
)

// transitionScript is the per-record compare-and-set behind Transition. It
// decodes the stored record, compares its status against the expected one,
// and rewrites it atomically, so two concurrent check-ins resolve to exactly
// one winner.
//
// KEYS[1] = guest hash, ARGV = id, expected status, new status, operator,
// RFC3339 timestamp. Returns {-1} when the record is missing, {0, current}
// on a status mismatch, {1, updated JSON} on success.
var transitionScript = redis.NewScript(`
local raw = redis.call('HGET', KEYS[1], ARGV[1])
if not raw then
  return {-1}
end
local rec = cjson.decode(raw)
if rec.status ~= ARGV[2] then
  return {0, rec.status}
end
rec.status = ARGV[3]
rec.timestamp = ARGV[5]
if ARGV[3] == 'checked_in' then
  rec.checked_in_by = ARGV[4]
else
  rec.checked_in_by = nil
end
local updated = cjson.encode(rec)
redis.call('HSET', KEYS[1], ARGV[1], updated)
return {1, updated}
`)

// Redis is the production guest store: one hash per event keyed by guest id,
// with a pub/sub channel per event carrying change notifications. Subscribers
// re-read the full hash on every notification, so a dropped message or a
// reconnect costs at most one stale interval, never a divergent view.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithLogger sets a logger for subscription-loop errors.
func WithLogger(logger *slog.Logger) RedisOption {
	return func(r *Redis) {
		r.logger = logger
	}
}

// NewRedis constructs a Redis-backed guest store. The client lifecycle is
// managed externally.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{client: client, logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func guestKey(eventID string) string {
	return guestKeyPrefix + eventID
}

func changeChannel(eventID string) string {
	return guestKeyPrefix + eventID + changeChannelSuffix
}

// unavailable tags a transport failure as retryable for callers while keeping
// the underlying error in the chain.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
}

func (r *Redis) Put(ctx context.Context, eventID string, record models.GuestRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal guest record: %w", err)
	}
	if err := r.client.HSet(ctx, guestKey(eventID), record.ID, raw).Err(); err != nil {
		return unavailable("put guest", err)
	}
	r.publishChange(ctx, eventID)
	return nil
}

func (r *Redis) Create(ctx context.Context, eventID string, record models.GuestRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal guest record: %w", err)
	}
	created, err := r.client.HSetNX(ctx, guestKey(eventID), record.ID, raw).Result()
	if err != nil {
		return unavailable("create guest", err)
	}
	if !created {
		return sentinel.ErrConflict
	}
	r.publishChange(ctx, eventID)
	return nil
}

func (r *Redis) Transition(ctx context.Context, eventID, id string, from, to models.GuestStatus, by string, at time.Time) (models.GuestRecord, error) {
	res, err := transitionScript.Run(ctx, r.client, []string{guestKey(eventID)},
		id, from.String(), to.String(), by, at.UTC().Format(time.RFC3339Nano)).Slice()
	if err != nil {
		return models.GuestRecord{}, unavailable("transition guest", err)
	}
	if len(res) == 0 {
		return models.GuestRecord{}, fmt.Errorf("transition guest: empty script reply")
	}
	code, _ := res[0].(int64)
	switch code {
	case -1:
		return models.GuestRecord{}, sentinel.ErrNotFound
	case 0:
		// Report the record as the loser saw it so callers can classify the
		// conflict without a second read.
		cur, _ := r.client.HGet(ctx, guestKey(eventID), id).Result()
		var rec models.GuestRecord
		_ = json.Unmarshal([]byte(cur), &rec)
		return rec, sentinel.ErrConflict
	}
	var rec models.GuestRecord
	raw, _ := res[1].(string)
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return models.GuestRecord{}, fmt.Errorf("unmarshal guest record: %w", err)
	}
	r.publishChange(ctx, eventID)
	return rec, nil
}

func (r *Redis) Delete(ctx context.Context, eventID, id string) error {
	removed, err := r.client.HDel(ctx, guestKey(eventID), id).Result()
	if err != nil {
		return unavailable("delete guest", err)
	}
	if removed > 0 {
		r.publishChange(ctx, eventID)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, eventID, id string) (models.GuestRecord, error) {
	raw, err := r.client.HGet(ctx, guestKey(eventID), id).Result()
	if err == redis.Nil {
		return models.GuestRecord{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.GuestRecord{}, unavailable("get guest", err)
	}
	var rec models.GuestRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return models.GuestRecord{}, fmt.Errorf("unmarshal guest record: %w", err)
	}
	return rec, nil
}

func (r *Redis) List(ctx context.Context, eventID string) ([]models.GuestRecord, error) {
	return r.snapshot(ctx, eventID)
}

// Subscribe opens the pub/sub channel for the event and primes the consumer
// with the current snapshot. Each notification triggers a fresh full read.
func (r *Redis) Subscribe(ctx context.Context, eventID string) (ports.Subscription, error) {
	pubsub := r.client.Subscribe(ctx, changeChannel(eventID))
	// Confirm the subscription before handing it out; a dead connection
	// should fail Subscribe, not surface as a silent feed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, unavailable("subscribe guestlist", err)
	}

	sub := &redisSub{
		store:   r,
		eventID: eventID,
		pubsub:  pubsub,
		ch:      make(chan []models.GuestRecord, 1),
		done:    make(chan struct{}),
	}
	go sub.run(ctx)
	return sub, nil
}

func (r *Redis) snapshot(ctx context.Context, eventID string) ([]models.GuestRecord, error) {
	raw, err := r.client.HGetAll(ctx, guestKey(eventID)).Result()
	if err != nil {
		return nil, unavailable("list guests", err)
	}
	out := make([]models.GuestRecord, 0, len(raw))
	for id, val := range raw {
		var rec models.GuestRecord
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			r.logger.Warn("skipping undecodable guest record", "event_id", eventID, "guest_id", id, "error", err)
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Redis) publishChange(ctx context.Context, eventID string) {
	if err := r.client.Publish(ctx, changeChannel(eventID), eventID).Err(); err != nil {
		// Publish failure only delays fan-out: subscribers refresh on the
		// next committed mutation. The write itself already succeeded.
		r.logger.Warn("publish guestlist change failed", "event_id", eventID, "error", err)
	}
}

type redisSub struct {
	store   *Redis
	eventID string
	pubsub  *redis.PubSub
	ch      chan []models.GuestRecord
	done    chan struct{}
}

func (s *redisSub) C() <-chan []models.GuestRecord {
	return s.ch
}

func (s *redisSub) Close() {
	select {
	case <-s.done:
		return
	default:
	}
	close(s.done)
	_ = s.pubsub.Close()
}

// run is the single writer to s.ch: it pushes the initial snapshot and then a
// fresh one per change notification, conflating when the consumer lags.
func (s *redisSub) run(ctx context.Context) {
	defer close(s.ch)

	if snap, err := s.store.snapshot(ctx, s.eventID); err == nil {
		s.push(snap)
	} else {
		s.store.logger.Warn("initial guestlist snapshot failed", "event_id", s.eventID, "error", err)
	}

	msgs := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = s.pubsub.Close()
			return
		case <-s.done:
			return
		case _, ok := <-msgs:
			if !ok {
				return
			}
			snap, err := s.store.snapshot(ctx, s.eventID)
			if err != nil {
				// Transient read failure: keep the subscription alive and
				// resume with a fresh snapshot on the next notification.
				s.store.logger.Warn("guestlist snapshot failed", "event_id", s.eventID, "error", err)
				continue
			}
			s.push(snap)
		}
	}
}

func (s *redisSub) push(snap []models.GuestRecord) {
	for {
		select {
		case s.ch <- snap:
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}
