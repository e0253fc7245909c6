package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/jgivc/datasync/internal/common"
	"github.com/jgivc/datasync/internal/entity"
	"github.com/redis/go-redis/v9"
)

const (
	KeyCatalogVersion = "cv"  // STRING. Written by the refresh step, marks the catalog as initialized.
	KeyDatasetIndex   = "dsi" // SET. Ids of every dataset record.
	KeyDataset        = "ds"  // HASH. ds:{id} url: ..., new: 0|1, modified: 0|1, stale: 0|1, error: 0|1

	FieldURL = "url"

	CatalogVersion = "1"

	KeySeparator = ":"

	ScanCount = 1000
)

// Sets the given fields only when the record still exists, so a concurrent
// delete is never undone by a late status write.
var updateStatusScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

type redisCatalog struct {
	cl  *redis.Client
	log *slog.Logger
}

func NewRedisCatalog(cl *redis.Client, log *slog.Logger) *redisCatalog {
	return &redisCatalog{
		cl:  cl,
		log: log.With(slog.String("item", "RedisCatalog")),
	}
}

// Init marks the catalog as initialized. The refresh step does this before
// writing the first records.
func (r *redisCatalog) Init(ctx context.Context) error {
	if err := r.cl.SetNX(ctx, KeyCatalogVersion, CatalogVersion, 0).Err(); err != nil {
		return fmt.Errorf("cannot set catalog version: %w", err)
	}

	return nil
}

func (r *redisCatalog) Check(ctx context.Context) error {
	n, err := r.cl.Exists(ctx, KeyCatalogVersion).Result()
	if err != nil {
		return fmt.Errorf("cannot check catalog version: %w", err)
	}

	if n == 0 {
		return common.ErrCatalogNotInitialized
	}

	return nil
}

func (r *redisCatalog) Select(ctx context.Context, p Predicate) ([]*entity.Dataset, error) {
	ids, err := r.cl.SMembers(ctx, KeyDatasetIndex).Result()
	if err != nil {
		return nil, fmt.Errorf("cannot get dataset index: %w", err)
	}

	sort.Strings(ids)

	var (
		datasets []*entity.Dataset
		broken   int
	)

	for start := 0; start < len(ids); start += ScanCount {
		batch := ids[start:min(start+ScanCount, len(ids))]

		pipe := r.cl.Pipeline()
		cmds := make([]*redis.MapStringStringCmd, len(batch))
		for i, id := range batch {
			cmds[i] = pipe.HGetAll(ctx, getKey(KeyDataset, id))
		}

		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("cannot get datasets: %w", err)
		}

		for i, cmd := range cmds {
			fields := cmd.Val()
			if len(fields) == 0 {
				// Deleted after the index was read.
				continue
			}

			d, err := toDataset(batch[i], fields)
			if err != nil {
				r.log.Error("Cannot decode dataset", slog.String("id", batch[i]), slog.Any("error", err))
				broken++

				continue
			}

			if p.Match(d) {
				datasets = append(datasets, d)
			}
		}
	}

	if broken > 0 {
		r.log.Warn("Skipped undecodable datasets", slog.String("predicate", p.String()), slog.Int("broken", broken))
	}

	r.log.Debug("Select datasets", slog.String("predicate", p.String()), slog.Int("count", len(datasets)), slog.Int("broken", broken))

	return datasets, nil
}

func (r *redisCatalog) Session(ctx context.Context) (Session, error) {
	conn := r.cl.Conn()
	if err := conn.Ping(ctx).Err(); err != nil {
		conn.Close()

		return nil, fmt.Errorf("cannot ping redis connection: %w", err)
	}

	return &redisSession{conn: conn}, nil
}

func (r *redisCatalog) Save(ctx context.Context, datasets []*entity.Dataset) error {
	pipe := r.cl.TxPipeline()
	for _, d := range datasets {
		values := []any{FieldURL, d.URL}
		for _, f := range entity.Flags {
			values = append(values, string(f), formatFlag(d.Get(f)))
		}

		pipe.HSet(ctx, getKey(KeyDataset, d.ID), values...)
		pipe.SAdd(ctx, KeyDatasetIndex, d.ID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cannot save datasets: %w", err)
	}

	return nil
}

func (r *redisCatalog) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd

	_, err := r.cl.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, getKey(KeyDataset, id))
		pipe.SRem(ctx, KeyDatasetIndex, id)

		return nil
	})
	if err != nil {
		return fmt.Errorf("cannot delete dataset %s: %w", id, err)
	}

	if del.Val() == 0 {
		return common.ErrDatasetNotFound
	}

	return nil
}

func (r *redisCatalog) Close() error {
	return r.cl.Close()
}

type redisSession struct {
	conn *redis.Conn
}

func (s *redisSession) UpdateStatus(ctx context.Context, id string, u entity.StatusUpdate) error {
	return updateStatus(ctx, s.conn, id, u)
}

func (s *redisSession) Close() error {
	return s.conn.Close()
}

func updateStatus(ctx context.Context, c redis.Scripter, id string, u entity.StatusUpdate) error {
	if len(u) == 0 {
		return nil
	}

	args := make([]any, 0, len(u)*2)
	for _, f := range entity.Flags {
		if v, ok := u[f]; ok {
			args = append(args, string(f), formatFlag(v))
		}
	}

	updated, err := updateStatusScript.Run(ctx, c, []string{getKey(KeyDataset, id)}, args...).Int()
	if err != nil {
		return fmt.Errorf("cannot update dataset %s status: %w", id, err)
	}

	if updated == 0 {
		return common.ErrDatasetNotFound
	}

	return nil
}

func toDataset(id string, fields map[string]string) (*entity.Dataset, error) {
	d := &entity.Dataset{
		ID:  id,
		URL: fields[FieldURL],
	}

	u := make(entity.StatusUpdate, len(entity.Flags))
	for _, f := range entity.Flags {
		raw, ok := fields[string(f)]
		if !ok {
			u[f] = false

			continue
		}

		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("cannot parse %s flag: %w", f, err)
		}

		u[f] = v
	}

	d.Status = d.Status.Apply(u)

	return d, nil
}

func formatFlag(v bool) string {
	if v {
		return "1"
	}

	return "0"
}

func getKey(keys ...string) string {
	return strings.Join(keys, KeySeparator)
}
