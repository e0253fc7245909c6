package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jgivc/datasync/internal/common"
	"github.com/jgivc/datasync/internal/entity"
)

const (
	TableName = "datasets"

	createTableSQL = `CREATE TABLE IF NOT EXISTS datasets (
	id       TEXT PRIMARY KEY,
	url      TEXT NOT NULL,
	"new"    BOOLEAN NOT NULL DEFAULT TRUE,
	modified BOOLEAN NOT NULL DEFAULT FALSE,
	stale    BOOLEAN NOT NULL DEFAULT FALSE,
	"error"  BOOLEAN NOT NULL DEFAULT FALSE
)`

	selectSQL = `SELECT id, url, "new", modified, stale, "error" FROM datasets WHERE %s ORDER BY id`

	upsertSQL = `INSERT INTO datasets (id, url, "new", modified, stale, "error")
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
	url = EXCLUDED.url,
	"new" = EXCLUDED."new",
	modified = EXCLUDED.modified,
	stale = EXCLUDED.stale,
	"error" = EXCLUDED."error"`

	deleteSQL = `DELETE FROM datasets WHERE id = $1`
)

func (p Predicate) where() string {
	switch p {
	case SelectPending:
		return `("new" OR modified) AND NOT "error"`
	case SelectErrored:
		return `"error"`
	case SelectStale:
		return `stale`
	}

	return "FALSE"
}

type postgresCatalog struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewPostgresCatalog(pool *pgxpool.Pool, log *slog.Logger) *postgresCatalog {
	return &postgresCatalog{
		pool: pool,
		log:  log.With(slog.String("item", "PostgresCatalog")),
	}
}

// Init creates the datasets table. The refresh step owns the schema; this
// mirrors it for seeding.
func (p *postgresCatalog) Init(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("cannot create %s table: %w", TableName, err)
	}

	return nil
}

func (p *postgresCatalog) Check(ctx context.Context) error {
	var name *string
	if err := p.pool.QueryRow(ctx, "SELECT to_regclass($1)::text", TableName).Scan(&name); err != nil {
		return fmt.Errorf("cannot check %s table: %w", TableName, err)
	}

	if name == nil {
		return common.ErrCatalogNotInitialized
	}

	return nil
}

func (p *postgresCatalog) Select(ctx context.Context, pr Predicate) ([]*entity.Dataset, error) {
	rows, err := p.pool.Query(ctx, fmt.Sprintf(selectSQL, pr.where()))
	if err != nil {
		return nil, fmt.Errorf("cannot select %s datasets: %w", pr, err)
	}

	datasets, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*entity.Dataset, error) {
		d := &entity.Dataset{}
		err := row.Scan(&d.ID, &d.URL, &d.New, &d.Modified, &d.Stale, &d.Error)

		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("cannot read %s datasets: %w", pr, err)
	}

	p.log.Debug("Select datasets", slog.String("predicate", pr.String()), slog.Int("count", len(datasets)))

	return datasets, nil
}

func (p *postgresCatalog) Session(ctx context.Context) (Session, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot acquire postgres connection: %w", err)
	}

	return &postgresSession{conn: conn}, nil
}

func (p *postgresCatalog) Save(ctx context.Context, datasets []*entity.Dataset) error {
	batch := &pgx.Batch{}
	for _, d := range datasets {
		batch.Queue(upsertSQL, d.ID, d.URL, d.New, d.Modified, d.Stale, d.Error)
	}

	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("cannot save datasets: %w", err)
	}

	return nil
}

func (p *postgresCatalog) Delete(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, deleteSQL, id)
	if err != nil {
		return fmt.Errorf("cannot delete dataset %s: %w", id, err)
	}

	if tag.RowsAffected() == 0 {
		return common.ErrDatasetNotFound
	}

	return nil
}

func (p *postgresCatalog) Close() error {
	p.pool.Close()

	return nil
}

type postgresSession struct {
	conn *pgxpool.Conn
}

// UpdateStatus runs a single UPDATE statement, which postgres applies atomically.
func (s *postgresSession) UpdateStatus(ctx context.Context, id string, u entity.StatusUpdate) error {
	query, args := updateStatusSQL(id, u)
	if query == "" {
		return nil
	}

	tag, err := s.conn.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("cannot update dataset %s status: %w", id, err)
	}

	if tag.RowsAffected() == 0 {
		return common.ErrDatasetNotFound
	}

	return nil
}

func (s *postgresSession) Close() error {
	s.conn.Release()

	return nil
}

func updateStatusSQL(id string, u entity.StatusUpdate) (string, []any) {
	if len(u) == 0 {
		return "", nil
	}

	sets := make([]string, 0, len(u))
	args := []any{id}
	for _, f := range entity.Flags {
		v, ok := u[f]
		if !ok {
			continue
		}

		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", pgx.Identifier{string(f)}.Sanitize(), len(args)))
	}

	return fmt.Sprintf("UPDATE %s SET %s WHERE id = $1", TableName, strings.Join(sets, ", ")), args
}
