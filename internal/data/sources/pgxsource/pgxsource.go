package pgxsource

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
	"github.com/yungbote/rollup-backend/internal/rollup/aggregate"
)

const documentsTable = "source_documents"

// Source pushes grouping down into Postgres over the jsonb doc column of
// source_documents. Dotted field names are nested jsonb paths.
type Source struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

func Open(ctx context.Context, dsn string, baseLog *logger.Logger) (*Source, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("missing PGX_DSN")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx ping: %w", err)
	}
	return New(pool, baseLog), nil
}

func New(pool *pgxpool.Pool, baseLog *logger.Logger) *Source {
	if baseLog == nil {
		baseLog = logger.NewNop()
	}
	return &Source{pool: pool, log: baseLog.With("source", "PgxSource")}
}

func (s *Source) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *Source) Group(ctx context.Context, q aggregate.GroupQuery) ([]types.RawRecord, error) {
	sql, args, err := BuildGroupSQL(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("group query: %w", err)
	}
	defer rows.Close()

	var out []types.RawRecord
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		if len(vals) != len(q.GroupBy)+len(q.First)+1 {
			return nil, fmt.Errorf("group query returned %d columns", len(vals))
		}
		rec := make(types.RawRecord, len(vals))
		i := 0
		for _, f := range q.GroupBy {
			rec[f] = vals[i]
			i++
		}
		for _, f := range q.First {
			rec[f] = vals[i]
			i++
		}
		rec[types.CountField] = vals[i]
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// BuildGroupSQL renders q as one GROUP BY statement. Group values are read as
// text with null coalesced to ''; first values take the jsonb value of the
// lowest id in the group.
func BuildGroupSQL(q aggregate.GroupQuery) (string, []any, error) {
	if strings.TrimSpace(q.Collection) == "" {
		return "", nil, fmt.Errorf("collection is required")
	}
	if len(q.GroupBy) == 0 {
		return "", nil, fmt.Errorf("at least one group-by field is required")
	}
	var (
		cols    []string
		groupBy []string
		args    []any
	)
	param := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	for i, f := range q.GroupBy {
		cols = append(cols, fmt.Sprintf("coalesce(doc #>> %s::text[], '') AS g%d", param(jsonPath(f)), i))
		groupBy = append(groupBy, fmt.Sprintf("%d", i+1))
	}
	for i, f := range q.First {
		cols = append(cols, fmt.Sprintf("(array_agg(doc #> %s::text[] ORDER BY id))[1] AS f%d", param(jsonPath(f)), i))
	}
	cols = append(cols, "count(*) AS count")
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE collection = %s GROUP BY %s ORDER BY min(id)",
		strings.Join(cols, ", "),
		documentsTable,
		param(q.Collection),
		strings.Join(groupBy, ", "),
	)
	return sql, args, nil
}

func jsonPath(field string) []string {
	return strings.Split(strings.TrimSpace(field), ".")
}
