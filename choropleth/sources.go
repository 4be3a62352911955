package choropleth

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// ValueSource supplies the values of one column keyed by region index.
type ValueSource interface {
	Column() string
	Fetch(ctx context.Context) (map[string]Value, error)
}

// hashGetter is the subset of *redis.Client used by RedisSource.
type hashGetter interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// RedisSource reads a column from a Redis hash whose fields are region
// indexes and whose values are numbers. Empty or non-numeric fields are
// absent.
type RedisSource struct {
	client hashGetter
	key    string
	column string
}

// NewRedisSource returns a source reading hash key for column.
func NewRedisSource(client hashGetter, key, column string) *RedisSource {
	return &RedisSource{client: client, key: key, column: column}
}

// Column implements ValueSource.
func (s *RedisSource) Column() string { return s.column }

// Fetch implements ValueSource.
func (s *RedisSource) Fetch(ctx context.Context) (map[string]Value, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis HGETALL %s: %w", s.key, err)
	}
	values := make(map[string]Value, len(fields))
	for index, raw := range fields {
		n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			values[index] = Absent
			continue
		}
		values[index] = Num(n)
	}
	return values, nil
}

// rowQuerier is the subset of *pgxpool.Pool used by PostgresSource.
type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSource reads a column from a query returning (index text,
// value double precision) rows. NULL values are absent.
type PostgresSource struct {
	db     rowQuerier
	query  string
	column string
}

// NewPostgresSource returns a source running query for column.
func NewPostgresSource(db rowQuerier, query, column string) *PostgresSource {
	return &PostgresSource{db: db, query: query, column: column}
}

// Column implements ValueSource.
func (s *PostgresSource) Column() string { return s.column }

// Fetch implements ValueSource.
func (s *PostgresSource) Fetch(ctx context.Context) (map[string]Value, error) {
	rows, err := s.db.Query(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", s.column, err)
	}
	defer rows.Close()

	values := make(map[string]Value)
	for rows.Next() {
		var index string
		var v *float64
		if err := rows.Scan(&index, &v); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", s.column, err)
		}
		if v == nil {
			values[index] = Absent
		} else {
			values[index] = Num(*v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading %s rows: %w", s.column, err)
	}
	return values, nil
}

// SourceSet holds the configured value sources and their connections.
type SourceSet struct {
	sources map[string]ValueSource
	specs   map[string]SourceConfig
	order   []string
	closers []func()
}

// OpenSources connects to the backends named by cfg.Sources. REDIS_ADDR,
// REDIS_PASSWORD and DATABASE_URL override the configured connection
// settings.
func OpenSources(ctx context.Context, cfg *Config) (*SourceSet, error) {
	set := &SourceSet{
		sources: make(map[string]ValueSource),
		specs:   make(map[string]SourceConfig),
	}
	if len(cfg.Sources) == 0 {
		return set, nil
	}

	var rdb *redis.Client
	var pool *pgxpool.Pool
	for _, sc := range cfg.Sources {
		switch sc.Kind {
		case SourceRedis:
			if rdb == nil {
				addr := envOr("REDIS_ADDR", cfg.Redis.Addr)
				if addr == "" {
					addr = "localhost:6379"
				}
				rdb = redis.NewClient(&redis.Options{
					Addr:     addr,
					Password: envOr("REDIS_PASSWORD", cfg.Redis.Password),
					DB:       cfg.Redis.DB,
				})
				if err := rdb.Ping(ctx).Err(); err != nil {
					set.Close()
					_ = rdb.Close()
					return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
				}
				client := rdb
				set.closers = append(set.closers, func() { _ = client.Close() })
				log.Printf("[sources] connected to redis at %s", addr)
			}
			set.add(sc, NewRedisSource(rdb, sc.Key, sc.Column))
		case SourcePostgres:
			if pool == nil {
				url := envOr("DATABASE_URL", cfg.Postgres.URL)
				if url == "" {
					set.Close()
					return nil, fmt.Errorf("%w: postgres source %s has no database URL", ErrInvalidConfig, sc.Column)
				}
				p, err := pgxpool.New(ctx, url)
				if err != nil {
					set.Close()
					return nil, fmt.Errorf("creating postgres pool: %w", err)
				}
				if err := p.Ping(ctx); err != nil {
					p.Close()
					set.Close()
					return nil, fmt.Errorf("connecting to postgres: %w", err)
				}
				pool = p
				set.closers = append(set.closers, p.Close)
				log.Printf("[sources] connected to postgres")
			}
			set.add(sc, NewPostgresSource(pool, sc.Query, sc.Column))
		default:
			set.Close()
			return nil, fmt.Errorf("%w: source kind %q", ErrInvalidConfig, sc.Kind)
		}
	}
	return set, nil
}

// NewSourceSet wraps already constructed sources.
func NewSourceSet(sources ...ValueSource) *SourceSet {
	set := &SourceSet{
		sources: make(map[string]ValueSource),
		specs:   make(map[string]SourceConfig),
	}
	for _, s := range sources {
		set.add(SourceConfig{Column: s.Column()}, s)
	}
	return set
}

func (s *SourceSet) add(sc SourceConfig, src ValueSource) {
	if _, ok := s.sources[sc.Column]; !ok {
		s.order = append(s.order, sc.Column)
	}
	s.sources[sc.Column] = src
	s.specs[sc.Column] = sc
}

// Columns returns the source columns in configuration order.
func (s *SourceSet) Columns() []string {
	return append([]string(nil), s.order...)
}

// Refresh fetches column's values and adds them to the widget through the
// loop. Regions missing from the result get the configured default, or
// stay absent. The column is shown when its source has show set.
func (s *SourceSet) Refresh(ctx context.Context, l *Loop, column string) error {
	src, ok := s.sources[column]
	if !ok {
		return fmt.Errorf("%w: no source for %q", ErrUnknownColumn, column)
	}
	values, err := src.Fetch(ctx)
	if err != nil {
		return err
	}
	spec := s.specs[column]
	var fill Filler
	if spec.Default != nil {
		fill = ConstFiller(Num(*spec.Default))
	}
	return l.Do(ctx, func(w *Widget) error {
		return w.AddPlottedData(column, values, fill, !spec.Show)
	})
}

// RefreshAll refreshes every source, logging failures. It returns the
// number of columns refreshed.
func (s *SourceSet) RefreshAll(ctx context.Context, l *Loop) int {
	n := 0
	for _, column := range s.order {
		if err := s.Refresh(ctx, l, column); err != nil {
			log.Printf("[sources] refreshing %s: %v", column, err)
			continue
		}
		n++
	}
	return n
}

// Close releases all backend connections.
func (s *SourceSet) Close() {
	for _, c := range s.closers {
		c()
	}
	s.closers = nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
