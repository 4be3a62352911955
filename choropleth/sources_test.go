package choropleth

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeHashes struct {
	hashes map[string]map[string]string
	err    error
}

func (f *fakeHashes) HGetAll(_ context.Context, key string) *redis.MapStringStringCmd {
	return redis.NewMapStringStringResult(f.hashes[key], f.err)
}

type fakeRow struct {
	index string
	value *float64
}

// fakeRows implements pgx.Rows over (index, value) pairs.
type fakeRows struct {
	rows    []fakeRow
	pos     int
	scanErr error
	err     error
	closed  bool
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.rows[r.pos-1]
	*dest[0].(*string) = row.index
	*dest[1].(**float64) = row.value
	return nil
}

func (r *fakeRows) Values() ([]any, error) {
	row := r.rows[r.pos-1]
	return []any{row.index, row.value}, nil
}

type fakeQuerier struct {
	rows  *fakeRows
	err   error
	query string
}

func (q *fakeQuerier) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	q.query = sql
	if q.err != nil {
		return nil, q.err
	}
	return q.rows, nil
}

func ptr(v float64) *float64 { return &v }

// mockSource is a ValueSource with scripted Fetch results.
type mockSource struct {
	mock.Mock
	column string
}

func (m *mockSource) Column() string { return m.column }

func (m *mockSource) Fetch(ctx context.Context) (map[string]Value, error) {
	args := m.Called(ctx)
	values, _ := args.Get(0).(map[string]Value)
	return values, args.Error(1)
}

func TestRedisSource_Fetch(t *testing.T) {
	client := &fakeHashes{hashes: map[string]map[string]string{
		"choromap:live": {"A": "1.5", "B": " 2 ", "C": "n/a"},
	}}
	src := NewRedisSource(client, "choromap:live", "live")

	assert.Equal(t, "live", src.Column())
	values, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]Value{"A": Num(1.5), "B": Num(2), "C": Absent}, values)
}

func TestRedisSource_FetchError(t *testing.T) {
	client := &fakeHashes{err: errors.New("connection refused")}
	_, err := NewRedisSource(client, "k", "live").Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis HGETALL k")
}

func TestPostgresSource_Fetch(t *testing.T) {
	rows := &fakeRows{rows: []fakeRow{{"A", ptr(100)}, {"B", nil}}}
	db := &fakeQuerier{rows: rows}
	src := NewPostgresSource(db, "SELECT name, pop FROM census", "census")

	values, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]Value{"A": Num(100), "B": Absent}, values)
	assert.Equal(t, "SELECT name, pop FROM census", db.query)
	assert.True(t, rows.closed)
}

func TestPostgresSource_Errors(t *testing.T) {
	tests := []struct {
		name string
		db   *fakeQuerier
	}{
		{name: "query", db: &fakeQuerier{err: errors.New("syntax error")}},
		{name: "scan", db: &fakeQuerier{rows: &fakeRows{rows: []fakeRow{{"A", nil}}, scanErr: errors.New("bad type")}}},
		{name: "rows", db: &fakeQuerier{rows: &fakeRows{err: errors.New("conn reset")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPostgresSource(tt.db, "SELECT 1", "census").Fetch(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestSourceSet_Refresh(t *testing.T) {
	w := loadedWidget(t)
	loop := startedLoop(t, w)

	client := &fakeHashes{hashes: map[string]map[string]string{"live": {"A": "5", "B": "7"}}}
	set := NewSourceSet()
	set.add(SourceConfig{Kind: SourceRedis, Column: "live", Key: "live", Default: ptr(0), Show: true},
		NewRedisSource(client, "live", "live"))
	set.add(SourceConfig{Kind: SourcePostgres, Column: "census", Query: "q"},
		NewPostgresSource(&fakeQuerier{rows: &fakeRows{rows: []fakeRow{{"C", ptr(9)}}}}, "q", "census"))

	assert.Equal(t, []string{"live", "census"}, set.Columns())
	assert.Equal(t, 2, set.RefreshAll(context.Background(), loop))

	var live, census []Value
	var shown string
	require.NoError(t, loop.Do(context.Background(), func(w *Widget) error {
		live = w.Store().Values("live")
		census = w.Store().Values("census")
		shown = w.ShownColumn()
		return nil
	}))
	assert.Equal(t, []Value{Num(5), Num(7), Num(0)}, live, "default fills uncovered regions")
	assert.Equal(t, []Value{Absent, Absent, Num(9)}, census)
	assert.Equal(t, "live", shown, "show sources are displayed")

	assert.ErrorIs(t, set.Refresh(context.Background(), loop, "missing"), ErrUnknownColumn)
}

func TestSourceSet_RefreshAllSkipsFailures(t *testing.T) {
	w := loadedWidget(t)
	loop := startedLoop(t, w)

	set := NewSourceSet(
		NewRedisSource(&fakeHashes{err: errors.New("down")}, "k", "live"),
		NewRedisSource(&fakeHashes{hashes: map[string]map[string]string{"k": {"A": "1"}}}, "k", "other"),
	)
	assert.Equal(t, 1, set.RefreshAll(context.Background(), loop))
}

func TestOpenSources(t *testing.T) {
	set, err := OpenSources(context.Background(), DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, set.Columns())
	set.Close()

	t.Setenv("DATABASE_URL", "")
	cfg := DefaultConfig()
	cfg.Sources = []SourceConfig{{Kind: SourcePostgres, Column: "census", Query: "q"}}
	_, err = OpenSources(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEnvOr(t *testing.T) {
	t.Setenv("CHOROMAP_TEST_ENV", "set")
	assert.Equal(t, "set", envOr("CHOROMAP_TEST_ENV", "fallback"))
	t.Setenv("CHOROMAP_TEST_ENV", "")
	assert.Equal(t, "fallback", envOr("CHOROMAP_TEST_ENV", "fallback"))
}

func TestSourceSet_RefreshFetchesOncePerCall(t *testing.T) {
	w := loadedWidget(t)
	loop := startedLoop(t, w)

	src := &mockSource{column: "rain"}
	src.On("Fetch", mock.Anything).Return(map[string]Value{"B": Num(3)}, nil).Once()
	src.On("Fetch", mock.Anything).Return(nil, errors.New("timeout")).Once()

	set := NewSourceSet(src)
	require.NoError(t, set.Refresh(context.Background(), loop, "rain"))
	assert.Error(t, set.Refresh(context.Background(), loop, "rain"))
	src.AssertExpectations(t)

	var rain []Value
	require.NoError(t, loop.Do(context.Background(), func(w *Widget) error {
		rain = w.Store().Values("rain")
		return nil
	}))
	assert.Equal(t, []Value{Absent, Num(3), Absent}, rain, "a failed fetch keeps the last values")
}
