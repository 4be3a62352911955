package choropleth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedLoop(t *testing.T, w *Widget) *Loop {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	loop := NewLoop(w)
	loop.Start(ctx)
	return loop
}

func TestLoop_Do(t *testing.T) {
	w := loadedWidget(t)
	loop := startedLoop(t, w)
	ctx := context.Background()

	require.NoError(t, loop.Do(ctx, func(w *Widget) error {
		return w.ShowColumn("gdp")
	}))
	st, err := loop.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gdp", st.Column)

	boom := errors.New("boom")
	err = loop.Do(ctx, func(*Widget) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestLoop_PostRunsInOrder(t *testing.T) {
	w := loadedWidget(t)
	loop := startedLoop(t, w)

	var seen []string
	for _, c := range []string{"gdp", "pop", "gdp"} {
		require.True(t, loop.Post(func(w *Widget) {
			_ = w.ShowColumn(c)
			seen = append(seen, w.ShownColumn())
		}))
	}
	require.NoError(t, loop.Do(context.Background(), func(*Widget) error { return nil }))
	assert.Equal(t, []string{"gdp", "pop", "gdp"}, seen)
}

func TestLoop_Closed(t *testing.T) {
	w := loadedWidget(t)
	ctx, cancel := context.WithCancel(context.Background())
	loop := NewLoop(w)
	loop.Start(ctx)
	cancel()
	<-loop.Done()

	assert.False(t, loop.Post(func(*Widget) {}))
	err := loop.Do(context.Background(), func(*Widget) error { return nil })
	assert.ErrorIs(t, err, ErrLoopClosed)
}

func TestLoop_DoContextCancelled(t *testing.T) {
	w := loadedWidget(t)
	loop := NewLoop(w) // never started, so jobs queue up

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := loop.Do(ctx, func(*Widget) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoop_LoadSourceFile(t *testing.T) {
	w, err := New(DefaultConfig())
	require.NoError(t, err)
	loop := startedLoop(t, w)

	finished := false
	err = loop.LoadSource(context.Background(), writeDataset(t, sampleGeoJSON), DataConfig{},
		func(w *Widget) { finished = w.Ready() })
	require.NoError(t, err)

	st, err := loop.State(context.Background())
	require.NoError(t, err)
	assert.True(t, finished)
	assert.True(t, st.Ready)
	assert.Equal(t, "gdp", st.Column)
}

func TestLoop_LoadSourceHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(bareGeoJSON))
	}))
	defer server.Close()

	w, err := New(DefaultConfig())
	require.NoError(t, err)
	loop := startedLoop(t, w)

	err = loop.LoadSource(context.Background(), server.URL, DataConfig{IndexColumn: "name", DefaultColumn: "pop"}, nil)
	require.NoError(t, err)

	st, err := loop.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pop", st.Column)
	assert.Equal(t, []string{"name", "area", "pop"}, st.Columns)
}

func TestLoop_LoadSourceFailureLeavesNotReady(t *testing.T) {
	log := &eventLog{}
	w := loadedWidget(t, WithListener(log.listen))
	loop := startedLoop(t, w)

	called := false
	err := loop.LoadSource(context.Background(), filepath.Join(t.TempDir(), "missing.geojson"), DataConfig{},
		func(*Widget) { called = true })
	require.Error(t, err)

	st, err := loop.State(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Ready)
	assert.False(t, called)

	var kinds []EventKind
	require.NoError(t, loop.Do(context.Background(), func(*Widget) error {
		kinds = log.kinds()
		return nil
	}))
	assert.Equal(t, EventLoadFailed, kinds[len(kinds)-1])
}

func TestLoop_LoadSourceBadMetadata(t *testing.T) {
	w, err := New(DefaultConfig())
	require.NoError(t, err)
	loop := startedLoop(t, w)

	err = loop.LoadSource(context.Background(), writeDataset(t, bareGeoJSON), DataConfig{}, nil)
	assert.ErrorIs(t, err, ErrMissingIndex)
}
