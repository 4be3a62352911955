package choropleth

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/paulmach/orb"
)

// Hooks override parts of the built-in behavior. Each nil hook falls back to
// the default algorithm.
type Hooks struct {
	// Legend returns SVG markup drawn in place of the built-in legend.
	Legend func(w *Widget) string
	// Selector returns the selector model; a nil result hides the selector.
	Selector func(w *Widget) *Selector
	// ColorScale returns the scale used to color values of the shown
	// column, given in store order.
	ColorScale func(w *Widget, values []Value) *Scale
	// InfoLabel returns the info panel markup for a clicked region.
	InfoLabel func(w *Widget, r *Region) string
	// Projection returns the projection fitted to a dataset.
	Projection func(w *Widget, ds *Dataset) Projection
	// SelectorText translates a column name into selector option text.
	SelectorText func(column string) string
}

// EventKind names a widget state change.
type EventKind string

const (
	EventLoaded            EventKind = "loaded"
	EventLoadFailed        EventKind = "load_failed"
	EventColumnShown       EventKind = "column_shown"
	EventColumnAdded       EventKind = "column_added"
	EventColumnRemoved     EventKind = "column_removed"
	EventValuesUpdated     EventKind = "values_updated"
	EventRegionClicked     EventKind = "region_clicked"
	EventBackgroundClicked EventKind = "background_clicked"
	EventTransformed       EventKind = "transformed"
)

// Event describes one widget state change.
type Event struct {
	Kind   EventKind
	Column string
	Region string
	Err    error
}

// Listener observes widget events. It runs on the widget's goroutine and
// may read the widget.
type Listener func(w *Widget, e Event)

// Option configures a Widget.
type Option func(*Widget)

// WithHooks installs override hooks.
func WithHooks(h Hooks) Option {
	return func(w *Widget) {
		w.hooks = h
	}
}

// WithListener adds an event listener.
func WithListener(l Listener) Option {
	return func(w *Widget) {
		w.listeners = append(w.listeners, l)
	}
}

// Widget is a choropleth map: a region store, the shapes drawn for it, the
// color scale of the shown column, the legend, the selector and the view
// transform. A Widget is not safe for concurrent use; run it on a Loop.
type Widget struct {
	id         string
	cfg        *Config
	hooks      Hooks
	listeners  []Listener
	start, end colorful.Color

	store    *Store
	renderer *Renderer
	view     *View
	selector *Selector
	proj     Projection
	fixed    *Scale

	ready bool
	shown string

	animator   *Animator
	dispatcher Dispatcher
}

// New validates cfg and returns a widget that is not ready until Load.
func New(cfg *Config, opts ...Option) (*Widget, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	w := &Widget{
		id:       uuid.NewString(),
		cfg:      cfg,
		start:    mustColor(cfg.Legend.Colors.ScaleStart),
		end:      mustColor(cfg.Legend.Colors.ScaleEnd),
		store:    NewStore(),
		renderer: NewRenderer(cfg),
		view:     NewView(cfg.Canvas.Width, cfg.Canvas.Height, cfg.Zoom),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// ID returns the widget instance id.
func (w *Widget) ID() string { return w.id }

// Config returns the widget configuration.
func (w *Widget) Config() *Config { return w.cfg }

// Ready reports whether data has been loaded and interaction is enabled.
func (w *Widget) Ready() bool { return w.ready }

// Store returns the region store.
func (w *Widget) Store() *Store { return w.store }

// Renderer returns the renderer.
func (w *Widget) Renderer() *Renderer { return w.renderer }

// View returns the view transform holder.
func (w *Widget) View() *View { return w.view }

// Selector returns the selector model, nil when hidden.
func (w *Widget) Selector() *Selector { return w.selector }

// Projection returns the projection of the last load.
func (w *Widget) Projection() Projection { return w.proj }

// ShownColumn returns the column currently displayed.
func (w *Widget) ShownColumn() string { return w.shown }

// Columns returns the registered column names.
func (w *Widget) Columns() []string { return w.store.Columns() }

func (w *Widget) emit(e Event) {
	for _, l := range w.listeners {
		l(w, e)
	}
}

// MarkLoading drops the ready flag while a new dataset is fetched.
func (w *Widget) MarkLoading() {
	w.ready = false
}

// LoadFailed records a failed dataset fetch. The widget stays not ready.
func (w *Widget) LoadFailed(err error) {
	w.ready = false
	log.Printf("[widget] %s: load failed: %v", w.id, err)
	w.emit(Event{Kind: EventLoadFailed, Err: err})
}

// Load populates the widget from ds: regions are stored, the projection is
// fitted, shapes are bound, the default column is shown and the selector is
// built. The view is reset. On error the widget stays not ready.
func (w *Widget) Load(ds *Dataset, meta Metadata) error {
	w.ready = false
	if err := w.store.Load(ds.Features, meta.IndexColumn, meta.Columns); err != nil {
		w.LoadFailed(err)
		return fmt.Errorf("loading regions: %w", err)
	}

	if w.hooks.Projection != nil {
		w.proj = w.hooks.Projection(w, ds)
	} else {
		geoms := make([]orb.Geometry, 0, w.store.Len())
		for _, r := range w.store.Regions() {
			geoms = append(geoms, r.Geometry)
		}
		w.proj = FitMercator(geoms, w.cfg.Canvas.Width, w.cfg.Canvas.Height, w.cfg.MapScalingConstant)
	}

	w.view.Reset()
	w.renderer.BindShapes(w.store, w.proj, w.view.K())

	w.shown = ""
	w.renderer.Clear()
	if meta.DefaultColumn != "" {
		if err := w.showColumn(meta.DefaultColumn); err != nil {
			w.LoadFailed(err)
			return fmt.Errorf("showing default column: %w", err)
		}
	}
	w.refreshSelector()
	w.ready = true
	log.Printf("[widget] %s: loaded %d regions, %d columns, showing %q",
		w.id, w.store.Len(), len(w.store.Columns()), w.shown)
	w.emit(Event{Kind: EventLoaded, Column: w.shown})
	return nil
}

// ShowColumn displays column: its values are classified once and both the
// fills and the legend are rebuilt from that classification.
func (w *Widget) ShowColumn(column string) error {
	if !w.ready {
		return ErrNotReady
	}
	return w.showColumn(column)
}

func (w *Widget) showColumn(column string) error {
	if !w.store.HasColumn(column) {
		return fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}
	values := w.store.Values(column)

	var scale *Scale
	switch {
	case w.hooks.ColorScale != nil:
		scale = w.hooks.ColorScale(w, values)
	case w.fixed != nil:
		scale = w.fixed
	default:
		scale = QuantileScale(values, w.cfg.Legend.BinCount, w.start, w.end)
	}
	if err := w.renderer.Paint(column, values, scale); err != nil {
		return fmt.Errorf("painting %q: %w", column, err)
	}
	if w.hooks.Legend != nil {
		w.renderer.SetCustomLegend(w.hooks.Legend(w))
	}
	w.shown = column

	if s, ok := w.renderer.Highlighted(); ok {
		if r, found := w.store.Region(s.Index); found {
			w.renderer.info = w.infoLabel(r)
		}
	}
	if w.selector != nil {
		w.selector.Select(column)
	}
	w.emit(Event{Kind: EventColumnShown, Column: column})
	return nil
}

// repaint redraws the shown column after its values changed.
func (w *Widget) repaint() error {
	if w.shown == "" {
		return nil
	}
	return w.showColumn(w.shown)
}

func (w *Widget) refreshSelector() {
	if w.hooks.Selector != nil {
		w.selector = w.hooks.Selector(w)
	} else {
		w.selector = BuildSelector(w.store.Columns(), w.store.IndexColumn(),
			w.cfg.Selector.IncludeIndex, w.hooks.SelectorText)
	}
	if w.selector != nil {
		w.selector.Select(w.shown)
	}
}

// SetValues writes column's values per region index; regions missing from
// values get fill(). The display is refreshed when column is shown.
func (w *Widget) SetValues(column string, values map[string]Value, fill Filler) error {
	if !w.ready {
		return ErrNotReady
	}
	if err := w.store.SetValues(column, values, fill); err != nil {
		return err
	}
	w.emit(Event{Kind: EventValuesUpdated, Column: column})
	if column == w.shown {
		return w.repaint()
	}
	return nil
}

// AddPlottedData adds or updates column. Unless silent, the column is
// shown. The selector is rebuilt when the column is new or shown.
func (w *Widget) AddPlottedData(column string, values map[string]Value, fill Filler, silent bool) error {
	if !w.ready {
		return ErrNotReady
	}
	added, err := w.store.AddColumn(column, values, fill)
	if err != nil {
		return err
	}
	if added {
		w.emit(Event{Kind: EventColumnAdded, Column: column})
	} else {
		w.emit(Event{Kind: EventValuesUpdated, Column: column})
	}

	switch {
	case !silent:
		err = w.showColumn(column)
	case column == w.shown:
		err = w.repaint()
	}
	if added || !silent {
		w.refreshSelector()
	}
	return err
}

// RemoveColumn deletes column from the column list and from every region.
// When it was shown, the first remaining data column is shown instead, or
// the map is cleared when none is left.
func (w *Widget) RemoveColumn(column string) error {
	if !w.ready {
		return ErrNotReady
	}
	if err := w.store.RemoveColumn(column); err != nil {
		return err
	}
	w.emit(Event{Kind: EventColumnRemoved, Column: column})
	return w.afterUnregister(column)
}

// UnregisterColumn drops column from the selector but keeps its values.
func (w *Widget) UnregisterColumn(column string) error {
	if !w.ready {
		return ErrNotReady
	}
	if !w.store.UnregisterColumn(column) {
		return fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}
	w.emit(Event{Kind: EventColumnRemoved, Column: column})
	return w.afterUnregister(column)
}

func (w *Widget) afterUnregister(column string) error {
	var err error
	if column == w.shown {
		w.shown = ""
		w.renderer.Clear()
		for _, c := range w.store.Columns() {
			if c != w.store.IndexColumn() {
				err = w.showColumn(c)
				break
			}
		}
	}
	w.refreshSelector()
	return err
}

// SetFixedColorScale classifies with the given pivots instead of quantiles
// until cleared. The shown column is repainted.
func (w *Widget) SetFixedColorScale(pivots []float64) error {
	scale, err := FixedScale(pivots, w.start, w.end)
	if err != nil {
		return err
	}
	w.fixed = scale
	if w.ready {
		return w.repaint()
	}
	return nil
}

// ClearFixedColorScale returns to quantile classification.
func (w *Widget) ClearFixedColorScale() error {
	w.fixed = nil
	if w.ready {
		return w.repaint()
	}
	return nil
}

// SetupAnimation replaces any running animation with one over columns.
// When the widget runs on a Loop the animator is started on it; otherwise
// callers drive it with Tick.
func (w *Widget) SetupAnimation(interval time.Duration, columns []string, loop bool) *Animator {
	w.StopAnimation()
	w.animator = NewAnimator(interval, columns, loop)
	if w.dispatcher != nil {
		w.animator.Start(w.dispatcher)
	}
	return w.animator
}

// StopAnimation stops the running animation, if any.
func (w *Widget) StopAnimation() {
	if w.animator != nil {
		w.animator.Stop()
	}
}

// Animator returns the current animator, nil when none was set up.
func (w *Widget) Animator() *Animator { return w.animator }

// State returns a snapshot of what the widget shows.
func (w *Widget) State() State {
	st := State{
		ID:        w.id,
		Ready:     w.ready,
		Column:    w.shown,
		Columns:   w.store.Columns(),
		Info:      w.renderer.Info(),
		Transform: w.view.Transform(),
		Legend:    []string{},
	}
	if w.selector != nil {
		sel := *w.selector
		st.Selector = &sel
	}
	if s, ok := w.renderer.Highlighted(); ok {
		st.Highlighted = s.Index
	}
	for _, l := range w.renderer.Legend().Labels {
		st.Legend = append(st.Legend, l.Text)
	}
	return st
}
