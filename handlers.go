package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kwv/choromap/choropleth"
	"github.com/spaolacci/murmur3"
)

// requestTimeout bounds how long a request waits for the widget loop.
const requestTimeout = 5 * time.Second

var errBadRequest = errors.New("bad request")

// newHTTPServer creates an HTTP server with all endpoints. Every widget
// access runs on loop.
func newHTTPServer(loop *choropleth.Loop, sources *choropleth.SourceSet, metrics *choropleth.Metrics) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		ready := false
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()
		if st, err := loop.State(ctx); err == nil {
			ready = st.Ready
		}
		writeJSON(w, http.StatusOK, struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			Ready     bool      `json:"ready"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			Ready:     ready,
		})
	})

	mux.Handle("GET /metrics", metrics.Handler())

	// Host page and the widget fragment it reloads after each interaction
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		fragment, err := render(r.Context(), loop, false, (*choropleth.Widget).WriteHTML)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		if err := writePage(w, fragment); err != nil {
			log.Printf("Error writing page: %v", err)
		}
	})

	mux.HandleFunc("GET /fragment.html", func(w http.ResponseWriter, r *http.Request) {
		fragment, err := render(r.Context(), loop, false, (*choropleth.Widget).WriteHTML)
		if err != nil {
			writeError(w, err)
			return
		}
		serveFrame(w, r, "text/html; charset=utf-8", fragment)
	})

	mux.HandleFunc("GET /map.svg", func(w http.ResponseWriter, r *http.Request) {
		frame, err := render(r.Context(), loop, true, (*choropleth.Widget).WriteSVG)
		if err != nil {
			writeError(w, err)
			return
		}
		serveFrame(w, r, "image/svg+xml", frame)
	})

	mux.HandleFunc("GET /map.png", func(w http.ResponseWriter, r *http.Request) {
		frame, err := render(r.Context(), loop, true, (*choropleth.Widget).WritePNG)
		if err != nil {
			writeError(w, err)
			return
		}
		serveFrame(w, r, "image/png", frame)
	})

	mux.HandleFunc("GET /api/state", func(w http.ResponseWriter, r *http.Request) {
		respondState(w, r, loop, nil)
	})

	mux.HandleFunc("POST /api/show", func(w http.ResponseWriter, r *http.Request) {
		column := r.URL.Query().Get("column")
		if column == "" {
			writeError(w, fmt.Errorf("%w: column is required", errBadRequest))
			return
		}
		respondState(w, r, loop, func(wd *choropleth.Widget) error {
			return wd.ShowColumn(column)
		})
	})

	mux.HandleFunc("POST /api/click", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if region := q.Get("region"); region != "" {
			respondState(w, r, loop, func(wd *choropleth.Widget) error {
				return wd.Click(region)
			})
			return
		}
		x, errX := floatParam(r, "x", 0, true)
		y, errY := floatParam(r, "y", 0, true)
		if err := errors.Join(errX, errY); err != nil {
			writeError(w, err)
			return
		}
		respondState(w, r, loop, func(wd *choropleth.Widget) error {
			_, err := wd.ClickAt(x, y)
			return err
		})
	})

	mux.HandleFunc("POST /api/background", func(w http.ResponseWriter, r *http.Request) {
		respondState(w, r, loop, (*choropleth.Widget).Background)
	})

	// Zoom takes either an absolute transform (k, x, y) or a wheel step
	// (factor around cx, cy).
	mux.HandleFunc("POST /api/zoom", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("k") {
			k, errK := floatParam(r, "k", 0, true)
			x, errX := floatParam(r, "x", 0, false)
			y, errY := floatParam(r, "y", 0, false)
			if err := errors.Join(errK, errX, errY); err != nil {
				writeError(w, err)
				return
			}
			respondState(w, r, loop, func(wd *choropleth.Widget) error {
				_, err := wd.SetTransform(choropleth.ViewTransform{X: x, Y: y, K: k})
				return err
			})
			return
		}
		factor, errF := floatParam(r, "factor", 0, true)
		cx, errX := floatParam(r, "cx", 0, false)
		cy, errY := floatParam(r, "cy", 0, false)
		if err := errors.Join(errF, errX, errY); err != nil {
			writeError(w, err)
			return
		}
		respondState(w, r, loop, func(wd *choropleth.Widget) error {
			_, err := wd.ZoomAt(factor, cx, cy)
			return err
		})
	})

	mux.HandleFunc("POST /api/pan", func(w http.ResponseWriter, r *http.Request) {
		dx, errX := floatParam(r, "dx", 0, false)
		dy, errY := floatParam(r, "dy", 0, false)
		if err := errors.Join(errX, errY); err != nil {
			writeError(w, err)
			return
		}
		respondState(w, r, loop, func(wd *choropleth.Widget) error {
			_, err := wd.Pan(dx, dy)
			return err
		})
	})

	mux.HandleFunc("POST /api/animate", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var interval time.Duration
		if s := q.Get("interval"); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil || d <= 0 {
				writeError(w, fmt.Errorf("%w: interval %q", errBadRequest, s))
				return
			}
			interval = d
		}
		var columns []string
		if s := q.Get("columns"); s != "" {
			columns = strings.Split(s, ",")
		}
		loopMode, _ := strconv.ParseBool(q.Get("loop"))

		respondState(w, r, loop, func(wd *choropleth.Widget) error {
			if interval == 0 {
				interval = wd.Config().Animation.Interval
			}
			cols := columns
			if len(cols) == 0 && wd.Selector() != nil {
				for _, o := range wd.Selector().Options {
					cols = append(cols, o.Value)
				}
			}
			if len(cols) == 0 {
				return fmt.Errorf("%w: no columns to animate", errBadRequest)
			}
			wd.SetupAnimation(interval, cols, loopMode)
			return nil
		})
	})

	mux.HandleFunc("POST /api/animate/stop", func(w http.ResponseWriter, r *http.Request) {
		respondState(w, r, loop, func(wd *choropleth.Widget) error {
			wd.StopAnimation()
			return nil
		})
	})

	// Re-pull one source column, or all of them
	mux.HandleFunc("POST /api/refresh", func(w http.ResponseWriter, r *http.Request) {
		if sources == nil {
			http.Error(w, "No value sources configured", http.StatusNotFound)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*requestTimeout)
		defer cancel()

		column := r.URL.Query().Get("column")
		refreshed := 0
		if column == "" {
			refreshed = sources.RefreshAll(ctx, loop)
		} else {
			if err := sources.Refresh(ctx, loop, column); err != nil {
				writeError(w, err)
				return
			}
			refreshed = 1
		}
		writeJSON(w, http.StatusOK, map[string]int{"refreshed": refreshed})
	})

	// Wrap mux with logging and metrics middleware
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		mux.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveRequest(route, rec.status, time.Since(start))
	})
}

// statusRecorder remembers the status code written through it
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// render runs write on the loop into a buffer. With needReady, an unloaded
// widget yields ErrNotReady instead of an empty frame.
func render(ctx context.Context, loop *choropleth.Loop, needReady bool, write func(*choropleth.Widget, io.Writer) error) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var buf bytes.Buffer
	err := loop.Do(ctx, func(w *choropleth.Widget) error {
		if needReady && !w.Ready() {
			return choropleth.ErrNotReady
		}
		return write(w, &buf)
	})
	return buf.Bytes(), err
}

// serveFrame writes a rendered frame with a content hash ETag, answering
// 304 when the client already has it.
func serveFrame(w http.ResponseWriter, r *http.Request, contentType string, frame []byte) {
	etag := fmt.Sprintf(`"%016x"`, murmur3.Sum64(frame))
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", contentType)
	if _, err := w.Write(frame); err != nil {
		log.Printf("Error writing %s: %v", r.URL.Path, err)
	}
}

// respondState runs fn, if any, on the loop and answers with the widget
// state taken right after it.
func respondState(w http.ResponseWriter, r *http.Request, loop *choropleth.Loop, fn func(*choropleth.Widget) error) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var st choropleth.State
	err := loop.Do(ctx, func(wd *choropleth.Widget) error {
		if fn != nil {
			if err := fn(wd); err != nil {
				return err
			}
		}
		st = wd.State()
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func floatParam(r *http.Request, name string, fallback float64, required bool) (float64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		if required {
			return 0, fmt.Errorf("%w: %s is required", errBadRequest, name)
		}
		return fallback, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s=%q is not a finite number", errBadRequest, name, s)
	}
	return v, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, choropleth.ErrNotReady), errors.Is(err, choropleth.ErrLoopClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, choropleth.ErrUnknownColumn), errors.Is(err, choropleth.ErrUnknownRegion):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	}
	return http.StatusUnprocessableEntity
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

// writeJSON encodes v before writing the header so an encoding failure is
// reported as a 500 rather than a truncated body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Printf("Error encoding response: %v", err)
		http.Error(w, "encoding response failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		log.Printf("Error writing response: %v", err)
	}
}
