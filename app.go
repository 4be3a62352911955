package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kwv/choromap/choropleth"
)

// App encapsulates the application state and dependencies
type App struct {
	Config    *choropleth.Config
	Widget    *choropleth.Widget
	Loop      *choropleth.Loop
	Feed      *choropleth.Feed
	Metrics   *choropleth.Metrics
	Sources   *choropleth.SourceSet
	publisher atomic.Pointer[choropleth.StatePublisher]

	// CLI Flags (effectively dependencies)
	ConfigFile  string
	EnvFile     string
	DataSource  string
	IndexColumn string
	Column      string
	RenderFile  string
	HttpPort    int
	HttpMode    bool
	MqttMode    bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		Metrics: choropleth.NewMetrics(),
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.EnvFile = opts.EnvFile
	a.DataSource = opts.DataSource
	a.IndexColumn = opts.IndexColumn
	a.Column = opts.Column
	a.RenderFile = opts.RenderFile
	a.HttpPort = opts.HttpPort
	a.HttpMode = opts.HttpMode
	a.MqttMode = opts.MqttMode
}

// Publisher returns the MQTT state publisher, nil until MQTT is up.
func (a *App) Publisher() *choropleth.StatePublisher {
	return a.publisher.Load()
}

// setup loads the environment and configuration and builds the widget and
// its event loop. Flags override configured values.
func (a *App) setup() error {
	if a.EnvFile != "" {
		if err := godotenv.Load(a.EnvFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("loading env file %s: %w", a.EnvFile, err)
			}
		} else {
			log.Printf("Loaded environment from %s", a.EnvFile)
		}
	}

	config, err := a.loadConfig()
	if err != nil {
		return err
	}
	if a.DataSource != "" {
		config.Data.Source = a.DataSource
	}
	if a.IndexColumn != "" {
		config.Data.IndexColumn = a.IndexColumn
	}
	if a.Column != "" {
		config.Data.DefaultColumn = a.Column
	}
	if a.HttpPort > 0 {
		config.HTTP.Port = a.HttpPort
	}
	a.Config = config

	if a.Metrics == nil {
		a.Metrics = choropleth.NewMetrics()
	}
	widget, err := choropleth.New(config,
		choropleth.WithListener(a.Metrics.Listener()),
		choropleth.WithListener(a.publishState),
	)
	if err != nil {
		return err
	}
	a.Widget = widget
	a.Loop = choropleth.NewLoop(widget)
	return nil
}

func (a *App) loadConfig() (*choropleth.Config, error) {
	if a.ConfigFile == "" {
		return choropleth.DefaultConfig(), nil
	}
	if _, err := os.Stat(a.ConfigFile); errors.Is(err, fs.ErrNotExist) {
		log.Printf("No config at %s, using defaults", a.ConfigFile)
		return choropleth.DefaultConfig(), nil
	}
	config, err := choropleth.LoadConfig(a.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", a.ConfigFile, err)
	}
	log.Printf("Loaded config from %s", a.ConfigFile)
	return config, nil
}

// publishState forwards widget events to the state publisher once MQTT is
// connected.
func (a *App) publishState(w *choropleth.Widget, e choropleth.Event) {
	if p := a.publisher.Load(); p != nil {
		p.Listener()(w, e)
	}
}

// openSources connects the configured value sources. A failure leaves the
// app without sources.
func (a *App) openSources(ctx context.Context) {
	if len(a.Config.Sources) == 0 {
		return
	}
	sources, err := choropleth.OpenSources(ctx, a.Config)
	if err != nil {
		log.Printf("Warning: value sources disabled: %v", err)
		return
	}
	a.Sources = sources
}

// RunRender loads the dataset, pulls source columns and writes one frame to
// RenderFile. The format follows the file extension.
func (a *App) RunRender() error {
	if err := a.setup(); err != nil {
		return err
	}
	ext := strings.ToLower(filepath.Ext(a.RenderFile))
	switch ext {
	case ".svg", ".png", ".html":
	default:
		return fmt.Errorf("unsupported render format %q (use .svg, .png or .html)", ext)
	}
	if a.Config.Data.Source == "" {
		return fmt.Errorf("no data source: set --data or data.source")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Loop.Start(ctx)

	if err := a.Loop.LoadSource(ctx, a.Config.Data.Source, a.Config.Data, nil); err != nil {
		return fmt.Errorf("loading %s: %w", a.Config.Data.Source, err)
	}

	a.openSources(ctx)
	if a.Sources != nil {
		defer a.Sources.Close()
		n := a.Sources.RefreshAll(ctx, a.Loop)
		fmt.Printf("Refreshed %d source column(s)\n", n)
	}

	f, err := os.Create(a.RenderFile)
	if err != nil {
		return fmt.Errorf("creating %s: %w", a.RenderFile, err)
	}
	defer f.Close()

	err = a.Loop.Do(ctx, func(w *choropleth.Widget) error {
		switch ext {
		case ".png":
			return w.WritePNG(f)
		case ".html":
			return w.WriteHTML(f)
		default:
			return w.WriteSVG(f)
		}
	})
	if err != nil {
		return fmt.Errorf("rendering %s: %w", a.RenderFile, err)
	}

	st, err := a.Loop.State(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Rendered column %q to %s\n", st.Column, a.RenderFile)
	return nil
}

// startService starts the loop, the dataset load, value sources, MQTT and
// the HTTP server. It returns the server, nil when HTTP is disabled.
func (a *App) startService(ctx context.Context) (*http.Server, error) {
	a.Loop.Start(ctx)

	if a.MqttMode {
		feed, err := choropleth.InitMQTT(a.Config, a.Loop)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MQTT: %w", err)
		}
		if feed == nil {
			return nil, fmt.Errorf("MQTT broker not configured: set MQTT_BROKER or mqtt.broker")
		}
		a.Feed = feed
		a.publisher.Store(choropleth.NewStatePublisher(feed.Client(), a.Config.MQTT.PublishPrefix))
		fmt.Println("MQTT state publisher initialized")
	}

	a.openSources(ctx)

	if a.Config.Data.Source != "" {
		go a.loadData(ctx)
	} else {
		log.Println("Warning: no data source configured; the map stays empty")
	}

	if !a.HttpMode {
		return nil, nil
	}
	server := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", a.Config.HTTP.Port),
		Handler:           newHTTPServer(a.Loop, a.Sources, a.Metrics),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("[HTTP] Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[HTTP] Server error: %v", err)
		}
	}()
	return server, nil
}

// loadData loads the configured dataset, then refreshes source columns and
// starts the configured animation.
func (a *App) loadData(ctx context.Context) {
	anim := a.Config.Animation
	onFinish := func(w *choropleth.Widget) {
		if anim.Autostart && len(anim.Columns) > 0 {
			w.SetupAnimation(anim.Interval, anim.Columns, anim.Loop)
		}
	}
	if err := a.Loop.LoadSource(ctx, a.Config.Data.Source, a.Config.Data, onFinish); err != nil {
		return
	}
	if a.Sources != nil {
		n := a.Sources.RefreshAll(ctx, a.Loop)
		log.Printf("[sources] refreshed %d column(s)", n)
	}
}

// RunService runs the HTTP and/or MQTT service until interrupted
func (a *App) RunService() error {
	fmt.Println("Starting choromap service...")
	if err := a.setup(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := a.startService(ctx)
	if err != nil {
		return err
	}

	fmt.Println("\nService Running")
	fmt.Println("===============")

	if a.MqttMode {
		fmt.Println("\nMQTT:")
		fmt.Printf("  Feed topic: %s\n", a.Config.MQTT.FeedTopic)
		fmt.Printf("  Publishing to: %s/state\n", a.Publisher().Prefix())
	}

	if server != nil {
		fmt.Printf("\nHTTP endpoints (port %d):\n", a.Config.HTTP.Port)
		fmt.Println("  GET  /              - Interactive map page")
		fmt.Println("  GET  /map.svg       - Current frame as SVG")
		fmt.Println("  GET  /map.png       - Current frame as PNG")
		fmt.Println("  GET  /api/state     - Widget state")
		fmt.Println("  POST /api/show      - Show a column")
		fmt.Println("  POST /api/click     - Click a region")
		fmt.Println("  POST /api/zoom      - Zoom the view")
		fmt.Println("  POST /api/animate   - Animate over columns")
		fmt.Println("  GET  /health        - Health check")
		fmt.Println("  GET  /metrics       - Prometheus metrics")
	}

	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down service...")
	a.shutdown(server)
	cancel()
	<-a.Loop.Done()
	fmt.Println("Service stopped")
	return nil
}

func (a *App) shutdown(server *http.Server) {
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("[HTTP] shutdown: %v", err)
		}
	}
	if a.Feed != nil {
		a.Feed.Disconnect()
	}
	if a.Sources != nil {
		a.Sources.Close()
	}
}
