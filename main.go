package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line flags
type AppOptions struct {
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

// Runner is the application surface driven by run
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunRender() error
	RunService() error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

// run parses args, applies them to app and dispatches to the selected mode.
func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("choromap", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file (defaults are used when missing)")
	fs.StringVar(&opts.EnvFile, "env-file", ".env", "Environment file loaded before the configuration")
	fs.StringVar(&opts.DataSource, "data", "", "GeoJSON file path or http(s) URL (overrides data.source)")
	fs.StringVar(&opts.IndexColumn, "index", "", "Index column (overrides data.indexColumn)")
	fs.StringVar(&opts.Column, "column", "", "Column shown first (overrides data.defaultColumn)")
	fs.StringVar(&opts.RenderFile, "render", "", "Render one frame to FILE (.svg, .png or .html) and exit")
	fs.BoolVar(&opts.HttpMode, "http", false, "Serve the interactive map over HTTP")
	fs.IntVar(&opts.HttpPort, "http-port", 0, "HTTP server port (0 uses http.port from the config)")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Apply live column updates from MQTT and publish widget state")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "choromap version: %s\n", Version)
	app.ApplyOptions(opts)

	if opts.RenderFile != "" {
		return app.RunRender()
	}

	if opts.HttpMode || opts.MqttMode {
		return app.RunService()
	}

	fmt.Fprintln(out, "choromap service starting...")
	fmt.Fprintln(out, "Use --render=map.svg to render one frame and exit")
	fmt.Fprintln(out, "Use --http to serve the interactive map")
	fmt.Fprintln(out, "Use --mqtt to apply live column updates from MQTT")
	fmt.Fprintln(out, "Use --mqtt --http to run both together")
	fmt.Fprintln(out, "\nConfiguration:")
	fmt.Fprintln(out, "  config.yaml - canvas, legend, data source and MQTT settings")
	fmt.Fprintln(out, "  .env        - MQTT_BROKER, REDIS_ADDR, DATABASE_URL overrides")
	return nil
}
