package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"inkday/internal/capture"
	"inkday/internal/config"
	"inkday/internal/ics"
	appLog "inkday/internal/log"
	"inkday/internal/pipeline"
	"inkday/internal/publish"
	"inkday/internal/render"
	"inkday/internal/weather"
	"inkday/internal/web"
)

// staleFactor multiplies the render interval to get the age after which
// /api/artifact reports the artifact as stale.
const staleFactor = 3

type flagConfig struct {
	configPath string
	envFile    string
	listen     string
	once       bool
}

func main() {
	flags := parseFlags()

	// The logger reads LOG_* from the environment, so .env goes first.
	envErr := godotenv.Load(flags.envFile)
	appLog.Init(appLog.Options{
		Level:     os.Getenv("LOG_LEVEL"),
		Format:    os.Getenv("LOG_FORMAT"),
		Component: "server",
	})
	// A missing .env is normal in production.
	if envErr != nil && !os.IsNotExist(envErr) {
		appLog.Warn("env file not loaded", "path", flags.envFile, "err", envErr)
	}
	appLog.Info("inkday starting", "version", version)

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"render", conf.RenderCron,
		"sources", len(conf.Sources),
		"display", conf.Display,
		"forecast", conf.Forecast.Enabled,
		"mirror", conf.Mirror != nil,
		"once", flags.once,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p, pub, err := build(conf)
	if err != nil {
		appLog.Error("failed to initialize", err)
		os.Exit(1)
	}

	if flags.once {
		if err := p.RunOnce(ctx); err != nil {
			appLog.Error("single run finished with errors", err)
			os.Exit(1)
		}
		appLog.Info("single run complete", "artifact", pub.Path())
		return
	}

	sched, err := pipeline.NewScheduler(p, conf.RefreshCron, conf.RenderCron)
	if err != nil {
		appLog.Error("failed to create scheduler", err)
		os.Exit(1)
	}

	interval, err := pipeline.ExpectedInterval(conf.RenderCron, conf.Location())
	if err != nil {
		appLog.Error("failed to evaluate render schedule", err, "render", conf.RenderCron)
		os.Exit(1)
	}

	sched.Start()
	defer sched.Stop()

	srv := web.NewServer(conf, pub, p, staleFactor*interval)
	if err := srv.Run(ctx); err != nil {
		appLog.Error("http server failed", err)
		sched.Stop()
		os.Exit(1)
	}
	appLog.Info("inkday exiting")
}

// build wires the server pipeline from conf.
func build(conf *config.Config) (*pipeline.Pipeline, *publish.Publisher, error) {
	var pubOpts []publish.Option
	if conf.Mirror != nil {
		m, err := publish.NewMinioMirror(*conf.Mirror)
		if err != nil {
			return nil, nil, err
		}
		pubOpts = append(pubOpts, publish.WithMirror(m))
	}

	pub, err := publish.New(conf.Artifact.Dir, conf.Artifact.Name, pubOpts...)
	if err != nil {
		return nil, nil, err
	}
	// A previous artifact lets the display keep working before the first render.
	if err := pub.Load(); err != nil {
		appLog.Warn("previous artifact not restored", "err", err)
	}

	renderer, err := render.NewRenderer(&capture.Chromium{ExecPath: conf.Render.ExecPath}, render.Options{
		Width:        conf.Display.Width,
		Height:       conf.Display.Height,
		Timeout:      conf.Render.Timeout,
		Units:        conf.Forecast.Units,
		TemplatePath: conf.Render.Template,
	})
	if err != nil {
		return nil, nil, err
	}

	deps := pipeline.Deps{
		Fetcher:   ics.NewFetcher(conf.Fetch.CacheDir, conf.Fetch.Timeout),
		Renderer:  renderer,
		Publisher: pub,
	}
	if conf.Forecast.Enabled {
		var opts []weather.Option
		if conf.Forecast.BaseURL != "" {
			opts = append(opts, weather.WithBaseURL(conf.Forecast.BaseURL))
		}
		deps.Forecaster = weather.NewOpenMeteo(conf.Forecast.Timeout, opts...)
	}

	sources := make([]ics.Source, 0, len(conf.Sources))
	for _, s := range conf.Sources {
		sources = append(sources, ics.Source{ID: s.ID, URL: s.URL, Color: s.Color})
	}

	p := pipeline.New(deps, sources, conf.Location(), pipeline.ForecastOptions{
		Enabled:   conf.Forecast.Enabled,
		Latitude:  conf.Forecast.Latitude,
		Longitude: conf.Forecast.Longitude,
		MaxAge:    conf.Forecast.MaxAge,
	})
	return p, pub, nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/inkday/config.yaml", "Path to config file")
	flag.StringVar(&cfg.envFile, "env", ".env", "Optional dotenv file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one refresh+render+publish cycle and exit")

	flag.Parse()

	return cfg
}
