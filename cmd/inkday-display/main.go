package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"inkday/internal/battery"
	"inkday/internal/config"
	"inkday/internal/display"
	appLog "inkday/internal/log"
	"inkday/internal/poller"
	"inkday/internal/power"
)

type flagConfig struct {
	configPath string
	envFile    string
	server     string
	driver     string
}

func main() {
	flags := parseFlags()

	envErr := godotenv.Load(flags.envFile)
	appLog.Init(appLog.Options{
		Level:     os.Getenv("LOG_LEVEL"),
		Format:    os.Getenv("LOG_FORMAT"),
		Component: "display",
	})
	if envErr != nil && !os.IsNotExist(envErr) {
		appLog.Warn("env file not loaded", "path", flags.envFile, "err", envErr)
	}

	conf, err := config.LoadDisplay(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.server != "" {
		conf.ServerURL = flags.server
	}
	if flags.driver != "" {
		conf.Panel.Driver = flags.driver
	}

	appLog.Info("effective config",
		"server_url", conf.ServerURL,
		"artifact", conf.ArtifactName,
		"interval", conf.Interval(),
		"request_timeout", conf.RequestTimeout,
		"work_dir", conf.WorkDir,
		"driver", conf.Panel.Driver,
		"inhibit", conf.Power.Inhibit,
		"battery", conf.Battery.Enabled,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	disp, err := display.Open(conf.Panel)
	if err != nil {
		appLog.Error("failed to open display", err, "driver", conf.Panel.Driver)
		os.Exit(1)
	}

	deps := poller.Deps{
		Display: disp,
		Power:   power.New(conf.Power),
	}
	if r := battery.New(conf.Battery); r != nil {
		deps.Battery = r
	}

	session, err := poller.Start(conf, deps)
	if err != nil {
		appLog.Error("failed to start poller", err)
		_ = disp.Close()
		os.Exit(1)
	}

	<-ctx.Done()
	appLog.Info("signal received, shutting down")
	session.Stop()
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/inkday/display.yaml", "Path to display client config file")
	flag.StringVar(&cfg.envFile, "env", ".env", "Optional dotenv file")
	flag.StringVar(&cfg.server, "server", "", "Artifact server base URL (overrides config if set)")
	flag.StringVar(&cfg.driver, "driver", "", "Panel driver: noop or epd (overrides config if set)")

	flag.Parse()

	return cfg
}
