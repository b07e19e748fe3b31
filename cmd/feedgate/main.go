/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Command feedgate runs the feed admission gateway in front of a document backend.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/acronis/go-feedgate/backend"
	"github.com/acronis/go-feedgate/config"
	"github.com/acronis/go-feedgate/gateway"
	"github.com/acronis/go-feedgate/httpserver"
	"github.com/acronis/go-feedgate/log"
	"github.com/acronis/go-feedgate/profserver"
	"github.com/acronis/go-feedgate/restapi"
	"github.com/acronis/go-feedgate/service"
)

const (
	envVarsPrefix    = "FEEDGATE"
	metricsNamespace = "feedgate"
)

type appConfig struct {
	Log        *log.Config
	Server     *httpserver.Config
	Gateway    *gateway.Config
	Backend    *backend.Config
	ProfServer *profserver.Config
}

func main() {
	cfgPath := flag.String("config", "config.yml", "path to the YAML configuration file")
	flag.Parse()

	if err := run(*cfgPath); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadAppConfig(cfgPath string) (*appConfig, error) {
	cfg := &appConfig{
		Log:        log.NewConfig(),
		Server:     httpserver.NewConfig(),
		Gateway:    gateway.NewConfig(),
		Backend:    backend.NewConfig(),
		ProfServer: profserver.NewConfig(),
	}
	err := config.NewDefaultLoader(envVarsPrefix).LoadFromFile(
		cfgPath, config.DataTypeYAML, cfg.Log, cfg.Server, cfg.Gateway, cfg.Backend, cfg.ProfServer)
	if err != nil {
		return nil, fmt.Errorf("load configuration from %s: %w", cfgPath, err)
	}
	return cfg, nil
}

func run(cfgPath string) error {
	cfg, err := loadAppConfig(cfgPath)
	if err != nil {
		return err
	}

	logger, loggerClose := log.NewLogger(cfg.Log)
	defer loggerClose()

	channel, err := backend.NewHTTPChannelWithOpts(cfg.Backend, logger.With(log.String("component", "backend")),
		backend.HTTPChannelOpts{MetricsNamespace: metricsNamespace})
	if err != nil {
		return err
	}
	defer channel.CloseIdleConnections()
	channel.MustRegisterMetrics()
	defer channel.UnregisterMetrics()

	gw, err := gateway.New(cfg.Gateway, channel, logger.With(log.String("component", "gateway")),
		gateway.Opts{MetricsNamespace: metricsNamespace})
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	srv := httpserver.New(cfg.Server, logger, httpserver.Opts{
		Routes:           []httpserver.Route{gw.Route()},
		ErrorDomain:      cfg.Gateway.ErrorDomain,
		HealthCheck:      gw.HealthCheck(),
		MetricsNamespace: metricsNamespace,
	})

	restapi.MustInitAndRegisterMetrics(metricsNamespace)
	defer restapi.UnregisterMetrics()

	units := []service.Unit{srv, gw}
	if cfg.ProfServer.Enabled {
		units = append(units, profserver.New(cfg.ProfServer, logger.With(log.String("component", "profserver"))))
	}

	// Sessions are killed in the background, give them a chance but don't hang on exit.
	return service.NewWithOpts(logger, service.NewCompositeUnit(units...), service.Opts{
		ShutdownSignals: service.DefaultShutdownSignals,
		DrainTimeout:    time.Duration(cfg.Server.Timeouts.Shutdown),
	}).Start()
}
