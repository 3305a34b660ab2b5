package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/toolgate/toolgate/internal/api"
	"github.com/toolgate/toolgate/internal/auth"
	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/services"
	"github.com/toolgate/toolgate/internal/transport"
)

// version is injected via -ldflags at build time.
var version = "dev"

func main() {
	var (
		configPath = flag.String("config", "", "path to toolgate.yaml (default: search ./configs, ., ~/.toolgate)")
		httpAddr   = flag.String("http", "", `serve HTTP on this address (e.g. ":8080"; "config" uses the server section)`)
		alsoStdio  = flag.Bool("stdio", false, "also run the stdio loop when --http is set")
		showVer    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Println("toolgate " + version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "toolgate:", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Log)

	svc, err := services.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("service init failed")
	}
	defer svc.Close()

	cfg.Watch(log, svc.Reload)

	log.WithFields(logrus.Fields{
		"version": version,
		"tools":   len(cfg.Tools),
	}).Info("toolgate starting")

	// Default mode is stdio; --http turns on the server and --stdio
	// brings the stdio loop back alongside it.
	if *httpAddr == "" {
		if err := transport.NewStdio(svc.Invoker).Run(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Fatal("stdio transport failed")
		}
		return
	}

	addr := *httpAddr
	if addr == "config" {
		addr = cfg.Server.Addr()
	}

	if *alsoStdio {
		go func() {
			if err := transport.NewStdio(svc.Invoker).Run(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Error("stdio transport failed")
				stop()
			}
		}()
	}

	app := api.New(svc, auth.NewAuthenticator(cfg.Auth), log)

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	log.WithField("addr", addr).Info("http transport listening")
	if err := app.Listen(addr); err != nil {
		log.WithError(err).Fatal("http transport failed")
	}
}

func newLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()
	// stdout belongs to the stdio protocol; logs go to stderr only.
	log.SetOutput(os.Stderr)

	if lvl, err := logrus.ParseLevel(cfg.Level); err == nil {
		log.SetLevel(lvl)
	}
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
