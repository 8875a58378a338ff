package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"loggym/internal/config"
	"loggym/internal/db"
	"loggym/internal/logging"
	"loggym/internal/metrics"
	"loggym/internal/seed"
	"loggym/internal/server"
	"loggym/internal/session"
)

const shutdownTimeout = 10 * time.Second

func main() {
	envFile := flag.String("env", ".env", "dotenv file to load before reading the environment")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-env file] [serve|init-db]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "serve"
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "serve":
		err = serve(ctx, cfg, log)
	case "init-db":
		err = initDB(ctx, cfg, log)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.WithError(err).Fatal(cmd + " failed")
	}
}

func openDatabase(ctx context.Context, cfg config.Config, log *logrus.Logger) (*sqlx.DB, error) {
	database, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := seed.Run(ctx, database, log); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func initDB(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	database, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer database.Close()
	fmt.Println("Banco de dados inicializado com sucesso!")
	return nil
}

func serve(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	if cfg.UsingDevSecret {
		log.Warn("LOGGYM_SECRET_KEY is not set, signing sessions with the development secret")
	}

	database, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer database.Close()

	sessions := session.NewManager(cfg.SecretKey, cfg.SessionLifetime, cfg.CookieSecure)
	srv, err := server.New(database, sessions, log)
	if err != nil {
		return err
	}

	servers := []*http.Server{{Addr: cfg.Addr, Handler: srv, ReadHeaderTimeout: 10 * time.Second}}
	if cfg.MetricsAddr != "" {
		servers = append(servers, &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(), ReadHeaderTimeout: 10 * time.Second})
	}

	errc := make(chan error, len(servers))
	for _, hs := range servers {
		go func(hs *http.Server) {
			log.WithFields(logrus.Fields{"addr": hs.Addr, "env": cfg.Env}).Info("listening")
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}(hs)
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-errc:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, hs := range servers {
		if serr := hs.Shutdown(shutdownCtx); serr != nil {
			log.WithError(serr).WithField("addr", hs.Addr).Warn("shutdown")
		}
	}
	return err
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
