package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"resbridge/internal/buckets"
	"resbridge/internal/database"
	"resbridge/internal/keys"
	"resbridge/internal/routers"
	"resbridge/internal/shared"

	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/manifold-inc/manifold-sdk/lib/eflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Flags / ENV Variables
	host := flag.String("host", "echo", "Host framework: echo, gin, fasthttp or nethttp")
	port := flag.String("port", shared.DefaultPort, "Listen port")
	dsn := flag.String("dsn", "", "MySQL DSN for keys and the invocation journal")
	redisAddr := flag.String("redis-addr", "", "Redis host:port for the key cache")
	metricsAPIKey := flag.String("metrics-api-key", "", "Metrics api key")
	demoAPIKey := flag.String("demo-api-key", "", "Static key accepted by the guarded route")
	segmentSize := flag.Int("segment-size", shared.DefaultSegmentSize, "Body segment size in bytes")
	debug := flag.Bool("debug", false, "Debug enabled")

	err := eflag.SetFlagsFromEnvironment()
	if err != nil {
		panic(err)
	}
	flag.Parse()

	var logger *zap.Logger
	if *debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic("Failed init logger")
	}
	log := logger.Sugar()
	defer func() { _ = log.Sync() }()

	var db *sql.DB
	if *dsn != "" {
		db, err = sql.Open("mysql", *dsn)
		if err != nil {
			panic(fmt.Sprintf("failed initializing sqlClient: %s", err))
		}
		if err := db.Ping(); err != nil {
			panic(fmt.Sprintf("failed ping to sql db: %s", err))
		}
		defer func() { _ = db.Close() }()
	}

	var redisClient *redis.Client
	if *redisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     *redisAddr,
			Password: "",
			DB:       0,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			panic(fmt.Sprintf("failed ping to redis db: %s", err))
		}
		defer func() { _ = redisClient.Close() }()
	}

	var lookup keys.Chain
	if db != nil {
		lookup = append(lookup, keys.NewStore(redisClient, db, log))
	}
	if *demoAPIKey != "" {
		lookup = append(lookup, keys.Static{
			*demoAPIKey: {Email: "demo@localhost", Role: "demo", Active: true},
		})
	}

	cfg := routers.Config{
		Log:           log,
		Keys:          lookup,
		SegmentSize:   shared.ClampSegmentSize(*segmentSize),
		MetricsAPIKey: *metricsAPIKey,
		Metrics:       promhttp.Handler(),
	}
	if db != nil {
		journal := buckets.NewJournal(log, database.InvocationWriter(db))
		defer journal.Shutdown()
		cfg.Observer = journal
	}

	addr := ":" + *port
	var start func() error
	var stop func(context.Context) error
	switch *host {
	case "fasthttp":
		srv := &fasthttp.Server{
			Handler:           routers.NewFastHTTP(cfg),
			StreamRequestBody: true,
			IdleTimeout:       shared.DefaultHTTPTimeout,
		}
		start = func() error { return srv.ListenAndServe(addr) }
		stop = func(context.Context) error { return srv.Shutdown() }
	default:
		var h http.Handler
		switch *host {
		case "echo":
			h = routers.NewEcho(cfg)
		case "gin":
			if !*debug {
				gin.SetMode(gin.ReleaseMode)
			}
			h = routers.NewGin(cfg)
		case "nethttp":
			h = routers.NewServeMux(cfg)
		default:
			panic(fmt.Sprintf("unknown host %q", *host))
		}
		srv := &http.Server{Addr: addr, Handler: h, IdleTimeout: shared.DefaultHTTPTimeout}
		start = srv.ListenAndServe
		stop = srv.Shutdown
	}

	go func() {
		log.Infow("Listening", "host", *host, "addr", addr)
		if err := start(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("shutting down the server", "error", err)
		}
	}()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	ctx, cancelTimeout := context.WithTimeout(context.Background(), shared.DefaultShutdownTimeout)
	defer cancelTimeout()
	if err := stop(ctx); err != nil {
		log.Errorw("Failed graceful shutdown", "error", err)
	}
}
