package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tradingzone/trade-sim/internal/api"
	"github.com/tradingzone/trade-sim/internal/auth"
	"github.com/tradingzone/trade-sim/internal/config"
	"github.com/tradingzone/trade-sim/internal/engine"
	"github.com/tradingzone/trade-sim/internal/feed"
	"github.com/tradingzone/trade-sim/internal/ledger"
	"github.com/tradingzone/trade-sim/internal/load"
	"github.com/tradingzone/trade-sim/internal/publish"
	"github.com/tradingzone/trade-sim/internal/sim"
	"github.com/tradingzone/trade-sim/internal/store"
	"github.com/tradingzone/trade-sim/internal/tick"
	"github.com/tradingzone/trade-sim/internal/watchlist"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	var logger *zap.Logger
	if cfg.App.Env == "local" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("service exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}
	defer rdb.Close()
	logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

	ticks := store.NewRedisTickStore(rdb)
	lists := watchlist.NewService(rdb, logger)

	rng := engine.NewRNG(cfg.Sim.Seed)
	model := engine.NewPriceModel(rng)
	model.BaseVolatility = cfg.Price.BaseVolatility
	model.LargeMoveProb = cfg.Price.LargeMoveProb
	model.LargeMoveRange = cfg.Price.LargeMoveRange
	model.TrendBias = cfg.Price.TrendBias
	model.MinPrice = cfg.Price.MinPrice

	var pub publish.Publisher = publish.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := publish.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer kp.Close()
		pub = kp
		logger.Info("tick publisher enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	simCfg := sim.Config{
		CreateInterval:  cfg.Sim.CreateInterval,
		RetractInterval: cfg.Sim.RetractInterval,
		BatchSize:       cfg.Sim.BatchSize,
		BatchPause:      cfg.Sim.BatchPause,
		Policy:          store.InsertIfLower,
		Precision:       tick.DefaultPrecision,
	}
	simulator := sim.New(simCfg, ticks, lists, model, pub, logger)
	defer simulator.Stop()

	var ldg *ledger.Ledger
	if cfg.Mongo.URI != "" {
		st, err := ledger.NewStore(ctx, cfg.Mongo.URI, logger)
		if err != nil {
			return err
		}
		defer st.Close(context.Background())
		ldg = ledger.New(st, ticks, logger)
	}

	var ac *auth.Client
	if cfg.Auth.BaseURL != "" {
		ac = auth.NewClient(cfg.Auth.BaseURL, logger)
	}

	var loader *load.Loader
	if cfg.S3.Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3.Region))
		if err != nil {
			return err
		}
		loader = load.New(s3.NewFromConfig(awsCfg), cfg.S3.Bucket, cfg.S3.Prefix, ticks, logger)
		logger.Info("bulk loader enabled",
			zap.String("bucket", cfg.S3.Bucket), zap.String("prefix", cfg.S3.Prefix))
	}

	hub := feed.NewHub(ticks, cfg.Feed.Interval, logger)
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /feed", hub.Handler())
	api.NewServer(simulator, ticks, lists, ldg, ac, loader, logger).Register(mux)

	srv := &http.Server{
		Addr:         cfg.App.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if cfg.Sim.AutoStart {
		if err := simulator.StartFull(ctx, cfg.Sim.AutoStartDate); err != nil {
			logger.Error("auto-start failed", zap.Error(err))
		}
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
