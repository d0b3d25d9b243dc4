package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/litchat/relay/internal/auth"
	"github.com/litchat/relay/internal/broker"
	"github.com/litchat/relay/internal/config"
	"github.com/litchat/relay/internal/crypto/payload"
	"github.com/litchat/relay/internal/history"
	"github.com/litchat/relay/internal/kv"
	"github.com/litchat/relay/internal/logging"
	"github.com/litchat/relay/internal/member"
	"github.com/litchat/relay/internal/offline"
	"github.com/litchat/relay/internal/route"
	"github.com/litchat/relay/internal/server"
	"github.com/litchat/relay/internal/session"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML/JSON config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.LogLevel, logging.FileOptions{
		Path:       cfg.LogFile.Path,
		MaxSizeMB:  cfg.LogFile.MaxSizeMB,
		MaxBackups: cfg.LogFile.MaxBackups,
		MaxAgeDays: cfg.LogFile.MaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() // best-effort flush

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		cancel()
		logger.Fatal("redis unreachable", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	cancel()
	defer redisClient.Close()

	natsConn, err := nats.Connect(cfg.NATS.URL,
		nats.Name("litchat-relay"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		logger.Fatal("nats unreachable", zap.String("url", cfg.NATS.URL), zap.Error(err))
	}
	defer natsConn.Drain()

	memberSrc, err := member.OpenSQLite(cfg.Members.DBPath)
	if err != nil {
		logger.Fatal("open membership store", zap.Error(err))
	}
	defer memberSrc.Close()

	var cipher *payload.Cipher
	if cfg.Crypto.Enabled {
		passphrase, err := cfg.Passphrase()
		if err != nil {
			logger.Fatal("payload passphrase unavailable", zap.Error(err))
		}
		cipher, err = payload.New(passphrase, cfg.Crypto.Salt)
		if err != nil {
			logger.Fatal("init payload cipher", zap.Error(err))
		}
		logger.Info("payload encryption enabled")
	}

	store := kv.NewRedis(redisClient)
	registry := session.NewRegistry()
	routes := route.NewTable(store, cfg.Route.TTL)

	router := server.NewRouter(server.RouterOptions{
		Log:      logger,
		Registry: registry,
		Routes:   routes,
		Offline:  offline.NewQueue(store, cfg.Offline.Limit, logger),
		Members:  member.NewCache(store, memberSrc, cfg.Members.CacheTTL, logger),
		History:  history.NewKVStore(store),
		Broker:   broker.NewNATS(natsConn),
		Cipher:   cipher,
		Topic:    cfg.Broadcast.Topic,
	})

	srv := server.NewServer(cfg, logger, server.Options{
		Registry:  registry,
		Routes:    routes,
		Router:    router,
		Validator: auth.StaticValidator{},
		Cipher:    cipher,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
}
