package main

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/MicahParks/keyfunc"
	"github.com/joho/godotenv"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/mohdragon010/taskflow/api"
	"github.com/mohdragon010/taskflow/config"
	"github.com/mohdragon010/taskflow/storage"
	"github.com/mohdragon010/taskflow/subscription"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	store, err := storage.New(cfg.StorageConnString, cfg.TasksTable, cfg.AccountsTable, cfg.EventsQueue)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	rc := redis.NewClient(parseRedisOptions(cfg.RedisConnString))
	cached := storage.NewCache(store, rc, cfg.CacheTTL)

	sessions := api.NewRedisSessions(rc, cfg.SessionTTL)
	auth := api.NewAuth([]byte(cfg.SessionSecret), cfg.TokenAudience, cfg.TokenIssuer, cfg.SessionTTL, sessions)

	var federated api.FederatedVerifier
	if cfg.FederatedJWKSURL != "" {
		jwks, err := keyfunc.Get(cfg.FederatedJWKSURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		federated = api.NewJWKSVerifier(jwks, cfg.FederatedIssuer, cfg.FederatedAudience)
	}

	logger := log.New()
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}

	notifier := subscription.NewPublisher(rc, cfg.ChangeChannel, cached, logger)
	broker := api.NewSnapshotBroker()

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(echoprometheus.NewMiddleware("taskflow"))
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e, cached, auth, auth, sessions, federated, notifier, broker, logger)

	go subscription.Run(context.Background(), logger, rc, cached, cfg.ChangeChannel, broker)

	e.Logger.Fatal(e.Start(cfg.ListenAddr))
}

// parseRedisOptions accepts either a redis URL or the Azure comma separated
// connection string format (host:port,password=...,ssl=true).
func parseRedisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
