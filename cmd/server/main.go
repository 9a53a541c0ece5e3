package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/anchorapp/anchor-server/internal/auth"
	"github.com/anchorapp/anchor-server/internal/circle"
	"github.com/anchorapp/anchor-server/internal/config"
	"github.com/anchorapp/anchor-server/internal/database"
	"github.com/anchorapp/anchor-server/internal/handler"
	"github.com/anchorapp/anchor-server/internal/middleware"
	"github.com/anchorapp/anchor-server/internal/oauth"
	"github.com/anchorapp/anchor-server/internal/queue"
	"github.com/anchorapp/anchor-server/internal/repository"
	"github.com/anchorapp/anchor-server/internal/router"
	"github.com/anchorapp/anchor-server/internal/unlock"
)

func main() {
	// Load .env when present; real environments set variables directly.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis backs rate limiting and the nearby-listing cache.  A nil client
	// disables both; the API stays up without Redis.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; rate limiting and response cache disabled")
	}

	users := repository.NewUserRepo(db)
	sessions := repository.NewSessionRepo(db)
	anchors := repository.NewAnchorRepo(db)
	contents := repository.NewContentRepo(db)

	codec := auth.NewTokenCodec(cfg.JWTSecret, cfg.AccessTTLMin)

	// Circle membership is an external collaborator.  Without a configured
	// service every CIRCLE_ONLY anchor is visible to its creator only.
	var membership unlock.MembershipChecker = circle.DenyAll{}
	if cfg.CircleServiceURL != "" {
		membership = circle.NewClient(cfg.CircleServiceURL)
	}

	var verifier oauth.Verifier = oauth.NewGoogleVerifier()
	if cfg.OAuthEndpoint != "" {
		verifier = oauth.NewGoogleVerifierAt(cfg.OAuthEndpoint)
	}

	authorizer := unlock.NewAuthorizer(anchors, membership)

	authH := handler.NewAuthHandler(cfg, users, sessions, codec, verifier)
	anchorH := handler.NewAnchorHandler(anchors, membership)
	unlockH := handler.NewUnlockHandler(authorizer, anchors)
	contentH := handler.NewContentHandler(anchors, contents)
	userH := handler.NewUserHandler(users)

	e := echo.New()
	e.HideBanner = true

	var limiter echo.MiddlewareFunc
	if rlCfg := config.LoadRateLimitConfig(); rlCfg.Enabled && rdb != nil {
		limiter = middleware.NewTokenBucket(rlCfg, rdb)
	}
	var cacheMW echo.MiddlewareFunc
	if cCfg := config.LoadCacheConfig(); cCfg.Enabled && rdb != nil {
		cacheMW = middleware.NewRedisCache(cCfg, rdb)
	}

	router.RegisterRoutes(e)
	// The limiter guards both the credential endpoints and the
	// authenticated group.
	router.RegisterAuth(e, authH, codec, limiter)
	router.RegisterAnchors(e, codec, anchorH, unlockH, contentH, userH, cacheMW, limiter)

	// Background consumer for anchor.unlocked events.  Runs its own
	// reconnect loop; a missing broker never blocks the API.
	go func() {
		if err := queue.StartUnlockConsumer(); err != nil {
			log.Printf("unlock consumer stopped: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
