package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ourchat/ourchat-server/internal/api"
	"github.com/ourchat/ourchat-server/internal/apierrors"
	"github.com/ourchat/ourchat-server/internal/bus"
	"github.com/ourchat/ourchat-server/internal/config"
	"github.com/ourchat/ourchat-server/internal/friend"
	"github.com/ourchat/ourchat-server/internal/gateway"
	"github.com/ourchat/ourchat-server/internal/httputil"
	"github.com/ourchat/ourchat-server/internal/identity"
	"github.com/ourchat/ourchat-server/internal/media"
	"github.com/ourchat/ourchat-server/internal/message"
	"github.com/ourchat/ourchat-server/internal/postgres"
	"github.com/ourchat/ourchat-server/internal/ratelimit"
	"github.com/ourchat/ourchat-server/internal/rbac"
	"github.com/ourchat/ourchat-server/internal/service"
	"github.com/ourchat/ourchat-server/internal/session"
	"github.com/ourchat/ourchat-server/internal/shutdown"
	"github.com/ourchat/ourchat-server/internal/snowflake"
	"github.com/ourchat/ourchat-server/internal/upload"
	"github.com/ourchat/ourchat-server/internal/user"
	"github.com/ourchat/ourchat-server/internal/valkey"
	"github.com/ourchat/ourchat-server/internal/webrtcroom"
)

// server bundles every dependency registerRoutes needs to wire a handler.
type server struct {
	cfg *config.Config

	accounts *api.AccountHandler
	auth     *api.AuthHandler
	friends  *api.FriendHandler
	sessions *api.SessionHandler
	messages *api.MessageHandler
	rooms    *api.RoomHandler
	uploads  *api.UploadHandler
	gw       *api.GatewayHandler
	health   *api.HealthHandler

	limiter *ratelimit.Limiter
}

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if cfg.IsDevelopment() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = logger

	if cfg.CORSAllowOrigins == "*" && !cfg.IsDevelopment() {
		logger.Warn().Msg("CORS_ALLOW_ORIGINS is wildcard in a non-development environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := postgres.Migrate(cfg.DatabaseURL, logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConn, cfg.DatabaseMinConn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	rdb, err := valkey.Connect(ctx, cfg.ValkeyURL, 5*time.Second)
	if err != nil {
		return fmt.Errorf("connect valkey: %w", err)
	}
	defer func() { _ = rdb.Close() }()

	gen, err := snowflake.NewGenerator(cfg.MachineID)
	if err != nil {
		return fmt.Errorf("init snowflake generator: %w", err)
	}

	coord := shutdown.NewCoordinator(logger)

	// Repositories
	users := user.NewPGRepository(db, logger)
	sessionRepo := session.NewPGRepository(db, logger)
	roles := session.NewRoleRepository(db)
	moderation := session.NewModerationStore(rdb)
	friendRepo := friend.NewPGRepository(db, logger)
	messageRepo := message.NewPGRepository(db, logger)
	uploadRepo := upload.NewPGRepository(db, logger)
	uploadSessions := upload.NewSessionStore(rdb, cfg.UploadSessionTTL)

	// RBAC resolver with a read-through cache, invalidated on role/permission writes.
	rbacStore := rbac.NewPGStore(db)
	resolver := rbac.NewResolver(rbacStore, logger)
	rbacCache := rbac.NewValkeyCache(rdb)
	sessionResolver := rbac.NewCachedResolver(resolver, rbacCache)

	publisher := bus.NewPublisher(rdb, logger)

	// Identity & domain services
	identitySvc, err := identity.NewService(users, rdb, cfg, logger)
	if err != nil {
		return fmt.Errorf("init identity service: %w", err)
	}
	accountSvc := service.NewAccountService(identitySvc, users, logger)
	friendSvc := service.NewFriendService(friendRepo, messageRepo, publisher, logger)

	storage := media.NewLocalStorage(cfg.StorageRoot)
	uploadEngine := upload.NewEngine(uploadRepo, users, storage, logger)
	uploadSvc := service.NewUploadService(uploadEngine, uploadSessions, cfg.MaxUploadSizeBytes, cfg.UploadChunkSizeBytes, logger)

	sessionSvc := service.NewSessionService(sessionRepo, roles, moderation, sessionResolver, messageRepo, users, publisher, cfg.RoomKeyRotationTTL, logger)
	messageSvc := service.NewMessageService(messageRepo, sessionRepo, moderation, sessionResolver, publisher, sessionSvc, logger)

	roomStore := webrtcroom.NewStore(rdb, 24*time.Hour)
	roomSvc := service.NewRoomService(roomStore, gen, publisher, logger)

	// Rate limiting & maintenance admission
	perUserLimiter := ratelimit.NewLimiter(cfg.RateLimitBurst, cfg.RateLimitReplenishPeriod)
	admission := ratelimit.NewAdmissionGate(func() bool { return cfg.MaintenanceMode })

	// The gateway hub owns its own bus subscription and fans decoded
	// envelopes out to whichever locally-connected client they address.
	subscriber := bus.NewSubscriber(rdb, logger)
	gatewayHub := gateway.NewHub(gateway.Config{JWTSecret: cfg.JWTSecret, JWTIssuer: cfg.JWTIssuer}, messageSvc, subscriber, perUserLimiter, logger)
	coord.Subscribe("gateway-hub")
	go func() {
		defer coord.Done("gateway-hub")
		runWithBackoff(ctx, "gateway-hub", gatewayHub.Run)
	}()

	srv := &server{
		cfg:      cfg,
		accounts: api.NewAccountHandler(accountSvc),
		auth:     &api.AuthHandler{Accounts: accountSvc},
		friends:  api.NewFriendHandler(friendSvc),
		sessions: api.NewSessionHandler(sessionSvc),
		messages: api.NewMessageHandler(messageSvc),
		rooms:    api.NewRoomHandler(roomSvc),
		uploads:  api.NewUploadHandler(uploadSvc),
		gw:       api.NewGatewayHandler(gatewayHub),
		health:   &api.HealthHandler{DB: db, Redis: rdb},
		limiter:  perUserLimiter,
	}

	app := fiber.New(fiber.Config{
		AppName:   "ourchat-server",
		BodyLimit: int(cfg.MaxUploadSizeBytes),
		ErrorHandler: func(c fiber.Ctx, err error) error {
			status := fiber.StatusInternalServerError
			msg := "an internal error occurred"
			code := apierrors.CodeInternal
			if fe, ok := errors.AsType[*fiber.Error](err); ok {
				status = fe.Code
				msg = fe.Message
				code = fiberStatusToAPICode(fe.Code)
			} else {
				log.Error().Err(err).Msg("unhandled request error")
			}
			return c.Status(status).JSON(httputil.ErrorResponse{
				Error: httputil.ErrorBody{Code: code, Message: msg},
			})
		},
	})

	app.Use(requestid.New())
	app.Use(httputil.RequestLogger(logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Split(cfg.CORSAllowOrigins, ","),
		AllowMethods: []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        200,
		Expiration: time.Minute,
	}))
	app.Use(ratelimit.MaintenanceMiddleware(admission))

	srv.registerRoutes(app)

	go func() {
		<-ctx.Done()
		logger.Info().Msg("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		coord.Shutdown(shutdownCtx)

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("error during http shutdown")
		}
	}()

	logger.Info().Int("port", cfg.ServerPort).Msg("starting ourchat-server")
	if err := app.Listen(fmt.Sprintf(":%d", cfg.ServerPort)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

func (s *server) registerRoutes(app *fiber.App) {
	requireAuth := identity.RequireAuth(s.cfg.JWTSecret, s.cfg.JWTIssuer)
	userLimit := ratelimit.Middleware(s.limiter)

	app.Get("/api/v1/health", s.health.Health)

	authGroup := app.Group("/api/v1/auth")
	authGroup.Use(limiter.New(limiter.Config{Max: 10, Expiration: time.Minute}))
	authGroup.Post("/register", s.auth.Register)
	authGroup.Post("/login", s.auth.Login)

	accountGroup := app.Group("/api/v1/users", requireAuth, userLimit)
	accountGroup.Get("/me", s.accounts.Me)
	accountGroup.Patch("/me", s.accounts.UpdateProfile)
	accountGroup.Delete("/me", s.accounts.Deactivate)
	accountGroup.Get("/:userID", s.accounts.Get)

	friendGroup := app.Group("/api/v1/friends", requireAuth, userLimit)
	friendGroup.Get("/", s.friends.List)
	friendGroup.Post("/invitations", s.friends.Invite)
	friendGroup.Post("/invitations/:invitationID", s.friends.Resolve)
	friendGroup.Delete("/:userID", s.friends.Remove)

	sessionGroup := app.Group("/api/v1/sessions", requireAuth, userLimit)
	sessionGroup.Post("/", s.sessions.Create)
	sessionGroup.Get("/:sessionID", s.sessions.Get)
	sessionGroup.Patch("/:sessionID", s.sessions.SetInfo)
	sessionGroup.Delete("/:sessionID", s.sessions.Delete)
	sessionGroup.Post("/:sessionID/members", s.sessions.Invite)
	sessionGroup.Delete("/:sessionID/members/me", s.sessions.Leave)
	sessionGroup.Delete("/:sessionID/members/:userID", s.sessions.Kick)
	sessionGroup.Post("/:sessionID/mute", s.sessions.Mute)
	sessionGroup.Delete("/:sessionID/mute/:userID", s.sessions.Unmute)
	sessionGroup.Post("/:sessionID/ban", s.sessions.Ban)
	sessionGroup.Delete("/:sessionID/ban/:userID", s.sessions.Unban)
	sessionGroup.Post("/:sessionID/roles/assign", s.sessions.AssignRole)
	sessionGroup.Post("/:sessionID/e2ee", s.sessions.E2EEize)
	sessionGroup.Delete("/:sessionID/e2ee", s.sessions.Dee2eeize)
	sessionGroup.Post("/:sessionID/room-key/rotate", s.sessions.RotateRoomKey)
	sessionGroup.Post("/:sessionID/room-key/send", s.sessions.SendRoomKey)

	messageGroup := app.Group("/api/v1/messages", requireAuth, userLimit)
	messageGroup.Post("/", s.messages.Send)
	messageGroup.Get("/", s.messages.Fetch)
	messageGroup.Post("/recall", s.messages.Recall)

	roomGroup := app.Group("/api/v1/rooms", requireAuth, userLimit)
	roomGroup.Post("/", s.rooms.Create)
	roomGroup.Post("/:roomID/invitations", s.rooms.Invite)
	roomGroup.Post("/:roomID/invitations/accept", s.rooms.AcceptInvitation)
	roomGroup.Post("/:roomID/members", s.rooms.Join)
	roomGroup.Delete("/:roomID/members/me", s.rooms.Leave)
	roomGroup.Get("/:roomID/members", s.rooms.GetMembers)
	roomGroup.Delete("/:roomID/members/:userID", s.rooms.KickUser)
	roomGroup.Post("/:roomID/admins", s.rooms.PromoteAdmin)
	roomGroup.Delete("/:roomID/admins/:userID", s.rooms.DemoteAdmin)
	app.Post("/api/v1/webrtc/signal", requireAuth, userLimit, s.rooms.Signal)

	uploadGroup := app.Group("/api/v1/files", requireAuth, userLimit)
	uploadGroup.Post("/", s.uploads.PutSingle)
	uploadGroup.Post("/chunked", s.uploads.BeginChunked)
	uploadGroup.Put("/chunked/:sessionID/:index", s.uploads.PutChunk)
	uploadGroup.Post("/chunked/:sessionID/complete", s.uploads.Complete)
	uploadGroup.Delete("/chunked/:sessionID", s.uploads.Cancel)
	uploadGroup.Get("/:key", s.uploads.Open)

	app.Get("/api/v1/gateway", s.gw.Upgrade)

	app.Use(func(c fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "no matching route")
	})
}

// runWithBackoff runs fn until ctx is cancelled, restarting it with
// exponential backoff (capped at 2 minutes) if it returns a non-cancellation
// error.
func runWithBackoff(ctx context.Context, name string, fn func(context.Context) error) {
	backoff := time.Second
	const maxBackoff = 2 * time.Minute

	for {
		err := fn(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		log.Error().Err(err).Str("service", name).Dur("backoff", backoff).Msg("background service stopped, restarting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// fiberStatusToAPICode maps an HTTP status code from Fiber's built-in errors
// (404, 405, etc.) to the closest apierrors code, for responses that never
// reached a handler.
func fiberStatusToAPICode(code int) apierrors.Code {
	switch code {
	case fiber.StatusNotFound:
		return apierrors.CodeNotFound
	case fiber.StatusUnauthorized:
		return apierrors.CodeUnauthenticated
	case fiber.StatusForbidden:
		return apierrors.CodePermissionDenied
	case fiber.StatusConflict:
		return apierrors.CodeAlreadyExists
	case fiber.StatusTooManyRequests:
		return apierrors.CodeResourceExhausted
	case fiber.StatusBadRequest, fiber.StatusMethodNotAllowed, fiber.StatusUnprocessableEntity:
		return apierrors.CodeInvalidArgument
	default:
		return apierrors.CodeInternal
	}
}
