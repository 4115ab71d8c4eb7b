package routes

import (
	"time"

	"relay-service/internal/api/handlers"
	"relay-service/internal/api/middleware"
	"relay-service/internal/database"
	"relay-service/internal/repositories/postgres"
	"relay-service/internal/services"
	"relay-service/internal/websocket"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

type Router struct {
	engine           *gin.Engine
	wsHandler        *handlers.WSHandler
	broadcastHandler *handlers.BroadcastHandler
	statsHandler     *handlers.StatsHandler
	authHandler      *handlers.AuthHandler
	userHandler      *handlers.UserHandler
	rateLimitMW      *middleware.RateLimitMiddleware
	authMW           *middleware.AuthMiddleware
}

func NewRouter(
	hub *websocket.Hub,
	redisService *services.RedisService,
	db *gorm.DB,
	storage *database.MinIOClient,
	jwtSecret string,
	jwtExpiry time.Duration,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS())
	engine.Use(middleware.LogApi())

	userRepo := postgres.NewUserRepository(db)
	userService := services.NewUserService(userRepo, jwtSecret, jwtExpiry)

	authMW := middleware.NewAuthMiddleware(jwtSecret)

	return &Router{
		engine:           engine,
		wsHandler:        handlers.NewWSHandler(hub, authMW),
		broadcastHandler: handlers.NewBroadcastHandler(hub),
		statsHandler:     handlers.NewStatsHandler(hub),
		authHandler:      handlers.NewAuthHandler(userService),
		userHandler:      handlers.NewUserHandler(userService, storage),
		rateLimitMW:      middleware.NewRateLimitMiddleware(redisService),
		authMW:           authMW,
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	r.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.engine.Group("/api/v1")

	// Credential verification happens inside the handler so browser
	// clients can pass the token as a query parameter.
	api.GET("/ws", r.wsHandler.HandleWebSocket)

	api.GET("/stats", r.statsHandler.GetStats)

	// Ingestion boundary for external producers.
	ingest := api.Group("/")
	ingest.Use(r.authMW.RequireAuth())
	{
		ingest.POST("/broadcast",
			r.rateLimitMW.RateLimit(600, time.Minute),
			r.broadcastHandler.Broadcast,
		)

		users := ingest.Group("/users")
		users.Use(r.rateLimitMW.RateLimit(30, time.Minute))
		{
			users.POST("/avatar", r.userHandler.UploadAvatar)
		}
	}

	// Public routes (no authentication required)
	public := api.Group("/auth")
	public.Use(r.rateLimitMW.RateLimitIP(50, time.Minute))
	{
		public.POST("/register", r.authHandler.Register)
		public.POST("/login", r.authHandler.Login)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
