package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/infinity-finance/backend/internal/service"
)

type RouterDeps struct {
	Auth           *service.AuthService
	Users          *service.UserService
	Logger         *slog.Logger
	AllowedOrigins []string
}

// NewRouter wires every route onto a fresh gin engine.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(deps.Logger))
	router.Use(CORSMiddleware(deps.AllowedOrigins))

	router.GET("/ping", Ping)
	router.GET("/", Root)
	router.GET("/openapi.json", OpenAPIDoc)

	authHandler := NewAuthHandler(deps.Auth)
	userHandler := NewUserHandler(deps.Users)
	requireAuth := AuthMiddleware(deps.Auth)

	v1 := router.Group("/api/v1")

	auth := v1.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", requireAuth, authHandler.Logout)
	auth.POST("/password-reset", authHandler.RequestPasswordReset)
	auth.POST("/password-reset/confirm", authHandler.ResetPassword)

	users := v1.Group("/users")
	users.POST("/register", userHandler.Register)

	me := users.Group("/me", requireAuth, RequireScopes("me"))
	me.GET("", userHandler.Me)
	me.PUT("", userHandler.UpdateMe)
	me.DELETE("", userHandler.DeleteMe)
	me.PUT("/password", userHandler.ChangePassword)

	users.GET("/:id", requireAuth, userHandler.GetByID)

	return router
}
