package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	appsvc "chatrelay/internal/app"
	"chatrelay/internal/bootstrap"
	"chatrelay/internal/cache"
	"chatrelay/internal/genproc"
	"chatrelay/internal/platform/rabbitmq"
	"chatrelay/internal/repository"
	"chatrelay/internal/transport/http/handler"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	turnRepo := repository.NewTurnRepository(app.MySQL)
	docRepo := repository.NewDocumentRepository(app.MySQL)
	publisher := rabbitmq.NewTurnPublisher(app.MQConn, app.Config.RabbitMQ.TurnPersistQueue)
	historyCache := cache.NewHistoryCache(
		app.Redis,
		time.Duration(app.Config.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(app.Config.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)
	generators := genproc.NewRunnerFactory(app.Config.Generator, app.Log)

	chatService := appsvc.NewChatService(
		turnRepo,
		docRepo,
		publisher,
		historyCache,
		generators,
		time.Duration(app.Config.Generator.TimeoutSeconds)*time.Second,
		app.Log,
	)
	docService := appsvc.NewDocumentService(docRepo, app.Config.Upload.TextCap, app.Log)

	chatHandler := handler.NewChatHandler(chatService, app.Log)
	uploadHandler := handler.NewUploadHandler(docService, app.Config.Upload, app.Log)
	healthHandler := handler.NewHealthHandler(app)

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "running",
			"message": "AI backend is live",
		})
	})
	// Login is a stub: there is no account system behind it.
	router.POST("/login", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/healthz", healthHandler.Check)

	router.POST("/chat-stream", chatHandler.Stream)
	router.GET("/history", chatHandler.History)
	router.POST("/clear-history", chatHandler.ClearHistory)
	router.POST("/upload", uploadHandler.Upload)

	return router
}
