package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tripchat/internal/auth"
	"tripchat/internal/db"
	"tripchat/internal/handlers"
	"tripchat/internal/middleware"
	"tripchat/internal/observability"
	"tripchat/internal/repositories"
	"tripchat/internal/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	database, err := db.Connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	shutdownTracer := observability.InitTracer("tripchat")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(ctx)
	}()

	amqpURL := getEnv("AMQP_URL", "")
	if amqpURL != "" {
		publisher, err := observability.NewAMQPPublisher(amqpURL, getEnv("AMQP_EXCHANGE", "tripchat.events"))
		if err != nil {
			log.Printf("amqp disabled: %v", err)
		} else {
			observability.SetPublisher(publisher)
			defer publisher.Close()
		}
	}

	jwtManager := auth.NewJWTManager(getEnv("JWT_SECRET", "dev-secret"), 24*time.Hour)
	serviceToken := getEnv("SERVICE_TOKEN", "")

	messageRepo := repositories.NewMessageRepo(database)
	notificationRepo := repositories.NewNotificationRepo(database)

	hub := ws.NewHub()

	chatHandler := handlers.NewChatHandler(messageRepo, hub)
	notificationHandler := handlers.NewNotificationHandler(notificationRepo, hub, serviceToken)
	wsHandler := ws.NewHandler(hub, jwtManager, messageRepo)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(jwtManager)

	router.GET("/notifications", authMiddleware, notificationHandler.List)
	router.PUT("/notifications/:id/read", authMiddleware, notificationHandler.MarkRead)
	router.PUT("/notifications/read-all", authMiddleware, notificationHandler.MarkAllRead)
	router.DELETE("/notifications/:id", authMiddleware, notificationHandler.Delete)

	router.GET("/chat/conversation/:userA/:userB", authMiddleware, chatHandler.GetConversation)
	router.POST("/chat/send", authMiddleware, chatHandler.SendMessage)

	router.POST("/internal/notifications", notificationHandler.CreateInternal)

	router.GET("/ws", wsHandler.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if getEnv("DEV_TOKEN_ENDPOINT", "") == "true" {
		router.POST("/auth/token", func(c *gin.Context) {
			userID, err := strconv.ParseInt(c.Query("userId"), 10, 64)
			if err != nil || userID == 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid userId"})
				return
			}
			token, err := jwtManager.Issue(userID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"token": token})
		})
	}

	port := getEnv("PORT", "8083")
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
