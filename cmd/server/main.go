package main

import (
	"time"

	"recon-review-gateway/internal/config"
	"recon-review-gateway/internal/routes"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		config.GetLogger().Info("No .env file found, relying on system env")
	}

	cfg := config.Load()
	log := config.GetLogger()

	r := gin.Default()
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.AllowedOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Correlation-Id"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, cfg)

	log.WithField("addr", cfg.ListenAddr).Info("review gateway listening")
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatal(err)
	}
}
