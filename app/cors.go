package app

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"volunteerops/config"
)

func useCORS(r *gin.Engine, cfg config.Config) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     lo.Uniq(append([]string{cfg.WebOrigin}, cfg.RPOrigins...)),
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "X-CSRF-Token", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}
