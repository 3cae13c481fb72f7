// Package httpapi is the local control surface: the UI process drives
// user-initiated call actions over loopback HTTP.
package httpapi

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/akorolev/Dial/internal/call"
	"github.com/akorolev/Dial/internal/config"
	"github.com/akorolev/Dial/internal/core"
)

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, coord *call.Coordinator, completions core.CompletionStore) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("DialSessions", store))
	r.Use(ClientTokenMiddleware())

	log.Info().Str("module", "httpapi").Msg("router setup")

	ctl := &Controller{Coord: coord, Completions: completions}

	api := r.Group("/api")
	api.POST("/calls", ctl.StartCall)
	api.GET("/calls/active", ctl.ActiveCall)
	api.POST("/calls/:id/accept", ctl.AcceptCall)
	api.POST("/calls/:id/end", ctl.EndCall)
	api.POST("/mute", ctl.SetMute)
	api.POST("/speaker", ctl.SetSpeaker)
	api.GET("/conversations/:id/history", ctl.History)

	return r
}
