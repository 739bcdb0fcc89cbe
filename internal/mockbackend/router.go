// Package mockbackend is a stand-in for the hospital voice backend:
// canned hospitals, scripted chat replies and a voice-mode websocket
// that echoes a transcription and a spoken response for every turn. It
// exists so the client can be exercised end to end without the real
// service.
package mockbackend

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/edenward/carevoice/internal/observability"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware pins a browser-style client cookie so repeated
// REST calls land on the same mock conversation.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

type RouterConfig struct {
	Mode   string
	Secret string
}

func SetupRouter(cfg RouterConfig, srv *Server) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("CareVoiceMock", store))
	r.Use(ClientTokenMiddleware())

	log.Info().Str("module", "mockbackend").Str("mode", cfg.Mode).Msg("router setup")

	chat := r.Group("/api/chat")
	chat.GET("/hospitals", srv.handleHospitals)
	chat.POST("/session", srv.handleCreateSession)
	chat.POST("/message", srv.handleMessage)

	v1 := r.Group("/api/v1")
	v1.POST("/speech-to-text", srv.handleSpeechToText)
	v1.POST("/text-to-speech", srv.handleTextToSpeech)
	v1.GET("/ws/voice-mode", srv.handleVoiceMode)

	r.GET("/metrics", gin.WrapH(observability.MetricsHandler()))

	return r
}
