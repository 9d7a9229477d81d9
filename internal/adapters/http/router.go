package http

import (
	"context"
	"net/http"

	"github.com/dkeye/VoiceAgent/internal/adapters/ui"
	"github.com/dkeye/VoiceAgent/internal/app/orch"
	"github.com/dkeye/VoiceAgent/internal/config"
	transport "github.com/dkeye/VoiceAgent/internal/transport/http"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	clientCookie = "ct"
	cookieMaxAge = 3600 * 24 * 7
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

// ClientTokenMiddleware identifies the browser. The token lives in the signed
// session and is mirrored in the ct cookie for the page.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		token, _ := s.Get(clientCookie).(string)
		if token == "" {
			token, _ = c.Cookie(clientCookie)
		}
		if _, err := uuid.Parse(token); err != nil {
			token = genClientToken()
		}
		if s.Get(clientCookie) != token {
			s.Set(clientCookie, token)
			if err := s.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		if cur, _ := c.Cookie(clientCookie); cur != token {
			c.SetCookie(clientCookie, token, cookieMaxAge, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": o.Registry.Len()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: cookieMaxAge, HttpOnly: true})
	r.Use(sessions.Sessions("VoiceAgentSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")
	transport.NewSessionHandlers(o).Register(api)

	uiCtl := ui.NewUIWSController(o, ui.Config{ReadLimit: cfg.ReadLimit, PingPeriod: cfg.PingPeriod})
	api.GET("/ws/ui", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws ui endpoint hit")
		uiCtl.HandleUI(ctx, c)
	})

	return r
}
