package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ndelage/parlor/internal/adapters"
	"github.com/ndelage/parlor/internal/app"
	"github.com/ndelage/parlor/internal/config"
	"github.com/ndelage/parlor/internal/store"
)

// ClientTokenMiddleware hands each browser a stable token it can reuse as
// its default user id across visits. Purely advisory; the token is not an
// authentication mechanism.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		token, _ := sess.Get("ct").(string)
		if token == "" {
			token = uuid.NewString()
			sess.Set("ct", token)
			if err := sess.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save client token")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, coord *app.Coordinator, st *store.Store) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	cookieStore := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ParlorSession", cookieStore))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": coord.Registry.Count()})
	})

	api.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"clientToken": c.GetString("client_token")})
	})

	// Active users, resolved against the profile store.
	api.GET("/users", func(c *gin.Context) {
		users, err := st.ListUsersByID(c.Request.Context(), coord.Registry.ActiveUserIDs())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"users": users})
	})

	// Recent chat history, newest window in chronological order.
	api.GET("/messages", func(c *gin.Context) {
		limit := cfg.HistoryLimit
		if q := c.Query("limit"); q != "" {
			n, err := strconv.Atoi(q)
			if err != nil || n <= 0 || n > cfg.HistoryLimit {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
				return
			}
			limit = n
		}
		msgs, err := st.ListLastMessages(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": msgs})
	})

	ws := &adapters.WSController{
		Coord:      coord,
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendBuffer: cfg.SendBuffer,
	}
	r.GET("/ws", func(c *gin.Context) {
		ws.Handle(ctx, c)
	})

	return r
}
