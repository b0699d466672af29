package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/XANi/weatherstage/entry"
	"github.com/XANi/weatherstage/queue"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type WebBackend struct {
	l       *zap.SugaredLogger
	al      *zap.SugaredLogger
	r       *gin.Engine
	srv     *http.Server
	manager *entry.Manager
	bus     *queue.Bus
}

type Config struct {
	Logger       *zap.SugaredLogger
	AccessLogger *zap.SugaredLogger
	ListenAddr   string
	Manager      *entry.Manager
	Bus          *queue.Bus
}

func New(cfg Config) (backend *WebBackend, err error) {
	if cfg.Logger == nil {
		panic("missing logger")
	}
	if cfg.Manager == nil || cfg.Bus == nil {
		return nil, fmt.Errorf("manager and bus are required")
	}
	if len(cfg.ListenAddr) == 0 {
		return nil, fmt.Errorf("missing listen addr")
	}
	w := WebBackend{
		l:       cfg.Logger,
		al:      cfg.AccessLogger,
		manager: cfg.Manager,
		bus:     cfg.Bus,
	}
	if cfg.AccessLogger == nil {
		w.al = w.l
	}
	r := gin.New()
	w.r = r
	r.Use(ginzap.Ginzap(w.al.Desugar(), time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(w.l.Desugar(), true))

	r.GET("/healthz", w.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	api := r.Group("/api")
	api.POST("/events", w.PostEvent)
	entries := api.Group("/entries")
	entries.GET("", w.ListEntries)
	entries.POST("", w.CreateEntry)
	entries.GET("/:id", w.GetEntry)
	entries.PUT("/:id", w.ReconfigureEntry)
	entries.DELETE("/:id", w.DeleteEntry)
	entries.PUT("/:id/options", w.UpdateOptions)
	entries.GET("/:id/payload", w.GetPayload)
	entries.GET("/:id/status", w.GetStatus)
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	w.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &w, nil
}

func (b *WebBackend) Handler() http.Handler {
	return b.r
}

func (b *WebBackend) Run() error {
	b.l.Infof("listening on %s", b.srv.Addr)
	err := b.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (b *WebBackend) Shutdown(ctx context.Context) error {
	return b.srv.Shutdown(ctx)
}
