package dashboard

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"heatflow/config"
	"heatflow/internal/metrics"
	"heatflow/logger"
	"heatflow/models"
	"heatflow/processor"
)

//go:embed templates/*.tmpl assets/*
var embeddedFS embed.FS

const (
	defaultOrdersLimit = 50
	gestureTimeout     = 2 * time.Second
)

// Controller is the engine surface driven by the dashboard's gesture API.
type Controller interface {
	View(ctx context.Context) (processor.ViewState, error)
	Zoom(ctx context.Context, fraction, delta float64) (processor.ViewState, error)
	PanStart(ctx context.Context) (processor.ViewState, error)
	PanMove(ctx context.Context, gestureID string, dx, dy float64) (processor.ViewState, error)
	PanEnd(ctx context.Context, gestureID string) (processor.ViewState, error)
	Reset(ctx context.Context) (processor.ViewState, error)
	Resize(ctx context.Context, width, height int) (processor.ViewState, error)
	Stats() processor.EngineStats
}

// FrameSource exposes the most recently rendered frame.
type FrameSource interface {
	Latest() (processor.Frame, bool)
	Orders(limit int) []models.OrderEntry
}

// Server hosts the Gin-powered heatmap dashboard: the live frame, the
// viewport gesture API and the monitoring panels.
type Server struct {
	cfg               config.DashboardConfig
	log               *logger.Log
	engine            Controller
	frames            FrameSource
	gestureLimiter    *rate.Limiter
	metricStore       *metricStore
	logStore          *logStore
	metricHandler     metrics.MetricHandlerID
	httpServer        *http.Server
	refreshIntervalMs int
	resourceSampler   *resourceSampler
}

// NewServer constructs a dashboard server when the dashboard feature is enabled.
// When the dashboard is disabled the returned server will be nil.
func NewServer(cfg config.DashboardConfig, log *logger.Log, engine Controller, frames FrameSource) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if engine == nil || frames == nil {
		return nil, fmt.Errorf("dashboard needs an engine and a frame source")
	}

	cfg.Address = normalizeAddress(cfg.Address)

	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 100 * time.Millisecond
	}

	if cfg.ResourceInterval <= 0 {
		cfg.ResourceInterval = 5 * time.Second
	}

	if cfg.LogsRetention <= 0 {
		cfg.LogsRetention = 200
	}

	if cfg.MetricsRetention <= 0 {
		cfg.MetricsRetention = 200
	}

	limit := rate.Inf
	if cfg.GesturesPerSec > 0 {
		limit = rate.Limit(cfg.GesturesPerSec)
	}
	burst := cfg.GestureBurst
	if burst <= 0 {
		burst = 1
	}

	metricStore := newMetricStore(cfg.MetricsRetention)
	handlerID := metrics.RegisterMetricHandler(metricStore.handle)

	logStore := newLogStore(cfg.LogsRetention)
	log.AddHook(logStore)

	sampler := newResourceSampler(cfg.MetricsRetention, cfg.ResourceInterval, engine.Stats, log)

	server := &Server{
		cfg:               cfg,
		log:               log,
		engine:            engine,
		frames:            frames,
		gestureLimiter:    rate.NewLimiter(limit, burst),
		metricStore:       metricStore,
		logStore:          logStore,
		metricHandler:     handlerID,
		refreshIntervalMs: int(cfg.RefreshInterval / time.Millisecond),
		resourceSampler:   sampler,
	}

	if server.refreshIntervalMs <= 0 {
		server.refreshIntervalMs = 100
	}

	return server, nil
}

// Run starts the dashboard HTTP server and blocks until the provided context is
// cancelled or the underlying HTTP server exits with an error.
func (s *Server) Run(ctx context.Context, appName string) error {
	if s == nil {
		return nil
	}

	defer s.cleanup()

	router, err := s.buildRouter(appName)
	if err != nil {
		return err
	}

	if s.resourceSampler != nil {
		s.resourceSampler.start(ctx)
	}

	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if err == nil {
			return nil
		}
		return err
	}
}

func (s *Server) cleanup() {
	metrics.UnregisterMetricHandler(s.metricHandler)
	if s.logStore != nil {
		s.logStore.close()
	}
	if s.resourceSampler != nil {
		s.resourceSampler.stop()
	}
}

// Address reports the network address the dashboard server listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter(appName string) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	// Allow running behind load balancers and accessing the dashboard from
	// public networks by trusting all proxies by default. Users can
	// override Gin's trusted proxy list via the GIN_TRUSTED_PROXIES
	// environment variable if needed.
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	tmpl := template.Must(template.New("dashboard").ParseFS(embeddedFS, "templates/index.tmpl"))
	router.SetHTMLTemplate(tmpl)

	if assetsFS, err := fsSub("assets"); err == nil {
		router.StaticFS("/assets", http.FS(assetsFS))
	}

	router.GET("/", func(c *gin.Context) {
		c.HTML(http.StatusOK, "index.tmpl", gin.H{
			"AppName":           appName,
			"RefreshIntervalMs": s.refreshIntervalMs,
		})
	})

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.GET("/api/heatmap.png", s.handleFrame)
	router.GET("/api/orders", s.handleOrders)
	router.GET("/api/viewport", s.handleView)

	gestures := router.Group("/api/viewport", s.limitGestures)
	gestures.POST("/zoom", s.handleZoom)
	gestures.POST("/pan/start", s.handlePanStart)
	gestures.POST("/pan/move", s.handlePanMove)
	gestures.POST("/pan/end", s.handlePanEnd)
	gestures.POST("/reset", s.handleReset)
	gestures.POST("/resize", s.handleResize)

	router.GET("/api/metrics", s.handleMetrics)
	router.GET("/api/logs", s.handleLogs)
	router.GET("/api/resources", s.handleResources)

	return router, nil
}

func fsSub(path string) (fs.FS, error) {
	sub, err := fs.Sub(embeddedFS, path)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8080")
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}

	return addr
}
