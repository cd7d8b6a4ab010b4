// Package api реализует HTTP-инспектор мира, только для чтения.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/rpgng/internal/component/dialogue"
	"github.com/annel0/rpgng/internal/component/inventory"
	"github.com/annel0/rpgng/internal/component/sprite"
	"github.com/annel0/rpgng/internal/component/transform"
	"github.com/annel0/rpgng/internal/entity"
	"github.com/annel0/rpgng/internal/htable"
	"github.com/annel0/rpgng/internal/logging"
	"github.com/annel0/rpgng/internal/metrics"
	"github.com/annel0/rpgng/internal/middleware"
	"github.com/annel0/rpgng/internal/world"
)

// Config содержит конфигурацию инспектора
type Config struct {
	Addr    string // адрес для запуска сервера
	Service string // имя сервиса для метрик и трассировки
	// Registry: реестр Prometheus; при nil создаётся prometheus.NewRegistry().
	Registry *prometheus.Registry
}

// Inspector отдаёт состояние мира по HTTP.
type Inspector struct {
	router  *gin.Engine
	world   *world.World
	addr    string
	metrics *ProcessMetrics
	log     *logging.Logger
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// NewInspector создаёт инспектор и регистрирует метрики мира и HTTP.
func NewInspector(w *world.World, cfg Config) (*Inspector, error) {
	if cfg.Addr == "" {
		cfg.Addr = ":8088"
	}
	if cfg.Service == "" {
		cfg.Service = "rpgng"
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(otelgin.Middleware(cfg.Service))
	router.Use(middleware.NewRequestLogger().Handler())

	promMw, err := middleware.NewPrometheusMiddleware("inspector", cfg.Registry)
	if err != nil {
		return nil, err
	}
	router.Use(promMw.Handler())
	if err := metrics.NewWorldCollector(w).Register(cfg.Registry); err != nil {
		return nil, err
	}
	middleware.RegisterMetricsEndpoint(router, cfg.Registry)

	in := &Inspector{
		router:  router,
		world:   w,
		addr:    cfg.Addr,
		metrics: NewProcessMetrics(),
		log:     logging.GetComponentLogger("inspector"),
	}
	in.setupRoutes()
	return in, nil
}

func (in *Inspector) setupRoutes() {
	in.router.GET("/health", in.handleHealth)

	api := in.router.Group("/api")
	{
		api.GET("/stats", in.handleStats)
		api.GET("/entities", in.handleEntities)
		api.GET("/entities/:id", in.handleEntity)
		api.GET("/entities/by-name/:name", in.handleEntityByName)
		api.GET("/items", in.handleItems)
	}
}

// Handler возвращает http.Handler инспектора.
func (in *Inspector) Handler() http.Handler { return in.router }

// Run обслуживает запросы до отмены ctx.
func (in *Inspector) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              in.addr,
		Handler:           in.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		in.log.Info("inspector listening on %s", in.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	in.log.Info("inspector stopped")
	return nil
}

func (in *Inspector) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "world": in.world.ID})
}

func (in *Inspector) handleStats(c *gin.Context) {
	s := in.world.Stats()

	components := make(map[string]int, len(s.Registry.Components))
	for tag, n := range s.Registry.Components {
		components[tag.String()] = n
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Data: gin.H{
			"world": s.ID,
			"entities": gin.H{
				"count":      s.Registry.Entities,
				"next_id":    s.Registry.NextID,
				"components": components,
				"by_id":      tableView(s.Registry.ByID),
				"by_name":    tableView(s.Registry.ByName),
			},
			"sprites_live":     s.SpritesLive,
			"dialogues_cached": s.DialoguesCached,
			"items":            s.Items,
			"events": gin.H{
				"published": s.Events.Published,
				"consumed":  s.Events.Consumed,
				"dropped":   s.Events.Dropped,
			},
			"process": in.metrics.Snapshot(),
		},
	})
}

func (in *Inspector) handleEntities(c *gin.Context) {
	var out []EntityView
	_ = in.world.View(func(reg *entity.Registry) error {
		out = make([]EntityView, 0, reg.Len())
		reg.Each(func(e *entity.Entity) bool {
			out = append(out, in.entityView(e))
			return true
		})
		return nil
	})
	c.JSON(http.StatusOK, GenericResponse{Success: true, Data: out})
}

func (in *Inspector) handleEntity(c *gin.Context) {
	raw, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "invalid entity id"})
		return
	}
	in.respondEntity(c, func(reg *entity.Registry) (*entity.Entity, bool) {
		return reg.Get(entity.ID(raw))
	})
}

func (in *Inspector) handleEntityByName(c *gin.Context) {
	name := c.Param("name")
	in.respondEntity(c, func(reg *entity.Registry) (*entity.Entity, bool) {
		return reg.GetByName(name)
	})
}

func (in *Inspector) respondEntity(c *gin.Context, find func(reg *entity.Registry) (*entity.Entity, bool)) {
	var (
		view  EntityView
		found bool
	)
	_ = in.world.View(func(reg *entity.Registry) error {
		e, ok := find(reg)
		if ok {
			view, found = in.entityView(e), true
		}
		return nil
	})
	if !found {
		c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: "entity not found"})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Data: view})
}

func (in *Inspector) handleItems(c *gin.Context) {
	var items []inventory.Item
	_ = in.world.View(func(*entity.Registry) error {
		items = in.world.Inventories.Items()
		return nil
	})
	c.JSON(http.StatusOK, GenericResponse{Success: true, Data: items})
}

// EntityView содержит JSON-представление сущности.
type EntityView struct {
	ID         uint32                 `json:"id"`
	Name       string                 `json:"name"`
	Components map[string]interface{} `json:"components"`
}

func (in *Inspector) entityView(e *entity.Entity) EntityView {
	v := EntityView{ID: uint32(e.ID), Name: e.Name, Components: map[string]interface{}{}}
	for _, tag := range e.Tags() {
		p, _ := e.Component(tag)
		v.Components[tag.String()] = in.componentView(p)
	}
	return v
}

func (in *Inspector) componentView(p entity.Payload) interface{} {
	switch c := p.(type) {
	case *transform.Transform:
		pos := c.Position()
		return gin.H{"x": pos.X, "y": pos.Y, "rotation": c.Rotation(), "scale": c.Scale()}
	case *sprite.Sprite:
		return gin.H{
			"path":    c.Path,
			"opacity": c.Opacity(),
			"flip_h":  c.FlipH,
			"flip_v":  c.FlipV,
			"clip":    []int{c.Clip.Min.X, c.Clip.Min.Y, c.Clip.Max.X, c.Clip.Max.Y},
		}
	case *inventory.Inventory:
		return gin.H{"items": c.Items(), "capacity": c.Capacity()}
	case *dialogue.Dialogue:
		return gin.H{"path": c.Path, "current": c.Current}
	default:
		return gin.H{"tag": p.Tag().String()}
	}
}

func tableView(s htable.Stats) gin.H {
	return gin.H{
		"buckets":     s.Buckets,
		"mappings":    s.Mappings,
		"rehashes":    s.Rehashes,
		"load_factor": s.LoadFactor(),
	}
}
