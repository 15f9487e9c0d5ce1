package router

import (
	"time"

	"concentra/internal/config"
	"concentra/internal/handler"
	"concentra/internal/infra"
	"concentra/internal/middleware"
	"concentra/internal/repository"
	"concentra/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Deps are the long-lived components built by the composition root and
// shared with the worker pool and scheduler.
type Deps struct {
	DB         *gorm.DB
	RDB        *redis.Client
	Emisor     *service.Emisor
	Cache      *service.CotizacionCache
	PreciosCB  *infra.CircuitBreaker
	Limiter    *middleware.RateLimiter
	TipoCambio decimal.Decimal
}

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(cfg.CORSOrigin))
	r.Use(middleware.ErrorHandler())
	if d.Limiter == nil {
		d.Limiter = middleware.NewRateLimiter(cfg.RateLimitRPM, time.Minute)
	}
	r.Use(d.Limiter.Handler())

	// ── Repositories ─────────────────────────────────────────────────────────
	plantaRepo := repository.NewPlantaRepository(d.DB)
	loteRepo := repository.NewLoteRepository(d.DB)
	concentradoRepo := repository.NewConcentradoRepository(d.DB)
	liquidacionRepo := repository.NewLiquidacionRepository(d.DB)

	// ── Services ─────────────────────────────────────────────────────────────
	concentradoSvc := service.NewConcentradoService(concentradoRepo, loteRepo, plantaRepo, liquidacionRepo, d.Emisor, d.TipoCambio)
	kanbanSvc := service.NewKanbanService(concentradoRepo, d.Emisor)
	liquidacionSvc := service.NewLiquidacionService(liquidacionRepo, concentradoRepo, loteRepo, d.Cache, d.Emisor, d.TipoCambio)

	// ── Handlers ─────────────────────────────────────────────────────────────
	concentradosH := handler.NewConcentradosHandler(concentradoSvc)
	kanbanH := handler.NewKanbanHandler(kanbanSvc)
	liquidacionesH := handler.NewLiquidacionesHandler(liquidacionSvc)
	cotizacionesH := handler.NewCotizacionesHandler(d.Cache)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(d.DB, d.RDB, d.PreciosCB))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Protected routes
	v1 := r.Group("/v1", middleware.JWTAuth(cfg.JWTSecret))
	{
		conc := v1.Group("/concentrados")
		{
			conc.POST("", concentradosH.Crear)
			conc.GET("/:id", concentradosH.Obtener)
			conc.GET("/:id/historial", concentradosH.Historial)
			conc.POST("/:id/despachar", concentradosH.Despachar)
			conc.POST("/:id/reporte-quimico", concentradosH.ReporteQuimico)
			conc.POST("/:id/peso-final", concentradosH.PesoFinal)
			conc.POST("/:id/listo-liquidacion", concentradosH.ListoLiquidacion)
			conc.POST("/:id/habilitar-venta", concentradosH.HabilitarVenta)

			conc.GET("/:id/tablero", kanbanH.Tablero)
			conc.POST("/:id/procesamiento/iniciar", kanbanH.Iniciar)
			conc.POST("/:id/procesamiento/avanzar", kanbanH.Avanzar)
			conc.POST("/:id/procesamiento/finalizar", kanbanH.Finalizar)
		}

		liq := v1.Group("/liquidaciones")
		{
			liq.POST("/venta", liquidacionesH.CrearVenta)
			liq.GET("/:id", liquidacionesH.Obtener)
			liq.GET("/:id/historial", liquidacionesH.Historial)
			liq.POST("/:id/solicitar", liquidacionesH.SolicitarServicio)
			liq.POST("/:id/revisar", liquidacionesH.Revisar)
			liq.POST("/:id/aprobar", liquidacionesH.Aprobar)
			liq.POST("/:id/pago", liquidacionesH.Pagar)
			liq.POST("/:id/rechazar", liquidacionesH.Rechazar)
			liq.POST("/:id/reemitir", liquidacionesH.Reemitir)
			liq.POST("/:id/solicitar-reportes", liquidacionesH.SolicitarReportes)
			liq.POST("/:id/reportes", liquidacionesH.RegistrarReporte)
			liq.POST("/:id/cerrar", liquidacionesH.Cerrar)
		}

		v1.GET("/cotizaciones", cotizacionesH.Listar)
		v1.POST("/cotizaciones/invalidar", cotizacionesH.Invalidar)
	}

	return r
}
