package handler

import (
	"context"
	"net/http"

	"concentra/internal/dto"
	"concentra/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type LiquidacionesHandler struct{ svc service.LiquidacionService }

func NewLiquidacionesHandler(svc service.LiquidacionService) *LiquidacionesHandler {
	return &LiquidacionesHandler{svc: svc}
}

type accionLiquidacion func(ctx context.Context, id uuid.UUID, actor service.Actor) (*dto.LiquidacionResponse, error)

// accion runs a body-less settlement transition.
func (h *LiquidacionesHandler) accion(fn accionLiquidacion) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		resp, err := fn(c.Request.Context(), id, actorDe(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// Obtener godoc
// @Summary      Obtener liquidacion
// @Tags         liquidaciones
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "UUID de la liquidacion"
// @Success      200 {object} dto.LiquidacionResponse
// @Failure      404 {object} apierror.APIError
// @Router       /v1/liquidaciones/{id} [get]
func (h *LiquidacionesHandler) Obtener(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.ObtenerLiquidacion(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Historial godoc
// @Summary      Historial de estados de la liquidacion
// @Tags         liquidaciones
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "UUID de la liquidacion"
// @Success      200 {object} dto.HistorialListResponse
// @Router       /v1/liquidaciones/{id}/historial [get]
func (h *LiquidacionesHandler) Historial(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.ListarHistorial(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SolicitarServicio godoc
// @Summary      Solicitar liquidacion de servicio
// @Description  Calcula el costo de procesamiento (peso de lotes x costo por tonelada) mas servicios adicionales.
// @Tags         liquidaciones
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string                                  true "UUID de la liquidacion de servicio"
// @Param        body body dto.SolicitarLiquidacionServicioRequest true "Servicios y tipo de cambio"
// @Success      200  {object} dto.LiquidacionResponse
// @Failure      409  {object} apierror.APIError
// @Router       /v1/liquidaciones/{id}/solicitar [post]
func (h *LiquidacionesHandler) SolicitarServicio(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.SolicitarLiquidacionServicioRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.SolicitarLiquidacionServicio(c.Request.Context(), id, actorDe(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Revisar godoc
// @Summary      Pasar liquidacion de servicio a revision
// @Tags         liquidaciones
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "UUID de la liquidacion"
// @Success      200 {object} dto.LiquidacionResponse
// @Router       /v1/liquidaciones/{id}/revisar [post]
func (h *LiquidacionesHandler) Revisar(c *gin.Context) {
	h.accion(h.svc.RevisarLiquidacionServicio)(c)
}

// Aprobar godoc
// @Summary      Aprobar liquidacion
// @Tags         liquidaciones
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "UUID de la liquidacion"
// @Success      200 {object} dto.LiquidacionResponse
// @Failure      409 {object} apierror.APIError
// @Router       /v1/liquidaciones/{id}/aprobar [post]
func (h *LiquidacionesHandler) Aprobar(c *gin.Context) {
	h.accion(h.svc.AprobarLiquidacion)(c)
}

// Pagar godoc
// @Summary      Registrar pago
// @Tags         liquidaciones
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string                   true "UUID de la liquidacion"
// @Param        body body dto.RegistrarPagoRequest true "Metodo y comprobante"
// @Success      200  {object} dto.LiquidacionResponse
// @Failure      409  {object} apierror.APIError
// @Router       /v1/liquidaciones/{id}/pago [post]
func (h *LiquidacionesHandler) Pagar(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.RegistrarPagoRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.RegistrarPago(c.Request.Context(), id, actorDe(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Rechazar godoc
// @Summary      Rechazar liquidacion
// @Tags         liquidaciones
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string                          true "UUID de la liquidacion"
// @Param        body body dto.RechazarLiquidacionRequest true "Motivo"
// @Success      200  {object} dto.LiquidacionResponse
// @Router       /v1/liquidaciones/{id}/rechazar [post]
func (h *LiquidacionesHandler) Rechazar(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.RechazarLiquidacionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.RechazarLiquidacion(c.Request.Context(), id, actorDe(c), req.Motivo)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Reemitir godoc
// @Summary      Reemitir liquidacion de servicio rechazada
// @Description  Crea una nueva liquidacion de servicio pendiente para los concentrados de una rechazada.
// @Tags         liquidaciones
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string                                  true  "UUID de la liquidacion rechazada"
// @Param        body body dto.ReemitirLiquidacionServicioRequest false "Tipo de cambio"
// @Success      201  {object} dto.LiquidacionResponse
// @Router       /v1/liquidaciones/{id}/reemitir [post]
func (h *LiquidacionesHandler) Reemitir(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.ReemitirLiquidacionServicioRequest
	if !bindOptional(c, &req) {
		return
	}
	resp, err := h.svc.ReemitirLiquidacionServicio(c.Request.Context(), id, actorDe(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// CrearVenta godoc
// @Summary      Crear liquidacion de venta
// @Description  Liquidacion de venta de un concentrado listo para venta o de un lote en comercializacion.
// @Tags         liquidaciones
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.CrearLiquidacionVentaRequest true "Sujeto, valores y deducciones"
// @Success      201  {object} dto.LiquidacionResponse
// @Failure      422  {object} apierror.APIError
// @Router       /v1/liquidaciones/venta [post]
func (h *LiquidacionesHandler) CrearVenta(c *gin.Context) {
	var req dto.CrearLiquidacionVentaRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.CrearLiquidacionVenta(c.Request.Context(), actorDe(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// SolicitarReportes godoc
// @Summary      Solicitar reportes quimicos de venta
// @Tags         liquidaciones
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "UUID de la liquidacion"
// @Success      200 {object} dto.LiquidacionResponse
// @Router       /v1/liquidaciones/{id}/solicitar-reportes [post]
func (h *LiquidacionesHandler) SolicitarReportes(c *gin.Context) {
	h.accion(h.svc.SolicitarReportes)(c)
}

// RegistrarReporte godoc
// @Summary      Registrar reporte quimico de socio o comprador
// @Description  Con ambos reportes registrados se calcula el promedio y la diferencia contra la tolerancia.
// @Tags         liquidaciones
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string                            true "UUID de la liquidacion"
// @Param        body body dto.RegistrarReporteVentaRequest true "Reporte"
// @Success      200  {object} dto.LiquidacionResponse
// @Router       /v1/liquidaciones/{id}/reportes [post]
func (h *LiquidacionesHandler) RegistrarReporte(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.RegistrarReporteVentaRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.RegistrarReporteVenta(c.Request.Context(), id, actorDe(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Cerrar godoc
// @Summary      Cerrar venta
// @Tags         liquidaciones
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "UUID de la liquidacion"
// @Success      200 {object} dto.LiquidacionResponse
// @Router       /v1/liquidaciones/{id}/cerrar [post]
func (h *LiquidacionesHandler) Cerrar(c *gin.Context) {
	h.accion(h.svc.CerrarVenta)(c)
}
