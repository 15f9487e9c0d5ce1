package handler

import (
	"context"
	"net/http"

	"concentra/internal/dto"
	"concentra/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ConcentradosHandler struct{ svc service.ConcentradoService }

func NewConcentradosHandler(svc service.ConcentradoService) *ConcentradosHandler {
	return &ConcentradosHandler{svc: svc}
}

// Crear godoc
// @Summary      Crear concentrados a partir de lotes
// @Description  Analiza los minerales de los lotes, crea uno o dos concentrados y la liquidacion de servicio en una sola transaccion.
// @Tags         concentrados
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.CrearConcentradosRequest true "Planta y lotes"
// @Success      201  {object} dto.CrearConcentradosResponse
// @Failure      422  {object} apierror.APIError
// @Router       /v1/concentrados [post]
func (h *ConcentradosHandler) Crear(c *gin.Context) {
	var req dto.CrearConcentradosRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.CrearConcentrados(c.Request.Context(), actorDe(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Obtener godoc
// @Summary      Obtener concentrado
// @Tags         concentrados
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "UUID del concentrado"
// @Success      200 {object} dto.ConcentradoResponse
// @Failure      404 {object} apierror.APIError
// @Router       /v1/concentrados/{id} [get]
func (h *ConcentradosHandler) Obtener(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.ObtenerConcentrado(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Historial godoc
// @Summary      Historial de estados del concentrado
// @Tags         concentrados
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "UUID del concentrado"
// @Success      200 {object} dto.HistorialListResponse
// @Router       /v1/concentrados/{id}/historial [get]
func (h *ConcentradosHandler) Historial(c *gin.Context) {
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

// Despachar godoc
// @Summary      Despachar concentrado a planta
// @Tags         concentrados
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string                true  "UUID del concentrado"
// @Param        body body dto.TransicionRequest false "Observacion"
// @Success      200  {object} dto.ConcentradoResponse
// @Failure      409  {object} apierror.APIError
// @Router       /v1/concentrados/{id}/despachar [post]
func (h *ConcentradosHandler) Despachar(c *gin.Context) {
	h.transicion(c, h.svc.DespacharAPlanta)
}

// ListoLiquidacion godoc
// @Summary      Marcar concentrado listo para liquidacion
// @Tags         concentrados
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string                true  "UUID del concentrado"
// @Param        body body dto.TransicionRequest false "Observacion"
// @Success      200  {object} dto.ConcentradoResponse
// @Router       /v1/concentrados/{id}/listo-liquidacion [post]
func (h *ConcentradosHandler) ListoLiquidacion(c *gin.Context) {
	h.transicion(c, h.svc.MarcarListoParaLiquidacion)
}

// HabilitarVenta godoc
// @Summary      Habilitar venta del concentrado
// @Tags         concentrados
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string                true  "UUID del concentrado"
// @Param        body body dto.TransicionRequest false "Observacion"
// @Success      200  {object} dto.ConcentradoResponse
// @Router       /v1/concentrados/{id}/habilitar-venta [post]
func (h *ConcentradosHandler) HabilitarVenta(c *gin.Context) {
	h.transicion(c, h.svc.HabilitarVenta)
}

// ReporteQuimico godoc
// @Summary      Registrar reporte quimico de planta
// @Tags         concentrados
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string                    true "UUID del concentrado"
// @Param        body body dto.ReporteQuimicoRequest true "Leyes del laboratorio"
// @Success      200  {object} dto.ConcentradoResponse
// @Router       /v1/concentrados/{id}/reporte-quimico [post]
func (h *ConcentradosHandler) ReporteQuimico(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.ReporteQuimicoRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.RegistrarReporteQuimico(c.Request.Context(), id, actorDe(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// PesoFinal godoc
// @Summary      Registrar peso final y merma
// @Tags         concentrados
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string               true "UUID del concentrado"
// @Param        body body dto.PesoFinalRequest true "Peso final en kg"
// @Success      200  {object} dto.ConcentradoResponse
// @Router       /v1/concentrados/{id}/peso-final [post]
func (h *ConcentradosHandler) PesoFinal(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.PesoFinalRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.RegistrarPesoFinal(c.Request.Context(), id, actorDe(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type transicionFunc func(ctx context.Context, id uuid.UUID, actor service.Actor, observacion *string) (*dto.ConcentradoResponse, error)

func (h *ConcentradosHandler) transicion(c *gin.Context, fn transicionFunc) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.TransicionRequest
	if !bindOptional(c, &req) {
		return
	}
	resp, err := fn(c.Request.Context(), id, actorDe(c), req.Observacion)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
