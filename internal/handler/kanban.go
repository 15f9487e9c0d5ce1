package handler

import (
	"net/http"

	"concentra/internal/dto"
	"concentra/internal/service"

	"github.com/gin-gonic/gin"
)

type KanbanHandler struct{ svc service.KanbanService }

func NewKanbanHandler(svc service.KanbanService) *KanbanHandler { return &KanbanHandler{svc: svc} }

// Tablero godoc
// @Summary      Tablero kanban del concentrado
// @Tags         kanban
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "UUID del concentrado"
// @Success      200 {object} dto.TableroResponse
// @Router       /v1/concentrados/{id}/tablero [get]
func (h *KanbanHandler) Tablero(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.ObtenerTablero(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Iniciar godoc
// @Summary      Iniciar procesamiento en planta
// @Description  Activa la primera etapa y mueve el concentrado a en_proceso.
// @Tags         kanban
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string                          true  "UUID del concentrado"
// @Param        body body dto.IniciarProcesamientoRequest false "Nota"
// @Success      200  {object} dto.TableroResponse
// @Failure      409  {object} apierror.APIError
// @Router       /v1/concentrados/{id}/procesamiento/iniciar [post]
func (h *KanbanHandler) Iniciar(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.IniciarProcesamientoRequest
	if !bindOptional(c, &req) {
		return
	}
	resp, err := h.svc.IniciarProcesamiento(c.Request.Context(), id, actorDe(c), req.Nota)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Avanzar godoc
// @Summary      Avanzar a una etapa posterior
// @Description  Completa la etapa activa y las intermedias (auto-completadas) y activa la etapa destino.
// @Tags         kanban
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string                  true "UUID del concentrado"
// @Param        body body dto.AvanzarEtapaRequest true "Etapa destino"
// @Success      200  {object} dto.TableroResponse
// @Failure      409  {object} apierror.APIError
// @Router       /v1/concentrados/{id}/procesamiento/avanzar [post]
func (h *KanbanHandler) Avanzar(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.AvanzarEtapaRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.AvanzarEtapa(c.Request.Context(), id, req.OrdenDestino, actorDe(c), req.Nota)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Finalizar godoc
// @Summary      Finalizar procesamiento
// @Description  Completa la ultima etapa y deja el concentrado esperando el reporte quimico.
// @Tags         kanban
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string                          true  "UUID del concentrado"
// @Param        body body dto.IniciarProcesamientoRequest false "Nota"
// @Success      200  {object} dto.TableroResponse
// @Router       /v1/concentrados/{id}/procesamiento/finalizar [post]
func (h *KanbanHandler) Finalizar(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.IniciarProcesamientoRequest
	if !bindOptional(c, &req) {
		return
	}
	resp, err := h.svc.FinalizarProcesamiento(c.Request.Context(), id, actorDe(c), req.Nota)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
