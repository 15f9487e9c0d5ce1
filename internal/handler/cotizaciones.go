package handler

import (
	"context"
	"net/http"

	"concentra/internal/dto"

	"github.com/gin-gonic/gin"
)

// Cotizaciones is the quotation cache as seen by the HTTP layer.
type Cotizaciones interface {
	Listar(ctx context.Context, forzar bool) (*dto.CotizacionesResponse, error)
	Invalidar()
}

type CotizacionesHandler struct{ cache Cotizaciones }

func NewCotizacionesHandler(cache Cotizaciones) *CotizacionesHandler {
	return &CotizacionesHandler{cache: cache}
}

// Listar godoc
// @Summary      Cotizaciones internacionales vigentes
// @Description  Sn y Zn en USD/t, Ag en USD/oz. "origen" indica si el precio es vivo, de cache, obsoleto o predeterminado.
// @Tags         cotizaciones
// @Produce      json
// @Security     BearerAuth
// @Param        forzar query bool false "Ignorar la cache y consultar al proveedor"
// @Success      200 {object} dto.CotizacionesResponse
// @Failure      503 {object} apierror.APIError
// @Router       /v1/cotizaciones [get]
func (h *CotizacionesHandler) Listar(c *gin.Context) {
	forzar := c.Query("forzar") == "true"
	resp, err := h.cache.Listar(c.Request.Context(), forzar)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Invalidar godoc
// @Summary      Invalidar la cache de cotizaciones
// @Tags         cotizaciones
// @Security     BearerAuth
// @Success      204
// @Router       /v1/cotizaciones/invalidar [post]
func (h *CotizacionesHandler) Invalidar(c *gin.Context) {
	h.cache.Invalidar()
	c.Status(http.StatusNoContent)
}
