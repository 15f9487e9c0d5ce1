package service

import (
	"encoding/json"
	"time"

	"concentra/internal/dto"
	"concentra/internal/model"
)

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func concentradoToResponse(c *model.Concentrado) *dto.ConcentradoResponse {
	resp := &dto.ConcentradoResponse{
		ID:                      c.ID.String(),
		Codigo:                  c.Codigo,
		PlantaID:                c.PlantaID.String(),
		SocioID:                 c.SocioID.String(),
		MineralPrincipal:        string(c.MineralPrincipal),
		MineralesSecundarios:    make([]string, 0, len(c.MineralesSecundarios)),
		PorcentajeParticipacion: c.PorcentajeParticipacion,
		PesoInicial:             c.PesoInicial,
		PesoFinal:               c.PesoFinal,
		Merma:                   c.Merma,
		MermaNegativa:           c.MermaNegativa,
		Estado:                  string(c.Estado),
		RequiereRevision:        c.RequiereRevision,
		NotaRevision:            c.NotaRevision,
		Lotes:                   make([]dto.LoteAporteResponse, 0, len(c.Lotes)),
		CreatedAt:               formatTime(c.CreatedAt),
	}
	for _, m := range c.MineralesSecundarios {
		resp.MineralesSecundarios = append(resp.MineralesSecundarios, string(m))
	}
	if c.LiquidacionServicioID != nil {
		id := c.LiquidacionServicioID.String()
		resp.LiquidacionServicioID = &id
	}
	for _, lc := range c.Lotes {
		resp.Lotes = append(resp.Lotes, dto.LoteAporteResponse{
			LoteID:       lc.LoteID.String(),
			PesoAportado: lc.PesoAportado,
			Porcentaje:   lc.Porcentaje,
		})
	}
	return resp
}

func historialToItem(h model.RegistroHistorial) dto.HistorialItem {
	item := dto.HistorialItem{
		Secuencia:      h.Secuencia,
		EstadoAnterior: h.EstadoAnterior,
		EstadoNuevo:    h.EstadoNuevo,
		Descripcion:    h.Descripcion,
		Observacion:    h.Observacion,
		ActorID:        h.ActorID.String(),
		Canal:          h.Origen.Canal,
		IP:             h.Origen.IP,
		CreatedAt:      formatTime(h.CreatedAt),
	}
	if len(h.Detalle) > 0 {
		item.Detalle = json.RawMessage(h.Detalle)
	}
	return item
}

func etapasToTablero(c *model.Concentrado, etapas []model.ConcentradoEtapa) *dto.TableroResponse {
	resp := &dto.TableroResponse{
		ConcentradoID: c.ID.String(),
		Codigo:        c.Codigo,
		Estado:        string(c.Estado),
		Etapas:        make([]dto.EtapaResponse, 0, len(etapas)),
	}
	for _, e := range etapas {
		if e.Estado == model.EtapaActiva {
			resp.EtapaActual = ptr(e.Orden)
		}
		resp.Etapas = append(resp.Etapas, dto.EtapaResponse{
			Orden:          e.Orden,
			Nombre:         e.Nombre,
			Estado:         string(e.Estado),
			InicioAt:       formatTimePtr(e.InicioAt),
			FinAt:          formatTimePtr(e.FinAt),
			Nota:           e.Nota,
			AutoCompletada: e.AutoCompletada,
		})
	}
	return resp
}

func reporteToResponse(r model.ReporteQuimico) dto.ReporteQuimicoResponse {
	return dto.ReporteQuimicoResponse{
		ID:           r.ID.String(),
		Origen:       string(r.Origen),
		Laboratorio:  r.Laboratorio,
		LeyPrincipal: r.LeyPrincipal,
		LeyAgDM:      r.LeyAgDM,
		LeyAgGT:      r.LeyAgGT,
		Humedad:      r.Humedad,
		LeyPb:        r.LeyPb,
		LeyZn:        r.LeyZn,
	}
}

func liquidacionToResponse(l *model.Liquidacion) *dto.LiquidacionResponse {
	resp := &dto.LiquidacionResponse{
		ID:                   l.ID.String(),
		Codigo:               l.Codigo,
		Tipo:                 string(l.Tipo),
		Estado:               string(l.Estado),
		SocioID:              l.SocioID.String(),
		PesoTotalKg:          l.PesoTotalKg,
		CostoUnitario:        l.CostoUnitario,
		CotizacionReferencia: l.CotizacionReferencia,
		UnidadCotizacion:     l.UnidadCotizacion,
		ValorBruto:           l.ValorBruto,
		TotalServicios:       l.TotalServicios,
		TotalDeducciones:     l.TotalDeducciones,
		TotalDeduccionesBOB:  l.TotalDeduccionesBOB,
		ValorNetoUSD:         l.ValorNetoUSD,
		ValorNetoBOB:         l.ValorNetoBOB,
		TipoCambio:           l.TipoCambio,
		DiferenciaReportes:   l.DiferenciaReportes,
		RequiereRevision:     l.RequiereRevision,
		MetodoPago:           l.MetodoPago,
		ComprobantePago:      l.ComprobantePago,
		PagadoAt:             formatTimePtr(l.PagadoAt),
		MotivoRechazo:        l.MotivoRechazo,
		ConcentradoIDs:       []string{},
		LoteIDs:              []string{},
		Deducciones:          make([]dto.DeduccionResponse, 0, len(l.Deducciones)),
		Servicios:            make([]dto.ServicioResponse, 0, len(l.Servicios)),
		Reportes:             make([]dto.ReporteQuimicoResponse, 0, len(l.Reportes)),
		CreatedAt:            formatTime(l.CreatedAt),
	}
	for _, id := range l.ConcentradoIDs() {
		resp.ConcentradoIDs = append(resp.ConcentradoIDs, id.String())
	}
	for _, id := range l.LoteIDs() {
		resp.LoteIDs = append(resp.LoteIDs, id.String())
	}
	for _, d := range l.Deducciones {
		resp.Deducciones = append(resp.Deducciones, dto.DeduccionResponse{
			Orden:      d.Orden,
			Concepto:   d.Concepto,
			Porcentaje: d.Porcentaje,
			Base:       string(d.Base),
			MontoUSD:   d.MontoUSD,
			MontoBOB:   d.MontoBOB,
		})
	}
	for _, s := range l.Servicios {
		resp.Servicios = append(resp.Servicios, dto.ServicioResponse{Concepto: s.Concepto, MontoUSD: s.MontoUSD})
	}
	for _, r := range l.Reportes {
		resp.Reportes = append(resp.Reportes, reporteToResponse(r))
	}
	return resp
}
