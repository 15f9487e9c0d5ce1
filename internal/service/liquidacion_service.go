package service

import (
	"context"
	"fmt"
	"time"

	"concentra/internal/apierror"
	"concentra/internal/dto"
	"concentra/internal/model"
	"concentra/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// FuentePrecios is the read side of the quotation cache the settlement service uses.
type FuentePrecios interface {
	Precio(ctx context.Context, m model.Mineral) (model.Cotizacion, error)
}

type LiquidacionService interface {
	// Toll
	SolicitarLiquidacionServicio(ctx context.Context, id uuid.UUID, actor Actor, req dto.SolicitarLiquidacionServicioRequest) (*dto.LiquidacionResponse, error)
	RevisarLiquidacionServicio(ctx context.Context, id uuid.UUID, actor Actor) (*dto.LiquidacionResponse, error)
	ReemitirLiquidacionServicio(ctx context.Context, id uuid.UUID, actor Actor, req dto.ReemitirLiquidacionServicioRequest) (*dto.LiquidacionResponse, error)
	// Both
	AprobarLiquidacion(ctx context.Context, id uuid.UUID, actor Actor) (*dto.LiquidacionResponse, error)
	RegistrarPago(ctx context.Context, id uuid.UUID, actor Actor, req dto.RegistrarPagoRequest) (*dto.LiquidacionResponse, error)
	RechazarLiquidacion(ctx context.Context, id uuid.UUID, actor Actor, motivo string) (*dto.LiquidacionResponse, error)
	// Sale
	CrearLiquidacionVenta(ctx context.Context, actor Actor, req dto.CrearLiquidacionVentaRequest) (*dto.LiquidacionResponse, error)
	SolicitarReportes(ctx context.Context, id uuid.UUID, actor Actor) (*dto.LiquidacionResponse, error)
	RegistrarReporteVenta(ctx context.Context, id uuid.UUID, actor Actor, req dto.RegistrarReporteVentaRequest) (*dto.LiquidacionResponse, error)
	CerrarVenta(ctx context.Context, id uuid.UUID, actor Actor) (*dto.LiquidacionResponse, error)

	ObtenerLiquidacion(ctx context.Context, id uuid.UUID) (*dto.LiquidacionResponse, error)
	ListarHistorial(ctx context.Context, id uuid.UUID) (*dto.HistorialListResponse, error)
}

type liquidacionService struct {
	repo       repository.LiquidacionRepository
	concRepo   repository.ConcentradoRepository
	loteRepo   repository.LoteRepository
	precios    FuentePrecios
	fsm        liquidacionFSM
	concFSM    concentradoFSM
	calc       CalculadoraLiquidacion
	emisor     *Emisor
	tipoCambio decimal.Decimal
}

func NewLiquidacionService(
	repo repository.LiquidacionRepository,
	concRepo repository.ConcentradoRepository,
	loteRepo repository.LoteRepository,
	precios FuentePrecios,
	emisor *Emisor,
	tipoCambio decimal.Decimal,
) LiquidacionService {
	return &liquidacionService{
		repo:       repo,
		concRepo:   concRepo,
		loteRepo:   loteRepo,
		precios:    precios,
		fsm:        liquidacionFSM{repo: repo},
		concFSM:    concentradoFSM{repo: concRepo},
		emisor:     emisor,
		tipoCambio: tipoCambio,
	}
}

var (
	// Sale settlements can be rejected until they are closed.
	rechazablesVenta = []model.EstadoLiquidacion{
		model.LiquidacionPendienteAprobacion,
		model.LiquidacionAprobada,
		model.LiquidacionEsperandoReportes,
		model.LiquidacionEsperandoCierreVenta,
	}
	// Toll settlements can be rejected until they are paid.
	rechazablesServicio = []model.EstadoLiquidacion{
		model.LiquidacionPendienteAprobacion,
		model.LiquidacionAprobada,
	}
	// Concentrates a toll rejection sends back to listo_para_liquidacion.
	// Earlier states are still in the plant and stay where they are.
	enLiquidacionServicio = []model.EstadoConcentrado{
		model.ConcentradoLiquidacionServicioSolicitada,
		model.ConcentradoLiquidacionServicioEnRevision,
		model.ConcentradoServicioLiquidado,
	}
)

func (s *liquidacionService) cargar(ctx context.Context, id uuid.UUID) (*model.Liquidacion, error) {
	l, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "liquidacion %s no encontrada", id)
	}
	return l, nil
}

func (s *liquidacionService) cargarServicio(ctx context.Context, id uuid.UUID) (*model.Liquidacion, []model.Concentrado, error) {
	l, err := s.cargar(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if l.Tipo != model.LiquidacionServicio {
		return nil, nil, apierror.Validation("la liquidacion %s no es de servicio", l.Codigo)
	}
	cs, err := s.concRepo.FindByLiquidacionServicio(ctx, l.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("cargando concentrados de %s: %w", l.Codigo, err)
	}
	if len(cs) == 0 {
		return nil, nil, apierror.Validation("la liquidacion %s no cubre ningun concentrado", l.Codigo)
	}
	return l, cs, nil
}

func (s *liquidacionService) cargarVenta(ctx context.Context, id uuid.UUID) (*model.Liquidacion, error) {
	l, err := s.cargar(ctx, id)
	if err != nil {
		return nil, err
	}
	if !l.Tipo.EsVenta() {
		return nil, apierror.Validation("la liquidacion %s no es de venta", l.Codigo)
	}
	return l, nil
}

// ejecutar runs fn in one transaction and emits the collected events after commit.
func (s *liquidacionService) ejecutar(ctx context.Context, fn func(tx *gorm.DB) ([]model.EventoEstado, error)) error {
	var eventos []model.EventoEstado
	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		evs, err := fn(tx)
		eventos = evs
		return err
	})
	if err != nil {
		return err
	}
	s.emisor.Emitir(ctx, eventos...)
	return nil
}

// moverConcentrados cascades one transition over every covered concentrate.
func (s *liquidacionService) moverConcentrados(ctx context.Context, tx *gorm.DB, cs []model.Concentrado, t transicion[model.EstadoConcentrado], actor Actor) ([]model.EventoEstado, error) {
	eventos := make([]model.EventoEstado, 0, len(cs))
	for i := range cs {
		ev, err := s.concFSM.aplicar(ctx, tx, &cs[i], t, actor)
		if err != nil {
			return nil, err
		}
		eventos = append(eventos, ev)
	}
	return eventos, nil
}

// ── Toll settlement ───────────────────────────────────────────────────────────

// SolicitarLiquidacionServicio recalculates the pending toll figures with the
// agreed extra services and exchange rate, and moves the concentrates on.
func (s *liquidacionService) SolicitarLiquidacionServicio(ctx context.Context, id uuid.UUID, actor Actor, req dto.SolicitarLiquidacionServicioRequest) (*dto.LiquidacionResponse, error) {
	l, cs, err := s.cargarServicio(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.Estado != model.LiquidacionPendienteAprobacion {
		return nil, apierror.InvalidTransition("liquidacion", l.Estado, model.LiquidacionPendienteAprobacion)
	}
	for i := range cs {
		if cs[i].Estado != model.ConcentradoListoParaLiquidacion {
			return nil, apierror.InvalidTransition("concentrado "+cs[i].Codigo, cs[i].Estado, model.ConcentradoListoParaLiquidacion)
		}
	}

	servicios := make([]ServicioAdicional, 0, len(req.Servicios))
	lineas := make([]model.LiquidacionServicioLinea, 0, len(req.Servicios))
	for i, sv := range req.Servicios {
		servicios = append(servicios, ServicioAdicional{Concepto: sv.Concepto, MontoUSD: sv.MontoUSD})
		lineas = append(lineas, model.LiquidacionServicioLinea{
			LiquidacionID: l.ID,
			Concepto:      sv.Concepto,
			MontoUSD:      redondear(sv.MontoUSD),
			Orden:         i + 1,
		})
	}
	res, err := s.calc.CalcularServicio([]decimal.Decimal{l.PesoTotalKg}, l.CostoUnitario, servicios, req.TipoCambio)
	if err != nil {
		return nil, err
	}
	l.ValorBruto = res.CostoProcesamiento
	l.TotalServicios = res.TotalServicios
	l.ValorNetoUSD = res.ValorNetoUSD
	l.ValorNetoBOB = res.ValorNetoBOB
	l.TipoCambio = req.TipoCambio
	l.Servicios = lineas

	err = s.ejecutar(ctx, func(tx *gorm.DB) ([]model.EventoEstado, error) {
		if err := s.repo.ReplaceServiciosTx(ctx, tx, l.ID, lineas); err != nil {
			return nil, err
		}
		ev, err := s.fsm.aplicar(ctx, tx, l, transicion[model.EstadoLiquidacion]{
			esperados:   []model.EstadoLiquidacion{model.LiquidacionPendienteAprobacion},
			nuevo:       model.LiquidacionPendienteAprobacion,
			descripcion: fmt.Sprintf("Liquidacion de servicio solicitada: neto %s USD", l.ValorNetoUSD.StringFixed(escala)),
			detalle:     map[string]any{"servicios": len(lineas), "tipo_cambio": req.TipoCambio},
		}, actor)
		if err != nil {
			return nil, err
		}
		evs, err := s.moverConcentrados(ctx, tx, cs, transicion[model.EstadoConcentrado]{
			esperados:   []model.EstadoConcentrado{model.ConcentradoListoParaLiquidacion},
			nuevo:       model.ConcentradoLiquidacionServicioSolicitada,
			descripcion: "Liquidacion de servicio solicitada (" + l.Codigo + ")",
		}, actor)
		return append(evs, ev), err
	})
	if err != nil {
		return nil, err
	}
	return liquidacionToResponse(l), nil
}

func (s *liquidacionService) RevisarLiquidacionServicio(ctx context.Context, id uuid.UUID, actor Actor) (*dto.LiquidacionResponse, error) {
	l, cs, err := s.cargarServicio(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.ejecutar(ctx, func(tx *gorm.DB) ([]model.EventoEstado, error) {
		ev, err := s.fsm.aplicar(ctx, tx, l, transicion[model.EstadoLiquidacion]{
			esperados:   []model.EstadoLiquidacion{model.LiquidacionPendienteAprobacion},
			nuevo:       model.LiquidacionPendienteAprobacion,
			descripcion: "Liquidacion de servicio en revision",
		}, actor)
		if err != nil {
			return nil, err
		}
		evs, err := s.moverConcentrados(ctx, tx, cs, transicion[model.EstadoConcentrado]{
			esperados:   []model.EstadoConcentrado{model.ConcentradoLiquidacionServicioSolicitada},
			nuevo:       model.ConcentradoLiquidacionServicioEnRevision,
			descripcion: "Liquidacion de servicio en revision (" + l.Codigo + ")",
		}, actor)
		return append(evs, ev), err
	})
	if err != nil {
		return nil, err
	}
	return liquidacionToResponse(l), nil
}

// ReemitirLiquidacionServicio issues a new pending toll settlement for the
// concentrates and lots of a rejected one. The rejected settlement keeps its
// figures and history; the concentrates are re-pointed to the new code.
func (s *liquidacionService) ReemitirLiquidacionServicio(ctx context.Context, id uuid.UUID, actor Actor, req dto.ReemitirLiquidacionServicioRequest) (*dto.LiquidacionResponse, error) {
	anterior, cs, err := s.cargarServicio(ctx, id)
	if err != nil {
		return nil, err
	}
	if anterior.Estado != model.LiquidacionRechazada {
		return nil, apierror.InvalidTransition("liquidacion", anterior.Estado, model.LiquidacionRechazada)
	}
	tipoCambio := req.TipoCambio
	if tipoCambio.IsZero() {
		tipoCambio = anterior.TipoCambio
	}
	res, err := s.calc.CalcularServicio([]decimal.Decimal{anterior.PesoTotalKg}, anterior.CostoUnitario, nil, tipoCambio)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	l := &model.Liquidacion{
		ID:            uuid.New(),
		Tipo:          model.LiquidacionServicio,
		Estado:        model.LiquidacionPendienteAprobacion,
		SocioID:       anterior.SocioID,
		PlantaID:      anterior.PlantaID,
		PesoTotalKg:   res.PesoKg,
		CostoUnitario: anterior.CostoUnitario,
		ValorBruto:    res.CostoProcesamiento,
		ValorNetoUSD:  res.ValorNetoUSD,
		ValorNetoBOB:  res.ValorNetoBOB,
		TipoCambio:    tipoCambio,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, ll := range anterior.Lotes {
		l.Lotes = append(l.Lotes, model.LiquidacionLote{LiquidacionID: l.ID, LoteID: ll.LoteID})
	}
	ids := make([]uuid.UUID, 0, len(cs))
	for i := range cs {
		ids = append(ids, cs[i].ID)
		l.Concentrados = append(l.Concentrados, model.LiquidacionConcentrado{LiquidacionID: l.ID, ConcentradoID: cs[i].ID})
	}

	err = s.ejecutar(ctx, func(tx *gorm.DB) ([]model.EventoEstado, error) {
		seq, err := s.repo.NextCodigoSeq(ctx, tx)
		if err != nil {
			return nil, err
		}
		l.Codigo = fmt.Sprintf("LIQ-S-%06d", seq)
		if err := s.repo.CreateTx(ctx, tx, l); err != nil {
			return nil, fmt.Errorf("creando liquidacion de servicio: %w", err)
		}
		hl := &model.LiquidacionHistorial{
			LiquidacionID: l.ID,
			RegistroHistorial: registroHistorial("", string(l.Estado),
				fmt.Sprintf("Liquidacion de servicio reemitida en reemplazo de %s: neto %s USD", anterior.Codigo, l.ValorNetoUSD.StringFixed(escala)),
				anterior.MotivoRechazo, map[string]any{"reemplaza": anterior.Codigo, "tipo_cambio": tipoCambio}, actor, now),
		}
		if err := s.repo.AppendHistorialTx(ctx, tx, hl); err != nil {
			return nil, err
		}

		n, err := s.concRepo.ReasignarLiquidacionServicioTx(ctx, tx, ids, anterior.ID, l.ID)
		if err != nil {
			return nil, err
		}
		if n != int64(len(ids)) {
			return nil, &apierror.Error{
				Kind:   apierror.KindInvalidStateTransition,
				Detail: fmt.Sprintf("la liquidacion %s ya fue reemitida", anterior.Codigo),
			}
		}
		ev := model.EventoEstado{
			Entidad:     "liquidacion",
			EntidadID:   l.ID,
			Codigo:      l.Codigo,
			EstadoNuevo: string(l.Estado),
			Descripcion: hl.Descripcion,
			SocioID:     l.SocioID,
			ActorID:     actor.ID,
			OcurridoAt:  now,
		}
		if l.PlantaID != nil {
			ev.PlantaID = *l.PlantaID
		}
		eventos := []model.EventoEstado{ev}
		for i := range cs {
			cs[i].LiquidacionServicioID = &l.ID
			ev, err := s.concFSM.aplicar(ctx, tx, &cs[i], transicion[model.EstadoConcentrado]{
				esperados:   []model.EstadoConcentrado{cs[i].Estado},
				nuevo:       cs[i].Estado,
				descripcion: fmt.Sprintf("Liquidacion de servicio reemitida: %s reemplaza a %s", l.Codigo, anterior.Codigo),
			}, actor)
			if err != nil {
				return nil, err
			}
			eventos = append(eventos, ev)
		}
		return eventos, nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("anterior", anterior.Codigo).Str("nueva", l.Codigo).Int("concentrados", len(cs)).
		Msg("liquidacion de servicio reemitida")
	return liquidacionToResponse(l), nil
}

// ── Shared ────────────────────────────────────────────────────────────────────

// AprobarLiquidacion freezes the figures. For a toll settlement the covered
// concentrates become servicio_liquidado.
func (s *liquidacionService) AprobarLiquidacion(ctx context.Context, id uuid.UUID, actor Actor) (*dto.LiquidacionResponse, error) {
	l, err := s.cargar(ctx, id)
	if err != nil {
		return nil, err
	}
	var cs []model.Concentrado
	if l.Tipo == model.LiquidacionServicio {
		if _, cs, err = s.cargarServicio(ctx, id); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	l.AprobadoAt = &now
	err = s.ejecutar(ctx, func(tx *gorm.DB) ([]model.EventoEstado, error) {
		ev, err := s.fsm.aplicar(ctx, tx, l, transicion[model.EstadoLiquidacion]{
			esperados:   []model.EstadoLiquidacion{model.LiquidacionPendienteAprobacion},
			nuevo:       model.LiquidacionAprobada,
			descripcion: fmt.Sprintf("Liquidacion aprobada: neto %s USD / %s BOB", l.ValorNetoUSD.StringFixed(escala), l.ValorNetoBOB.StringFixed(escala)),
		}, actor)
		if err != nil || len(cs) == 0 {
			return []model.EventoEstado{ev}, err
		}
		evs, err := s.moverConcentrados(ctx, tx, cs, transicion[model.EstadoConcentrado]{
			esperados:   []model.EstadoConcentrado{model.ConcentradoLiquidacionServicioEnRevision},
			nuevo:       model.ConcentradoServicioLiquidado,
			descripcion: "Servicio liquidado (" + l.Codigo + ")",
		}, actor)
		return append(evs, ev), err
	})
	if err != nil {
		return nil, err
	}
	s.emisor.GenerarDocumento(ctx, l.ID)
	return liquidacionToResponse(l), nil
}

func (s *liquidacionService) RegistrarPago(ctx context.Context, id uuid.UUID, actor Actor, req dto.RegistrarPagoRequest) (*dto.LiquidacionResponse, error) {
	l, err := s.cargar(ctx, id)
	if err != nil {
		return nil, err
	}
	esperado := model.LiquidacionCerrada
	var cs []model.Concentrado
	if l.Tipo == model.LiquidacionServicio {
		esperado = model.LiquidacionAprobada
		if _, cs, err = s.cargarServicio(ctx, id); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	l.MetodoPago = ptr(req.MetodoPago)
	l.ComprobantePago = req.Comprobante
	l.PagadoAt = &now
	err = s.ejecutar(ctx, func(tx *gorm.DB) ([]model.EventoEstado, error) {
		ev, err := s.fsm.aplicar(ctx, tx, l, transicion[model.EstadoLiquidacion]{
			esperados:   []model.EstadoLiquidacion{esperado},
			nuevo:       model.LiquidacionPagada,
			descripcion: fmt.Sprintf("Pago registrado (%s)", req.MetodoPago),
			detalle:     map[string]any{"metodo_pago": req.MetodoPago, "comprobante": req.Comprobante, "monto_usd": l.ValorNetoUSD},
		}, actor)
		if err != nil || len(cs) == 0 {
			return []model.EventoEstado{ev}, err
		}
		evs, err := s.moverConcentrados(ctx, tx, cs, transicion[model.EstadoConcentrado]{
			esperados:   []model.EstadoConcentrado{model.ConcentradoServicioLiquidado},
			nuevo:       model.ConcentradoServicioPagado,
			descripcion: "Servicio pagado (" + l.Codigo + ")",
		}, actor)
		return append(evs, ev), err
	})
	if err != nil {
		return nil, err
	}
	s.emisor.GenerarDocumento(ctx, l.ID)
	return liquidacionToResponse(l), nil
}

// RechazarLiquidacion rejects a settlement before it is closed (sale) or paid
// (toll). A rejected sale returns its subject to the sellable state. A rejected
// toll returns concentrates already in settlement to listo_para_liquidacion so
// a replacement can be issued with ReemitirLiquidacionServicio.
func (s *liquidacionService) RechazarLiquidacion(ctx context.Context, id uuid.UUID, actor Actor, motivo string) (*dto.LiquidacionResponse, error) {
	if motivo == "" {
		return nil, apierror.Validation("el motivo de rechazo es obligatorio")
	}
	l, err := s.cargar(ctx, id)
	if err != nil {
		return nil, err
	}
	esperados := rechazablesServicio
	var sujetos []model.Concentrado
	if l.Tipo.EsVenta() {
		esperados = rechazablesVenta
		if sujetos, err = s.cargarSujetos(ctx, l); err != nil {
			return nil, err
		}
	} else {
		cs, err := s.concRepo.FindByLiquidacionServicio(ctx, l.ID)
		if err != nil {
			return nil, fmt.Errorf("cargando concentrados de %s: %w", l.Codigo, err)
		}
		for i := range cs {
			if contiene(enLiquidacionServicio, cs[i].Estado) {
				sujetos = append(sujetos, cs[i])
			}
		}
	}

	l.MotivoRechazo = ptr(motivo)
	err = s.ejecutar(ctx, func(tx *gorm.DB) ([]model.EventoEstado, error) {
		ev, err := s.fsm.aplicar(ctx, tx, l, transicion[model.EstadoLiquidacion]{
			esperados:   esperados,
			nuevo:       model.LiquidacionRechazada,
			descripcion: "Liquidacion rechazada",
			observacion: ptr(motivo),
		}, actor)
		if err != nil {
			return nil, err
		}
		eventos := []model.EventoEstado{ev}
		if !l.Tipo.EsVenta() {
			evs, err := s.moverConcentrados(ctx, tx, sujetos, transicion[model.EstadoConcentrado]{
				esperados:   enLiquidacionServicio,
				nuevo:       model.ConcentradoListoParaLiquidacion,
				descripcion: "Liquidacion de servicio rechazada (" + l.Codigo + "), pendiente de reemision",
				observacion: ptr(motivo),
			}, actor)
			return append(eventos, evs...), err
		}
		evs, err := s.moverConcentrados(ctx, tx, sujetos, transicion[model.EstadoConcentrado]{
			esperados:   []model.EstadoConcentrado{model.ConcentradoEnVenta},
			nuevo:       model.ConcentradoListoParaVenta,
			descripcion: "Venta rechazada (" + l.Codigo + "), concentrado disponible nuevamente",
			observacion: ptr(motivo),
		}, actor)
		if err != nil {
			return nil, err
		}
		if err := s.moverLotes(ctx, tx, l, model.LoteEnVenta, model.LoteAprobado); err != nil {
			return nil, err
		}
		return append(eventos, evs...), nil
	})
	if err != nil {
		return nil, err
	}
	return liquidacionToResponse(l), nil
}

// ── Sale settlement ───────────────────────────────────────────────────────────

func (s *liquidacionService) CrearLiquidacionVenta(ctx context.Context, actor Actor, req dto.CrearLiquidacionVentaRequest) (*dto.LiquidacionResponse, error) {
	if (req.ConcentradoID == nil) == (req.LoteID == nil) {
		return nil, apierror.Validation("indique exactamente uno de concentrado_id o lote_id")
	}
	tipoCambio := req.TipoCambio
	if tipoCambio.IsZero() {
		tipoCambio = s.tipoCambio
	}

	deducciones := make([]Deduccion, 0, len(req.Deducciones))
	for _, d := range req.Deducciones {
		deducciones = append(deducciones, Deduccion{Concepto: d.Concepto, Porcentaje: d.Porcentaje, Base: model.BaseDeduccion(d.Base)})
	}
	res, err := s.calc.CalcularVenta(req.ValorBrutoPrincipal, req.ValorBrutoTraza, deducciones, tipoCambio)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	l := &model.Liquidacion{
		ID:                  uuid.New(),
		Estado:              model.LiquidacionPendienteAprobacion,
		ValorBrutoPrincipal: redondear(req.ValorBrutoPrincipal),
		ValorBrutoTraza:     redondear(req.ValorBrutoTraza),
		ValorBruto:          res.ValorBruto,
		TotalDeducciones:    res.TotalDeducciones,
		TotalDeduccionesBOB: res.TotalDeduccionesBOB,
		ValorNetoUSD:        res.ValorNetoUSD,
		ValorNetoBOB:        res.ValorNetoBOB,
		TipoCambio:          tipoCambio,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	for _, ln := range res.Lineas {
		l.Deducciones = append(l.Deducciones, model.LiquidacionDeduccion{
			LiquidacionID: l.ID,
			Concepto:      ln.Concepto,
			Porcentaje:    ln.Porcentaje,
			Base:          ln.Base,
			MontoUSD:      ln.MontoUSD,
			MontoBOB:      ln.MontoBOB,
			Orden:         ln.Orden,
		})
	}

	var conc *model.Concentrado
	var lote *model.Lote
	var referencia model.Mineral
	if req.ConcentradoID != nil {
		cid, err := uuid.Parse(*req.ConcentradoID)
		if err != nil {
			return nil, apierror.Validation("concentrado_id invalido")
		}
		if conc, err = s.concRepo.FindByID(ctx, cid); err != nil {
			return nil, notFound(err, "concentrado %s no encontrado", cid)
		}
		if conc.Estado != model.ConcentradoListoParaVenta {
			return nil, apierror.InvalidTransition("concentrado", conc.Estado, model.ConcentradoListoParaVenta)
		}
		l.Tipo = model.LiquidacionVentaConcentrado
		l.SocioID = conc.SocioID
		l.PlantaID = &conc.PlantaID
		l.PesoTotalKg = conc.PesoInicial
		if conc.PesoFinal != nil {
			l.PesoTotalKg = *conc.PesoFinal
		}
		l.Concentrados = []model.LiquidacionConcentrado{{LiquidacionID: l.ID, ConcentradoID: conc.ID}}
		referencia = conc.MineralPrincipal
	} else {
		lid, err := uuid.Parse(*req.LoteID)
		if err != nil {
			return nil, apierror.Validation("lote_id invalido")
		}
		if lote, err = s.loteRepo.FindByID(ctx, lid); err != nil {
			return nil, notFound(err, "lote %s no encontrado", lid)
		}
		if lote.Destino != model.DestinoComercializacion {
			return nil, apierror.Validation("el lote %s no tiene destino comercializacion", lote.Codigo)
		}
		if lote.Estado != model.LoteAprobado {
			return nil, apierror.InvalidTransition("lote", lote.Estado, model.LoteAprobado)
		}
		l.Tipo = model.LiquidacionVentaLote
		l.SocioID = lote.SocioID
		l.PlantaID = lote.PlantaID
		l.PesoTotalKg = lote.PesoEfectivo()
		l.Lotes = []model.LiquidacionLote{{LiquidacionID: l.ID, LoteID: lote.ID}}
		referencia = mineralReferencia(lote)
	}

	if referencia != "" && s.precios != nil {
		if cot, err := s.precios.Precio(ctx, referencia); err == nil {
			l.CotizacionReferencia = ptr(cot.Precio)
			l.UnidadCotizacion = ptr(string(cot.Unidad))
		} else {
			log.Warn().Err(err).Str("mineral", string(referencia)).Msg("liquidacion: sin cotizacion de referencia")
		}
	}

	err = s.ejecutar(ctx, func(tx *gorm.DB) ([]model.EventoEstado, error) {
		seq, err := s.repo.NextCodigoSeq(ctx, tx)
		if err != nil {
			return nil, err
		}
		l.Codigo = fmt.Sprintf("LIQ-V-%06d", seq)
		if err := s.repo.CreateTx(ctx, tx, l); err != nil {
			return nil, fmt.Errorf("creando liquidacion de venta: %w", err)
		}
		h := &model.LiquidacionHistorial{
			LiquidacionID: l.ID,
			RegistroHistorial: registroHistorial("", string(l.Estado),
				fmt.Sprintf("Liquidacion de venta creada: bruto %s USD, neto %s USD", l.ValorBruto.StringFixed(escala), l.ValorNetoUSD.StringFixed(escala)),
				nil, map[string]any{"deducciones": len(l.Deducciones), "tipo_cambio": tipoCambio}, actor, now),
		}
		if err := s.repo.AppendHistorialTx(ctx, tx, h); err != nil {
			return nil, err
		}
		eventos := []model.EventoEstado{{
			Entidad:     "liquidacion",
			EntidadID:   l.ID,
			Codigo:      l.Codigo,
			EstadoNuevo: string(l.Estado),
			Descripcion: h.Descripcion,
			SocioID:     l.SocioID,
			ActorID:     actor.ID,
			OcurridoAt:  now,
		}}

		if conc != nil {
			ev, err := s.concFSM.aplicar(ctx, tx, conc, transicion[model.EstadoConcentrado]{
				esperados:   []model.EstadoConcentrado{model.ConcentradoListoParaVenta},
				nuevo:       model.ConcentradoEnVenta,
				descripcion: "Concentrado en venta (" + l.Codigo + ")",
			}, actor)
			if err != nil {
				return nil, err
			}
			return append(eventos, ev), nil
		}
		if err := s.moverLotes(ctx, tx, l, model.LoteAprobado, model.LoteEnVenta); err != nil {
			return nil, err
		}
		return eventos, nil
	})
	if err != nil {
		return nil, err
	}
	return liquidacionToResponse(l), nil
}

func (s *liquidacionService) SolicitarReportes(ctx context.Context, id uuid.UUID, actor Actor) (*dto.LiquidacionResponse, error) {
	l, err := s.cargarVenta(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.ejecutar(ctx, func(tx *gorm.DB) ([]model.EventoEstado, error) {
		ev, err := s.fsm.aplicar(ctx, tx, l, transicion[model.EstadoLiquidacion]{
			esperados:   []model.EstadoLiquidacion{model.LiquidacionAprobada},
			nuevo:       model.LiquidacionEsperandoReportes,
			descripcion: "Reportes quimicos solicitados a socio y comprador",
		}, actor)
		return []model.EventoEstado{ev}, err
	})
	if err != nil {
		return nil, err
	}
	return liquidacionToResponse(l), nil
}

// RegistrarReporteVenta stores one side's assay. Once both sides are in, the
// reports are reconciled, the averaged report is stored and the settlement
// waits for closing.
func (s *liquidacionService) RegistrarReporteVenta(ctx context.Context, id uuid.UUID, actor Actor, req dto.RegistrarReporteVentaRequest) (*dto.LiquidacionResponse, error) {
	origen := model.OrigenReporte(req.Origen)
	if origen != model.ReporteSocio && origen != model.ReporteComprador {
		return nil, apierror.Validation("origen de reporte invalido: %s", req.Origen)
	}
	l, err := s.cargarVenta(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.Estado != model.LiquidacionEsperandoReportes {
		return nil, apierror.InvalidTransition("liquidacion", l.Estado, model.LiquidacionEsperandoReportes)
	}

	var contraparte *model.ReporteQuimico
	for i := range l.Reportes {
		r := &l.Reportes[i]
		switch {
		case r.Origen == origen:
			return nil, apierror.Validation("ya existe un reporte de %s para %s", origen, l.Codigo)
		case r.Origen == model.ReporteSocio || r.Origen == model.ReporteComprador:
			contraparte = r
		}
	}

	rep := reporteDesdeRequest(req.ReporteQuimicoRequest, origen, actor)
	if !tieneMetricas(rep) {
		return nil, apierror.Validation("el reporte quimico no contiene ninguna ley")
	}
	rep.LiquidacionID = &l.ID

	var rec *ResultadoReconciliacion
	if contraparte != nil {
		if rec, err = s.calc.ReconciliarReportes(rep, contraparte, l.Tipo); err != nil {
			return nil, err
		}
		l.DiferenciaReportes = rec.Diferencia
		l.RequiereRevision = rec.RequiereRevision
	}

	err = s.ejecutar(ctx, func(tx *gorm.DB) ([]model.EventoEstado, error) {
		if err := s.repo.CreateReporteTx(ctx, tx, rep); err != nil {
			return nil, err
		}
		l.Reportes = append(l.Reportes, *rep)

		t := transicion[model.EstadoLiquidacion]{
			esperados:   []model.EstadoLiquidacion{model.LiquidacionEsperandoReportes},
			nuevo:       model.LiquidacionEsperandoReportes,
			descripcion: fmt.Sprintf("Reporte quimico de %s registrado (%s)", origen, rep.Laboratorio),
			observacion: req.Observacion,
		}
		if rec != nil {
			prom := rec.Promedio
			prom.LiquidacionID = &l.ID
			prom.Laboratorio = "promedio"
			prom.RegistradoPor = actor.ID
			prom.CreatedAt = time.Now()
			if err := s.repo.CreateReporteTx(ctx, tx, &prom); err != nil {
				return nil, err
			}
			l.Reportes = append(l.Reportes, prom)

			t.nuevo = model.LiquidacionEsperandoCierreVenta
			t.descripcion = "Reportes conciliados, esperando cierre de venta"
			t.detalle = map[string]any{
				"diferencia":        rec.Diferencia,
				"tolerancia":        rec.Tolerancia,
				"requiere_revision": rec.RequiereRevision,
			}
		}
		ev, err := s.fsm.aplicar(ctx, tx, l, t, actor)
		return []model.EventoEstado{ev}, err
	})
	if err != nil {
		return nil, err
	}
	if rec != nil && rec.RequiereRevision {
		log.Warn().Str("liquidacion", l.Codigo).Msg("reportes quimicos fuera de tolerancia, requiere revision")
	}
	return liquidacionToResponse(l), nil
}

func (s *liquidacionService) CerrarVenta(ctx context.Context, id uuid.UUID, actor Actor) (*dto.LiquidacionResponse, error) {
	l, err := s.cargarVenta(ctx, id)
	if err != nil {
		return nil, err
	}
	sujetos, err := s.cargarSujetos(ctx, l)
	if err != nil {
		return nil, err
	}
	err = s.ejecutar(ctx, func(tx *gorm.DB) ([]model.EventoEstado, error) {
		ev, err := s.fsm.aplicar(ctx, tx, l, transicion[model.EstadoLiquidacion]{
			esperados:   []model.EstadoLiquidacion{model.LiquidacionEsperandoCierreVenta},
			nuevo:       model.LiquidacionCerrada,
			descripcion: "Venta cerrada",
		}, actor)
		if err != nil {
			return nil, err
		}
		evs, err := s.moverConcentrados(ctx, tx, sujetos, transicion[model.EstadoConcentrado]{
			esperados:   []model.EstadoConcentrado{model.ConcentradoEnVenta},
			nuevo:       model.ConcentradoVendido,
			descripcion: "Concentrado vendido (" + l.Codigo + ")",
		}, actor)
		if err != nil {
			return nil, err
		}
		if err := s.moverLotes(ctx, tx, l, model.LoteEnVenta, model.LoteVendido); err != nil {
			return nil, err
		}
		return append(evs, ev), nil
	})
	if err != nil {
		return nil, err
	}
	return liquidacionToResponse(l), nil
}

func (s *liquidacionService) ObtenerLiquidacion(ctx context.Context, id uuid.UUID) (*dto.LiquidacionResponse, error) {
	l, err := s.cargar(ctx, id)
	if err != nil {
		return nil, err
	}
	return liquidacionToResponse(l), nil
}

func (s *liquidacionService) ListarHistorial(ctx context.Context, id uuid.UUID) (*dto.HistorialListResponse, error) {
	if _, err := s.cargar(ctx, id); err != nil {
		return nil, err
	}
	hs, err := s.repo.ListHistorial(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := &dto.HistorialListResponse{Data: make([]dto.HistorialItem, 0, len(hs)), Total: len(hs)}
	for _, h := range hs {
		resp.Data = append(resp.Data, historialToItem(h.RegistroHistorial))
	}
	return resp, nil
}

// cargarSujetos loads the concentrates a sale settlement covers.
func (s *liquidacionService) cargarSujetos(ctx context.Context, l *model.Liquidacion) ([]model.Concentrado, error) {
	ids := l.ConcentradoIDs()
	out := make([]model.Concentrado, 0, len(ids))
	for _, id := range ids {
		c, err := s.concRepo.FindByID(ctx, id)
		if err != nil {
			return nil, notFound(err, "concentrado %s no encontrado", id)
		}
		out = append(out, *c)
	}
	return out, nil
}

// moverLotes moves the raw lots a sale covers, all or nothing.
func (s *liquidacionService) moverLotes(ctx context.Context, tx *gorm.DB, l *model.Liquidacion, desde, hacia model.EstadoLote) error {
	ids := l.LoteIDs()
	if len(ids) == 0 {
		return nil
	}
	n, err := s.loteRepo.UpdateEstadoTx(ctx, tx, ids, []model.EstadoLote{desde}, hacia)
	if err != nil {
		return err
	}
	if n != int64(len(ids)) {
		return &apierror.Error{
			Kind:   apierror.KindInvalidStateTransition,
			Detail: fmt.Sprintf("uno o mas lotes ya no estan en estado '%s'", desde),
			Fields: map[string]string{"esperado": string(desde)},
		}
	}
	return nil
}

// mineralReferencia picks the mineral a raw lot is priced by: its first heavy
// mineral, else Ag.
func mineralReferencia(l *model.Lote) model.Mineral {
	rec := l.MineralesReconocidos()
	for _, m := range []model.Mineral{model.MineralSn, model.MineralZn, model.MineralAg} {
		if rec[m] {
			return m
		}
	}
	return ""
}
