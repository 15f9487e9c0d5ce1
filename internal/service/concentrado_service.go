package service

import (
	"context"
	"fmt"
	"strings"
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

type ConcentradoService interface {
	CrearConcentrados(ctx context.Context, actor Actor, req dto.CrearConcentradosRequest) (*dto.CrearConcentradosResponse, error)
	DespacharAPlanta(ctx context.Context, id uuid.UUID, actor Actor, observacion *string) (*dto.ConcentradoResponse, error)
	RegistrarReporteQuimico(ctx context.Context, id uuid.UUID, actor Actor, req dto.ReporteQuimicoRequest) (*dto.ConcentradoResponse, error)
	RegistrarPesoFinal(ctx context.Context, id uuid.UUID, actor Actor, req dto.PesoFinalRequest) (*dto.ConcentradoResponse, error)
	MarcarListoParaLiquidacion(ctx context.Context, id uuid.UUID, actor Actor, observacion *string) (*dto.ConcentradoResponse, error)
	HabilitarVenta(ctx context.Context, id uuid.UUID, actor Actor, observacion *string) (*dto.ConcentradoResponse, error)
	ObtenerConcentrado(ctx context.Context, id uuid.UUID) (*dto.ConcentradoResponse, error)
	ListarHistorial(ctx context.Context, id uuid.UUID) (*dto.HistorialListResponse, error)
}

type concentradoService struct {
	repo       repository.ConcentradoRepository
	loteRepo   repository.LoteRepository
	plantaRepo repository.PlantaRepository
	liqRepo    repository.LiquidacionRepository
	fsm        concentradoFSM
	calc       CalculadoraLiquidacion
	emisor     *Emisor
	tipoCambio decimal.Decimal
}

// NewConcentradoService wires the lifecycle service. tipoCambio is the BOB/USD
// rate used for the toll settlement created with each batch.
func NewConcentradoService(
	repo repository.ConcentradoRepository,
	loteRepo repository.LoteRepository,
	plantaRepo repository.PlantaRepository,
	liqRepo repository.LiquidacionRepository,
	emisor *Emisor,
	tipoCambio decimal.Decimal,
) ConcentradoService {
	return &concentradoService{
		repo:       repo,
		loteRepo:   loteRepo,
		plantaRepo: plantaRepo,
		liqRepo:    liqRepo,
		fsm:        concentradoFSM{repo: repo},
		emisor:     emisor,
		tipoCambio: tipoCambio,
	}
}

// ── CrearConcentrados ─────────────────────────────────────────────────────────
//   1. Validate plant and lots (owner, plant, destination, status, weight, no prior relation)
//   2. Plan concentrates from the union of minerals
//   3. Link each lot only to the plans whose principal mineral it contains
//   4. BEGIN TX: toll settlement, concentrates + relations + kanban cards + history, lots → en_concentrado
//   5. COMMIT, then emit creation events

// aporte is one lot's contribution to one planned concentrate.
type aporte struct {
	loteID     uuid.UUID
	peso       decimal.Decimal
	porcentaje decimal.Decimal
}

func (s *concentradoService) CrearConcentrados(ctx context.Context, actor Actor, req dto.CrearConcentradosRequest) (*dto.CrearConcentradosResponse, error) {
	plantaID, err := uuid.Parse(req.PlantaID)
	if err != nil {
		return nil, apierror.Validation("planta_id invalido")
	}
	ids := make([]uuid.UUID, 0, len(req.LoteIDs))
	vistos := make(map[uuid.UUID]bool, len(req.LoteIDs))
	for _, raw := range req.LoteIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, apierror.Validation("lote_id invalido: %s", raw)
		}
		if vistos[id] {
			return nil, apierror.Validation("lote %s repetido en la solicitud", raw)
		}
		vistos[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, apierror.Validation("se requiere al menos un lote")
	}

	planta, err := s.plantaRepo.FindByID(ctx, plantaID)
	if err != nil {
		return nil, notFound(err, "planta %s no encontrada", plantaID)
	}
	if !planta.Activa {
		return nil, apierror.Validation("la planta %s no esta activa", planta.Codigo)
	}
	if len(planta.Etapas) == 0 {
		return nil, apierror.Validation("la planta %s no tiene etapas configuradas", planta.Codigo)
	}

	lotes, err := s.loteRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("cargando lotes: %w", err)
	}
	if len(lotes) != len(ids) {
		encontrados := make(map[uuid.UUID]bool, len(lotes))
		for _, l := range lotes {
			encontrados[l.ID] = true
		}
		for _, id := range ids {
			if !encontrados[id] {
				return nil, apierror.NotFound("lote %s no encontrado", id)
			}
		}
	}

	socioID := lotes[0].SocioID
	pesoTotal := decimal.Zero
	var minerales []string
	for i := range lotes {
		l := &lotes[i]
		if l.SocioID != socioID {
			return nil, apierror.Validation("todos los lotes deben pertenecer al mismo socio (lote %s)", l.Codigo)
		}
		if l.PlantaID != nil && *l.PlantaID != planta.ID {
			return nil, apierror.Validation("el lote %s esta asignado a otra planta", l.Codigo)
		}
		if l.Destino != model.DestinoProcesamiento {
			return nil, apierror.Validation("el lote %s no tiene destino procesamiento", l.Codigo)
		}
		if l.Estado != model.LoteAprobado {
			return nil, apierror.InvalidTransition("lote "+l.Codigo, l.Estado, model.LoteAprobado)
		}
		if !l.PesoEfectivo().IsPositive() {
			return nil, apierror.Validation("el lote %s tiene peso invalido", l.Codigo)
		}
		pesoTotal = pesoTotal.Add(l.PesoEfectivo())
		minerales = append(minerales, l.Minerales...)
	}

	relacionados, err := s.loteRepo.IDsConConcentrado(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("verificando relaciones de lotes: %w", err)
	}
	if len(relacionados) > 0 {
		return nil, apierror.Validation("el lote %s ya pertenece a un concentrado", relacionados[0])
	}

	if pesoTotal.LessThan(planta.PesoMinimoKg) {
		return nil, apierror.Validation("peso total %s kg inferior al minimo de la planta (%s kg)",
			pesoTotal.StringFixed(escala), planta.PesoMinimoKg.StringFixed(escala))
	}

	planes, err := PlanificarConcentrados(minerales)
	if err != nil {
		return nil, err
	}
	aportes, err := distribuirLotes(lotes, planes)
	if err != nil {
		return nil, err
	}

	pesos := make([]decimal.Decimal, 0, len(lotes))
	for i := range lotes {
		pesos = append(pesos, lotes[i].PesoEfectivo())
	}
	servicio, err := s.calc.CalcularServicio(pesos, planta.CostoProcesamiento, nil, s.tipoCambio)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	liq := &model.Liquidacion{
		ID:            uuid.New(),
		Tipo:          model.LiquidacionServicio,
		Estado:        model.LiquidacionPendienteAprobacion,
		SocioID:       socioID,
		PlantaID:      &planta.ID,
		PesoTotalKg:   servicio.PesoKg,
		CostoUnitario: planta.CostoProcesamiento,
		ValorBruto:    servicio.CostoProcesamiento,
		ValorNetoUSD:  servicio.ValorNetoUSD,
		ValorNetoBOB:  servicio.ValorNetoBOB,
		TipoCambio:    s.tipoCambio,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, id := range ids {
		liq.Lotes = append(liq.Lotes, model.LiquidacionLote{LiquidacionID: liq.ID, LoteID: id})
	}

	concentrados := make([]*model.Concentrado, 0, len(planes))
	for i, plan := range planes {
		c := &model.Concentrado{
			ID:                    uuid.New(),
			PlantaID:              planta.ID,
			SocioID:               socioID,
			MineralPrincipal:      plan.MineralPrincipal,
			MineralesSecundarios:  plan.MineralesSecundarios,
			Estado:                model.ConcentradoCreado,
			RequiereRevision:      plan.RequiereRevision,
			LiquidacionServicioID: &liq.ID,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		if plan.NotaRevision != "" {
			c.NotaRevision = ptr(plan.NotaRevision)
		}
		pesoInicial := decimal.Zero
		for _, a := range aportes[i] {
			pesoInicial = pesoInicial.Add(a.peso)
			c.Lotes = append(c.Lotes, model.LoteConcentrado{
				LoteID:        a.loteID,
				ConcentradoID: c.ID,
				PesoAportado:  a.peso,
				Porcentaje:    a.porcentaje,
				CreatedAt:     now,
			})
		}
		c.PesoInicial = pesoInicial
		c.PorcentajeParticipacion = redondear(pesoInicial.Div(pesoTotal).Mul(cien))
		for _, e := range planta.Etapas {
			c.Etapas = append(c.Etapas, model.ConcentradoEtapa{
				ConcentradoID: c.ID,
				EtapaPlantaID: e.ID,
				Nombre:        e.Nombre,
				Orden:         e.Orden,
				Estado:        model.EtapaPendiente,
				UpdatedAt:     now,
			})
		}
		concentrados = append(concentrados, c)
		liq.Concentrados = append(liq.Concentrados, model.LiquidacionConcentrado{LiquidacionID: liq.ID, ConcentradoID: c.ID})
	}

	var eventos []model.EventoEstado
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		seq, err := s.liqRepo.NextCodigoSeq(ctx, tx)
		if err != nil {
			return err
		}
		liq.Codigo = fmt.Sprintf("LIQ-S-%06d", seq)
		if err := s.liqRepo.CreateTx(ctx, tx, liq); err != nil {
			return fmt.Errorf("creando liquidacion de servicio: %w", err)
		}
		hl := &model.LiquidacionHistorial{
			LiquidacionID: liq.ID,
			RegistroHistorial: registroHistorial("", string(liq.Estado),
				fmt.Sprintf("Liquidacion de servicio creada para %d concentrado(s): neto %s USD", len(concentrados), liq.ValorNetoUSD.StringFixed(escala)),
				nil, map[string]any{"peso_total_kg": liq.PesoTotalKg, "lotes": len(ids)}, actor, now),
		}
		if err := s.liqRepo.AppendHistorialTx(ctx, tx, hl); err != nil {
			return err
		}

		for _, c := range concentrados {
			seq, err := s.repo.NextCodigoSeq(ctx, tx)
			if err != nil {
				return err
			}
			c.Codigo = fmt.Sprintf("%s-%s-%05d", strings.ToUpper(planta.Codigo), strings.ToUpper(string(c.MineralPrincipal)), seq)
			if err := s.repo.CreateTx(ctx, tx, c); err != nil {
				return fmt.Errorf("creando concentrado %s: %w", c.Codigo, err)
			}
			h := &model.ConcentradoHistorial{
				ConcentradoID: c.ID,
				RegistroHistorial: registroHistorial("", string(model.ConcentradoCreado),
					fmt.Sprintf("Concentrado de %s creado a partir de %d lote(s)", c.MineralPrincipal, len(c.Lotes)),
					c.NotaRevision, map[string]any{"liquidacion_servicio": liq.Codigo, "peso_inicial": c.PesoInicial}, actor, now),
			}
			if err := s.repo.AppendHistorialTx(ctx, tx, h); err != nil {
				return err
			}
			eventos = append(eventos, model.EventoEstado{
				Entidad:     "concentrado",
				EntidadID:   c.ID,
				Codigo:      c.Codigo,
				EstadoNuevo: string(model.ConcentradoCreado),
				Descripcion: h.Descripcion,
				SocioID:     c.SocioID,
				PlantaID:    c.PlantaID,
				ActorID:     actor.ID,
				OcurridoAt:  now,
			})
		}

		n, err := s.loteRepo.UpdateEstadoTx(ctx, tx, ids, []model.EstadoLote{model.LoteAprobado}, model.LoteEnConcentrado)
		if err != nil {
			return err
		}
		if n != int64(len(ids)) {
			return &apierror.Error{
				Kind:   apierror.KindInvalidStateTransition,
				Detail: "uno o mas lotes dejaron de estar en estado 'aprobado'",
			}
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	log.Info().
		Str("planta", planta.Codigo).
		Str("liquidacion", liq.Codigo).
		Int("concentrados", len(concentrados)).
		Int("lotes", len(ids)).
		Msg("concentrados creados")
	s.emisor.Emitir(ctx, eventos...)

	resp := &dto.CrearConcentradosResponse{LiquidacionServicioID: liq.ID.String()}
	for _, c := range concentrados {
		resp.Concentrados = append(resp.Concentrados, *concentradoToResponse(c))
	}
	return resp, nil
}

// distribuirLotes links each lot to the planned concentrates whose principal
// mineral the lot contains. A lot feeding several concentrates is split in
// proportion to their planned shares. A lot that links to no plan fails the
// whole batch.
func distribuirLotes(lotes []model.Lote, planes []ConcentradoPlanificado) ([][]aporte, error) {
	out := make([][]aporte, len(planes))
	for i := range lotes {
		l := &lotes[i]
		reconocidos := l.MineralesReconocidos()
		var destinos []int
		cuota := decimal.Zero
		for j, p := range planes {
			if reconocidos[p.MineralPrincipal] {
				destinos = append(destinos, j)
				cuota = cuota.Add(p.Porcentaje)
			}
		}
		if len(destinos) == 0 {
			return nil, apierror.Validation("el lote %s no aporta a ningun concentrado del lote de produccion", l.Codigo)
		}

		peso := l.PesoEfectivo()
		asignado := decimal.Zero
		for k, j := range destinos {
			pct := redondear(planes[j].Porcentaje.Mul(cien).Div(cuota))
			p := redondear(peso.Mul(planes[j].Porcentaje).Div(cuota))
			if k == len(destinos)-1 {
				p = peso.Sub(asignado)
			}
			asignado = asignado.Add(p)
			out[j] = append(out[j], aporte{loteID: l.ID, peso: p, porcentaje: pct})
		}
	}
	return out, nil
}

// ── Simple transitions ────────────────────────────────────────────────────────

// mover loads the concentrate, runs the transition and any extra writes in one
// transaction, then emits the event.
func (s *concentradoService) mover(
	ctx context.Context,
	id uuid.UUID,
	actor Actor,
	t transicion[model.EstadoConcentrado],
	validar func(c *model.Concentrado) error,
	extra func(tx *gorm.DB, c *model.Concentrado) error,
) (*dto.ConcentradoResponse, error) {
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "concentrado %s no encontrado", id)
	}
	if validar != nil {
		if err := validar(c); err != nil {
			return nil, err
		}
	}

	var ev model.EventoEstado
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		var err error
		if ev, err = s.fsm.aplicar(ctx, tx, c, t, actor); err != nil {
			return err
		}
		if extra != nil {
			return extra(tx, c)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	s.emisor.Emitir(ctx, ev)
	return concentradoToResponse(c), nil
}

func (s *concentradoService) DespacharAPlanta(ctx context.Context, id uuid.UUID, actor Actor, observacion *string) (*dto.ConcentradoResponse, error) {
	return s.mover(ctx, id, actor, transicion[model.EstadoConcentrado]{
		esperados:   []model.EstadoConcentrado{model.ConcentradoCreado},
		nuevo:       model.ConcentradoEnCaminoAPlanta,
		descripcion: "Concentrado despachado a planta",
		observacion: observacion,
	}, nil, nil)
}

func (s *concentradoService) RegistrarReporteQuimico(ctx context.Context, id uuid.UUID, actor Actor, req dto.ReporteQuimicoRequest) (*dto.ConcentradoResponse, error) {
	rep := reporteDesdeRequest(req, model.ReportePlanta, actor)
	if !tieneMetricas(rep) {
		return nil, apierror.Validation("el reporte quimico no contiene ninguna ley")
	}
	return s.mover(ctx, id, actor, transicion[model.EstadoConcentrado]{
		esperados:   []model.EstadoConcentrado{model.ConcentradoEsperandoReporteQuimico},
		nuevo:       model.ConcentradoReporteQuimicoRegistrado,
		descripcion: "Reporte quimico de planta registrado (" + req.Laboratorio + ")",
		observacion: req.Observacion,
	}, nil, func(tx *gorm.DB, c *model.Concentrado) error {
		rep.ConcentradoID = &c.ID
		return s.repo.CreateReporteTx(ctx, tx, rep)
	})
}

// RegistrarPesoFinal records the post-processing weight once and computes the
// loss. A negative loss is flagged, never rejected. Status does not change.
func (s *concentradoService) RegistrarPesoFinal(ctx context.Context, id uuid.UUID, actor Actor, req dto.PesoFinalRequest) (*dto.ConcentradoResponse, error) {
	if !req.PesoFinal.IsPositive() {
		return nil, apierror.Validation("peso final debe ser mayor a cero")
	}
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "concentrado %s no encontrado", id)
	}
	if c.PesoFinal != nil {
		return nil, apierror.Validation("el peso final del concentrado %s ya fue registrado", c.Codigo)
	}
	permitidos := []model.EstadoConcentrado{model.ConcentradoEsperandoReporteQuimico, model.ConcentradoReporteQuimicoRegistrado}
	if !contiene(permitidos, c.Estado) {
		return nil, apierror.InvalidTransition("concentrado", c.Estado, permitidos...)
	}

	final := redondear(req.PesoFinal)
	merma := c.PesoInicial.Sub(final)
	c.PesoFinal = &final
	c.Merma = &merma
	c.MermaNegativa = merma.IsNegative()
	c.UpdatedAt = time.Now()

	descripcion := fmt.Sprintf("Peso final registrado: %s kg (merma %s kg)", final.StringFixed(escala), merma.StringFixed(escala))
	var ev model.EventoEstado
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		n, err := s.repo.UpdatePesoFinalTx(ctx, tx, c, permitidos)
		if err != nil {
			return err
		}
		if n == 0 {
			return &apierror.Error{
				Kind:   apierror.KindInvalidStateTransition,
				Detail: "el concentrado cambio de estado o su peso final ya fue registrado",
			}
		}
		ev, err = s.fsm.aplicar(ctx, tx, c, transicion[model.EstadoConcentrado]{
			esperados:   permitidos,
			nuevo:       c.Estado,
			descripcion: descripcion,
			observacion: req.Observacion,
			detalle:     map[string]any{"peso_final": final, "merma": merma, "merma_negativa": c.MermaNegativa},
		}, actor)
		return err
	})
	if txErr != nil {
		return nil, txErr
	}
	if c.MermaNegativa {
		log.Warn().Str("concentrado", c.Codigo).Str("merma", merma.String()).Msg("merma negativa registrada")
	}
	s.emisor.Emitir(ctx, ev)
	return concentradoToResponse(c), nil
}

func (s *concentradoService) MarcarListoParaLiquidacion(ctx context.Context, id uuid.UUID, actor Actor, observacion *string) (*dto.ConcentradoResponse, error) {
	return s.mover(ctx, id, actor, transicion[model.EstadoConcentrado]{
		esperados:   []model.EstadoConcentrado{model.ConcentradoReporteQuimicoRegistrado},
		nuevo:       model.ConcentradoListoParaLiquidacion,
		descripcion: "Concentrado listo para liquidacion de servicio",
		observacion: observacion,
	}, func(c *model.Concentrado) error {
		if c.PesoFinal == nil {
			return apierror.Validation("registre el peso final del concentrado %s antes de liquidar", c.Codigo)
		}
		return nil
	}, nil)
}

func (s *concentradoService) HabilitarVenta(ctx context.Context, id uuid.UUID, actor Actor, observacion *string) (*dto.ConcentradoResponse, error) {
	return s.mover(ctx, id, actor, transicion[model.EstadoConcentrado]{
		esperados:   []model.EstadoConcentrado{model.ConcentradoServicioPagado},
		nuevo:       model.ConcentradoListoParaVenta,
		descripcion: "Concentrado habilitado para venta",
		observacion: observacion,
	}, nil, nil)
}

func (s *concentradoService) ObtenerConcentrado(ctx context.Context, id uuid.UUID) (*dto.ConcentradoResponse, error) {
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "concentrado %s no encontrado", id)
	}
	return concentradoToResponse(c), nil
}

func (s *concentradoService) ListarHistorial(ctx context.Context, id uuid.UUID) (*dto.HistorialListResponse, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return nil, notFound(err, "concentrado %s no encontrado", id)
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

func reporteDesdeRequest(req dto.ReporteQuimicoRequest, origen model.OrigenReporte, actor Actor) *model.ReporteQuimico {
	return &model.ReporteQuimico{
		Origen:        origen,
		Laboratorio:   req.Laboratorio,
		LeyPrincipal:  req.LeyPrincipal,
		LeyAgDM:       req.LeyAgDM,
		LeyAgGT:       req.LeyAgGT,
		Humedad:       req.Humedad,
		LeyPb:         req.LeyPb,
		LeyZn:         req.LeyZn,
		RegistradoPor: actor.ID,
		CreatedAt:     time.Now(),
	}
}

func tieneMetricas(r *model.ReporteQuimico) bool {
	return r.LeyPrincipal != nil || r.LeyAgDM != nil || r.LeyAgGT != nil ||
		r.Humedad != nil || r.LeyPb != nil || r.LeyZn != nil
}
