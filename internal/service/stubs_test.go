package service_test

import (
	"context"
	"sort"
	"sync"

	"concentra/internal/model"
	"concentra/internal/repository"
	"concentra/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ── Stubs ─────────────────────────────────────────────────────────────────────
//
// The stubs keep their own copies of every row, so a service only sees a change
// after it went through an Update call, like with the real tables.

func contiene[S comparable](xs []S, x S) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func copiarConcentrado(c *model.Concentrado) *model.Concentrado {
	cp := *c
	cp.Lotes = append([]model.LoteConcentrado(nil), c.Lotes...)
	cp.Etapas = append([]model.ConcentradoEtapa(nil), c.Etapas...)
	cp.Historial = nil
	return &cp
}

// stubConcentradoRepo is an in-memory ConcentradoRepository.
type stubConcentradoRepo struct {
	concentrados map[uuid.UUID]*model.Concentrado
	historial    map[uuid.UUID][]model.ConcentradoHistorial
	reportes     []model.ReporteQuimico
	seq          int
	// carrera makes the next conditional update lose, as if another request
	// moved the row first.
	carrera bool
}

func newStubConcentradoRepo() *stubConcentradoRepo {
	return &stubConcentradoRepo{
		concentrados: make(map[uuid.UUID]*model.Concentrado),
		historial:    make(map[uuid.UUID][]model.ConcentradoHistorial),
	}
}

func (r *stubConcentradoRepo) CreateTx(_ context.Context, _ *gorm.DB, c *model.Concentrado) error {
	r.concentrados[c.ID] = copiarConcentrado(c)
	return nil
}

func (r *stubConcentradoRepo) NextCodigoSeq(_ context.Context, _ *gorm.DB) (int, error) {
	r.seq++
	return r.seq, nil
}

func (r *stubConcentradoRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Concentrado, error) {
	c, ok := r.concentrados[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return copiarConcentrado(c), nil
}

func (r *stubConcentradoRepo) FindByLiquidacionServicio(_ context.Context, liquidacionID uuid.UUID) ([]model.Concentrado, error) {
	var out []model.Concentrado
	for _, c := range r.concentrados {
		if c.LiquidacionServicioID != nil && *c.LiquidacionServicioID == liquidacionID {
			out = append(out, *copiarConcentrado(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Codigo < out[j].Codigo })
	return out, nil
}

func (r *stubConcentradoRepo) UpdateEstadoTx(_ context.Context, _ *gorm.DB, c *model.Concentrado, esperados []model.EstadoConcentrado) (int64, error) {
	if r.carrera {
		r.carrera = false
		return 0, nil
	}
	stored, ok := r.concentrados[c.ID]
	if !ok || !contiene(esperados, stored.Estado) {
		return 0, nil
	}
	stored.Estado = c.Estado
	stored.UpdatedAt = c.UpdatedAt
	return 1, nil
}

func (r *stubConcentradoRepo) ReasignarLiquidacionServicioTx(_ context.Context, _ *gorm.DB, ids []uuid.UUID, anterior, nueva uuid.UUID) (int64, error) {
	var n int64
	for _, id := range ids {
		stored, ok := r.concentrados[id]
		if !ok || stored.LiquidacionServicioID == nil || *stored.LiquidacionServicioID != anterior {
			continue
		}
		stored.LiquidacionServicioID = &nueva
		n++
	}
	return n, nil
}

func (r *stubConcentradoRepo) UpdatePesoFinalTx(_ context.Context, _ *gorm.DB, c *model.Concentrado, esperados []model.EstadoConcentrado) (int64, error) {
	stored, ok := r.concentrados[c.ID]
	if !ok || stored.PesoFinal != nil || !contiene(esperados, stored.Estado) {
		return 0, nil
	}
	stored.PesoFinal = c.PesoFinal
	stored.Merma = c.Merma
	stored.MermaNegativa = c.MermaNegativa
	return 1, nil
}

func (r *stubConcentradoRepo) AppendHistorialTx(_ context.Context, _ *gorm.DB, h *model.ConcentradoHistorial) error {
	h.Secuencia = len(r.historial[h.ConcentradoID]) + 1
	r.historial[h.ConcentradoID] = append(r.historial[h.ConcentradoID], *h)
	return nil
}

func (r *stubConcentradoRepo) ListHistorial(_ context.Context, concentradoID uuid.UUID) ([]model.ConcentradoHistorial, error) {
	return append([]model.ConcentradoHistorial(nil), r.historial[concentradoID]...), nil
}

func (r *stubConcentradoRepo) ListEtapas(_ context.Context, concentradoID uuid.UUID) ([]model.ConcentradoEtapa, error) {
	c, ok := r.concentrados[concentradoID]
	if !ok {
		return nil, nil
	}
	return append([]model.ConcentradoEtapa(nil), c.Etapas...), nil
}

func (r *stubConcentradoRepo) UpdateEtapaTx(_ context.Context, _ *gorm.DB, e *model.ConcentradoEtapa, previo model.EstadoEtapa) (int64, error) {
	c, ok := r.concentrados[e.ConcentradoID]
	if !ok {
		return 0, nil
	}
	for i := range c.Etapas {
		if c.Etapas[i].Orden != e.Orden {
			continue
		}
		if c.Etapas[i].Estado != previo {
			return 0, nil
		}
		c.Etapas[i] = *e
		return 1, nil
	}
	return 0, nil
}

func (r *stubConcentradoRepo) CreateReporteTx(_ context.Context, _ *gorm.DB, rep *model.ReporteQuimico) error {
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}
	r.reportes = append(r.reportes, *rep)
	return nil
}

func (r *stubConcentradoRepo) DB() *gorm.DB { return nil }

func (r *stubConcentradoRepo) estado(id uuid.UUID) model.EstadoConcentrado {
	return r.concentrados[id].Estado
}

func (r *stubConcentradoRepo) estados() []model.EstadoConcentrado {
	var out []model.EstadoConcentrado
	for _, c := range r.concentrados {
		out = append(out, c.Estado)
	}
	return out
}

var _ repository.ConcentradoRepository = (*stubConcentradoRepo)(nil)

// stubLoteRepo is an in-memory LoteRepository.
type stubLoteRepo struct {
	lotes        map[uuid.UUID]*model.Lote
	relacionados map[uuid.UUID]bool
}

func newStubLoteRepo(lotes ...model.Lote) *stubLoteRepo {
	r := &stubLoteRepo{lotes: make(map[uuid.UUID]*model.Lote), relacionados: make(map[uuid.UUID]bool)}
	for i := range lotes {
		l := lotes[i]
		r.lotes[l.ID] = &l
	}
	return r
}

func (r *stubLoteRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Lote, error) {
	l, ok := r.lotes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *stubLoteRepo) FindByIDs(_ context.Context, ids []uuid.UUID) ([]model.Lote, error) {
	var out []model.Lote
	for _, id := range ids {
		if l, ok := r.lotes[id]; ok {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (r *stubLoteRepo) IDsConConcentrado(_ context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, id := range ids {
		if r.relacionados[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *stubLoteRepo) UpdateEstadoTx(_ context.Context, _ *gorm.DB, ids []uuid.UUID, esperados []model.EstadoLote, nuevo model.EstadoLote) (int64, error) {
	var n int64
	for _, id := range ids {
		l, ok := r.lotes[id]
		if !ok || !contiene(esperados, l.Estado) {
			continue
		}
		l.Estado = nuevo
		n++
	}
	return n, nil
}

var _ repository.LoteRepository = (*stubLoteRepo)(nil)

// stubPlantaRepo is an in-memory PlantaRepository.
type stubPlantaRepo struct {
	plantas map[uuid.UUID]*model.Planta
}

func newStubPlantaRepo(plantas ...model.Planta) *stubPlantaRepo {
	r := &stubPlantaRepo{plantas: make(map[uuid.UUID]*model.Planta)}
	for i := range plantas {
		p := plantas[i]
		r.plantas[p.ID] = &p
	}
	return r
}

func (r *stubPlantaRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Planta, error) {
	p, ok := r.plantas[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

var _ repository.PlantaRepository = (*stubPlantaRepo)(nil)

// stubLiquidacionRepo is an in-memory LiquidacionRepository.
type stubLiquidacionRepo struct {
	liquidaciones map[uuid.UUID]*model.Liquidacion
	historial     map[uuid.UUID][]model.LiquidacionHistorial
	seq           int
}

func newStubLiquidacionRepo() *stubLiquidacionRepo {
	return &stubLiquidacionRepo{
		liquidaciones: make(map[uuid.UUID]*model.Liquidacion),
		historial:     make(map[uuid.UUID][]model.LiquidacionHistorial),
	}
}

func copiarLiquidacion(l *model.Liquidacion) *model.Liquidacion {
	cp := *l
	cp.Deducciones = append([]model.LiquidacionDeduccion(nil), l.Deducciones...)
	cp.Servicios = append([]model.LiquidacionServicioLinea(nil), l.Servicios...)
	cp.Concentrados = append([]model.LiquidacionConcentrado(nil), l.Concentrados...)
	cp.Lotes = append([]model.LiquidacionLote(nil), l.Lotes...)
	cp.Reportes = append([]model.ReporteQuimico(nil), l.Reportes...)
	cp.Historial = nil
	return &cp
}

func (r *stubLiquidacionRepo) CreateTx(_ context.Context, _ *gorm.DB, l *model.Liquidacion) error {
	r.liquidaciones[l.ID] = copiarLiquidacion(l)
	return nil
}

func (r *stubLiquidacionRepo) NextCodigoSeq(_ context.Context, _ *gorm.DB) (int, error) {
	r.seq++
	return r.seq, nil
}

func (r *stubLiquidacionRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Liquidacion, error) {
	l, ok := r.liquidaciones[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return copiarLiquidacion(l), nil
}

// UpdateTx writes the scalar columns; child rows only change through their own calls.
func (r *stubLiquidacionRepo) UpdateTx(_ context.Context, _ *gorm.DB, l *model.Liquidacion, esperados []model.EstadoLiquidacion) (int64, error) {
	stored, ok := r.liquidaciones[l.ID]
	if !ok || !contiene(esperados, stored.Estado) {
		return 0, nil
	}
	cp := copiarLiquidacion(l)
	cp.Servicios = stored.Servicios
	cp.Reportes = stored.Reportes
	r.liquidaciones[l.ID] = cp
	return 1, nil
}

func (r *stubLiquidacionRepo) ReplaceServiciosTx(_ context.Context, _ *gorm.DB, liquidacionID uuid.UUID, servicios []model.LiquidacionServicioLinea) error {
	if l, ok := r.liquidaciones[liquidacionID]; ok {
		l.Servicios = append([]model.LiquidacionServicioLinea(nil), servicios...)
	}
	return nil
}

func (r *stubLiquidacionRepo) AppendHistorialTx(_ context.Context, _ *gorm.DB, h *model.LiquidacionHistorial) error {
	h.Secuencia = len(r.historial[h.LiquidacionID]) + 1
	r.historial[h.LiquidacionID] = append(r.historial[h.LiquidacionID], *h)
	return nil
}

func (r *stubLiquidacionRepo) ListHistorial(_ context.Context, liquidacionID uuid.UUID) ([]model.LiquidacionHistorial, error) {
	return append([]model.LiquidacionHistorial(nil), r.historial[liquidacionID]...), nil
}

func (r *stubLiquidacionRepo) CreateReporteTx(_ context.Context, _ *gorm.DB, rep *model.ReporteQuimico) error {
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}
	if rep.LiquidacionID != nil {
		if l, ok := r.liquidaciones[*rep.LiquidacionID]; ok {
			l.Reportes = append(l.Reportes, *rep)
		}
	}
	return nil
}

func (r *stubLiquidacionRepo) UpdatePDFPath(_ context.Context, id uuid.UUID, path string) error {
	l, ok := r.liquidaciones[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	l.PDFPath = &path
	return nil
}

func (r *stubLiquidacionRepo) DB() *gorm.DB { return nil }

var _ repository.LiquidacionRepository = (*stubLiquidacionRepo)(nil)

// stubSinks records everything the Emisor hands off after commit.
type stubSinks struct {
	mu             sync.Mutex
	eventos        []model.EventoEstado
	notificaciones []model.Notificacion
	auditoria      []model.RegistroAuditoria
	documentos     []uuid.UUID
}

func (s *stubSinks) Publicar(_ context.Context, e model.EventoEstado) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventos = append(s.eventos, e)
	return nil
}

func (s *stubSinks) Notificar(_ context.Context, n model.Notificacion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notificaciones = append(s.notificaciones, n)
	return nil
}

func (s *stubSinks) Auditar(_ context.Context, r model.RegistroAuditoria) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditoria = append(s.auditoria, r)
	return nil
}

func (s *stubSinks) GenerarPDFLiquidacion(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documentos = append(s.documentos, id)
	return nil
}

func (s *stubSinks) emisor() *service.Emisor { return service.NewEmisor(s, s, s, s) }

// estadosNuevos lists the published target statuses of one entity, in order.
func (s *stubSinks) estadosNuevos(entidadID uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.eventos {
		if e.EntidadID == entidadID {
			out = append(out, e.EstadoNuevo)
		}
	}
	return out
}

// stubPrecios is a fixed FuentePrecios.
type stubPrecios struct {
	precios map[model.Mineral]decimal.Decimal
}

func (p stubPrecios) Precio(_ context.Context, m model.Mineral) (model.Cotizacion, error) {
	precio, ok := p.precios[m]
	if !ok {
		return model.Cotizacion{}, gorm.ErrRecordNotFound
	}
	unidad := model.UnidadTonelada
	if m == model.MineralAg {
		unidad = model.UnidadOnzaTroy
	}
	return model.Cotizacion{Mineral: m, Precio: precio, Unidad: unidad, Fuente: "stub"}, nil
}

var _ service.FuentePrecios = stubPrecios{}

// ── Fixtures ──────────────────────────────────────────────────────────────────

var (
	tipoCambio = decimal.RequireFromString("6.96")
	actor      = service.Actor{ID: uuid.New(), Origen: model.OrigenSolicitud{IP: "10.0.0.1", Canal: "api"}}
)

func plantaFixture() model.Planta {
	id := uuid.New()
	p := model.Planta{
		ID:                 id,
		Codigo:             "plt1",
		Nombre:             "Planta Uno",
		CostoProcesamiento: decimal.NewFromInt(45),
		PesoMinimoKg:       decimal.NewFromInt(1000),
		Activa:             true,
	}
	for i, nombre := range []string{"Recepcion", "Chancado", "Molienda", "Flotacion", "Secado", "Ensacado"} {
		p.Etapas = append(p.Etapas, model.EtapaPlanta{ID: uuid.New(), PlantaID: id, Nombre: nombre, Orden: i + 1})
	}
	return p
}

func loteFixture(socioID uuid.UUID, peso string, minerales ...string) model.Lote {
	return model.Lote{
		ID:            uuid.New(),
		Codigo:        "L-" + uuid.NewString()[:8],
		SocioID:       socioID,
		MinaID:        uuid.New(),
		PesoDeclarado: decimal.RequireFromString(peso),
		Minerales:     minerales,
		Estado:        model.LoteAprobado,
		Destino:       model.DestinoProcesamiento,
	}
}

func loteIDs(lotes ...model.Lote) []string {
	out := make([]string, 0, len(lotes))
	for _, l := range lotes {
		out = append(out, l.ID.String())
	}
	return out
}
