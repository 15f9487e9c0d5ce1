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
	"gorm.io/gorm"
)

// KanbanService moves a concentrate through its plant's ordered stages.
// Cards only move forward; skipped stages are auto-completed.
type KanbanService interface {
	IniciarProcesamiento(ctx context.Context, concentradoID uuid.UUID, actor Actor, nota *string) (*dto.TableroResponse, error)
	AvanzarEtapa(ctx context.Context, concentradoID uuid.UUID, ordenDestino int, actor Actor, nota *string) (*dto.TableroResponse, error)
	FinalizarProcesamiento(ctx context.Context, concentradoID uuid.UUID, actor Actor, nota *string) (*dto.TableroResponse, error)
	ObtenerTablero(ctx context.Context, concentradoID uuid.UUID) (*dto.TableroResponse, error)
}

type kanbanService struct {
	repo   repository.ConcentradoRepository
	fsm    concentradoFSM
	emisor *Emisor
}

func NewKanbanService(repo repository.ConcentradoRepository, emisor *Emisor) KanbanService {
	return &kanbanService{repo: repo, fsm: concentradoFSM{repo: repo}, emisor: emisor}
}

// cambioEtapa is one card write, guarded by the card's status before the change.
type cambioEtapa struct {
	etapa  *model.ConcentradoEtapa
	previo model.EstadoEtapa
}

func (s *kanbanService) cargar(ctx context.Context, id uuid.UUID) (*model.Concentrado, error) {
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "concentrado %s no encontrado", id)
	}
	if len(c.Etapas) == 0 {
		return nil, apierror.Validation("el concentrado %s no tiene etapas de proceso", c.Codigo)
	}
	return c, nil
}

// aplicar persists the card changes in order and then the concentrate transition.
func (s *kanbanService) aplicar(ctx context.Context, c *model.Concentrado, cambios []cambioEtapa, t transicion[model.EstadoConcentrado], actor Actor) error {
	var ev model.EventoEstado
	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		for _, cb := range cambios {
			n, err := s.repo.UpdateEtapaTx(ctx, tx, cb.etapa, cb.previo)
			if err != nil {
				return fmt.Errorf("actualizando etapa %d: %w", cb.etapa.Orden, err)
			}
			if n == 0 {
				return &apierror.Error{
					Kind:   apierror.KindInvalidStateTransition,
					Detail: fmt.Sprintf("la etapa %s fue modificada por otra operacion", cb.etapa.Nombre),
				}
			}
		}
		var err error
		ev, err = s.fsm.aplicar(ctx, tx, c, t, actor)
		return err
	})
	if err != nil {
		return err
	}
	s.emisor.Emitir(ctx, ev)
	return nil
}

func (s *kanbanService) IniciarProcesamiento(ctx context.Context, concentradoID uuid.UUID, actor Actor, nota *string) (*dto.TableroResponse, error) {
	c, err := s.cargar(ctx, concentradoID)
	if err != nil {
		return nil, err
	}
	if c.Estado != model.ConcentradoEnCaminoAPlanta {
		return nil, apierror.InvalidTransition("concentrado", c.Estado, model.ConcentradoEnCaminoAPlanta)
	}
	primera := &c.Etapas[0]
	if primera.Estado != model.EtapaPendiente {
		return nil, apierror.InvalidTransition("etapa "+primera.Nombre, primera.Estado, model.EtapaPendiente)
	}

	now := time.Now()
	primera.Estado = model.EtapaActiva
	primera.InicioAt = &now
	primera.Nota = nota
	primera.UpdatedAt = now

	err = s.aplicar(ctx, c, []cambioEtapa{{primera, model.EtapaPendiente}}, transicion[model.EstadoConcentrado]{
		esperados:   []model.EstadoConcentrado{model.ConcentradoEnCaminoAPlanta},
		nuevo:       model.ConcentradoEnProceso,
		descripcion: "Procesamiento iniciado en etapa " + primera.Nombre,
		observacion: nota,
		detalle:     map[string]any{"etapa": primera.Orden},
	}, actor)
	if err != nil {
		return nil, err
	}
	return etapasToTablero(c, c.Etapas), nil
}

// AvanzarEtapa completes the active card, auto-completes every card between it
// and the target, and activates the target. Targets at or before the active
// card fail with CannotRegress.
func (s *kanbanService) AvanzarEtapa(ctx context.Context, concentradoID uuid.UUID, ordenDestino int, actor Actor, nota *string) (*dto.TableroResponse, error) {
	c, err := s.cargar(ctx, concentradoID)
	if err != nil {
		return nil, err
	}
	if c.Estado != model.ConcentradoEnProceso {
		return nil, apierror.InvalidTransition("concentrado", c.Estado, model.ConcentradoEnProceso)
	}

	activa := -1
	destino := -1
	for i := range c.Etapas {
		if c.Etapas[i].Estado == model.EtapaActiva {
			activa = i
		}
		if c.Etapas[i].Orden == ordenDestino {
			destino = i
		}
	}
	if activa < 0 {
		return nil, apierror.Validation("el concentrado %s no tiene una etapa activa", c.Codigo)
	}
	actual := c.Etapas[activa].Orden
	if ordenDestino <= actual {
		return nil, apierror.CannotRegress("no se puede mover de la etapa %d a la etapa %d", actual, ordenDestino)
	}
	if destino < 0 {
		return nil, apierror.NotFound("etapa %d no existe en el proceso de %s", ordenDestino, c.Codigo)
	}

	now := time.Now()
	objetivo := &c.Etapas[destino]
	var cambios []cambioEtapa
	var saltadas []int

	cur := &c.Etapas[activa]
	cur.Estado = model.EtapaCompletada
	cur.FinAt = &now
	cur.UpdatedAt = now
	cambios = append(cambios, cambioEtapa{cur, model.EtapaActiva})

	for i := range c.Etapas {
		e := &c.Etapas[i]
		if e.Orden <= actual || e.Orden >= ordenDestino {
			continue
		}
		previo := e.Estado
		e.Estado = model.EtapaCompletada
		e.InicioAt = &now
		e.FinAt = &now
		e.AutoCompletada = true
		e.Nota = ptr(fmt.Sprintf("Completada automaticamente al avanzar a %s", objetivo.Nombre))
		e.UpdatedAt = now
		cambios = append(cambios, cambioEtapa{e, previo})
		saltadas = append(saltadas, e.Orden)
	}

	previo := objetivo.Estado
	objetivo.Estado = model.EtapaActiva
	objetivo.InicioAt = &now
	objetivo.Nota = nota
	objetivo.UpdatedAt = now
	cambios = append(cambios, cambioEtapa{objetivo, previo})

	err = s.aplicar(ctx, c, cambios, transicion[model.EstadoConcentrado]{
		esperados:   []model.EstadoConcentrado{model.ConcentradoEnProceso},
		nuevo:       model.ConcentradoEnProceso,
		descripcion: fmt.Sprintf("Etapa avanzada a %s (%d)", objetivo.Nombre, objetivo.Orden),
		observacion: nota,
		detalle:     map[string]any{"desde": actual, "hasta": ordenDestino, "auto_completadas": saltadas},
	}, actor)
	if err != nil {
		return nil, err
	}
	return etapasToTablero(c, c.Etapas), nil
}

func (s *kanbanService) FinalizarProcesamiento(ctx context.Context, concentradoID uuid.UUID, actor Actor, nota *string) (*dto.TableroResponse, error) {
	c, err := s.cargar(ctx, concentradoID)
	if err != nil {
		return nil, err
	}
	if c.Estado != model.ConcentradoEnProceso {
		return nil, apierror.InvalidTransition("concentrado", c.Estado, model.ConcentradoEnProceso)
	}
	ultima := &c.Etapas[len(c.Etapas)-1]
	if ultima.Estado != model.EtapaActiva {
		return nil, apierror.Validation("la ultima etapa (%s) debe estar activa para finalizar", ultima.Nombre)
	}

	now := time.Now()
	ultima.Estado = model.EtapaCompletada
	ultima.FinAt = &now
	if nota != nil {
		ultima.Nota = nota
	}
	ultima.UpdatedAt = now

	err = s.aplicar(ctx, c, []cambioEtapa{{ultima, model.EtapaActiva}}, transicion[model.EstadoConcentrado]{
		esperados:   []model.EstadoConcentrado{model.ConcentradoEnProceso},
		nuevo:       model.ConcentradoEsperandoReporteQuimico,
		descripcion: "Procesamiento finalizado, esperando reporte quimico",
		observacion: nota,
	}, actor)
	if err != nil {
		return nil, err
	}
	return etapasToTablero(c, c.Etapas), nil
}

func (s *kanbanService) ObtenerTablero(ctx context.Context, concentradoID uuid.UUID) (*dto.TableroResponse, error) {
	c, err := s.repo.FindByID(ctx, concentradoID)
	if err != nil {
		return nil, notFound(err, "concentrado %s no encontrado", concentradoID)
	}
	etapas, err := s.repo.ListEtapas(ctx, concentradoID)
	if err != nil {
		return nil, err
	}
	return etapasToTablero(c, etapas), nil
}
