package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"concentra/internal/apierror"
	"concentra/internal/model"
	"concentra/internal/repository"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// transicion describes one requested status change. When nuevo equals the
// current status the call only appends a history record.
type transicion[S ~string] struct {
	esperados   []S
	nuevo       S
	descripcion string
	observacion *string
	detalle     any
}

func registroHistorial(anterior, nuevo, descripcion string, observacion *string, detalle any, actor Actor, at time.Time) model.RegistroHistorial {
	var raw datatypes.JSON
	if detalle != nil {
		if b, err := json.Marshal(detalle); err == nil {
			raw = b
		}
	}
	return model.RegistroHistorial{
		EstadoAnterior: anterior,
		EstadoNuevo:    nuevo,
		Descripcion:    descripcion,
		Observacion:    observacion,
		ActorID:        actor.ID,
		Origen:         actor.Origen,
		Detalle:        raw,
		CreatedAt:      at,
	}
}

// concentradoFSM applies concentrate transitions inside a caller's transaction.
// It is shared by the lifecycle, kanban and settlement services so every path
// that moves a concentrate goes through the same assert/persist/history steps.
type concentradoFSM struct {
	repo repository.ConcentradoRepository
}

// aplicar asserts the current status, persists the new one with a conditional
// update and appends the history record. The returned event is meant to be
// emitted after the transaction commits.
func (f concentradoFSM) aplicar(ctx context.Context, tx *gorm.DB, c *model.Concentrado, t transicion[model.EstadoConcentrado], actor Actor) (model.EventoEstado, error) {
	if !contiene(t.esperados, c.Estado) {
		return model.EventoEstado{}, apierror.InvalidTransition("concentrado", c.Estado, t.esperados...)
	}
	anterior := c.Estado
	now := time.Now()

	if t.nuevo != anterior {
		c.Estado = t.nuevo
		c.UpdatedAt = now
		n, err := f.repo.UpdateEstadoTx(ctx, tx, c, t.esperados)
		if err != nil {
			return model.EventoEstado{}, fmt.Errorf("actualizando estado de concentrado %s: %w", c.Codigo, err)
		}
		if n == 0 {
			c.Estado = anterior
			return model.EventoEstado{}, apierror.InvalidTransition("concentrado", anterior, t.esperados...)
		}
	}

	h := &model.ConcentradoHistorial{
		ConcentradoID:     c.ID,
		RegistroHistorial: registroHistorial(string(anterior), string(t.nuevo), t.descripcion, t.observacion, t.detalle, actor, now),
	}
	if err := f.repo.AppendHistorialTx(ctx, tx, h); err != nil {
		return model.EventoEstado{}, fmt.Errorf("registrando historial de %s: %w", c.Codigo, err)
	}

	return model.EventoEstado{
		Entidad:        "concentrado",
		EntidadID:      c.ID,
		Codigo:         c.Codigo,
		EstadoAnterior: string(anterior),
		EstadoNuevo:    string(t.nuevo),
		Descripcion:    t.descripcion,
		SocioID:        c.SocioID,
		PlantaID:       c.PlantaID,
		ActorID:        actor.ID,
		OcurridoAt:     now,
	}, nil
}

// liquidacionFSM is the settlement counterpart of concentradoFSM. The update
// writes every mutable column, so figure changes ride along with the status.
type liquidacionFSM struct {
	repo repository.LiquidacionRepository
}

func (f liquidacionFSM) aplicar(ctx context.Context, tx *gorm.DB, l *model.Liquidacion, t transicion[model.EstadoLiquidacion], actor Actor) (model.EventoEstado, error) {
	if !contiene(t.esperados, l.Estado) {
		return model.EventoEstado{}, apierror.InvalidTransition("liquidacion", l.Estado, t.esperados...)
	}
	anterior := l.Estado
	now := time.Now()

	l.Estado = t.nuevo
	l.UpdatedAt = now
	n, err := f.repo.UpdateTx(ctx, tx, l, t.esperados)
	if err != nil {
		return model.EventoEstado{}, fmt.Errorf("actualizando liquidacion %s: %w", l.Codigo, err)
	}
	if n == 0 {
		l.Estado = anterior
		return model.EventoEstado{}, apierror.InvalidTransition("liquidacion", anterior, t.esperados...)
	}

	h := &model.LiquidacionHistorial{
		LiquidacionID:     l.ID,
		RegistroHistorial: registroHistorial(string(anterior), string(t.nuevo), t.descripcion, t.observacion, t.detalle, actor, now),
	}
	if err := f.repo.AppendHistorialTx(ctx, tx, h); err != nil {
		return model.EventoEstado{}, fmt.Errorf("registrando historial de %s: %w", l.Codigo, err)
	}

	ev := model.EventoEstado{
		Entidad:        "liquidacion",
		EntidadID:      l.ID,
		Codigo:         l.Codigo,
		EstadoAnterior: string(anterior),
		EstadoNuevo:    string(t.nuevo),
		Descripcion:    t.descripcion,
		SocioID:        l.SocioID,
		ActorID:        actor.ID,
		OcurridoAt:     now,
	}
	if l.PlantaID != nil {
		ev.PlantaID = *l.PlantaID
	}
	return ev, nil
}
