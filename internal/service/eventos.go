package service

import (
	"context"
	"encoding/json"
	"fmt"

	"concentra/internal/infra"
	"concentra/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// NotificacionSink delivers a notification to one recipient.
type NotificacionSink interface {
	Notificar(ctx context.Context, n model.Notificacion) error
}

// BroadcastSink fans a status change out to live subscribers.
type BroadcastSink interface {
	Publicar(ctx context.Context, e model.EventoEstado) error
}

// AuditoriaSink persists the audit trail of a change.
type AuditoriaSink interface {
	Auditar(ctx context.Context, r model.RegistroAuditoria) error
}

// DocumentoSink renders settlement documents.
type DocumentoSink interface {
	GenerarPDFLiquidacion(ctx context.Context, liquidacionID uuid.UUID) error
}

// Emisor runs post-commit side effects. Every sink is optional and every
// failure is logged and counted, never returned: the transition it reports
// has already been committed.
type Emisor struct {
	notificaciones NotificacionSink
	broadcast      BroadcastSink
	auditoria      AuditoriaSink
	documentos     DocumentoSink
}

func NewEmisor(n NotificacionSink, b BroadcastSink, a AuditoriaSink, d DocumentoSink) *Emisor {
	return &Emisor{notificaciones: n, broadcast: b, auditoria: a, documentos: d}
}

// Emitir publishes each committed event. Safe on a nil receiver.
func (e *Emisor) Emitir(ctx context.Context, eventos ...model.EventoEstado) {
	// The request context may be cancelled as soon as the response is written.
	ctx = context.WithoutCancel(ctx)
	for _, ev := range eventos {
		infra.TransicionesTotal.WithLabelValues(ev.Entidad, ev.EstadoNuevo).Inc()
		if e == nil {
			continue
		}
		if e.broadcast != nil {
			if err := e.broadcast.Publicar(ctx, ev); err != nil {
				e.fallo("broadcast", ev, err)
			}
		}
		if e.notificaciones != nil && ev.SocioID != uuid.Nil {
			if err := e.notificaciones.Notificar(ctx, notificacionDe(ev)); err != nil {
				e.fallo("notificacion", ev, err)
			}
		}
		if e.auditoria != nil {
			if err := e.auditoria.Auditar(ctx, auditoriaDe(ev)); err != nil {
				e.fallo("auditoria", ev, err)
			}
		}
	}
}

// GenerarDocumento requests the PDF of a settlement. Safe on a nil receiver.
func (e *Emisor) GenerarDocumento(ctx context.Context, liquidacionID uuid.UUID) {
	if e == nil || e.documentos == nil {
		return
	}
	if err := e.documentos.GenerarPDFLiquidacion(context.WithoutCancel(ctx), liquidacionID); err != nil {
		infra.EmisionFallidaTotal.WithLabelValues("documento").Inc()
		log.Error().Err(err).Str("liquidacion_id", liquidacionID.String()).Msg("emisor: no se pudo encolar el PDF")
	}
}

func (e *Emisor) fallo(sink string, ev model.EventoEstado, err error) {
	infra.EmisionFallidaTotal.WithLabelValues(sink).Inc()
	log.Warn().Err(err).
		Str("sink", sink).
		Str("entidad", ev.Entidad).
		Str("entidad_id", ev.EntidadID.String()).
		Str("estado", ev.EstadoNuevo).
		Msg("emisor: side effect failed after commit")
}

func notificacionDe(ev model.EventoEstado) model.Notificacion {
	titulo := fmt.Sprintf("%s %s: %s", ev.Entidad, ev.Codigo, ev.EstadoNuevo)
	if ev.EstadoAnterior == ev.EstadoNuevo {
		titulo = fmt.Sprintf("%s %s actualizado", ev.Entidad, ev.Codigo)
	}
	return model.Notificacion{
		DestinatarioID: ev.SocioID,
		Categoria:      ev.Entidad,
		Titulo:         titulo,
		Mensaje:        ev.Descripcion,
		Metadata: map[string]string{
			"entidad_id":      ev.EntidadID.String(),
			"estado_anterior": ev.EstadoAnterior,
			"estado_nuevo":    ev.EstadoNuevo,
		},
	}
}

func auditoriaDe(ev model.EventoEstado) model.RegistroAuditoria {
	antes, _ := json.Marshal(map[string]string{"estado": ev.EstadoAnterior})
	despues, _ := json.Marshal(map[string]string{"estado": ev.EstadoNuevo})
	return model.RegistroAuditoria{
		ActorID:     ev.ActorID,
		Accion:      ev.Entidad + ".transicion",
		Entidad:     ev.Entidad,
		EntidadID:   ev.EntidadID,
		Antes:       antes,
		Despues:     despues,
		Descripcion: ev.Descripcion,
		CreatedAt:   ev.OcurridoAt,
	}
}
