package worker

// notificacion_worker.go
// Delivers socio notifications by email when the socio has an address on
// file. Notifications for socios without one are logged and dropped.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"concentra/internal/model"
	"concentra/internal/repository"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Mailer is the subset of infra.Mailer the worker needs.
type Mailer interface {
	Enviar(to, subject, body, adjunto string) error
}

// NotificacionWorker processes jobs from QueueNotificaciones.
type NotificacionWorker struct {
	socios     repository.SocioRepository
	mailer     Mailer
	habilitado bool
}

// NewNotificacionWorker builds the worker. With habilitado false every
// notification is only logged.
func NewNotificacionWorker(socios repository.SocioRepository, mailer Mailer, habilitado bool) *NotificacionWorker {
	return &NotificacionWorker{socios: socios, mailer: mailer, habilitado: habilitado}
}

func (w *NotificacionWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var n model.Notificacion
	if err := json.Unmarshal(raw, &n); err != nil {
		// Malformed payloads never succeed; do not retry them.
		log.Error().Err(err).Msg("notificacion_worker: invalid payload")
		return nil
	}
	logger := log.With().Str("destinatario", n.DestinatarioID.String()).Str("categoria", n.Categoria).Logger()

	if !w.habilitado {
		logger.Info().Str("titulo", n.Titulo).Msg("notificacion_worker: email disabled, notification logged")
		return nil
	}

	socio, err := w.socios.FindByID(ctx, n.DestinatarioID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Warn().Msg("notificacion_worker: unknown socio, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load socio: %w", err)
	}
	if socio.Email == nil || *socio.Email == "" {
		logger.Debug().Msg("notificacion_worker: socio has no email, skipping")
		return nil
	}

	if err := w.mailer.Enviar(*socio.Email, n.Titulo, cuerpo(socio, n), n.Metadata["pdf_path"]); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	logger.Info().Str("to", *socio.Email).Msg("notificacion_worker: email sent")
	return nil
}

func cuerpo(s *model.Socio, n model.Notificacion) string {
	return fmt.Sprintf("Estimado/a %s,\n\n%s\n\nEstado: %s\n", s.Nombre, n.Mensaje, n.Metadata["estado_nuevo"])
}
