package worker

// pdf_worker.go
// Renders settlement documents from QueuePDF, stores the path on the
// settlement and, once the settlement is paid, mails the document to the
// socio through the notification queue.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"concentra/internal/infra"
	"concentra/internal/model"
	"concentra/internal/repository"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Notificador enqueues a notification. Implemented by Dispatcher.
type Notificador interface {
	Notificar(ctx context.Context, n model.Notificacion) error
}

// PDFWorker processes jobs from QueuePDF.
type PDFWorker struct {
	liquidaciones  repository.LiquidacionRepository
	notificador    Notificador
	pdfStoragePath string
	render         func(*model.Liquidacion, string) (string, error)
}

func NewPDFWorker(liquidaciones repository.LiquidacionRepository, notificador Notificador, pdfStoragePath string) *PDFWorker {
	return &PDFWorker{
		liquidaciones:  liquidaciones,
		notificador:    notificador,
		pdfStoragePath: pdfStoragePath,
		render:         infra.GenerarLiquidacionPDF,
	}
}

func (w *PDFWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var payload PDFJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Msg("pdf_worker: invalid payload")
		return nil
	}

	l, err := w.liquidaciones.FindByID(ctx, payload.LiquidacionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Error().Str("liquidacion_id", payload.LiquidacionID.String()).Msg("pdf_worker: settlement not found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load liquidacion: %w", err)
	}

	path, err := w.render(l, w.pdfStoragePath)
	if err != nil {
		return err
	}
	if err := w.liquidaciones.UpdatePDFPath(ctx, l.ID, path); err != nil {
		return fmt.Errorf("store pdf path: %w", err)
	}
	log.Info().Str("pdf", path).Str("liquidacion", l.Codigo).Msg("pdf_worker: PDF generated")

	if l.Estado != model.LiquidacionPagada || w.notificador == nil {
		return nil
	}
	n := model.Notificacion{
		DestinatarioID: l.SocioID,
		Categoria:      "liquidacion",
		Titulo:         fmt.Sprintf("Comprobante de liquidacion %s", l.Codigo),
		Mensaje:        fmt.Sprintf("Adjuntamos la liquidacion %s. Total neto: %s BOB.", l.Codigo, l.ValorNetoBOB.StringFixed(2)),
		Metadata: map[string]string{
			"entidad_id":   l.ID.String(),
			"estado_nuevo": string(l.Estado),
			"pdf_path":     path,
		},
	}
	if err := w.notificador.Notificar(ctx, n); err != nil {
		log.Warn().Err(err).Str("liquidacion", l.Codigo).Msg("pdf_worker: failed to enqueue notification")
	}
	return nil
}
