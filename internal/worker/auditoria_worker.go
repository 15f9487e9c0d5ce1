package worker

import (
	"context"
	"encoding/json"

	"concentra/internal/model"
	"concentra/internal/repository"

	"github.com/rs/zerolog/log"
)

// AuditoriaWorker persists audit records from QueueAuditoria.
type AuditoriaWorker struct {
	repo repository.AuditoriaRepository
}

func NewAuditoriaWorker(repo repository.AuditoriaRepository) *AuditoriaWorker {
	return &AuditoriaWorker{repo: repo}
}

func (w *AuditoriaWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var r model.RegistroAuditoria
	if err := json.Unmarshal(raw, &r); err != nil {
		log.Error().Err(err).Msg("auditoria_worker: invalid payload")
		return nil
	}
	return w.repo.Create(ctx, &r)
}
