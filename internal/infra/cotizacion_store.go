package infra

import (
	"context"
	"encoding/json"
	"errors"

	"concentra/internal/model"

	"github.com/redis/go-redis/v9"
)

// cotizacionKey holds the last good quotation snapshot.
const cotizacionKey = "cotizaciones:ultimo"

// CotizacionStore mirrors the quotation snapshot in Redis so a restarted
// process can serve stale prices before the provider answers. No TTL is set:
// an old snapshot is still better than the hard-coded defaults.
type CotizacionStore struct {
	rdb *redis.Client
}

func NewCotizacionStore(rdb *redis.Client) *CotizacionStore {
	return &CotizacionStore{rdb: rdb}
}

func (s *CotizacionStore) Guardar(ctx context.Context, snap model.SnapshotCotizaciones) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, cotizacionKey, raw, 0).Err()
}

// Cargar returns nil, nil when nothing was mirrored yet.
func (s *CotizacionStore) Cargar(ctx context.Context) (*model.SnapshotCotizaciones, error) {
	raw, err := s.rdb.Get(ctx, cotizacionKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap model.SnapshotCotizaciones
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
