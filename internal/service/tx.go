package service

import (
	"context"
	"errors"

	"concentra/internal/apierror"
	"concentra/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// runTx executes fn inside a GORM transaction when db is available,
// or calls fn(nil) directly when db is nil (unit test mode).
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}

// Actor identifies who asked for a mutation and from where.
type Actor struct {
	ID     uuid.UUID
	Origen model.OrigenSolicitud
}

// notFound converts a repository miss into the typed NotFound error.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apierror.NotFound(format, args...)
	}
	return err
}

func contiene[S comparable](xs []S, x S) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func ptr[T any](v T) *T { return &v }
