package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnidadCotizacion is the unit a quotation price refers to.
type UnidadCotizacion string

const (
	UnidadOnzaTroy UnidadCotizacion = "oz"
	UnidadTonelada UnidadCotizacion = "t"
)

// Cotizacion is the international USD price of one mineral. Not persisted in
// the database; it lives in the quotation cache.
type Cotizacion struct {
	Mineral    Mineral          `json:"mineral"`
	Precio     decimal.Decimal  `json:"precio"`
	Unidad     UnidadCotizacion `json:"unidad"`
	Fuente     string           `json:"fuente"`
	FechaCorte time.Time        `json:"fecha_corte"`
}

// OrigenSnapshot tells the caller how fresh a snapshot is.
type OrigenSnapshot string

const (
	SnapshotVivo           OrigenSnapshot = "vivo"
	SnapshotCache          OrigenSnapshot = "cache"
	SnapshotObsoleto       OrigenSnapshot = "obsoleto"
	SnapshotPredeterminado OrigenSnapshot = "predeterminado"
)

// SnapshotCotizaciones is one full refresh of the tracked minerals.
type SnapshotCotizaciones struct {
	Cotizaciones []Cotizacion   `json:"cotizaciones"`
	ObtenidoAt   time.Time      `json:"obtenido_at"`
	Origen       OrigenSnapshot `json:"origen"`
}

// Buscar returns the quotation for m, if the snapshot has one.
func (s SnapshotCotizaciones) Buscar(m Mineral) (Cotizacion, bool) {
	for _, c := range s.Cotizaciones {
		if c.Mineral == m {
			return c, true
		}
	}
	return Cotizacion{}, false
}

// TasasMetales is a raw provider quote: units of each metal one USD buys.
type TasasMetales struct {
	Tasas      map[Mineral]decimal.Decimal
	Fuente     string
	FechaCorte time.Time
}
