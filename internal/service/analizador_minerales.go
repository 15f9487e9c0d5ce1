package service

import (
	"concentra/internal/apierror"
	"concentra/internal/model"

	"github.com/shopspring/decimal"
)

// ConcentradoPlanificado is one concentrate the batch will be split into.
type ConcentradoPlanificado struct {
	MineralPrincipal     model.Mineral
	MineralesSecundarios []model.Mineral
	// Porcentaje is the weight share of the batch, 0-100.
	Porcentaje       decimal.Decimal
	RequiereRevision bool
	NotaRevision     string
}

const notaSoloPlata = "Lote solo con Ag: concentrado de plata sin mineral pesado, requiere revision"

// PlanificarConcentrados decides how many concentrates a batch produces from
// the union of its lots' mineral symbols. Unknown symbols are ignored.
//
//   - Sn and Zn: two concentrates at 50% each, never cross-attributed
//   - one heavy mineral: one concentrate at 100%
//   - Ag only: one Ag concentrate at 100%, flagged for review
//
// Ag rides along as the trace mineral whenever a heavy concentrate exists.
func PlanificarConcentrados(minerales []string) ([]ConcentradoPlanificado, error) {
	presentes := make(map[model.Mineral]bool, len(minerales))
	for _, s := range minerales {
		if m, ok := model.ParseMineral(s); ok {
			presentes[m] = true
		}
	}

	var traza []model.Mineral
	if presentes[model.MineralAg] {
		traza = []model.Mineral{model.MineralAg}
	}

	var pesados []model.Mineral
	for _, m := range []model.Mineral{model.MineralSn, model.MineralZn} {
		if presentes[m] {
			pesados = append(pesados, m)
		}
	}

	switch len(pesados) {
	case 2:
		mitad := decimal.NewFromInt(50)
		return []ConcentradoPlanificado{
			{MineralPrincipal: pesados[0], MineralesSecundarios: traza, Porcentaje: mitad},
			{MineralPrincipal: pesados[1], MineralesSecundarios: copiar(traza), Porcentaje: mitad},
		}, nil
	case 1:
		return []ConcentradoPlanificado{
			{MineralPrincipal: pesados[0], MineralesSecundarios: traza, Porcentaje: decimal.NewFromInt(100)},
		}, nil
	}

	if presentes[model.MineralAg] {
		return []ConcentradoPlanificado{{
			MineralPrincipal: model.MineralAg,
			Porcentaje:       decimal.NewFromInt(100),
			RequiereRevision: true,
			NotaRevision:     notaSoloPlata,
		}}, nil
	}
	return nil, apierror.ErrNoValidMinerals
}

func copiar(ms []model.Mineral) []model.Mineral {
	if ms == nil {
		return nil
	}
	return append([]model.Mineral(nil), ms...)
}
