package service_test

import (
	"testing"

	"concentra/internal/apierror"
	"concentra/internal/model"
	"concentra/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanificar_SnZnAg_DosConcentradosMitadCadaUno(t *testing.T) {
	planes, err := service.PlanificarConcentrados([]string{"Zn", "Ag", "Sn"})
	require.NoError(t, err)
	require.Len(t, planes, 2)

	assert.Equal(t, model.MineralSn, planes[0].MineralPrincipal)
	assert.Equal(t, model.MineralZn, planes[1].MineralPrincipal)
	for _, p := range planes {
		assert.Equal(t, "50", p.Porcentaje.String())
		assert.Equal(t, []model.Mineral{model.MineralAg}, p.MineralesSecundarios)
		assert.False(t, p.RequiereRevision)
	}
}

func TestPlanificar_SnZn_NuncaCruzaMinerales(t *testing.T) {
	planes, err := service.PlanificarConcentrados([]string{"Sn", "Zn"})
	require.NoError(t, err)
	require.Len(t, planes, 2)
	for _, p := range planes {
		assert.NotContains(t, p.MineralesSecundarios, model.MineralSn)
		assert.NotContains(t, p.MineralesSecundarios, model.MineralZn)
		assert.Empty(t, p.MineralesSecundarios)
	}
}

func TestPlanificar_UnPesado_UnConcentradoCompleto(t *testing.T) {
	planes, err := service.PlanificarConcentrados([]string{"Zn", "Pb", "Ag"})
	require.NoError(t, err)
	require.Len(t, planes, 1)
	assert.Equal(t, model.MineralZn, planes[0].MineralPrincipal)
	assert.Equal(t, "100", planes[0].Porcentaje.String())
	assert.Equal(t, []model.Mineral{model.MineralAg}, planes[0].MineralesSecundarios)
}

func TestPlanificar_SoloPlata_RequiereRevision(t *testing.T) {
	planes, err := service.PlanificarConcentrados([]string{"Ag", "Ag"})
	require.NoError(t, err)
	require.Len(t, planes, 1)
	assert.Equal(t, model.MineralAg, planes[0].MineralPrincipal)
	assert.True(t, planes[0].RequiereRevision)
	assert.NotEmpty(t, planes[0].NotaRevision)
}

func TestPlanificar_SinMineralesValidos(t *testing.T) {
	for _, in := range [][]string{nil, {}, {"Cu", "Au"}} {
		_, err := service.PlanificarConcentrados(in)
		assert.ErrorIs(t, err, apierror.ErrNoValidMinerals)
		assert.ErrorIs(t, err, apierror.ErrValidationFailed)
	}
}
