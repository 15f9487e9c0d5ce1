package service

import (
	"concentra/internal/apierror"
	"concentra/internal/model"

	"github.com/shopspring/decimal"
)

// Every monetary step is rounded to 4 places, half away from zero, which is
// round-half-up for the non-negative amounts settlements carry.
const escala = 4

var (
	cien     = decimal.NewFromInt(100)
	kgPorTon = decimal.NewFromInt(1000)

	toleranciaConcentrado = decimal.NewFromInt(5)
	toleranciaLote        = decimal.NewFromInt(3)
)

func redondear(d decimal.Decimal) decimal.Decimal { return d.Round(escala) }

type ServicioAdicional struct {
	Concepto string
	MontoUSD decimal.Decimal
}

type ResultadoServicio struct {
	PesoKg             decimal.Decimal
	PesoToneladas      decimal.Decimal
	CostoProcesamiento decimal.Decimal
	TotalServicios     decimal.Decimal
	ValorNetoUSD       decimal.Decimal
	ValorNetoBOB       decimal.Decimal
}

type Deduccion struct {
	Concepto   string
	Porcentaje decimal.Decimal
	Base       model.BaseDeduccion
}

type LineaDeduccion struct {
	Deduccion
	MontoUSD decimal.Decimal
	MontoBOB decimal.Decimal
	Orden    int
}

type ResultadoVenta struct {
	ValorBruto          decimal.Decimal
	Lineas              []LineaDeduccion
	TotalDeducciones    decimal.Decimal
	TotalDeduccionesBOB decimal.Decimal
	ValorNetoUSD        decimal.Decimal
	ValorNetoBOB        decimal.Decimal
}

type ResultadoReconciliacion struct {
	Promedio model.ReporteQuimico
	// Diferencia is nil when either side lacks the defining metric.
	Diferencia       *decimal.Decimal
	Tolerancia       decimal.Decimal
	RequiereRevision bool
}

// CalculadoraLiquidacion turns weights, prices and deduction schedules into
// settlement figures. It holds no state and does no I/O.
type CalculadoraLiquidacion struct{}

// CalcularServicio computes the toll fee: total lot weight in tonnes times the
// plant cost per tonne, plus agreed extra services, converted at tipoCambio.
func (CalculadoraLiquidacion) CalcularServicio(pesosKg []decimal.Decimal, costoPorTonelada decimal.Decimal, servicios []ServicioAdicional, tipoCambio decimal.Decimal) (*ResultadoServicio, error) {
	if !tipoCambio.IsPositive() {
		return nil, apierror.Validation("tipo de cambio debe ser mayor a cero")
	}
	if costoPorTonelada.IsNegative() {
		return nil, apierror.Validation("costo de procesamiento no puede ser negativo")
	}

	pesoKg := decimal.Zero
	for _, p := range pesosKg {
		if !p.IsPositive() {
			return nil, apierror.Validation("peso de lote debe ser mayor a cero")
		}
		pesoKg = pesoKg.Add(p)
	}
	toneladas := pesoKg.Div(kgPorTon)
	costo := redondear(toneladas.Mul(costoPorTonelada))

	totalServicios := decimal.Zero
	for _, s := range servicios {
		if s.MontoUSD.IsNegative() {
			return nil, apierror.Validation("servicio %q con monto negativo", s.Concepto)
		}
		totalServicios = totalServicios.Add(redondear(s.MontoUSD))
	}

	neto := redondear(costo.Add(totalServicios))
	return &ResultadoServicio{
		PesoKg:             redondear(pesoKg),
		PesoToneladas:      redondear(toneladas),
		CostoProcesamiento: costo,
		TotalServicios:     totalServicios,
		ValorNetoUSD:       neto,
		ValorNetoBOB:       redondear(neto.Mul(tipoCambio)),
	}, nil
}

// CalcularVenta applies the deduction schedule, in order, to already priced
// gross figures.
func (CalculadoraLiquidacion) CalcularVenta(brutoPrincipal, brutoTraza decimal.Decimal, deducciones []Deduccion, tipoCambio decimal.Decimal) (*ResultadoVenta, error) {
	if !tipoCambio.IsPositive() {
		return nil, apierror.Validation("tipo de cambio debe ser mayor a cero")
	}
	if brutoPrincipal.IsNegative() || brutoTraza.IsNegative() {
		return nil, apierror.Validation("valor bruto no puede ser negativo")
	}

	brutoPrincipal = redondear(brutoPrincipal)
	brutoTraza = redondear(brutoTraza)
	bruto := redondear(brutoPrincipal.Add(brutoTraza))

	res := &ResultadoVenta{ValorBruto: bruto}
	totalUSD := decimal.Zero
	totalBOB := decimal.Zero
	for i, d := range deducciones {
		if d.Porcentaje.IsNegative() || d.Porcentaje.GreaterThan(cien) {
			return nil, apierror.Validation("porcentaje de %q fuera de rango (0-100)", d.Concepto)
		}
		var base decimal.Decimal
		switch d.Base {
		case model.BasePrincipal:
			base = brutoPrincipal
		case model.BaseTraza:
			base = brutoTraza
		case model.BaseTotal:
			base = bruto
		default:
			return nil, apierror.Validation("base de deduccion desconocida: %q", d.Base)
		}
		usd := redondear(base.Mul(d.Porcentaje).Div(cien))
		bob := redondear(usd.Mul(tipoCambio))
		totalUSD = totalUSD.Add(usd)
		totalBOB = totalBOB.Add(bob)
		res.Lineas = append(res.Lineas, LineaDeduccion{Deduccion: d, MontoUSD: usd, MontoBOB: bob, Orden: i + 1})
	}

	res.TotalDeducciones = redondear(totalUSD)
	res.TotalDeduccionesBOB = redondear(totalBOB)
	res.ValorNetoUSD = redondear(bruto.Sub(res.TotalDeducciones))
	res.ValorNetoBOB = redondear(res.ValorNetoUSD.Mul(tipoCambio))
	return res, nil
}

// ReconciliarReportes averages the two sides' assays metric by metric and
// flags the sale for review when the defining metric differs by more than the
// tolerance: principal grade for concentrate sales, Pb grade for raw lots.
func (CalculadoraLiquidacion) ReconciliarReportes(a, b *model.ReporteQuimico, tipo model.TipoLiquidacion) (*ResultadoReconciliacion, error) {
	if a == nil || b == nil {
		return nil, apierror.Validation("se requieren ambos reportes para reconciliar")
	}

	prom := model.ReporteQuimico{
		Origen:       model.ReportePromedio,
		LeyPrincipal: promedio(a.LeyPrincipal, b.LeyPrincipal),
		LeyAgDM:      promedio(a.LeyAgDM, b.LeyAgDM),
		LeyAgGT:      promedio(a.LeyAgGT, b.LeyAgGT),
		Humedad:      promedio(a.Humedad, b.Humedad),
		LeyPb:        promedio(a.LeyPb, b.LeyPb),
		LeyZn:        promedio(a.LeyZn, b.LeyZn),
	}

	var x, y *decimal.Decimal
	res := &ResultadoReconciliacion{Promedio: prom}
	switch tipo {
	case model.LiquidacionVentaConcentrado:
		x, y = a.LeyPrincipal, b.LeyPrincipal
		res.Tolerancia = toleranciaConcentrado
	case model.LiquidacionVentaLote:
		x, y = a.LeyPb, b.LeyPb
		res.Tolerancia = toleranciaLote
	default:
		return nil, apierror.Validation("reconciliacion no aplica a liquidaciones de tipo %s", tipo)
	}

	if x == nil || y == nil {
		res.RequiereRevision = true
		return res, nil
	}
	dif := redondear(x.Sub(*y).Abs())
	res.Diferencia = &dif
	res.RequiereRevision = dif.GreaterThan(res.Tolerancia)
	return res, nil
}

func promedio(a, b *decimal.Decimal) *decimal.Decimal {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		return ptr(*b)
	case b == nil:
		return ptr(*a)
	}
	return ptr(redondear(a.Add(*b).Div(decimal.NewFromInt(2))))
}
