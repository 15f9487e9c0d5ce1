package infra

// pdf.go renders the A4 settlement statement handed to the socio:
// header with code and type, value breakdown (gross, services, deductions),
// net amounts in USD and BOB, and the payment block once paid.

import (
	"fmt"
	"os"
	"path/filepath"

	"concentra/internal/model"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
)

var tituloTipo = map[model.TipoLiquidacion]string{
	model.LiquidacionServicio:         "Liquidacion de Servicio de Procesamiento",
	model.LiquidacionVentaConcentrado: "Liquidacion de Venta de Concentrado",
	model.LiquidacionVentaLote:        "Liquidacion de Venta de Lote",
}

// GenerarLiquidacionPDF writes storagePath/<codigo>.pdf and returns its path.
func GenerarLiquidacionPDF(l *model.Liquidacion, storagePath string) (string, error) {
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return "", fmt.Errorf("pdf: create storage dir: %w", err)
	}
	filePath := filepath.Join(storagePath, l.Codigo+".pdf")

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 30
	col1 := contentW * 0.65
	col2 := contentW * 0.35

	// ── Header ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(contentW, 8, tituloTipo[l.Tipo], "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(contentW, 5, fmt.Sprintf("Codigo %s  |  Estado %s", l.Codigo, l.Estado), "", 1, "C", false, 0, "")
	pdf.CellFormat(contentW, 5, l.CreatedAt.Format("02/01/2006 15:04"), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	linea := func(label string, v decimal.Decimal, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 9)
		pdf.CellFormat(col1, 6, label, "", 0, "L", false, 0, "")
		pdf.CellFormat(col2, 6, v.StringFixed(2), "", 1, "R", false, 0, "")
	}
	separador := func() {
		pdf.Ln(1)
		pdf.Line(15, pdf.GetY(), pageW-15, pdf.GetY())
		pdf.Ln(2)
	}

	// ── Body ─────────────────────────────────────────────────────────────────
	if l.Tipo == model.LiquidacionServicio {
		linea("Peso total (kg)", l.PesoTotalKg, false)
		linea("Costo por tonelada (USD)", l.CostoUnitario, false)
		linea("Costo de procesamiento (USD)", l.ValorBruto, false)
		for _, s := range l.Servicios {
			linea("  "+s.Concepto, s.MontoUSD, false)
		}
		linea("Servicios adicionales (USD)", l.TotalServicios, false)
	} else {
		linea("Valor bruto mineral principal (USD)", l.ValorBrutoPrincipal, false)
		linea("Valor bruto trazas (USD)", l.ValorBrutoTraza, false)
		linea("Valor bruto (USD)", l.ValorBruto, true)
		if l.CotizacionReferencia != nil && l.UnidadCotizacion != nil {
			linea("Cotizacion de referencia (USD/"+*l.UnidadCotizacion+")", *l.CotizacionReferencia, false)
		}
		separador()
		for _, d := range l.Deducciones {
			linea(fmt.Sprintf("  %s (%s%% s/ %s)", d.Concepto, d.Porcentaje.StringFixed(2), d.Base), d.MontoUSD.Neg(), false)
		}
		linea("Total deducciones (USD)", l.TotalDeducciones, false)
		if l.DiferenciaReportes != nil {
			linea("Diferencia entre reportes (%)", *l.DiferenciaReportes, false)
		}
	}

	separador()
	linea("Tipo de cambio (BOB/USD)", l.TipoCambio, false)
	linea("TOTAL NETO (USD)", l.ValorNetoUSD, true)
	linea("TOTAL NETO (BOB)", l.ValorNetoBOB, true)

	// ── Payment ──────────────────────────────────────────────────────────────
	if l.PagadoAt != nil && l.MetodoPago != nil {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "", 8)
		pdf.CellFormat(contentW, 5, fmt.Sprintf("Pagado el %s por %s", l.PagadoAt.Format("02/01/2006"), *l.MetodoPago), "", 1, "L", false, 0, "")
		if l.ComprobantePago != nil {
			pdf.CellFormat(contentW, 5, "Comprobante: "+*l.ComprobantePago, "", 1, "L", false, 0, "")
		}
	}
	if l.RequiereRevision {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(contentW, 5, "Liquidacion marcada para revision manual.", "", 1, "L", false, 0, "")
	}

	if err := pdf.OutputFileAndClose(filePath); err != nil {
		return "", fmt.Errorf("pdf: write file: %w", err)
	}
	return filePath, nil
}
