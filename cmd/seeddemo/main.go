// cmd/seeddemo/main.go crea un socio y lotes aprobados de demo para la planta PLT1.
// Uso: go run ./cmd/seeddemo
package main

import (
	"context"
	"fmt"
	"log"

	"concentra/internal/config"
	"concentra/internal/infra"
	"concentra/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const plantaDemo = "6f1c2a5e-3d1b-4f7a-9a61-0c8e5b2d4a10"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect error: %v", err)
	}

	email := "socio.demo@concentra.bo"
	socio := model.Socio{ID: uuid.MustParse("0b7d3c55-6f0e-4a3b-9a0c-2c1d7f5e8a01"), Nombre: "Cooperativa Demo", Email: &email}
	planta := uuid.MustParse(plantaDemo)

	lotes := []model.Lote{
		lote("LOTE-DEMO-001", socio.ID, &planta, 800, model.DestinoProcesamiento, "Sn", "Ag"),
		lote("LOTE-DEMO-002", socio.ID, &planta, 700, model.DestinoProcesamiento, "Zn"),
		lote("LOTE-DEMO-003", socio.ID, &planta, 650, model.DestinoProcesamiento, "Sn", "Zn"),
		lote("LOTE-DEMO-004", socio.ID, nil, 2000, model.DestinoComercializacion, "Zn", "Pb", "Ag"),
	}

	err = db.WithContext(context.Background()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&socio).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "codigo"}}, DoNothing: true}).Create(&lotes).Error
	})
	if err != nil {
		log.Fatalf("insert error: %v", err)
	}

	fmt.Printf("Socio %s (%s)\n", socio.Nombre, socio.ID)
	for _, l := range lotes {
		fmt.Printf("  %s  %s kg  %v  %s\n", l.Codigo, l.PesoDeclarado, []string(l.Minerales), l.ID)
	}
}

func lote(codigo string, socio uuid.UUID, planta *uuid.UUID, kg int64, destino model.DestinoLote, minerales ...string) model.Lote {
	return model.Lote{
		ID:            uuid.NewSHA1(uuid.NameSpaceOID, []byte(codigo)),
		Codigo:        codigo,
		SocioID:       socio,
		MinaID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte("mina-demo")),
		PlantaID:      planta,
		PesoDeclarado: decimal.NewFromInt(kg),
		Minerales:     minerales,
		Estado:        model.LoteAprobado,
		Destino:       destino,
	}
}
