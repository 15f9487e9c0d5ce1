// cmd/gentoken/main.go prints a development access token signed with JWT_SECRET.
// Uso: go run ./cmd/gentoken [user_id]
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"concentra/internal/config"
	"concentra/internal/middleware"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	userID := uuid.NewString()
	if len(os.Args) > 1 {
		if _, err := uuid.Parse(os.Args[1]); err != nil {
			log.Fatalf("user_id invalido: %v", err)
		}
		userID = os.Args[1]
	}

	claims := &middleware.JWTClaims{
		UserID: userID,
		Nombre: "Operador Demo",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(8 * time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		log.Fatalf("sign: %v", err)
	}
	fmt.Println(token)
}
