package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/datacomunidad/assess-backend/internal/config"
	"github.com/datacomunidad/assess-backend/internal/middleware"
)

// Mints a member JWT signed with the shared secret, for local development
// and e2e tests. Production tokens come from the identity service.
func main() {
	var (
		userID = flag.String("user", "", "member id claim (default: random UUID)")
		ttl    = flag.Duration("ttl", 24*time.Hour, "token lifetime")
	)
	flag.Parse()

	cfg := config.Load()

	id := *userID
	if id == "" {
		id = uuid.New().String()
	}

	now := time.Now()
	claims := middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(*ttl)),
		},
		UserID: id,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Member:  %s\n", id)
	fmt.Printf("Expires: %s\n", now.Add(*ttl).Format(time.RFC3339))
	fmt.Printf("Token:   %s\n", token)
}
