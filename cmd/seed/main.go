// seed creates the built-in roles and the administrator account. Idempotent: existing
// roles are kept and the admin user is only created when admin@example.com is absent,
// though the Admin role is always (re)assigned.
package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"kriptoproyek/backend/internal/config"
	"kriptoproyek/backend/internal/db"
	"kriptoproyek/backend/internal/security"
	userdomain "kriptoproyek/backend/internal/user/domain"
	userrepo "kriptoproyek/backend/internal/user/repository"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "Admin123!"
	adminFullName = "Administrator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, role := range []string{userdomain.RoleAdmin, userdomain.RoleUser} {
		if _, err := conn.ExecContext(ctx, `INSERT INTO roles (name) VALUES ($1) ON CONFLICT DO NOTHING`, role); err != nil {
			log.Fatalf("create role %s: %v", role, err)
		}
	}

	users := userrepo.NewPostgresRepository(conn)
	admin, err := users.GetByEmail(ctx, adminEmail)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if admin == nil {
		hash, err := security.NewHasher(cfg.BcryptCost).Hash(adminPassword)
		if err != nil {
			log.Fatalf("hash password: %v", err)
		}
		now := time.Now().UTC()
		admin = &userdomain.User{
			ID:           uuid.NewString(),
			Email:        adminEmail,
			FullName:     adminFullName,
			PasswordHash: hash,
			Roles:        []string{userdomain.RoleAdmin},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := users.Create(ctx, admin); err != nil {
			log.Fatalf("create admin user: %v", err)
		}
		log.Printf("created admin user %s", adminEmail)
	} else {
		log.Printf("admin user %s already exists", adminEmail)
	}
	if err := users.AddRole(ctx, admin.ID, userdomain.RoleAdmin); err != nil {
		log.Fatalf("assign admin role: %v", err)
	}
	log.Println("seed complete")
}
