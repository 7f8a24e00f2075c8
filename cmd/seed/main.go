// seed inserts development sample data for local testing.
// Idempotent: existing users, tenants and memberships are left untouched.
package main

import (
	"context"
	"database/sql"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"backoffice/authcore/internal/config"
	"backoffice/authcore/internal/db"
	identityrepo "backoffice/authcore/internal/identity/repository"
	identitysvc "backoffice/authcore/internal/identity/service"
	"backoffice/authcore/internal/logging"
	membershipdomain "backoffice/authcore/internal/membership/domain"
	membershiprepo "backoffice/authcore/internal/membership/repository"
	"backoffice/authcore/internal/security"
	tenantdomain "backoffice/authcore/internal/tenant/domain"
	tenantrepo "backoffice/authcore/internal/tenant/repository"
	userdomain "backoffice/authcore/internal/user/domain"
	userrepo "backoffice/authcore/internal/user/repository"
)

const devPassword = "Dev-Password-2024"

type seedUser struct {
	email      string
	name       string
	superadmin bool
	role       membershipdomain.Role
}

var (
	devTenants = []tenantdomain.Tenant{
		{ID: "acme", Name: "Acme Corp", Plan: tenantdomain.PlanPro},
		{ID: "globex", Name: "Globex", Plan: tenantdomain.PlanFree, MFARequired: true},
	}
	devUsers = []seedUser{
		{email: "owner@example.com", name: "Dev Owner", role: membershipdomain.RoleOwner},
		{email: "agent@example.com", name: "Dev Agent", role: membershipdomain.RoleRestrictedWrite},
		{email: "viewer@example.com", name: "Dev Viewer", role: membershipdomain.RoleReadOnly},
		{email: "root@example.com", name: "Dev Superadmin", superadmin: true},
	}
)

func main() {
	log := logging.New(os.Stderr, "info", true)
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db")
	}
	defer conn.Close()

	if err := seed(ctx, conn, cfg.BcryptCost, log); err != nil {
		log.Fatal().Err(err).Msg("seed")
	}
	log.Info().Str("password", devPassword).Msg("seed complete")
}

func seed(ctx context.Context, conn *sql.DB, cost int, log zerolog.Logger) error {
	users := userrepo.NewPostgresRepository(conn)
	tenants := tenantrepo.NewPostgresRepository(conn)
	memberships := membershiprepo.NewPostgresRepository(conn)
	// Register only touches the user and identity stores.
	auth := identitysvc.NewAuthService(nil, users, identityrepo.NewPostgresRepository(conn),
		security.NewHasher(cost), nil, nil, log)

	for i := range devTenants {
		t := devTenants[i]
		existing, err := tenants.GetByID(ctx, t.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			log.Info().Str("tenant_id", t.ID).Msg("tenant exists")
			continue
		}
		now := time.Now().UTC()
		t.CreatedAt, t.UpdatedAt = now, now
		if err := tenants.Create(ctx, &t); err != nil {
			return err
		}
		log.Info().Str("tenant_id", t.ID).Msg("tenant created")
	}

	for _, su := range devUsers {
		u, err := ensureUser(ctx, auth, users, su)
		if err != nil {
			return err
		}
		if su.role == "" {
			continue
		}
		for _, t := range devTenants {
			m, err := memberships.GetMembershipByUserAndTenant(ctx, u.ID, t.ID)
			if err != nil {
				return err
			}
			if m != nil {
				continue
			}
			if err := memberships.CreateMembership(ctx, &membershipdomain.Membership{
				ID:        uuid.New().String(),
				UserID:    u.ID,
				TenantID:  t.ID,
				Role:      su.role,
				CreatedAt: time.Now().UTC(),
			}); err != nil {
				return err
			}
			log.Info().Str("email", su.email).Str("tenant_id", t.ID).Str("role", string(su.role)).Msg("membership created")
		}
	}
	return nil
}

func ensureUser(ctx context.Context, auth *identitysvc.AuthService, users *userrepo.PostgresRepository, su seedUser) (*userdomain.User, error) {
	u, err := users.GetByEmail(ctx, su.email)
	if err != nil || u != nil {
		return u, err
	}
	return auth.Register(ctx, su.email, devPassword, su.name, su.superadmin)
}
