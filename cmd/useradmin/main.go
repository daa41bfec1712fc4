package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"fitapp.dev/internal/auth"
	"fitapp.dev/internal/config"
)

func main() {
	if len(os.Args) < 3 {
		usage()
	}
	cfg := config.Load()
	if cfg.PGDSN == "" {
		fmt.Fprintln(os.Stderr, "FITAPP_PG_DSN is required")
		os.Exit(1)
	}
	db, err := sql.Open("pgx", cfg.PGDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	svc := auth.NewService(auth.NewPGStore(db), auth.NewTokenIssuer(cfg.AccessTokenSecret, cfg.RefreshTokenSecret))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch os.Args[1] {
	case "create":
		err = runCreate(ctx, svc, os.Args[2:])
	case "set-roles":
		err = runSetRoles(ctx, svc, os.Args[2:])
	case "revoke":
		err = svc.RevokeSession(ctx, os.Args[2])
		if err == nil {
			fmt.Printf("revoked session of %s\n", os.Args[2])
		}
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func runCreate(ctx context.Context, svc *auth.Service, args []string) error {
	if len(args) < 2 {
		usage()
	}
	roles := auth.NewRoles(auth.DefaultRole)
	if len(args) > 2 {
		var err error
		if roles, err = parseRoles(args[2]); err != nil {
			return err
		}
	}
	rec, err := svc.CreateUser(ctx, args[0], args[1], roles)
	if err != nil {
		return err
	}
	fmt.Printf("created %s roles=%s\n", rec.Username, strings.Join(rec.Roles.Strings(), ","))
	return nil
}

func runSetRoles(ctx context.Context, svc *auth.Service, args []string) error {
	if len(args) < 2 {
		usage()
	}
	roles, err := parseRoles(args[1])
	if err != nil {
		return err
	}
	rec, err := svc.SetRoles(ctx, args[0], roles)
	if err != nil {
		return err
	}
	fmt.Printf("updated %s roles=%s\n", rec.Username, strings.Join(rec.Roles.Strings(), ","))
	return nil
}

// parseRoles reads a comma-separated list of role names.
func parseRoles(list string) (auth.Roles, error) {
	var roles []auth.Role
	for _, name := range strings.Split(list, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		r, err := auth.ParseRoleName(name)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return auth.NewRoles(roles...), nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage:
  %[1]s create <username> <password> [Role,Role]
  %[1]s set-roles <username> <Role,Role>
  %[1]s revoke <username>
`, os.Args[0])
	os.Exit(1)
}
