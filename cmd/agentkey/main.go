// agentkey manages agent API keys: create issues a key and stores only its hash,
// revoke disables a key by id, hash prints the stored form of a raw key.
//
// The database and salt come from the same environment the gateway reads
// (DB_*, AGENT_KEY_SALT).
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"storefront-gateway/internal/config"
	"storefront-gateway/internal/migrations"
	"storefront-gateway/internal/rbac"
	"storefront-gateway/pkg/utils"

	"github.com/caarlos0/env/v10"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/pflag"
)

const usage = `usage: agentkey <command> [flags]

commands:
  create --role agent:read|agent:write|agent:admin --label NAME
  revoke --id KEY_ID
  hash   --key RAW_KEY
`

// openRepo connects to the key store. Tests replace it.
type openRepo func(ctx context.Context) (rbac.KeyRepository, func(), error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, postgresRepo); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer, open openRepo) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return errors.New("command required")
	}

	var agentCfg config.AgentConfig
	if err := env.Parse(&agentCfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	hasher, err := rbac.NewHasher(agentCfg.KeySalt)
	if err != nil {
		return err
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "create":
		return create(ctx, rest, out, hasher, open)
	case "revoke":
		return revoke(ctx, rest, out, open)
	case "hash":
		return hash(rest, out, hasher)
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func create(ctx context.Context, args []string, out io.Writer, hasher rbac.Hasher, open openRepo) error {
	var roleName, label string
	fs := pflag.NewFlagSet("create", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&roleName, "role", rbac.RoleNameRead, "role granted to the key")
	fs.StringVar(&label, "label", "", "human-readable owner of the key")
	if err := fs.Parse(args); err != nil {
		return err
	}

	role, err := rbac.ParseRole(roleName)
	if err != nil {
		return err
	}
	if label == "" {
		return errors.New("--label is required")
	}

	raw, err := rbac.GenerateKey()
	if err != nil {
		return err
	}

	repo, closeFn, err := open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	k, err := repo.Create(ctx, label, role, hasher.Hash(raw))
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "id:    %s\nlabel: %s\nrole:  %s\nkey:   %s\n", k.ID, k.Label, k.Role, raw)
	fmt.Fprintln(out, "the key is shown once; store it now")
	return nil
}

func revoke(ctx context.Context, args []string, out io.Writer, open openRepo) error {
	var id string
	fs := pflag.NewFlagSet("revoke", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&id, "id", "", "id of the key to revoke")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if id == "" {
		return errors.New("--id is required")
	}

	repo, closeFn, err := open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := repo.Revoke(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(out, "revoked %s\n", id)
	return nil
}

func hash(args []string, out io.Writer, hasher rbac.Hasher) error {
	var key string
	fs := pflag.NewFlagSet("hash", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&key, "key", "", "raw agent key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if key == "" {
		return errors.New("--key is required")
	}
	fmt.Fprintln(out, hasher.Hash(key))
	return nil
}

func postgresRepo(ctx context.Context) (rbac.KeyRepository, func(), error) {
	var cfg config.Config
	if err := env.Parse(&cfg.DB); err != nil {
		return nil, nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "prefer"
	}

	db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{MaxOpenConns: 1})
	if err != nil {
		return nil, nil, err
	}
	if cfg.DB.AutoMigrate {
		if err := migrations.Run(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	return rbac.NewPostgresKeyRepository(db), func() { _ = db.Close() }, nil
}
