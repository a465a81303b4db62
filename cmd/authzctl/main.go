// Command authzctl seeds and inspects the authorization and workflow core.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/talentdesk/talentdesk/internal/app"
	"github.com/talentdesk/talentdesk/internal/audit"
	"github.com/talentdesk/talentdesk/internal/platform/db"
	"github.com/talentdesk/talentdesk/internal/platform/cache"
	"github.com/talentdesk/talentdesk/internal/rbac"
	"github.com/talentdesk/talentdesk/internal/shared"
	"github.com/talentdesk/talentdesk/internal/workflow"
)

const usage = `usage: authzctl <command> [flags]

commands:
  seed      sync the permission catalog, bootstrap the admin role and apply role templates
  check     explain one permission decision for an actor
  effective list the permissions an actor holds
  graph     print the transition graph of an entity kind
  history   print the audit history of an entity
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	var err error
	switch args[0] {
	case "seed":
		err = runSeed(ctx, args[1:], stdout)
	case "check":
		err = runCheck(ctx, args[1:], stdout)
	case "effective":
		err = runEffective(ctx, args[1:], stdout)
	case "graph":
		err = runGraph(args[1:], stdout)
	case "history":
		err = runHistory(ctx, args[1:], stdout)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "authzctl: unknown command %q\n\n%s", args[0], usage)
		return 2
	}
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "authzctl %s: %v\n", args[0], err)
		return 1
	}
	return 0
}

type deps struct {
	repo     *rbac.Repository
	resolver *rbac.Resolver
	audit    *audit.Service
	closeFn  func()
}

func connect(ctx context.Context) (*deps, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := app.NewLogger(cfg)
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return nil, err
	}
	auditRepo := audit.NewRepository(pool)
	repo := rbac.NewRepository(pool, auditRepo)

	var authzCache rbac.Cache = rbac.NewMemoryCache()
	closeFn := pool.Close
	if cfg.AuthzCache == "redis" {
		client, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			pool.Close()
			return nil, err
		}
		authzCache = rbac.NewRedisCache(client, cfg.AuthzCacheTTL)
		closeFn = func() {
			if err := client.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
			pool.Close()
		}
	}
	return &deps{
		repo:     repo,
		resolver: rbac.NewResolver(repo, authzCache, logger),
		audit:    audit.NewService(auditRepo),
		closeFn:  closeFn,
	}, nil
}

func (d *deps) Close() {
	if d != nil && d.closeFn != nil {
		d.closeFn()
	}
}

func runSeed(ctx context.Context, args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("seed", pflag.ContinueOnError)
	adminID := flags.Int64("admin", 0, "actor id that receives the system admin role")
	rolesPath := flags.String("roles", "", "role template YAML (defaults to the built-in templates)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *adminID <= 0 {
		return fmt.Errorf("--admin is required")
	}
	templates := rbac.DefaultRoleTemplates()
	if *rolesPath != "" {
		data, err := os.ReadFile(*rolesPath)
		if err != nil {
			return err
		}
		if templates, err = rbac.ParseRoleTemplates(data); err != nil {
			return err
		}
	}

	d, err := connect(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	perms, err := d.resolver.EnsureCatalog(ctx, shared.Catalog())
	if err != nil {
		return err
	}
	admin, err := d.repo.BootstrapAdmin(ctx, *adminID, time.Now().UTC())
	if err != nil {
		return err
	}
	if err := d.resolver.Invalidate(ctx); err != nil {
		return err
	}
	roles, err := d.resolver.ApplyTemplates(ctx, *adminID, templates)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	return writeJSON(stdout, map[string]any{
		"permissions": len(perms),
		"admin_role":  admin.ID,
		"roles":       names,
	})
}

func runCheck(ctx context.Context, args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("check", pflag.ContinueOnError)
	actorID := flags.Int64("actor", 0, "actor id")
	raw := flags.String("permission", "", "permission as module.action")
	if err := flags.Parse(args); err != nil {
		return err
	}
	perm, err := shared.ParsePermission(*raw)
	if err != nil {
		return err
	}
	d, err := connect(ctx)
	if err != nil {
		return err
	}
	defer d.Close()
	decision, err := d.resolver.Decide(ctx, *actorID, perm.Module, perm.Action)
	if err != nil {
		return err
	}
	return writeJSON(stdout, map[string]any{
		"actor_id":   *actorID,
		"permission": perm.Key(),
		"decision":   decision,
	})
}

func runEffective(ctx context.Context, args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("effective", pflag.ContinueOnError)
	actorID := flags.Int64("actor", 0, "actor id")
	if err := flags.Parse(args); err != nil {
		return err
	}
	d, err := connect(ctx)
	if err != nil {
		return err
	}
	defer d.Close()
	keys, err := d.resolver.Effective(ctx, *actorID)
	if err != nil {
		return err
	}
	return writeJSON(stdout, map[string]any{"actor_id": *actorID, "permissions": keys})
}

func runGraph(args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("graph", pflag.ContinueOnError)
	kind := flags.String("kind", "", "entity kind; all kinds when empty")
	if err := flags.Parse(args); err != nil {
		return err
	}
	registry := workflow.DefaultRegistry()
	kinds := registry.Kinds()
	if *kind != "" {
		kinds = []workflow.Kind{workflow.Kind(*kind)}
	}
	out := make(map[workflow.Kind]map[workflow.Status][]workflow.Status, len(kinds))
	for _, k := range kinds {
		graph, err := registry.Graph(k)
		if err != nil {
			return err
		}
		out[k] = graph
	}
	return writeJSON(stdout, out)
}

func runHistory(ctx context.Context, args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("history", pflag.ContinueOnError)
	kind := flags.String("kind", "", "entity kind")
	id := flags.Int64("id", 0, "entity id")
	page := flags.Int("page", 1, "page number")
	size := flags.Int("size", 20, "page size")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *kind == "" || *id <= 0 {
		return fmt.Errorf("--kind and --id are required")
	}
	d, err := connect(ctx)
	if err != nil {
		return err
	}
	defer d.Close()
	result, err := d.audit.History(ctx, audit.HistoryFilter{
		Kind:     *kind,
		ID:       strconv.FormatInt(*id, 10),
		Page:     *page,
		PageSize: *size,
	})
	if err != nil {
		return err
	}
	return writeJSON(stdout, result)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
