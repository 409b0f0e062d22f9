// Command stripesctl administers Stripes modules, tenants, and permissions
// against an Okapi gateway. The command layer is deliberately thin: parse
// flags, build the gateway client, delegate to a service, print JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/folio-tools/stripesctl/internal/app/domain/module"
	"github.com/folio-tools/stripesctl/internal/app/services/auth"
	"github.com/folio-tools/stripesctl/internal/app/services/descriptor"
	"github.com/folio-tools/stripesctl/internal/app/services/discovery"
	"github.com/folio-tools/stripesctl/internal/app/services/modules"
	"github.com/folio-tools/stripesctl/internal/app/services/permissions"
	"github.com/folio-tools/stripesctl/internal/cli"
	"github.com/folio-tools/stripesctl/internal/config"
	"github.com/folio-tools/stripesctl/internal/okapi"
	"github.com/folio-tools/stripesctl/internal/tokenstore"
	"github.com/folio-tools/stripesctl/pkg/logger"
)

const usage = `usage: stripesctl <command> [flags]

commands:
  login        log in to the gateway
  logout       clear stored credentials
  status       show the current session
  mod          module administration (add|remove|update|enable|disable|
               install|list|perms|pull|descriptor)
  perm         permission administration (assign|unassign|list|assign-all)
  inst         discovery instance administration (list|add|remove)
  completion   print or install shell completion (bash|zsh|fish)
`

// cliContext bundles the per-invocation dependencies every subcommand needs.
type cliContext struct {
	cfg    config.Config
	store  *tokenstore.Store
	routes *okapi.Routes
	log    *logger.Logger
}

func main() {
	// Optional; a missing .env is the normal case.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal(err)
	}
	store, err := tokenstore.New(cfg.Namespace)
	if err != nil {
		fatal(err)
	}
	log := logger.New(logger.Config{Name: "stripesctl", Level: cfg.LogLevel})
	client := okapi.NewClient(okapi.ClientConfig{
		BaseURL: cfg.OkapiURL,
		Tenant:  cfg.Tenant,
		Store:   store,
		Log:     log,
	})
	cmd := &cliContext{cfg: cfg, store: store, routes: okapi.NewRoutes(client), log: log}

	ctx := context.Background()
	switch os.Args[1] {
	case "login":
		err = cmd.login(ctx, os.Args[2:])
	case "logout":
		err = auth.New(cmd.routes, cmd.store, cmd.log).Logout()
	case "status":
		err = cmd.status()
	case "mod":
		err = cmd.mod(ctx, os.Args[2:])
	case "perm":
		err = cmd.perm(ctx, os.Args[2:])
	case "inst":
		err = cmd.inst(ctx, os.Args[2:])
	case "completion":
		err = cmd.completion(os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "stripesctl:", err)
	os.Exit(1)
}

// printJSON writes a result to stdout for scripting.
func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func (c *cliContext) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("username", "", "gateway username")
	password := fs.String("password", "", "gateway password")
	fs.Parse(args)
	if *username == "" || *password == "" {
		return okapi.NewCLIError("login requires --username and --password")
	}
	return auth.New(c.routes, c.store, c.log).Login(ctx, *username, *password)
}

func (c *cliContext) status() error {
	svc := auth.New(c.routes, c.store, c.log)
	claims, err := svc.TokenClaims()
	if err != nil {
		return printJSON(map[string]interface{}{
			"okapi":    c.cfg.OkapiURL,
			"tenant":   c.cfg.Tenant,
			"loggedIn": false,
		})
	}
	return printJSON(map[string]interface{}{
		"okapi":    c.cfg.OkapiURL,
		"tenant":   c.cfg.Tenant,
		"loggedIn": true,
		"subject":  claims["sub"],
		"expires":  claims["exp"],
	})
}

func (c *cliContext) mod(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return okapi.NewCLIError("mod requires a subcommand")
	}
	svc := modules.New(c.routes, c.log)
	desc := descriptor.New()

	fs := flag.NewFlagSet("mod "+args[0], flag.ExitOnError)
	dir := fs.String("dir", ".", "module directory")
	id := fs.String("id", "", "module id (defaults to the directory's descriptor id)")
	tenant := fs.String("tenant", c.cfg.Tenant, "tenant id")
	strict := fs.Bool("strict", false, "include interface dependencies in the descriptor")
	simulate := fs.Bool("simulate", false, "dry-run the install")
	deploy := fs.Bool("deploy", false, "deploy backend modules")
	preRelease := fs.Bool("pre-release", false, "allow pre-release versions")
	remote := fs.String("remote", "", "remote registry URL for pull")
	require := fs.String("require", "", "filter by required interface")
	provide := fs.String("provide", "", "filter by provided interface")
	expand := fs.Bool("expand", false, "include sub-permissions")
	fs.Parse(args[1:])

	load := func() (module.Descriptor, error) {
		meta, err := descriptor.LoadPackageMetadata(*dir)
		if err != nil {
			return module.Descriptor{}, err
		}
		return desc.Descriptor(meta, *strict)
	}
	resolveID := func() (string, error) {
		if *id != "" {
			return *id, nil
		}
		d, err := load()
		if err != nil {
			return "", err
		}
		return d.ID, nil
	}

	switch args[0] {
	case "descriptor":
		d, err := load()
		if err != nil {
			return err
		}
		return printJSON(d)
	case "add":
		d, err := load()
		if err != nil {
			return err
		}
		result, err := svc.AddModuleDescriptor(ctx, d)
		if err != nil {
			return err
		}
		return printJSON(result)
	case "remove":
		d, err := load()
		if err != nil {
			return err
		}
		result, err := svc.RemoveModuleDescriptor(ctx, d)
		if err != nil {
			return err
		}
		return printJSON(result)
	case "update":
		d, err := load()
		if err != nil {
			return err
		}
		result, err := svc.UpdateModuleDescriptor(ctx, d)
		if err != nil {
			return err
		}
		return printJSON(result)
	case "enable":
		// with positional ids this is a bulk enable; otherwise the module
		// in --dir is enabled
		if ids := fs.Args(); len(ids) > 0 {
			results, err := enableEach(ctx, svc, ids, *tenant)
			if err != nil {
				return err
			}
			return printJSON(results)
		}
		moduleID, err := resolveID()
		if err != nil {
			return err
		}
		result, err := svc.EnableModuleForTenant(ctx, moduleID, *tenant)
		if err != nil {
			return err
		}
		return printJSON(result)
	case "disable":
		if ids := fs.Args(); len(ids) > 0 {
			results, err := disableEach(ctx, svc, ids, *tenant)
			if err != nil {
				return err
			}
			return printJSON(results)
		}
		moduleID, err := resolveID()
		if err != nil {
			return err
		}
		result, err := svc.DisableModuleForTenant(ctx, moduleID, *tenant)
		if err != nil {
			return err
		}
		return printJSON(result)
	case "install":
		requests := module.RequestsFromIDs(fs.Args())
		results, err := svc.InstallModulesForTenant(ctx, requests, *tenant, modules.InstallOptions{
			Simulate:   *simulate,
			Deploy:     *deploy,
			PreRelease: *preRelease,
		})
		if err != nil {
			return err
		}
		return printJSON(results)
	case "list":
		opts := modules.ListOptions{RequireInterface: *require, ProvideInterface: *provide}
		var ids []string
		var err error
		if *tenant != "" {
			ids, err = svc.ListModulesForTenant(ctx, *tenant, opts)
		} else {
			ids, err = svc.ListModules(ctx, opts)
		}
		if err != nil {
			return err
		}
		return printJSON(ids)
	case "perms":
		ids := fs.Args()
		perms, err := svc.ListModulePermissions(ctx, ids, *expand)
		if err != nil {
			return err
		}
		return printJSON(perms)
	case "pull":
		if *remote == "" {
			return okapi.NewCLIError("mod pull requires --remote")
		}
		ids, err := svc.PullModuleDescriptorsFromRemote(ctx, *remote)
		if err != nil {
			return err
		}
		return printJSON(ids)
	default:
		return okapi.NewCLIError("unknown mod subcommand %q", args[0])
	}
}

// enableEach enables ids one at a time with terminal progress. Order matters:
// the gateway resolves dependencies against what earlier steps enabled.
func enableEach(ctx context.Context, svc *modules.Service, ids []string, tenant string) ([]module.InstallResult, error) {
	bar := cli.NewProgressBar(len(ids), "enable")
	results := make([]module.InstallResult, 0, len(ids))
	for _, id := range ids {
		result, err := svc.EnableModuleForTenant(ctx, id, tenant)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
		bar.Increment()
	}
	bar.Finish()
	return results, nil
}

func disableEach(ctx context.Context, svc *modules.Service, ids []string, tenant string) ([]module.InstallResult, error) {
	bar := cli.NewProgressBar(len(ids), "disable")
	results := make([]module.InstallResult, 0, len(ids))
	for _, id := range ids {
		result, err := svc.DisableModuleForTenant(ctx, id, tenant)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
		bar.Increment()
	}
	bar.Finish()
	return results, nil
}

func (c *cliContext) completion(args []string) error {
	fs := flag.NewFlagSet("completion", flag.ExitOnError)
	install := fs.Bool("install", false, "write the script to the shell's completion directory")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return okapi.NewCLIError("completion requires a shell (bash|zsh|fish)")
	}
	shell := fs.Arg(0)
	if *install {
		path, err := cli.InstallCompletion(shell)
		if err != nil {
			return err
		}
		fmt.Println("completion script installed to", path)
		return nil
	}
	return cli.WriteCompletion(os.Stdout, shell)
}

func (c *cliContext) perm(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return okapi.NewCLIError("perm requires a subcommand")
	}
	svc := permissions.New(c.routes, c.log)

	fs := flag.NewFlagSet("perm "+args[0], flag.ExitOnError)
	username := fs.String("user", "", "username")
	tenant := fs.String("tenant", c.cfg.Tenant, "tenant id")
	fs.Parse(args[1:])
	if *username == "" {
		return okapi.NewCLIError("perm commands require --user")
	}

	switch args[0] {
	case "assign":
		results, err := svc.AssignPermissionsToUser(ctx, fs.Args(), *username)
		if err != nil {
			return err
		}
		return printJSON(results)
	case "unassign":
		results, err := svc.UnassignPermissionsFromUser(ctx, fs.Args(), *username)
		if err != nil {
			return err
		}
		return printJSON(results)
	case "list":
		names, err := svc.ListPermissionsForUser(ctx, *username)
		if err != nil {
			return err
		}
		return printJSON(names)
	case "assign-all":
		assigned, err := svc.AssignAllTenantPermissionsToUser(ctx, *tenant, *username, modules.New(c.routes, c.log))
		if err != nil {
			return err
		}
		return printJSON(assigned)
	default:
		return okapi.NewCLIError("unknown perm subcommand %q", args[0])
	}
}

func (c *cliContext) inst(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return okapi.NewCLIError("inst requires a subcommand")
	}
	svc := discovery.New(c.routes, c.log)

	fs := flag.NewFlagSet("inst "+args[0], flag.ExitOnError)
	dir := fs.String("dir", ".", "backend module directory")
	instURL := fs.String("url", "", "instance URL (omit to use the VM gateway address)")
	fs.Parse(args[1:])

	switch args[0] {
	case "list":
		instances, err := svc.ListInstances(ctx, *dir)
		if err != nil {
			return err
		}
		return printJSON(instances)
	case "add":
		var instance discovery.Instance
		var err error
		if *instURL != "" {
			instance, err = svc.AddInstance(ctx, *dir, *instURL)
		} else {
			instance, err = svc.AddVMInstance(ctx, *dir)
		}
		if err != nil {
			return err
		}
		return printJSON(instance)
	case "remove":
		result, err := svc.RemoveInstances(ctx, *dir)
		if err != nil {
			return err
		}
		return printJSON(result)
	default:
		return okapi.NewCLIError("unknown inst subcommand %q", args[0])
	}
}
