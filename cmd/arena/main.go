package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/hurttlocker/arena/internal/backend"
	"github.com/hurttlocker/arena/internal/config"
	"github.com/hurttlocker/arena/internal/judge"
	"github.com/hurttlocker/arena/internal/logging"
	"github.com/hurttlocker/arena/internal/mcp"
	"github.com/hurttlocker/arena/internal/problem"
	"github.com/hurttlocker/arena/internal/session"
)

const version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "problems":
		if err := runProblems(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "config":
		if err := runConfig(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "version", "--version", "-v":
		fmt.Printf("arena %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

type serveFlags struct {
	configPath  string
	problemsDir string
	dbPath      string
	backendKind string
	image       string
}

func parseServeFlags(args []string) (serveFlags, error) {
	var f serveFlags
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "--config", "--problems", "--db", "--backend", "--image":
			if i+1 >= len(args) {
				return f, fmt.Errorf("%s needs a value", arg)
			}
			i++
			v := args[i]
			switch arg {
			case "--config":
				f.configPath = v
			case "--problems":
				f.problemsDir = v
			case "--db":
				f.dbPath = v
			case "--backend":
				f.backendKind = v
			case "--image":
				f.image = v
			}
		default:
			if strings.HasPrefix(arg, "-") {
				return f, fmt.Errorf("unknown flag: %s", arg)
			}
			return f, fmt.Errorf("unexpected argument: %s", arg)
		}
	}
	return f, nil
}

func resolve(f serveFlags) (config.ResolvedConfig, error) {
	return config.ResolveConfig(config.ResolveOptions{
		ConfigPath:     f.configPath,
		CLIProblemsDir: f.problemsDir,
		CLIDBPath:      f.dbPath,
		CLIBackend:     f.backendKind,
		CLIImage:       f.image,
	})
}

func runServe(args []string) error {
	flags, err := parseServeFlags(args)
	if err != nil {
		return err
	}
	cfg, err := resolve(flags)
	if err != nil {
		return err
	}
	if cfg.ProblemsDir.Value == "" {
		return fmt.Errorf("no problems directory configured (set problems_dir, ARENA_PROBLEMS or --problems)")
	}

	maxSessions, err := cfg.MaxSessionsInt()
	if err != nil {
		return err
	}
	numWorkers, err := cfg.NumWorkersInt()
	if err != nil {
		return err
	}
	lite, err := cfg.LiteBool()
	if err != nil {
		return err
	}

	catalog, err := problem.NewCatalog(cfg.DBPath.Value)
	if err != nil {
		return err
	}
	defer catalog.Close()
	if err := catalog.Sync(context.Background(), cfg.ProblemsDir.Value); err != nil {
		return err
	}

	registry := session.NewRegistry(maxSessions)
	defer registry.CloseAll()

	log := logging.Logger().Named("serve")
	log.Info("starting mcp server",
		zap.String("problems_dir", cfg.ProblemsDir.Value),
		zap.String("backend", cfg.Backend.Value),
		zap.Int("max_sessions", maxSessions),
		zap.Int("num_workers", numWorkers),
		zap.Bool("lite", lite))

	srv := mcp.NewServer(mcp.ServerConfig{
		Catalog:    catalog,
		Registry:   registry,
		Version:    version,
		NumWorkers: numWorkers,
		Lite:       lite,
		NewBackend: backendFactory(cfg),
	})
	return server.ServeStdio(srv)
}

func backendFactory(cfg config.ResolvedConfig) func(ctx context.Context) (backend.Backend, error) {
	if cfg.Backend.Value == "local" {
		return func(ctx context.Context) (backend.Backend, error) {
			return backend.NewLocal(), nil
		}
	}
	return func(ctx context.Context) (backend.Backend, error) {
		return backend.NewSandbox(ctx, backend.SandboxConfig{
			Image:       cfg.Image.Value,
			WorkDir:     judge.WorkDir,
			MemoryLimit: session.MaxMemoryLimit,
			Host:        cfg.DockerHost.Value,
		})
	}
}

func runProblems(args []string) error {
	flags, err := parseServeFlags(args)
	if err != nil {
		return err
	}
	cfg, err := resolve(flags)
	if err != nil {
		return err
	}

	catalog, err := problem.NewCatalog(cfg.DBPath.Value)
	if err != nil {
		return err
	}
	defer catalog.Close()

	ctx := context.Background()
	if cfg.ProblemsDir.Value != "" {
		if err := catalog.Sync(ctx, cfg.ProblemsDir.Value); err != nil {
			return err
		}
	}
	ids, err := catalog.ListIDs(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No problems indexed. Point --problems (or ARENA_PROBLEMS) at a bundle directory.")
		return nil
	}
	for _, id := range ids {
		p, err := catalog.Get(ctx, id)
		if err != nil {
			fmt.Printf("%-12s (unloadable: %v)\n", id, err)
			continue
		}
		fmt.Printf("%-12s %-9s %-9s %4.1fs  %3.0fh  public=%d private=%d\n",
			p.ID, p.Type, p.ScoreType, p.TimeLimit, p.ContestLength.Hours(),
			len(p.PublicSeeds), len(p.PrivateSeeds))
	}
	return nil
}

func runConfig(args []string) error {
	flags, err := parseServeFlags(args)
	if err != nil {
		return err
	}
	cfg, err := resolve(flags)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printUsage() {
	fmt.Printf(`arena %s — Contest benchmarking engine over MCP

Usage:
  arena <command> [arguments]

Commands:
  serve               Start the MCP server on stdio
  problems            Sync and list the problem catalog
  config              Print the resolved configuration and its sources
  version             Print version

Flags (serve, problems, config):
  --config <path>     Config file (default: ~/.arena/config.yaml)
  --problems <dir>    Problem bundle directory
  --db <path>         Catalog database (default: ~/.arena/catalog.db)
  --backend <kind>    Execution backend: docker or local
  --image <name>      Judge container image (docker backend)

Environment:
  ARENA_PROBLEMS, ARENA_DB, ARENA_MAX_SESSIONS, ARENA_NUM_WORKERS,
  ARENA_LITE, ARENA_BACKEND, ARENA_IMAGE, ARENA_DOCKER_HOST
`, version)
}
