package database

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/semmidev/backdrop/internal/config"
	"github.com/semmidev/backdrop/internal/domain"
)

// runner executes an external dump tool. Tests replace it.
type runner func(ctx context.Context, env []string, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	return cmd.CombinedOutput()
}

// New returns the dumper for cfg.Type.
func New(cfg *config.DatabaseConfig) (domain.Database, error) {
	switch cfg.Type {
	case "mysql":
		return NewMySQL(cfg), nil
	case "postgresql":
		return NewPostgreSQL(cfg), nil
	case "mongodb":
		return NewMongoDB(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

func runTool(ctx context.Context, run runner, env []string, name string, args ...string) error {
	output, err := run(ctx, env, name, args...)
	if err != nil {
		return fmt.Errorf("%s failed: %w, output: %s", name, err, string(output))
	}
	return nil
}
