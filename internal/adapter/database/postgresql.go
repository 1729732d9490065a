package database

import (
	"context"
	"fmt"

	"github.com/semmidev/backdrop/internal/config"
)

type PostgreSQLDatabase struct {
	config *config.DatabaseConfig
	run    runner
}

func NewPostgreSQL(cfg *config.DatabaseConfig) *PostgreSQLDatabase {
	return &PostgreSQLDatabase{config: cfg, run: execRunner}
}

func (p *PostgreSQLDatabase) Dump(ctx context.Context, outputPath string) error {
	args := append(p.connArgs(),
		"--format=custom",
		"--compress=9",
		fmt.Sprintf("--file=%s", outputPath),
		p.config.Database,
	)
	return runTool(ctx, p.run, p.env(), "pg_dump", args...)
}

func (p *PostgreSQLDatabase) Ping(ctx context.Context) error {
	args := append(p.connArgs(), "--dbname="+p.config.Database, "-c", "SELECT 1")
	if err := runTool(ctx, p.run, p.env(), "psql", args...); err != nil {
		return fmt.Errorf("postgresql ping: %w", err)
	}
	return nil
}

func (p *PostgreSQLDatabase) connArgs() []string {
	port := p.config.Port
	if port == 0 {
		port = 5432
	}
	return []string{
		fmt.Sprintf("--host=%s", p.config.Host),
		fmt.Sprintf("--port=%d", port),
		fmt.Sprintf("--username=%s", p.config.Username),
		"--no-password",
	}
}

func (p *PostgreSQLDatabase) env() []string {
	env := []string{fmt.Sprintf("PGPASSWORD=%s", p.config.Password)}
	if p.config.SSLMode != "" {
		env = append(env, fmt.Sprintf("PGSSLMODE=%s", p.config.SSLMode))
	}
	return env
}

func (p *PostgreSQLDatabase) GetName() string   { return p.config.Name }
func (p *PostgreSQLDatabase) GetType() string   { return "postgresql" }
func (p *PostgreSQLDatabase) Extension() string { return ".dump" }
func (p *PostgreSQLDatabase) Compressed() bool  { return true }
