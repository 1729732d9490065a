package database

import (
	"context"
	"fmt"

	"github.com/semmidev/backdrop/internal/config"
)

type MySQLDatabase struct {
	config *config.DatabaseConfig
	run    runner
}

func NewMySQL(cfg *config.DatabaseConfig) *MySQLDatabase {
	return &MySQLDatabase{config: cfg, run: execRunner}
}

func (m *MySQLDatabase) Dump(ctx context.Context, outputPath string) error {
	args := append(m.connArgs(),
		"--single-transaction",
		"--quick",
		"--lock-tables=false",
		"--routines",
		"--triggers",
		"--events",
		fmt.Sprintf("--result-file=%s", outputPath),
		m.config.Database,
	)
	return runTool(ctx, m.run, m.env(), "mysqldump", args...)
}

func (m *MySQLDatabase) Ping(ctx context.Context) error {
	args := append(m.connArgs(), "-e", "SELECT 1")
	if err := runTool(ctx, m.run, m.env(), "mysql", args...); err != nil {
		return fmt.Errorf("mysql ping: %w", err)
	}
	return nil
}

func (m *MySQLDatabase) connArgs() []string {
	port := m.config.Port
	if port == 0 {
		port = 3306
	}
	return []string{
		fmt.Sprintf("--host=%s", m.config.Host),
		fmt.Sprintf("--port=%d", port),
		fmt.Sprintf("--user=%s", m.config.Username),
	}
}

// MYSQL_PWD keeps the password out of the process list.
func (m *MySQLDatabase) env() []string {
	return []string{fmt.Sprintf("MYSQL_PWD=%s", m.config.Password)}
}

func (m *MySQLDatabase) GetName() string   { return m.config.Name }
func (m *MySQLDatabase) GetType() string   { return "mysql" }
func (m *MySQLDatabase) Extension() string { return ".sql" }
func (m *MySQLDatabase) Compressed() bool  { return false }
