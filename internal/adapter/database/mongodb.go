package database

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/semmidev/backdrop/internal/config"
)

type MongoDBDatabase struct {
	config *config.DatabaseConfig
	run    runner
}

func NewMongoDB(cfg *config.DatabaseConfig) *MongoDBDatabase {
	return &MongoDBDatabase{config: cfg, run: execRunner}
}

func (m *MongoDBDatabase) Dump(ctx context.Context, outputPath string) error {
	return runTool(ctx, m.run, nil, "mongodump",
		fmt.Sprintf("--uri=%s", m.uri()),
		fmt.Sprintf("--archive=%s", outputPath),
		"--gzip",
	)
}

func (m *MongoDBDatabase) Ping(ctx context.Context) error {
	err := runTool(ctx, m.run, nil, "mongosh", m.uri(), "--quiet", "--eval", "db.runCommand({ ping: 1 })")
	if err != nil {
		return fmt.Errorf("mongodb ping: %w", err)
	}
	return nil
}

func (m *MongoDBDatabase) uri() string {
	port := m.config.Port
	if port == 0 {
		port = 27017
	}
	u := url.URL{
		Scheme: "mongodb",
		Host:   m.config.Host + ":" + strconv.Itoa(port),
		Path:   "/" + m.config.Database,
	}
	if m.config.Username != "" {
		u.User = url.UserPassword(m.config.Username, m.config.Password)
	}
	if m.config.AuthDatabase != "" {
		u.RawQuery = url.Values{"authSource": {m.config.AuthDatabase}}.Encode()
	}
	return u.String()
}

func (m *MongoDBDatabase) GetName() string   { return m.config.Name }
func (m *MongoDBDatabase) GetType() string   { return "mongodb" }
func (m *MongoDBDatabase) Extension() string { return ".archive.gz" }
func (m *MongoDBDatabase) Compressed() bool  { return true }
