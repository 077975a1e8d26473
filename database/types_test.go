/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigKeepsDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
connection:
  type: sqlite
  dbname: ":memory:"
  slow_query_time: 500ms
  enable_query_log: true
  query_log_style: color
migrate:
  enable_migrate_on_startup: true
  foreign_key_file: fk.yaml
`))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.ConnectionConfig.Type)
	assert.Equal(t, ":memory:", cfg.ConnectionConfig.DBName)
	assert.Equal(t, 500*time.Millisecond, cfg.ConnectionConfig.SlowQueryTime)
	assert.True(t, cfg.ConnectionConfig.EnableQueryLog)
	assert.Equal(t, "color", cfg.ConnectionConfig.QueryLogStyle)
	assert.Equal(t, 100, cfg.ConnectionConfig.MaxOpenConns)
	assert.Equal(t, time.Hour, cfg.ConnectionConfig.ConnMaxLifetime)
	assert.True(t, cfg.DataMigrateConfig.EnableMigrateOnStartup)
	assert.Equal(t, "fk.yaml", cfg.DataMigrateConfig.ForeignKeyFile)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.yaml")
	require.NoError(t, os.WriteFile(path, []byte("connection:\n  type: mysql\n  port: 3307\n"), 0o644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.ConnectionConfig.Type)
	assert.Equal(t, 3307, cfg.ConnectionConfig.Port)
}

func TestFactoryOverridesFromEnv(t *testing.T) {
	t.Setenv("DB_TYPE", "sqlite")
	t.Setenv("DB_NAME", ":memory:")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_CONN_MAX_LIFETIME", "90")
	t.Setenv("DB_ENABLE_QUERY_LOG", "true")

	cfg := &ConnectionConfig{Type: "mysql"}
	f := NewDatabaseFactory()
	m, err := f.CreateFromConfig(cfg)
	require.NoError(t, err)
	require.NotNil(t, m)

	assert.Equal(t, "sqlite", cfg.Type)
	assert.Equal(t, ":memory:", cfg.DBName)
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, 90*time.Second, cfg.ConnMaxLifetime)
	assert.True(t, cfg.EnableQueryLog)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
}

func TestFactoryRejectsUnknownType(t *testing.T) {
	_, err := NewDatabaseFactory().CreateFromConfig(&ConnectionConfig{Type: "oracle"})
	assert.ErrorContains(t, err, "unsupported database type")

	_, err = NewDatabaseFactory().CreateFromConfig(nil)
	assert.Error(t, err)
}

func TestFactoryWithoutManager(t *testing.T) {
	f := NewDatabaseFactory()
	_, err := f.Connect(context.Background())
	assert.Error(t, err)
	assert.Nil(t, f.GetDB())
	assert.False(t, f.GetHealthStatus(context.Background()).Healthy)
	assert.NoError(t, f.Close())
}

func TestManagerConnectsSQLiteMemory(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConnectionConfig()
	cfg.Type = "sqlite"
	cfg.DBName = ":memory:"
	cfg.SlowQueryTime = time.Hour

	f := NewDatabaseFactory()
	m, err := f.CreateFromConfig(cfg)
	require.NoError(t, err)
	db, err := f.Connect(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	require.NoError(t, m.Ping(ctx))
	status := m.HealthCheck(ctx)
	assert.True(t, status.Healthy)
	assert.Equal(t, 1, status.MaxOpenConns)
	assert.Equal(t, 1, m.GetStats().MaxOpenConns)
	assert.Same(t, db, m.GetDB())
}
