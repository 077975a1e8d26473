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
	"fmt"
	"sync"

	"github.com/uptrace/bun"
)

var (
	globalFactory *BaseDatabaseFactory
	globalConfig  *Config
	globalMu      sync.RWMutex
	globalSession *Session
)

// GetDB returns the global Bun database instance.
func GetDB() *bun.DB {
	if s := GetSession(); s != nil {
		return s.DB()
	}
	return nil
}

// GetSession returns the process-wide session, or nil before InitDB/UseDB.
func GetSession() *Session {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalSession
}

// UseDB installs an already opened Bun database as the global connection.
// It is how callers that manage their own *bun.DB plug into the repositories.
func UseDB(db *bun.DB) *Session {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalSession = NewSession(db)
	return globalSession
}

// GetDatabaseManager returns the global database manager.
func GetDatabaseManager() AbstractDatabaseManager {
	if globalFactory != nil {
		return globalFactory.GetManager()
	}
	return nil
}

// GetDatabaseFactory returns the global database factory.
func GetDatabaseFactory() *BaseDatabaseFactory {
	return globalFactory
}

// InitDB initializes the global database using the provided configuration.
func InitDB(cfg *Config) (*bun.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	globalConfig = cfg
	return InitDatabaseWithOptions(cfg, cfg.DataMigrateConfig.EnableMigrateOnStartup)
}

// InitDatabaseWithOptions initializes the database and optionally runs migrations.
func InitDatabaseWithOptions(cfg *Config, runMigrations bool) (*bun.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	globalConfig = cfg
	globalFactory = NewDatabaseFactory()
	manager, err := globalFactory.CreateFromConfig(&cfg.ConnectionConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database manager: %w", err)
	}

	db, err := globalFactory.Connect(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	db.RegisterModel(RegisteredModelInstances()...)
	UseDB(db)

	if path := cfg.DataMigrateConfig.ForeignKeyFile; path != "" {
		loaded := NewForeignKeyManagerFromFile(globalFactory.logger, path)
		GetForeignKeyManager().Add(loaded.ListAllConstraints()...)
	}

	if runMigrations {
		if err := manager.RunMigrations(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
	}
	globalFactory.logger.Info("Database initialization completed!")
	return db, nil
}

// Flush commits pending writes of the global session.
func Flush(ctx context.Context) error {
	s := GetSession()
	if s == nil {
		return ErrNotInitialized
	}
	return s.Flush(ctx)
}

// CloseDB rolls back uncommitted writes and closes the global connection.
func CloseDB() error {
	globalMu.Lock()
	s := globalSession
	globalSession = nil
	globalMu.Unlock()
	if s != nil {
		if err := s.Rollback(); err != nil {
			GetLogger().Warn("Discarding pending session writes failed", "error", err)
		}
	}
	if globalFactory != nil {
		return globalFactory.Close()
	}
	if s != nil && s.DB() != nil {
		return s.DB().Close()
	}
	return nil
}

// GetHealthStatus returns the current database health status.
func GetHealthStatus(ctx context.Context) *HealthStatus {
	if globalFactory != nil {
		return globalFactory.GetHealthStatus(ctx)
	}
	return &HealthStatus{
		Healthy:   false,
		Connected: false,
		LastError: "Database not initialized",
	}
}

// GetDatabaseStats returns global database statistics.
func GetDatabaseStats() *DBStats {
	if globalFactory != nil {
		return globalFactory.GetStats()
	}
	return &DBStats{}
}

// RunMigrations executes database migrations on the global connection.
func RunMigrations(ctx context.Context) error {
	if globalFactory == nil {
		return ErrNotInitialized
	}
	manager := globalFactory.GetManager()
	if manager == nil {
		return fmt.Errorf("database manager not initialized")
	}
	return manager.RunMigrations(ctx)
}
