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
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/uptrace/bun"
	"gopkg.in/yaml.v3"
)

var validFKActions = []string{"CASCADE", "RESTRICT", "SET NULL", "NO ACTION"}

// ForeignKeyConstraint describes a foreign key relationship between tables.
type ForeignKeyConstraint struct {
	Table           string `yaml:"table"`
	Column          string `yaml:"column"`
	ReferenceTable  string `yaml:"reference_table"`
	ReferenceColumn string `yaml:"reference_column"`
	OnDelete        string `yaml:"on_delete,omitempty"` // CASCADE, RESTRICT, SET NULL, NO ACTION
	OnUpdate        string `yaml:"on_update,omitempty"`
	ConstraintName  string `yaml:"constraint_name,omitempty"`
}

// ForeignKeyConfig is the YAML document listing foreign key constraints.
type ForeignKeyConfig struct {
	ForeignKeys []ForeignKeyConstraint `yaml:"foreign_keys"`
}

// GenerateConstraintName returns the explicit name or a derived name.
func (fk *ForeignKeyConstraint) GenerateConstraintName() string {
	if fk.ConstraintName != "" {
		return fk.ConstraintName
	}
	return fmt.Sprintf("fk_%s_%s", fk.Table, fk.Column)
}

// GenerateSQL returns the ALTER TABLE statement to add the constraint.
func (fk *ForeignKeyConstraint) GenerateSQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s(%s)",
		fk.Table, fk.GenerateConstraintName(), fk.Column, fk.ReferenceTable, fk.ReferenceColumn)
	if fk.OnDelete != "" {
		fmt.Fprintf(&b, " ON DELETE %s", fk.OnDelete)
	}
	if fk.OnUpdate != "" {
		fmt.Fprintf(&b, " ON UPDATE %s", fk.OnUpdate)
	}
	return b.String()
}

// ForeignKeyManager keeps the known foreign keys. Migrations apply them to
// the schema and table handles use them to derive join conditions.
type ForeignKeyManager struct {
	mu          sync.RWMutex
	constraints []ForeignKeyConstraint
	logger      Logger
}

// NewForeignKeyManager creates a manager holding the given constraints.
func NewForeignKeyManager(logger Logger, constraints ...ForeignKeyConstraint) *ForeignKeyManager {
	if logger == nil {
		logger = GetLogger()
	}
	return &ForeignKeyManager{constraints: constraints, logger: logger}
}

// LoadForeignKeys reads a YAML foreign key file.
func LoadForeignKeys(path string) ([]ForeignKeyConstraint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read foreign key file: %w", err)
	}
	var cfg ForeignKeyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse foreign key file: %w", err)
	}
	return cfg.ForeignKeys, nil
}

// NewForeignKeyManagerFromFile loads constraints from path. A missing or
// broken file yields an empty manager and a debug log.
func NewForeignKeyManagerFromFile(logger Logger, path string) *ForeignKeyManager {
	fkm := NewForeignKeyManager(logger)
	if path == "" {
		return fkm
	}
	constraints, err := LoadForeignKeys(path)
	if err != nil {
		fkm.logger.Debug("Foreign key file not loaded", "path", path, "error", err)
		return fkm
	}
	fkm.constraints = constraints
	return fkm
}

// Add registers more constraints.
func (fkm *ForeignKeyManager) Add(constraints ...ForeignKeyConstraint) {
	fkm.mu.Lock()
	defer fkm.mu.Unlock()
	fkm.constraints = append(fkm.constraints, constraints...)
}

// ExportToFile writes the constraints as YAML to path, creating directories.
func (fkm *ForeignKeyManager) ExportToFile(path string) error {
	data, err := yaml.Marshal(&ForeignKeyConfig{ForeignKeys: fkm.ListAllConstraints()})
	if err != nil {
		return fmt.Errorf("failed to serialize foreign keys: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write foreign key file: %w", err)
	}
	return nil
}

// AddAllForeignKeys applies every constraint. Failures are logged and skipped
// since most engines reject re-adding an existing constraint.
func (fkm *ForeignKeyManager) AddAllForeignKeys(ctx context.Context, db bun.IDB) error {
	for _, constraint := range fkm.ListAllConstraints() {
		if _, err := db.ExecContext(ctx, constraint.GenerateSQL()); err != nil {
			fkm.logger.Debug("Failed to add foreign key constraint", "constraint", constraint.GenerateConstraintName(), "error", err)
			continue
		}
		fkm.logger.Debug("Added foreign key constraint", "constraint", constraint.GenerateConstraintName())
	}
	return nil
}

// RemoveForeignKey drops a named foreign key from a table.
func (fkm *ForeignKeyManager) RemoveForeignKey(ctx context.Context, db bun.IDB, tableName, constraintName string) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", tableName, constraintName))
	return err
}

// GetConstraintsByTable returns the constraints declared on a table.
func (fkm *ForeignKeyManager) GetConstraintsByTable(tableName string) []ForeignKeyConstraint {
	var result []ForeignKeyConstraint
	for _, c := range fkm.ListAllConstraints() {
		if strings.EqualFold(c.Table, tableName) {
			result = append(result, c)
		}
	}
	return result
}

// ListAllConstraints returns a copy of the configured constraints.
func (fkm *ForeignKeyManager) ListAllConstraints() []ForeignKeyConstraint {
	fkm.mu.RLock()
	defer fkm.mu.RUnlock()
	return append([]ForeignKeyConstraint(nil), fkm.constraints...)
}

// JoinColumns returns the columns linking joined to base when a foreign key
// between the two tables is known, in either direction.
func (fkm *ForeignKeyManager) JoinColumns(base, joined string) (joinedColumn, baseColumn string, ok bool) {
	for _, c := range fkm.ListAllConstraints() {
		switch {
		case strings.EqualFold(c.Table, base) && strings.EqualFold(c.ReferenceTable, joined):
			return c.ReferenceColumn, c.Column, true
		case strings.EqualFold(c.Table, joined) && strings.EqualFold(c.ReferenceTable, base):
			return c.Column, c.ReferenceColumn, true
		}
	}
	return "", "", false
}

// ValidateConstraints checks the configured constraints for common issues.
func (fkm *ForeignKeyManager) ValidateConstraints() []error {
	var errs []error
	for _, c := range fkm.ListAllConstraints() {
		switch {
		case c.Table == "":
			errs = append(errs, fmt.Errorf("table name cannot be empty"))
		case c.Column == "":
			errs = append(errs, fmt.Errorf("column name cannot be empty: %s", c.Table))
		case c.ReferenceTable == "":
			errs = append(errs, fmt.Errorf("reference table name cannot be empty: %s.%s", c.Table, c.Column))
		case c.ReferenceColumn == "":
			errs = append(errs, fmt.Errorf("reference column name cannot be empty: %s.%s -> %s", c.Table, c.Column, c.ReferenceTable))
		}
		for _, action := range []string{c.OnDelete, c.OnUpdate} {
			if action != "" && !isValidFKAction(action) {
				errs = append(errs, fmt.Errorf("invalid referential action: %s, constraint: %s", action, c.GenerateConstraintName()))
			}
		}
	}
	return errs
}

func isValidFKAction(action string) bool {
	for _, a := range validFKActions {
		if strings.EqualFold(action, a) {
			return true
		}
	}
	return false
}

var (
	globalFKManager   *ForeignKeyManager
	globalFKManagerMu sync.RWMutex
)

// SetForeignKeyManager installs the process-wide foreign key manager.
func SetForeignKeyManager(fkm *ForeignKeyManager) {
	globalFKManagerMu.Lock()
	defer globalFKManagerMu.Unlock()
	globalFKManager = fkm
}

// GetForeignKeyManager returns the process-wide foreign key manager, creating
// an empty one on first use.
func GetForeignKeyManager() *ForeignKeyManager {
	globalFKManagerMu.RLock()
	fkm := globalFKManager
	globalFKManagerMu.RUnlock()
	if fkm != nil {
		return fkm
	}
	globalFKManagerMu.Lock()
	defer globalFKManagerMu.Unlock()
	if globalFKManager == nil {
		globalFKManager = NewForeignKeyManager(nil)
	}
	return globalFKManager
}
