package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"classifieds/internal/config"
	"classifieds/internal/middleware"

	"gorm.io/gorm"
)

// DB_SCHEMA_MODE values. The embedded SQL migrations own constraints and
// indexes; GORM only creates tables the migrations do not know about yet.
const (
	SchemaModeHybrid = "hybrid"
	SchemaModeSQL    = "sql"
	SchemaModeAuto   = "auto"
)

// SchemaStatus describes what ApplySchema would do and what is already applied.
type SchemaStatus struct {
	Mode               string
	Environment        string
	WillRunSQL         bool
	WillRunAutoMigrate bool
	AppliedVersions    []int
	PendingMigrations  []Migration
	MissingTables      []string
}

// schemaPlan is the resolved policy for one configuration.
type schemaPlan struct {
	mode string
	// runSQL applies pending embedded migrations.
	runSQL bool
	// autoMigrateAll lets GORM reconcile every persistent model.
	autoMigrateAll bool
	// createMissing lets GORM create model tables the migrations left out.
	createMissing bool
}

func normalizedSchemaMode(cfg *config.Config) string {
	mode := strings.ToLower(strings.TrimSpace(cfg.DBSchemaMode))
	if mode == "" {
		return SchemaModeHybrid
	}
	return mode
}

func planSchema(cfg *config.Config) (schemaPlan, error) {
	plan := schemaPlan{mode: normalizedSchemaMode(cfg)}
	switch plan.mode {
	case SchemaModeSQL:
		plan.runSQL = true
	case SchemaModeHybrid:
		plan.runSQL = true
		plan.createMissing = !cfg.IsProduction()
	case SchemaModeAuto:
		if cfg.IsProduction() && !cfg.DBAutoMigrateAllowDestructive {
			return plan, fmt.Errorf("refusing DB_SCHEMA_MODE=auto in %q without DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE=true", cfg.Env)
		}
		plan.autoMigrateAll = true
	default:
		return plan, fmt.Errorf("unsupported DB_SCHEMA_MODE %q", plan.mode)
	}
	return plan, nil
}

// tableName resolves the table GORM maps model to.
func tableName(db *gorm.DB, model any) (string, error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(model); err != nil {
		return "", err
	}
	return stmt.Schema.Table, nil
}

// missingModels returns the persistent models whose tables do not exist.
func missingModels(db *gorm.DB) ([]any, []string, error) {
	var (
		models []any
		names  []string
	)
	for _, model := range PersistentModels() {
		name, err := tableName(db, model)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve table for %T: %w", model, err)
		}
		if !db.Migrator().HasTable(name) {
			models = append(models, model)
			names = append(names, name)
		}
	}
	return models, names, nil
}

// reconcileModels makes sure every persistent model has a table once the SQL
// migrations ran. Outside auto mode existing tables are never altered.
func reconcileModels(ctx context.Context, db *gorm.DB, plan schemaPlan) error {
	db = db.WithContext(ctx)
	if plan.autoMigrateAll {
		middleware.Logger.Info("Running GORM AutoMigrate", slog.String("mode", plan.mode))
		if err := db.AutoMigrate(PersistentModels()...); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
		return nil
	}

	missing, names, err := missingModels(db)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}
	if !plan.createMissing {
		return fmt.Errorf("tables missing after migrations: %s", strings.Join(names, ", "))
	}

	middleware.Logger.Warn("Creating tables without a SQL migration", slog.String("tables", strings.Join(names, ",")))
	if err := db.Migrator().CreateTable(missing...); err != nil {
		return fmt.Errorf("create missing tables: %w", err)
	}
	return nil
}

// ApplySchema brings the database up to date according to DB_SCHEMA_MODE.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	plan, err := planSchema(cfg)
	if err != nil {
		return err
	}
	if plan.autoMigrateAll && cfg.DBAutoMigrateAllowDestructive {
		middleware.Logger.Warn("DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE=true set for DB_SCHEMA_MODE=auto; review schema diffs before production deployment")
	}

	if plan.runSQL {
		if err := RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("run sql migrations: %w", err)
		}
	}
	return reconcileModels(ctx, db, plan)
}

// GetSchemaStatus reports the plan for cfg along with applied and pending state.
func GetSchemaStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	plan, err := planSchema(cfg)
	if err != nil {
		return nil, err
	}

	status := &SchemaStatus{
		Mode:               plan.mode,
		Environment:        cfg.Env,
		WillRunSQL:         plan.runSQL,
		WillRunAutoMigrate: plan.autoMigrateAll || plan.createMissing,
	}

	if _, status.MissingTables, err = missingModels(db.WithContext(ctx)); err != nil {
		return nil, err
	}
	if !plan.runSQL {
		return status, nil
	}

	applied, err := NewMigrationStore(db).GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	status.AppliedVersions = applied

	appliedSet := make(map[int]bool, len(applied))
	for _, version := range applied {
		appliedSet[version] = true
	}
	for _, m := range GetMigrations() {
		if !appliedSet[m.Version] {
			status.PendingMigrations = append(status.PendingMigrations, m)
		}
	}
	return status, nil
}
