package database

import (
	"cmp"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"studiodesk/internal/middleware"

	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migration is one numbered schema change, read from a pair of files named
// NNNNNN_name.up.sql and NNNNNN_name.down.sql.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// ID is the file stem, e.g. 000002_creator_sheets.
func (m Migration) ID() string {
	return fmt.Sprintf("%06d_%s", m.Version, m.Name)
}

// AppliedMigration is a row of the schema_migrations bookkeeping table.
type AppliedMigration struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255;not null"`
	AppliedAt time.Time `gorm:"autoCreateTime"`
}

func (AppliedMigration) TableName() string { return "schema_migrations" }

// LoadMigrations reads every migration pair under dir in fsys, ordered by
// version. A missing down file or a repeated version is an error.
func LoadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	ups, err := fs.Glob(fsys, path.Join(dir, "*.up.sql"))
	if err != nil {
		return nil, err
	}

	byVersion := make(map[int]Migration, len(ups))
	for _, file := range ups {
		stem := strings.TrimSuffix(path.Base(file), ".up.sql")
		num, name, ok := strings.Cut(stem, "_")
		if !ok || name == "" {
			return nil, fmt.Errorf("migration %s: expected NNNNNN_name.up.sql", file)
		}
		version, err := strconv.Atoi(num)
		if err != nil || version <= 0 {
			return nil, fmt.Errorf("migration %s: bad version %q", file, num)
		}
		if prev, dup := byVersion[version]; dup {
			return nil, fmt.Errorf("migration version %d used by both %s and %s", version, prev.Name, name)
		}

		up, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, err
		}
		down, err := fs.ReadFile(fsys, path.Join(dir, stem+".down.sql"))
		if err != nil {
			return nil, fmt.Errorf("migration %s has no down script: %w", stem, err)
		}
		byVersion[version] = Migration{Version: version, Name: name, Up: string(up), Down: string(down)}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	return out, nil
}

// Migrator applies and rolls back SQL migrations, recording each one in
// schema_migrations inside the same transaction as its script.
type Migrator struct {
	db         *gorm.DB
	migrations []Migration
	log        *slog.Logger
}

// NewMigrator uses the migrations compiled into the binary.
func NewMigrator(db *gorm.DB) (*Migrator, error) {
	migrations, err := LoadMigrations(embeddedMigrations, "migrations")
	if err != nil {
		return nil, err
	}
	return NewMigratorFor(db, migrations), nil
}

// NewMigratorFor uses an explicit migration list.
func NewMigratorFor(db *gorm.DB, migrations []Migration) *Migrator {
	return &Migrator{db: db, migrations: migrations, log: middleware.Logger.With(slog.String("component", "migrate"))}
}

// Migrations returns the known migrations in version order.
func (m *Migrator) Migrations() []Migration {
	return slices.Clone(m.migrations)
}

// Find returns the migration with the given version.
func (m *Migrator) Find(version int) (Migration, bool) {
	i := slices.IndexFunc(m.migrations, func(mg Migration) bool { return mg.Version == version })
	if i < 0 {
		return Migration{}, false
	}
	return m.migrations[i], true
}

// Applied lists recorded migrations, creating the bookkeeping table on first use.
func (m *Migrator) Applied(ctx context.Context) ([]AppliedMigration, error) {
	db := m.db.WithContext(ctx)
	if err := db.AutoMigrate(&AppliedMigration{}); err != nil {
		return nil, fmt.Errorf("prepare schema_migrations: %w", err)
	}
	var rows []AppliedMigration
	if err := db.Order("version").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	return rows, nil
}

// Pending returns the migrations not yet recorded. Recorded versions this
// binary does not know about mean the database is ahead of the code and
// produce an error.
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[int]bool, len(applied))
	for _, a := range applied {
		done[a.Version] = true
	}
	if err := m.checkKnown(done); err != nil {
		return nil, err
	}

	var pending []Migration
	for _, mg := range m.migrations {
		if !done[mg.Version] {
			pending = append(pending, mg)
		}
	}
	return pending, nil
}

func (m *Migrator) checkKnown(applied map[int]bool) error {
	var unknown []int
	for v := range applied {
		if _, ok := m.Find(v); !ok {
			unknown = append(unknown, v)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	slices.Sort(unknown)
	ids := make([]string, len(unknown))
	for i, v := range unknown {
		ids[i] = fmt.Sprintf("%06d", v)
	}
	return fmt.Errorf("database has migrations this build does not know: %s", strings.Join(ids, ", "))
}

// Up applies every pending migration in order and returns how many ran.
// It stops at the first failure; earlier migrations stay applied.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	pending, err := m.Pending(ctx)
	if err != nil {
		return 0, err
	}
	for i, mg := range pending {
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(mg.Up).Error; err != nil {
				return err
			}
			return tx.Create(&AppliedMigration{Version: mg.Version, Name: mg.Name}).Error
		})
		if err != nil {
			return i, fmt.Errorf("apply %s: %w", mg.ID(), err)
		}
		m.log.Info("migration applied", slog.String("migration", mg.ID()))
	}
	return len(pending), nil
}

// Down reverts one applied migration.
func (m *Migrator) Down(ctx context.Context, version int) error {
	mg, ok := m.Find(version)
	if !ok {
		return fmt.Errorf("unknown migration version %d", version)
	}
	applied, err := m.Applied(ctx)
	if err != nil {
		return err
	}
	if !slices.ContainsFunc(applied, func(a AppliedMigration) bool { return a.Version == version }) {
		return fmt.Errorf("migration %s is not applied", mg.ID())
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(mg.Down).Error; err != nil {
			return err
		}
		return tx.Delete(&AppliedMigration{}, "version = ?", version).Error
	})
	if err != nil {
		return fmt.Errorf("revert %s: %w", mg.ID(), err)
	}
	m.log.Info("migration reverted", slog.String("migration", mg.ID()))
	return nil
}
