// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"testing"

	"studiodesk/internal/database"
	"studiodesk/internal/models"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewSQLiteDB opens an isolated in-memory database with the full schema.
// A single connection keeps every query on the same in-memory instance.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))
	return db
}

// CreateUser inserts a user. An empty username leaves the username unset.
func CreateUser(t *testing.T, db *gorm.DB, email, username string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)

	u := &models.User{Email: email, Password: string(hash), DisplayName: email}
	if username != "" {
		u.Username = &username
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreateCategory inserts an active category.
func CreateCategory(t *testing.T, db *gorm.DB, name string) *models.Category {
	t.Helper()
	c := &models.Category{Name: name, Color: "#2563eb", Active: true}
	require.NoError(t, db.Create(c).Error)
	return c
}

// CreatePost inserts a post by author in category (which may be nil).
func CreatePost(t *testing.T, db *gorm.DB, author *models.User, category *models.Category, title string) *models.Post {
	t.Helper()
	p := &models.Post{Title: title, Body: title + " body", UserID: author.ID}
	if category != nil {
		p.CategoryID = &category.ID
	}
	require.NoError(t, db.Create(p).Error)
	return p
}
