package database

import "studiodesk/internal/models"

// PersistentModels lists the tables gorm manages, referenced tables before
// the ones pointing at them.
func PersistentModels() []any {
	return []any{
		&models.User{},
		&models.Category{},
		&models.CreatorModel{},
		&models.Post{},
		&models.Comment{},
		&models.Vote{},
		&models.SheetLink{},
		&models.BillingAccount{},
	}
}
