// Package store is the GORM-backed persistence layer for the portal.
package store

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to the configured database. sqlite is the dev default.
func Open(dbType, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch dbType {
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE %q", dbType)
	}
	return gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
}

// AutoMigrate creates or updates the portal schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&gormUser{},
		&gormProfile{},
		&gormRole{},
		&gormUserRole{},
		&gormVerificationCode{},
		&gormRegistrationData{},
		&gormDepartment{},
		&gormForm{},
		&gormOAuthClient{},
		&gormOAuthCode{},
		&gormOAuthToken{},
	)
}
