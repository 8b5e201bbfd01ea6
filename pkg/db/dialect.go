package db

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"storekit-keyplane/pkg/config"
)

// Dialect picks the gorm driver from DATABASE.TYPE. Postgres is the
// production default; sqlite serves local development and seeds.
func Dialect(cfg *config.Config) gorm.Dialector {
	dbc := cfg.Database
	switch dbc.Type {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			dbc.User, dbc.Password, dbc.Host, dbc.Port, dbc.DBNAME)
		return mysql.Open(dsn)
	case "sqlite":
		return sqlite.Open(dbc.DBNAME)
	default:
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
			dbc.Host, dbc.User, dbc.Password, dbc.DBNAME, dbc.Port, dbc.SSLMode, dbc.Timezone)
		return postgres.Open(dsn)
	}
}
