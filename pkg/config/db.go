package config

import (
	"fmt"

	"github.com/glebarez/sqlite"
	godrivermysql "github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// OpenDatabase connects to the configured database and returns the GORM
// handle shared by the file store, run history and job queue.
func OpenDatabase(cfg DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Type {
	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "statpipe.db"
		}
		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("config: failed to open sqlite database: %w", err)
		}
		return db, nil

	case "postgres":
		db, err := gorm.Open(gormpostgres.Open(cfg.DSN), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("config: failed to open postgres database: %w", err)
		}
		return db, nil

	case "mysql":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = cfg.MySQLDSN()
		}
		db, err := gorm.Open(gormmysql.Open(dsn), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("config: failed to open mysql database: %w", err)
		}
		return db, nil

	default:
		return nil, fmt.Errorf("config: unknown database type %q", cfg.Type)
	}
}

// MySQLDSN assembles a MySQL DSN from the discrete connection fields using
// the driver's own formatter so escaping rules stay correct.
func (c DatabaseConfig) MySQLDSN() string {
	port := c.Port
	if port == 0 {
		port = 3306
	}

	mc := godrivermysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", c.Host, port)
	mc.DBName = c.Name
	mc.ParseTime = true
	return mc.FormatDSN()
}
