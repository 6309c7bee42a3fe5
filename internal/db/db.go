package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	puresqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	cgosqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Handle struct {
	DB     *gorm.DB
	Driver string
	DSN    string
}

// Open otwiera bazę ledgera. "sqlite" to sterownik bez cgo (glebarez),
// "sqlite3" – klasyczny mattn/go-sqlite3 (wymaga cgo).
func Open(driver, dsn string) (*Handle, error) {
	var dial gorm.Dialector
	switch strings.ToLower(driver) {
	case "", "sqlite":
		ensureDir(dsn)
		dial = puresqlite.Open(dsn)
	case "sqlite3":
		ensureDir(dsn)
		dial = cgosqlite.Open(dsn)
	case "mysql":
		dial = mysql.Open(dsn)
	case "postgres", "postgresql":
		dial = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", driver)
	}

	gdb, err := gorm.Open(dial, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // logger.Info jeśli chcesz verbose SQL
	})
	if err != nil {
		return nil, fmt.Errorf("db open %s: %w", driver, err)
	}
	return &Handle{DB: gdb, Driver: driver, DSN: dsn}, nil
}

func (h *Handle) Close() error {
	sqlDB, err := h.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func ensureDir(dsn string) {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if path == "" || strings.HasPrefix(path, ":memory:") {
		return
	}
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
}
