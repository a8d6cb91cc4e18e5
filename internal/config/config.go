// Package config is reldb's configuration layer: a process-wide HCL
// config file (buffer pool capacity, data directory, fsync mode, log
// level/file) plus a per-database `reldb.hcl` snapshot recording
// the page size and pool capacity a database was created with, per
// SPEC_FULL.md §3's "Database directory layout" expansion.
//
// Grounded on leftmike-maho.v1/cmd/maho.go's hcl.Decode-into-a-struct
// pattern for the process config, and on catalinm00-KVDB's
// internal/platform/config.LoadConfig for the .env-override-via-godotenv
// step, which runs before the HCL file is read so GODOTENV vars can name
// an alternate config file path.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/hashicorp/hcl"
	"github.com/joho/godotenv"

	"reldb/internal/errs"
)

// Config is the process-wide configuration of SPEC_FULL.md §2's ambient
// stack row "Config file (page size, pool capacity, data dir, fsync
// mode)".
type Config struct {
	DataDir        string `hcl:"data_dir"`
	BufferPoolSize int    `hcl:"buffer_pool_size"`
	LogLevel       string `hcl:"log_level"`
	LogFile        string `hcl:"log_file"`
	FsyncOnCommit  bool   `hcl:"fsync_on_commit"`
}

// Default returns the configuration a fresh `reldb` invocation starts
// from before any `.env`/config-file override is applied.
func Default() Config {
	return Config{
		DataDir:        "./data",
		BufferPoolSize: 256,
		LogLevel:       "info",
		LogFile:        "reldb.log",
		FsyncOnCommit:  true,
	}
}

// Load reads .env (if present, via godotenv — RELDB_CONFIG_FILE may name
// an alternate HCL path) and then the HCL config file, overlaying both
// onto Default(). A missing config file is not an error; a malformed one
// is.
func Load(configFile string) (Config, error) {
	cfg := Default()

	godotenv.Load(".env")
	if v := os.Getenv("RELDB_CONFIG_FILE"); v != "" {
		configFile = v
	}
	if v := os.Getenv("RELDB_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if configFile == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(configFile)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errs.Wrap(errs.KindInternal, err, "read config file "+configFile)
	}
	if err := hcl.Decode(&cfg, string(b)); err != nil {
		return cfg, errs.Wrap(errs.KindInternal, err, "parse config file "+configFile)
	}
	return cfg, nil
}

// snapshotFileName is the per-database config snapshot SPEC_FULL.md §3
// calls for, written the first time a database is created and checked on
// every later open.
const snapshotFileName = "reldb.hcl"

// Snapshot is the subset of Config that must stay fixed for the lifetime
// of a database, since changing it after rows exist would make the
// on-disk pages unreadable under the new settings.
type Snapshot struct {
	PageSize       int `hcl:"page_size"`
	BufferPoolSize int `hcl:"buffer_pool_size"`
}

// WriteSnapshot persists snap to dbDir/reldb.hcl, overwriting any existing
// snapshot (callers check ReadSnapshot first).
func WriteSnapshot(dbDir string, snap Snapshot) error {
	body := "page_size = " + strconv.Itoa(snap.PageSize) + "\nbuffer_pool_size = " + strconv.Itoa(snap.BufferPoolSize) + "\n"
	return os.WriteFile(filepath.Join(dbDir, snapshotFileName), []byte(body), 0o644)
}

// ReadSnapshot loads dbDir/reldb.hcl, or (Snapshot{}, false, nil) if the
// database has never been opened before.
func ReadSnapshot(dbDir string) (Snapshot, bool, error) {
	b, err := os.ReadFile(filepath.Join(dbDir, snapshotFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, errs.Wrap(errs.KindInternal, err, "read reldb.hcl")
	}
	var snap Snapshot
	if err := hcl.Decode(&snap, string(b)); err != nil {
		return Snapshot{}, false, errs.Wrap(errs.KindInternal, err, "parse reldb.hcl")
	}
	return snap, true, nil
}

// CheckCompatible reports an error if want's page size differs from the
// database's recorded snapshot — reopening a database with a different
// page size than it was created with is refused per SPEC_FULL.md §3. A
// different buffer pool capacity is accepted.
func CheckCompatible(got, want Snapshot) error {
	if got.PageSize != want.PageSize {
		return errs.Newf(errs.KindInternal, "database was created with page size %d, got %d", got.PageSize, want.PageSize)
	}
	return nil
}
