// Package database owns the SQLite file that holds the backend's durable
// state: device records, device history, and alerts. Sensor readings are
// deliberately absent; those are time series and live in InfluxDB.
//
// The pool is pinned to a single connection because SQLite serialises
// writers anyway. WAL mode keeps reads flowing while the device
// repository writes, and a busy timeout absorbs the brief lock windows
// that remain.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(); err != nil {
//	    log.Fatal(err)
//	}
//
// Schema changes ship as paired .up.sql/.down.sql files embedded from
// the migrations directory, named
//
//	YYYYMMDD_HHMMSS_description.{up,down}.sql
//
// and applied in filename order, each inside its own transaction with a
// row recorded in schema_migrations. Migrations are additive: new
// columns are nullable or carry defaults so a rollback of the binary
// never meets a schema it cannot read.
//
// All queries use parameterised statements, and nothing secret is stored
// here; broker credentials and InfluxDB tokens stay in config.
package database
