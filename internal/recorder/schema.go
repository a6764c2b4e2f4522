package recorder

import (
	"database/sql"

	"codeberg.org/mutker/umctl/internal/errors"
	"codeberg.org/mutker/umctl/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS readings (
	       id             INTEGER PRIMARY KEY AUTOINCREMENT,
	       session_id     TEXT    NOT NULL,
	       received_at    INTEGER NOT NULL,
	       model          TEXT    NOT NULL,
	       group_index    INTEGER NOT NULL,
	       voltage_mv     INTEGER NOT NULL CHECK (typeof(voltage_mv) = 'integer'),
	       current_ma     INTEGER NOT NULL CHECK (typeof(current_ma) = 'integer'),
	       power_mw       INTEGER NOT NULL CHECK (typeof(power_mw) = 'integer'),
	       resistance_mohm INTEGER NOT NULL,
	       temperature_c  INTEGER NOT NULL,
	       charge_mah     INTEGER NOT NULL,
	       energy_mwh     INTEGER NOT NULL,
	       duration_s     INTEGER NOT NULL,
	       data_plus_mv   INTEGER NOT NULL,
	       data_minus_mv  INTEGER NOT NULL,
	       charging_mode  TEXT    NOT NULL
	   );
	   CREATE INDEX IF NOT EXISTS readings_session_idx
	       ON readings (session_id, received_at);`

	insertReadingSQL = `
    INSERT INTO readings (
        session_id, received_at, model, group_index,
        voltage_mv, current_ma, power_mw, resistance_mohm, temperature_c,
        charge_mah, energy_mwh, duration_s,
        data_plus_mv, data_minus_mv, charging_mode
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

// InitSchema creates the tables and records the current version.
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating database...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			SQL   string
		}{
			Error: err.Error(),
			SQL:   createTablesSQL,
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("Schema initialized successfully")

	return nil
}

// GetSchemaVersion returns the stored schema version, or 0 for a fresh database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

func TableExists(db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errors.New().WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}

	return exists, nil
}
