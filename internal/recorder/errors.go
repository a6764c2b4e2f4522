package recorder

import "codeberg.org/mutker/umctl/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("recorder_invalid_db_path")
	ErrInvalidBatch  = errors.ErrorCode("recorder_invalid_batch")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("recorder_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("recorder_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("recorder_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("recorder_transaction_failed")

	// Storage Errors
	ErrStorageInit  = errors.ErrInitFailed
	ErrStorageClose = errors.ErrShutdownFailed

	// Recording Errors
	ErrRecordFailed  = errors.ErrorCode("recorder_record_failed")
	ErrInvalidRecord = errors.ErrorCode("recorder_invalid_record")

	// Operation Errors
	ErrOperationTimeout = errors.ErrTimeout
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrInvalidDBPath:          "Recording database path is empty",
		ErrInvalidBatch:           "Invalid recording batch setting",
		ErrSchemaInitFailed:       "Failed to initialize recording schema",
		ErrSchemaValidationFailed: "Failed to read recording schema version",
		ErrSchemaMigrationFailed:  "Failed to migrate recording schema",
		ErrTransactionFailed:      "Failed to write readings",
		ErrRecordFailed:           "Failed to record reading",
		ErrInvalidRecord:          "Invalid reading",
	})
}
