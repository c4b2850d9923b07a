// Package errors provides structured error handling for AskDoc.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO and document parsing errors
//   - 3XX: Backend (network) errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file, disk, and document parsing errors.
	CategoryIO Category = "IO"
	// CategoryBackend indicates failures of an external backend call.
	CategoryBackend Category = "BACKEND"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Stage identifies the pipeline stage a backend failure happened in.
// Surfaced to callers so a failed /ask request names the stage that broke.
type Stage string

const (
	StageEmbed    Stage = "embed"
	StageRetrieve Stage = "retrieve"
	StageRerank   Stage = "rerank"
	StageGenerate Stage = "generate"
	StageIngest   Stage = "ingest"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodeAPIKeyMissing  = "ERR_103_API_KEY_MISSING"

	// IO errors (200-299)
	ErrCodeFileNotFound      = "ERR_201_FILE_NOT_FOUND"
	ErrCodeUnsupportedFormat = "ERR_202_UNSUPPORTED_FORMAT"
	ErrCodeParseFailed       = "ERR_203_PARSE_FAILED"
	ErrCodeCorruptIndex      = "ERR_204_CORRUPT_INDEX"

	// Backend errors (300-399)
	ErrCodeEmbedFailed    = "ERR_301_EMBED_FAILED"
	ErrCodeSearchFailed   = "ERR_302_SEARCH_FAILED"
	ErrCodeRerankFailed   = "ERR_303_RERANK_FAILED"
	ErrCodeGenerateFailed = "ERR_304_GENERATE_FAILED"
	ErrCodeNetworkTimeout = "ERR_305_NETWORK_TIMEOUT"

	// Validation errors (400-499)
	ErrCodeQuestionEmpty     = "ERR_401_QUESTION_EMPTY"
	ErrCodeInvalidInput      = "ERR_402_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_403_DIMENSION_MISMATCH"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeIngestFailed = "ERR_502_INGEST_FAILED"
)

// stageCodes maps pipeline stages to their backend failure codes.
var stageCodes = map[Stage]string{
	StageEmbed:    ErrCodeEmbedFailed,
	StageRetrieve: ErrCodeSearchFailed,
	StageRerank:   ErrCodeRerankFailed,
	StageGenerate: ErrCodeGenerateFailed,
	StageIngest:   ErrCodeIngestFailed,
}

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract the leading digit of the numeric portion
	// (e.g., '1' from "ERR_101_CONFIG_NOT_FOUND").
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryBackend
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	if code == ErrCodeCorruptIndex {
		return SeverityFatal
	}
	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	return code == ErrCodeNetworkTimeout
}
