package core

// error_messages.go maps technical errors to messages with support codes.
//
// # Configuration Errors (CFG001-CFG099)
//
//	CFG001 - Unknown platform: No import configuration exists for the platform
//	         Action: Check the platform name or load its configuration
//	         Match: *ConfigurationError wrapping platform.ErrNotFound
//
//	CFG002 - Invalid platform config: The platform configuration is unusable
//	         Action: Fix the platform configuration document and reload it
//	         Match: *platform.InvalidConfigError, other *ConfigurationError
//
//	CFG003 - Missing platform: The request did not name a platform
//	         Patterns: "platform is required"
//
// # Parsing Errors (PARSE001-PARSE099)
//
//	PARSE001 - Invalid date: A date does not match the platform's date format
//	PARSE002 - Invalid number: A quantity or price is not a number
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key        Patterns: "duplicate key"
//	DB002 - Unique constraint    Patterns: "unique constraint", "violates unique"
//	DB003 - Foreign key          Patterns: "foreign key constraint", "violates foreign key"
//	DB004 - Connection refused   Patterns: "connection refused"
//	DB005 - Connection reset     Patterns: "connection reset"
//	DB006 - Timeout              Patterns: "timeout", "context deadline exceeded"
//	DB007 - Deadlock             Patterns: "deadlock"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large      Patterns: "file too large"
//	FILE002 - Invalid CSV         Match: *csv.ParseError; Patterns: "invalid csv"
//	FILE003 - Source missing      Match: storage.ErrNotFound
//	FILE004 - No file             Patterns: "no file provided"
//	FILE005 - Empty file          Match: ErrEmptyFile
//
// # Queue Errors (QUE001-QUE099)
//
//	QUE001 - Queue unavailable    ErrQueueUnavailable, patterns: "enqueue"
//	QUE002 - System busy          Patterns: "too many concurrent imports"
//	QUE003 - Unknown job          Patterns: "import run not found"
//
// # Default Error (ERR000)
//
// Typed errors are matched first with errors.As / errors.Is. Otherwise
// patterns are matched case-insensitively with strings.Contains and the
// first match wins, so specific patterns come before general ones.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/salesimport/internal/platform"
	"github.com/JonMunkholm/salesimport/internal/storage"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

var (
	msgUnknownPlatform = UserMessage{
		Message: "No import configuration exists for this platform",
		Action:  "Check the platform name or load its configuration",
		Code:    "CFG001",
	}
	msgInvalidConfig = UserMessage{
		Message: "The platform configuration is invalid",
		Action:  "Fix the platform configuration document and reload it",
		Code:    "CFG002",
	}
	msgInvalidDate = UserMessage{
		Message: "A date does not match the platform's date format",
		Action:  "Check the date column or the platform's date format setting",
		Code:    "PARSE001",
	}
	msgInvalidNumber = UserMessage{
		Message: "A quantity or price is not a valid number",
		Action:  "Check the numeric columns in the file",
		Code:    "PARSE002",
	}
	msgInvalidCSV = UserMessage{
		Message: "File is not a valid CSV",
		Action:  "Ensure file is comma-separated with a header row",
		Code:    "FILE002",
	}
	msgSourceMissing = UserMessage{
		Message: "The uploaded file is no longer available",
		Action:  "Upload the file again",
		Code:    "FILE003",
	}
	msgEmptyFile = UserMessage{
		Message: "The uploaded file is empty",
		Action:  "Please upload a CSV file with a header and data rows",
		Code:    "FILE005",
	}
	msgQueueUnavailable = UserMessage{
		Message: "The import could not be queued",
		Action:  "Please upload the file again in a few moments",
		Code:    "QUE001",
	}
)

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user
// messages. Order matters.
var errorPatterns = []errorPattern{
	// Database constraints
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Check the file for conflicting identifiers",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Check for duplicate entries in your CSV",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "A duplicate value was found",
			Action:  "Review your data for duplicate key values",
			Code:    "DB002",
		},
	},
	{
		pattern: "foreign key constraint",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Check that every order references a customer id",
			Code:    "DB003",
		},
	},
	{
		pattern: "violates foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Check that every order references a customer id",
			Code:    "DB003",
		},
	},

	// Database connectivity
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "The import will be retried automatically",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "The import will be retried automatically",
			Code:    "DB005",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "The import will be retried automatically",
			Code:    "DB007",
		},
	},

	{
		pattern: "platform is required",
		msg: UserMessage{
			Message: "No platform was given",
			Action:  "Set the \"platform\" field to a configured platform name",
			Code:    "CFG003",
		},
	},

	// Files
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{pattern: "invalid csv", msg: msgInvalidCSV},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was provided",
			Action:  "Attach a CSV file in the \"file\" field",
			Code:    "FILE004",
		},
	},
	{pattern: "empty file", msg: msgEmptyFile},

	// Queue
	{
		pattern: "too many concurrent imports",
		msg: UserMessage{
			Message: "System is busy processing other imports",
			Action:  "Please wait a moment and try again",
			Code:    "QUE002",
		},
	},
	{
		pattern: "import run not found",
		msg: UserMessage{
			Message: "No import job exists with this id",
			Action:  "Check the job id returned when the file was uploaded",
			Code:    "QUE003",
		},
	},
	{pattern: "enqueue", msg: msgQueueUnavailable},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// If nothing matches, the ERR000 fallback is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var (
		cfgErr     *ConfigurationError
		invalidCfg *platform.InvalidConfigError
		parseErr   *ParsingError
		csvErr     *csv.ParseError
	)
	switch {
	case errors.Is(err, ErrQueueUnavailable):
		return msgQueueUnavailable
	case errors.As(err, &invalidCfg):
		return msgInvalidConfig
	case errors.As(err, &cfgErr):
		if errors.Is(err, platform.ErrNotFound) {
			return msgUnknownPlatform
		}
		return msgInvalidConfig
	case errors.As(err, &parseErr):
		if errors.Is(err, errInvalidDate) {
			return msgInvalidDate
		}
		return msgInvalidNumber
	case errors.As(err, &csvErr):
		return msgInvalidCSV
	case errors.Is(err, ErrEmptyFile):
		return msgEmptyFile
	case errors.Is(err, storage.ErrNotFound):
		return msgSourceMissing
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
