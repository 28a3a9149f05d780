package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/supabase/supabase-sub056/internal/database"
	"github.com/supabase/supabase-sub056/internal/sqlident"
)

// getRequestID extracts the request ID from the Fiber context.
// It first checks the requestid middleware local, then falls back to the X-Request-ID header.
func getRequestID(c *fiber.Ctx) string {
	if requestID := c.Locals("requestid"); requestID != nil {
		if id, ok := requestID.(string); ok && id != "" {
			return id
		}
	}
	return c.Get(fiber.HeaderXRequestID, "")
}

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	Hint      string `json:"hint,omitempty"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// SendError sends a standardized error response with request ID
func SendError(c *fiber.Ctx, statusCode int, errMsg string) error {
	return c.Status(statusCode).JSON(ErrorResponse{
		Error:     errMsg,
		RequestID: getRequestID(c),
	})
}

// SendErrorWithCode sends a standardized error response with error code and request ID
func SendErrorWithCode(c *fiber.Ctx, statusCode int, errMsg string, code string) error {
	return c.Status(statusCode).JSON(ErrorResponse{
		Error:     errMsg,
		Code:      code,
		RequestID: getRequestID(c),
	})
}

// SendErrorWithDetails sends a detailed error response with request ID
func SendErrorWithDetails(c *fiber.Ctx, statusCode int, errMsg string, code string, message string, hint string, details any) error {
	return c.Status(statusCode).JSON(ErrorResponse{
		Error:     errMsg,
		Code:      code,
		Message:   message,
		Hint:      hint,
		Details:   details,
		RequestID: getRequestID(c),
	})
}

// sendBadBody reports a request body that could not be decoded
func sendBadBody(c *fiber.Ctx, err error) error {
	return SendErrorWithDetails(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_BODY",
		err.Error(), "", nil)
}

// handleDatabaseError maps metadata lookup failures to responses.
func handleDatabaseError(c *fiber.Ctx, err error, operation string) error {
	switch {
	case errors.Is(err, database.ErrDisabled):
		return SendErrorWithDetails(c, fiber.StatusServiceUnavailable, "Database lookups are disabled", "DATABASE_DISABLED",
			"", "Enable the database section of the configuration or pass the property schema in the request", nil)
	case errors.Is(err, database.ErrTableNotFound), database.IsUndefinedTable(err):
		return SendErrorWithCode(c, fiber.StatusNotFound, "Table not found", "TABLE_NOT_FOUND")
	case database.IsInsufficientPrivilege(err):
		return SendErrorWithCode(c, fiber.StatusForbidden, "Insufficient privileges to read table metadata", "INSUFFICIENT_PRIVILEGE")
	case database.IsConnectionError(err):
		log.Warn().Err(err).Str("operation", operation).Str("request_id", getRequestID(c)).Msg("Database unavailable")
		return SendErrorWithCode(c, fiber.StatusServiceUnavailable, "Database unavailable", "DATABASE_UNAVAILABLE")
	}

	log.Error().
		Err(err).
		Str("operation", operation).
		Str("request_id", getRequestID(c)).
		Msg("Database operation failed")

	return SendErrorWithCode(c, fiber.StatusInternalServerError, "Failed to "+operation, "DATABASE_ERROR")
}

// handleSQLParseError reports a statement libpg_query rejected, with the
// cursor position when the parser gave one.
func handleSQLParseError(c *fiber.Ctx, err error) error {
	if message, position, ok := sqlident.SyntaxError(err); ok {
		return SendErrorWithDetails(c, fiber.StatusBadRequest, "Invalid SQL", "SQL_SYNTAX_ERROR",
			message, "", fiber.Map{"position": position})
	}
	return SendErrorWithDetails(c, fiber.StatusBadRequest, "Invalid SQL", "SQL_PARSE_ERROR",
		err.Error(), "", nil)
}

// customErrorHandler renders errors that escaped the handlers
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	if code >= 500 {
		log.Error().Err(err).Str("path", c.Path()).Str("request_id", getRequestID(c)).Msg("Server error")
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:     message,
		RequestID: getRequestID(c),
	})
}
