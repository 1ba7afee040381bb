// Package validation provides input validation middleware for the quizserve API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB). Apple receipts are
// base64 blobs that can run to hundreds of KB, so this cannot be much smaller.
const MaxRequestSize = 1 << 20 // 1MB

// MaxReceiptLength caps the base64 receipt payload accepted from clients.
const MaxReceiptLength = 512 * 1024

var (
	// skuRegex validates product SKUs (reverse-DNS style identifiers)
	skuRegex = regexp.MustCompile(`^[a-z0-9]+(\.[a-z0-9_]+)+$`)
	// langRegex validates two-letter language codes
	langRegex = regexp.MustCompile(`^[a-z]{2}$`)
	// base64Regex validates base64-encoded receipt data
	base64Regex = regexp.MustCompile(`^[A-Za-z0-9+/=\r\n]+$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidSKU checks if a string looks like a product SKU
func IsValidSKU(sku string) bool {
	return len(sku) <= 255 && skuRegex.MatchString(sku)
}

// IsValidLang checks if a string is a two-letter language code
func IsValidLang(lang string) bool {
	return langRegex.MatchString(lang)
}

// IsBase64 checks that a string contains only base64 characters
func IsBase64(s string) bool {
	return s != "" && base64Regex.MatchString(s)
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidSKU checks if a field is a well-formed product SKU
func ValidSKU(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidSKU(value) {
			return &ValidationError{Field: field, Message: "must be a valid product SKU"}
		}
		return nil
	}
}

// ValidBase64 checks that a field carries base64 data. Use Required for
// required fields; empty values pass.
func ValidBase64(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !IsBase64(value) {
			return &ValidationError{Field: field, Message: "must be base64 encoded"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// Positive checks that an integer field is greater than zero
func Positive(field string, value int64) func() *ValidationError {
	return func() *ValidationError {
		if value <= 0 {
			return &ValidationError{Field: field, Message: "must be greater than zero"}
		}
		return nil
	}
}

// SKUParamMiddleware validates the :sku URL parameter on routes that use it.
// Apply to route groups that include :sku params to reject malformed SKUs early.
func SKUParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sku := c.Param("sku")
		if sku != "" && !IsValidSKU(sku) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   true,
				"message": "sku must be a reverse-DNS product identifier",
			})
			return
		}
		c.Next()
	}
}
