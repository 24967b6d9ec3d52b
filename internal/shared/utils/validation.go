package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Size limits (in bytes)
const (
	MaxJSONSize    = 2 * 1024 * 1024 // 2MB - maximum request payload
	MaxBufferSize  = 512 * 1024      // 512KB - one pane's source text
	MaxMessageSize = 1 * 1024 * 1024 // 1MB - one websocket frame
)

// String length limits
const (
	MaxSelectorLength  = 256
	MaxEventNameLength = 32
)

// Regular expressions for validation
var (
	// EventNamePattern allows DOM event names such as click or mouseover
	EventNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)
)

// SizeValidator validates payload size limits
type SizeValidator struct {
	maxSize int
}

// NewSizeValidator creates a new validator with the specified max size
func NewSizeValidator(maxSize int) *SizeValidator {
	return &SizeValidator{maxSize: maxSize}
}

// DefaultJSONValidator returns a validator with the default payload limit
func DefaultJSONValidator() *SizeValidator {
	return NewSizeValidator(MaxJSONSize)
}

// Max returns the limit in bytes
func (v *SizeValidator) Max() int { return v.maxSize }

// ValidateSize checks if the data size is within limits
func (v *SizeValidator) ValidateSize(data []byte) error {
	if size := len(data); size > v.maxSize {
		return fmt.Errorf("payload size %d bytes exceeds maximum %d bytes", size, v.maxSize)
	}
	return nil
}

// ValidateBuffer checks one pane's source text
func ValidateBuffer(text, pane string) error {
	if len(text) > MaxBufferSize {
		return fmt.Errorf("%s exceeds maximum size of %d bytes", pane, MaxBufferSize)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("%s must be valid UTF-8", pane)
	}
	return nil
}

// ValidateBuffers checks all three panes
func ValidateBuffers(html, css, js string) error {
	for _, b := range []struct{ text, pane string }{
		{html, "html"},
		{css, "css"},
		{js, "js"},
	} {
		if err := ValidateBuffer(b.text, b.pane); err != nil {
			return err
		}
	}
	return nil
}

// ValidateString validates a string field with length constraints
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if value == "" {
		if required {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must be at most %d characters", fieldName, maxLen)
	}
	return nil
}

// ValidateSelector validates a CSS selector used to target a preview element
func ValidateSelector(selector string) error {
	if err := ValidateString(strings.TrimSpace(selector), "selector", 1, MaxSelectorLength, true); err != nil {
		return err
	}
	return nil
}

// ValidateEventName validates a DOM event type
func ValidateEventName(name string) error {
	if err := ValidateString(name, "event", 1, MaxEventNameLength, true); err != nil {
		return err
	}
	if !EventNamePattern.MatchString(name) {
		return fmt.Errorf("event contains invalid characters")
	}
	return nil
}
