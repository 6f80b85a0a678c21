// Copyright (C) 2025 TaskMate (dev@taskmate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation and output sanitization.
//
// Request structs are validated with go-playground/validator tags.
// Text that passed through a language model is sanitized before it
// reaches clients, since model output can echo attacker-controlled
// prompt content (script tags, markup).
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance. validator.Validate caches
// struct metadata, so a single instance is both safe and faster.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Struct validates a struct against its `validate` tags.
//
// Outputs:
//
//	error - Non-nil with a field-level message on the first violation.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("field %q failed validation rule %q", fieldName(fe), fe.Tag())
	}
	return err
}

// fieldName lowercases the leading rune to match JSON field casing.
func fieldName(fe validator.FieldError) string {
	name := fe.Field()
	if name == "" {
		return name
	}
	return strings.ToLower(name[:1]) + name[1:]
}

// =============================================================================
// Output Sanitization
// =============================================================================

var (
	scriptPattern = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	tagPattern    = regexp.MustCompile(`<[^>]*>`)
)

// SanitizeOutput strips script blocks and markup tags from
// model-generated text and trims surrounding whitespace.
//
// Example:
//
//	SanitizeOutput("Plan <script>alert(1)</script>the week")
//	// -> "Plan the week"
func SanitizeOutput(s string) string {
	s = scriptPattern.ReplaceAllString(s, "")
	s = tagPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// SanitizeAll sanitizes each string in place-order and drops entries
// that become empty.
func SanitizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if clean := SanitizeOutput(s); clean != "" {
			out = append(out, clean)
		}
	}
	return out
}
