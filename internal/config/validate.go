// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation("http_url", func(fl validator.FieldLevel) bool {
			return isHTTPURL(fl.Field().String())
		})
	})
	return validate
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Validate checks field ranges with struct tags, then the cross-field rules
// the tags cannot express.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if err := getValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, ValidationError{
				Field:   fieldPath(fe.Namespace()),
				Message: describe(fe),
			})
		}
	}

	seen := make(map[string]bool, len(c.Endpoints))
	for i, ep := range c.Endpoints {
		key := strings.ToLower(ep.Name)
		if key != "" && seen[key] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("endpoints[%d].name", i),
				Message: fmt.Sprintf("duplicate endpoint name %q", ep.Name),
			})
		}
		seen[key] = true
	}

	if c.Active != "" && len(c.Endpoints) > 0 && c.findRef(c.Active) == nil {
		errs = append(errs, ValidationError{
			Field:   "active",
			Message: fmt.Sprintf("no endpoint with id or name %q", c.Active),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateEndpoint checks a single endpoint, as done before saving it.
func ValidateEndpoint(ep Endpoint) error {
	if err := getValidator().Struct(ep); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		errs := make(ValidateErrors, 0, len(verrs))
		for _, fe := range verrs {
			errs = append(errs, ValidationError{Field: fieldPath(fe.Namespace()), Message: describe(fe)})
		}
		return errs
	}
	return nil
}

// fieldPath turns "Config.Endpoints[0].ServerURL" into "endpoints[0].server_url".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	parts := strings.Split(ns, ".")
	for i, p := range parts {
		parts[i] = snake(p)
	}
	return strings.Join(parts, ".")
}

func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && s[i-1] >= 'a' && s[i-1] <= 'z' {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gte":
		return fmt.Sprintf("must be >= %s (got %v)", fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("must be <= %s (got %v)", fe.Param(), fe.Value())
	case "oneof":
		return fmt.Sprintf("must be one of [%s] (got %q)", fe.Param(), fe.Value())
	case "http_url":
		return fmt.Sprintf("must be an http or https URL (got %q)", fe.Value())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
