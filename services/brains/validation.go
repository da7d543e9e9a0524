// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package brains

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	// MaxWords bounds Generate.Max.
	MaxWords = 1024

	// MaxDepth bounds the depth of a created brain.
	MaxDepth = 16

	// DefaultDepth is used for created brains without an explicit depth and
	// for brains whose persisted data is missing or corrupt.
	DefaultDepth = 5
)

var brainNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// validate is shared; validator.Validate caches struct metadata and is safe
// for concurrent use.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("brainname", func(fl validator.FieldLevel) bool {
		return brainNamePattern.MatchString(fl.Field().String())
	})
	return v
}

type generateBounds struct {
	Min int `validate:"min=1,ltefield=Max"`
	Max int `validate:"min=1,max=1024"`
}

type createParams struct {
	Name  string `validate:"brainname"`
	Depth int    `validate:"min=1,max=16"`
}

type nameParam struct {
	Name string `validate:"brainname"`
}

// ValidateName reports whether name is usable as a brain name.
func ValidateName(name string) error {
	return validationError(validate.Struct(nameParam{Name: name}))
}

func validateGenerate(req Generate) error {
	return validationError(validate.Struct(generateBounds{Min: req.Min, Max: req.Max}))
}

func validateCreate(name string, depth int) error {
	return validationError(validate.Struct(createParams{Name: name, Depth: depth}))
}

// validationError flattens validator errors into one ErrValidation.
func validationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeField(fe))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}

func describeField(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "brainname":
		return fmt.Sprintf("%s must be 1-64 characters of letters, digits, '_' or '-'", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "ltefield":
		return fmt.Sprintf("%s must not exceed %s", field, strings.ToLower(fe.Param()))
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
