// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import (
	"strconv"
	"strings"
)

// AtoiDefault converts a string to an int using strconv.Atoi.
// If the string is empty or cannot be parsed as an integer,
// it returns the provided default value instead.
//
// Example:
//
//	n := utils.AtoiDefault("42", 0) // returns 42
//	n = utils.AtoiDefault("", 10)   // returns 10
//	n = utils.AtoiDefault("x", 5)   // returns 5
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Window parses skip/limit query values into an offset window. Negative or
// unparsable skips become 0; limits outside (0, max] become def or max.
//
//	skip, limit := utils.Window(c.Query("skip"), c.Query("limit"), 50, 200)
func Window(skipRaw, limitRaw string, def, max int) (skip, limit int) {
	skip = AtoiDefault(skipRaw, 0)
	if skip < 0 {
		skip = 0
	}
	limit = AtoiDefault(limitRaw, def)
	if limit <= 0 {
		limit = def
	}
	if max > 0 && limit > max {
		limit = max
	}
	return skip, limit
}

// ParseOptionalBool parses an optional boolean filter. An empty string yields
// nil; anything strconv.ParseBool rejects is an error.
func ParseOptionalBool(s string) (*bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
