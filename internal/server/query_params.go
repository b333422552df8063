package server

import (
	"strconv"
	"strings"
)

func parseOptionalInt(value string) (*int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
