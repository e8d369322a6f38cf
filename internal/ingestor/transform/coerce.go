package transform

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMissingValue marks an empty, dash, or NaN upstream value.
var ErrMissingValue = errors.New("missing value")

// ParseInt parses an upstream integer such as "1,234,500" or "-3,200".
// Fractional values are rounded. Missing values return 0 and ErrMissingValue.
func ParseInt(raw string) (int64, error) {
	s, err := normalize(raw)
	if err != nil {
		return 0, err
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := parseFinite(s)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(f)), nil
}

// ParseFloat parses an upstream decimal such as "2,645.32".
func ParseFloat(raw string) (float64, error) {
	s, err := normalize(raw)
	if err != nil {
		return 0, err
	}
	return parseFinite(s)
}

func normalize(raw string) (string, error) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	switch strings.ToLower(s) {
	case "", "-", "nan", "null", "none":
		return "", ErrMissingValue
	}
	return s, nil
}

func parseFinite(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if math.IsNaN(f) {
		return 0, ErrMissingValue
	}
	if math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number: %q", s)
	}
	return f, nil
}
