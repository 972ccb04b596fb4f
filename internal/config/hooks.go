package config

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

var (
	int64Type   = reflect.TypeOf(int64(0))
	stringsType = reflect.TypeOf([]string(nil))
)

// StringToByteSizeHookFunc converts strings such as "32MiB" or "131072" into
// an int64 byte count. time.Duration targets are left to the duration hook.
func StringToByteSizeHookFunc() mapstructure.DecodeHookFuncType {
	return func(f, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != int64Type {
			return data, nil
		}
		return ParseSize(data.(string))
	}
}

// StringToRootsHookFunc splits a separated list into trimmed, non-empty
// entries. An empty string yields an empty list.
func StringToRootsHookFunc(sep string) mapstructure.DecodeHookFuncType {
	return func(f, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != stringsType {
			return data, nil
		}
		out := []string{}
		for _, part := range strings.Split(data.(string), sep) {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	}
}

// ParseSize converts a human-friendly size string into a byte count.
// Accepts plain integers (bytes) or IEC/human suffixes: KiB/MiB/GiB (case-insensitive) or K/M/G.
// Examples: "131072" => 131072, "128KiB" => 131072, "1MiB" => 1048576, "2G" => 2147483648.
func ParseSize(s string) (int64, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}
	upper := strings.ToUpper(s)
	if n, ok, err := parseSizeWithSuffix(upper, orig); ok {
		return n, err
	}
	n, err := parsePositiveInt(upper)
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", orig, err)
	}
	return n, nil
}

func parsePositiveInt(raw string) (int64, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative not allowed")
	}
	return n, nil
}

// parseSizeWithSuffix returns ok=false when no known suffix matched.
func parseSizeWithSuffix(upper, orig string) (int64, bool, error) {
	units := []struct {
		suffix string
		mult   int64
	}{
		{"KIB", 1 << 10}, {"MIB", 1 << 20}, {"GIB", 1 << 30},
		{"K", 1 << 10}, {"M", 1 << 20}, {"G", 1 << 30},
	}
	for _, u := range units {
		if !strings.HasSuffix(upper, u.suffix) {
			continue
		}
		num := strings.TrimSpace(upper[:len(upper)-len(u.suffix)])
		if num == "" {
			return 0, true, fmt.Errorf("parse size %q: missing number", orig)
		}
		n, err := parsePositiveInt(num)
		if err != nil {
			return 0, true, fmt.Errorf("parse size %q: %w", orig, err)
		}
		if n > math.MaxInt64/u.mult {
			return 0, true, fmt.Errorf("parse size %q: overflows int64", orig)
		}
		return n * u.mult, true, nil
	}
	return 0, false, nil
}
