package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var builtins = map[string]Func{
	"trim":            stringFilter(strings.TrimSpace),
	"lower":           stringFilter(strings.ToLower),
	"upper":           stringFilter(strings.ToUpper),
	"title":           stringFilter(title),
	"strip_tags":      stringFilter(stripTags),
	"collapse_spaces": stringFilter(collapseSpaces),
	"null_if_empty":   nullIfEmpty,
	"default":         withDefault,
	"int":             toInt,
	"float":           toFloat,
	"bool":            toBool,
	"substr":          substr,
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

// stringFilter lifts a string transform into a Func. Non-string values pass
// through untouched.
func stringFilter(fn func(string) string) Func {
	return func(args ...any) (any, error) {
		v := arg(args, 0)
		s, ok := v.(string)
		if !ok {
			return v, nil
		}
		return fn(s), nil
	}
}

func title(s string) string {
	prev := ' '
	return strings.Map(func(r rune) rune {
		defer func() { prev = r }()
		if unicode.IsSpace(prev) {
			return unicode.ToUpper(r)
		}
		return unicode.ToLower(r)
	}, s)
}

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

func stripTags(s string) string { return tagPattern.ReplaceAllString(s, "") }

func collapseSpaces(s string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

func nullIfEmpty(args ...any) (any, error) {
	v := arg(args, 0)
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil, nil
	}
	return v, nil
}

// withDefault returns its second argument when the value is nil or "".
func withDefault(args ...any) (any, error) {
	v := arg(args, 0)
	if v == nil || v == "" {
		return arg(args, 1), nil
	}
	return v, nil
}

func toInt(args ...any) (any, error) {
	switch t := arg(args, 0).(type) {
	case nil:
		return nil, nil
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case float64:
		return int64(t), nil
	case float32:
		return int64(t), nil
	case bool:
		if t {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", t)
		}
		return int64(f), nil
	default:
		return nil, fmt.Errorf("cannot convert %T to int", t)
	}
}

func toFloat(args ...any) (any, error) {
	switch t := arg(args, 0).(type) {
	case nil:
		return nil, nil
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", t)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to float", t)
	}
}

func toBool(args ...any) (any, error) {
	switch t := arg(args, 0).(type) {
	case nil:
		return false, nil
	case bool:
		return t, nil
	case int:
		return t != 0, nil
	case int64:
		return t != 0, nil
	case float64:
		return t != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "", "0", "false", "no", "off":
			return false, nil
		case "1", "true", "yes", "on":
			return true, nil
		}
		return nil, fmt.Errorf("%q is not a boolean", t)
	default:
		return nil, fmt.Errorf("cannot convert %T to bool", t)
	}
}

// substr takes (value, start[, length]) counted in runes. A start past the
// end yields "".
func substr(args ...any) (any, error) {
	v := arg(args, 0)
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	start, err := intArg(arg(args, 1), 0)
	if err != nil {
		return nil, err
	}
	runes := []rune(s)
	if start < 0 {
		start = max(len(runes)+start, 0)
	}
	if start >= len(runes) {
		return "", nil
	}
	n, err := intArg(arg(args, 2), len(runes)-start)
	if err != nil {
		return nil, err
	}
	end := min(start+max(n, 0), len(runes))
	return string(runes[start:end]), nil
}

func intArg(v any, def int) (int, error) {
	if v == nil {
		return def, nil
	}
	n, err := toInt(v)
	if err != nil {
		return 0, err
	}
	return int(n.(int64)), nil
}
