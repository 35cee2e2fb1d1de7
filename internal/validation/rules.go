package validation

import (
	"fmt"
	"net/mail"
	"net/url"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"
)

var builtins = map[string]Rule{
	"not_empty":     notEmpty,
	"min_length":    minLength,
	"max_length":    maxLength,
	"exact_length":  exactLength,
	"regex":         matchRegex,
	"email":         email,
	"url":           isURL,
	"numeric":       numeric,
	"digit":         digit,
	"alpha":         alpha,
	"alpha_numeric": alphaNumeric,
	"range":         inRange,
	"equals":        equals,
	"in_array":      inArray,
	"date":          date,
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []byte:
		return len(t) == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	}
	return false
}

func toString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	case fmt.Stringer:
		return t.String(), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, bool:
		return fmt.Sprint(t), true
	}
	return "", false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	return int(f), ok
}

func length(v any) (int, bool) {
	s, ok := toString(v)
	if !ok {
		return 0, false
	}
	return utf8.RuneCountInString(s), true
}

func notEmpty(args ...any) bool {
	return !isEmpty(arg(args, 0))
}

func minLength(args ...any) bool {
	n, ok := length(arg(args, 0))
	min, ok2 := toInt(arg(args, 1))
	return ok && ok2 && n >= min
}

func maxLength(args ...any) bool {
	n, ok := length(arg(args, 0))
	max, ok2 := toInt(arg(args, 1))
	return ok && ok2 && n <= max
}

func exactLength(args ...any) bool {
	n, ok := length(arg(args, 0))
	want, ok2 := toInt(arg(args, 1))
	return ok && ok2 && n == want
}

var (
	regexMu    sync.Mutex
	regexCache = map[string]*regexp.Regexp{}
)

func compile(pattern string) (*regexp.Regexp, error) {
	regexMu.Lock()
	defer regexMu.Unlock()
	if re, ok := regexCache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	regexCache[pattern] = re
	return re, nil
}

func matchRegex(args ...any) bool {
	s, ok := toString(arg(args, 0))
	pattern, ok2 := arg(args, 1).(string)
	if !ok || !ok2 {
		return false
	}
	re, err := compile(pattern)
	return err == nil && re.MatchString(s)
}

func email(args ...any) bool {
	s, ok := arg(args, 0).(string)
	if !ok {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

func isURL(args ...any) bool {
	s, ok := arg(args, 0).(string)
	if !ok {
		return false
	}
	u, err := url.ParseRequestURI(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func numeric(args ...any) bool {
	_, ok := toFloat(arg(args, 0))
	return ok
}

func allRunes(args []any, pred func(rune) bool) bool {
	s, ok := toString(arg(args, 0))
	if !ok || s == "" {
		return false
	}
	for _, r := range s {
		if !pred(r) {
			return false
		}
	}
	return true
}

func digit(args ...any) bool { return allRunes(args, unicode.IsDigit) }

func alpha(args ...any) bool { return allRunes(args, unicode.IsLetter) }

func alphaNumeric(args ...any) bool {
	return allRunes(args, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) })
}

func inRange(args ...any) bool {
	v, ok := toFloat(arg(args, 0))
	lo, ok2 := toFloat(arg(args, 1))
	hi, ok3 := toFloat(arg(args, 2))
	return ok && ok2 && ok3 && v >= lo && v <= hi
}

func equals(args ...any) bool {
	a, b := arg(args, 0), arg(args, 1)
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return reflect.DeepEqual(a, b)
}

func inArray(args ...any) bool {
	v := arg(args, 0)
	list := reflect.ValueOf(arg(args, 1))
	if list.Kind() != reflect.Slice && list.Kind() != reflect.Array {
		return false
	}
	for i := 0; i < list.Len(); i++ {
		if equals(v, list.Index(i).Interface()) {
			return true
		}
	}
	return false
}

func date(args ...any) bool {
	switch t := arg(args, 0).(type) {
	case time.Time:
		return !t.IsZero()
	case string:
		for _, layout := range []string{time.RFC3339, time.DateTime, time.DateOnly} {
			if _, err := time.Parse(layout, t); err == nil {
				return true
			}
		}
	}
	return false
}
