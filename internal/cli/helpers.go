package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/mesh-intelligence/larder/pkg/orm"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// condition is one column=value argument.
type condition struct {
	column string
	value  any
}

// parseConditions parses key=value arguments. Values that parse as JSON are
// used as such, anything else is taken as a string.
func parseConditions(args []string) ([]condition, error) {
	out := make([]condition, 0, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, userErrorf("invalid condition %q (expected column=value)", arg)
		}
		var parsed any
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			parsed = raw
		}
		out = append(out, condition{column: key, value: normalize(parsed)})
	}
	return out, nil
}

// normalize turns integral JSON numbers into int64 so they bind as integers.
func normalize(v any) any {
	if f, ok := v.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return v
}

// decodeObject parses a JSON object into normalized field values.
func decodeObject(data []byte) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, userErrorf("invalid JSON object: %v", err)
	}
	for k, v := range obj {
		obj[k] = normalize(v)
	}
	return obj, nil
}

// applyFields sets the fields of obj on e in key order, id last so the state
// reflects whether the object names an existing row.
func applyFields(e *types.Entity, obj map[string]any) {
	keys := slices.Sorted(maps.Keys(obj))
	for _, k := range keys {
		if k != types.IDField {
			e.Set(k, obj[k])
		}
	}
	if id, ok := obj[types.IDField]; ok {
		e.Set(types.IDField, id)
	}
}

func applyConditions(repo *orm.Repository, conds []condition) {
	for _, c := range conds {
		repo.Where(c.column, "=", c.value)
	}
}

func writeJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func entityData(entities []*types.Entity) []map[string]any {
	out := make([]map[string]any, len(entities))
	for i, e := range entities {
		out[i] = e.Data()
	}
	return out
}

// describeValidation renders per-field failures for stderr.
func describeValidation(err error) string {
	ve, ok := orm.IsValidation(err)
	if !ok {
		return ""
	}
	var b strings.Builder
	for _, field := range ve.Errors.Fields() {
		fe := ve.Errors[field]
		fmt.Fprintf(&b, "  %s.%s: %s", ve.Alias, field, fe.Rule)
		if len(fe.Params) > 1 {
			fmt.Fprintf(&b, " %v", fe.Params[1:])
		}
		b.WriteByte('\n')
	}
	return b.String()
}
