package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/target/opsdesk/internal/core"
	"github.com/target/opsdesk/internal/domain/model"
)

// rowValue returns row[field]. When the field is absent and the row has exactly one
// column, that column is used; aggregate queries often come back with driver-chosen names.
func rowValue(row core.Row, field string) (any, bool) {
	if v, ok := row[field]; ok {
		return v, true
	}
	for k, v := range row {
		if strings.EqualFold(k, field) {
			return v, true
		}
	}
	if len(row) == 1 {
		for _, v := range row {
			return v, true
		}
	}
	return nil, false
}

// rowString renders a row field as text. Times use model.ActivityTimeLayout in UTC.
func rowString(row core.Row, field string) string {
	v, ok := rowValue(row, field)
	if !ok {
		return ""
	}
	return formatValue(v)
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format(model.ActivityTimeLayout)
	case *time.Time:
		if t == nil {
			return ""
		}
		return formatValue(*t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// rowTime parses a row field as a timestamp. Strings may use RFC 3339 or model.ActivityTimeLayout.
func rowTime(row core.Row, field string) (time.Time, bool) {
	v, ok := rowValue(row, field)
	if !ok {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string, []byte:
		return parseTimestamp(formatValue(t))
	default:
		return time.Time{}, false
	}
}

func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, model.ActivityTimeLayout} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
