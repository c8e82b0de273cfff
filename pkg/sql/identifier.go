package sql

import (
	"fmt"
	"regexp"
	"strings"
)

var nonIdentifierChars = regexp.MustCompile(`[^a-z0-9]+`)

// reservedWords are SQL keywords that commonly appear as CSV headers.
var reservedWords = map[string]bool{
	"all": true, "and": true, "as": true, "by": true, "case": true, "check": true,
	"column": true, "date": true, "default": true, "desc": true, "from": true,
	"group": true, "order": true, "select": true, "table": true, "to": true,
	"union": true, "user": true, "value": true, "where": true, "year": true,
}

// ToSQLName converts a raw header into a snake_case SQL identifier.
// Position is used to name headers that contain no usable characters.
//
// Examples: "Area Code (M49)" -> "area_code_m49", "2019" -> "col_2019", "Value" -> "value_"
func ToSQLName(header string, position int) string {
	name := strings.ToLower(strings.TrimSpace(header))
	name = nonIdentifierChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")

	if name == "" {
		return fmt.Sprintf("column_%d", position+1)
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "col_" + name
	}
	if reservedWords[name] {
		name += "_"
	}
	if len(name) > 63 {
		name = strings.TrimRight(name[:63], "_")
	}
	return name
}

// ToSQLNames converts headers to identifiers that are unique within one table.
// Later duplicates receive a numeric suffix in column order.
func ToSQLNames(headers []string) []string {
	names := make([]string, len(headers))
	used := make(map[string]bool, len(headers))
	for i, h := range headers {
		base := ToSQLName(h, i)
		name := base
		for n := 2; used[name]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		used[name] = true
		names[i] = name
	}
	return names
}

// ToTableName derives a table identifier from a source identity such as
// "Trade/Trade_DetailedTradeMatrix_E_All_Data_(Normalized).csv".
func ToTableName(identity string) string {
	base := identity
	if idx := strings.LastIndexAny(base, `/\`); idx >= 0 {
		base = base[idx+1:]
	}
	if idx := strings.LastIndex(base, "."); idx > 0 {
		base = base[:idx]
	}
	name := strings.ToLower(base)
	name = nonIdentifierChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return "table"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "t_" + name
	}
	return name
}
