package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a source header that looks like a SQL injection payload.
// Headers flow into generated DDL and route code, so a flagged header is surfaced in the audit
// report even though its sql_name is always sanitized.
type InjectionCheckResult struct {
	Header      string // Raw header text as read from the file
	Position    int    // Zero-based column position
	Fingerprint string // libinjection fingerprint of the detected pattern
}

// CheckHeaderForInjection runs libinjection over a raw header.
// Returns nil if the header is clean.
//
// Example:
//
//	CheckHeaderForInjection(0, "Area Code")             // nil
//	CheckHeaderForInjection(3, "x'; DROP TABLE area--") // Fingerprint == "s&1c" (or similar)
func CheckHeaderForInjection(position int, header string) *InjectionCheckResult {
	isSQLi, fingerprint := libinjection.IsSQLi(header)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		Header:      header,
		Position:    position,
		Fingerprint: string(fingerprint),
	}
}

// CheckHeaders screens every header of a source, in column order.
func CheckHeaders(headers []string) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for i, h := range headers {
		if result := CheckHeaderForInjection(i, h); result != nil {
			results = append(results, result)
		}
	}
	return results
}
