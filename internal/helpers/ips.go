package helpers

import (
	"strings"

	"xui-api/internal/constants"
)

// ParseClientIPs splits the panel's client IP record into addresses.
// Entries are comma or newline delimited and may carry a trailing
// " (last seen)" timestamp; "No IP Record" means none.
func ParseClientIPs(record string) []string {
	record = strings.TrimSpace(record)
	if record == "" || record == constants.NoIPRecord {
		return []string{}
	}

	fields := strings.FieldsFunc(record, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})

	ips := make([]string, 0, len(fields))
	for _, field := range fields {
		ip, _, _ := strings.Cut(strings.TrimSpace(field), " (")
		if ip = strings.TrimSpace(ip); ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}
