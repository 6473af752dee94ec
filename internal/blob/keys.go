// Package blob defines the object-store key layout shared by the collector,
// the composer, and the file-serving API.
package blob

import (
	"fmt"
	"regexp"
	"strings"
)

// Canonical daily artifacts live at flat per-asset paths:
//
//	coinbase/ADA/ADA-2025-08-28.csv
//	coinbase/ADA/ADA-2025-08-28.json
//
// Intermediate hourly shards are written next to them as
// coinbase/ADA/2025-08-28_14.csv; an older generation used
// coinbase/ADA/2025-08-28/seconds_H14.csv and the composer accepts both.

// DayRE matches a YYYY-MM-DD day string.
var DayRE = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// DailyCSVKey returns the canonical daily CSV key for an exchange/asset/day.
func DailyCSVKey(exchange, asset, day string) string {
	return fmt.Sprintf("%s/%s/%s-%s.csv", exchange, asset, asset, day)
}

// DailyJSONKey returns the canonical daily JSON key for an exchange/asset/day.
func DailyJSONKey(exchange, asset, day string) string {
	return fmt.Sprintf("%s/%s/%s-%s.json", exchange, asset, asset, day)
}

// HourlyCSVKey returns the shard key the collector uploads during the day.
func HourlyCSVKey(exchange, asset, day string, hour int) string {
	return fmt.Sprintf("%s/%s/%s_%02d.csv", exchange, asset, day, hour)
}

// ShardPrefix returns the listing prefix that covers both shard naming
// generations for a day.
func ShardPrefix(exchange, asset string) string {
	return exchange + "/" + asset + "/"
}

// IsShardKey reports whether key names an hourly shard for the given day,
// in either naming generation.
func IsShardKey(key, exchange, asset, day string) bool {
	if !strings.HasSuffix(key, ".csv") {
		return false
	}
	base := exchange + "/" + asset + "/"
	if !strings.HasPrefix(key, base) {
		return false
	}
	rest := strings.TrimPrefix(key, base)
	// Current generation: 2025-08-28_14.csv
	if strings.HasPrefix(rest, day+"_") {
		return true
	}
	// Legacy generation: 2025-08-28/seconds_H14.csv
	if strings.HasPrefix(rest, day+"/seconds_H") {
		return true
	}
	return false
}

// DayFromDailyJSONKey extracts the day from a canonical daily JSON key
// belonging to the given asset, or "" when the key does not match.
func DayFromDailyJSONKey(key, asset string) string {
	if !strings.HasSuffix(key, ".json") {
		return ""
	}
	name := key[strings.LastIndex(key, "/")+1:]
	prefix := asset + "-"
	if !strings.HasPrefix(name, prefix) {
		return ""
	}
	day := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".json")
	if !DayRE.MatchString(day) {
		return ""
	}
	return day
}
