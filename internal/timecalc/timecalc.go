// Package timecalc converts exam start times and durations into end times
// and formats 24-hour clock values for display.
package timecalc

import (
	"fmt"
	"strconv"
	"strings"
)

// MinutesPerDay is the modulus used when a slot runs past midnight.
const MinutesPerDay = 24 * 60

// Minutes parses "HH:MM" into minutes since midnight.
func Minutes(t string) (int, bool) {
	parts := strings.Split(strings.TrimSpace(t), ":")
	if len(parts) != 2 || parts[0] == "" || len(parts[1]) != 2 {
		return 0, false
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}

	return hour*60 + minute, true
}

// FromMinutes formats minutes since midnight as zero-padded "HH:MM",
// wrapping values outside a single day.
func FromMinutes(m int) string {
	m %= MinutesPerDay
	if m < 0 {
		m += MinutesPerDay
	}
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// Normalize reduces a stored clock value such as "9:00" or "09:00:00" to
// "HH:MM". Seconds are dropped. Values it cannot read are returned unchanged.
func Normalize(t string) string {
	trimmed := strings.TrimSpace(t)
	parts := strings.Split(trimmed, ":")
	if len(parts) == 3 {
		if sec, err := strconv.Atoi(parts[2]); err != nil || sec < 0 || sec > 59 || len(parts[2]) != 2 {
			return t
		}
		trimmed = parts[0] + ":" + parts[1]
	}
	m, ok := Minutes(trimmed)
	if !ok {
		return t
	}
	return FromMinutes(m)
}

// ComputeEndTime adds durationMinutes to start, wrapping past midnight.
// It returns false when start is empty or malformed or the duration is negative.
func ComputeEndTime(start string, durationMinutes int) (string, bool) {
	if start == "" || durationMinutes < 0 {
		return "", false
	}
	m, ok := Minutes(start)
	if !ok {
		return "", false
	}
	return FromMinutes(m + durationMinutes), true
}

// DurationBetween returns (end - start) mod 24h in minutes.
func DurationBetween(start, end string) (int, bool) {
	s, ok := Minutes(start)
	if !ok {
		return 0, false
	}
	e, ok := Minutes(end)
	if !ok {
		return 0, false
	}
	d := (e - s) % MinutesPerDay
	if d < 0 {
		d += MinutesPerDay
	}
	return d, true
}

// FormatForDisplay converts "HH:MM" to a 12-hour label such as "1:05 PM".
// Midnight is "12:00 AM" and noon is "12:00 PM". Malformed input yields "".
func FormatForDisplay(t string) string {
	return FormatWithLabels(t, "", "")
}

// FormatWithLabels is FormatForDisplay with locale-specific markers.
// Empty markers fall back to "AM" and "PM".
func FormatWithLabels(t, am, pm string) string {
	if am == "" {
		am = "AM"
	}
	if pm == "" {
		pm = "PM"
	}

	m, ok := Minutes(t)
	if !ok {
		return ""
	}

	hour, minute := m/60, m%60
	marker := am
	if hour >= 12 {
		marker = pm
	}
	hour %= 12
	if hour == 0 {
		hour = 12
	}
	return fmt.Sprintf("%d:%02d %s", hour, minute, marker)
}

// ParseDisplay converts a "h:MM AM|PM" label back to "HH:MM".
func ParseDisplay(label string) (string, bool) {
	fields := strings.Fields(label)
	if len(fields) != 2 {
		return "", false
	}

	parts := strings.Split(fields[0], ":")
	if len(parts) != 2 || len(parts[1]) != 2 {
		return "", false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 1 || hour > 12 {
		return "", false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", false
	}

	switch strings.ToUpper(fields[1]) {
	case "AM":
		if hour == 12 {
			hour = 0
		}
	case "PM":
		if hour != 12 {
			hour += 12
		}
	default:
		return "", false
	}
	return FromMinutes(hour*60 + minute), true
}

// FormatDuration formats minutes as "2 h", "1 h 30 min" or "45 min".
func FormatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	hours := minutes / 60
	mins := minutes % 60
	if mins == 0 {
		return fmt.Sprintf("%d h", hours)
	}
	return fmt.Sprintf("%d h %d min", hours, mins)
}
