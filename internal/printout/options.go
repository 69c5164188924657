// Package printout renders the printable exam schedule as a standalone HTML
// document and as an xlsx workbook.
package printout

import (
	"time"

	"examdesk/internal/timecalc"
)

// Options carries the locale and presentation preferences of a printout.
type Options struct {
	Locale     string // html lang attribute, e.g. "en" or "ar"
	Direction  string // "ltr" or "rtl"
	Title      string
	SchoolName string
	AMLabel    string
	PMLabel    string
	DateLayout string // Go time layout for exam dates
}

// DefaultOptions returns English left-to-right options.
func DefaultOptions() Options {
	return Options{
		Locale:     "en",
		Direction:  "ltr",
		Title:      "Examination Schedule",
		AMLabel:    "AM",
		PMLabel:    "PM",
		DateLayout: "Monday, 02 January 2006",
	}
}

// withDefaults fills blank fields from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Locale == "" {
		o.Locale = d.Locale
	}
	if o.Direction != "rtl" {
		o.Direction = d.Direction
	}
	if o.Title == "" {
		o.Title = d.Title
	}
	if o.AMLabel == "" {
		o.AMLabel = d.AMLabel
	}
	if o.PMLabel == "" {
		o.PMLabel = d.PMLabel
	}
	if o.DateLayout == "" {
		o.DateLayout = d.DateLayout
	}
	return o
}

// FormatTime renders "HH:MM" with the configured AM/PM labels.
func (o Options) FormatTime(t string) string {
	o = o.withDefaults()
	return timecalc.FormatWithLabels(t, o.AMLabel, o.PMLabel)
}

// FormatDate renders a "2006-01-02" date with DateLayout. Unparseable dates
// are returned unchanged.
func (o Options) FormatDate(date string) string {
	o = o.withDefaults()
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.Format(o.DateLayout)
}

// FormatRange renders "start - end" in display form.
func (o Options) FormatRange(start, end string) string {
	return o.FormatTime(start) + " - " + o.FormatTime(end)
}
