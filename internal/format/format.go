// Package format renders deal and chat values for people.
package format

import (
	"html"
	"math"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/microcosm-cc/bluemonday"
)

const day = 24 * time.Hour

var relMagnitudes = []humanize.RelTimeMagnitude{
	{D: time.Minute, Format: "%d seconds %s", DivBy: time.Second},
	{D: 2 * time.Minute, Format: "1 minute %s", DivBy: 1},
	{D: time.Hour, Format: "%d minutes %s", DivBy: time.Minute},
	{D: 2 * time.Hour, Format: "1 hour %s", DivBy: 1},
	{D: day, Format: "%d hours %s", DivBy: time.Hour},
	{D: 2 * day, Format: "1 day %s", DivBy: 1},
	{D: 30 * day, Format: "%d days %s", DivBy: day},
	{D: 60 * day, Format: "1 month %s", DivBy: 1},
	{D: 365 * day, Format: "%d months %s", DivBy: 30 * day},
	{D: 2 * 365 * day, Format: "1 year %s", DivBy: 1},
	{D: math.MaxInt64, Format: "%d years %s", DivBy: 365 * day},
}

// TimeAgo describes t relative to now.
func TimeAgo(t, now time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	if d := now.Sub(t); d >= 0 && d < 5*time.Second {
		return "just now"
	}
	return humanize.CustomRelTime(t, now, "ago", "from now", relMagnitudes)
}

// Currency formats a fiat value with two decimals. A nil value is "N/A".
func Currency(v *float64, currency string) string {
	if v == nil {
		return "N/A"
	}
	currency = strings.ToUpper(currency)
	if currency == "" {
		currency = "USD"
	}
	amount := *v
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := humanize.FormatFloat("#,###.##", amount)
	if currency == "USD" {
		return sign + "$" + digits
	}
	return sign + digits + " " + currency
}

// Amount formats a crypto amount with its ticker.
func Amount(v float64, crypto string) string {
	return humanize.Commaf(v) + " " + strings.ToUpper(crypto)
}

// FileSize formats a byte count in binary units.
func FileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	return humanize.IBytes(uint64(bytes))
}

// Initials returns the upper-cased first letter of every word of name.
func Initials(name string) string {
	var b strings.Builder
	for _, part := range strings.Fields(name) {
		r, _ := utf8.DecodeRuneInString(part)
		b.WriteRune(unicode.ToUpper(r))
	}
	if b.Len() == 0 {
		return "?"
	}
	return b.String()
}

var (
	strictOnce sync.Once
	strict     *bluemonday.Policy
	ugcOnce    sync.Once
	ugc        *bluemonday.Policy
)

// PlainText strips all markup, for terminal output.
func PlainText(s string) string {
	strictOnce.Do(func() { strict = bluemonday.StrictPolicy() })
	return html.UnescapeString(strict.Sanitize(s))
}

// SafeHTML keeps basic formatting and drops scripts, handlers and unsafe
// links.
func SafeHTML(s string) string {
	ugcOnce.Do(func() { ugc = bluemonday.UGCPolicy() })
	return ugc.Sanitize(s)
}
