// internal/notify/templates.go
package notify

import (
	"fmt"
	"strings"

	"media-reconciler/internal/common/config"
	"media-reconciler/internal/models"
)

// Template fields available to configured subjects and bodies. The set is
// closed: a template referencing anything else keeps the literal token.
const (
	fieldDaysLeft     = "daysLeft"
	fieldPrimaryEmail = "primaryEmail"
	fieldStreamCount  = "streamCount"
	fieldFourK        = "fourk"
	fieldOneMonth     = "oneM"
	fieldThreeMonth   = "threeM"
	fieldSixMonth     = "sixM"
	fieldTwelveMonth  = "twelveM"
)

// BuildFields assembles the substitution values for one subject on one
// server. Pricing comes from the tier matching the record's 4k flag; a
// server without that pricing block yields empty price fields.
func BuildFields(rec models.SubscriptionRecord, srv config.ServerConfig, serverKey string, daysLeft int) map[string]string {
	prices := srv.HDPrices
	fourK := "No"
	if rec.FourK {
		prices = srv.FourKPrices
		fourK = "Yes"
	}

	fields := map[string]string{
		fieldDaysLeft:     fmt.Sprintf("%d", daysLeft),
		fieldPrimaryEmail: rec.PrimaryEmail,
		fieldStreamCount:  fmt.Sprintf("%d", StreamCount(serverKey)),
		fieldFourK:        fourK,
		fieldOneMonth:     "",
		fieldThreeMonth:   "",
		fieldSixMonth:     "",
		fieldTwelveMonth:  "",
	}
	if prices != nil {
		fields[fieldOneMonth] = FormatMoney(prices.OneMonth)
		fields[fieldThreeMonth] = FormatMoney(prices.ThreeMonth)
		fields[fieldSixMonth] = FormatMoney(prices.SixMonth)
		fields[fieldTwelveMonth] = FormatMoney(prices.TwelveMonth)
	}
	return fields
}

// HasPricing reports whether the server carries the pricing block for the
// record's tier. Subjects without one are skipped rather than sent a notice
// with blank prices.
func HasPricing(rec models.SubscriptionRecord, srv config.ServerConfig) bool {
	if rec.FourK {
		return srv.FourKPrices != nil
	}
	return srv.HDPrices != nil
}

// Render substitutes {field} tokens with their values. Tokens outside the
// field set are left as-is so a typo is visible in the delivered message
// instead of silently dropped.
func Render(template string, fields map[string]string) string {
	pairs := make([]string, 0, len(fields)*2)
	for k, v := range fields {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// StreamCount derives the advertised stream count from the server key's
// trailing digit. Keys without one fall back to 2.
func StreamCount(serverKey string) int {
	if serverKey == "" {
		return 2
	}
	last := serverKey[len(serverKey)-1]
	if last >= '0' && last <= '9' {
		return int(last - '0')
	}
	return 2
}

// FormatMoney renders a configured price as a dollar amount with thousands
// grouping. Unconfigured prices render empty.
func FormatMoney(v *float64) string {
	if v == nil {
		return ""
	}
	s := fmt.Sprintf("%.2f", *v)
	dot := strings.Index(s, ".")
	whole, frac := s[:dot], s[dot:]

	neg := strings.HasPrefix(whole, "-")
	if neg {
		whole = whole[1:]
	}
	var sb strings.Builder
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(digit)
	}

	out := "$" + sb.String() + frac
	if neg {
		out = "-" + out
	}
	return out
}
