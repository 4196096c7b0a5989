// Package metrics provides the numeric primitives every insight is built on:
// safe amount coercion plus currency and percentage rendering.
//
// The same formatters are used by the aggregation, recommendation, explanation
// and approval layers so a value shown twice in one response renders identically.
package metrics

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// CurrencySymbol prefixes every formatted amount
const CurrencySymbol = "$"

// CoerceAmount converts an untyped value to float64.
// nil, booleans, non-numeric strings, NaN and infinities become 0.0.
// Negative values are preserved.
func CoerceAmount(value any) float64 {
	switch v := value.(type) {
	case nil:
		return 0
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case int:
		return float64(v)
	case int8:
		return float64(v)
	case int16:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	case uint8:
		return float64(v)
	case uint16:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	case json.Number:
		return parseAmount(v.String())
	case string:
		return parseAmount(v)
	case decimal.Decimal:
		return finite(v.InexactFloat64())
	case *float64:
		if v == nil {
			return 0
		}
		return finite(*v)
	default:
		return 0
	}
}

func parseAmount(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return finite(f)
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// FormatCurrency renders an amount as "$1,234.56".
// Negative amounts carry the sign before the symbol ("-$500.00");
// nil or invalid input renders as "$0.00".
func FormatCurrency(value any) string {
	rounded := decimal.NewFromFloat(CoerceAmount(value)).Round(2)
	if rounded.Sign() < 0 {
		return "-" + CurrencySymbol + groupThousands(rounded.Abs().StringFixed(2))
	}
	return CurrencySymbol + groupThousands(rounded.StringFixed(2))
}

// FormatAmount renders an amount with thousands separators and two decimals
// but without the currency symbol. Used when showing the inputs of a ratio.
func FormatAmount(amount float64) string {
	rounded := decimal.NewFromFloat(finite(amount)).Round(2)
	if rounded.Sign() < 0 {
		return "-" + groupThousands(rounded.Abs().StringFixed(2))
	}
	return groupThousands(rounded.StringFixed(2))
}

// FormatPercentage renders part/whole as a percentage with one decimal.
// A zero whole yields "0.0%".
func FormatPercentage(part, whole float64) string {
	if whole == 0 {
		return "0.0%"
	}
	return strconv.FormatFloat(finite(part/whole*100), 'f', 1, 64) + "%"
}

// FormatPercent renders an already computed percentage with one decimal.
func FormatPercent(pct float64) string {
	return strconv.FormatFloat(finite(pct), 'f', 1, 64) + "%"
}

// groupThousands inserts commas into the integer part of an unsigned fixed-point string.
func groupThousands(fixed string) string {
	intPart, frac, hasFrac := strings.Cut(fixed, ".")
	if len(intPart) <= 3 {
		return fixed
	}

	var sb strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		sb.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(intPart[i : i+3])
	}
	if hasFrac {
		sb.WriteByte('.')
		sb.WriteString(frac)
	}
	return sb.String()
}
