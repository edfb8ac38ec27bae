package utils

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	PriceDecimals  = 8
	ChangeDecimals = 2
	FiatDecimals   = 2
)

func TruncateString(str string, num int) string {
	if len(str) <= num {
		return str
	}
	if num <= 3 {
		return str[:num]
	}
	return str[0:num-3] + "..."
}

// ShortAddress keeps the head and tail of an address, e.g. "0x1234…abcd".
func ShortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

func AddCommas(s string) string {
	if len(s) == 0 {
		return s
	}
	parts := strings.Split(s, ".")
	integerPart := parts[0]
	sign := ""
	if strings.HasPrefix(integerPart, "-") {
		sign = "-"
		integerPart = integerPart[1:]
	}

	n := len(integerPart)
	if n <= 3 {
		return s
	}

	var result strings.Builder
	result.WriteString(sign)
	remainder := n % 3
	if remainder > 0 {
		result.WriteString(integerPart[:remainder])
		result.WriteString(",")
	}
	for i := remainder; i < n; i += 3 {
		if i > remainder {
			result.WriteString(",")
		}
		result.WriteString(integerPart[i : i+3])
	}

	if len(parts) > 1 {
		result.WriteString(".")
		result.WriteString(parts[1])
	}
	return result.String()
}

func FormatFloat(f float64, decimals int) string {
	return AddCommas(fmt.Sprintf("%.*f", decimals, f))
}

func FormatDecimal(d decimal.Decimal, decimals int) string {
	return AddCommas(d.StringFixed(int32(decimals)))
}

// FormatPrice renders a USD price with 8 decimals and no grouping.
func FormatPrice(f float64) string {
	return strconv.FormatFloat(f, 'f', PriceDecimals, 64)
}

// FormatChange renders a 24h percentage change, or "Unknown" when absent.
func FormatChange(change *float64) string {
	if change == nil {
		return "Unknown"
	}
	return strconv.FormatFloat(*change, 'f', ChangeDecimals, 64)
}

// ParseFloat parses a numeric string, treating blanks and garbage as zero.
func ParseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
