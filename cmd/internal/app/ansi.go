package app

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// ANSI escape sequences used by the pretty log handler.
const (
	ansiReset   = "\x1b[0m"
	ansiBright  = "\x1b[1m"
	ansiDim     = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// stripANSI removes escape sequences so visible length can be measured.
func stripANSI(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

// visualLen is the on-screen rune count of s, ignoring color codes.
func visualLen(s string) int {
	return len([]rune(stripANSI(s)))
}

// truncateVisible caps s at width visible runes, marking the cut with an
// ellipsis. Colored strings are returned stripped when they need cutting;
// correctness of escape pairing beats keeping the color.
func truncateVisible(s string, width int) string {
	if width <= 0 || visualLen(s) <= width {
		return s
	}
	plain := []rune(stripANSI(s))
	if width == 1 {
		return "…"
	}
	return string(plain[:width-1]) + "…"
}

// wrapSegments joins segments with sep up to width visible columns per line.
// Continuation lines are prefixed with contPrefix. Segments wider than a full
// line are truncated rather than split mid-token.
func wrapSegments(segments []string, sep string, width int, contPrefix string) []string {
	var lines []string
	cur := ""
	for _, s := range segments {
		if s == "" {
			continue
		}
		s = truncateVisible(s, width)
		if cur == "" {
			cur = s
			continue
		}
		cand := cur + sep + s
		if width <= 0 || visualLen(cand) <= width {
			cur = cand
			continue
		}
		lines = append(lines, cur)
		cur = truncateVisible(contPrefix+s, width)
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

func colorizeHTTPMethod(method string, color bool) string {
	if !color {
		return method
	}
	switch method {
	case "GET":
		return ansiGreen + method + ansiReset
	case "POST", "PUT", "PATCH":
		return ansiYellow + method + ansiReset
	case "DELETE":
		return ansiRed + method + ansiReset
	default:
		return ansiCyan + method + ansiReset
	}
}

func colorizeStatusCode(status int, color bool) string {
	s := strconv.Itoa(status)
	if !color {
		return s
	}
	switch {
	case status >= 500:
		return ansiRed + s + ansiReset
	case status >= 400:
		return ansiYellow + s + ansiReset
	case status >= 300:
		return ansiCyan + s + ansiReset
	default:
		return ansiGreen + s + ansiReset
	}
}

func colorizeStatusClass(class string, color bool) string {
	if !color {
		return class
	}
	switch class {
	case "5xx":
		return ansiRed + class + ansiReset
	case "4xx":
		return ansiYellow + class + ansiReset
	case "3xx":
		return ansiCyan + class + ansiReset
	default:
		return ansiGreen + class + ansiReset
	}
}

func colorizeDurationMS(ms int64, color bool) string {
	s := strconv.FormatInt(ms, 10) + "ms"
	if !color {
		return s
	}
	switch {
	case ms >= 1000:
		return ansiRed + s + ansiReset
	case ms >= 250:
		return ansiYellow + s + ansiReset
	default:
		return ansiDim + s + ansiReset
	}
}

func colorizeResult(result string, color bool) string {
	if !color {
		return result
	}
	switch result {
	case "server_error":
		return ansiRed + result + ansiReset
	case "client_error":
		return ansiYellow + result + ansiReset
	default:
		return ansiGreen + result + ansiReset
	}
}

func valueToInt64(v slog.Value) (int64, bool) {
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		return int64(v.Uint64()), true
	case slog.KindFloat64:
		return int64(v.Float64()), true
	case slog.KindString:
		n, err := strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
