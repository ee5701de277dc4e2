package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Trina-Dasgupta/portfolio-admin/internal/backend"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/tracker"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// stdout is swapped in tests.
var stdout io.Writer = os.Stdout

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describeError prefers the backend's own message for rejected requests.
func describeError(err error) string {
	var be *backend.BackendError
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	return err.Error()
}

// formatValue renders a field value on one line.
func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "(empty)"
	case string:
		if t == "" {
			return "(empty)"
		}
		if len(t) > 60 {
			t = t[:57] + "..."
		}
		return strings.ReplaceAll(t, "\n", " ")
	case bool:
		return fmt.Sprintf("%t", t)
	case tracker.ImageRef:
		return formatImage(t)
	case []tracker.ImageRef:
		parts := make([]string, len(t))
		for i, img := range t {
			parts[i] = formatImage(img)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []string:
		return "[" + strings.Join(t, ", ") + "]"
	case []tracker.Pair:
		parts := make([]string, len(t))
		for i, p := range t {
			parts[i] = p.Title + "=" + p.Value
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []tracker.Language:
		parts := make([]string, len(t))
		for i, l := range t {
			parts[i] = fmt.Sprintf("%s %g%%", l.Name, l.Percent)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func formatImage(r tracker.ImageRef) string {
	if r.Pending() {
		return "pending:" + r.File.Name
	}
	if r.URL == "" {
		return "(none)"
	}
	return r.URL
}
