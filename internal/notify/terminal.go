package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

const (
	colorReset   = "\033[0m"
	colorRed     = "\033[31m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorMagenta = "\033[35m"
	colorWhite   = "\033[37m"
)

// TerminalNotifier prints notifications as single lines, optionally
// ringing the terminal bell.
type TerminalNotifier struct {
	w            io.Writer
	mu           sync.Mutex
	colorEnabled bool
	bellEnabled  bool
}

// NewTerminalNotifier creates a TerminalNotifier writing to w.
func NewTerminalNotifier(w io.Writer, colorEnabled bool) *TerminalNotifier {
	return &TerminalNotifier{w: w, colorEnabled: colorEnabled}
}

// SetBellEnabled enables or disables the terminal bell.
func (tn *TerminalNotifier) SetBellEnabled(enabled bool) {
	tn.mu.Lock()
	defer tn.mu.Unlock()
	tn.bellEnabled = enabled
}

// Name returns the name of the notifier.
func (tn *TerminalNotifier) Name() string {
	return "terminal"
}

// IsEnabled returns whether the notifier is enabled.
func (tn *TerminalNotifier) IsEnabled() bool {
	return tn.w != nil
}

// Send writes the formatted notification.
func (tn *TerminalNotifier) Send(ctx context.Context, n Notification) error {
	tn.mu.Lock()
	defer tn.mu.Unlock()

	line := FormatNotification(n, tn.colorEnabled)
	if tn.bellEnabled && (n.Type == NotificationSignal || n.Type == NotificationError) {
		line = "\a" + line
	}
	_, err := fmt.Fprintln(tn.w, line)
	return err
}

// FormatNotification formats a notification for terminal display.
func FormatNotification(n Notification, colorEnabled bool) string {
	var sb strings.Builder

	var indicator, color string
	switch n.Type {
	case NotificationSignal:
		indicator = "SIGNAL"
		color = colorYellow
		if side, ok := n.Data["side"]; ok {
			switch fmt.Sprint(side) {
			case "BUY":
				color = colorGreen
			case "SELL":
				color = colorRed
			}
		}
	case NotificationTrade:
		indicator = "TRADE"
		color = colorMagenta
	case NotificationError:
		indicator = "ERROR"
		color = colorRed
	default:
		indicator = "INFO"
		color = colorWhite
	}

	reset := colorReset
	if !colorEnabled {
		color, reset = "", ""
	}

	sb.WriteString(fmt.Sprintf("%s[%s] %s%s", color, n.Timestamp.Format("15:04:05"), indicator, reset))
	if n.Symbol != "" {
		sb.WriteString(" | " + n.Symbol)
	}
	sb.WriteString(" | " + n.Title)

	// Collapse the multi-line message body.
	for _, line := range strings.Split(n.Message, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			sb.WriteString(" | " + line)
		}
	}

	return sb.String()
}
