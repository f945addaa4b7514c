package channels

import (
	"fmt"
	"html"
	"strings"

	"github.com/charlesng35/salesalert/internal/alerting"
)

// Subject is the one-line summary used by email and chat.
func Subject(n alerting.Notification) string {
	return fmt.Sprintf("[%s] %s", strings.ToUpper(string(n.Priority)), n.Title)
}

// ShortText fits a notification into a single SMS segment where possible.
func ShortText(n alerting.Notification) string {
	text := Subject(n)
	if n.Message != "" {
		text += ": " + n.Message
	}
	const limit = 320
	if len(text) > limit {
		text = text[:limit-3] + "..."
	}
	return text
}

// PlainBody renders the notification as plain text.
func PlainBody(n alerting.Notification) string {
	var b strings.Builder
	b.WriteString(n.Title)
	b.WriteString("\n\n")
	if n.Message != "" {
		b.WriteString(n.Message)
		b.WriteString("\n\n")
	}
	for _, action := range n.Actions {
		b.WriteString("- ")
		b.WriteString(action.Label)
		if action.URL != "" {
			b.WriteString(": ")
			b.WriteString(action.URL)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nPriority: %s | Category: %s\n", n.Priority, n.Category)
	return b.String()
}

// HTMLBody renders the notification as a minimal HTML document.
func HTMLBody(n alerting.Notification) string {
	var b strings.Builder
	b.WriteString("<h2>")
	b.WriteString(html.EscapeString(n.Title))
	b.WriteString("</h2>")
	if n.Message != "" {
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(n.Message))
		b.WriteString("</p>")
	}
	if len(n.Actions) > 0 {
		b.WriteString("<ul>")
		for _, action := range n.Actions {
			b.WriteString("<li>")
			if action.URL != "" {
				fmt.Fprintf(&b, `<a href="%s">%s</a>`, html.EscapeString(action.URL), html.EscapeString(action.Label))
			} else {
				b.WriteString(html.EscapeString(action.Label))
			}
			b.WriteString("</li>")
		}
		b.WriteString("</ul>")
	}
	fmt.Fprintf(&b, "<p><small>Priority: %s | Category: %s</small></p>",
		html.EscapeString(string(n.Priority)), html.EscapeString(string(n.Category)))
	return b.String()
}
