package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"ragchat/internal/models"
)

func welcomeText() string {
	var content strings.Builder
	content.WriteString("Welcome to ragchat!\n")
	content.WriteString("Ask a question about your documents to start a conversation.\n\n")
	content.WriteString(HelpStyle.Render("Controls:\n"))
	content.WriteString(HelpStyle.Render("• Tab - Switch between sidebar and chat\n"))
	content.WriteString(HelpStyle.Render("• Enter - Send message / Open conversation\n"))
	content.WriteString(HelpStyle.Render("• Ctrl+N - New conversation\n"))
	content.WriteString(HelpStyle.Render("• Ctrl+R - Rename selected conversation\n"))
	content.WriteString(HelpStyle.Render("• Ctrl+D - Delete selected conversation\n"))
	content.WriteString(HelpStyle.Render("• Ctrl+C - Quit\n\n"))
	return content.String()
}

// renderTranscript renders messages for the viewport. AI replies go
// through the markdown renderer when one is available.
func renderTranscript(msgs []models.Message, md *glamour.TermRenderer) string {
	var content strings.Builder

	for _, msg := range msgs {
		var header string
		switch msg.Sender {
		case models.SenderUser:
			header = UserStyle.Render("You")
		case models.SenderAI:
			header = AssistantStyle.Render("Assistant")
		default:
			header = SystemStyle.Render("System")
		}
		if !msg.Time.IsZero() {
			header += " " + TimeStyle.Render("["+msg.Time.Local().Format("15:04:05")+"]")
		}

		body := msg.Text
		if msg.Sender == models.SenderAI && md != nil {
			if rendered, err := md.Render(msg.Text); err == nil {
				body = strings.TrimSpace(rendered)
			}
		}

		content.WriteString(MessageStyle.Render(header + "\n" + body + renderSources(msg.Sources) + "\n"))
		content.WriteString("\n")
	}

	return content.String()
}

func renderSources(sources []string) string {
	if len(sources) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n")
	for i, src := range sources {
		b.WriteString("\n" + SourceStyle.Render(fmt.Sprintf("[%d] %s", i+1, src)))
	}
	return b.String()
}
