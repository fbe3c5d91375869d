package main

import (
	"chat-client/domain"
	"fmt"
	"io"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

func senderLabel(m domain.Message, local string) string {
	if m.SenderID == local {
		return "you"
	}
	return m.SenderID
}

// statusLabel shows the moderation verdict; allowed messages carry no label.
func statusLabel(m domain.Message) string {
	label := string(m.Status)
	if m.RiskScore != nil {
		label = fmt.Sprintf("%s %.2f", label, *m.RiskScore)
	}
	switch m.Status {
	case domain.StatusFlagged:
		return color.New(color.FgYellow).Render(label)
	case domain.StatusBlocked:
		return color.New(color.FgRed, color.OpBold).Render(label)
	default:
		return ""
	}
}

func formatMessage(m domain.Message, local string) string {
	line := fmt.Sprintf("[%s] %s: %s",
		m.CreatedAt.Local().Format("15:04"),
		color.New(color.FgCyan).Render(senderLabel(m, local)),
		m.Content,
	)
	if status := statusLabel(m); status != "" {
		line += "  (" + status + ")"
	}
	return line
}

func renderHistory(out io.Writer, messages []domain.Message, local string) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Time", "From", "Status", "Score", "Content"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetCenterSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")

	for _, m := range messages {
		status := string(m.Status)
		if m.Pending {
			status = "sending"
		}
		score := "-"
		if m.RiskScore != nil {
			score = fmt.Sprintf("%.2f", *m.RiskScore)
		}
		table.Append([]string{
			m.CreatedAt.Local().Format("2006-01-02 15:04"),
			senderLabel(m, local),
			status,
			score,
			m.Content,
		})
	}
	table.Render()
}
