package email

import (
	"fmt"
	"html"
	"strings"
	"time"

	"service_entry_reporter/internal/domain/report"
)

// BuildSubject combines the categories that fired into one subject line,
// e.g. "Service Entry Report - Weekly & Monthly - 20251201". Forced-mode
// runs have no category and get "Service Entry Report - 20251201".
func BuildSubject(title string, fired []report.Category, dateString string) string {
	labels := make([]string, 0, len(fired))
	for _, c := range fired {
		if c != "" {
			labels = append(labels, categoryLabel(c))
		}
	}
	if len(labels) == 0 {
		return fmt.Sprintf("%s - %s", title, dateString)
	}
	return fmt.Sprintf("%s - %s - %s", title, strings.Join(labels, " & "), dateString)
}

// BuildBodies returns the plain-text body and its HTML alternative, one
// block per produced section. ASCII only.
func BuildBodies(title string, sections []report.Section, generatedAt time.Time, runID string) (string, string) {
	gen := generatedAt.Format("2006-01-02 15:04:05 MST")

	var text strings.Builder
	fmt.Fprintf(&text, "%s\n\n", title)
	for _, s := range sections {
		fmt.Fprintf(&text, "%s (%s): %d rows\n", s.Title, s.WindowDescription, s.RowCount)
	}
	fmt.Fprintf(&text, "\nTime Generated: %s\nRun ID: %s\n\n", gen, runID)
	text.WriteString("The report has been generated successfully. The file is attached.\n\n")
	text.WriteString("Please note:\n")
	text.WriteString("- This report was generated automatically.\n")
	text.WriteString("- For questions about process, completeness, or data accuracy, email ap_operations@health.qld.gov.au\n\n")
	text.WriteString("Thank you,\nAP Operations, Queensland Health\n")

	var rows strings.Builder
	for _, s := range sections {
		fmt.Fprintf(&rows, "          <tr>\n            <th>%s</th>\n            <td>%s</td>\n            <td>%d rows</td>\n          </tr>\n",
			html.EscapeString(s.Title), html.EscapeString(s.WindowDescription), s.RowCount)
	}
	htmlBody := fmt.Sprintf(htmlShell,
		html.EscapeString(title),
		html.EscapeString(title),
		rows.String(),
		html.EscapeString(gen),
		html.EscapeString(runID),
	)
	return text.String(), htmlBody
}

func categoryLabel(c report.Category) string {
	s := string(c)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

const htmlShell = `<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8">
    <title>%s</title>
    <style>
      body { margin: 0; padding: 0; background-color: #f9fafb; }
      .container { font-family: Arial, Helvetica, sans-serif; font-size: 14px; color: #1f2937; padding: 16px; }
      .card { background-color: #ffffff; border: 1px solid #e5e7eb; border-radius: 6px; padding: 16px; }
      h2 { margin: 0 0 8px 0; font-size: 18px; color: #111827; }
      p { margin: 8px 0; line-height: 1.45; }
      table { border-collapse: collapse; width: 100%%; margin: 12px 0 16px 0; }
      th, td { border: 1px solid #e5e7eb; padding: 8px; text-align: left; font-size: 13px; }
      .note { background-color: #f3f4f6; border: 1px solid #e5e7eb; border-radius: 4px; padding: 10px; margin-top: 12px; }
      .footer { margin-top: 16px; font-size: 12px; color: #6b7280; }
      a { color: #2563eb; text-decoration: none; }
    </style>
  </head>
  <body>
    <div class="container">
      <div class="card">
        <h2>%s</h2>
        <p>The report has been generated successfully. The file is attached.</p>

        <table role="presentation" aria-hidden="true">
%s        </table>

        <p>Time Generated: %s<br>Run ID: %s</p>

        <div class="note">
          <p><strong>Please note:</strong></p>
          <ul style="margin: 6px 0 0 18px;">
            <li>This report was generated automatically.</li>
            <li>For questions about process, completeness, or data accuracy, email <a href="mailto:ap_operations@health.qld.gov.au">ap_operations@health.qld.gov.au</a>.</li>
          </ul>
        </div>

        <p class="footer">
          Thank you,<br>
          AP Operations, Queensland Health
        </p>
      </div>
    </div>
  </body>
</html>
`
