package cmd

import (
	"io"
	"time"

	"mcphub/internal/registry"

	"github.com/jedib0t/go-pretty/v6/table"
)

// renderServiceTable prints the current service status view.
func renderServiceTable(out io.Writer, services []registry.ServiceView) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"SERVICE", "TRANSPORT", "ENDPOINT", "STATUS", "TOOLS", "LAST SUCCESS", "FAILURES"})

	for _, svc := range services {
		lastSuccess := "never"
		if !svc.LastSuccessAt.IsZero() {
			lastSuccess = svc.LastSuccessAt.Format(time.RFC3339)
		}
		tw.AppendRow(table.Row{
			svc.ID,
			string(svc.Transport),
			svc.Endpoint,
			svc.Status.String(),
			len(svc.Tools),
			lastSuccess,
			svc.ConsecutiveFailures,
		})
	}
	tw.Render()
}
