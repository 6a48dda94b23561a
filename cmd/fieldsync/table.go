package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"fieldsync/internal/queue"
)

// statusTable renders active queue counts in lifecycle order rather than
// alphabetically, so pending reads before completed.
func statusTable(stats map[queue.Status]int) string {
	tw := newWriter()
	tw.AppendHeader(table.Row{"Status", "Count"})
	for _, status := range queue.AllStatuses() {
		count, ok := stats[status]
		if !ok {
			continue
		}
		tw.AppendRow(table.Row{string(status), count})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

func itemsTable(items []*queue.Item) string {
	now := time.Now().UTC()
	tw := newWriter()
	tw.AppendHeader(table.Row{"ID", "Action", "Account", "Status", "Services", "Retries", "Age"})
	for _, item := range items {
		tw.AppendRow(table.Row{
			shortID(item.LocalID),
			item.Payload.ActionType,
			shortID(item.Payload.AccountAddress),
			string(item.Status),
			serviceSummary(item),
			item.TotalRetryCount,
			formatAge(item.Age(now)),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 6, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 7, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

// servicesTable renders the per-service delivery detail for one item.
func servicesTable(item *queue.Item) string {
	tw := newWriter()
	tw.AppendHeader(table.Row{"Service", "Status", "Fast", "Slow", "Result", "Error"})
	for _, name := range []queue.ServiceName{queue.ServiceLedger, queue.ServiceProof, queue.ServiceLinking} {
		state := item.Service(name)
		tw.AppendRow(table.Row{
			string(name),
			string(state.Status),
			state.InitialRetryCount,
			state.SlowRetryCount,
			shortID(state.ResultID),
			state.Error,
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

func newWriter() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	return tw
}

// serviceSummary compresses the three sub-states into L/P/K markers, for
// example "L:ok P:slow K:-".
func serviceSummary(item *queue.Item) string {
	parts := []string{
		"L:" + serviceMarker(item.Ledger),
		"P:" + serviceMarker(item.Proof),
		"K:" + serviceMarker(item.Linking),
	}
	return strings.Join(parts, " ")
}

func serviceMarker(state queue.ServiceState) string {
	switch state.Status {
	case queue.ServiceCompleted:
		return "ok"
	case queue.ServiceFailed:
		if state.InSlowMode() {
			return "slow"
		}
		return "fail"
	case queue.ServiceOffline:
		return "off"
	case queue.ServiceProcessing:
		return "run"
	case queue.ServiceIncomplete:
		return "-"
	default:
		return "wait"
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func formatAge(age time.Duration) string {
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%.1fh", age.Hours())
	default:
		return fmt.Sprintf("%.1fd", age.Hours()/24)
	}
}
