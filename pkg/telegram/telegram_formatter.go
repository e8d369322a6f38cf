package telegram

import (
	"fmt"
	"strings"
	"time"

	"k-stock-insight/internal/entity"
	"k-stock-insight/internal/ingestor/dto"
)

const maxMessageLen = 4090

// FormatRunSummaryForTelegram renders a run summary as one or more Markdown messages,
// each within Telegram's message size limit.
func FormatRunSummaryForTelegram(summary *dto.RunSummary) []string {
	var messages []string
	var current strings.Builder
	part := 1

	startNewPart := func() {
		current.Reset()
		if part == 1 {
			current.WriteString(fmt.Sprintf("%s *Ingestion %s: %s*\n", statusIcon(summary.Status), summary.Mode, summary.Status))
			current.WriteString(fmt.Sprintf("📅 Through `%s`\n", summary.Yesterday.Format("2006-01-02")))
			current.WriteString(fmt.Sprintf("🧾 Instruments %d, sectors %d\n", summary.Instruments, summary.Sectors))
			current.WriteString(fmt.Sprintf("⏱ Elapsed %s\n\n", summary.Elapsed.Round(time.Second)))
			return
		}
		current.WriteString(fmt.Sprintf("---*Ingestion summary part %d*---\n\n", part))
	}
	startNewPart()

	for _, t := range summary.Tables {
		entry := formatTableResult(t)
		if current.Len()+len(entry) > maxMessageLen {
			messages = append(messages, current.String())
			part++
			startNewPart()
		}
		current.WriteString(entry)
	}

	messages = append(messages, current.String())
	return messages
}

func formatTableResult(t dto.TableResult) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s *%s* (%s)\n", statusIcon(t.Status), t.Table, t.Status))
	if t.Status == entity.RunStatusSkipped || t.Status == entity.RunStatusFailed {
		b.WriteString(fmt.Sprintf("  _%s_\n\n", t.SkipReason))
		return b.String()
	}
	if t.Window != nil {
		b.WriteString(fmt.Sprintf("  Window: `%s`\n", t.Window.String()))
	}
	b.WriteString(fmt.Sprintf("  Entities: %d/%d (empty %d, failed %d)\n", t.EntitiesProcessed, t.EntitiesTotal, t.EntitiesEmpty, t.EntitiesFailed))
	b.WriteString(fmt.Sprintf("  Records: %d written, %d lost\n", t.RecordsWritten, t.RecordsLost))
	if t.TransformWarnings > 0 || t.CommitErrors > 0 {
		b.WriteString(fmt.Sprintf("  Warnings: %d, commit errors: %d\n", t.TransformWarnings, t.CommitErrors))
	}
	if len(t.FailedEntities) > 0 {
		b.WriteString(fmt.Sprintf("  Failed: `%s`\n", strings.Join(t.FailedEntities, ", ")))
	}
	if t.Interrupted {
		b.WriteString("  ⚠️ Interrupted\n")
	}
	b.WriteString("\n")
	return b.String()
}

func statusIcon(status entity.RunStatus) string {
	switch status {
	case entity.RunStatusCompleted:
		return "🟢"
	case entity.RunStatusPartial:
		return "🟡"
	case entity.RunStatusFailed:
		return "🔴"
	default:
		return "⚪"
	}
}
