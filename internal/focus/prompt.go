package focus

import (
	"fmt"
	"strings"

	"github.com/actionsum/nudge/internal/models"
)

const maxSnippet = 200

// PromptInput is everything the reasoning service sees for one cycle.
type PromptInput struct {
	TriggerApp      string
	Timeline        []models.TimelineEntry
	Snapshot        *models.TabSnapshot
	Metrics         models.ObjectiveMetrics
	Capabilities    []string
	EvidenceMinimum int
}

// BuildPrompt renders the judgment request.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "The user has been concentrating on %q. Decide whether they are focused on one specific subject that deserves a proactive offer of help.\n\n", in.TriggerApp)

	b.WriteString("Timeline (oldest first):\n")
	for i, e := range in.Timeline {
		fmt.Fprintf(&b, "%d. [%s] %s | %s", i+1, e.Timestamp.Format("15:04:05"), e.App, e.Title)
		if e.IsRevisit {
			b.WriteString(" (revisit)")
		}
		if e.AXContext != "" {
			fmt.Fprintf(&b, " | pointer: %s", snippet(e.AXContext))
		}
		if e.ClipboardContent != "" {
			fmt.Fprintf(&b, " | copied: %s", snippet(e.ClipboardContent))
		}
		b.WriteByte('\n')
	}

	if in.Snapshot != nil && len(in.Snapshot.Tabs) > 0 {
		visited := make(map[string]bool, len(in.Timeline))
		for _, e := range in.Timeline {
			visited[e.Title] = true
		}
		fmt.Fprintf(&b, "\nOpen tabs in %s:\n", in.Snapshot.AppName)
		for _, tab := range in.Snapshot.Tabs {
			b.WriteString("- ")
			if visited[tab.Title] {
				b.WriteString("[browsed] ")
			}
			if tab.IsActive {
				b.WriteString("[current] ")
			}
			b.WriteString(tab.Title)
			b.WriteByte('\n')
		}
	}

	m := in.Metrics
	b.WriteString("\nObjective metrics:\n")
	fmt.Fprintf(&b, "- revisit_count: %d (bar: >= 1)\n", m.RevisitCount)
	fmt.Fprintf(&b, "- browsed_tab_ratio: %.0f%% (bar: >= 40%%)\n", m.BrowsedTabRatio*100)
	fmt.Fprintf(&b, "- clipboard_relevance: %d (bar: >= 1)\n", m.ClipboardRelevance)
	fmt.Fprintf(&b, "- trigger_app_focus: %.0f%% (bar: >= 60%%)\n", m.TriggerAppFocus*100)

	if len(in.Capabilities) > 0 {
		fmt.Fprintf(&b, "\nAlready installed capabilities: %s\n", strings.Join(in.Capabilities, ", "))
	}

	fmt.Fprintf(&b, `
Rules:
- Use "high" only if the subject is specific and nameable, you can suggest a concrete action, and at least %d of the four metrics clear their bar.
- Otherwise use "medium", or set "detected" to false if there is no clear subject.
- If an installed capability fits, name it in "installedCapability". If a new one would help, list search terms in "searchKeywords".

Reply with exactly one JSON object:
{"detected": true|false, "confidence": "high"|"medium", "theme": "", "observation": "", "insight": "", "offer": "", "installedCapability": "", "searchKeywords": []}
`, in.EvidenceMinimum)

	return b.String()
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= maxSnippet {
		return s
	}
	return string(r[:maxSnippet]) + "..."
}
