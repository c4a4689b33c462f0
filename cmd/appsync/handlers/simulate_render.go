package handlers

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	appsyncv1alpha1 "github.com/imamik/appsync/api/v1alpha1"
)

var (
	colorGreen  = lipgloss.Color("#22c55e")
	colorYellow = lipgloss.Color("#eab308")
	colorRed    = lipgloss.Color("#ef4444")
	colorBlue   = lipgloss.Color("#3b82f6")
	colorDim    = lipgloss.Color("#6b7280")
	colorWhite  = lipgloss.Color("#f9fafb")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorDim)
)

// renderSimulation produces a lipgloss-styled simulation summary.
func renderSimulation(result *simulationResult) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(titleStyle.Render("  appsync simulate"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("  " + strings.Repeat("═", 30)))
	b.WriteString("\n\n")

	renderSection(&b, "ManagedApps")
	for _, app := range result.Apps {
		fmt.Fprintf(&b, "  %-30s %s  %s\n",
			app.Namespace+"/"+app.Name,
			phaseStyle(app.Phase).Render(fmt.Sprintf("%-11s", app.Phase)),
			dimStyle.Render(app.Message))
	}

	b.WriteString("\n")
	renderObjects(&b, "Dependents", result.Objects)

	if result.Deleted {
		b.WriteString("\n")
		renderObjects(&b, "Remaining after delete", result.Remaining)
	}

	if len(result.Events) > 0 {
		b.WriteString("\n")
		renderSection(&b, "Events")
		for _, ev := range result.Events {
			b.WriteString("  " + ev + "\n")
		}
	}

	return b.String()
}

func renderSection(b *strings.Builder, title string) {
	b.WriteString(sectionStyle.Render("  " + title))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("  " + strings.Repeat("─", 50)))
	b.WriteString("\n")
}

func renderObjects(b *strings.Builder, title string, objs []objectSummary) {
	renderSection(b, title)
	if len(objs) == 0 {
		b.WriteString(dimStyle.Render("  (none)"))
		b.WriteString("\n")
		return
	}
	for _, obj := range objs {
		fmt.Fprintf(b, "  %-10s %-30s %s\n", obj.Kind, obj.Namespace+"/"+obj.Name, dimStyle.Render("owner: "+ownerOrDash(obj.Owner)))
	}
}

func ownerOrDash(owner string) string {
	if owner == "" {
		return "-"
	}
	return owner
}

// phaseStyle colors a phase by how healthy it is.
func phaseStyle(phase appsyncv1alpha1.ManagedAppPhase) lipgloss.Style {
	switch phase {
	case appsyncv1alpha1.ManagedAppPhaseReady:
		return lipgloss.NewStyle().Foreground(colorGreen)
	case appsyncv1alpha1.ManagedAppPhaseFailed:
		return lipgloss.NewStyle().Foreground(colorRed)
	case appsyncv1alpha1.ManagedAppPhasePending, appsyncv1alpha1.ManagedAppPhaseProgressing:
		return lipgloss.NewStyle().Foreground(colorYellow)
	default:
		return dimStyle
	}
}
