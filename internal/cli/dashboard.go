package cli

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/alphaloop/alphaloop/internal/observability"
)

// Dashboard panel indices.
const (
	panelResources = iota
	panelLoop
	panelAlerts
	panelCount
)

// dashboardRefresh is how often the dashboard re-reads monitoring state.
const dashboardRefresh = 2 * time.Second

type dashboardModel struct {
	activePanel int
	width       int
	height      int

	// Data.
	resources *observability.ResourceSnapshot
	loop      loopSnapshot
	alerts    []alertRow

	loading bool
}

type loopSnapshot struct {
	iteration     int
	successRate   float64
	hasRate       bool
	championScore float64
	hasChampion   bool
	staleness     int
	hasStaleness  bool
	diversity     float64
	hasDiversity  bool
	orphaned      int
}

type alertRow struct {
	severity string
	message  string
}

// dataLoadedMsg carries refreshed data back to the model.
type dataLoadedMsg struct {
	resources *observability.ResourceSnapshot
	loop      loopSnapshot
	alerts    []alertRow
}

type tickMsg time.Time

// Style definitions.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	activePanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(1, 2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			MarginBottom(1)

	severityCritical = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	severityWarning  = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))

	gaugeOK  = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	gaugeHot = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newDashboardModel() dashboardModel {
	return dashboardModel{activePanel: panelResources, loading: true}
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(loadData, scheduleTick())
}

func scheduleTick() tea.Cmd {
	return tea.Tick(dashboardRefresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.activePanel = (m.activePanel + 1) % panelCount
			return m, nil
		case "shift+tab":
			m.activePanel = (m.activePanel - 1 + panelCount) % panelCount
			return m, nil
		case "r":
			m.loading = true
			return m, loadData
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		return m, tea.Batch(loadData, scheduleTick())

	case dataLoadedMsg:
		m.loading = false
		m.resources = msg.resources
		m.loop = msg.loop
		m.alerts = msg.alerts
		return m, nil
	}

	return m, nil
}

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Render(" alphaloop monitor ")
	help := helpStyle.Render("tab: switch panel | r: refresh | q: quit")

	if m.loading && m.resources == nil {
		return fmt.Sprintf("%s\n\n  Loading data...\n\n%s", title, help)
	}

	resPanel := m.renderResourcesPanel()
	loopPanel := m.renderLoopPanel()
	alertsPanel := m.renderAlertsPanel()

	availableWidth := m.width - 2

	var body string
	if availableWidth > 120 {
		colWidth := availableWidth / 3
		resPanel = m.applyPanelStyle(panelResources, resPanel, colWidth-4)
		loopPanel = m.applyPanelStyle(panelLoop, loopPanel, colWidth-4)
		alertsPanel = m.applyPanelStyle(panelAlerts, alertsPanel, colWidth-4)
		body = lipgloss.JoinHorizontal(lipgloss.Top, resPanel, loopPanel, alertsPanel)
	} else {
		panelWidth := availableWidth - 4
		if panelWidth < 20 {
			panelWidth = 20
		}
		resPanel = m.applyPanelStyle(panelResources, resPanel, panelWidth)
		loopPanel = m.applyPanelStyle(panelLoop, loopPanel, panelWidth)
		alertsPanel = m.applyPanelStyle(panelAlerts, alertsPanel, panelWidth)
		body = lipgloss.JoinVertical(lipgloss.Left, resPanel, loopPanel, alertsPanel)
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, body, help)
}

func (m dashboardModel) applyPanelStyle(panel int, content string, width int) string {
	style := panelStyle
	if m.activePanel == panel {
		style = activePanelStyle
	}
	return style.Width(width).Render(content)
}

func (m dashboardModel) renderResourcesPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Resources"))
	b.WriteString("\n")

	if m.resources == nil {
		b.WriteString("  No sample collected yet.")
		return b.String()
	}

	r := m.resources
	b.WriteString(renderGauge("CPU", r.CPUPercent))
	b.WriteString(renderGauge("Memory", r.MemoryPercent))
	b.WriteString(renderGauge("Disk", r.DiskPercent))
	b.WriteString(fmt.Sprintf("\n  sampled %s", r.CollectedAt.Format("15:04:05")))
	return b.String()
}

// renderGauge renders one labeled percentage line, highlighted when hot.
func renderGauge(label string, pct float64) string {
	style := gaugeOK
	if pct >= 80 {
		style = gaugeHot
	}
	return style.Render(fmt.Sprintf("  %-8s %5.1f%%", label, pct)) + "\n"
}

func (m dashboardModel) renderLoopPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Research loop"))
	b.WriteString("\n")

	l := m.loop
	b.WriteString(fmt.Sprintf("  %-14s %d\n", "Iteration", l.iteration))
	if l.hasRate {
		b.WriteString(fmt.Sprintf("  %-14s %.2f\n", "Success rate", l.successRate))
	}
	if l.hasDiversity {
		b.WriteString(fmt.Sprintf("  %-14s %.3f\n", "Diversity", l.diversity))
	}
	if l.hasChampion {
		b.WriteString(fmt.Sprintf("  %-14s %.4f\n", "Champion", l.championScore))
	}
	if l.hasStaleness {
		b.WriteString(fmt.Sprintf("  %-14s %d\n", "Staleness", l.staleness))
	}
	b.WriteString(fmt.Sprintf("  %-14s %d\n", "Orphans", l.orphaned))
	return b.String()
}

func (m dashboardModel) renderAlertsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Alerts"))
	b.WriteString("\n")

	if len(m.alerts) == 0 {
		b.WriteString("  No active alerts.")
		return b.String()
	}

	for _, a := range m.alerts {
		sev := styleForSeverity(a.severity).Render(fmt.Sprintf("[%s]", strings.ToUpper(a.severity)))
		b.WriteString(fmt.Sprintf("  %s %s\n", sev, a.message))
	}
	b.WriteString(fmt.Sprintf("\n  Total: %d alert(s)", len(m.alerts)))
	return b.String()
}

func styleForSeverity(severity string) lipgloss.Style {
	switch strings.ToLower(severity) {
	case string(observability.SeverityCritical):
		return severityCritical
	case string(observability.SeverityWarning):
		return severityWarning
	default:
		return lipgloss.NewStyle()
	}
}

func loadData() tea.Msg {
	var result dataLoadedMsg

	if Sampler != nil {
		result.resources = Sampler.Current()
	}

	if Registry != nil {
		iter, _ := Registry.Latest(observability.MetricCurrentIteration)
		result.loop.iteration = int(iter)
		result.loop.successRate, result.loop.hasRate = Registry.SuccessRate(0)
		result.loop.championScore, result.loop.hasChampion = Registry.Latest(observability.MetricChampionScore)
		orphans, _ := Registry.Latest(observability.MetricOrphanedCount)
		result.loop.orphaned = int(orphans)
	}

	if Diversity != nil {
		result.loop.diversity, result.loop.hasDiversity = Diversity.Current()
		if Registry != nil {
			iter, _ := Registry.Latest(observability.MetricCurrentIteration)
			if s, err := Diversity.Staleness(int(iter)); err == nil {
				result.loop.staleness = s
				result.loop.hasStaleness = true
			}
		}
	}

	if Alerts != nil {
		// Pure read of the engine's retained state: rendering must never
		// move suppression timestamps or bump alert counters.
		states := Alerts.ActiveAlertStates()
		result.alerts = make([]alertRow, 0, len(states))
		for _, a := range states {
			result.alerts = append(result.alerts, alertRow{
				severity: string(a.Severity),
				message:  a.Message,
			})
		}
	}

	return result
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive TUI dashboard for loop and resource monitoring",
	Long: `Launch a live terminal dashboard showing host resources, research
loop health, and active alerts. The view refreshes every two seconds.

Navigate between panels with Tab, refresh with r, quit with q.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Registry == nil || Config == nil {
			return fmt.Errorf("app not initialized")
		}

		// The dashboard only displays; the background monitors do the
		// sampling and alert evaluation while it is open.
		if err := Sampler.Start(Config.Sampler.Interval); err != nil {
			return err
		}
		defer Sampler.Stop()
		if err := Lifecycle.Start(Config.Sandbox.RescanInterval); err != nil {
			return err
		}
		defer Lifecycle.Stop()
		if err := Alerts.Start(Config.Alerts.EvaluateInterval); err != nil {
			return err
		}
		defer Alerts.Stop()

		p := tea.NewProgram(newDashboardModel(), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}
