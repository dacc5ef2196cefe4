// Package tui provides a read-only terminal dashboard for one
// orchestration run. It consumes the orchestrator's event stream and
// renders subtask progress, hired services, and budget burn-down.
// Users can only quit with 'q' or Ctrl+C; the run itself is not
// controllable from the dashboard.
package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sidecarlabs/agora/internal/orchestrator"
	"github.com/sidecarlabs/agora/pkg/models"
)

// EventMsg wraps one orchestration event for the dashboard.
type EventMsg struct {
	Event orchestrator.Event
}

// DoneMsg signals that the run settled.
type DoneMsg struct {
	Result *orchestrator.RunResult
	Err    error
}

// LogEntry is one line in the activity log.
type LogEntry struct {
	Line  string
	IsErr bool
}

// subtaskRow is the display state of one subtask.
type subtaskRow struct {
	id        string
	status    models.SubtaskStatus
	serviceID string
	cost      models.Money
	errMsg    string
}

const maxLogLines = 12

// App is the bubbletea model for the run dashboard.
type App struct {
	goal    string
	runID   string
	ceiling models.Money

	spinner  spinner.Model
	rows     []*subtaskRow
	rowIndex map[string]*subtaskRow
	spent    models.Money
	logs     []LogEntry
	width    int

	done     bool
	quitting bool
	result   *orchestrator.RunResult
	runErr   error

	headerStyle  lipgloss.Style
	labelStyle   lipgloss.Style
	valueStyle   lipgloss.Style
	okStyle      lipgloss.Style
	failStyle    lipgloss.Style
	skipStyle    lipgloss.Style
	pendingStyle lipgloss.Style
	logStyle     lipgloss.Style
}

// New creates a dashboard for the given goal and budget ceiling.
func New(goal string, ceiling models.Money) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &App{
		goal:     goal,
		ceiling:  ceiling,
		spinner:  sp,
		rowIndex: make(map[string]*subtaskRow),
		width:    80,

		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("238")).
			MarginBottom(1),
		labelStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12),
		valueStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true),
		okStyle:      lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		failStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		skipStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		pendingStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		logStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return a.spinner.Tick
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		}
		if a.done {
			return a, tea.Quit
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case EventMsg:
		a.apply(msg.Event)
		return a, nil

	case DoneMsg:
		a.done = true
		a.result = msg.Result
		a.runErr = msg.Err
		if msg.Result != nil && msg.Result.Deliverable != nil {
			a.spent = msg.Result.Deliverable.TotalCost
		}
		return a, nil
	}

	return a, nil
}

// apply folds one orchestration event into the display state.
func (a *App) apply(ev orchestrator.Event) {
	switch ev.Type {
	case orchestrator.EventOrchestrationStarted:
		a.runID = ev.RunID
		a.log(fmt.Sprintf("run %s started", ev.RunID), false)

	case orchestrator.EventTaskDecomposed:
		a.log(fmt.Sprintf("decomposed into %d subtasks", ev.Count), false)

	case orchestrator.EventAgentSpawned:
		a.row(ev.SubtaskID).status = models.SubtaskDiscovering
		a.log(fmt.Sprintf("agent %s working on %s", ev.AgentID, ev.SubtaskID), false)

	case orchestrator.EventServicesDiscovered:
		a.log(fmt.Sprintf("%s: %d candidate services", ev.SubtaskID, ev.Count), false)

	case orchestrator.EventServiceHired:
		row := a.row(ev.SubtaskID)
		row.status = models.SubtaskInvoking
		row.serviceID = ev.ServiceID
		a.log(fmt.Sprintf("%s: hired %s for %s", ev.SubtaskID, ev.ServiceID, ev.Cost), false)

	case orchestrator.EventSubtaskCompleted:
		row := a.row(ev.SubtaskID)
		row.status = models.SubtaskCompleted
		row.cost = ev.Cost
		a.addSpend(ev.Cost)
		a.log(fmt.Sprintf("%s: completed (%s)", ev.SubtaskID, ev.Cost), false)

	case orchestrator.EventSubtaskFailed:
		row := a.row(ev.SubtaskID)
		row.status = models.SubtaskFailed
		row.cost = ev.Cost
		row.errMsg = ev.Err
		a.addSpend(ev.Cost)
		a.log(fmt.Sprintf("%s: failed: %s", ev.SubtaskID, ev.Err), true)

	case orchestrator.EventSubtaskSkipped:
		row := a.row(ev.SubtaskID)
		row.status = models.SubtaskSkipped
		a.log(fmt.Sprintf("%s: skipped (failed dependency)", ev.SubtaskID), true)

	case orchestrator.EventOrchestrationCompleted:
		a.log(fmt.Sprintf("run settled: %s", ev.Message), false)

	case orchestrator.EventOrchestrationError:
		a.log(fmt.Sprintf("run aborted: %s", ev.Err), true)
	}
}

func (a *App) row(subtaskID string) *subtaskRow {
	if row, ok := a.rowIndex[subtaskID]; ok {
		return row
	}
	row := &subtaskRow{id: subtaskID, status: models.SubtaskPending}
	a.rowIndex[subtaskID] = row
	a.rows = append(a.rows, row)
	sort.Slice(a.rows, func(i, j int) bool { return a.rows[i].id < a.rows[j].id })
	return row
}

func (a *App) addSpend(cost models.Money) {
	if cost.Currency == "" {
		return
	}
	if a.spent.Currency == "" {
		a.spent = cost
		return
	}
	if a.spent.Currency == cost.Currency {
		a.spent = models.NewMoney(a.spent.Micros+cost.Micros, a.spent.Currency)
	}
}

func (a *App) log(line string, isErr bool) {
	a.logs = append(a.logs, LogEntry{Line: line, IsErr: isErr})
	if len(a.logs) > maxLogLines {
		a.logs = a.logs[len(a.logs)-maxLogLines:]
	}
}

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(a.headerStyle.Render("Agora Orchestration"))
	b.WriteString("\n")

	b.WriteString(a.labelStyle.Render("Goal:"))
	b.WriteString(a.valueStyle.Render(truncate(a.goal, a.width-14)))
	b.WriteString("\n")
	if a.runID != "" {
		b.WriteString(a.labelStyle.Render("Run:"))
		b.WriteString(a.valueStyle.Render(a.runID))
		b.WriteString("\n")
	}
	b.WriteString(a.labelStyle.Render("Budget:"))
	b.WriteString(a.valueStyle.Render(fmt.Sprintf("%s of %s spent", a.spent, a.ceiling)))
	b.WriteString("\n\n")

	for _, row := range a.rows {
		b.WriteString(a.renderRow(row))
		b.WriteString("\n")
	}
	if len(a.rows) > 0 {
		b.WriteString("\n")
	}

	for _, entry := range a.logs {
		style := a.logStyle
		if entry.IsErr {
			style = a.failStyle
		}
		b.WriteString(style.Render("  " + truncate(entry.Line, a.width-4)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if a.done {
		b.WriteString(a.finalLine())
	} else {
		b.WriteString(a.pendingStyle.Render("press q to quit"))
	}
	b.WriteString("\n")

	return b.String()
}

func (a *App) renderRow(row *subtaskRow) string {
	var marker, detail string
	style := a.pendingStyle

	switch row.status {
	case models.SubtaskCompleted:
		marker = "✓"
		style = a.okStyle
		detail = fmt.Sprintf("%s (%s)", row.serviceID, row.cost)
	case models.SubtaskFailed:
		marker = "✗"
		style = a.failStyle
		detail = row.errMsg
	case models.SubtaskSkipped:
		marker = "-"
		style = a.skipStyle
		detail = "skipped"
	case models.SubtaskDiscovering:
		marker = a.spinner.View()
		detail = "discovering services"
	case models.SubtaskInvoking:
		marker = a.spinner.View()
		detail = "calling " + row.serviceID
	default:
		marker = "·"
		detail = "pending"
	}

	line := fmt.Sprintf("  %s %-12s %s", marker, row.id, detail)
	return style.Render(truncate(line, a.width-2))
}

func (a *App) finalLine() string {
	if a.runErr != nil {
		return a.failStyle.Render(fmt.Sprintf("aborted: %v (press any key to exit)", a.runErr))
	}
	if a.result != nil && a.result.Deliverable != nil {
		switch a.result.Deliverable.State {
		case models.RunCompleted:
			return a.okStyle.Render("completed (press any key to exit)")
		case models.RunPartiallyCompleted:
			return a.skipStyle.Render("partially completed (press any key to exit)")
		}
	}
	return a.pendingStyle.Render("settled (press any key to exit)")
}

func truncate(s string, max int) string {
	if max <= 3 || len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
