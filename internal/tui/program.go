package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sidecarlabs/agora/internal/orchestrator"
)

// NewProgram wraps the dashboard in a bubbletea program.
func NewProgram(app *App) *tea.Program {
	return tea.NewProgram(app, tea.WithAltScreen())
}

// Forward pumps orchestration events into the program until the stream
// closes. Run it in its own goroutine alongside program.Run.
func Forward(p *tea.Program, events <-chan orchestrator.Event) {
	for ev := range events {
		p.Send(EventMsg{Event: ev})
	}
}
