package tui

import (
	"fmt"

	"memefolio/pkg/config"
	"memefolio/pkg/watcher"

	tea "github.com/charmbracelet/bubbletea"
)

// Start runs the terminal UI until the user quits. The watcher must already be started.
func Start(w *watcher.Watcher, globalCfg config.GlobalConfig, version string) error {
	Version = version
	m := initialModel(w, globalCfg)
	m.sub = w.Subscribe()
	defer w.Unsubscribe(m.sub)

	m.seed()

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}
