// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/chatsapp/internal/model"
)

const helpText = "/new  /models [a,b]  /stop [model]  /quit    Esc stops streaming"

// runCommand executes a slash command.
func (m Model) runCommand(text string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(text)
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "/quit", "/exit", "/q":
		m.coord.StopAll()
		m.stopWatch()
		return m, tea.Quit

	case "/help", "/?":
		m.setNotice(helpText)
		return m, nil

	case "/new":
		if m.busy {
			m.setNotice("Still sending the previous message.")
			return m, nil
		}
		m.busy = true
		return m, m.createConversation("")

	case "/models":
		return m.modelsCommand(args)

	case "/stop":
		if len(args) == 0 {
			m.coord.StopAll()
			m.setNotice("Stopped.")
			return m, nil
		}
		if !m.coord.StopStreaming(args[0]) {
			m.setNotice(args[0] + " was not streaming.")
		}
		return m, nil
	}

	m.setError("Unknown command " + name + ". " + helpText)
	return m, nil
}

func (m Model) modelsCommand(args []string) (tea.Model, tea.Cmd) {
	available := m.store.AvailableModels()
	if len(args) == 0 {
		ids := make([]string, 0, len(available))
		for _, info := range available {
			ids = append(ids, info.ID)
		}
		m.setNotice("Selected: " + strings.Join(m.store.SelectedModels(), ", ") +
			"   Available: " + strings.Join(ids, ", "))
		return m, nil
	}

	ids := splitModels(strings.Join(args, ","))
	for _, id := range ids {
		if _, ok := model.FindModel(available, id); !ok {
			m.setError("Unknown model " + id)
			return m, nil
		}
	}
	if len(ids) == 0 {
		m.setError("No models given")
		return m, nil
	}
	m.store.SetSelectedModels(ids)
	m.setNotice("Next turn goes to " + strings.Join(ids, ", "))
	return m, nil
}

// splitModels splits a comma or space separated model list.
func splitModels(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
