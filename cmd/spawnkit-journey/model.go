// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command spawnkit-journey is a live terminal viewer for a Journey's
// step-by-step progress: a spinner for StateInProgress, a checkmark
// for StatePerformed, a cross for StateErrored, and a blank marker for
// StateNotStarted — the TUI's item states map directly onto
// Journey.h's own NOT_STARTED/IN_PROGRESS/PERFORMED/ERRORED
// vocabulary. It polls the work dir's response/steps directory
// (written by the spawned child's envsetup.Recorder) rather than
// holding a live *journey.Journey, since the viewer and the spawn
// attempt it's watching run in separate processes.
package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/phusion-spawning/spawningkit/journey"
)

var (
	performedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	erroredStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle    = lipgloss.NewStyle().Bold(true)
)

// pollIntervalMsg fires the next poll of the work dir's step files.
type pollIntervalMsg time.Time

// journeyPolledMsg carries the latest read of the journey, or an
// error if the work dir vanished mid-poll.
type journeyPolledMsg struct {
	j   *journey.Journey
	err error
}

// model is the bubbletea state for one journey's progress view.
type model struct {
	workDir string

	j        *journey.Journey
	err      error
	finished bool

	spin spinner.Model
}

func newModel(workDir string) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return model{workDir: workDir, spin: s}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, pollAfter(0))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}
		return m, nil

	case pollIntervalMsg:
		return m, tea.Batch(pollJourney(m.workDir), pollAfter(200*time.Millisecond))

	case journeyPolledMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.j = msg.j
		if m.j != nil && journeyIsTerminal(m.j) {
			m.finished = true
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	if m.err != nil {
		return erroredStyle.Render(fmt.Sprintf("error reading journey: %v\n", m.err))
	}
	if m.j == nil {
		return m.spin.View() + " waiting for spawn to start...\n"
	}

	out := headerStyle.Render(fmt.Sprintf("journey: %s", m.j.Type())) + "\n"
	for _, step := range m.j.Steps() {
		info := m.j.Get(step)
		out += renderStepLine(m.spin.View(), step, info) + "\n"
	}
	if m.finished {
		out += "\n(done — press q to exit)\n"
	}
	return out
}

func renderStepLine(spin string, step journey.Step, info journey.StepInfo) string {
	var marker string
	var style lipgloss.Style
	switch info.State {
	case journey.StatePerformed:
		marker, style = "✓", performedStyle
	case journey.StateErrored:
		marker, style = "✗", erroredStyle
	case journey.StateInProgress:
		marker, style = spin, pendingStyle
	default:
		marker, style = " ", pendingStyle
	}
	line := fmt.Sprintf("%s %s", marker, step)
	if info.State == journey.StatePerformed || info.State == journey.StateErrored {
		line += fmt.Sprintf(" (%dus)", info.UsecDuration())
	}
	return style.Render(line)
}

func pollAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return pollIntervalMsg(t) })
}

func journeyIsTerminal(j *journey.Journey) bool {
	info := j.Get(journey.StepSpawningKitFinish)
	return info.State == journey.StatePerformed || info.State == journey.StateErrored
}
