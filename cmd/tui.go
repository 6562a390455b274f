// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Thermoquad/isplink/pkg/isp"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Chunk log entry
type chunkLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// TUI model
type writeModel struct {
	path     string
	part     string
	address  uint32
	total    int
	done     int
	chunks   int
	phase    string
	started  time.Time
	finished time.Time
	err      error

	chunkLog      []chunkLogEntry
	maxLogEntries int

	progress progress.Model
	spinner  spinner.Model
	cancel   context.CancelFunc
	width    int
	quitting bool
}

// Messages
type tickMsg time.Time
type programEventMsg isp.Event

// formatElapsed formats a duration as minutes and seconds
func formatElapsed(d time.Duration) string {
	d = d.Round(100 * time.Millisecond)
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}

// formatRate formats a byte rate in B/s or KiB/s
func formatRate(bytes int, d time.Duration) string {
	if d <= 0 || bytes == 0 {
		return "-"
	}
	rate := float64(bytes) / d.Seconds()
	if rate < 1024 {
		return fmt.Sprintf("%.0f B/s", rate)
	}
	return fmt.Sprintf("%.1f KiB/s", rate/1024)
}

func newWriteModel(path, part string, address uint32, total int, cancel context.CancelFunc) writeModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	return writeModel{
		path:          path,
		part:          part,
		address:       address,
		total:         total,
		phase:         "Synchronized",
		started:       time.Now(),
		maxLogEntries: 8,
		progress:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(60)),
		spinner:       s,
		cancel:        cancel,
		width:         80,
	}
}

func (m writeModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.spinner.Tick,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m writeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			// the programmer stops before the next chunk and reports the cancellation
			m.cancel()
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if w := msg.Width - 4; w < 60 {
			m.progress.Width = max(w, 10)
		}

	case tickMsg:
		if !m.finished.IsZero() {
			return m, nil
		}
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case programEventMsg:
		ev := isp.Event(msg)
		switch ev.Kind {
		case isp.EventStarted:
			m.phase = "Unlocking and erasing"
			m.addLogEntry(fmt.Sprintf("Programming %d bytes at 0x%08X", ev.Total, m.address), false)
		case isp.EventChunk:
			m.phase = "Writing"
			m.done = ev.Done
			m.chunks++
			m.addLogEntry(fmt.Sprintf("0x%08X  %d bytes", ev.Address, ev.Bytes), false)
		case isp.EventFinished:
			m.phase = "Done"
			m.done = ev.Done
			m.finished = time.Now()
			m.addLogEntry("Finished", false)
			return m, tea.Quit
		case isp.EventFailed:
			m.phase = "Failed"
			m.err = ev.Err
			m.finished = time.Now()
			m.addLogEntry(fmt.Sprintf("ERROR: %v", ev.Err), true)
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m *writeModel) addLogEntry(message string, isError bool) {
	m.chunkLog = append(m.chunkLog, chunkLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.chunkLog) > m.maxLogEntries {
		m.chunkLog = m.chunkLog[len(m.chunkLog)-m.maxLogEntries:]
	}
}

func (m writeModel) elapsed() time.Duration {
	if !m.finished.IsZero() {
		return m.finished.Sub(m.started)
	}
	return time.Since(m.started)
}

func (m writeModel) View() string {
	if m.quitting {
		return "Cancelling...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("ISPLINK - FLASH PROGRAMMING"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s -> %s @ 0x%08X | Press 'q' to cancel", m.path, m.part, m.address)))
	s.WriteString("\n\n")

	// Phase
	switch {
	case m.err != nil:
		s.WriteString(errorStyle.Render("✗ " + m.phase))
	case m.phase == "Done":
		s.WriteString(valueStyle.Render("✓ " + m.phase))
	default:
		s.WriteString(m.spinner.View() + " " + m.phase)
	}
	s.WriteString("\n\n")

	// Progress
	s.WriteString(m.progress.ViewAs(percent(m.done, m.total) / 100))
	s.WriteString("\n\n")

	content := strings.Builder{}
	content.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		labelStyle.Render("Written:"), valueStyle.Render(fmt.Sprintf("%d/%d bytes", m.done, m.total)),
		labelStyle.Render("Chunks:"), valueStyle.Render(fmt.Sprintf("%d", m.chunks)),
	))
	content.WriteString(fmt.Sprintf("%s %s   %s %s",
		labelStyle.Render("Elapsed:"), valueStyle.Render(formatElapsed(m.elapsed())),
		labelStyle.Render("Rate:"), valueStyle.Render(formatRate(m.done, m.elapsed())),
	))
	s.WriteString(boxStyle.Render(content.String()))
	s.WriteString("\n\n")

	// Log
	for _, entry := range m.chunkLog {
		line := fmt.Sprintf("%s  %s", entry.timestamp.Format("15:04:05.000"), entry.message)
		if entry.isError {
			s.WriteString(errorStyle.Render(line))
		} else {
			s.WriteString(headerStyle.Render(line))
		}
		s.WriteString("\n")
	}

	return s.String()
}

// runWriteTUI programs src with an interactive progress display and returns
// the programming result.
func runWriteTUI(ctx context.Context, p *isp.Programmer, src io.Reader, path string, address uint32, part string, total int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := newWriteModel(path, part, address, total, cancel)
	prog := tea.NewProgram(m)

	result := make(chan error, 1)
	go func() {
		var err error
		for ev := range p.Program(ctx, src) {
			if ev.Kind == isp.EventFailed {
				err = ev.Err
			}
			prog.Send(programEventMsg(ev))
		}
		result <- err
	}()

	final, tuiErr := prog.Run()
	if tuiErr != nil {
		cancel()
	}
	err := <-result
	if tuiErr != nil {
		return tuiErr
	}

	fm := final.(writeModel)
	if err == nil {
		fmt.Printf("%s: %d bytes written in %s\n", path, total, formatElapsed(fm.elapsed()))
	}
	return err
}
