// Package ui renders the invoke client's terminal output: a live progress
// view while a transfer runs and a summary once it ends.
package ui

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rescp17/fileproc/internal/util"
	"github.com/rescp17/fileproc/pkg/client"
)

type progressMsg client.Progress

type doneMsg struct {
	res *client.Result
	err error
}

// transferModel shows upload and download progress of one transfer.
type transferModel struct {
	label    string
	upload   progress.Model
	download progress.Model
	spinner  spinner.Model
	current  client.Progress
	done     bool
	res      *client.Result
	err      error
	cancel   context.CancelFunc
}

func newTransferModel(label string, cancel context.CancelFunc) transferModel {
	return transferModel{
		label:    label,
		upload:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		download: progress.New(progress.WithSolidFill("42"), progress.WithWidth(40)),
		spinner:  newSpinner(),
		cancel:   cancel,
	}
}

func (m transferModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m transferModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			// The transfer reports the cancellation through doneMsg.
			m.cancel()
		}
		return m, nil
	case progressMsg:
		m.current = client.Progress(msg)
		return m, nil
	case doneMsg:
		m.done = true
		m.res, m.err = msg.res, msg.err
		return m, tea.Quit
	case tea.WindowSizeMsg:
		width := min(max(msg.Width-20, 10), 60)
		m.upload.Width = width
		m.download.Width = width
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m transferModel) View() string {
	if m.done {
		return ""
	}
	sent := fraction(m.current.Sent, m.current.Total)
	s := fmt.Sprintf("%s %s\n\n", m.spinner.View(), headerStyle.Render(m.label))
	s += fmt.Sprintf("%s %s %s\n", labelStyle.Render("upload  "), m.upload.ViewAs(sent),
		labelStyle.Render(util.FormatSize(m.current.Sent)+" / "+util.FormatSize(m.current.Total)))
	s += fmt.Sprintf("%s %s\n", labelStyle.Render("download"), labelStyle.Render(util.FormatSize(m.current.Received)))
	s += "\nPress ctrl + c to cancel\n"
	return s
}

func fraction(n, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return min(float64(n)/float64(total), 1)
}

// TransferFunc runs a transfer, reporting progress through report.
type TransferFunc func(ctx context.Context, report client.ProgressFunc) (*client.Result, error)

// RunWithProgress runs fn while rendering its progress on out and returns
// what fn returned. Cancelling from the keyboard cancels fn's context; the
// display ends once fn does.
func RunWithProgress(ctx context.Context, out io.Writer, label string, fn TransferFunc) (*client.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newTransferModel(label, cancel), tea.WithOutput(out))

	result := make(chan doneMsg, 1)
	go func() {
		res, err := fn(ctx, func(pr client.Progress) { p.Send(progressMsg(pr)) })
		result <- doneMsg{res: res, err: err}
		p.Send(doneMsg{res: res, err: err})
	}()

	if _, err := p.Run(); err != nil {
		// The transfer does not depend on the display; keep waiting for it.
		fmt.Fprintf(out, "progress display stopped: %v\n", err)
	}
	d := <-result
	return d.res, d.err
}
