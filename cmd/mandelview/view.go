// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"errors"
	"image"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/image/draw"

	"github.com/gogpu/mandel"
)

// errNotTerminal is returned by view when stdout is not a terminal.
var errNotTerminal = errors.New("view needs an interactive terminal; try serve or bench")

// panStep is the fraction of the raster an arrow key pans by.
const panStep = 10

// statusLines is the number of terminal rows between the canvas and the help.
const statusLines = 1

func newViewCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Explore interactively in the terminal",
		Long: `Renders the current frame with half-block characters, two pixels per cell.
Click to recenter, scroll or +/- to zoom, arrows to pan, d to double the iteration budget.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fd := os.Stdout.Fd()
			if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
				return errNotTerminal
			}
			cfg, err := opts.config(cmd)
			if err != nil {
				return err
			}
			// The terminal belongs to the UI: logs only go to --log-file.
			log, closer, err := opts.logger(io.Discard)
			if err != nil {
				return err
			}
			defer closer.Close()

			frames := make(chan struct{}, 1)
			s, err := mandel.NewSession(cfg,
				mandel.WithLogger(log),
				mandel.WithPassObserver(notifyCompleted(frames)),
			)
			if err != nil {
				return err
			}
			defer s.Close()

			p := tea.NewProgram(newViewModel(s, frames), tea.WithAltScreen(), tea.WithMouseAllMotion())
			_, err = p.Run()
			return err
		},
	}
}

// notifyCompleted returns a pass observer that signals ch after every
// completed pass without ever blocking the dispatcher.
func notifyCompleted(ch chan<- struct{}) func(mandel.PassEvent) {
	return func(ev mandel.PassEvent) {
		if ev.Result != mandel.PassCompleted {
			return
		}
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// =============================================================================
// Key bindings
// =============================================================================

type keyMap struct {
	ZoomIn  key.Binding
	ZoomOut key.Binding
	Up      key.Binding
	Down    key.Binding
	Left    key.Binding
	Right   key.Binding
	Detail  key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		ZoomIn:  key.NewBinding(key.WithKeys("+", "=", "i"), key.WithHelp("+/i", "zoom in")),
		ZoomOut: key.NewBinding(key.WithKeys("-", "o"), key.WithHelp("-/o", "zoom out")),
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "pan up")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "pan down")),
		Left:    key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "pan left")),
		Right:   key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "pan right")),
		Detail:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "more detail")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:    key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.ZoomIn, k.ZoomOut, k.Detail, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.ZoomIn, k.ZoomOut, k.Detail},
		{k.Up, k.Down, k.Left, k.Right},
		{k.Help, k.Quit},
	}
}

// =============================================================================
// Model
// =============================================================================

// frameMsg signals that a new frame was published.
type frameMsg struct{}

var statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#a0a0a0"))

// viewModel is the bubbletea model of the terminal viewer. It only touches
// the session through its commands, which never block.
type viewModel struct {
	session *mandel.Session
	frames  <-chan struct{}
	keys    keyMap
	help    help.Model

	cols, rows int
	canvas     string
	info       string
}

func newViewModel(s *mandel.Session, frames <-chan struct{}) viewModel {
	return viewModel{
		session: s,
		frames:  frames,
		keys:    defaultKeyMap(),
		help:    help.New(),
		cols:    80,
		rows:    24,
	}
}

func waitForFrame(frames <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-frames; !ok {
			return nil
		}
		return frameMsg{}
	}
}

// Init implements tea.Model.
func (m viewModel) Init() tea.Cmd {
	return waitForFrame(m.frames)
}

// Update implements tea.Model.
func (m viewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.cols, m.rows = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.canvas = m.renderCanvas()

	case frameMsg:
		m.canvas = m.renderCanvas()
		return m, waitForFrame(m.frames)

	case tea.KeyMsg:
		s := m.session
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.ZoomIn):
			s.ZoomIn()
		case key.Matches(msg, m.keys.ZoomOut):
			s.ZoomOut()
		case key.Matches(msg, m.keys.Detail):
			s.IncreaseDetail()
		case key.Matches(msg, m.keys.Up):
			m.pan(0, -1)
		case key.Matches(msg, m.keys.Down):
			m.pan(0, 1)
		case key.Matches(msg, m.keys.Left):
			m.pan(-1, 0)
		case key.Matches(msg, m.keys.Right):
			m.pan(1, 0)
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			m.canvas = m.renderCanvas()
		}

	case tea.MouseMsg:
		px, py, ok := m.toPixel(msg.X, msg.Y)
		if !ok {
			break
		}
		switch {
		case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft:
			m.session.RecenterAt(px, py)
		case msg.Button == tea.MouseButtonWheelUp:
			m.session.ZoomIn()
		case msg.Button == tea.MouseButtonWheelDown:
			m.session.ZoomOut()
		}
		if p, err := m.session.PixelToPlane(px, py); err == nil {
			m.info = "cursor (" + p.X + ", " + p.Y + ")"
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m viewModel) View() string {
	var b strings.Builder
	b.WriteString(m.canvas)
	b.WriteByte('\n')
	line := status(m.session)
	if m.info != "" {
		line += " · " + m.info
	}
	b.WriteString(statusStyle.Render(line))
	b.WriteByte('\n')
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

// canvasSize returns the canvas size in cells. The canvas takes the rows
// left over by the status line and the help as currently rendered.
func (m viewModel) canvasSize() (cols, rows int) {
	used := statusLines + lipgloss.Height(m.help.View(m.keys))
	return max(m.cols, 1), max(m.rows-used, 1)
}

// toPixel maps a terminal cell to the raster pixel under it.
func (m viewModel) toPixel(x, y int) (px, py int, ok bool) {
	cols, rows := m.canvasSize()
	if x < 0 || y < 0 || x >= cols || y >= rows {
		return 0, 0, false
	}
	px = x * m.session.Width() / cols
	py = y * m.session.Height() / rows
	return px, py, true
}

// pan recenters one panStep-th of the raster away from the center.
func (m viewModel) pan(dx, dy int) {
	w, h := m.session.Width(), m.session.Height()
	m.session.RecenterAt(w/2+dx*w/panStep, h/2+dy*h/panStep)
}

// renderCanvas draws the current frame with upper half blocks: the
// foreground paints the top pixel of a cell and the background the bottom.
func (m viewModel) renderCanvas() string {
	f := m.session.CurrentSurface()
	if f == nil || f.Image == nil {
		return ""
	}
	cols, rows := m.canvasSize()
	img := scaleFrame(f.Image, cols, rows*2, draw.ApproxBiLinear)
	return halfBlocks(img)
}

func halfBlocks(img *image.RGBA) string {
	b := img.Bounds()
	var sb strings.Builder
	for y := b.Min.Y; y+1 < b.Max.Y; y += 2 {
		if y > b.Min.Y {
			sb.WriteByte('\n')
		}
		for x := b.Min.X; x < b.Max.X; x++ {
			top := mandel.FormatHex(img.RGBAAt(x, y))
			bottom := mandel.FormatHex(img.RGBAAt(x, y+1))
			sb.WriteString(lipgloss.NewStyle().
				Foreground(lipgloss.Color(top)).
				Background(lipgloss.Color(bottom)).
				Render("▀"))
		}
	}
	return sb.String()
}
