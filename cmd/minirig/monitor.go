package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/minirig/pkg/control"
	"github.com/gwillem/minirig/pkg/rig"
)

type MonitorCommand struct {
	Refresh time.Duration `long:"refresh" default:"50ms" description:"Screen refresh interval"`
	Stats   time.Duration `long:"stats" default:"1s" description:"Stats flush period, 0 disables"`
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 8 // health and stats table
	borderSize   = 2 // chart border
)

// Motor colors - distinct colors for each motor
var motorColors = map[rig.MotorName]string{
	rig.BodyRotation: "15",  // white
	rig.AntennaLeft:  "201", // magenta
	rig.AntennaRight: "99",  // purple
	rig.Stewart1:     "196", // red
	rig.Stewart2:     "208", // orange
	rig.Stewart3:     "226", // yellow
	rig.Stewart4:     "46",  // green
	rig.Stewart5:     "51",  // cyan
	rig.Stewart6:     "33",  // blue
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type monitorModel struct {
	loop     *control.Loop
	chart    *streamlinechart.Model
	refresh  time.Duration
	width    int
	height   int
	lastSeen float64 // timestamp of the last charted snapshot
	quitting bool
}

type refreshMsg time.Time

func (m monitorModel) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *monitorModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-legendHeight-footerHeight-borderSize, 10)
	return width, height
}

func newMonitorModel(loop *control.Loop, refresh time.Duration) monitorModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-180, 180),
	)
	for _, name := range rig.AllMotors() {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(motorColors[name]))
		chart.SetDataSetStyles(string(name), runes.ThinLineStyle, style)
	}
	return monitorModel{loop: loop, chart: &chart, refresh: refresh}
}

func (m monitorModel) Init() tea.Cmd {
	return m.tick()
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chart.Resize(m.chartSize())
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case refreshMsg:
		snap, err := m.loop.LastPosition()
		if err == nil && snap.Timestamp != m.lastSeen {
			deg := snap.Degrees()
			for i, name := range rig.AllMotors() {
				m.chart.PushDataSet(string(name), deg[i])
			}
			m.chart.DrawAll()
			m.lastSeen = snap.Timestamp
		}
		return m, m.tick()
	}

	return m, nil
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Monitor stopped.\n"
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("minirig monitor"))
	sb.WriteString(statusStyle.Render(fmt.Sprintf(" - %s rig, press 'q' to quit", m.loop.Map().Variant())))
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")
	sb.WriteString(renderLegend())
	sb.WriteString("\n\n")
	sb.WriteString(renderStatus(m.loop))
	sb.WriteString("\n")
	return sb.String()
}

func renderLegend() string {
	var items []string
	for _, name := range rig.AllMotors() {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(motorColors[name])).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+string(name))
	}
	return strings.Join(items, "  ")
}

func renderStatus(loop *control.Loop) string {
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	headStyle := cellStyle.Bold(true).Foreground(lipgloss.Color("12"))

	health := loop.Health()
	healthStyle := successStyle
	switch health.State {
	case control.Degrading:
		healthStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	case control.Faulted:
		healthStyle = errorStyle
	}

	rows := [][]string{{"health", healthStyle.Render(health.String()), "", ""}}
	if w, ok := loop.Stats(); ok {
		s := w.Summary()
		for _, r := range []struct {
			name string
			sum  control.SeriesSummary
		}{
			{"tick spacing", s.TickSpacing},
			{"read", s.ReadDuration},
			{"write", s.WriteDuration},
		} {
			rows = append(rows, []string{r.name, fmt.Sprintf("%d", r.sum.Count), r.sum.Mean.String(), r.sum.Max.String()})
		}
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("", "Samples", "Mean", "Max").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headStyle
			}
			return cellStyle
		}).
		Render()
}

func (c *MonitorCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.StatsPeriod = rig.Duration(c.Stats)
	logger := newLogger()

	ctx, stop := signalContext()
	defer stop()

	loop, err := startLoop(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLoop(loop, logger)

	p := tea.NewProgram(newMonitorModel(loop, c.Refresh), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run monitor: %w", err)
	}
	return nil
}
