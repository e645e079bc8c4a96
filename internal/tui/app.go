// Package tui renders an interactive process monitor: a list of known
// processes and, per process, its task states next to the critical-path
// schedule computed from the frozen template.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/procflow/procflow/internal/process"
	"github.com/procflow/procflow/internal/schedule"
	"github.com/procflow/procflow/internal/template"
)

var (
	labelStyleReady   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	labelStyleBlocked = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	labelStyleClosed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	barStyleCritical  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	barStyleDefault   = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))
	titleStyle        = lipgloss.NewStyle().Bold(true).Underline(true)
	detailTextStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
)

const chartWidth = 48

type viewMode int

const (
	modeList viewMode = iota
	modeDetail
)

type processItem struct {
	proc process.Process
}

func (i processItem) Title() string { return fmt.Sprintf("#%d %s", i.proc.ID, i.proc.Title) }

func (i processItem) Description() string {
	if i.proc.Running() {
		return fmt.Sprintf("running, %d tasks", len(i.proc.Tasks))
	}
	return fmt.Sprintf("closed %s", i.proc.ClosedAt.Format("2006-01-02 15:04"))
}

func (i processItem) FilterValue() string { return i.proc.Title }

// App is the bubbletea model for the process monitor.
type App struct {
	engine *process.Engine
	list   list.Model
	mode   viewMode
	status process.ProcessStatus
	result schedule.Result
	err    error
	width  int
	height int
}

// NewApp builds the monitor around a running engine.
func NewApp(engine *process.Engine) *App {
	items := processItems(engine)
	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "procflow processes"
	l.SetShowHelp(true)
	return &App{engine: engine, list: l}
}

func processItems(engine *process.Engine) []list.Item {
	procs := engine.Processes()
	items := make([]list.Item, 0, len(procs))
	for _, proc := range procs {
		items = append(items, processItem{proc: proc})
	}
	return items
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.list.SetSize(msg.Width, msg.Height-2)
		return a, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return a, tea.Quit
		case "r":
			a.list.SetItems(processItems(a.engine))
			if a.mode == modeDetail {
				a.loadDetail(a.status.ProcessID)
			}
			return a, nil
		case "enter":
			if a.mode == modeList {
				if item, ok := a.list.SelectedItem().(processItem); ok {
					a.loadDetail(item.proc.ID)
					a.mode = modeDetail
				}
				return a, nil
			}
		case "esc":
			if a.mode == modeDetail {
				a.mode = modeList
				a.err = nil
				return a, nil
			}
		}
	}
	if a.mode == modeList {
		var cmd tea.Cmd
		a.list, cmd = a.list.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a *App) loadDetail(processID int) {
	status, err := a.engine.Status(processID)
	if err != nil {
		a.err = err
		return
	}
	proc, err := a.engine.Process(processID)
	if err != nil {
		a.err = err
		return
	}
	templates := make([]template.TaskTemplate, 0, len(proc.Tasks))
	for _, task := range proc.Tasks {
		templates = append(templates, task.Template)
	}
	result, err := schedule.Compute(templates)
	if err != nil {
		a.err = err
		return
	}
	a.status = status
	a.result = result
	a.err = nil
}

// View implements tea.Model.
func (a *App) View() string {
	if a.mode == modeList {
		return a.list.View()
	}
	return a.detailView()
}

func (a *App) detailView() string {
	if a.err != nil {
		return fmt.Sprintf("error: %v\n\npress esc to go back", a.err)
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("#%d %s", a.status.ProcessID, a.status.Title)))
	b.WriteString("\n")
	state := "running"
	if !a.status.Running {
		state = "closed"
	}
	b.WriteString(detailTextStyle.Render(fmt.Sprintf("template %s, %s, makespan %d", a.status.TemplateID, state, a.result.Makespan)))
	b.WriteString("\n\n")
	nameWidth := 0
	for _, task := range a.status.Tasks {
		if len(task.Name) > nameWidth {
			nameWidth = len(task.Name)
		}
	}
	for _, task := range a.status.Tasks {
		b.WriteString(a.taskRow(task, nameWidth))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(detailTextStyle.Render("esc back, r refresh, q quit"))
	b.WriteString("\n")
	return b.String()
}

func (a *App) taskRow(task process.TaskStatus, nameWidth int) string {
	label := stateLabel(task)
	name := fmt.Sprintf("%-*s", nameWidth, task.Name)
	bar := a.scheduleBar(task.TemplateID)
	counts := fmt.Sprintf("%d/%d closed", task.Closings, task.NecessaryClosings)
	return fmt.Sprintf("%s  %s  %s  %s", name, label, bar, detailTextStyle.Render(counts))
}

func stateLabel(task process.TaskStatus) string {
	switch task.State {
	case process.TaskStateClosed:
		return labelStyleClosed.Render("closed ")
	case process.TaskStateBlocked:
		return labelStyleBlocked.Render("blocked")
	default:
		return labelStyleReady.Render("ready  ")
	}
}

// scheduleBar draws the task's slot in the template schedule, scaled to a
// fixed chart width. Critical tasks are drawn in the critical color.
func (a *App) scheduleBar(templateID int) string {
	ts, ok := a.result.Task(templateID)
	if !ok || a.result.Makespan == 0 {
		return strings.Repeat(" ", chartWidth)
	}
	scale := float64(chartWidth) / float64(a.result.Makespan)
	offset := int(float64(ts.Start) * scale)
	length := int(float64(ts.Finish)*scale) - offset
	if length < 1 {
		length = 1
	}
	if offset+length > chartWidth {
		length = chartWidth - offset
	}
	bar := strings.Repeat("█", length)
	if ts.Critical {
		bar = barStyleCritical.Render(bar)
	} else {
		bar = barStyleDefault.Render(bar)
	}
	return strings.Repeat(" ", offset) + bar + strings.Repeat(" ", chartWidth-offset-length)
}
