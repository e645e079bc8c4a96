package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/procflow/procflow/internal/schedule"
	"github.com/procflow/procflow/internal/template"
)

var (
	chartCriticalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	chartDefaultStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))
	chartHeaderStyle   = lipgloss.NewStyle().Bold(true)
)

const scheduleChartWidth = 60

var scheduleCmd = &cobra.Command{
	Use:   "schedule <template.yaml>",
	Short: "Compute the critical-path schedule for a template",
	Long: `Schedule runs the critical path method over a template's task graph and
prints each task's start and finish dates alongside a bar chart. Critical
tasks, the ones with zero slack, are highlighted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := template.LoadFile(args[0])
		if err != nil {
			return err
		}
		result, err := schedule.Compute(def.Tasks)
		if err != nil {
			return err
		}
		printSchedule(def, result)
		return nil
	},
}

func printSchedule(def template.ProcessTemplate, result schedule.Result) {
	fmt.Println(chartHeaderStyle.Render(fmt.Sprintf("%s (makespan %d)", def.Title, result.Makespan)))
	nameWidth := len("task")
	for _, task := range def.Tasks {
		if len(task.Name) > nameWidth {
			nameWidth = len(task.Name)
		}
	}
	fmt.Printf("%-*s  %5s  %6s  %5s  %s\n", nameWidth, "task", "start", "finish", "slack", "chart")
	for _, ts := range result.Tasks {
		tt, _ := def.Task(ts.ID)
		fmt.Printf("%-*s  %5d  %6d  %5d  %s\n", nameWidth, tt.Name, ts.Start, ts.Finish, ts.Slack, scheduleBar(ts, result.Makespan))
	}
}

func scheduleBar(ts schedule.TaskSchedule, makespan int) string {
	if makespan == 0 {
		return ""
	}
	scale := float64(scheduleChartWidth) / float64(makespan)
	offset := int(float64(ts.Start) * scale)
	length := int(float64(ts.Finish)*scale) - offset
	if length < 1 {
		length = 1
	}
	bar := strings.Repeat("█", length)
	if ts.Critical {
		bar = chartCriticalStyle.Render(bar)
	} else {
		bar = chartDefaultStyle.Render(bar)
	}
	return strings.Repeat(" ", offset) + bar
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}
