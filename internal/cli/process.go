package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/procflow/procflow/internal/template"
)

var startCmd = &cobra.Command{
	Use:   "start <template.yaml>",
	Short: "Start a process from a template",
	Long: `Start validates the template, freezes a copy, and creates one task per
task template. The new process runs until every task is closed, at which
point it closes automatically.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()
		def, err := loadTemplateArg(rt, args[0])
		if err != nil {
			return err
		}
		proc, err := rt.engine.StartProcess(def)
		if err != nil {
			return err
		}
		fmt.Printf("started process %d from template %s\n", proc.ID, proc.TemplateID)
		for _, task := range proc.Tasks {
			fmt.Printf("  task %d: %s\n", task.ID, task.Template.Name)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [processID]",
	Short: "Show process and task states",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()
		if len(args) == 1 {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("cli: invalid process id %q", args[0])
			}
			return printStatus(rt, id)
		}
		procs := rt.engine.Processes()
		if len(procs) == 0 {
			fmt.Println("no processes")
			return nil
		}
		for _, proc := range procs {
			if err := printStatus(rt, proc.ID); err != nil {
				return err
			}
		}
		return nil
	},
}

func printStatus(rt *runtime, processID int) error {
	status, err := rt.engine.Status(processID)
	if err != nil {
		return err
	}
	state := "running"
	if !status.Running {
		state = "closed"
	}
	fmt.Printf("process %d (%s): %s\n", status.ProcessID, status.Title, state)
	for _, task := range status.Tasks {
		line := fmt.Sprintf("  task %d %-8s %s (%d/%d closings)", task.TaskID, task.State, task.Name, task.Closings, task.NecessaryClosings)
		if len(task.BlockedBy) > 0 {
			line += fmt.Sprintf(", waiting on %v", task.BlockedBy)
		}
		fmt.Println(line)
	}
	return nil
}

// loadTemplateArg resolves a template path, first literally, then relative to
// the configured template directory.
func loadTemplateArg(rt *runtime, arg string) (template.ProcessTemplate, error) {
	if _, err := os.Stat(arg); err == nil {
		return template.LoadFile(arg)
	}
	return template.LoadRelative(rt.cfg.TemplateDir, arg)
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
}
