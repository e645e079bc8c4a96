package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/procflow/procflow/internal/process"
)

var assignDone bool

var assignCmd = &cobra.Command{
	Use:   "assign <taskID> <assignee>",
	Short: "Assign a task to an assignee",
	Long: `Assign creates a task assignment. With --done the assignment is created
already closed, which is only allowed while the task's predecessors are all
closed.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, taskID, err := runtimeWithTask(args[0])
		if err != nil {
			return err
		}
		defer rt.close()
		a := process.Assignment{TaskID: taskID, Assignee: args[1]}
		if assignDone {
			a.ClosedAt = time.Now()
		}
		id, err := rt.engine.CreateAssignment(a)
		if err != nil {
			return err
		}
		fmt.Printf("assignment %d created for task %d\n", id, taskID)
		return nil
	},
}

var closeCmd = &cobra.Command{
	Use:   "close <taskID> <assignee>",
	Short: "Close a task assignment",
	Long: `Close records the closing of one assignment. When the task's necessary
closing count is reached the task closes, and when every task of the process
is closed the process closes automatically.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, taskID, err := runtimeWithTask(args[0])
		if err != nil {
			return err
		}
		defer rt.close()
		if err := rt.engine.CloseAssignment(taskID, args[1]); err != nil {
			return err
		}
		fmt.Printf("assignment for task %d closed by %s\n", taskID, args[1])
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <taskID> <assignee>",
	Short: "Remove an open task assignment",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, taskID, err := runtimeWithTask(args[0])
		if err != nil {
			return err
		}
		defer rt.close()
		if err := rt.engine.DeleteAssignment(taskID, args[1]); err != nil {
			return err
		}
		fmt.Printf("assignment for task %d removed\n", taskID)
		return nil
	},
}

func runtimeWithTask(arg string) (*runtime, int, error) {
	taskID, err := strconv.Atoi(arg)
	if err != nil {
		return nil, 0, fmt.Errorf("cli: invalid task id %q", arg)
	}
	rt, err := newRuntime()
	if err != nil {
		return nil, 0, err
	}
	return rt, taskID, nil
}

func init() {
	assignCmd.Flags().BoolVar(&assignDone, "done", false, "create the assignment already closed")
	rootCmd.AddCommand(assignCmd)
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(removeCmd)
}
