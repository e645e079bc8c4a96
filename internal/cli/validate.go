package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/procflow/procflow/internal/schedule"
	"github.com/procflow/procflow/internal/template"
)

var validateCmd = &cobra.Command{
	Use:   "validate <template.yaml>",
	Short: "Validate a process template",
	Long: `Validate checks a process template file: field rules, predecessor
references, and acyclicity of the dependency graph. When a duration limit is
set, the critical-path makespan is checked against it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := template.LoadFile(args[0])
		if err != nil {
			return err
		}
		if schedule.DetectCycle(def.Tasks) {
			return fmt.Errorf("template %s: dependency graph contains a cycle", def.ID)
		}
		result, err := schedule.Compute(def.Tasks)
		if err != nil {
			return err
		}
		fmt.Printf("template %s: %d tasks, makespan %d\n", def.ID, len(def.Tasks), result.Makespan)
		if def.DurationLimit > 0 && result.Makespan > def.DurationLimit {
			fmt.Printf("warning: makespan %d exceeds duration limit %d\n", result.Makespan, def.DurationLimit)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
