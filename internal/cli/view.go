package cli

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/procflow/procflow/internal/tui"
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Browse processes interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()
		p := tea.NewProgram(tui.NewApp(rt.engine), tea.WithAltScreen())
		_, err = p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(viewCmd)
}
