package commands

import (
	"log"
	"nbkist-backend/services/academics"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var searchLimit *int

func init() {
	searchLimit = searchCmd.Flags().Int("limit", 5, "Maximum number of matches to print.")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <name...>",
	Short: "Fuzzy-searches registered students by name.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		service := createService()

		students, err := service.Store().SearchStudentsByName(
			cmd.Context(), strings.Join(args, " "), *searchLimit)
		if err != nil {
			log.Fatal(err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Roll", "Name", "Class"})
		for _, student := range students {
			t.AppendRow(table.Row{
				student.Roll, student.Name, academics.YearBranchSection(student),
			})
		}
		t.Render()
	},
}
