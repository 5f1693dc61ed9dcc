package commands

import (
	"fmt"
	"log"
	"nbkist-backend/lib/scrapers/nbkrist"
	"nbkist-backend/services/academics"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var trendMessage *bool

func init() {
	trendMessage = trendCmd.Flags().Bool("message", false, "Print the chat-formatted message instead of a table.")
	rootCmd.AddCommand(trendCmd)
}

var trendCmd = &cobra.Command{
	Use:   "trend <roll>",
	Short: "Shows a student's attendance over the last seven weekly reports.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		service := createService()

		points, err := service.GetAttendanceTrend(cmd.Context(), args[0])
		if err != nil {
			log.Fatal(err)
		}
		student, err := service.GetStudent(cmd.Context(), args[0])
		if err != nil {
			log.Fatal(err)
		}

		if *trendMessage {
			roll := nbkrist.CanonicalRoll(args[0])
			fmt.Println(academics.FormatAttendanceTrendMessage(student, roll, points))
			return
		}

		fmt.Printf("%s: %d weekly reports\n", student.Name, len(points))

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Week Of", "Attended", "Conducted", "Percentage"})
		for _, point := range points {
			t.AppendRow(table.Row{
				point.Date,
				point.Record.TotalClasses.Attended,
				point.Record.TotalClasses.Conducted,
				fmt.Sprintf("%.2f%%", point.Record.Percentage),
			})
		}
		t.Render()
	},
}
