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

var midMessage *bool

func init() {
	midMessage = midCmd.Flags().Bool("message", false, "Print the chat-formatted message instead of a table.")
	rootCmd.AddCommand(midCmd)
}

var midCmd = &cobra.Command{
	Use:   "mid <roll>",
	Short: "Looks up a student's consolidated mid-term marks.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		service := createService()

		record, source, err := service.GetMidmarks(cmd.Context(), args[0])
		if err != nil {
			log.Fatal(err)
		}
		student, err := service.GetStudent(cmd.Context(), args[0])
		if err != nil {
			log.Fatal(err)
		}

		if *midMessage {
			fmt.Println(academics.FormatMidmarksMessage(student, record))
			return
		}

		average := academics.ComputeMidmarksAverage(record, student.Year)
		fmt.Printf("%s (%s): average %.2f [%s]\n",
			student.Name, record.Roll, average, source)

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Subject", "Mid 1", "Mid 2", "Average"})
		for _, entry := range record.Subjects {
			if entry.Kind == nbkrist.EntryLab {
				t.AppendRow(table.Row{entry.Subject, entry.M1, "-", "-"})
				continue
			}
			t.AppendRow(table.Row{entry.Subject, entry.M1, entry.M2, entry.Average})
		}
		t.Render()
	},
}
