package commands

import (
	"fmt"
	"log"
	"nbkist-backend/services/academics"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var attMessage *bool

func init() {
	attMessage = attCmd.Flags().Bool("message", false, "Print the chat-formatted message instead of a table.")
	rootCmd.AddCommand(attCmd)
}

var attCmd = &cobra.Command{
	Use:   "att <roll>",
	Short: "Looks up a student's attendance report.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		service := createService()

		record, source, err := service.GetAttendance(cmd.Context(), args[0])
		if err != nil {
			log.Fatal(err)
		}
		student, err := service.GetStudent(cmd.Context(), args[0])
		if err != nil {
			log.Fatal(err)
		}

		if *attMessage {
			fmt.Println(academics.FormatAttendanceMessage(student, record))
			return
		}

		fmt.Printf("%s (%s): %.2f%% [%s]\n",
			student.Name, record.Roll, record.Percentage, source)

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Subject", "Attended", "Conducted", "Last Updated"})
		for _, subject := range record.Subjects {
			t.AppendRow(table.Row{
				subject.Subject, subject.Attended, subject.Conducted, subject.LastUpdated,
			})
		}
		t.AppendFooter(table.Row{
			"Total", record.TotalClasses.Attended, record.TotalClasses.Conducted, "",
		})
		t.Render()
	},
}
