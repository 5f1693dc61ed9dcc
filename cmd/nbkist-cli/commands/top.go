package commands

import (
	"log"
	"nbkist-backend/lib/configutil"
	"nbkist-backend/lib/keyval"
	"nbkist-backend/lib/serviceutil"
	"nbkist-backend/lib/sqliteutil"
	"nbkist-backend/services/academics/db"
	"nbkist-backend/services/leaderboard"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	topSort    *string
	topPage    *int
	topSize    *int
	topYear    *string
	topBranch  *string
	topSection *string
)

func init() {
	topSort = topCmd.Flags().String("sort", "attendance", "Ranking metric, attendance or midmarks.")
	topPage = topCmd.Flags().Int("page", 1, "Page number.")
	topSize = topCmd.Flags().Int("size", 10, "Page size.")
	topYear = topCmd.Flags().String("year", "all", "Year/semester code filter.")
	topBranch = topCmd.Flags().String("branch", "all", "Branch code filter.")
	topSection = topCmd.Flags().String("section", "all", "Section filter.")
	rootCmd.AddCommand(topCmd)
}

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Prints a leaderboard over the stats collected so far.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := configutil.ReadConfig[Config]("config.json5")
		if err != nil {
			serviceutil.Fatal("read config", err)
		}
		database, err := sqliteutil.OpenDB(db.Schema, cfg.Database)
		if err != nil {
			serviceutil.Fatal("open database", err)
		}

		service := leaderboard.NewService(leaderboard.Options{
			Database: database,
			Cache:    keyval.NewLRUStore(64),
		})

		page, err := service.GetPage(
			cmd.Context(),
			leaderboard.Sort(*topSort),
			*topPage, *topSize,
			leaderboard.Filters{
				Year:    *topYear,
				Branch:  *topBranch,
				Section: *topSection,
			},
		)
		if err != nil {
			log.Fatal(err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Rank", "Roll", "Name", "Section", "Value"})
		for _, entry := range page.Entries {
			t.AppendRow(table.Row{
				entry.Rank, entry.Roll, entry.Name, entry.Section, entry.Value,
			})
		}
		t.Render()
	},
}
