package commands

import (
	"context"
	"fmt"
	"nbkist-backend/lib/configutil"
	"nbkist-backend/lib/keyval"
	"nbkist-backend/lib/scrapers/nbkrist"
	"nbkist-backend/lib/serviceutil"
	"nbkist-backend/lib/sqliteutil"
	"nbkist-backend/services/academics"
	"nbkist-backend/services/academics/db"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "nbkist-cli",
	Short: "nbkist-cli queries the college portal through the same stack the server runs.",
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type PortalConfig struct {
	BaseUrl  string `json:"base_url"`
	Username string `json:"username"`
	Password string `json:"password"`
	AcadYear string `json:"acad_year"`
}

type Config struct {
	Database string       `json:"database"`
	Portal   PortalConfig `json:"portal"`
}

func createService() academics.Service {
	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("read config", err)
	}

	database, err := sqliteutil.OpenDB(db.Schema, cfg.Database)
	if err != nil {
		serviceutil.Fatal("open database", err)
	}

	cache := keyval.NewLRUStore(1024)
	client := nbkrist.NewClient(nbkrist.ClientOptions{
		BaseUrl:  cfg.Portal.BaseUrl,
		Username: cfg.Portal.Username,
		Password: cfg.Portal.Password,
		AcadYear: cfg.Portal.AcadYear,
		Session:  cache,
		Timeout:  time.Second * 10,
	})

	return academics.NewService(academics.Options{
		Database: database,
		Cache:    cache,
		Client:   client,
	})
}
