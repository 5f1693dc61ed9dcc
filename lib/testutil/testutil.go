package testutil

import (
	"database/sql"
	"fmt"
	"nbkist-backend/lib/sqliteutil"
	"nbkist-backend/lib/telemetry"
	"testing"
)

type ServiceParams struct {
	Name string
	// if unspecified, it will skip setting up a db
	DbSchema string
}

type ServiceResult struct {
	DB *sql.DB
}

func SetupService(t testing.TB, params ServiceParams) (ServiceResult, func()) {
	cleanup := telemetry.SetupForTesting(t, fmt.Sprintf("test:%s", params.Name))

	var db *sql.DB
	if params.DbSchema != "" {
		var err error
		db, err = sqliteutil.OpenDB(params.DbSchema, ":memory:")
		if err != nil {
			t.Fatal(err)
		}
	}

	return ServiceResult{DB: db}, cleanup
}
