package main

import (
	"database/sql"
	"errors"
	"nbkist-backend/lib/keyval"
	"nbkist-backend/lib/scrapers/nbkrist"
	"nbkist-backend/lib/sqliteutil"
	"nbkist-backend/services/academics"
	"nbkist-backend/services/academics/db"
	"net/http"
	"strconv"
	"time"
)

type PortalConfig struct {
	BaseUrl  string `json:"base_url"`
	Username string `json:"username"`
	Password string `json:"password"`
	AcadYear string `json:"acad_year"`
	// per-attempt budget in seconds, 0 means the client default
	TimeoutSeconds int `json:"timeout_seconds"`
}

type AlertConfig struct {
	Smtp academics.SmtpConfig `json:"smtp"`
	To   string               `json:"to"`
}

type AcademicsConfig struct {
	Database  string       `json:"database"`
	CacheSize int          `json:"cache_size"`
	Portal    PortalConfig `json:"portal"`
	Alerts    *AlertConfig `json:"alerts"`
}

type AcademicsInit struct {
	Service academics.Service
	DB      *sql.DB
}

func InitAcademics(mux *http.ServeMux, cfg AcademicsConfig) (AcademicsInit, error) {
	database, err := sqliteutil.OpenDB(db.Schema, cfg.Database)
	if err != nil {
		return AcademicsInit{}, err
	}

	if cfg.CacheSize == 0 {
		cfg.CacheSize = 4096
	}
	cache := keyval.NewLRUStore(cfg.CacheSize)

	client := nbkrist.NewClient(nbkrist.ClientOptions{
		BaseUrl:  cfg.Portal.BaseUrl,
		Username: cfg.Portal.Username,
		Password: cfg.Portal.Password,
		AcadYear: cfg.Portal.AcadYear,
		Session:  cache,
		Timeout:  time.Duration(cfg.Portal.TimeoutSeconds) * time.Second,
	})

	var alerts *academics.Alerter
	if cfg.Alerts != nil {
		alerts = academics.NewAlerter(academics.AlertOptions{
			Smtp: cfg.Alerts.Smtp,
			To:   cfg.Alerts.To,
		})
	}

	service := academics.NewService(academics.Options{
		Database: database,
		Cache:    cache,
		Client:   client,
		Alerts:   alerts,
	})

	mux.HandleFunc("GET /api/v1/attendance/{roll}", func(w http.ResponseWriter, r *http.Request) {
		record, source, err := service.GetAttendance(r.Context(), r.PathValue("roll"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"source": source, "attendance": record})
	})
	mux.HandleFunc("GET /api/v1/midmarks/{roll}", func(w http.ResponseWriter, r *http.Request) {
		record, source, err := service.GetMidmarks(r.Context(), r.PathValue("roll"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"source": source, "midmarks": record})
	})
	mux.HandleFunc("GET /api/v1/attendance/{roll}/trend", func(w http.ResponseWriter, r *http.Request) {
		points, err := service.GetAttendanceTrend(r.Context(), r.PathValue("roll"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"trend": points})
	})
	mux.HandleFunc("GET /api/v1/students/search", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit < 1 || limit > 25 {
			limit = 5
		}
		students, err := service.Store().SearchStudentsByName(
			r.Context(), r.URL.Query().Get("q"), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"students": students})
	})

	return AcademicsInit{Service: service, DB: database}, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, nbkrist.ErrNoDataFound):
		return http.StatusNotFound
	case errors.Is(err, nbkrist.ErrReportBlocked):
		return http.StatusForbidden
	case errors.Is(err, nbkrist.ErrServerDown),
		errors.Is(err, nbkrist.ErrSessionInvalid):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
