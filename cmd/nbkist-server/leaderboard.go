package main

import (
	"nbkist-backend/lib/keyval"
	"nbkist-backend/services/leaderboard"
	"net/http"
	"strconv"
)

type LeaderboardConfig struct {
	CacheSize int `json:"cache_size"`
}

func InitLeaderboard(mux *http.ServeMux, cfg LeaderboardConfig, academics AcademicsInit) error {
	if cfg.CacheSize == 0 {
		cfg.CacheSize = 1024
	}

	service := leaderboard.NewService(leaderboard.Options{
		Database: academics.DB,
		Cache:    keyval.NewLRUStore(cfg.CacheSize),
	})

	mux.HandleFunc("GET /api/v1/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		sort := leaderboard.Sort(query.Get("sort"))
		if sort == "" {
			sort = leaderboard.SortAttendance
		}
		if sort != leaderboard.SortAttendance && sort != leaderboard.SortMidmarks {
			http.Error(w, "unknown sort", http.StatusBadRequest)
			return
		}
		page, _ := strconv.Atoi(query.Get("page"))
		size, _ := strconv.Atoi(query.Get("size"))

		result, err := service.GetPage(r.Context(), sort, page, size, leaderboard.Filters{
			Year:    query.Get("year"),
			Branch:  query.Get("branch"),
			Section: query.Get("section"),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, result)
	})
	mux.HandleFunc("GET /api/v1/leaderboard/analytics", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, service.Analytics(r.Context()))
	})
	mux.HandleFunc("POST /api/v1/leaderboard/invalidate", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		service.Invalidate(r.Context(), leaderboard.Sort(query.Get("sort")), leaderboard.Filters{
			Year:    query.Get("year"),
			Branch:  query.Get("branch"),
			Section: query.Get("section"),
		})
		w.WriteHeader(http.StatusNoContent)
	})

	return nil
}
