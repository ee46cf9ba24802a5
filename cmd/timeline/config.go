package main

import (
	"os"
	"strconv"
)

type config struct {
	port               string
	orchestratorURL    string
	maxConcurrent      int
	archiveDatabaseURL string
	archivePageSize    int
}

func loadConfig() config {
	return config{
		port:               envStr("TIMELINE_PORT", "8090"),
		orchestratorURL:    envStr("ORCHESTRATOR_WS_URL", "ws://localhost:9000"),
		maxConcurrent:      envInt("MAX_CONCURRENT_SESSIONS", 50),
		archiveDatabaseURL: envStr("ARCHIVE_DATABASE_URL", ""),
		archivePageSize:    envInt("ARCHIVE_PAGE_SIZE", 20),
	}
}

func envStr(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}
