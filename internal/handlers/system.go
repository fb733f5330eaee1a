package handlers

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const (
	postgresSchema   = "001_initial_schema.sql"
	clickhouseSchema = "001_initial_schema.sql"
)

var errBackendDisabled = errors.New("backend not configured")

// InstallDatabase applies the bundled schema files to every configured
// backend. Unconfigured backends are reported as skipped.
func (h *Handler) InstallDatabase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	results := make(map[string]string)
	hasError := false

	record := func(name string, err error) {
		switch {
		case err == nil:
			results[name] = "success"
		case errors.Is(err, errBackendDisabled):
			results[name] = "skipped"
		default:
			results[name] = "failed: " + err.Error()
			hasError = true
		}
	}

	record("postgres", h.installPostgres(ctx, filepath.Join(h.migrations, "postgres", postgresSchema)))
	record("clickhouse", h.installClickHouse(ctx, filepath.Join(h.migrations, "clickhouse", clickhouseSchema)))

	status := http.StatusOK
	if hasError {
		status = http.StatusInternalServerError
	}
	h.jsonResponse(w, status, map[string]interface{}{
		"status":  "completed",
		"results": results,
		"error":   hasError,
	})
}

func (h *Handler) installPostgres(ctx context.Context, path string) error {
	if h.pg == nil {
		return errBackendDisabled
	}
	content, err := os.ReadFile(path)
	if err != nil {
		h.logger.Errorw("Failed to read schema file", "db", "postgres", "path", path, "error", err)
		return err
	}
	if _, err := h.pg.Exec(ctx, string(content)); err != nil {
		h.logger.Errorw("Failed to execute schema", "db", "postgres", "error", err)
		return err
	}
	h.logger.Infow("Installed schema", "db", "postgres")
	return nil
}

// ClickHouse rejects multi-statement queries, so the file is split on ';'.
func (h *Handler) installClickHouse(ctx context.Context, path string) error {
	if h.ch == nil {
		return errBackendDisabled
	}
	content, err := os.ReadFile(path)
	if err != nil {
		h.logger.Errorw("Failed to read schema file", "db", "clickhouse", "path", path, "error", err)
		return err
	}
	for _, stmt := range splitStatements(string(content)) {
		if err := h.ch.Exec(ctx, stmt); err != nil {
			h.logger.Warnw("Statement failed", "db", "clickhouse", "error", err, "statement", truncate(stmt, 50))
			return err
		}
	}
	h.logger.Infow("Installed schema", "db", "clickhouse")
	return nil
}

// splitStatements drops empty and comment-only fragments.
func splitStatements(sql string) []string {
	var out []string
	for _, stmt := range strings.Split(sql, ";") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "--") {
				continue
			}
			lines = append(lines, line)
		}
		if trimmed := strings.TrimSpace(strings.Join(lines, "\n")); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
