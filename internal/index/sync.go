package index

import (
	"log/slog"

	"github.com/starford/ogfetch/internal/storage"
)

// Prune removes history rows whose documents no longer exist in the vault.
// It returns the number of rows removed.
func Prune(db *DB, store storage.Provider, logger *slog.Logger) (int, error) {
	metas, err := store.List("")
	if err != nil {
		return 0, err
	}
	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
	}

	rows, err := db.conn.Query(`SELECT path FROM fetches`)
	if err != nil {
		return 0, err
	}
	var stale []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return 0, err
		}
		if _, ok := disk[p]; !ok {
			stale = append(stale, p)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	removed := 0
	for _, p := range stale {
		if err := db.Delete(p); err != nil {
			logger.Warn("prune: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("prune: removed stale", slog.String("path", p))
		removed++
	}
	return removed, nil
}
