package render

import (
	"context"
	"database/sql"
	"os"
	"sort"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	_ "modernc.org/sqlite"

	"github.com/walteh/projectmill/pkg/log"
)

const replaceMetadata = `REPLACE INTO metadata (name, value) VALUES (?, ?)`

// 🏷️ WriteMetadata stores meta in the metadata table of an MBTiles file.
// Rows are written in key order inside one transaction. The file must
// already exist.
func WriteMetadata(ctx context.Context, path string, meta map[string]string) (err error) {
	if _, err := os.Stat(path); err != nil {
		return errors.Errorf("opening tileset: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return errors.Errorf("opening tileset: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = errors.Errorf("closing tileset: %w", cerr)
		}
	}()

	txn, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rerr := txn.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
				zerolog.Ctx(ctx).Warn().Err(rerr).Msg("rolling back metadata")
			}
		}
	}()

	stmt, err := txn.PrepareContext(ctx, replaceMetadata)
	if err != nil {
		return errors.Errorf("preparing metadata statement: %w", err)
	}
	defer stmt.Close()

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		log.FromContext(ctx).Infof("writing custom metadata: %s -> %s", k, meta[k])
		if _, err := stmt.ExecContext(ctx, k, meta[k]); err != nil {
			return errors.Errorf("writing metadata %s: %w", k, err)
		}
	}

	if err := txn.Commit(); err != nil {
		return errors.Errorf("committing metadata: %w", err)
	}
	return nil
}
