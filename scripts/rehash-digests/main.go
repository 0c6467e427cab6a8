// Command rehash-digests recomputes output_digest for every persisted run.
// Run it after changing the digest algorithm so stored runs stay comparable
// with new ones.
//
// Usage:
//
//	LOOM_DB_PATH=loom.db go run ./scripts/rehash-digests
//
// The script reads each run's trace, recomputes the digest from the rendered
// text, and updates any rows where the stored digest differs. It prints the
// number of rows fixed and exits.
//
// Safe to run multiple times. Once all digests match, it reports 0 updates.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/trace"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	_ = godotenv.Load()

	path := os.Getenv("LOOM_DB_PATH")
	if path == "" {
		path = "loom.db"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT run_id, output_digest, trace
		 FROM run_records
		 ORDER BY created_at ASC`)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	type staleRow struct {
		runID  string
		digest string
	}

	var stale []staleRow
	var total int
	for rows.Next() {
		var runID, storedDigest, rawTrace string
		if err := rows.Scan(&runID, &storedDigest, &rawTrace); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		total++

		var t model.TraceRun
		if err := json.Unmarshal([]byte(rawTrace), &t); err != nil {
			log.Printf("run %s: malformed trace, skipping: %v", runID, err)
			continue
		}
		expected := trace.Digest(t.Text)
		if storedDigest != expected {
			stale = append(stale, staleRow{runID: runID, digest: expected})
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows: %w", err)
	}

	fmt.Printf("scanned %d runs, %d have stale digests\n", total, len(stale))

	if len(stale) == 0 {
		fmt.Println("nothing to do")
		return nil
	}

	updated := 0
	for _, r := range stale {
		res, err := db.ExecContext(ctx,
			`UPDATE run_records SET output_digest = ? WHERE run_id = ?`,
			r.digest, r.runID)
		if err != nil {
			log.Printf("update %s: %v", r.runID, err)
			continue
		}
		if n, _ := res.RowsAffected(); n > 0 {
			updated++
		}
	}

	fmt.Printf("updated %d/%d stale digests\n", updated, len(stale))
	return nil
}
