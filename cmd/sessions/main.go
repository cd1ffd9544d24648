// Command sessions inspects the durable session database: it lists stored
// conversations or dumps one user's history and settings.
package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/session"
)

// Record pairs a stored session with its bookkeeping columns.
type Record struct {
	UserID    int64
	UpdatedAt int64
	Session   session.Session
}

func main() {
	var (
		dbPath    string
		userID    int64
		lastN     int
		jsonOut   bool
		noHistory bool
	)

	flag.StringVar(&dbPath, "db", envOrDefault("BOT_STORAGE_PATH", "./db.sqlite"), "SQLite database path")
	flag.Int64Var(&userID, "user", 0, "show one user's full session")
	flag.IntVar(&lastN, "L", 0, "limit displayed turns to the last N (0 = all)")
	flag.BoolVar(&jsonOut, "json", false, "output JSON format")
	flag.BoolVar(&noHistory, "no-history", false, "hide turn contents")
	flag.Parse()

	db, err := sql.Open("sqlite3", dbPath+"?mode=ro&_journal_mode=WAL")
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	records, err := loadRecords(db, userID)
	if err != nil {
		log.Fatalf("load sessions: %v", err)
	}
	if len(records) == 0 {
		if userID != 0 {
			log.Fatalf("no session stored for user %d", userID)
		}
		fmt.Println("no sessions stored")
		return
	}

	if jsonOut {
		printJSON(records, lastN, noHistory)
		return
	}
	showTurns := userID != 0 && !noHistory
	for _, rec := range records {
		fmt.Println(summaryLine(rec))
		if showTurns {
			for _, t := range limitTurns(rec.Session.History, lastN) {
				fmt.Println(turnLine(t))
			}
		}
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadRecords reads every stored session, or just one user's when userID is
// non-zero. Rows arrive in user order for stable output.
func loadRecords(db *sql.DB, userID int64) ([]Record, error) {
	query := `SELECT user_id, record, updated_at FROM sessions ORDER BY user_id ASC`
	var args []any
	if userID != 0 {
		query = `SELECT user_id, record, updated_at FROM sessions WHERE user_id = ?`
		args = append(args, userID)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec Record
			raw string
		)
		if err := rows.Scan(&rec.UserID, &raw, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &rec.Session); err != nil {
			return nil, fmt.Errorf("user %d: corrupt record: %v", rec.UserID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// summaryLine formats one session: [user] updated  turns=N temperature=V fingerprint="..."
func summaryLine(rec Record) string {
	ts := time.Unix(rec.UpdatedAt, 0).UTC().Format("2006-01-02 15:04:05")
	line := fmt.Sprintf("[%d] %s  turns=%d temperature=%g",
		rec.UserID, ts, len(rec.Session.History), rec.Session.Settings.Temperature)
	if fp := rec.Session.Settings.SystemFingerprint; fp != "" {
		line += fmt.Sprintf("  fingerprint=%q", truncate(fp, 60))
	}
	return line
}

func turnLine(t session.Turn) string {
	return fmt.Sprintf("  %s> %s", t.Role, truncate(t.Content, 100))
}

func limitTurns(history []session.Turn, lastN int) []session.Turn {
	if lastN > 0 && len(history) > lastN {
		return history[len(history)-lastN:]
	}
	return history
}

// truncate shortens long text at a rune boundary for display.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// JSON output types.
type jsonRecord struct {
	UserID    int64            `json:"user_id"`
	UpdatedAt int64            `json:"updated_at"`
	Settings  session.Settings `json:"settings"`
	History   []session.Turn   `json:"history,omitempty"`
}

func printJSON(records []Record, lastN int, noHistory bool) {
	out := make([]jsonRecord, 0, len(records))
	for _, rec := range records {
		jr := jsonRecord{
			UserID:    rec.UserID,
			UpdatedAt: rec.UpdatedAt,
			Settings:  rec.Session.Settings,
		}
		if !noHistory {
			jr.History = limitTurns(rec.Session.History, lastN)
		}
		out = append(out, jr)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("encode json: %v", err)
	}
}
