// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package knowledge persists what sessions learn: a concept co-occurrence
// graph built from questions and insights, and the full results of finished
// sessions. The store is an accelerator, not a dependency; callers log its
// errors and continue, so a broken database never blocks research.
package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/deep-research/pkg/types"
)

// Concept is one node of the knowledge graph with its relatedness score.
type Concept struct {
	Name  string
	Score float64
}

// Store is the SQLite-backed knowledge base.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the knowledge database at path, creating parent
// directories and the schema as needed.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating knowledge directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS concepts (
			name TEXT PRIMARY KEY,
			mentions INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS edges (
			a TEXT NOT NULL REFERENCES concepts(name),
			b TEXT NOT NULL REFERENCES concepts(name),
			weight INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (a, b)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_a ON edges(a)`,
		`CREATE TABLE IF NOT EXISTS session_results (
			session_id TEXT PRIMARY KEY,
			query TEXT NOT NULL,
			result TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// UpdateKnowledge records what researching one question taught: every
// keyword of the question and its insight becomes a concept, and keywords
// appearing together gain edge weight. Updates are additive; weights only
// grow.
func (s *Store) UpdateKnowledge(ctx context.Context, question types.ResearchQuestion, insight string, evidence []types.CitationResult) error {
	keywords := types.ExtractKeywords(question.Text + " " + insight)
	if len(keywords) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	conceptStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO concepts (name, mentions) VALUES (?, 1)
		 ON CONFLICT(name) DO UPDATE SET mentions = mentions + 1`)
	if err != nil {
		return fmt.Errorf("preparing concept upsert: %w", err)
	}
	defer conceptStmt.Close()

	for _, k := range keywords {
		if _, err := conceptStmt.ExecContext(ctx, k); err != nil {
			return fmt.Errorf("upserting concept %s: %w", k, err)
		}
	}

	edgeStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO edges (a, b, weight) VALUES (?, ?, 1)
		 ON CONFLICT(a, b) DO UPDATE SET weight = weight + 1`)
	if err != nil {
		return fmt.Errorf("preparing edge upsert: %w", err)
	}
	defer edgeStmt.Close()

	// Edges are stored once with a < b; queries look at both columns.
	for i := 0; i < len(keywords); i++ {
		for j := i + 1; j < len(keywords); j++ {
			a, b := keywords[i], keywords[j]
			if a > b {
				a, b = b, a
			}
			if _, err := edgeStmt.ExecContext(ctx, a, b); err != nil {
				return fmt.Errorf("upserting edge %s-%s: %w", a, b, err)
			}
		}
	}

	return tx.Commit()
}

// FindRelatedConcepts returns concepts connected to the text's keywords,
// scored by edge weight normalized against the strongest edge seen and
// filtered to minScore. The input's own keywords are excluded.
func (s *Store) FindRelatedConcepts(ctx context.Context, text string, minScore float64) ([]Concept, error) {
	keywords := types.ExtractKeywords(text)
	if len(keywords) == 0 {
		return nil, nil
	}
	own := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		own[k] = true
	}

	weights := make(map[string]int)
	for _, k := range keywords {
		rows, err := s.db.QueryContext(ctx,
			`SELECT a, b, weight FROM edges WHERE a = ? OR b = ?`, k, k)
		if err != nil {
			return nil, fmt.Errorf("querying edges for %s: %w", k, err)
		}
		for rows.Next() {
			var a, b string
			var w int
			if err := rows.Scan(&a, &b, &w); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning edge: %w", err)
			}
			other := a
			if a == k {
				other = b
			}
			if !own[other] {
				weights[other] += w
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterating edges for %s: %w", k, err)
		}
		if err := rows.Close(); err != nil {
			return nil, fmt.Errorf("closing edge rows: %w", err)
		}
	}
	if len(weights) == 0 {
		return nil, nil
	}

	heaviest := 0
	for _, w := range weights {
		if w > heaviest {
			heaviest = w
		}
	}

	var out []Concept
	for name, w := range weights {
		score := types.ClampScore(float64(w) / float64(heaviest))
		if score >= minScore {
			out = append(out, Concept{Name: name, Score: score})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// StoreResult archives a finished session's result as YAML.
func (s *Store) StoreResult(ctx context.Context, result types.Result) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_results (session_id, query, result, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET query=excluded.query, result=excluded.result, created_at=excluded.created_at`,
		result.SessionID, result.Query, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("storing session result: %w", err)
	}
	return nil
}

// LoadResult retrieves an archived session result.
func (s *Store) LoadResult(ctx context.Context, sessionID string) (types.Result, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT result FROM session_results WHERE session_id = ?`, sessionID).Scan(&data)
	if err != nil {
		return types.Result{}, fmt.Errorf("loading session result: %w", err)
	}
	var result types.Result
	if err := yaml.Unmarshal([]byte(data), &result); err != nil {
		return types.Result{}, fmt.Errorf("parsing session result: %w", err)
	}
	return result, nil
}

// Nop is the knowledge store used when persistence is disabled. Every
// operation succeeds and remembers nothing.
type Nop struct{}

func (Nop) UpdateKnowledge(context.Context, types.ResearchQuestion, string, []types.CitationResult) error {
	return nil
}

func (Nop) FindRelatedConcepts(context.Context, string, float64) ([]Concept, error) {
	return nil, nil
}

func (Nop) StoreResult(context.Context, types.Result) error { return nil }

func (Nop) Close() error { return nil }
