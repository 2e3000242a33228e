package nsc

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Catalog is a sqlite record of scrape runs and the papers each run found.
type Catalog struct {
	db *sql.DB
}

// Run summarises one invocation of the scraper.
type Run struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool
	Summary    Summary
}

func NewRun(dryRun bool) Run {
	return Run{
		ID:        uuid.New(),
		StartedAt: time.Now().UTC(),
		DryRun:    dryRun,
	}
}

func OpenCatalog(dbPath string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	c := &Catalog{db: db}
	if err := c.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return c, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) initialize() error {
	_, err := c.db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return err
	}

	_, err = c.db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return fmt.Errorf("failed to set journal mode: %w", err)
	}

	_, err = c.db.Exec(`
    CREATE TABLE IF NOT EXISTS runs (
        id TEXT PRIMARY KEY,
        started_at DATETIME NOT NULL,
        finished_at DATETIME NOT NULL,
        dry_run BOOLEAN NOT NULL,
        sessions INTEGER NOT NULL,
        discovered INTEGER NOT NULL,
        downloaded INTEGER NOT NULL,
        failed INTEGER NOT NULL
    )`)
	if err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}

	_, err = c.db.Exec(`
    CREATE TABLE IF NOT EXISTS papers (
        run_id TEXT NOT NULL,
        id TEXT NOT NULL,
        position INTEGER NOT NULL,
        year INTEGER NOT NULL,
        session TEXT NOT NULL,
        grade INTEGER NOT NULL,
        subject TEXT NOT NULL,
        paper_number INTEGER,
        language TEXT NOT NULL,
        paper_type TEXT NOT NULL,
        file_url TEXT NOT NULL,
        file_name TEXT NOT NULL,
        file_size INTEGER,
        downloaded BOOLEAN NOT NULL,
        local_path TEXT,
        PRIMARY KEY (run_id, position),
        FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
    )`)
	if err != nil {
		return fmt.Errorf("failed to create papers table: %w", err)
	}

	return nil
}

// PaperID identifies a paper across runs by its source URL.
func PaperID(p ExamPaper) string {
	return Sha256sum([]byte(p.FileURL))
}

// RecordRun stores a finished run and all of its papers in one transaction.
func (c *Catalog) RecordRun(run Run, papers []ExamPaper) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	_, err = tx.Exec(`
        INSERT INTO runs (id, started_at, finished_at, dry_run, sessions, discovered, downloaded, failed)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(),
		run.StartedAt.Format(time.RFC3339),
		run.FinishedAt.Format(time.RFC3339),
		run.DryRun,
		run.Summary.Sessions,
		run.Summary.Discovered,
		run.Summary.Downloaded,
		run.Summary.Failed,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.Prepare(`
        INSERT INTO papers (run_id, id, position, year, session, grade, subject, paper_number,
                            language, paper_type, file_url, file_name, file_size, downloaded, local_path)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, p := range papers {
		_, err := stmt.Exec(
			run.ID.String(), PaperID(p), i,
			p.Year, string(p.Session), p.Grade, p.Subject, p.PaperNumber,
			string(p.Language), string(p.PaperType), p.FileURL, p.FileName,
			p.FileSize, p.Downloaded, p.LocalPath,
		)
		if err != nil {
			return fmt.Errorf("failed to insert paper %s: %w", p.FileURL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Papers returns the papers recorded for a run in their original order.
func (c *Catalog) Papers(runID uuid.UUID) ([]ExamPaper, error) {
	rows, err := c.db.Query(`
        SELECT year, session, grade, subject, paper_number, language, paper_type,
               file_url, file_name, file_size, downloaded, local_path
        FROM papers
        WHERE run_id = ?
        ORDER BY position`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query papers: %w", err)
	}
	defer rows.Close()

	papers := []ExamPaper{}
	for rows.Next() {
		var (
			p           ExamPaper
			session     string
			lang        string
			paperType   string
			paperNumber sql.NullInt64
			fileSize    sql.NullInt64
			localPath   sql.NullString
		)

		err := rows.Scan(
			&p.Year, &session, &p.Grade, &p.Subject, &paperNumber, &lang, &paperType,
			&p.FileURL, &p.FileName, &fileSize, &p.Downloaded, &localPath,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan paper row: %w", err)
		}

		p.Session = Period(session)
		p.Language = Language(lang)
		p.PaperType = PaperType(paperType)
		if paperNumber.Valid {
			n := int(paperNumber.Int64)
			p.PaperNumber = &n
		}
		if fileSize.Valid {
			size := fileSize.Int64
			p.FileSize = &size
		}
		if localPath.Valid {
			s := localPath.String
			p.LocalPath = &s
		}

		papers = append(papers, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating paper rows: %w", err)
	}

	return papers, nil
}

// LatestRun returns the most recently started run, or nil if there is none.
func (c *Catalog) LatestRun() (*Run, error) {
	row := c.db.QueryRow(`
        SELECT id, started_at, finished_at, dry_run, sessions, discovered, downloaded, failed
        FROM runs
        ORDER BY started_at DESC
        LIMIT 1`)

	var (
		run      Run
		id       string
		started  string
		finished string
	)

	err := row.Scan(&id, &started, &finished, &run.DryRun,
		&run.Summary.Sessions, &run.Summary.Discovered, &run.Summary.Downloaded, &run.Summary.Failed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	if run.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("bad run id %q: %w", id, err)
	}
	if run.StartedAt, err = time.Parse(time.RFC3339, started); err != nil {
		return nil, fmt.Errorf("failed to parse timestamp: %w", err)
	}
	if run.FinishedAt, err = time.Parse(time.RFC3339, finished); err != nil {
		return nil, fmt.Errorf("failed to parse timestamp: %w", err)
	}

	return &run, nil
}
