package postgres

import (
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const schema = `
	CREATE TABLE IF NOT EXISTS safety_assessments (
		id              VARCHAR(26) PRIMARY KEY,
		user_id         VARCHAR(64),
		image_url       TEXT,
		status          VARCHAR(20) NOT NULL DEFAULT 'completed',
		overall_score   INTEGER NOT NULL,
		critical_issues INTEGER NOT NULL,
		medium_issues   INTEGER NOT NULL,
		recommendations INTEGER NOT NULL,
		width           INTEGER NOT NULL,
		height          INTEGER NOT NULL,
		point_count     INTEGER NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_safety_assessments_user_id
		ON safety_assessments (user_id, created_at DESC);
`

// DSN builds a lib/pq connection string from DB_* variables.
func DSN() string {
	sslMode := os.Getenv("DB_SSLMODE")
	if sslMode == "" {
		sslMode = "disable"
	}
	port := os.Getenv("DB_PORT")
	if port == "" {
		port = "5432"
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		os.Getenv("DB_HOST"),
		port,
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		sslMode,
	)
}

func New() (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return db, nil
}
