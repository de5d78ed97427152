package database

import (
	"database/sql"
)

type PgStoryRepository struct {
	conn *sql.DB
}

func NewPgStoryRepository(dsn string) (*PgStoryRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgStoryRepository{conn: db}, nil
}

func (db *PgStoryRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgStoryRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
