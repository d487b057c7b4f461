package directory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/vlesskeeper/internal/directory/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// DBTX is the subset of database/sql used by the store.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// PostgresStore keeps the directory in the directory_users table, ordered
// by insertion sequence.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects with the pgx driver and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgresStore(db), nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Init applies the embedded migrations.
func (s *PostgresStore) Init(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, s.db, "."); err != nil {
		return fmt.Errorf("migrate directory: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) (*State, error) {
	query :=
		`SELECT username, identity, contact_handle, external_id, descriptor, created_at, active, traffic_used
		 FROM directory_users
		 ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	st := &State{Users: []User{}}
	for rows.Next() {
		var (
			u   User
			ext sql.NullInt64
		)
		if err := rows.Scan(&u.Username, &u.Identity, &u.ContactHandle, &ext,
			&u.Descriptor, &u.CreatedAt, &u.Active, &u.TrafficUsed); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if ext.Valid {
			v := ext.Int64
			u.ExternalID = &v
		}
		st.Users = append(st.Users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return st, nil
}

// Save makes the table hold exactly st.Users: rows for vanished usernames
// are deleted and new usernames inserted, all in one transaction. Existing
// rows are left as they are since records are immutable after creation.
func (s *PostgresStore) Save(ctx context.Context, st *State) error {
	return withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		names := make([]string, 0, len(st.Users))
		for _, u := range st.Users {
			names = append(names, u.Username)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM directory_users WHERE NOT (username = ANY($1))`, names); err != nil {
			return fmt.Errorf("db error: %w", err)
		}

		insert :=
			`INSERT INTO directory_users
			   (username, identity, contact_handle, external_id, descriptor, created_at, active, traffic_used)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (username) DO NOTHING`

		for _, u := range st.Users {
			var ext sql.NullInt64
			if u.ExternalID != nil {
				ext = sql.NullInt64{Int64: *u.ExternalID, Valid: true}
			}
			if _, err := tx.ExecContext(ctx, insert, u.Username, u.Identity, u.ContactHandle, ext,
				u.Descriptor, u.CreatedAt, u.Active, u.TrafficUsed); err != nil {
				return fmt.Errorf("db error: %w", err)
			}
		}
		return nil
	})
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error or panic.
func withTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(ctx, tx)
}
