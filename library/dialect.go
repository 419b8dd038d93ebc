package library

import (
	"fmt"

	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // goqu dialect
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // goqu dialect
	_ "github.com/jackc/pgx/v5/stdlib"                  // registers "pgx"
	_ "github.com/lib/pq"                               // registers "postgres"
	_ "github.com/mattn/go-sqlite3"                     // registers "sqlite3"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverPGX      = "pgx"
)

// dialect captures the few places where sqlite and postgres disagree.
type dialect struct {
	// goqu dialect name used for generated queries.
	goqu string
	// Appended to SELECTs that read a row before updating it. sqlite has no
	// row locks; its transactions start with BEGIN IMMEDIATE instead.
	forUpdate string
	// Schema statements, applied in order inside one transaction.
	schema []string
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverSQLite:
		return sqliteDialect, nil
	case DriverPostgres, DriverPGX:
		return postgresDialect, nil
	}
	return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
}

var sqliteDialect = dialect{
	goqu:      "sqlite3",
	forUpdate: "",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS authors (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            biography TEXT,
            nationality TEXT
        );`,
		`CREATE TABLE IF NOT EXISTS categories (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL UNIQUE,
            description TEXT
        );`,
		`CREATE TABLE IF NOT EXISTS publishers (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            country TEXT,
            website TEXT
        );`,
		`CREATE TABLE IF NOT EXISTS books (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            title TEXT NOT NULL,
            author_id INTEGER NOT NULL REFERENCES authors(id) ON DELETE CASCADE,
            publisher_id INTEGER REFERENCES publishers(id) ON DELETE SET NULL,
            isbn TEXT UNIQUE,
            publication_year INTEGER NOT NULL,
            pages INTEGER,
            language TEXT NOT NULL DEFAULT 'English',
            description TEXT NOT NULL DEFAULT '',
            kind TEXT NOT NULL DEFAULT 'novel',
            total_copies INTEGER NOT NULL DEFAULT 1,
            available_copies INTEGER NOT NULL DEFAULT 1,
            popular BOOLEAN NOT NULL DEFAULT FALSE,
            is_new BOOLEAN NOT NULL DEFAULT FALSE,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            CHECK (total_copies >= 0),
            CHECK (available_copies >= 0 AND available_copies <= total_copies)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_books_title ON books(title);`,
		`CREATE INDEX IF NOT EXISTS idx_books_author ON books(author_id);`,
		`CREATE INDEX IF NOT EXISTS idx_books_publisher ON books(publisher_id);`,
		`CREATE TABLE IF NOT EXISTS book_categories (
            book_id INTEGER NOT NULL REFERENCES books(id) ON DELETE CASCADE,
            category_id INTEGER NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
            PRIMARY KEY (book_id, category_id)
        );`,
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            username TEXT NOT NULL UNIQUE,
            email TEXT NOT NULL,
            first_name TEXT NOT NULL DEFAULT '',
            last_name TEXT NOT NULL DEFAULT '',
            password_hash TEXT NOT NULL,
            is_admin BOOLEAN NOT NULL DEFAULT FALSE,
            created_at DATETIME NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS user_profiles (
            user_id INTEGER PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
            phone TEXT,
            address TEXT,
            card_number TEXT UNIQUE,
            active BOOLEAN NOT NULL DEFAULT TRUE,
            max_concurrent_loans INTEGER NOT NULL DEFAULT 3,
            default_loan_period_days INTEGER NOT NULL DEFAULT 14
        );`,
		`CREATE TABLE IF NOT EXISTS loans (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            book_id INTEGER NOT NULL REFERENCES books(id) ON DELETE CASCADE,
            created_at DATETIME NOT NULL,
            due_at DATETIME NOT NULL,
            returned_at DATETIME,
            state TEXT NOT NULL DEFAULT 'active',
            renewal_count INTEGER NOT NULL DEFAULT 0,
            max_renewals INTEGER NOT NULL DEFAULT 2,
            notes TEXT,
            CHECK (renewal_count >= 0 AND renewal_count <= max_renewals)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_loans_user_state ON loans(user_id, state);`,
		`CREATE INDEX IF NOT EXISTS idx_loans_book_state ON loans(book_id, state);`,
		`CREATE TABLE IF NOT EXISTS reservations (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            book_id INTEGER NOT NULL REFERENCES books(id) ON DELETE CASCADE,
            state TEXT NOT NULL DEFAULT 'pending',
            requested_at DATETIME NOT NULL,
            notified_at DATETIME,
            expires_at DATETIME
        );`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_book_state ON reservations(book_id, state);`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_user_state ON reservations(user_id, state);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_reservations_pending
            ON reservations(user_id, book_id) WHERE state = 'pending';`,
		`CREATE TABLE IF NOT EXISTS notifications (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            book_id INTEGER REFERENCES books(id) ON DELETE SET NULL,
            loan_id INTEGER REFERENCES loans(id) ON DELETE SET NULL,
            kind TEXT NOT NULL,
            title TEXT NOT NULL,
            message TEXT NOT NULL,
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            created_at DATETIME NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, is_read);`,
		`CREATE TABLE IF NOT EXISTS reviews (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            book_id INTEGER NOT NULL REFERENCES books(id) ON DELETE CASCADE,
            user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
            comment TEXT,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            UNIQUE (book_id, user_id)
        );`,
	},
}

var postgresDialect = dialect{
	goqu:      "postgres",
	forUpdate: " FOR UPDATE",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS authors (
            id BIGSERIAL PRIMARY KEY,
            name TEXT NOT NULL,
            biography TEXT,
            nationality TEXT
        );`,
		`CREATE TABLE IF NOT EXISTS categories (
            id BIGSERIAL PRIMARY KEY,
            name TEXT NOT NULL UNIQUE,
            description TEXT
        );`,
		`CREATE TABLE IF NOT EXISTS publishers (
            id BIGSERIAL PRIMARY KEY,
            name TEXT NOT NULL,
            country TEXT,
            website TEXT
        );`,
		`CREATE TABLE IF NOT EXISTS books (
            id BIGSERIAL PRIMARY KEY,
            title TEXT NOT NULL,
            author_id BIGINT NOT NULL REFERENCES authors(id) ON DELETE CASCADE,
            publisher_id BIGINT REFERENCES publishers(id) ON DELETE SET NULL,
            isbn TEXT UNIQUE,
            publication_year INTEGER NOT NULL,
            pages INTEGER,
            language TEXT NOT NULL DEFAULT 'English',
            description TEXT NOT NULL DEFAULT '',
            kind TEXT NOT NULL DEFAULT 'novel',
            total_copies INTEGER NOT NULL DEFAULT 1,
            available_copies INTEGER NOT NULL DEFAULT 1,
            popular BOOLEAN NOT NULL DEFAULT FALSE,
            is_new BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL,
            CHECK (total_copies >= 0),
            CHECK (available_copies >= 0 AND available_copies <= total_copies)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_books_title ON books(title);`,
		`CREATE INDEX IF NOT EXISTS idx_books_author ON books(author_id);`,
		`CREATE INDEX IF NOT EXISTS idx_books_publisher ON books(publisher_id);`,
		`CREATE TABLE IF NOT EXISTS book_categories (
            book_id BIGINT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
            category_id BIGINT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
            PRIMARY KEY (book_id, category_id)
        );`,
		`CREATE TABLE IF NOT EXISTS users (
            id BIGSERIAL PRIMARY KEY,
            username TEXT NOT NULL UNIQUE,
            email TEXT NOT NULL,
            first_name TEXT NOT NULL DEFAULT '',
            last_name TEXT NOT NULL DEFAULT '',
            password_hash TEXT NOT NULL,
            is_admin BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS user_profiles (
            user_id BIGINT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
            phone TEXT,
            address TEXT,
            card_number TEXT UNIQUE,
            active BOOLEAN NOT NULL DEFAULT TRUE,
            max_concurrent_loans INTEGER NOT NULL DEFAULT 3,
            default_loan_period_days INTEGER NOT NULL DEFAULT 14
        );`,
		`CREATE TABLE IF NOT EXISTS loans (
            id BIGSERIAL PRIMARY KEY,
            user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            book_id BIGINT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
            created_at TIMESTAMPTZ NOT NULL,
            due_at TIMESTAMPTZ NOT NULL,
            returned_at TIMESTAMPTZ,
            state TEXT NOT NULL DEFAULT 'active',
            renewal_count INTEGER NOT NULL DEFAULT 0,
            max_renewals INTEGER NOT NULL DEFAULT 2,
            notes TEXT,
            CHECK (renewal_count >= 0 AND renewal_count <= max_renewals)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_loans_user_state ON loans(user_id, state);`,
		`CREATE INDEX IF NOT EXISTS idx_loans_book_state ON loans(book_id, state);`,
		`CREATE TABLE IF NOT EXISTS reservations (
            id BIGSERIAL PRIMARY KEY,
            user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            book_id BIGINT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
            state TEXT NOT NULL DEFAULT 'pending',
            requested_at TIMESTAMPTZ NOT NULL,
            notified_at TIMESTAMPTZ,
            expires_at TIMESTAMPTZ
        );`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_book_state ON reservations(book_id, state);`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_user_state ON reservations(user_id, state);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_reservations_pending
            ON reservations(user_id, book_id) WHERE state = 'pending';`,
		`CREATE TABLE IF NOT EXISTS notifications (
            id BIGSERIAL PRIMARY KEY,
            user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            book_id BIGINT REFERENCES books(id) ON DELETE SET NULL,
            loan_id BIGINT REFERENCES loans(id) ON DELETE SET NULL,
            kind TEXT NOT NULL,
            title TEXT NOT NULL,
            message TEXT NOT NULL,
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, is_read);`,
		`CREATE TABLE IF NOT EXISTS reviews (
            id BIGSERIAL PRIMARY KEY,
            book_id BIGINT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
            user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
            comment TEXT,
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL,
            UNIQUE (book_id, user_id)
        );`,
	},
}
