package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// mysqlSchema creates the tables used by the reservation engine on MySQL.
// The go-sql-driver does not accept multi-statement strings by default, so
// each statement is executed on its own.
var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS classes (
		id             BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		title          VARCHAR(200) NOT NULL,
		capacity       INT UNSIGNED NOT NULL,
		waitlist_limit INT UNSIGNED NOT NULL DEFAULT 0,
		starts_at      DATETIME(6) NOT NULL,
		ends_at        DATETIME(6) NOT NULL,
		status         ENUM('SCHEDULED','CANCELLED') NOT NULL DEFAULT 'SCHEDULED',
		credit_cost    INT UNSIGNED NOT NULL DEFAULT 1,
		created_at     DATETIME(6) NOT NULL,
		updated_at     DATETIME(6) NOT NULL,
		CONSTRAINT chk_classes_capacity CHECK (capacity >= 1),
		CONSTRAINT chk_classes_window CHECK (ends_at > starts_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS entitlements (
		id          BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		customer_id BIGINT UNSIGNED NOT NULL,
		kind        ENUM('UNLIMITED','SESSION_COUNT','CREDIT_COUNT') NOT NULL,
		remaining   INT UNSIGNED NOT NULL DEFAULT 0,
		active      BOOLEAN NOT NULL DEFAULT TRUE,
		valid_from  DATETIME(6) NOT NULL,
		valid_until DATETIME(6) NULL,
		created_at  DATETIME(6) NOT NULL,
		updated_at  DATETIME(6) NOT NULL,
		KEY ix_entitlements_customer (customer_id, active)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id                BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		class_id          BIGINT UNSIGNED NOT NULL,
		customer_id       BIGINT UNSIGNED NOT NULL,
		status            ENUM('CONFIRMED','WAITLISTED','CANCELLED','NO_SHOW','COMPLETED') NOT NULL,
		waitlist_position INT UNSIGNED NULL,
		booked_at         DATETIME(6) NOT NULL,
		cancelled_at      DATETIME(6) NULL,
		cancel_reason     VARCHAR(255) NULL,
		cancelled_by      VARCHAR(64) NULL,
		fulfilled_at      DATETIME(6) NULL,
		entitlement_id    BIGINT UNSIGNED NULL,
		debited_units     INT UNSIGNED NOT NULL DEFAULT 0,
		created_at        DATETIME(6) NOT NULL,
		updated_at        DATETIME(6) NOT NULL,
		UNIQUE KEY uq_reservations_customer_class (customer_id, class_id),
		KEY ix_reservations_class_status (class_id, status),
		CONSTRAINT fk_reservations_class FOREIGN KEY (class_id) REFERENCES classes (id),
		CONSTRAINT fk_reservations_entitlement FOREIGN KEY (entitlement_id) REFERENCES entitlements (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS classes (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		title          TEXT NOT NULL,
		capacity       INTEGER NOT NULL CHECK (capacity >= 1),
		waitlist_limit INTEGER NOT NULL DEFAULT 0 CHECK (waitlist_limit >= 0),
		starts_at      DATETIME NOT NULL,
		ends_at        DATETIME NOT NULL,
		status         TEXT NOT NULL DEFAULT 'SCHEDULED' CHECK (status IN ('SCHEDULED','CANCELLED')),
		credit_cost    INTEGER NOT NULL DEFAULT 1 CHECK (credit_cost >= 1),
		created_at     DATETIME NOT NULL,
		updated_at     DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS entitlements (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER NOT NULL,
		kind        TEXT NOT NULL CHECK (kind IN ('UNLIMITED','SESSION_COUNT','CREDIT_COUNT')),
		remaining   INTEGER NOT NULL DEFAULT 0 CHECK (remaining >= 0),
		active      BOOLEAN NOT NULL DEFAULT 1,
		valid_from  DATETIME NOT NULL,
		valid_until DATETIME NULL,
		created_at  DATETIME NOT NULL,
		updated_at  DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ix_entitlements_customer ON entitlements (customer_id, active)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		class_id          INTEGER NOT NULL REFERENCES classes (id),
		customer_id       INTEGER NOT NULL,
		status            TEXT NOT NULL CHECK (status IN ('CONFIRMED','WAITLISTED','CANCELLED','NO_SHOW','COMPLETED')),
		waitlist_position INTEGER NULL,
		booked_at         DATETIME NOT NULL,
		cancelled_at      DATETIME NULL,
		cancel_reason     TEXT NULL,
		cancelled_by      TEXT NULL,
		fulfilled_at      DATETIME NULL,
		entitlement_id    INTEGER NULL REFERENCES entitlements (id),
		debited_units     INTEGER NOT NULL DEFAULT 0,
		created_at        DATETIME NOT NULL,
		updated_at        DATETIME NOT NULL,
		UNIQUE (customer_id, class_id)
	)`,
	`CREATE INDEX IF NOT EXISTS ix_reservations_class_status ON reservations (class_id, status)`,
}

// Migrate creates any missing tables for the given dialect.  Statements are
// idempotent, so it is safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	stmts := sqliteSchema
	if d == MySQL {
		stmts = mysqlSchema
	}
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s statement %d: %w", d, i+1, err)
		}
	}
	return nil
}
