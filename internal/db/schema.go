package db

import (
	"context"
	"fmt"
)

// schema is applied in order on startup. Every statement is idempotent.
//
// chats.pinned_message_id carries ON DELETE SET NULL so a message removed by
// any path can never leave a dangling pin; the message store also clears it
// explicitly inside the delete transaction.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		username      text NOT NULL,
		email         text NOT NULL UNIQUE,
		password_hash text NOT NULL,
		avatar        text,
		last_seen     timestamptz,
		created_at    timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS chats (
		id                uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		is_group          boolean NOT NULL DEFAULT false,
		name              text,
		pinned_message_id bigint,
		created_at        timestamptz NOT NULL DEFAULT now(),
		CONSTRAINT chats_name_iff_group CHECK (
			(is_group AND name IS NOT NULL AND name <> '') OR (NOT is_group AND name IS NULL)
		)
	)`,
	`CREATE TABLE IF NOT EXISTS chat_members (
		chat_id uuid NOT NULL REFERENCES chats (id) ON DELETE CASCADE,
		user_id uuid NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		role    text NOT NULL CHECK (role IN ('admin', 'member')),
		PRIMARY KEY (chat_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_members_user ON chat_members (user_id)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id         bigserial PRIMARY KEY,
		chat_id    uuid NOT NULL REFERENCES chats (id) ON DELETE CASCADE,
		sender_id  uuid NOT NULL REFERENCES users (id),
		body       text,
		file_ref   text,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz,
		is_read    boolean NOT NULL DEFAULT false,
		CONSTRAINT messages_body_or_file CHECK (
			coalesce(body, '') <> '' OR coalesce(file_ref, '') <> ''
		)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_chat_order ON messages (chat_id, created_at, id)`,
	`ALTER TABLE chats DROP CONSTRAINT IF EXISTS chats_pinned_message_fk`,
	`ALTER TABLE chats ADD CONSTRAINT chats_pinned_message_fk
		FOREIGN KEY (pinned_message_id) REFERENCES messages (id) ON DELETE SET NULL`,
}

// Migrate applies the schema inside one transaction.
func (db *DB) Migrate(ctx context.Context) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, stmt := range schema {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	db.logger.Info("schema migrated")
	return nil
}
