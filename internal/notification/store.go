package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound occurs when no notification matches the identifier.
var ErrNotFound = errors.New("notification not found")

// Store persists notifications so owners can review them later.
type Store interface {
	Notifier
	ListByOwner(ctx context.Context, ownerID string) ([]Message, error)
	MarkRead(ctx context.Context, id string) error
}

// PostgresStore records notifications in the notifications table.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a Postgres-backed notification store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Send inserts the notification with sent status.
func (s *PostgresStore) Send(ctx context.Context, message Message) error {
	ownerID, err := uuid.Parse(message.OwnerID)
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(message.Metadata)
	if err != nil {
		return err
	}
	id := uuid.New()
	if message.ID != "" {
		if id, err = uuid.Parse(message.ID); err != nil {
			return err
		}
	}
	_, err = s.db.Exec(ctx, `INSERT INTO notifications (id, owner_id, kind, message, metadata, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, now(), now())`,
		id, ownerID, message.Kind, message.Body, metadata, StatusSent)
	return err
}

// ListByOwner returns the owner's notifications, newest first.
func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]Message, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `SELECT id, owner_id, kind, message, metadata, status, created_at
        FROM notifications WHERE owner_id = $1 ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			id       uuid.UUID
			owner    uuid.UUID
			metadata []byte
			msg      Message
			created  time.Time
		)
		if err := rows.Scan(&id, &owner, &msg.Kind, &msg.Body, &metadata, &msg.Status, &created); err != nil {
			return nil, err
		}
		msg.ID = id.String()
		msg.OwnerID = owner.String()
		msg.CreatedAt = created.UTC()
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
				return nil, err
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// MarkRead flips the notification status to read.
func (s *PostgresStore) MarkRead(ctx context.Context, id string) error {
	notificationID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := s.db.Exec(ctx, `UPDATE notifications SET status = $1, updated_at = now() WHERE id = $2`,
		StatusRead, notificationID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type memoryStore struct {
	mu       sync.RWMutex
	messages map[string]Message
}

// NewMemoryStore constructs an in-memory notification store for tests.
func NewMemoryStore() Store {
	return &memoryStore{messages: make(map[string]Message)}
}

func (s *memoryStore) Send(_ context.Context, message Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	message.Status = StatusSent
	message.CreatedAt = time.Now().UTC()
	s.messages[message.ID] = message
	return nil
}

func (s *memoryStore) ListByOwner(_ context.Context, ownerID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var messages []Message
	for _, msg := range s.messages {
		if msg.OwnerID == ownerID {
			messages = append(messages, msg)
		}
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].CreatedAt.After(messages[j].CreatedAt) })
	return messages, nil
}

func (s *memoryStore) MarkRead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, exists := s.messages[id]
	if !exists {
		return ErrNotFound
	}
	msg.Status = StatusRead
	s.messages[id] = msg
	return nil
}
