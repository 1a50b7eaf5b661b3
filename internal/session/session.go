package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"asistan/internal/store"
	"asistan/pkg/types"
)

const defaultBucket = "sessions"

// ErrNotFound is returned when loading an unknown session id.
var ErrNotFound = errors.New("session not found")

// Record is the durable form of a session.
type Record struct {
	ID           string    `json:"session_id"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	MessageCount int       `json:"message_count"`
	Messages     []Turn    `json:"messages"`
}

// Summary computes statistics for the record.
func (r Record) Summary() types.SessionSummary {
	s := types.SessionSummary{ID: r.ID, TotalMessages: len(r.Messages)}
	if !r.StartTime.IsZero() {
		s.StartedAt = r.StartTime.Unix()
	}
	if !r.EndTime.IsZero() {
		s.EndedAt = r.EndTime.Unix()
	}
	for _, m := range r.Messages {
		switch m.Role {
		case RoleUser:
			s.UserMessages++
		case RoleAssistant:
			s.AssistantMessages++
		}
	}
	return s
}

// Duration is the time between the first and last message.
func (r Record) Duration() time.Duration {
	if len(r.Messages) < 2 {
		return 0
	}
	return r.Messages[len(r.Messages)-1].Timestamp.Sub(r.Messages[0].Timestamp)
}

// Config configures a Manager.
type Config struct {
	MaxPairs   int
	SaveToDisk bool
	Store      store.Store
	Bucket     string
	Logger     zerolog.Logger
	Now        func() time.Time
	// NewID generates session ids; defaults to random UUIDs.
	NewID func() string
}

// Manager owns the current session: its id, history and persistence.
type Manager struct {
	mu      sync.Mutex
	id      string
	history *History
	save    bool
	store   store.Store
	bucket  string
	log     zerolog.Logger
	newID   func() string
}

func NewManager(cfg Config) *Manager {
	m := &Manager{
		history: NewHistory(cfg.MaxPairs, cfg.Now),
		save:    cfg.SaveToDisk && cfg.Store != nil,
		store:   cfg.Store,
		bucket:  cfg.Bucket,
		log:     cfg.Logger.With().Str("component", "session").Logger(),
		newID:   cfg.NewID,
	}
	if m.bucket == "" {
		m.bucket = defaultBucket
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	m.id = m.newID()
	return m
}

// History returns the live conversation history.
func (m *Manager) History() *History { return m.history }

// ID returns the current session id.
func (m *Manager) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

// Record snapshots the current session.
func (m *Manager) Record() Record {
	turns := m.history.Turns()
	r := Record{ID: m.ID(), MessageCount: len(turns), Messages: turns}
	if len(turns) > 0 {
		r.StartTime = turns[0].Timestamp
		r.EndTime = turns[len(turns)-1].Timestamp
	}
	return r
}

// Summary returns statistics for the current session.
func (m *Manager) Summary() types.SessionSummary { return m.Record().Summary() }

// Save persists the current session. An empty session or a manager without
// persistence is a no-op that still returns the id.
func (m *Manager) Save(ctx context.Context) (string, error) {
	r := m.Record()
	if !m.save || len(r.Messages) == 0 {
		return r.ID, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return r.ID, err
	}
	if err := m.store.Put(ctx, m.bucket, r.ID, b); err != nil {
		return r.ID, fmt.Errorf("save session %s: %w", r.ID, err)
	}
	m.log.Info().Str("op", "save").Str("session", r.ID).Int("messages", len(r.Messages)).Msg("session saved")
	return r.ID, nil
}

// Load replaces the current session with a stored one.
func (m *Manager) Load(ctx context.Context, id string) error {
	if m.store == nil {
		return ErrNotFound
	}
	r, err := m.get(ctx, id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.id = r.ID
	m.mu.Unlock()
	m.history.replace(r.Messages)
	m.log.Info().Str("op", "load").Str("session", r.ID).Int("messages", len(r.Messages)).Msg("session loaded")
	return nil
}

func (m *Manager) get(ctx context.Context, id string) (Record, error) {
	b, err := m.store.Get(ctx, m.bucket, id)
	if errors.Is(err, store.ErrNotFound) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Record{}, err
	}
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return Record{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	if r.ID == "" {
		r.ID = id
	}
	return r, nil
}

// Clear saves the current session (when persistence is on), empties the
// history and starts a new session id.
func (m *Manager) Clear(ctx context.Context) error {
	_, err := m.Save(ctx)
	m.history.Reset()
	m.mu.Lock()
	m.id = m.newID()
	m.mu.Unlock()
	return err
}

// List returns summaries of every stored session, newest first.
func (m *Manager) List(ctx context.Context) ([]types.SessionSummary, error) {
	if m.store == nil {
		return nil, nil
	}
	all, err := m.store.All(ctx, m.bucket)
	if err != nil {
		return nil, err
	}
	out := make([]types.SessionSummary, 0, len(all))
	for id, b := range all {
		var r Record
		if err := json.Unmarshal(b, &r); err != nil {
			m.log.Warn().Err(err).Str("session", id).Msg("skipping unreadable session")
			continue
		}
		if r.ID == "" {
			r.ID = id
		}
		out = append(out, r.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt == out[j].StartedAt {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt > out[j].StartedAt
	})
	return out, nil
}

// Get returns a stored session record.
func (m *Manager) Get(ctx context.Context, id string) (Record, error) {
	if m.store == nil {
		return Record{}, ErrNotFound
	}
	return m.get(ctx, id)
}
