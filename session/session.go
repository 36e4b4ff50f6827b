// Package session persists and restores conversations as JSON documents
// under the project's .termineer/sessions directory.
package session

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/semtexzv/termineer-sub001/conversation"
	"github.com/semtexzv/termineer-sub001/errors"
)

// lastFile records the id of the most recently saved session.
const lastFile = ".last"

// Session is one saved conversation.
type Session struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
	Model        string                 `json:"model"`
	SystemPrompt string                 `json:"system_prompt,omitempty"`
	Conversation []conversation.Message `json:"conversation"`
	Metadata     map[string]string      `json:"metadata,omitempty"`
}

// New creates a session with a fresh id and the current time.
func New(name, model, systemPrompt string, msgs []conversation.Message) *Session {
	return &Session{
		ID:           uuid.NewString(),
		Name:         name,
		Timestamp:    time.Now().UTC(),
		Model:        model,
		SystemPrompt: systemPrompt,
		Conversation: msgs,
	}
}

// Store reads and writes sessions under one directory.
type Store struct {
	dir string
}

// NewStore creates a store rooted at <workdir>/.termineer/sessions.
func NewStore(workdir string) *Store {
	return &Store{dir: filepath.Join(workdir, ".termineer", "sessions")}
}

// Dir is the store's directory.
func (s *Store) Dir() string { return s.dir }

// Save writes the session and points .last at it.
func (s *Store) Save(sess *Session) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrapf(err, "cannot create session directory")
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "cannot encode session %s", sess.ID)
	}
	path := filepath.Join(s.dir, sess.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "cannot write session %s", sess.ID)
	}
	if err := os.WriteFile(filepath.Join(s.dir, lastFile), []byte(sess.ID), 0o644); err != nil {
		return errors.Wrapf(err, "cannot update last-session pointer")
	}
	return nil
}

// Load reads one session by id.
func (s *Store) Load(id string) (*Session, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read session %s", id)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, errors.Wrapf(err, "cannot parse session %s", id)
	}
	return &sess, nil
}

// LoadLast reads the session the .last pointer names.
func (s *Store) LoadLast() (*Session, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, lastFile))
	if err != nil {
		return nil, errors.Wrapf(err, "no previous session")
	}
	return s.Load(strings.TrimSpace(string(data)))
}

// List returns the ids of all stored sessions.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "cannot list sessions")
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".json") {
			ids = append(ids, strings.TrimSuffix(name, ".json"))
		}
	}
	return ids, nil
}
