package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const userSettingsFile = "user_settings.json"

// FileStore keeps one JSON document per session under <dataDir>/sessions.
type FileStore struct {
	mu       sync.Mutex
	basePath string
	dataDir  string
}

// NewFileStore creates a file-backed store.
// dataDir is typically ~/.climb
func NewFileStore(dataDir string) *FileStore {
	return &FileStore{
		basePath: filepath.Join(dataDir, "sessions"),
		dataDir:  dataDir,
	}
}

func (s *FileStore) sessionPath(key string) string {
	return filepath.Join(s.basePath, fmt.Sprintf("%s.json", key))
}

// GetSession loads a single session.
func (s *FileStore) GetSession(_ context.Context, key string) (*Session, error) {
	data, err := os.ReadFile(s.sessionPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("session.FileStore.GetSession(%q): %w", key, ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	sess, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return sess, nil
}

// UpdateSession writes the whole session document.
func (s *FileStore) UpdateSession(_ context.Context, sess *Session) error {
	if sess.SessionKey == "" {
		return errors.New("session.FileStore.UpdateSession: empty session key")
	}
	data, err := Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	return writeFileAtomic(s.sessionPath(sess.SessionKey), data)
}

// DeleteSession removes the session document. Deleting a missing session is not an error.
func (s *FileStore) DeleteSession(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.sessionPath(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// GetAllSessions returns every stored session, sorted by StartedAt (newest first).
func (s *FileStore) GetAllSessions(_ context.Context) ([]*Session, error) {
	entries, err := os.ReadDir(s.basePath)
	if os.IsNotExist(err) {
		return []*Session{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list session directory: %w", err)
	}

	sessions := make([]*Session, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.basePath, entry.Name()))
		if err != nil {
			continue // Skip unreadable files
		}
		sess, err := Unmarshal(data)
		if err != nil {
			continue // Skip invalid files
		}
		sessions = append(sessions, sess)
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})
	return sessions, nil
}

// GetUserSettings returns the stored settings, or zero settings if none were saved.
func (s *FileStore) GetUserSettings(_ context.Context) (*UserSettings, error) {
	data, err := os.ReadFile(filepath.Join(s.dataDir, userSettingsFile))
	if os.IsNotExist(err) {
		return &UserSettings{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user settings: %w", err)
	}
	var settings UserSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse user settings: %w", err)
	}
	return &settings, nil
}

// UpdateUserSettings replaces the stored settings.
func (s *FileStore) UpdateUserSettings(_ context.Context, settings *UserSettings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal user settings: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return writeFileAtomic(filepath.Join(s.dataDir, userSettingsFile), data)
}

// writeFileAtomic replaces path through a rename so readers never see a partial document.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close session file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}
