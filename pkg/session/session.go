// Package session keeps each user's conversation state, the scratch data of
// the flow in progress, and the per-user event id counter. The whole map is
// persisted to one JSON file on every mutation.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dotsetgreg/planbot/pkg/logger"
	"github.com/dotsetgreg/planbot/pkg/planner"
	"github.com/dotsetgreg/planbot/pkg/utils"
)

const FileName = "sessions.json"

// Scratch is the data a flow accumulates between turns. Only the fields the
// current flow needs are set; ClearData resets all of them.
type Scratch struct {
	// create flow
	Year       int                `json:"year,omitempty"`
	Month      int                `json:"month,omitempty"`
	Day        int                `json:"day,omitempty"`
	Hour       int                `json:"hour,omitempty"`
	Minute     int                `json:"minute,omitempty"`
	Desc       string             `json:"desc,omitempty"`
	Hashtag    string             `json:"hashtag,omitempty"`
	Recurrence planner.Recurrence `json:"recurrence,omitempty"`
	Count      int                `json:"count,omitempty"`
	Duration   string             `json:"duration,omitempty"`

	// paginated listings
	Pages  []string `json:"msgs,omitempty"`
	Offset int      `json:"offset,omitempty"`

	// 0-based index chosen in an edit or extend flow
	SelectedIndex *int `json:"selected_idx,omitempty"`
}

// Session is one user's persisted conversation record.
type Session struct {
	State        State   `json:"state"`
	Data         Scratch `json:"data"`
	NextEventSeq int     `json:"next_uid"`
}

func newSession() *Session {
	return &Session{State: Idle, NextEventSeq: 1}
}

// Store is the process-wide session map. All reads and writes hold mu for
// the full read-modify-write; sessions never leave the store by pointer.
type Store struct {
	path     string
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore loads dataDir/sessions.json. A missing file starts empty; a
// corrupt one is logged and replaced on the next write.
func NewStore(dataDir string) (*Store, error) {
	s := &Store{
		path:     filepath.Join(dataDir, FileName),
		sessions: make(map[string]*Session),
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read sessions: %w", err)
	}
	if err := json.Unmarshal(data, &s.sessions); err != nil {
		logger.WarnCF("session", "Discarding unreadable session file", map[string]interface{}{
			"path":  s.path,
			"error": err.Error(),
		})
		s.sessions = make(map[string]*Session)
	}
	for user, sess := range s.sessions {
		if sess == nil {
			s.sessions[user] = newSession()
			continue
		}
		if sess.State == "" {
			sess.State = Idle
		}
		if sess.NextEventSeq < 1 {
			sess.NextEventSeq = 1
		}
	}
	return s, nil
}

func (s *Store) getLocked(user string) (*Session, bool) {
	sess, ok := s.sessions[user]
	if !ok {
		sess = newSession()
		s.sessions[user] = sess
	}
	return sess, !ok
}

func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}
	if err := utils.WriteFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("save sessions: %w", err)
	}
	return nil
}

// GetOrCreate returns a copy of the user's session, creating and persisting
// an idle one on first contact.
func (s *Store) GetOrCreate(user string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, created := s.getLocked(user)
	if created {
		if err := s.saveLocked(); err != nil {
			return *sess, err
		}
	}
	return copySession(sess), nil
}

// SetState moves the user to state, keeping the scratch data.
func (s *Store) SetState(user string, state State) error {
	return s.Update(user, func(sess *Session) {
		sess.State = state
	})
}

// SetData replaces the scratch data wholesale.
func (s *Store) SetData(user string, data Scratch) error {
	return s.Update(user, func(sess *Session) {
		sess.Data = data
	})
}

// GetData returns a copy of the user's scratch data.
func (s *Store) GetData(user string) (Scratch, error) {
	sess, err := s.GetOrCreate(user)
	if err != nil {
		return Scratch{}, err
	}
	return sess.Data, nil
}

// ClearData empties the scratch data.
func (s *Store) ClearData(user string) error {
	return s.Update(user, func(sess *Session) {
		sess.Data = Scratch{}
	})
}

// Update applies fn to the user's session and persists the map before
// returning. fn must not retain the pointer.
func (s *Store) Update(user string, fn func(sess *Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, _ := s.getLocked(user)
	fn(sess)
	if sess.NextEventSeq < 1 {
		sess.NextEventSeq = 1
	}
	return s.saveLocked()
}

// NextEventID issues the next "uid<N>" for user and advances the counter.
func (s *Store) NextEventID(user string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, _ := s.getLocked(user)
	seq := sess.NextEventSeq
	sess.NextEventSeq = seq + 1
	if err := s.saveLocked(); err != nil {
		sess.NextEventSeq = seq
		return "", err
	}
	return planner.FormatEventID(seq), nil
}

// Users lists every known user id in sorted order.
func (s *Store) Users() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]string, 0, len(s.sessions))
	for u := range s.sessions {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

func copySession(sess *Session) Session {
	out := *sess
	if sess.Data.Pages != nil {
		out.Data.Pages = append([]string(nil), sess.Data.Pages...)
	}
	if sess.Data.SelectedIndex != nil {
		idx := *sess.Data.SelectedIndex
		out.Data.SelectedIndex = &idx
	}
	return out
}
