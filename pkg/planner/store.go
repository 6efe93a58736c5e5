package planner

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dotsetgreg/planbot/pkg/logger"
	"github.com/dotsetgreg/planbot/pkg/utils"
)

const (
	PlanSuffix = "plan.txt"
	DoneSuffix = "done.txt"
)

var ErrIndexOutOfRange = errors.New("index out of range")

// LineStore keeps one text file per user, one event per line. Writers for
// the same user are serialised by a per-user mutex.
type LineStore struct {
	dir    string
	suffix string
	name   string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLineStore creates a store rooted at dir whose files are named
// <user><suffix>.
func NewLineStore(dir, suffix string) *LineStore {
	return &LineStore{
		dir:    dir,
		suffix: suffix,
		name:   strings.TrimSuffix(suffix, ".txt"),
		locks:  make(map[string]*sync.Mutex),
	}
}

// NewEventStore opens the planned-events store under dataDir/planners.
func NewEventStore(dataDir string) *LineStore {
	return NewLineStore(filepath.Join(dataDir, "planners"), PlanSuffix)
}

// NewCompletedStore opens the completed-events store under dataDir/planners.
func NewCompletedStore(dataDir string) *LineStore {
	return NewLineStore(filepath.Join(dataDir, "planners"), DoneSuffix)
}

func (s *LineStore) path(user string) string {
	return filepath.Join(s.dir, utils.SafeFileComponent(user)+s.suffix)
}

func (s *LineStore) lock(user string) func() {
	s.mu.Lock()
	l, ok := s.locks[user]
	if !ok {
		l = &sync.Mutex{}
		s.locks[user] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// ReadAll returns the user's non-blank lines in file order.
func (s *LineStore) ReadAll(user string) ([]string, error) {
	unlock := s.lock(user)
	defer unlock()
	return s.readLocked(user)
}

func (s *LineStore) readLocked(user string) ([]string, error) {
	data, err := os.ReadFile(s.path(user))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read %s for %s: %w", s.name, user, err)
	}

	lines := make([]string, 0)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan %s for %s: %w", s.name, user, err)
	}
	return lines, nil
}

// WriteAll replaces the user's file with lines.
func (s *LineStore) WriteAll(user string, lines []string) error {
	unlock := s.lock(user)
	defer unlock()
	return s.writeLocked(user, lines)
}

func (s *LineStore) writeLocked(user string, lines []string) error {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	if err := utils.WriteFileAtomic(s.path(user), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s for %s: %w", s.name, user, err)
	}
	return nil
}

// Append adds one line at the end of the user's file.
func (s *LineStore) Append(user string, lines ...string) error {
	unlock := s.lock(user)
	defer unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create %s dir: %w", s.name, err)
	}
	f, err := os.OpenFile(s.path(user), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s for %s: %w", s.name, user, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		w.WriteString(l)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("append %s for %s: %w", s.name, user, err)
	}
	return nil
}

// Update runs fn over the current lines and writes back what it returns,
// holding the user's lock for the whole read-modify-write.
func (s *LineStore) Update(user string, fn func(lines []string) ([]string, error)) error {
	unlock := s.lock(user)
	defer unlock()

	lines, err := s.readLocked(user)
	if err != nil {
		return err
	}
	next, err := fn(lines)
	if err != nil {
		return err
	}
	return s.writeLocked(user, next)
}

// Sort rewrites the user's file in ascending time order. Lines whose leading
// token is not a time literal are kept after the dated lines, in their
// original relative order.
func (s *LineStore) Sort(user string) error {
	return s.Update(user, func(lines []string) ([]string, error) {
		return SortLines(user, lines), nil
	})
}

// SortLines orders lines by leading time; stable for equal times.
func SortLines(user string, lines []string) []string {
	type dated struct {
		line string
		at   int64
	}
	ordered := make([]dated, 0, len(lines))
	var undated []string
	for _, l := range lines {
		at, err := LeadingTime(l)
		if err != nil {
			logger.WarnCF("planner", "Keeping unparseable line out of time order", map[string]interface{}{
				"user":  user,
				"line":  utils.Truncate(l, 80),
				"error": err.Error(),
			})
			undated = append(undated, l)
			continue
		}
		ordered = append(ordered, dated{line: l, at: at.UnixNano()})
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].at < ordered[j].at })

	out := make([]string, 0, len(lines))
	for _, d := range ordered {
		out = append(out, d.line)
	}
	return append(out, undated...)
}

// Events parses every line, skipping unparseable ones. The returned indexes
// are positions in the file.
func (s *LineStore) Events(user string) ([]Event, []int, error) {
	lines, err := s.ReadAll(user)
	if err != nil {
		return nil, nil, err
	}
	events := make([]Event, 0, len(lines))
	idx := make([]int, 0, len(lines))
	for i, l := range lines {
		ev, err := ParseLine(l)
		if err != nil {
			logger.DebugCF("planner", "Skipping unparseable line", map[string]interface{}{
				"user": user,
				"line": utils.Truncate(l, 80),
			})
			continue
		}
		events = append(events, ev)
		idx = append(idx, i)
	}
	return events, idx, nil
}

// Replace overwrites the line at a 0-based index.
func (s *LineStore) Replace(user string, index int, line string) error {
	return s.Update(user, func(lines []string) ([]string, error) {
		if index < 0 || index >= len(lines) {
			return nil, ErrIndexOutOfRange
		}
		lines[index] = strings.TrimSpace(line)
		return lines, nil
	})
}

// Remove deletes and returns the line at a 0-based index.
func (s *LineStore) Remove(user string, index int) (string, error) {
	var removed string
	err := s.Update(user, func(lines []string) ([]string, error) {
		if index < 0 || index >= len(lines) {
			return nil, ErrIndexOutOfRange
		}
		removed = lines[index]
		return append(lines[:index], lines[index+1:]...), nil
	})
	return removed, err
}

// RemoveIndices deletes the given 1-based positions and returns the removed
// lines, highest position first. Out-of-range positions are ignored.
func (s *LineStore) RemoveIndices(user string, positions []int) ([]string, error) {
	var removed []string
	err := s.Update(user, func(lines []string) ([]string, error) {
		var kept []string
		kept, removed = RemovePositions(lines, positions)
		return kept, nil
	})
	return removed, err
}

// RemoveMatching deletes every line for which match returns true.
func (s *LineStore) RemoveMatching(user string, match func(line string) bool) (int, error) {
	n := 0
	err := s.Update(user, func(lines []string) ([]string, error) {
		kept := make([]string, 0, len(lines))
		for _, l := range lines {
			if match(l) {
				n++
				continue
			}
			kept = append(kept, l)
		}
		return kept, nil
	})
	return n, err
}

// Move pops the line at a 0-based index from s and appends it to dst.
// The destination is written first so a failure never loses the line.
func (s *LineStore) Move(user string, index int, dst *LineStore) (string, error) {
	var moved string
	err := s.Update(user, func(lines []string) ([]string, error) {
		if index < 0 || index >= len(lines) {
			return nil, ErrIndexOutOfRange
		}
		moved = lines[index]
		if err := dst.Append(user, moved); err != nil {
			return nil, fmt.Errorf("store moved line: %w", err)
		}
		return append(lines[:index], lines[index+1:]...), nil
	})
	return moved, err
}
