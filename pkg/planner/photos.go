package planner

import (
	"fmt"
	"path/filepath"
	"strings"
)

// PhotoRef points at a transport message carrying an attachment the user
// wanted to keep.
type PhotoRef struct {
	Peer        string
	Message     string
	Description string
}

// Line encodes the reference as "<peer>|<message>||<description>".
func (p PhotoRef) Line() string {
	return fmt.Sprintf("%s|%s||%s", p.Peer, p.Message, strings.ReplaceAll(p.Description, "\n", " "))
}

// Label is the description or a placeholder when there is none.
func (p PhotoRef) Label() string {
	if strings.TrimSpace(p.Description) == "" {
		return "[no description]"
	}
	return p.Description
}

// ParsePhotoRef decodes a photo log line.
func ParsePhotoRef(line string) (PhotoRef, error) {
	ref, desc, ok := strings.Cut(line, "||")
	if !ok {
		return PhotoRef{}, fmt.Errorf("photo reference %q: missing description separator", line)
	}
	peer, msg, ok := strings.Cut(ref, "|")
	if !ok || peer == "" || msg == "" {
		return PhotoRef{}, fmt.Errorf("photo reference %q: malformed peer/message", line)
	}
	return PhotoRef{Peer: peer, Message: msg, Description: desc}, nil
}

// PhotoLog is the per-user append-only list of saved photo references.
type PhotoLog struct {
	lines *LineStore
}

// NewPhotoLog opens the log under dataDir/user_photos.
func NewPhotoLog(dataDir string) *PhotoLog {
	return &PhotoLog{lines: NewLineStore(filepath.Join(dataDir, "user_photos"), "photo.txt")}
}

func (p *PhotoLog) Add(user string, ref PhotoRef) error {
	return p.lines.Append(user, ref.Line())
}

// Refs decodes every well-formed line; malformed ones are skipped. The
// 1-based index into the result is the number shown to the user.
func (p *PhotoLog) Refs(user string) ([]PhotoRef, error) {
	lines, err := p.lines.ReadAll(user)
	if err != nil {
		return nil, err
	}
	refs, _ := decodePhotoLines(lines)
	return refs, nil
}

// RemoveNumbered deletes entries by the 1-based numbers Refs assigns and
// returns the removed refs, highest number first. Malformed lines are kept
// and unknown numbers are ignored.
func (p *PhotoLog) RemoveNumbered(user string, numbers []int) ([]PhotoRef, error) {
	var removed []PhotoRef
	err := p.lines.Update(user, func(lines []string) ([]string, error) {
		_, positions := decodePhotoLines(lines)
		raw := make([]int, 0, len(numbers))
		for _, n := range numbers {
			if n >= 1 && n <= len(positions) {
				raw = append(raw, positions[n-1])
			}
		}
		kept, gone := RemovePositions(lines, raw)
		removed, _ = decodePhotoLines(gone)
		return kept, nil
	})
	return removed, err
}

// decodePhotoLines returns the well-formed refs and their 1-based line
// positions.
func decodePhotoLines(lines []string) ([]PhotoRef, []int) {
	refs := make([]PhotoRef, 0, len(lines))
	positions := make([]int, 0, len(lines))
	for i, l := range lines {
		ref, err := ParsePhotoRef(l)
		if err != nil {
			continue
		}
		refs = append(refs, ref)
		positions = append(positions, i+1)
	}
	return refs, positions
}
