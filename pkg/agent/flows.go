package agent

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dotsetgreg/planbot/pkg/planner"
	"github.com/dotsetgreg/planbot/pkg/session"
)

// startSelection renders store as day pages and enters a paginated state.
// emptyMsg is shown instead when the store has no lines.
func (al *AgentLoop) startSelection(t *turn, store *planner.LineStore, state session.State, emptyMsg, prompt string) error {
	lines, err := store.ReadAll(t.user)
	if err != nil {
		return fmt.Errorf("read planner: %w", err)
	}
	if len(lines) == 0 {
		t.toMenu(emptyMsg)
		return nil
	}
	if prompt != "" {
		t.say(prompt, nil)
	}
	al.startListing(t, state, planner.DayMessages(lines, t.now))
	return nil
}

func (al *AgentLoop) startListing(t *turn, state session.State, pages []string) {
	t.enter(state)
	t.data.Pages = pages
	t.data.Offset = 0
	al.sendPage(t)
}

// sendPage shows the next DaysPerPage day blocks and advances the offset.
// Past the last page the listing ends and the user is back at the menu.
func (al *AgentLoop) sendPage(t *turn) {
	pages := t.data.Pages
	offset := t.data.Offset
	if offset >= len(pages) {
		t.toMenu("End of list.")
		return
	}
	end := offset + al.daysPerPage
	if end > len(pages) {
		end = len(pages)
	}

	t.say("📅 Today: "+t.now.Format(planner.DateLayout), nil)
	for _, p := range pages[offset:end] {
		t.say(p, nil)
	}
	t.data.Offset = end
	t.dirty = true
	t.say("Navigation:", navMenu(end < len(pages)))
}

func (t *turn) hasNextPage() bool {
	return t.data.Offset < len(t.data.Pages)
}

// pickPosition reads a 1-based listing number in a selection state. "Next"
// turns the page; anything else re-prompts. ok reports a usable number.
func (al *AgentLoop) pickPosition(t *turn) (int, bool) {
	if t.text == btnNext {
		al.sendPage(t)
		return 0, false
	}
	n, err := strconv.Atoi(t.text)
	if err != nil {
		t.say("Enter number.", navMenu(t.hasNextPage()))
		return 0, false
	}
	return n, true
}

func (t *turn) notFound(what string) {
	t.toMenu(fmt.Sprintf("%s not found. The list may have changed; nothing was modified.", what))
}

func (al *AgentLoop) handleListView(t *turn) error {
	if t.text == btnNext {
		al.sendPage(t)
		return nil
	}
	t.toMenu("Menu.")
	return nil
}

func (al *AgentLoop) handleFilter(t *turn) error {
	tag := planner.NormalizeTag(t.text)
	if tag == "" {
		t.say("Enter hashtag to filter (e.g., #event, #pers, #control):", hashtagMenu(al.markers))
		return nil
	}
	lines, err := al.events.ReadAll(t.user)
	if err != nil {
		return fmt.Errorf("read planner: %w", err)
	}
	_, matches := planner.FilterByTag(lines, tag)
	if len(matches) == 0 {
		t.toMenu(fmt.Sprintf("No matches for %s.", tag))
		return nil
	}
	t.say(fmt.Sprintf("🔍 Found %d event(s) with %s:", len(matches), tag), nil)
	al.startListing(t, session.ListView, planner.DayMessagesMatching(lines, t.now, planner.TagMatcher(tag)))
	return nil
}

func (al *AgentLoop) handleComplete(t *turn) error {
	pos, ok := al.pickPosition(t)
	if !ok {
		return nil
	}
	line, err := al.events.Move(t.user, pos-1, al.completed)
	if errors.Is(err, planner.ErrIndexOutOfRange) {
		t.notFound(fmt.Sprintf("Event %d", pos))
		return nil
	}
	if err != nil {
		return fmt.Errorf("complete event: %w", err)
	}
	if err := al.events.Sort(t.user); err != nil {
		return fmt.Errorf("sort planner: %w", err)
	}
	if al.metrics != nil {
		al.metrics.EventsDeleted.Inc()
	}
	t.toMenu("✅ Completed:\n" + line)
	return nil
}

func (al *AgentLoop) handleEditSelect(t *turn, store *planner.LineStore, next session.State) error {
	pos, ok := al.pickPosition(t)
	if !ok {
		return nil
	}
	lines, err := store.ReadAll(t.user)
	if err != nil {
		return fmt.Errorf("read planner: %w", err)
	}
	if pos < 1 || pos > len(lines) {
		t.say("Invalid number.", navMenu(t.hasNextPage()))
		return nil
	}

	idx := pos - 1
	t.data.SelectedIndex = &idx
	t.advance(next)
	t.say("Original text of the entry to edit:", nil)
	t.say(lines[idx], nil)
	t.say("Send the modified version:", nil)
	return nil
}

// handleEditInput overwrites the selected line verbatim.
func (al *AgentLoop) handleEditInput(t *turn, store *planner.LineStore, sortAfter bool) error {
	if t.text == "" {
		t.say("Send the modified version:", nil)
		return nil
	}
	if t.data.SelectedIndex == nil {
		t.toMenu("Edit failed.")
		return nil
	}
	idx := *t.data.SelectedIndex

	err := store.Replace(t.user, idx, t.text)
	if errors.Is(err, planner.ErrIndexOutOfRange) {
		t.notFound(fmt.Sprintf("Entry %d", idx+1))
		return nil
	}
	if err != nil {
		return fmt.Errorf("edit entry: %w", err)
	}
	if sortAfter {
		if err := store.Sort(t.user); err != nil {
			return fmt.Errorf("sort planner: %w", err)
		}
	}
	t.toMenu("Updated.")
	return nil
}

func (al *AgentLoop) handleExtendSelect(t *turn) error {
	pos, ok := al.pickPosition(t)
	if !ok {
		return nil
	}
	lines, err := al.events.ReadAll(t.user)
	if err != nil {
		return fmt.Errorf("read planner: %w", err)
	}
	if pos < 1 || pos > len(lines) {
		t.say("Invalid number.", navMenu(t.hasNextPage()))
		return nil
	}

	idx := pos - 1
	t.data.SelectedIndex = &idx
	t.advance(session.ExtendPeriod)
	t.say("Select extension period:", extendMenu())
	return nil
}

// handleExtendPeriod moves the selected event to a new date, keeping the
// rest of its line untouched.
func (al *AgentLoop) handleExtendPeriod(t *turn) error {
	ext, ok := planner.ParseExtension(t.text)
	if !ok {
		t.say("Select extension period:", extendMenu())
		return nil
	}
	if t.data.SelectedIndex == nil {
		t.toMenu("Extension failed.")
		return nil
	}
	idx := *t.data.SelectedIndex

	var newLine string
	var newAt time.Time
	err := al.events.Update(t.user, func(lines []string) ([]string, error) {
		if idx < 0 || idx >= len(lines) {
			return nil, planner.ErrIndexOutOfRange
		}
		at, err := planner.LeadingTime(lines[idx])
		if err != nil {
			return nil, err
		}
		newAt = ext.Apply(at)
		newLine = planner.Reschedule(lines[idx], newAt)
		rest := append(lines[:idx:idx], lines[idx+1:]...)
		return planner.SortLines(t.user, append(rest, newLine)), nil
	})
	switch {
	case errors.Is(err, planner.ErrIndexOutOfRange):
		t.notFound(fmt.Sprintf("Event %d", idx+1))
		return nil
	case errors.Is(err, planner.ErrUnparseable):
		t.toMenu("Failed parsing event.")
		return nil
	case err != nil:
		return fmt.Errorf("extend event: %w", err)
	}

	t.enter(session.Idle)
	t.say("✅ Your event got extended.", nil)
	t.say("📅 It was rewritten to new date: "+newAt.Format(planner.DateLayout), nil)
	t.say("New entry:\n"+newLine, nil)
	t.say("Menu:", mainMenu())
	return nil
}

func (al *AgentLoop) handleDeleteHashtag(t *turn) error {
	tag := t.text
	if tag == "" {
		t.say("Enter hashtag to delete:", hashtagMenu(al.markers))
		return nil
	}
	n, err := al.events.RemoveMatching(t.user, func(line string) bool {
		return strings.Contains(line, tag)
	})
	if err != nil {
		return fmt.Errorf("delete by hashtag: %w", err)
	}
	if n == 0 {
		t.toMenu(fmt.Sprintf("No events with hashtag %s.", tag))
		return nil
	}
	if err := al.events.Sort(t.user); err != nil {
		return fmt.Errorf("sort planner: %w", err)
	}
	al.countDeleted(n)
	t.toMenu(fmt.Sprintf("Deleted %d event(s) with hashtag %s.", n, tag))
	return nil
}

func (al *AgentLoop) handleDeleteEventID(t *turn) error {
	id := t.text
	if id == "" {
		t.say("Send UID to delete:", nil)
		return nil
	}
	n, err := al.events.RemoveMatching(t.user, func(line string) bool {
		return planner.HasEventID(line, id)
	})
	if err != nil {
		return fmt.Errorf("delete by id: %w", err)
	}
	if n == 0 {
		t.notFound("UID " + id)
		return nil
	}
	if err := al.events.Sort(t.user); err != nil {
		return fmt.Errorf("sort planner: %w", err)
	}
	al.countDeleted(n)
	t.toMenu(fmt.Sprintf("Deleted %d event(s) with UID %s.", n, id))
	return nil
}

func (al *AgentLoop) handleDeleteBatch(t *turn) error {
	if t.text == btnNext {
		al.sendPage(t)
		return nil
	}
	positions := planner.ParsePositions(t.text)
	if len(positions) == 0 {
		t.say("Enter numbers separated by spaces.", navMenu(t.hasNextPage()))
		return nil
	}
	removed, err := al.events.RemoveIndices(t.user, positions)
	if err != nil {
		return fmt.Errorf("delete entries: %w", err)
	}
	if len(removed) == 0 {
		t.toMenu("No valid numbers.")
		return nil
	}
	if err := al.events.Sort(t.user); err != nil {
		return fmt.Errorf("sort planner: %w", err)
	}
	al.countDeleted(len(removed))

	t.enter(session.Idle)
	t.say("You've deleted entries:\n"+strings.Join(removed, "\n"), nil)
	t.say("Done.", mainMenu())
	return nil
}

func (al *AgentLoop) handleDeleteDone(t *turn) error {
	pos, ok := al.pickPosition(t)
	if !ok {
		return nil
	}
	line, err := al.completed.Remove(t.user, pos-1)
	if errors.Is(err, planner.ErrIndexOutOfRange) {
		t.notFound(fmt.Sprintf("Completed event %d", pos))
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete completed event: %w", err)
	}
	t.toMenu("Deleted:\n" + line)
	return nil
}

func (al *AgentLoop) startPhotoDeletion(t *turn) error {
	refs, err := al.photos.Refs(t.user)
	if err != nil {
		return fmt.Errorf("read photo log: %w", err)
	}
	if len(refs) == 0 {
		t.toMenu("No saved photo entries.")
		return nil
	}
	var b strings.Builder
	b.WriteString("Saved photo entries:")
	for i, ref := range refs {
		fmt.Fprintf(&b, "\n%d. %s", i+1, ref.Label())
	}
	t.enter(session.DeletePhotos)
	t.say(b.String(), nil)
	t.say("Send numbers separated by spaces (e.g. 1 3 5):", nil)
	return nil
}

func (al *AgentLoop) handleDeletePhotos(t *turn) error {
	positions := planner.ParsePositions(t.text)
	if len(positions) == 0 {
		t.say("Enter numbers separated by spaces.", nil)
		return nil
	}
	removed, err := al.photos.RemoveNumbered(t.user, positions)
	if err != nil {
		return fmt.Errorf("delete photo entries: %w", err)
	}
	if len(removed) == 0 {
		t.toMenu("No valid numbers.")
		return nil
	}
	labels := make([]string, 0, len(removed))
	for _, r := range removed {
		labels = append(labels, r.Label())
	}
	t.enter(session.Idle)
	t.say("You've deleted photo entries:\n"+strings.Join(labels, "\n"), nil)
	t.say("Done.", mainMenu())
	return nil
}

func (al *AgentLoop) handleQuickNote(t *turn) error {
	if t.text == "" {
		t.say("Send text to save:", nil)
		return nil
	}
	if err := al.events.Append(t.user, t.text); err != nil {
		return fmt.Errorf("save note: %w", err)
	}
	if al.metrics != nil {
		al.metrics.EventsCreated.Inc()
	}
	t.toMenu("Saved.")
	return nil
}

func (al *AgentLoop) handleDateQuery(t *turn) error {
	day, err := time.ParseInLocation(planner.DateLayout, t.text, t.now.Location())
	if err != nil {
		t.say("❌ Invalid format. Please use YYYY-MM-DD:", nil)
		return nil
	}
	lines, err := al.events.ReadAll(t.user)
	if err != nil {
		return fmt.Errorf("read planner: %w", err)
	}
	matches := planner.LinesOn(lines, day)
	date := day.Format(planner.DateLayout)
	if len(matches) == 0 {
		t.say(fmt.Sprintf("No events for %s.", date), nil)
	} else {
		t.say(fmt.Sprintf("📅 Events for %s:\n%s", date, strings.Join(matches, "\n")), nil)
	}
	t.toMenu("Menu:")
	return nil
}

func (al *AgentLoop) handleDescriptionSearch(t *turn) error {
	if t.text == "" {
		t.say("Enter a text to search for in your planner:", nil)
		return nil
	}
	lines, err := al.events.ReadAll(t.user)
	if err != nil {
		return fmt.Errorf("read planner: %w", err)
	}
	found := planner.SearchDescriptions(lines, t.text)
	if len(found) == 0 {
		t.say("No matches found.", nil)
	} else {
		var b strings.Builder
		b.WriteString("🔎 Matches in planner (absolute line numbers):")
		for _, m := range found {
			fmt.Fprintf(&b, "\n#%d | %s\n%s", m.Position, m.Event.At.Weekday(), m.Event.Text())
		}
		t.say(b.String(), nil)
	}
	t.toMenu("Menu:")
	return nil
}

func (al *AgentLoop) showToday(t *turn) error {
	lines, err := al.events.ReadAll(t.user)
	if err != nil {
		return fmt.Errorf("read planner: %w", err)
	}
	t.say(fmt.Sprintf("📅 Today: %s (%s)", t.now.Format(planner.DateLayout), t.now.Weekday()), nil)
	if matches := planner.LinesOn(lines, t.now); len(matches) == 0 {
		t.say("No events for today.", nil)
	} else {
		t.say("Today's events:\n"+strings.Join(matches, "\n"), nil)
	}
	t.toMenu("Menu:")
	return nil
}

// showPhotos forwards every saved photo, each preceded by its description.
func (al *AgentLoop) showPhotos(t *turn) error {
	refs, err := al.photos.Refs(t.user)
	if err != nil {
		return fmt.Errorf("read photo log: %w", err)
	}
	if len(refs) == 0 {
		t.toMenu("You have no saved photos.")
		return nil
	}
	for i, ref := range refs {
		if strings.TrimSpace(ref.Description) != "" {
			t.say(fmt.Sprintf("Photo %d:\n%s", i+1, ref.Description), nil)
		}
		t.forward(ref)
	}
	t.toMenu("Menu:")
	return nil
}

func (al *AgentLoop) exportCalendar(t *turn) error {
	events, _, err := al.events.Events(t.user)
	if err != nil {
		return fmt.Errorf("read planner: %w", err)
	}
	if len(events) == 0 {
		t.toMenu("No events to export.")
		return nil
	}
	t.say(fmt.Sprintf("📤 Calendar export (%d events):", len(events)), nil)
	t.say(planner.ExportICS(t.user, events, t.now), nil)
	t.toMenu("Menu:")
	return nil
}

func (al *AgentLoop) countDeleted(n int) {
	if al.metrics != nil {
		al.metrics.EventsDeleted.Add(float64(n))
	}
}
