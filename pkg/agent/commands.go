package agent

import (
	"fmt"
	"strings"

	"github.com/dotsetgreg/planbot/pkg/planner"
	"github.com/dotsetgreg/planbot/pkg/session"
)

// handleGlobal runs the commands that work from any state.
func (al *AgentLoop) handleGlobal(t *turn) (bool, error) {
	if t.text == btnBackToMenu {
		t.toMenu("Menu:")
		return true, nil
	}
	if !strings.HasPrefix(t.text, "/") {
		return false, nil
	}

	switch strings.ToLower(t.text) {
	case cmdHelp:
		var b strings.Builder
		b.WriteString("📖 Available commands:")
		for _, c := range commandHelp {
			fmt.Fprintf(&b, "\n%s: %s", c[0], c[1])
		}
		t.say(b.String(), nil)
		return true, nil

	case cmdReset:
		t.toMenu("Reset.")
		return true, nil

	case cmdDate:
		t.enter(session.DateQuery)
		t.say("📅 Enter date in format YYYY-MM-DD:", nil)
		return true, nil

	case cmdNumber:
		t.enter(session.DescriptionSearch)
		t.say("Enter a text to search for in your planner:", nil)
		return true, nil

	case cmdExtend:
		return true, al.startSelection(t, al.events, session.ExtendSelect,
			"No events to extend.", "Select event number to extend:")

	case cmdToday:
		return true, al.showToday(t)

	case cmdPics:
		return true, al.showPhotos(t)

	case cmdRearrange:
		if err := al.events.Sort(t.user); err != nil {
			return true, fmt.Errorf("sort planner: %w", err)
		}
		t.toMenu("Rearranged.")
		return true, nil

	case cmdExport:
		return true, al.exportCalendar(t)
	}

	return false, nil
}

func (al *AgentLoop) handleIdle(t *turn) error {
	switch t.text {
	case btnSuggest:
		t.enter(session.CreateYear)
		t.say(todayLine(t.now), nil)
		t.say(twoMonthCalendar(t.now), nil)
		t.say("Enter year (YYYY):", yearMenu(t.now))
	case btnQuickNote:
		t.enter(session.QuickNote)
		t.say("Send text to save:", nil)
	case btnComplete:
		return al.startSelection(t, al.events, session.Complete,
			"No events to complete.", "Select event number to complete:")
	case btnList:
		t.enter(session.ListMenu)
		t.say("Choose list type:", listMenu())
	case btnDelete:
		t.enter(session.DeleteMenu)
		t.say("Choose deletion type:", deleteMenu())
	case btnEdit:
		t.enter(session.EditMenu)
		t.say("Choose edit type:", editMenu())
	case btnQuickCommands:
		t.enter(session.QuickCommandsMenu)
		t.say("Choose quick command:", quickCommandsMenu())
	default:
		t.say("Menu:", mainMenu())
	}
	return nil
}

func (al *AgentLoop) handleListMenu(t *turn) error {
	switch t.text {
	case btnListEvents:
		return al.startSelection(t, al.events, session.ListView, "No events.", "")
	case btnListCompleted:
		return al.startSelection(t, al.completed, session.ListView, "No completed events.", "")
	case btnFilterByTag:
		ok, err := al.hasLines(al.events, t.user)
		if err != nil {
			return err
		}
		if !ok {
			t.toMenu("No events to filter.")
			return nil
		}
		t.enter(session.Filter)
		t.say("Enter hashtag to filter (e.g., #event, #pers, #control):", hashtagMenu(al.markers))
	default:
		t.say("Choose list type:", listMenu())
	}
	return nil
}

func (al *AgentLoop) handleDeleteMenu(t *turn) error {
	switch t.text {
	case btnDelPhotos:
		return al.startPhotoDeletion(t)
	case btnDelHashtag, btnDelID:
		ok, err := al.hasLines(al.events, t.user)
		if err != nil {
			return err
		}
		if !ok {
			t.toMenu("No events to delete.")
			return nil
		}
		if t.text == btnDelHashtag {
			t.enter(session.DeleteHashtag)
			t.say("Enter hashtag to delete:", hashtagMenu(al.markers))
		} else {
			t.enter(session.DeleteEventID)
			t.say("Send UID to delete:", nil)
		}
	case btnDelBatch:
		return al.startSelection(t, al.events, session.DeleteBatch,
			"No events to delete.", "Send numbers separated by spaces (e.g. 1 3 5):")
	case btnDelDone:
		return al.startSelection(t, al.completed, session.DeleteDone,
			"No completed events to delete.", "Select completed event number to delete:")
	default:
		t.say("Choose deletion type:", deleteMenu())
	}
	return nil
}

func (al *AgentLoop) handleEditMenu(t *turn) error {
	switch t.text {
	case btnEditEvent:
		return al.startSelection(t, al.events, session.EditSelect,
			"No events.", "Select event number to edit:")
	case btnEditCompleted:
		return al.startSelection(t, al.completed, session.EditDoneSelect,
			"No completed events.", "Select completed event number to edit:")
	default:
		t.say("Choose edit type:", editMenu())
	}
	return nil
}

func (al *AgentLoop) hasLines(store *planner.LineStore, user string) (bool, error) {
	lines, err := store.ReadAll(user)
	if err != nil {
		return false, fmt.Errorf("read planner: %w", err)
	}
	return len(lines) > 0, nil
}
