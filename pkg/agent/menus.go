package agent

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dotsetgreg/planbot/pkg/bus"
	"github.com/dotsetgreg/planbot/pkg/planner"
)

// Button labels. A pressed button arrives as an inbound message carrying
// exactly the label.
const (
	btnSuggest       = "Suggest"
	btnQuickNote     = "Quick note"
	btnComplete      = "Complete"
	btnList          = "List"
	btnDelete        = "Delete"
	btnEdit          = "Edit"
	btnQuickCommands = "Quick Commands"
	btnBackToMenu    = "Back to menu"
	btnNext          = "Next"

	btnListEvents    = "List events"
	btnListCompleted = "List completed"
	btnFilterByTag   = "Filter by hashtag"

	btnDelPhotos  = "Del P"
	btnDelHashtag = "Del Hash"
	btnDelID      = "Del ID"
	btnDelBatch   = "Del Ar"
	btnDelDone    = "Del C"

	btnEditEvent     = "Edit event"
	btnEditCompleted = "Edit completed"
)

// Slash commands, matched case-insensitively in any state.
const (
	cmdHelp      = "/"
	cmdReset     = "/reset"
	cmdDate      = "/date"
	cmdNumber    = "/number"
	cmdExtend    = "/extend"
	cmdToday     = "/today"
	cmdPics      = "/pics"
	cmdRearrange = "/rearrange"
	cmdExport    = "/export"
)

var commandHelp = [][2]string{
	{cmdReset, "Reset bot state"},
	{cmdDate, "Query events by date"},
	{cmdNumber, "Search events by text"},
	{cmdPics, "Show saved photos"},
	{cmdRearrange, "Rearrange your planner events"},
	{cmdToday, "Show today's events"},
	{cmdExtend, "Extend existing event"},
	{cmdExport, "Export your planner as an iCalendar file"},
}

func mainMenu() bus.Menu {
	return bus.Menu{
		{btnSuggest, btnQuickNote, btnComplete},
		{btnList, btnDelete, btnEdit},
		{btnQuickCommands},
	}
}

func listMenu() bus.Menu {
	return bus.Menu{
		{btnListEvents, btnListCompleted},
		{btnFilterByTag, btnBackToMenu},
	}
}

func deleteMenu() bus.Menu {
	return bus.Menu{
		{btnDelPhotos, btnDelHashtag, btnDelID},
		{btnDelBatch, btnDelDone},
		{btnBackToMenu},
	}
}

func editMenu() bus.Menu {
	return bus.Menu{
		{btnEditEvent, btnEditCompleted},
		{btnBackToMenu},
	}
}

func quickCommandsMenu() bus.Menu {
	return bus.Menu{
		{cmdToday, cmdNumber, cmdExtend},
		{cmdDate, cmdPics, btnBackToMenu},
	}
}

func navMenu(hasNext bool) bus.Menu {
	if hasNext {
		return bus.Menu{{btnNext, btnBackToMenu}}
	}
	return bus.Menu{{btnBackToMenu}}
}

func recurrenceMenu() bus.Menu {
	l := planner.RecurrenceLabels
	return bus.Menu{{l[0], l[1]}, {l[2], l[3]}, {l[4]}}
}

func extendMenu() bus.Menu {
	l := planner.ExtensionLabels
	return bus.Menu{{l[0], l[1]}, {l[2], l[3]}, {btnBackToMenu}}
}

// suggested values for the create flow

func yearMenu(now time.Time) bus.Menu {
	return bus.Menu{{strconv.Itoa(now.Year())}, {strconv.Itoa(now.Year() + 1)}}
}

func monthMenu(now time.Time) bus.Menu {
	m := int(now.Month())
	return bus.Menu{{fmt.Sprintf("%02d", m)}, {fmt.Sprintf("%02d", m%12+1)}}
}

func dayMenu(now time.Time) bus.Menu {
	return bus.Menu{{strconv.Itoa(now.Day())}, {strconv.Itoa(now.AddDate(0, 0, 1).Day())}}
}

func hourMenu() bus.Menu {
	return bus.Menu{{"08", "10", "11"}, {"13", "15", "16"}, {"18", "20", "23"}}
}

func minuteMenu() bus.Menu {
	return bus.Menu{{"00", "10", "30"}, {"40", "50", "59"}}
}

func hashtagMenu(markers []string) bus.Menu {
	if len(markers) == 0 {
		return nil
	}
	row := make([]string, 0, len(markers))
	for _, m := range markers {
		row = append(row, planner.NormalizeTag(m))
	}
	return bus.Menu{row}
}

func durationMenu() bus.Menu {
	return bus.Menu{{planner.UnknownMarker, "60", "90"}}
}

func placeMenu() bus.Menu {
	return bus.Menu{{planner.UnknownMarker}}
}
