package session

// State is the conversation step a user is in. The string values are the
// persisted form in sessions.json.
type State string

const (
	Idle State = "start"

	// create flow
	CreateYear       State = "suggest_year"
	CreateMonth      State = "suggest_month"
	CreateDay        State = "suggest_day"
	CreateHour       State = "suggest_hour"
	CreateMinute     State = "suggest_minute"
	CreateDesc       State = "suggest_desc"
	CreateHashtag    State = "suggest_hashtag"
	CreateRecurrence State = "suggest_recurrence"
	CreateCount      State = "suggest_count"
	CreateDuration   State = "suggest_duration"
	CreatePlace      State = "suggest_place"

	// sub-menus
	ListMenu          State = "list_main_menu"
	DeleteMenu        State = "delete_menu"
	EditMenu          State = "edit_menu"
	QuickCommandsMenu State = "quick_commands"

	// listings and selections
	ListView          State = "list_view"
	Filter            State = "filter"
	Complete          State = "complete"
	EditSelect        State = "edit_select"
	EditInput         State = "edit_input"
	EditDoneSelect    State = "edit_done_select"
	EditDoneInput     State = "edit_done_input"
	ExtendSelect      State = "extend_select"
	ExtendPeriod      State = "extend_period"
	DeleteHashtag     State = "delete_hashtag"
	DeleteEventID     State = "delete_uid"
	DeleteBatch       State = "delete_array"
	DeleteDone        State = "delete_done"
	DeletePhotos      State = "delete_photos"
	QuickNote         State = "quick_add"
	DateQuery         State = "date_query"
	DescriptionSearch State = "number_query"
)

var knownStates = map[State]bool{
	Idle:              true,
	CreateYear:        true,
	CreateMonth:       true,
	CreateDay:         true,
	CreateHour:        true,
	CreateMinute:      true,
	CreateDesc:        true,
	CreateHashtag:     true,
	CreateRecurrence:  true,
	CreateCount:       true,
	CreateDuration:    true,
	CreatePlace:       true,
	ListMenu:          true,
	DeleteMenu:        true,
	EditMenu:          true,
	QuickCommandsMenu: true,
	ListView:          true,
	Filter:            true,
	Complete:          true,
	EditSelect:        true,
	EditInput:         true,
	EditDoneSelect:    true,
	EditDoneInput:     true,
	ExtendSelect:      true,
	ExtendPeriod:      true,
	DeleteHashtag:     true,
	DeleteEventID:     true,
	DeleteBatch:       true,
	DeleteDone:        true,
	DeletePhotos:      true,
	QuickNote:         true,
	DateQuery:         true,
	DescriptionSearch: true,
}

// Valid reports whether s is a state the engine knows how to dispatch.
func (s State) Valid() bool {
	return knownStates[s]
}
