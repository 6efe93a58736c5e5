// planbot - personal planner bot with scheduled reminders
// License: MIT
//
// Copyright (c) 2026 planbot contributors

package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dotsetgreg/planbot/pkg/bus"
	"github.com/dotsetgreg/planbot/pkg/channels"
	"github.com/dotsetgreg/planbot/pkg/logger"
	"github.com/dotsetgreg/planbot/pkg/metrics"
	"github.com/dotsetgreg/planbot/pkg/planner"
	"github.com/dotsetgreg/planbot/pkg/session"
	"github.com/dotsetgreg/planbot/pkg/utils"
)

const defaultDaysPerPage = 4

// Options wires the conversation engine to its stores and transport.
type Options struct {
	Bus       *bus.MessageBus
	Sender    channels.Sender
	Sessions  *session.Store
	Events    *planner.LineStore
	Completed *planner.LineStore
	Photos    *planner.PhotoLog
	Metrics   *metrics.Collector

	// DaysPerPage is the number of day blocks per listing page.
	DaysPerPage int
	// Markers are offered as hashtag suggestions in the create flow.
	Markers []string
	// Now defaults to time.Now.
	Now func() time.Time
}

// AgentLoop is the per-user conversation state machine. Turns are handled
// one at a time in arrival order.
type AgentLoop struct {
	bus         *bus.MessageBus
	sender      channels.Sender
	sessions    *session.Store
	events      *planner.LineStore
	completed   *planner.LineStore
	photos      *planner.PhotoLog
	metrics     *metrics.Collector
	daysPerPage int
	markers     []string
	now         func() time.Time
	running     atomic.Bool
}

func NewAgentLoop(opts Options) (*AgentLoop, error) {
	switch {
	case opts.Sender == nil:
		return nil, errors.New("agent: sender is required")
	case opts.Sessions == nil:
		return nil, errors.New("agent: session store is required")
	case opts.Events == nil || opts.Completed == nil:
		return nil, errors.New("agent: event stores are required")
	case opts.Photos == nil:
		return nil, errors.New("agent: photo log is required")
	}
	if opts.DaysPerPage < 1 {
		opts.DaysPerPage = defaultDaysPerPage
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &AgentLoop{
		bus:         opts.Bus,
		sender:      opts.Sender,
		sessions:    opts.Sessions,
		events:      opts.Events,
		completed:   opts.Completed,
		photos:      opts.Photos,
		metrics:     opts.Metrics,
		daysPerPage: opts.DaysPerPage,
		markers:     append([]string(nil), opts.Markers...),
		now:         opts.Now,
	}, nil
}

// Run consumes the bus until ctx is done, the bus closes, or Stop is called.
func (al *AgentLoop) Run(ctx context.Context) error {
	if al.bus == nil {
		return errors.New("agent: no message bus")
	}
	al.running.Store(true)

	for al.running.Load() {
		msg, ok := al.bus.ConsumeInbound(ctx)
		if !ok {
			return nil
		}
		if err := al.HandleMessage(ctx, msg); err != nil {
			logger.ErrorCF("agent", "Turn failed", map[string]interface{}{
				"user_id": msg.UserID,
				"error":   err.Error(),
			})
		}
	}

	return nil
}

func (al *AgentLoop) Stop() {
	al.running.Store(false)
}

// reply is one queued outbound action: a message, or a saved photo to
// forward when photo is set.
type reply struct {
	msg   bus.OutboundMessage
	photo *planner.PhotoRef
}

// turn is the working copy of one user's session while a message is
// handled. The session is written back once, before replies go out.
type turn struct {
	ctx   context.Context
	msg   bus.InboundMessage
	id    string
	user  string
	text  string
	now   time.Time
	start session.State

	state session.State
	data  session.Scratch
	dirty bool

	out []reply
}

func (t *turn) say(text string, menu bus.Menu) {
	t.out = append(t.out, reply{msg: bus.OutboundMessage{
		Channel: t.msg.Channel,
		UserID:  t.user,
		ChatID:  t.msg.ChatID,
		Content: text,
		Menu:    menu,
	}})
}

func (t *turn) forward(ref planner.PhotoRef) {
	t.out = append(t.out, reply{photo: &ref})
}

// enter starts a flow step with empty scratch data.
func (t *turn) enter(state session.State) {
	t.state = state
	t.data = session.Scratch{}
	t.dirty = true
}

// advance moves to the next step, keeping the scratch data.
func (t *turn) advance(state session.State) {
	t.state = state
	t.dirty = true
}

func (t *turn) toMenu(text string) {
	t.enter(session.Idle)
	t.say(text, mainMenu())
}

// HandleMessage runs one turn for msg. Internal failures are reported to the
// user and the session is returned to the main menu; panics are recovered.
func (al *AgentLoop) HandleMessage(ctx context.Context, msg bus.InboundMessage) (err error) {
	if msg.UserID == "" {
		return errors.New("agent: message without user id")
	}

	sess, err := al.sessions.GetOrCreate(msg.UserID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	t := &turn{
		ctx:   ctx,
		msg:   msg,
		id:    "msg-" + uuid.NewString(),
		user:  msg.UserID,
		text:  strings.TrimSpace(msg.Content),
		now:   al.now(),
		start: sess.State,
		state: sess.State,
		data:  sess.Data,
	}
	if !t.state.Valid() {
		t.enter(session.Idle)
	}

	logger.InfoCF("agent", "Inbound message", map[string]interface{}{
		"correlation_id": t.id,
		"channel":        msg.Channel,
		"user_id":        t.user,
		"state":          string(t.start),
		"preview":        utils.Truncate(t.text, 80),
		"attachments":    len(msg.Attachments),
	})
	if al.metrics != nil {
		al.metrics.InboundMessages.WithLabelValues(msg.Channel).Inc()
		defer al.metrics.ObserveTurn(string(t.start), time.Now())
	}

	defer func() {
		if r := recover(); r != nil {
			err = al.recoverTurn(t, r)
		}
	}()

	if herr := al.process(t); herr != nil {
		logger.ErrorCF("agent", "Turn aborted", map[string]interface{}{
			"correlation_id": t.id,
			"user_id":        t.user,
			"state":          string(t.start),
			"error":          herr.Error(),
		})
		t.out = nil
		t.toMenu(fmt.Sprintf("⚠️ Something went wrong: %v", herr))
	}

	return al.finish(t)
}

func (al *AgentLoop) process(t *turn) error {
	// the text sent with an attachment is its description, not a command
	if t.msg.HasAttachments() {
		return al.capturePhoto(t)
	}

	if handled, err := al.handleGlobal(t); handled || err != nil {
		return err
	}
	return al.dispatch(t)
}

// finish persists the session and delivers the queued replies. A failed
// send is logged and the rest are still attempted.
func (al *AgentLoop) finish(t *turn) error {
	var saveErr error
	if t.dirty {
		if t.state == t.start {
			saveErr = al.sessions.SetData(t.user, t.data)
		} else {
			saveErr = al.sessions.Update(t.user, func(s *session.Session) {
				s.State = t.state
				s.Data = t.data
			})
		}
		if saveErr != nil {
			saveErr = fmt.Errorf("save session: %w", saveErr)
		}
	}

	for _, r := range t.out {
		var err error
		if r.photo != nil {
			err = al.sender.Forward(t.ctx, t.msg.Channel, t.user, *r.photo)
		} else {
			err = al.sender.Send(t.ctx, r.msg)
		}
		if err != nil {
			logger.ErrorCF("agent", "Failed to deliver reply", map[string]interface{}{
				"correlation_id": t.id,
				"user_id":        t.user,
				"error":          err.Error(),
			})
		}
	}

	if t.state != t.start {
		logger.DebugCF("agent", "State transition", map[string]interface{}{
			"correlation_id": t.id,
			"user_id":        t.user,
			"from":           string(t.start),
			"to":             string(t.state),
		})
	}
	return saveErr
}

// recoverTurn resets the user to the main menu after a panic and sends one
// error notice. Queued replies are dropped: some may already be delivered.
func (al *AgentLoop) recoverTurn(t *turn, r interface{}) (err error) {
	err = fmt.Errorf("panic in state %s: %v", t.start, r)
	if al.metrics != nil {
		al.metrics.TurnPanics.Inc()
	}
	logger.ErrorCF("agent", "Turn panicked", map[string]interface{}{
		"correlation_id": t.id,
		"user_id":        t.user,
		"state":          string(t.start),
		"panic":          fmt.Sprint(r),
	})

	serr := al.sessions.ClearData(t.user)
	if serr == nil {
		serr = al.sessions.SetState(t.user, session.Idle)
	}
	if serr != nil {
		logger.ErrorCF("agent", "Failed to reset session after panic", map[string]interface{}{
			"correlation_id": t.id,
			"user_id":        t.user,
			"error":          serr.Error(),
		})
	}

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("agent", "Error notice panicked", map[string]interface{}{
				"correlation_id": t.id,
				"user_id":        t.user,
				"panic":          fmt.Sprint(r),
			})
		}
	}()
	t.out = nil
	t.say("Something went wrong. Back to the menu.", mainMenu())
	if derr := al.sender.Send(t.ctx, t.out[0].msg); derr != nil {
		logger.ErrorCF("agent", "Failed to deliver reply", map[string]interface{}{
			"correlation_id": t.id,
			"user_id":        t.user,
			"error":          derr.Error(),
		})
	}
	return err
}

func (al *AgentLoop) capturePhoto(t *turn) error {
	ref := planner.PhotoRef{
		Peer:        t.msg.ChatID,
		Message:     t.msg.MessageID,
		Description: t.text,
	}
	if ref.Peer == "" || ref.Message == "" {
		logger.WarnCF("agent", "Attachment without a message reference", map[string]interface{}{
			"correlation_id": t.id,
			"user_id":        t.user,
		})
		return nil
	}
	if err := al.photos.Add(t.user, ref); err != nil {
		return fmt.Errorf("save photo reference: %w", err)
	}
	t.say("Saved photo reference.", mainMenu())
	return nil
}

func (al *AgentLoop) dispatch(t *turn) error {
	switch t.state {
	case session.Idle:
		return al.handleIdle(t)
	case session.ListMenu:
		return al.handleListMenu(t)
	case session.DeleteMenu:
		return al.handleDeleteMenu(t)
	case session.EditMenu:
		return al.handleEditMenu(t)
	case session.QuickCommandsMenu:
		t.say("Choose quick command:", quickCommandsMenu())
		return nil

	case session.CreateYear, session.CreateMonth, session.CreateDay,
		session.CreateHour, session.CreateMinute, session.CreateDesc,
		session.CreateHashtag, session.CreateRecurrence, session.CreateCount,
		session.CreateDuration, session.CreatePlace:
		return al.handleCreate(t)

	case session.ListView:
		return al.handleListView(t)
	case session.Filter:
		return al.handleFilter(t)
	case session.Complete:
		return al.handleComplete(t)
	case session.EditSelect:
		return al.handleEditSelect(t, al.events, session.EditInput)
	case session.EditInput:
		return al.handleEditInput(t, al.events, true)
	case session.EditDoneSelect:
		return al.handleEditSelect(t, al.completed, session.EditDoneInput)
	case session.EditDoneInput:
		return al.handleEditInput(t, al.completed, false)
	case session.ExtendSelect:
		return al.handleExtendSelect(t)
	case session.ExtendPeriod:
		return al.handleExtendPeriod(t)
	case session.DeleteHashtag:
		return al.handleDeleteHashtag(t)
	case session.DeleteEventID:
		return al.handleDeleteEventID(t)
	case session.DeleteBatch:
		return al.handleDeleteBatch(t)
	case session.DeleteDone:
		return al.handleDeleteDone(t)
	case session.DeletePhotos:
		return al.handleDeletePhotos(t)
	case session.QuickNote:
		return al.handleQuickNote(t)
	case session.DateQuery:
		return al.handleDateQuery(t)
	case session.DescriptionSearch:
		return al.handleDescriptionSearch(t)
	}

	t.toMenu("Menu:")
	return nil
}
