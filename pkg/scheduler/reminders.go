package scheduler

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dotsetgreg/planbot/pkg/bus"
	"github.com/dotsetgreg/planbot/pkg/config"
	"github.com/dotsetgreg/planbot/pkg/ledger"
	"github.com/dotsetgreg/planbot/pkg/logger"
	"github.com/dotsetgreg/planbot/pkg/planner"
)

var lookaheadTitles = map[int]string{
	14: "🗓️ Two weeks before",
	7:  "🗓️ One week before",
	3:  "🗓️ Three days before",
}

// newReminder addresses a reminder to the user's default channel.
func newReminder(user, content string) bus.OutboundMessage {
	return bus.OutboundMessage{UserID: user, Content: content}
}

// summary is the "HH:MM description #tag" form used in reminders.
func summary(ev planner.Event, layout string) string {
	return strings.Join(strings.Fields(strings.Join([]string{ev.At.Format(layout), ev.Description, ev.Hashtag}, " ")), " ")
}

// markerPattern matches any of markers as a whole word, case-insensitively.
func markerPattern(markers ...string) *regexp.Regexp {
	quoted := make([]string, 0, len(markers))
	for _, m := range markers {
		m = strings.TrimPrefix(strings.TrimSpace(m), "#")
		if m != "" {
			quoted = append(quoted, regexp.QuoteMeta(m))
		}
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
}

// daysUntil counts calendar days from a to b, ignoring clock time.
func daysUntil(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

// HourlyPass reminds about every event starting within the hourly window.
// Each occurrence is reminded once.
func (s *Scheduler) HourlyPass(ctx context.Context, now time.Time) {
	window := time.Duration(s.cfg.HourlyWindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Hour
	}
	p := s.newPass(ctx, CadenceHourly, now)
	p.eachUser(func(user string, events []planner.Event) {
		for _, ev := range events {
			delta := ev.At.Sub(now)
			if delta <= 0 || delta > window {
				continue
			}
			key := ledger.Key(user, ev.EventID, ev.At, "")
			p.sendOnce(user, key, ev.At, "⏰ Reminder:\n"+summary(ev, "15:04"))
		}
	})
}

// DigestPass sends each user the list of today's events.
func (s *Scheduler) DigestPass(ctx context.Context, now time.Time) {
	p := s.newPass(ctx, CadenceDigest, now)
	p.eachUser(func(user string, events []planner.Event) {
		var today []string
		for _, ev := range events {
			if planner.SameDay(ev.At, now) {
				today = append(today, ev.Text())
			}
		}
		if len(today) > 0 {
			p.send(user, "📅 Events today:\n"+strings.Join(today, "\n"))
		}
	})
}

// DayAheadPass sends one message per future day holding events that carry
// the configured marker.
func (s *Scheduler) DayAheadPass(ctx context.Context, now time.Time, cfg config.DayAheadConfig) {
	match := markerPattern(cfg.Marker)
	if match == nil {
		return
	}
	title := cfg.Title
	if title == "" {
		title = "Reminders"
	}

	p := s.newPass(ctx, dayAheadPrefix+cfg.Marker, now)
	p.eachUser(func(user string, events []planner.Event) {
		byDay := make(map[time.Time][]string)
		for _, ev := range events {
			if ev.At.Before(now) || !match.MatchString(ev.Text()) {
				continue
			}
			day := planner.DayStart(ev.At)
			byDay[day] = append(byDay[day], ev.Text())
		}

		days := make([]time.Time, 0, len(byDay))
		for d := range byDay {
			days = append(days, d)
		}
		sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

		for _, d := range days {
			p.send(user, fmt.Sprintf("📌 %s %s for %s:\n%s",
				planner.WeekdayMark(d), title, d.Format(planner.DateLayout), strings.Join(byDay[d], "\n")))
		}
	})
}

// LookaheadPass reminds about marked events exactly N days ahead for each
// configured N. Every (event, N) pair is sent once.
func (s *Scheduler) LookaheadPass(ctx context.Context, now time.Time) {
	match := markerPattern(s.cfg.LookaheadMarkers...)
	if match == nil || len(s.cfg.LookaheadDays) == 0 {
		return
	}
	offsets := make(map[int]bool, len(s.cfg.LookaheadDays))
	for _, n := range s.cfg.LookaheadDays {
		offsets[n] = true
	}

	p := s.newPass(ctx, CadenceLookahead, now)
	p.eachUser(func(user string, events []planner.Event) {
		for _, ev := range events {
			n := daysUntil(now, ev.At)
			if n <= 0 || !offsets[n] || !match.MatchString(ev.Text()) {
				continue
			}
			title, ok := lookaheadTitles[n]
			if !ok {
				title = fmt.Sprintf("🗓️ %d days before", n)
			}
			key := ledger.Key(user, ev.EventID, ev.At, fmt.Sprintf("%dd", n))
			p.sendOnce(user, key, ev.At, title+":\n"+summary(ev, "2006-01-02 15:04"))
		}
	})
}

// CleanupLedger evicts keys whose occurrence is past the retention horizon.
func (s *Scheduler) CleanupLedger(ctx context.Context, now time.Time) {
	retention := time.Duration(s.cfg.RetentionDays) * 24 * time.Hour
	if retention <= 0 {
		retention = ledger.DefaultRetention
	}
	n, err := s.ledger.Cleanup(ctx, now, retention)
	if err != nil {
		logger.ErrorCF("scheduler", "Ledger cleanup failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if s.metrics != nil {
		s.metrics.LedgerEvicted.Add(float64(n))
	}
	if n > 0 {
		logger.InfoCF("scheduler", "Cleaned up old reminder keys", map[string]interface{}{
			"evicted": n,
		})
	}
}
