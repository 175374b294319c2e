package reconcile

import (
	"context"
	"time"

	"github.com/NovaUNL/Supernova-sub000/internal/model"
	pkgsync "github.com/NovaUNL/Supernova-sub000/internal/sync"
	"github.com/NovaUNL/Supernova-sub000/internal/upstream"
)

func newClassEvents(env *Env) *kind[upstream.ClassEvent, *model.ClassEvent] {
	return &kind[upstream.ClassEvent, *model.ClassEvent]{
		env:   env,
		kind:  model.KindClassEvent,
		repo:  env.Store.ClassEvents(),
		fetch: collectionOnly[upstream.ClassEvent](model.KindClassEvent),
		raw:   (*upstream.ClassEvent).JSON,
		fresh: func() *model.ClassEvent { return &model.ClassEvent{} },
		apply: func(ctx context.Context, e *model.ClassEvent, p *upstream.ClassEvent, parent Parent, ch *changes) error {
			log := env.logger().With("kind", model.KindClassEvent, "external_id", p.ID)
			instanceID, err := owner(ctx, ch, log, model.KindClassEvent, p.ID, model.KindClassInstance,
				"instance_id", p.InstanceID, parent, env.Store.ClassInstances())
			if err != nil {
				return err
			}

			date, err := eventDate(p)
			if err != nil {
				return err
			}
			start, length, err := eventSlot(p)
			if err != nil {
				return err
			}

			moveTo(ch, log, "class_instance", &e.ClassInstanceID, instanceID)
			if !e.Date.Equal(date) {
				ch.record("date", e.Date, date)
				e.Date = date
			}
			setPtr(ch, "time", &e.Time, start)
			setPtr(ch, "duration", &e.Duration, length)
			set(ch, "type", &e.Type, p.Type)
			set(ch, "season", &e.Season, p.Season)
			setPtr(ch, "info", &e.Info, eventInfo(p))
			return nil
		},
	}
}

// eventDate keeps the calendar day only.
func eventDate(p *upstream.ClassEvent) (time.Time, error) {
	t, err := parseTimestamp(&p.Date)
	if err != nil {
		return time.Time{}, pkgsync.Skip("event %d: %v", p.ID, err)
	}
	if t == nil {
		return time.Time{}, pkgsync.Skip("event %d has no date", p.ID)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

// eventSlot returns the start and the duration in minutes. An end without a start is inconsistent.
func eventSlot(p *upstream.ClassEvent) (start, length *int, err error) {
	if p.From == nil {
		if p.To != nil {
			return nil, nil, pkgsync.Skip("event %d has an end time but no start", p.ID)
		}
		return nil, nil, nil
	}
	from, err := parseClock(*p.From)
	if err != nil {
		return nil, nil, pkgsync.Skip("event %d: %v", p.ID, err)
	}
	if p.To == nil {
		return &from, nil, nil
	}
	to, err := parseClock(*p.To)
	if err != nil {
		return nil, nil, pkgsync.Skip("event %d: %v", p.ID, err)
	}
	return &from, duration(&from, &to), nil
}

// eventInfo joins the description and the note as "<info>. <note>".
func eventInfo(p *upstream.ClassEvent) *string {
	if p.Info == nil {
		return nil
	}
	info := *p.Info + "."
	if p.Note != nil {
		info += " " + *p.Note
	}
	return &info
}
