package reconcile

import (
	"context"
	"regexp"
	"strconv"

	"github.com/NovaUNL/Supernova-sub000/internal/model"
	pkgsync "github.com/NovaUNL/Supernova-sub000/internal/sync"
	"github.com/NovaUNL/Supernova-sub000/internal/upstream"
)

// roomNumber reads "<floor><door>" or "<floor>.<door>" from a room name.
var roomNumber = regexp.MustCompile(`(\d)\.?(\d+)`)

func collectionOnly[P any](kind model.Kind) func(context.Context, int64) (*P, error) {
	return func(_ context.Context, extID int64) (*P, error) {
		return nil, pkgsync.Skip("%s %d is only served as part of its collection", kind, extID)
	}
}

func newBuildings(env *Env) *kind[upstream.Building, *model.Building] {
	return &kind[upstream.Building, *model.Building]{
		env:   env,
		kind:  model.KindBuilding,
		repo:  env.Store.Buildings(),
		fetch: collectionOnly[upstream.Building](model.KindBuilding),
		raw:   (*upstream.Building).JSON,
		fresh: func() *model.Building { return &model.Building{} },
		apply: func(_ context.Context, b *model.Building, p *upstream.Building, _ Parent, ch *changes) error {
			set(ch, "name", &b.Name, p.Name)
			set(ch, "abbreviation", &b.Abbreviation, p.Abbreviation)
			return nil
		},
	}
}

func newRooms(env *Env) *kind[upstream.Room, *model.Room] {
	return &kind[upstream.Room, *model.Room]{
		env:   env,
		kind:  model.KindRoom,
		repo:  env.Store.Rooms(),
		fetch: collectionOnly[upstream.Room](model.KindRoom),
		raw:   (*upstream.Room).JSON,
		fresh: func() *model.Room { return &model.Room{} },
		apply: func(ctx context.Context, r *model.Room, p *upstream.Room, _ Parent, ch *changes) error {
			building, found, err := env.Store.Buildings().ByExternalID(ctx, p.Building)
			if err != nil {
				return err
			}
			if !found {
				return &pkgsync.MissingParentError{
					Kind:             model.KindRoom,
					ExternalID:       p.ID,
					ParentKind:       model.KindBuilding,
					ParentExternalID: p.Building,
				}
			}
			floor, door := parseRoomNumber(p.Name)

			set(ch, "name", &r.Name, p.Name)
			set(ch, "type", &r.Type, p.Type)
			set(ch, "building", &r.BuildingID, building.ID)
			setPtr(ch, "floor", &r.Floor, floor)
			setPtr(ch, "door_number", &r.DoorNumber, door)
			return nil
		},
	}
}

// parseRoomNumber returns the floor and door number encoded in a room name, if any.
func parseRoomNumber(name string) (floor, door *int) {
	m := roomNumber.FindStringSubmatch(name)
	if m == nil {
		return nil, nil
	}
	f, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, nil
	}
	d, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, nil
	}
	return &f, &d
}

func newCourses(env *Env) *kind[upstream.Course, *model.Course] {
	return &kind[upstream.Course, *model.Course]{
		env:   env,
		kind:  model.KindCourse,
		repo:  env.Store.Courses(),
		fetch: collectionOnly[upstream.Course](model.KindCourse),
		raw:   (*upstream.Course).JSON,
		fresh: func() *model.Course { return &model.Course{} },
		apply: func(_ context.Context, c *model.Course, p *upstream.Course, _ Parent, ch *changes) error {
			if p.Degree == nil {
				return pkgsync.Skip("course %d has no degree", p.ID)
			}
			set(ch, "name", &c.Name, p.Name)
			set(ch, "abbreviation", &c.Abbreviation, p.Abbreviation)
			set(ch, "degree", &c.Degree, *p.Degree)
			return nil
		},
	}
}
