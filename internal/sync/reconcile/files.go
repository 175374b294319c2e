package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/NovaUNL/Supernova-sub000/internal/model"
	"github.com/NovaUNL/Supernova-sub000/internal/store"
	pkgsync "github.com/NovaUNL/Supernova-sub000/internal/sync"
	"github.com/NovaUNL/Supernova-sub000/internal/upstream"
)

// classFiles reconciles the documents of a class instance. Files are matched by hash, so
// a file upstream lists again under another id is still the stored one.
type classFiles struct {
	env *Env
}

func (f *classFiles) sync(ctx context.Context, ci *model.ClassInstance, listed []*upstream.ClassFile, policy pkgsync.Policy) error {
	env := f.env
	repo := env.Store.ClassFiles()
	log := env.logger().With("kind", model.KindClassFile,
		"parent_kind", model.KindClassInstance, "parent_external_id", ci.ExtID())

	byHash := make(map[string]*upstream.ClassFile, len(listed))
	pending := 0
	for _, p := range listed {
		if p.Hash == nil || *p.Hash == "" {
			pending++
			continue
		}
		if _, dup := byHash[*p.Hash]; !dup {
			byHash[*p.Hash] = p
		}
	}
	if pending > 0 {
		log.Warn("Files not yet downloaded upstream", "count", pending)
	}

	stored, err := repo.List(ctx, store.ChildrenOf(ci.ID))
	if err != nil {
		return err
	}
	uploaders, err := f.uploaders(ctx, ci)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(stored))
	var gone, mirrored []int64
	for _, file := range stored {
		seen[file.Hash] = true
		if file.ExternalID == nil {
			continue
		}
		p, ok := byHash[file.Hash]
		switch {
		case !ok:
			gone = append(gone, file.ExtID())
		case policy.UpdatesMirrored() && !file.Frozen:
			if err := env.settle(model.KindClassFile, p.ID, f.update(ctx, file, p, uploaders, log)); err != nil {
				return err
			}
		default:
			mirrored = append(mirrored, file.ExtID())
		}
	}

	if err := markDisappeared(ctx, env, model.KindClassFile, repo, gone, log); err != nil {
		return err
	}
	if _, err := repo.Touch(ctx, mirrored, env.now()); err != nil {
		return err
	}
	env.Tally.Add(model.KindClassFile, pkgsync.OutcomeUnchanged, int64(len(mirrored)))

	for _, hash := range slices.Sorted(maps.Keys(byHash)) {
		if seen[hash] {
			continue
		}
		p := byHash[hash]
		if err := env.settle(model.KindClassFile, p.ID, f.create(ctx, ci, p, uploaders, log)); err != nil {
			return err
		}
	}
	return nil
}

func (f *classFiles) create(
	ctx context.Context, ci *model.ClassInstance, p *upstream.ClassFile, uploaders map[int64]string, log *slog.Logger,
) error {
	env := f.env
	uploaded, err := uploadTime(p)
	if err != nil {
		return err
	}
	uploader, err := f.closestTeacher(ctx, uploaders, p.Uploader)
	if err != nil {
		return err
	}

	created, err := env.Store.ClassFiles().Create(ctx, &model.ClassFile{
		Importable:      model.NewExternal(p.ID, p.JSON(), env.now()),
		ClassInstanceID: ci.ID,
		Hash:            *p.Hash,
		Mime:            p.Mime,
		Size:            p.Size,
		Category:        p.Type,
		Name:            p.Name,
		UpstreamName:    p.Name,
		Uploaded:        uploaded,
		UploaderID:      uploader,
	})
	if errors.Is(err, store.ErrConflict) {
		return pkgsync.Skip("file %d is already stored under another class instance", p.ID)
	}
	if err != nil {
		return err
	}
	log.Info("Created entity", "external_id", p.ID, "id", created.ID, "hash", created.Hash)
	env.Tally.Add(model.KindClassFile, pkgsync.OutcomeCreated, 1)
	return nil
}

// update applies a listed file to its stored row. A name changed locally is kept.
func (f *classFiles) update(
	ctx context.Context, file *model.ClassFile, p *upstream.ClassFile, uploaders map[int64]string, log *slog.Logger,
) error {
	env := f.env
	log = log.With("external_id", file.ExtID())
	ch := &changes{mode: warn, log: log}

	uploaded, err := uploadTime(p)
	if err != nil {
		return err
	}
	uploader, err := f.closestTeacher(ctx, uploaders, p.Uploader)
	if err != nil {
		return err
	}

	if p.Name != file.UpstreamName {
		if file.Renamed() {
			log.Info("Keeping local file name", "name", file.Name, "upstream_name", p.Name)
		} else {
			set(ch, "name", &file.Name, p.Name)
		}
		file.UpstreamName = p.Name
		ch.quiet("upstream_name")
	}
	set(ch, "mime", &file.Mime, p.Mime)
	set(ch, "size", &file.Size, p.Size)
	set(ch, "category", &file.Category, p.Type)
	if !file.Uploaded.Equal(uploaded) {
		ch.record("uploaded", file.Uploaded, uploaded)
		file.Uploaded = uploaded
	}
	setPtr(ch, "uploader", &file.UploaderID, uploader)
	if raw := p.JSON(); !jsonEqual(file.ExternalData, raw) {
		file.ExternalData = raw
		ch.quiet("external_data")
	}
	if file.Disappeared {
		log.Info("Entity reappeared upstream")
	}

	file.Touch(env.now())
	if err := env.Store.ClassFiles().Update(ctx, file); err != nil {
		return err
	}
	if len(ch.fields) > 0 {
		env.Tally.Add(model.KindClassFile, pkgsync.OutcomeUpdated, 1)
	} else {
		env.Tally.Add(model.KindClassFile, pkgsync.OutcomeUnchanged, 1)
	}
	return nil
}

// uploaders maps the local id of every teacher of the instance's turns to their name.
func (f *classFiles) uploaders(ctx context.Context, ci *model.ClassInstance) (map[int64]string, error) {
	env := f.env
	turns, err := env.Store.Turns().List(ctx, store.ChildrenOf(ci.ID))
	if err != nil {
		return nil, err
	}
	out := make(map[int64]string)
	for _, turn := range turns {
		targets, err := env.Store.Links(model.RelTurnTeachers).Targets(ctx, turn.ID)
		if err != nil {
			return nil, err
		}
		for _, id := range targets {
			if _, ok := out[id]; ok {
				continue
			}
			t, found, err := env.Store.Teachers().ByID(ctx, id)
			if err != nil {
				return nil, err
			}
			if found {
				out[id] = t.Name
			}
		}
	}
	return out, nil
}

// closestTeacher picks the teacher of the instance whose name best matches name. When no
// name is similar at all, a single teacher anywhere whose name holds every word of name wins.
func (f *classFiles) closestTeacher(ctx context.Context, uploaders map[int64]string, name string) (*int64, error) {
	if best, ok := closestName(uploaders, name); ok {
		return &best, nil
	}

	words := strings.Fields(name)
	if len(words) == 0 {
		return nil, nil
	}
	teachers, err := f.env.Store.Teachers().List(ctx, store.All())
	if err != nil {
		return nil, err
	}
	var match *int64
	for _, t := range teachers {
		if !containsAll(t.Name, words) {
			continue
		}
		if match != nil {
			return nil, nil
		}
		match = &t.ID
	}
	return match, nil
}

// closestName returns the key whose name has the highest similarity ratio to name.
// Ties go to the lowest id.
func closestName(names map[int64]string, name string) (int64, bool) {
	var (
		best  int64
		score float64
	)
	target := strings.Split(strings.ToLower(name), "")
	for _, id := range slices.Sorted(maps.Keys(names)) {
		m := difflib.NewMatcher(target, strings.Split(strings.ToLower(names[id]), ""))
		if r := m.Ratio(); r > score {
			best, score = id, r
		}
	}
	return best, score > 0
}

func containsAll(s string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(s, w) {
			return false
		}
	}
	return true
}

func uploadTime(p *upstream.ClassFile) (time.Time, error) {
	t, err := parseTimestamp(&p.Uploaded)
	if err != nil {
		return time.Time{}, pkgsync.Skip("file %d: %v", p.ID, err)
	}
	if t == nil {
		return time.Time{}, pkgsync.Skip("file %d has no upload time", p.ID)
	}
	return *t, nil
}
