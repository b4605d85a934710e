package enrich

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/address-helper/internal/dataset"
	"github.com/sells-group/address-helper/internal/model"
	"github.com/sells-group/address-helper/internal/parser"
	"github.com/sells-group/address-helper/internal/patterns"
	"github.com/sells-group/address-helper/pkg/egrn"
)

// ChangesetComment is the comment of every changeset written by a batch.
const ChangesetComment = "Added tags from address-helper"

// ErrConfig marks a batch that cannot start.
var ErrConfig = eris.New("enrich: invalid batch configuration")

// State is the lifecycle stage of a batch.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateProcessing
	StateSanitizing
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateProcessing:
		return "processing"
	case StateSanitizing:
		return "sanitizing"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Options configures a batch.
type Options struct {
	Requester egrn.Requester
	// Dataset supplies the named roads for street matching. It is read once
	// per batch.
	Dataset dataset.Dataset
	// Writer receives the batch changeset. Nil leaves the dataset untouched.
	Writer dataset.TagWriter

	HousePatterns  *patterns.List
	StreetPatterns *patterns.List

	Limit int
	Delay time.Duration

	Tags         TagOptions
	ClearDoubles bool
	DoublePolicy DoublePolicy
}

// Batch enriches one set of buildings. A batch is loaded once.
type Batch struct {
	opts      Options
	buildings []*Building
	skipped   []string

	mu    sync.Mutex
	state State
	log   *zap.Logger
}

// NewBatch prepares a batch over prims. Primitives that are deleted,
// incomplete or have no usable geometry are skipped.
func NewBatch(prims []*model.Primitive, opts Options) (*Batch, error) {
	if opts.Requester == nil {
		return nil, eris.Wrap(ErrConfig, "requester is required")
	}
	if opts.Dataset == nil {
		return nil, eris.Wrap(ErrConfig, "dataset is required")
	}
	if opts.Limit < 1 {
		return nil, eris.Wrapf(ErrConfig, "limit %d must be >= 1", opts.Limit)
	}
	if opts.Delay < 0 {
		return nil, eris.Wrapf(ErrConfig, "delay %s must be >= 0", opts.Delay)
	}
	if opts.DoublePolicy == "" {
		opts.DoublePolicy = DropAll
	}
	if _, err := ParseDoublePolicy(string(opts.DoublePolicy)); err != nil {
		return nil, eris.Wrap(ErrConfig, err.Error())
	}

	buildings, skipped := NewBuildings(prims)
	return &Batch{
		opts:      opts,
		buildings: buildings,
		skipped:   skipped,
		log:       zap.L().With(zap.String("component", "batch")),
	}, nil
}

// Size returns the number of buildings that will be queried.
func (b *Batch) Size() int { return len(b.buildings) }

// Skipped returns the ids of primitives left out of the batch.
func (b *Batch) Skipped() []string { return b.skipped }

// State returns the current lifecycle stage.
func (b *Batch) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Batch) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
	b.log.Debug("batch state", zap.Stringer("state", s))
}

// Load fetches, parses and sanitizes the batch. When a Writer is configured
// and at least one tag was proposed, all tags are written as one changeset.
func (b *Batch) Load(ctx context.Context, l *Listener) (*Result, error) {
	b.mu.Lock()
	if b.state != StateIdle {
		b.mu.Unlock()
		return nil, eris.New("enrich: batch already loaded")
	}
	b.state = StateFetching
	b.mu.Unlock()

	streets, err := parser.NewStreetParser(ctx, b.opts.Dataset, b.opts.StreetPatterns)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: build street index")
	}
	houses := parser.NewHouseNumberParser(b.opts.HousePatterns)

	res := &Result{Requested: len(b.buildings), Skipped: b.skipped, Unresolved: map[string]int{}}
	var unresolvedMu sync.Mutex
	procListener := &Listener{
		OnNotFoundStreet: func(street string) {
			unresolvedMu.Lock()
			res.Unresolved[street]++
			unresolvedMu.Unlock()
			l.notFoundStreet(street)
		},
	}

	b.log.Info("batch started",
		zap.Int("buildings", len(b.buildings)),
		zap.Int("skipped", len(b.skipped)),
		zap.Int("streets", streets.Len()),
		zap.Int("limit", b.opts.Limit),
		zap.Duration("delay", b.opts.Delay),
	)

	sched := NewScheduler(b.opts.Requester, b.opts.Limit, b.opts.Delay, l)
	in := sched.Run(ctx, b.buildings)

	b.setState(StateProcessing)
	proc := NewProcessor(streets, houses, b.opts.Tags, procListener)
	if err := proc.Process(ctx, in); err != nil {
		return nil, eris.Wrap(err, "enrich: process responses")
	}

	b.setState(StateSanitizing)
	res.Buildings = b.sanitize()

	if cs := changeset(res.Buildings); cs != nil {
		res.Changeset = cs
		if b.opts.Writer != nil {
			if err := b.opts.Writer.ApplyChangeset(ctx, cs); err != nil {
				return nil, eris.Wrap(err, "enrich: apply changeset")
			}
			res.Applied = true
		}
	}

	b.setState(StateCompleted)
	b.log.Info("batch completed",
		zap.Int("tagged", len(res.Buildings)),
		zap.Int("unresolved_streets", len(res.Unresolved)),
		zap.Bool("applied", res.Applied),
	)
	l.complete(res.Buildings)
	return res, nil
}

// sanitize drops buildings without proposals and, when enabled, duplicate
// proposals.
func (b *Batch) sanitize() []*Building {
	out := make([]*Building, 0, len(b.buildings))
	for _, bl := range b.buildings {
		if bl.HasProposals() {
			out = append(out, bl)
		}
	}
	if b.opts.ClearDoubles {
		before := len(out)
		out = RemoveDoubles(out, b.opts.DoublePolicy)
		if removed := before - len(out); removed > 0 {
			b.log.Info("duplicate addresses removed",
				zap.Int("removed", removed),
				zap.String("policy", string(b.opts.DoublePolicy)))
		}
	}
	return out
}

// changeset groups the proposed tags in batch order, keys sorted. It returns
// nil when there is nothing to write.
func changeset(buildings []*Building) *model.Changeset {
	var changes []model.TagChange
	for _, bl := range buildings {
		tags := bl.ProposedTags()
		for _, k := range tags.Keys() {
			changes = append(changes, model.TagChange{
				PrimitiveID: bl.ID(),
				Key:         k,
				Value:       tags[k],
			})
		}
	}
	if len(changes) == 0 {
		return nil
	}
	return &model.Changeset{Comment: ChangesetComment, Changes: changes}
}

// Proposal is one proposed tag.
type Proposal struct {
	PrimitiveID string `json:"primitive_id"`
	Key         string `json:"key"`
	Value       string `json:"value"`
}

// StreetCount is an unresolved street token and how often it was seen.
type StreetCount struct {
	Street string `json:"street"`
	Count  int    `json:"count"`
}

// Result is the outcome of a batch.
type Result struct {
	Requested  int
	Skipped    []string
	Buildings  []*Building
	Changeset  *model.Changeset // nil when nothing was proposed
	Applied    bool
	Unresolved map[string]int
}

// Proposals lists the proposed tags in batch order.
func (r *Result) Proposals() []Proposal {
	var out []Proposal
	for _, bl := range r.Buildings {
		tags := bl.ProposedTags()
		for _, k := range tags.Keys() {
			out = append(out, Proposal{PrimitiveID: bl.ID(), Key: k, Value: tags[k]})
		}
	}
	return out
}

// UnresolvedStreets lists unresolved street tokens, most frequent first.
func (r *Result) UnresolvedStreets() []StreetCount {
	out := make([]StreetCount, 0, len(r.Unresolved))
	for s, n := range r.Unresolved {
		out = append(out, StreetCount{Street: s, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Street < out[j].Street
	})
	return out
}
