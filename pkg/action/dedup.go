package action

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sd-io/sdcore/pkg/action/volumeinfo"
	"github.com/sd-io/sdcore/pkg/job"
	"github.com/sd-io/sdcore/pkg/sdpath"
)

// DedupActionName is the handler name under which DedupHandler is
// registered.
const DedupActionName = "dedup"

// DedupLister resolves every physical location holding a given content
// identity, so the dedup handler can group entries by content_id the way
// spec.md §4.5 describes. It is satisfied by the library database layer.
type DedupLister interface {
	EntriesByContentID(ctx context.Context, contentID string) ([]sdpath.SdPath, error)
}

// DedupInput is the Input for the dedup action: collapse every group of
// entries sharing one of ContentIDs down to a single canonical copy per
// Strategy.
type DedupInput struct {
	ContentIDs []string
	Strategy   DedupStrategy
}

// Validate performs structural checks.
func (in DedupInput) Validate() error {
	if len(in.ContentIDs) == 0 {
		return fmt.Errorf("dedup: no content identities specified")
	}
	for i, id := range in.ContentIDs {
		if id == "" {
			return fmt.Errorf("dedup: content identity %d is empty", i)
		}
	}
	return nil
}

// DedupBuilder is the fluent Builder for the dedup action. It has no
// filesystem-aware validation of its own: entry existence is resolved at
// dispatch time via DedupLister, since the set of paths sharing a content
// identity isn't known until the library database is queried.
type DedupBuilder struct {
	input DedupInput
}

// NewDedupBuilder starts a DedupBuilder.
func NewDedupBuilder() *DedupBuilder {
	return &DedupBuilder{input: DedupInput{Strategy: DedupHardlink}}
}

// ContentIDs appends content identities to dedup.
func (b *DedupBuilder) ContentIDs(ids ...string) *DedupBuilder {
	b.input.ContentIDs = append(b.input.ContentIDs, ids...)
	return b
}

// Strategy sets the disposition strategy for redundant entries.
func (b *DedupBuilder) Strategy(strategy DedupStrategy) *DedupBuilder {
	b.input.Strategy = strategy
	return b
}

// Build validates the accumulated input and produces an Action.
func (b *DedupBuilder) Build() (Action, error) {
	if err := b.input.Validate(); err != nil {
		return Action{}, err
	}
	return Action{Name: DedupActionName, Input: b.input}, nil
}

// DedupHandler implements the dedup action.
type DedupHandler struct {
	CurrentDeviceID string
	Lister          DedupLister
	// Audit records this handler's dispatches and completions; nil skips
	// auditing entirely.
	Audit AuditLogger
}

// Name implements Handler.
func (h *DedupHandler) Name() string { return DedupActionName }

// Validate implements Handler.
func (h *DedupHandler) Validate(input Input) error {
	in, ok := input.(DedupInput)
	if !ok {
		return fmt.Errorf("dedup: unexpected input type %T", input)
	}
	if h.Lister == nil {
		return fmt.Errorf("dedup: no entry lister configured")
	}
	return in.Validate()
}

// Dispatch submits a job that, for each content identity, keeps the first
// local entry as canonical and disposes of every other local entry sharing
// that content per Strategy. Entries on other devices are left untouched:
// cross-device dedup requires coordinating with the owning device and is
// out of scope for this handler.
func (h *DedupHandler) Dispatch(ctx context.Context, input Input, jobs JobSubmitter) (Output, error) {
	in := input.(DedupInput)

	var auditID int64
	if h.Audit != nil {
		id, err := h.Audit.RecordDispatch(ctx, DedupActionName, "content_id", strings.Join(in.ContentIDs, ","), in)
		if err != nil {
			return Output{}, fmt.Errorf("dedup: recording audit dispatch: %w", err)
		}
		auditID = id
	}

	handler := job.HandlerFunc(func(ctx context.Context, jc *job.Context) (result any, err error) {
		var reclaimed int
		defer func() {
			if h.Audit == nil {
				return
			}
			if auditErr := h.Audit.RecordCompletion(ctx, auditID, reclaimed, err); auditErr != nil {
				jc.AddNonCriticalError(fmt.Sprintf("dedup: recording audit completion: %v", auditErr))
			}
		}()

		for _, contentID := range in.ContentIDs {
			if err = jc.CheckInterrupt(); err != nil {
				return reclaimed, err
			}

			paths, listErr := h.Lister.EntriesByContentID(ctx, contentID)
			if listErr != nil {
				jc.AddNonCriticalError(fmt.Sprintf("dedup: %s: %v", contentID, listErr))
				continue
			}

			var local []string
			for _, p := range paths {
				if localPath, ok := p.AsLocalPath(h.CurrentDeviceID); ok {
					local = append(local, localPath)
				}
			}
			if len(local) < 2 {
				continue
			}

			canonical := local[0]
			for _, redundant := range local[1:] {
				if dedupErr := dedupOne(canonical, redundant, in.Strategy); dedupErr != nil {
					jc.AddNonCriticalError(fmt.Sprintf("dedup: %s: %v", redundant, dedupErr))
					continue
				}
				reclaimed++
				jc.Log(fmt.Sprintf("deduped %s against %s (%s)", redundant, canonical, in.Strategy))
			}
		}
		return reclaimed, nil
	})

	id, err := jobs.Submit(job.Submission{Type: "action.dedup", Handler: handler, Resumable: false})
	if err != nil {
		return Output{}, fmt.Errorf("dedup: submit job: %w", err)
	}
	return Output{JobID: id}, nil
}

// dedupOne disposes of redundant per strategy. DedupDelete simply removes
// it. DedupHardlink removes it and replaces it with a hardlink to
// canonical when they share a volume; off-volume entries fall back to
// DedupDelete's plain removal, since a hardlink cannot span volumes and
// dedup must not silently leave the redundant bytes in place.
func dedupOne(canonical, redundant string, strategy DedupStrategy) error {
	if strategy == DedupDelete {
		return os.Remove(redundant)
	}

	if !volumeinfo.SameVolume(canonical, redundant) {
		return os.Remove(redundant)
	}
	if err := os.Remove(redundant); err != nil {
		return err
	}
	return os.Link(canonical, redundant)
}
