package action

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sd-io/sdcore/pkg/action/volumeinfo"
	"github.com/sd-io/sdcore/pkg/job"
	"github.com/sd-io/sdcore/pkg/sdpath"
)

// MoveActionName is the handler name under which MoveHandler is registered.
const MoveActionName = "move"

// MoveInput is the Input for the move action: relocate one or more Physical
// sources into a Physical destination directory.
type MoveInput struct {
	Sources     []sdpath.SdPath
	Destination sdpath.SdPath
	OnConflict  ConflictPolicy
}

// Validate performs structural checks.
func (in MoveInput) Validate() error {
	if len(in.Sources) == 0 {
		return fmt.Errorf("move: no sources specified")
	}
	for i, src := range in.Sources {
		if err := src.EnsureValid(); err != nil {
			return fmt.Errorf("move: source %d: %w", i, err)
		}
	}
	if err := in.Destination.EnsureValid(); err != nil {
		return fmt.Errorf("move: destination: %w", err)
	}
	if !in.Destination.IsPhysical() {
		return fmt.Errorf("move: destination must be a physical path")
	}
	return nil
}

// MoveBuilder is the fluent Builder for the move action.
type MoveBuilder struct {
	currentDeviceID string
	input           MoveInput
}

// NewMoveBuilder starts a MoveBuilder for the device running this process.
func NewMoveBuilder(currentDeviceID string) *MoveBuilder {
	return &MoveBuilder{currentDeviceID: currentDeviceID}
}

// Sources appends source paths to move.
func (b *MoveBuilder) Sources(paths ...sdpath.SdPath) *MoveBuilder {
	b.input.Sources = append(b.input.Sources, paths...)
	return b
}

// Destination sets the destination directory.
func (b *MoveBuilder) Destination(p sdpath.SdPath) *MoveBuilder {
	b.input.Destination = p
	return b
}

// OnConflict sets the name-collision policy.
func (b *MoveBuilder) OnConflict(policy ConflictPolicy) *MoveBuilder {
	b.input.OnConflict = policy
	return b
}

// Build validates the accumulated input and produces an Action.
func (b *MoveBuilder) Build() (Action, error) {
	if err := b.input.Validate(); err != nil {
		return Action{}, err
	}
	for i, src := range b.input.Sources {
		if localPath, ok := src.AsLocalPath(b.currentDeviceID); ok {
			if _, err := os.Lstat(localPath); err != nil {
				return Action{}, fmt.Errorf("move: source %d does not exist: %w", i, err)
			}
		}
	}
	if localDest, ok := b.input.Destination.AsLocalPath(b.currentDeviceID); ok {
		info, err := os.Stat(localDest)
		if err != nil {
			return Action{}, fmt.Errorf("move: destination does not exist: %w", err)
		}
		if !info.IsDir() {
			return Action{}, fmt.Errorf("move: destination %q is not a directory", localDest)
		}
	}
	return Action{Name: MoveActionName, Input: b.input}, nil
}

// MoveHandler implements the move action. A source sharing a volume with
// the destination is renamed directly; otherwise it is stream-copied and
// the original is removed once the copy completes successfully.
type MoveHandler struct {
	CurrentDeviceID string
	// Audit records this handler's dispatches and completions; nil skips
	// auditing entirely.
	Audit AuditLogger
}

// Name implements Handler.
func (h *MoveHandler) Name() string { return MoveActionName }

// Validate implements Handler.
func (h *MoveHandler) Validate(input Input) error {
	in, ok := input.(MoveInput)
	if !ok {
		return fmt.Errorf("move: unexpected input type %T", input)
	}
	return in.Validate()
}

// Dispatch submits a job that performs the move.
func (h *MoveHandler) Dispatch(ctx context.Context, input Input, jobs JobSubmitter) (Output, error) {
	in := input.(MoveInput)
	destDir, _ := in.Destination.AsLocalPath(h.CurrentDeviceID)

	var auditID int64
	if h.Audit != nil {
		id, err := h.Audit.RecordDispatch(ctx, MoveActionName, "destination", in.Destination.Display(), in)
		if err != nil {
			return Output{}, fmt.Errorf("move: recording audit dispatch: %w", err)
		}
		auditID = id
	}

	handler := job.HandlerFunc(func(ctx context.Context, jc *job.Context) (result any, err error) {
		moved := make([]string, 0, len(in.Sources))
		defer func() {
			if h.Audit == nil {
				return
			}
			if auditErr := h.Audit.RecordCompletion(ctx, auditID, moved, err); auditErr != nil {
				jc.AddNonCriticalError(fmt.Sprintf("move: recording audit completion: %v", auditErr))
			}
		}()

		for _, src := range in.Sources {
			if err = jc.CheckInterrupt(); err != nil {
				return nil, err
			}
			localSrc, ok := src.AsLocalPath(h.CurrentDeviceID)
			if !ok {
				jc.AddNonCriticalError(fmt.Sprintf("move: source %s is not local to this device, remote move not yet supported", src.Display()))
				continue
			}

			destPath, resolveErr := resolveDestinationPath(destDir, filepath.Base(localSrc), in.OnConflict)
			if resolveErr != nil {
				jc.AddNonCriticalError(fmt.Sprintf("move: %s: %v", localSrc, resolveErr))
				continue
			}
			if destPath == "" {
				continue
			}

			if moveErr := moveOne(ctx, localSrc, destPath); moveErr != nil {
				jc.AddNonCriticalError(fmt.Sprintf("move: %s: %v", localSrc, moveErr))
				continue
			}
			moved = append(moved, destPath)
			jc.Log(fmt.Sprintf("moved %s -> %s", localSrc, destPath))
		}
		return moved, nil
	})

	id, err := jobs.Submit(job.Submission{Type: "action.move", Handler: handler, Resumable: false})
	if err != nil {
		return Output{}, fmt.Errorf("move: submit job: %w", err)
	}
	return Output{JobID: id}, nil
}

// moveOne relocates source to destination, preferring an atomic rename when
// both paths share a volume and falling back to stream-copy-then-remove
// otherwise.
func moveOne(ctx context.Context, source, destination string) error {
	if volumeinfo.SameVolume(source, filepath.Dir(destination)) {
		if err := os.Rename(source, destination); err == nil {
			return nil
		}
	}
	if err := streamCopy(ctx, source, destination); err != nil {
		return err
	}
	return os.Remove(source)
}
