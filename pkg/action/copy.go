package action

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sd-io/sdcore/pkg/action/volumeinfo"
	"github.com/sd-io/sdcore/pkg/job"
	"github.com/sd-io/sdcore/pkg/sdpath"
)

// CopyActionName is the handler name under which CopyHandler is registered.
const CopyActionName = "copy"

// CopyInput is the Input for the copy action: duplicate one or more
// Physical sources into a Physical destination directory.
type CopyInput struct {
	Sources     []sdpath.SdPath
	Destination sdpath.SdPath
	OnConflict  ConflictPolicy
}

// Validate performs the structural checks a Builder can't skip even before
// touching the filesystem.
func (in CopyInput) Validate() error {
	if len(in.Sources) == 0 {
		return fmt.Errorf("copy: no sources specified")
	}
	for i, src := range in.Sources {
		if err := src.EnsureValid(); err != nil {
			return fmt.Errorf("copy: source %d: %w", i, err)
		}
	}
	if err := in.Destination.EnsureValid(); err != nil {
		return fmt.Errorf("copy: destination: %w", err)
	}
	if !in.Destination.IsPhysical() {
		return fmt.Errorf("copy: destination must be a physical path")
	}
	return nil
}

// CopyBuilder is the fluent Builder for the copy action. It performs
// filesystem-aware validation (source existence, destination parent
// existence) against paths local to currentDeviceID; paths rooted on other
// devices are validated structurally only, since their filesystem can't be
// probed from here.
type CopyBuilder struct {
	currentDeviceID string
	input           CopyInput
}

// NewCopyBuilder starts a CopyBuilder for the device running this process.
func NewCopyBuilder(currentDeviceID string) *CopyBuilder {
	return &CopyBuilder{currentDeviceID: currentDeviceID}
}

// Sources appends source paths to copy.
func (b *CopyBuilder) Sources(paths ...sdpath.SdPath) *CopyBuilder {
	b.input.Sources = append(b.input.Sources, paths...)
	return b
}

// Destination sets the destination directory.
func (b *CopyBuilder) Destination(p sdpath.SdPath) *CopyBuilder {
	b.input.Destination = p
	return b
}

// OnConflict sets the name-collision policy.
func (b *CopyBuilder) OnConflict(policy ConflictPolicy) *CopyBuilder {
	b.input.OnConflict = policy
	return b
}

// Build validates the accumulated input and produces an Action, or an error
// describing the first validation failure.
func (b *CopyBuilder) Build() (Action, error) {
	if err := b.input.Validate(); err != nil {
		return Action{}, err
	}
	for i, src := range b.input.Sources {
		if localPath, ok := src.AsLocalPath(b.currentDeviceID); ok {
			if _, err := os.Lstat(localPath); err != nil {
				return Action{}, fmt.Errorf("copy: source %d does not exist: %w", i, err)
			}
		}
	}
	if localDest, ok := b.input.Destination.AsLocalPath(b.currentDeviceID); ok {
		info, err := os.Stat(localDest)
		if err != nil {
			return Action{}, fmt.Errorf("copy: destination does not exist: %w", err)
		}
		if !info.IsDir() {
			return Action{}, fmt.Errorf("copy: destination %q is not a directory", localDest)
		}
	}
	return Action{Name: CopyActionName, Input: b.input}, nil
}

// CopyHandler implements the copy action. Each source is, when its owning
// device is the local device and it shares a volume with the destination,
// hardlinked rather than duplicated byte-for-byte - cheap and safe, since
// the content has already been verified by the content pipeline. Local
// sources on a different volume are stream-copied. Sources on a different
// device are not copied: each is recorded as a non-critical error on the
// job and skipped.
type CopyHandler struct {
	// CurrentDeviceID is the UUID of the device running this process.
	CurrentDeviceID string
	// Audit records this handler's dispatches and completions; nil skips
	// auditing entirely.
	Audit AuditLogger
}

// Name implements Handler.
func (h *CopyHandler) Name() string { return CopyActionName }

// Validate implements Handler, performing handler-specific cross-field
// checks beyond what CopyInput.Validate already covers.
func (h *CopyHandler) Validate(input Input) error {
	in, ok := input.(CopyInput)
	if !ok {
		return fmt.Errorf("copy: unexpected input type %T", input)
	}
	return in.Validate()
}

// Dispatch submits a job that performs the copy, since copying file
// contents is a long-running operation per spec.md §4.5.
func (h *CopyHandler) Dispatch(ctx context.Context, input Input, jobs JobSubmitter) (Output, error) {
	in := input.(CopyInput)
	destDir, _ := in.Destination.AsLocalPath(h.CurrentDeviceID)

	var auditID int64
	if h.Audit != nil {
		id, err := h.Audit.RecordDispatch(ctx, CopyActionName, "destination", in.Destination.Display(), in)
		if err != nil {
			return Output{}, fmt.Errorf("copy: recording audit dispatch: %w", err)
		}
		auditID = id
	}

	handler := job.HandlerFunc(func(ctx context.Context, jc *job.Context) (result any, err error) {
		copied := make([]string, 0, len(in.Sources))
		defer func() {
			if h.Audit == nil {
				return
			}
			if auditErr := h.Audit.RecordCompletion(ctx, auditID, copied, err); auditErr != nil {
				jc.AddNonCriticalError(fmt.Sprintf("copy: recording audit completion: %v", auditErr))
			}
		}()

		for _, src := range in.Sources {
			if err = jc.CheckInterrupt(); err != nil {
				return nil, err
			}
			localSrc, ok := src.AsLocalPath(h.CurrentDeviceID)
			if !ok {
				jc.AddNonCriticalError(fmt.Sprintf("copy: source %s is not local to this device, remote copy not yet supported", src.Display()))
				continue
			}

			destPath, resolveErr := resolveDestinationPath(destDir, filepath.Base(localSrc), in.OnConflict)
			if resolveErr != nil {
				jc.AddNonCriticalError(fmt.Sprintf("copy: %s: %v", localSrc, resolveErr))
				continue
			}
			if destPath == "" {
				continue // ConflictSkip chose to omit this source
			}

			if copyErr := copyOne(ctx, localSrc, destPath); copyErr != nil {
				jc.AddNonCriticalError(fmt.Sprintf("copy: %s: %v", localSrc, copyErr))
				continue
			}
			copied = append(copied, destPath)
			jc.Log(fmt.Sprintf("copied %s -> %s", localSrc, destPath))
		}
		return copied, nil
	})

	id, err := jobs.Submit(job.Submission{Type: "action.copy", Handler: handler, Resumable: false})
	if err != nil {
		return Output{}, fmt.Errorf("copy: submit job: %w", err)
	}
	return Output{JobID: id}, nil
}

// copyOne duplicates source into destination, hardlinking when they share a
// volume and falling back to a streamed byte-for-byte copy otherwise.
func copyOne(ctx context.Context, source, destination string) error {
	if volumeinfo.SameVolume(source, filepath.Dir(destination)) {
		if err := os.Link(source, destination); err == nil {
			return nil
		}
		// Fall through to a stream copy if the link failed for a reason
		// other than a volume mismatch (e.g. the source is a directory, or
		// the filesystem doesn't support hardlinks).
	}
	return streamCopy(ctx, source, destination)
}

// streamCopy performs a plain byte-for-byte copy, checking ctx between
// buffer fills so a long copy can still be canceled promptly.
func streamCopy(ctx context.Context, source, destination string) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	buf := make([]byte, 1<<20)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, readErr := in.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return writeErr
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

// resolveDestinationPath applies a ConflictPolicy to compute the final
// destination path for a source named name under destDir. An empty result
// with a nil error means the caller should skip this source.
func resolveDestinationPath(destDir, name string, policy ConflictPolicy) (string, error) {
	candidate := filepath.Join(destDir, name)
	if _, err := os.Lstat(candidate); os.IsNotExist(err) {
		return candidate, nil
	} else if err != nil {
		return "", err
	}

	switch policy {
	case ConflictSkip:
		return "", nil
	case ConflictOverwrite:
		return candidate, nil
	case ConflictRename:
		ext := filepath.Ext(name)
		base := name[:len(name)-len(ext)]
		for i := 1; ; i++ {
			renamed := filepath.Join(destDir, fmt.Sprintf("%s (%d)%s", base, i, ext))
			if _, err := os.Lstat(renamed); os.IsNotExist(err) {
				return renamed, nil
			}
		}
	default:
		return "", fmt.Errorf("unknown conflict policy %v", policy)
	}
}
