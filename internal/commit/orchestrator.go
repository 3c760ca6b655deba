// internal/commit/orchestrator.go
package commit

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ReignOfTea/protest-dash/internal/content"
	"github.com/ReignOfTea/protest-dash/internal/errors"
	"github.com/ReignOfTea/protest-dash/internal/github"
	"github.com/ReignOfTea/protest-dash/internal/logging"
	"github.com/ReignOfTea/protest-dash/internal/report"
	shared "github.com/ReignOfTea/protest-dash/shared/types"

	"go.uber.org/zap"
)

// Orchestrator is the only code path that advances the branch ref. It
// lands a CommitRequest as exactly one commit: blobs for every file,
// one tree on top of the branch tip, one commit, one conditional ref
// update. Nothing is retried; a lost ref race surfaces as a CONFLICT
// and leaves the branch untouched.
type Orchestrator struct {
	store  shared.RemoteStore
	logger *logging.Logger
}

func NewOrchestrator(store shared.RemoteStore, logger *logging.Logger) *Orchestrator {
	return &Orchestrator{store: store, logger: logger}
}

// CommitBatch validates req, builds the commit and advances the branch
// ref. actorTag is the anonymized identifier written into the commit
// message in place of the human's name.
func (o *Orchestrator) CommitBatch(ctx context.Context, req shared.CommitRequest, actorTag string) (*shared.CommitResult, error) {
	canonical, err := validate(req)
	if err != nil {
		return nil, err
	}

	head, err := o.store.BranchHead(ctx)
	if err != nil {
		return nil, err
	}

	baseTree, err := o.store.CommitTree(ctx, head)
	if err != nil {
		return nil, err
	}

	reportText := o.buildReport(ctx, req.Files, canonical)

	entries, err := o.createBlobs(ctx, req.Files, canonical)
	if err != nil {
		return nil, err
	}

	treeSHA, err := o.store.CreateTree(ctx, baseTree, entries)
	if err != nil {
		return nil, err
	}

	message := composeMessage(req.Message, actorTag, reportText)

	commitSHA, err := o.store.CreateCommit(ctx, message, treeSHA, []string{head})
	if err != nil {
		return nil, err
	}

	if err := o.store.UpdateRef(ctx, commitSHA); err != nil {
		if errors.IsType(err, errors.ErrorTypeConflict) {
			o.logger.WithRequestID(ctx).Warn("ref update lost the race",
				zap.String("head", head),
				zap.String("commit", commitSHA),
			)
			return nil, errors.Conflict("push failed, please retry")
		}
		return nil, err
	}

	paths := make([]string, len(req.Files))
	for i, f := range req.Files {
		paths[i] = f.Path
	}

	o.logger.WithRequestID(ctx).Info("batch commit landed",
		zap.String("commit", commitSHA),
		zap.Strings("files", paths),
		zap.String("actor", actorTag),
	)

	return &shared.CommitResult{SHA: commitSHA, Report: reportText, Files: paths}, nil
}

// validate rejects a malformed request before any network call and
// returns each file's canonical serialization, indexed like req.Files.
func validate(req shared.CommitRequest) ([]string, error) {
	if len(req.Files) == 0 {
		return nil, errors.ValidationError("no files to commit", nil)
	}

	seen := make(map[string]bool, len(req.Files))
	canonical := make([]string, len(req.Files))

	for i, f := range req.Files {
		if f.Path == "" {
			return nil, errors.ValidationError("file path must not be empty", nil)
		}
		if strings.HasPrefix(f.Path, "/") || strings.Contains(f.Path, "..") {
			return nil, errors.ValidationError("file path must be repository-relative", map[string]any{"path": f.Path})
		}
		if seen[f.Path] {
			return nil, errors.ValidationError("duplicate file path in request", map[string]any{"path": f.Path})
		}
		seen[f.Path] = true

		text, err := content.Canonical([]byte(f.Content))
		if err != nil {
			return nil, errors.ValidationError("file content is not valid JSON", map[string]any{"path": f.Path})
		}
		canonical[i] = text
	}

	return canonical, nil
}

// buildReport fetches each file's current remote content and describes
// what the batch changes. The report is an audit nicety: a file that
// cannot be read compares against its default skeleton instead of
// blocking the commit.
func (o *Orchestrator) buildReport(ctx context.Context, files []shared.FileChange, canonical []string) string {
	var lines []string
	for i, f := range files {
		old := content.DefaultFor(f.Path)
		remote, err := o.store.GetFile(ctx, f.Path)
		switch {
		case err == nil:
			old = remote.Content
		case errors.IsType(err, errors.ErrorTypeNotFound):
			// Absent remotely, compare against the skeleton.
		default:
			o.logger.WithRequestID(ctx).Warn("report baseline unavailable, using default skeleton",
				zap.String("path", f.Path),
				zap.Error(err),
			)
		}

		lines = append(lines, report.Generate(old, []byte(canonical[i]), f.Path)...)
	}
	return strings.Join(lines, "\n")
}

// createBlobs uploads every file's content concurrently. Blob writes
// are independent of each other, so this is the one fan-out in an
// otherwise strictly ordered sequence.
func (o *Orchestrator) createBlobs(ctx context.Context, files []shared.FileChange, canonical []string) ([]github.TreeEntry, error) {
	entries := make([]github.TreeEntry, len(files))
	errs := make([]error, len(files))

	var wg sync.WaitGroup
	for i := range files {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sha, err := o.store.CreateBlob(ctx, canonical[i])
			if err != nil {
				errs[i] = fmt.Errorf("create blob for %s: %w", files[i].Path, err)
				return
			}
			entries[i] = github.TreeEntry{Path: files[i].Path, SHA: sha}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func composeMessage(message, actorTag, reportText string) string {
	return message + "\n\nUser: " + actorTag + "\n\n" + reportText
}
