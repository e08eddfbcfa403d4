package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/kursadbilgin/docdrop/internal/domain"
	"github.com/kursadbilgin/docdrop/internal/service"
	"github.com/spf13/cobra"
)

// errUploadsFailed is returned when the batch finished but at least one item ended in ERROR.
var errUploadsFailed = errors.New("some uploads failed")

type uploadOptions struct {
	token       string
	output      string
	concurrency int
	quiet       bool
}

func newUploadCmd(env *environment) *cobra.Command {
	opts := &uploadOptions{}

	cmd := &cobra.Command{
		Use:   "upload [flags] FILE...",
		Short: "Upload a batch of files",
		Long: `Upload a batch of files concurrently.

Each file is written to object storage under the owner's namespace and then
recorded as a document. Files with unsupported types or above the size limit
are reported and skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, env, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.token, "token", os.Getenv("DOCDROP_TOKEN"), "Bearer token of the uploading owner (env DOCDROP_TOKEN)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", outputTable, "Report format: table, json or yaml")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", 0, "Maximum concurrent uploads (defaults to WORKER_CONCURRENCY)")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Do not print per-file progress")

	return cmd
}

func runUpload(cmd *cobra.Command, env *environment, opts *uploadOptions, paths []string) error {
	if err := validateOutput(opts.output); err != nil {
		return err
	}
	if strings.TrimSpace(opts.token) == "" {
		return fmt.Errorf("%w: --token is required", domain.ErrUnauthenticated)
	}

	cfg, logger, err := env.setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	up, err := env.openUploader(cfg, logger, opts.concurrency)
	if err != nil {
		return err
	}
	if up.close != nil {
		defer up.close() //nolint:errcheck
	}

	ctx := cmd.Context()
	owner, err := up.resolver.Resolve(ctx, opts.token)
	if err != nil {
		return err
	}

	var progress io.Writer
	if !opts.quiet {
		progress = cmd.ErrOrStderr()
	}

	report, err := uploadBatch(ctx, up.runner, up.policy, owner, paths, progress)
	if err != nil {
		return err
	}
	if err := renderReport(cmd.OutOrStdout(), opts.output, report); err != nil {
		return err
	}
	if report.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", errUploadsFailed, report.Failed, report.Total)
	}
	return nil
}

// uploadBatch stages the files, runs them through the runner and reports the final state.
func uploadBatch(
	ctx context.Context,
	runner service.BatchRunner,
	policy domain.IngestionPolicy,
	owner domain.Owner,
	paths []string,
	progress io.Writer,
) (batchReport, error) {
	handles, rejected := localHandles(paths)
	accepted, rejections := policy.Filter(handles)
	for _, r := range rejections {
		rejected = append(rejected, rejectedFile{Name: r.Name, Reason: r.Reason})
	}

	report := batchReport{Owner: owner.ID, Rejected: rejected}
	if len(accepted) == 0 {
		return report, fmt.Errorf("%w: no files to upload", domain.ErrValidation)
	}

	tracker := service.NewTracker()
	if progress != nil {
		unsubscribe := tracker.Subscribe(progressPrinter(progress))
		defer unsubscribe()
	}
	tracker.Add(accepted...)

	if err := runner.RunBatch(ctx, tracker, owner); err != nil {
		return report, err
	}

	report.fill(tracker.Snapshot())
	return report, nil
}

// localHandles stats each path. Paths that cannot be read become rejections.
func localHandles(paths []string) ([]domain.FileHandle, []rejectedFile) {
	handles := make([]domain.FileHandle, 0, len(paths))
	var rejected []rejectedFile

	for _, p := range paths {
		info, err := os.Stat(p)
		switch {
		case err != nil:
			rejected = append(rejected, rejectedFile{Name: p, Reason: err.Error()})
			continue
		case info.IsDir():
			rejected = append(rejected, rejectedFile{Name: p, Reason: "is a directory"})
			continue
		}

		name := filepath.Base(p)
		handles = append(handles, domain.FileHandle{
			Name:        name,
			Size:        info.Size(),
			ContentType: mime.TypeByExtension(filepath.Ext(name)),
			Source:      domain.PathSource(p),
		})
	}
	return handles, rejected
}

// progressPrinter writes one line per visible change of an item. It runs under the tracker's
// notification lock, so lines arrive in mutation order.
func progressPrinter(w io.Writer) func(domain.Batch) {
	type seen struct {
		state    domain.ItemState
		progress int
	}
	last := make(map[int]seen)

	return func(batch domain.Batch) {
		for _, item := range batch.Items {
			cur := seen{state: item.State, progress: item.Progress}
			if prev, ok := last[item.Index]; ok && prev == cur {
				continue
			}
			last[item.Index] = cur

			if item.State == domain.ItemStateIdle {
				continue
			}
			line := fmt.Sprintf("[%d] %s %s %d%%", item.Index, item.Handle.Name, item.State, item.Progress)
			if item.ErrorDetail != "" {
				line += ": " + item.ErrorDetail
			}
			fmt.Fprintln(w, line)
		}
	}
}
