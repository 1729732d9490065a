package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/semmidev/backdrop/internal/domain"
)

type Status int

const (
	StatusOK Status = iota
	// StatusDegraded means the backup landed remotely but the sweep or the
	// local prune did not finish.
	StatusDegraded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return domain.EventSuccess
	case StatusDegraded:
		return domain.EventDegraded
	default:
		return domain.EventFailure
	}
}

type Result struct {
	Status   Status
	Artifact string
	Uploaded domain.RemoteEntry
	Sweep    *SweepReport
	Warnings []error
	Err      error
	Duration time.Duration
}

// ExitCode is the process exit code for the run. Only fatal failures are
// non-zero.
func (r Result) ExitCode() int {
	if r.Status == StatusFailed {
		return 1
	}
	return 0
}

func (r *Result) warn(err error) {
	r.Warnings = append(r.Warnings, err)
	if r.Status == StatusOK {
		r.Status = StatusDegraded
	}
}

// Orchestrator runs one backup: create, upload, sweep, prune local.
type Orchestrator struct {
	producerName string
	producer     domain.Producer
	store        domain.RemoteStore
	sweeper      *Sweeper
	policy       domain.RetentionPolicy
	uploadDir    string
	notifier     domain.Notifier
	logger       Logger
	reporter     Reporter
}

func NewOrchestrator(
	producerName string,
	producer domain.Producer,
	store domain.RemoteStore,
	sweeper *Sweeper,
	policy domain.RetentionPolicy,
	uploadDir string,
	notifier domain.Notifier,
	logger Logger,
	reporter Reporter,
) *Orchestrator {
	return &Orchestrator{
		producerName: producerName,
		producer:     producer,
		store:        store,
		sweeper:      sweeper,
		policy:       policy,
		uploadDir:    uploadDir,
		notifier:     notifier,
		logger:       logger,
		reporter:     reporter,
	}
}

// Execute adapts Run to the scheduler's job signature.
func (o *Orchestrator) Execute(ctx context.Context) error {
	res := o.Run(ctx)
	if res.Status == StatusFailed {
		return res.Err
	}
	return nil
}

// Run executes the pipeline once. The upload settles before the sweep
// starts and the local prune always comes last, so a failed upload never
// loses the only local copy.
func (o *Orchestrator) Run(ctx context.Context) Result {
	start := time.Now()
	res := o.run(ctx)
	res.Duration = time.Since(start)

	o.notify(ctx, res)
	return res
}

func (o *Orchestrator) run(ctx context.Context) Result {
	var res Result

	o.logger.Infof("[%s] Creating backup...", o.producerName)
	artifact, err := o.producer.Create(ctx)
	if err != nil {
		return o.fail(res, fmt.Errorf("create backup: %w", wrapKind(domain.ErrCreation, "create", o.producerName, err)))
	}
	res.Artifact = artifact
	o.logger.Infof("[%s] Backup created: %s", o.producerName, artifact)

	name := filepath.Base(artifact)
	dest := domain.JoinRemote(o.uploadDir, name)

	o.logger.Infof("[%s] Uploading to %s: %s", o.producerName, o.store.Name(), dest)
	uploaded, err := o.store.Upload(ctx, artifact, dest)
	if err != nil {
		return o.fail(res, fmt.Errorf("upload to %s: %w", o.store.Name(), wrapKind(domain.ErrUpload, "upload", dest, err)))
	}
	res.Uploaded = uploaded
	o.reporter.Success("upload succeeded: %s", uploaded.Name)

	if o.policy.AutoDelete {
		report, err := o.sweeper.Run(ctx, o.uploadDir, o.policy)
		if err != nil {
			o.logger.Errorf("[%s] Retention sweep skipped: %v", o.producerName, err)
			o.reporter.Failure("could not list %s, no expired files deleted: %v", o.uploadDir, err)
			res.warn(err)
		} else {
			res.Sweep = report
			for _, f := range report.Failed {
				res.Warnings = append(res.Warnings, f.Err)
			}
		}
	}

	o.logger.Infof("[%s] Pruning local backups...", o.producerName)
	if err := o.producer.PruneLocal(ctx); err != nil {
		err = fmt.Errorf("prune local backups: %w", err)
		o.logger.Errorf("[%s] %v", o.producerName, err)
		o.reporter.Failure("%v", err)
		res.warn(err)
	}

	o.logger.Infof("[%s] Backup run finished: %s", o.producerName, res.Status)
	return res
}

func (o *Orchestrator) fail(res Result, err error) Result {
	res.Status = StatusFailed
	res.Err = err
	o.logger.Errorf("[%s] Backup run failed: %v", o.producerName, err)
	o.reporter.Failure("%v", err)
	return res
}

func (o *Orchestrator) notify(ctx context.Context, res Result) {
	if o.notifier == nil {
		return
	}

	event := domain.Event{
		Status:   res.Status.String(),
		Producer: o.producerName,
		Remote:   o.store.Name(),
		Duration: res.Duration.Round(time.Millisecond).String(),
	}
	if res.Artifact != "" {
		event.Artifact = filepath.Base(res.Artifact)
	}
	if res.Sweep != nil {
		for _, e := range res.Sweep.Deleted {
			event.Deleted = append(event.Deleted, e.Name)
		}
		event.FailedDeletes = len(res.Sweep.Failed)
	}
	for _, w := range res.Warnings {
		event.Warnings = append(event.Warnings, w.Error())
	}
	if res.Err != nil {
		event.Error = res.Err.Error()
	}

	// Notification problems never change the outcome of the run.
	if err := o.notifier.Notify(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
		o.logger.Warnf("[%s] Failed to send notification: %v", o.producerName, err)
	}
}
