// Package orchestrator sequences the redeploy pipeline: stop the
// service, update and rebuild the checkout, migrate the schema behind
// a validation gate, repair key permissions, and restart. The first
// fatal failure aborts the run; nothing after the aborting stage
// executes.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/mailward/redeploy/internal/assets"
	"github.com/mailward/redeploy/internal/command"
	"github.com/mailward/redeploy/internal/config"
	"github.com/mailward/redeploy/internal/gate"
	"github.com/mailward/redeploy/internal/journal"
	"github.com/mailward/redeploy/internal/keys"
	"github.com/mailward/redeploy/internal/lock"
	"github.com/mailward/redeploy/internal/pipeline"
	"github.com/mailward/redeploy/internal/smoke"
)

// Stage names, in plan order.
const (
	StageStopService   = "stop-service"
	StageFetchCode     = "fetch-code"
	StageResetCode     = "reset-code"
	StageInstallFront  = "install-frontend"
	StageBuildFront    = "build-frontend"
	StageDeployAssets  = "deploy-static-assets"
	StageInstallBack   = "install-backend"
	StageBuildBack     = "build-backend"
	StageRunMigrations = "run-migrations"
	StageValidate      = "validate-migrations"
	StageRepairKeys    = "repair-key-permissions"
	StageRestart       = "restart-service"
	StageSaveProcesses = "save-process-list"
	StageSmokeTest     = "smoke-test"
)

// DeploymentContext carries the per-run facts every stage needs, so no
// stage depends on ambient process state like the current directory.
type DeploymentContext struct {
	Target   string
	Service  string
	RunID    string
	StateDir string
}

// Orchestrator executes deployment runs against one target.
type Orchestrator struct {
	runner   command.Runner
	store    *pipeline.Store
	journal  *journal.Journal // nil disables journaling
	cfg      *config.Deploy
	stateDir string
	progress io.Writer // live progress output; nil = silent
}

// New creates an Orchestrator. The journal may be nil; journal writes
// are best-effort either way.
func New(runner command.Runner, store *pipeline.Store, jnl *journal.Journal, cfg *config.Deploy, stateDir string) *Orchestrator {
	return &Orchestrator{
		runner:   runner,
		store:    store,
		journal:  jnl,
		cfg:      cfg,
		stateDir: stateDir,
	}
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (o *Orchestrator) SetProgress(w io.Writer) {
	o.progress = w
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.progress != nil {
		fmt.Fprintf(o.progress, "  → "+format+"\n", args...)
	}
}

// Plan builds the fixed, immutable stage list for one run. The order
// never varies; optional stages (key repair, process-list save, smoke)
// appear only when configured.
func (o *Orchestrator) Plan() ([]pipeline.Step, error) {
	stepTimeout, err := o.cfg.ParsedStepTimeout()
	if err != nil {
		return nil, err
	}
	d := o.cfg

	cmdStep := func(name string, argv []string, dir string, tolerant bool) pipeline.Step {
		return pipeline.Step{
			Name:              name,
			Kind:              pipeline.KindCommand,
			Argv:              argv,
			Dir:               dir,
			ContinueOnFailure: tolerant,
			Timeout:           stepTimeout,
		}
	}

	steps := []pipeline.Step{
		// The service may already be down; stopping it again is fine.
		cmdStep(StageStopService, d.Supervisor.Stop, "", true),
		cmdStep(StageFetchCode, d.Repo.Fetch, d.Repo.Dir, false),
		cmdStep(StageResetCode, d.Repo.Reset, d.Repo.Dir, false),
		cmdStep(StageInstallFront, d.Frontend.Install, d.Frontend.Dir, false),
		cmdStep(StageBuildFront, d.Frontend.Build, d.Frontend.Dir, false),
		{Name: StageDeployAssets, Kind: pipeline.KindAssets, Timeout: stepTimeout},
		cmdStep(StageInstallBack, d.Backend.Install, d.Backend.Dir, false),
		cmdStep(StageBuildBack, d.Backend.Build, d.Backend.Dir, false),
		// Some migration runners exit nonzero for "no new migrations";
		// the gate right after is what actually decides.
		cmdStep(StageRunMigrations, d.Migrations.Run, d.Migrations.Dir, true),
		{Name: StageValidate, Kind: pipeline.KindGate, Argv: d.Migrations.List, Dir: d.Migrations.Dir, Timeout: stepTimeout},
	}

	if d.Keys.Dir != "" {
		steps = append(steps, pipeline.Step{Name: StageRepairKeys, Kind: pipeline.KindKeys})
	}
	steps = append(steps, cmdStep(StageRestart, d.Supervisor.Restart, "", false))
	if len(d.Supervisor.Save) > 0 {
		steps = append(steps, cmdStep(StageSaveProcesses, d.Supervisor.Save, "", false))
	}
	if d.Smoke.Enabled {
		steps = append(steps, pipeline.Step{Name: StageSmokeTest, Kind: pipeline.KindSmoke})
	}
	return steps, nil
}

// Execute runs the full pipeline under the target lock and returns the
// finalized run. A pipeline abort is reported on the Run, not as an
// error; the error return covers infrastructure failures (lock, plan,
// state store).
func (o *Orchestrator) Execute(ctx context.Context) (*pipeline.Run, error) {
	steps, err := o.Plan()
	if err != nil {
		return nil, fmt.Errorf("build plan: %w", err)
	}
	lockWait, err := o.cfg.ParsedLockWait()
	if err != nil {
		return nil, err
	}

	var run *pipeline.Run
	err = lock.WithTargetLock(o.stateDir, o.cfg.Target, lockWait, func() error {
		var err error
		run, err = o.execute(ctx, steps)
		return err
	})
	return run, err
}

func (o *Orchestrator) execute(ctx context.Context, steps []pipeline.Step) (*pipeline.Run, error) {
	run := pipeline.NewRun(o.cfg.Target, o.cfg.Service)
	if err := o.store.Create(run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	if o.journal != nil {
		_ = o.journal.RecordRunStarted(run.ID, run.Target, run.Service, run.StartedAt)
	}
	o.logf("run %s: %d stages for target %q", run.ID, len(steps), run.Target)

	dctx := DeploymentContext{
		Target:   o.cfg.Target,
		Service:  o.cfg.Service,
		RunID:    run.ID,
		StateDir: o.stateDir,
	}

	for _, step := range steps {
		if ctx.Err() != nil {
			o.abort(run, "cancelled")
			break
		}

		res, abortReason := o.executeStep(ctx, dctx, step)
		if res != nil {
			_ = run.Append(*res)
			_ = o.store.SaveStepOutput(run.ID, res)
			if o.journal != nil {
				code := res.ExitCode
				_ = o.journal.LogEvent(run.ID, step.Name, res.Status, &code, res.Note)
			}
			o.logf("%-24s %s%s", step.Name, res.Status, noteSuffix(res.Note))
		}
		_ = o.store.Update(run)

		// A step killed by cancellation reads as a failure; report it
		// as the cancellation it is.
		if ctx.Err() != nil && abortReason != "" {
			abortReason = "cancelled"
		}
		if abortReason != "" {
			o.abort(run, abortReason)
			break
		}
	}

	run.Complete()
	if err := o.store.Update(run); err != nil {
		return run, fmt.Errorf("persist run: %w", err)
	}
	if o.journal != nil {
		_ = o.journal.RecordRunFinished(run.ID, run.Status, run.AbortReason, run.FinishedAt)
	}

	if run.Aborted {
		o.logf("run %s ABORTED: %s", run.ID, run.AbortReason)
	} else {
		o.logf("run %s SUCCEEDED (%d stages)", run.ID, len(run.Results))
	}
	return run, nil
}

func (o *Orchestrator) abort(run *pipeline.Run, reason string) {
	run.Abort(reason)
	if o.journal != nil {
		_ = o.journal.LogEvent(run.ID, "", "aborted", nil, reason)
	}
}

// executeStep dispatches one step and reports its result plus an abort
// reason ("" to continue).
func (o *Orchestrator) executeStep(ctx context.Context, dctx DeploymentContext, step pipeline.Step) (*pipeline.StepResult, string) {
	switch step.Kind {
	case pipeline.KindCommand:
		return o.runCommand(ctx, dctx, step)
	case pipeline.KindGate:
		return o.runGate(ctx, dctx, step)
	case pipeline.KindAssets:
		return o.runAssets(step)
	case pipeline.KindKeys:
		return o.runKeys(step)
	case pipeline.KindSmoke:
		return o.runSmoke(ctx, step)
	default:
		return nil, fmt.Sprintf("unknown step kind %q for %s", step.Kind, step.Name)
	}
}

func (o *Orchestrator) runCommand(ctx context.Context, dctx DeploymentContext, step pipeline.Step) (*pipeline.StepResult, string) {
	cmdRes, err := o.runWithTimeout(ctx, dctx, step)
	if err != nil {
		// Could not even start the process: fatal regardless of the
		// tolerance flag.
		res := failedResult(step, err.Error())
		return res, fmt.Sprintf("stage %s: %v", step.Name, err)
	}

	res := &pipeline.StepResult{
		Name:       step.Name,
		Kind:       step.Kind,
		Argv:       step.Argv,
		Dir:        step.Dir,
		ExitCode:   cmdRes.ExitCode,
		Stdout:     cmdRes.Stdout,
		Stderr:     cmdRes.Stderr,
		Status:     pipeline.StepSucceeded,
		StartedAt:  cmdRes.StartedAt,
		FinishedAt: cmdRes.FinishedAt,
	}
	if cmdRes.ExitCode == 0 {
		return res, ""
	}

	detail := fmt.Sprintf("exit %d", cmdRes.ExitCode)
	if step.Timeout > 0 && cmdRes.Duration() >= step.Timeout {
		detail = fmt.Sprintf("timeout after %s", step.Timeout)
	}
	if step.ContinueOnFailure {
		res.Status = pipeline.StepTolerated
		res.Note = detail + " tolerated"
		return res, ""
	}
	res.Status = pipeline.StepFailed
	res.Note = detail
	return res, fmt.Sprintf("stage %s failed: %s", step.Name, detail)
}

func (o *Orchestrator) runWithTimeout(ctx context.Context, dctx DeploymentContext, step pipeline.Step) (*command.Result, error) {
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}
	// Every external command sees the run identity, so hooks in build
	// or migration scripts can tag their own logs.
	env := map[string]string{
		"REDEPLOY_TARGET":  dctx.Target,
		"REDEPLOY_SERVICE": dctx.Service,
		"REDEPLOY_RUN_ID":  dctx.RunID,
	}
	for k, v := range step.Env {
		env[k] = v
	}
	return o.runner.Run(ctx, command.Spec{
		Name: step.Name,
		Argv: step.Argv,
		Dir:  step.Dir,
		Env:  env,
	})
}

// runGate lists completed migrations and fails closed: an incompletely
// migrated schema must never receive live traffic.
func (o *Orchestrator) runGate(ctx context.Context, dctx DeploymentContext, step pipeline.Step) (*pipeline.StepResult, string) {
	cmdRes, err := o.runWithTimeout(ctx, dctx, step)
	if err != nil {
		res := failedResult(step, err.Error())
		return res, fmt.Sprintf("stage %s: %v", step.Name, err)
	}

	cfg := gate.Config{
		MinCompleted: *o.cfg.Migrations.MinCompleted,
		Marker:       o.cfg.Migrations.Marker,
		Require:      o.cfg.Migrations.Require,
	}
	outcome := gate.Evaluate(cmdRes.Stdout, cfg)

	res := &pipeline.StepResult{
		Name:       step.Name,
		Kind:       step.Kind,
		Argv:       step.Argv,
		Dir:        step.Dir,
		ExitCode:   cmdRes.ExitCode,
		Stdout:     cmdRes.Stdout,
		Stderr:     cmdRes.Stderr,
		Note:       fmt.Sprintf("observed %d completed migrations (need %d)", outcome.Observed, cfg.MinCompleted),
		StartedAt:  cmdRes.StartedAt,
		FinishedAt: cmdRes.FinishedAt,
	}
	if cmdRes.ExitCode != 0 {
		res.Status = pipeline.StepFailed
		res.Note = fmt.Sprintf("exit %d", cmdRes.ExitCode)
		return res, fmt.Sprintf("stage %s failed with exit %d", step.Name, cmdRes.ExitCode)
	}
	if !outcome.Pass {
		res.Status = pipeline.StepFailed
		return res, outcome.Reason(cfg)
	}
	res.Status = pipeline.StepSucceeded
	return res, ""
}

func (o *Orchestrator) runAssets(step pipeline.Step) (*pipeline.StepResult, string) {
	started := time.Now().UTC()
	sum, err := assets.Sync(o.cfg.Assets.SourceDir, o.cfg.Assets.DestDir)
	res := &pipeline.StepResult{
		Name:       step.Name,
		Kind:       step.Kind,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	}
	if err != nil {
		res.Status = pipeline.StepFailed
		res.ExitCode = 1
		res.Note = err.Error()
		return res, fmt.Sprintf("stage %s: %v", step.Name, err)
	}
	res.Status = pipeline.StepSucceeded
	res.Note = sum.String()
	return res, ""
}

func (o *Orchestrator) runKeys(step pipeline.Step) (*pipeline.StepResult, string) {
	started := time.Now().UTC()
	res := &pipeline.StepResult{
		Name:      step.Name,
		Kind:      step.Kind,
		StartedAt: started,
	}

	spec, err := o.keySpec()
	if err == nil {
		var out keys.Outcome
		out, err = keys.Repair(spec)
		if err == nil {
			res.FinishedAt = time.Now().UTC()
			if out.Warning != "" {
				// Missing optional key material: the deploy proceeds,
				// the warning lands in the run record and journal.
				res.Status = pipeline.StepTolerated
				res.Note = out.Warning
			} else {
				res.Status = pipeline.StepSucceeded
				res.Note = "ownership and modes applied"
			}
			return res, ""
		}
	}

	res.FinishedAt = time.Now().UTC()
	res.Status = pipeline.StepFailed
	res.ExitCode = 1
	res.Note = err.Error()
	return res, fmt.Sprintf("stage %s: %v", step.Name, err)
}

func (o *Orchestrator) keySpec() (keys.Spec, error) {
	dirMode, err := o.cfg.Keys.ParsedDirMode()
	if err != nil {
		return keys.Spec{}, err
	}
	fileMode, err := o.cfg.Keys.ParsedFileMode()
	if err != nil {
		return keys.Spec{}, err
	}
	return keys.Spec{
		Dir:      o.cfg.Keys.Dir,
		KeyFile:  o.cfg.Keys.KeyFile,
		Owner:    o.cfg.Keys.Owner,
		Group:    o.cfg.Keys.Group,
		DirMode:  dirMode,
		FileMode: fileMode,
		Required: o.cfg.Keys.Required,
	}, nil
}

func (o *Orchestrator) runSmoke(ctx context.Context, step pipeline.Step) (*pipeline.StepResult, string) {
	started := time.Now().UTC()
	timeout, err := o.cfg.Smoke.ParsedTimeout()
	if err != nil {
		res := failedResult(step, err.Error())
		return res, fmt.Sprintf("stage %s: %v", step.Name, err)
	}

	probes := make([]smoke.Probe, 0, len(o.cfg.Smoke.Probes))
	for _, p := range o.cfg.Smoke.Probes {
		probes = append(probes, smoke.Probe{Name: p.Name, Host: p.Host, Port: p.Port, Banner: p.Banner})
	}
	results := smoke.Run(ctx, probes, timeout)

	res := &pipeline.StepResult{
		Name:       step.Name,
		Kind:       step.Kind,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Stdout:     smokeReport(results),
	}
	if failed := smoke.Failed(results); failed > 0 {
		res.Status = pipeline.StepFailed
		res.ExitCode = 1
		res.Note = smoke.Summary(results)
		return res, smoke.Summary(results)
	}
	res.Status = pipeline.StepSucceeded
	res.Note = fmt.Sprintf("%d probes passed", len(results))
	return res, ""
}

func smokeReport(results []smoke.Result) string {
	var out string
	for _, r := range results {
		status := "PASS"
		detail := r.Banner
		if !r.OK {
			status = "FAIL"
			if r.Err != nil {
				detail = r.Err.Error()
			}
		}
		out += fmt.Sprintf("[%s] %s %s:%d %s\n", status, r.Probe.Name, r.Probe.Host, r.Probe.Port, detail)
	}
	return out
}

func failedResult(step pipeline.Step, note string) *pipeline.StepResult {
	now := time.Now().UTC()
	return &pipeline.StepResult{
		Name:       step.Name,
		Kind:       step.Kind,
		Argv:       step.Argv,
		Dir:        step.Dir,
		ExitCode:   -1,
		Status:     pipeline.StepFailed,
		Note:       note,
		StartedAt:  now,
		FinishedAt: now,
	}
}

func noteSuffix(note string) string {
	if note == "" {
		return ""
	}
	return " (" + note + ")"
}
