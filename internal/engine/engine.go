package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/ferndale/taskmill/internal/model"
	"github.com/ferndale/taskmill/internal/schedule"
	ws "github.com/ferndale/taskmill/internal/websocket"
)

// TemplateSource lists the templates whose rules should be evaluated.
type TemplateSource interface {
	ListActive(ctx context.Context, now time.Time) ([]model.TaskTemplate, error)
}

// Ledger is the firing ledger: the atomic claim on (rule, due instant).
type Ledger interface {
	Claim(ctx context.Context, ruleID int64, dueInstant time.Time) (claimID int64, claimed bool, err error)
	Exists(ctx context.Context, ruleID int64, dueInstant time.Time) (bool, error)
}

// Roster resolves group membership for recipient resolution.
type Roster interface {
	ListAssignableMemberIDs(ctx context.Context, groupID int64) ([]int64, error)
	IsAssignableMember(ctx context.Context, groupID, userID int64) (bool, error)
}

// TaskWriter creates materialized task rows.
type TaskWriter interface {
	Create(ctx context.Context, t *model.Task, tagNames []string) (int64, error)
	SoftDeleteIncomplete(ctx context.Context, ids []int64) ([]int64, error)
}

// Recorder appends to the execution history.
type Recorder interface {
	Append(ctx context.Context, e *model.Execution) error
	LastWithTasks(ctx context.Context, templateID int64) (*model.Execution, error)
}

// Config tunes the scheduler driver. Zero values take defaults.
type Config struct {
	Interval      time.Duration // tick cadence; also the evaluation window width
	MaxConcurrent int           // parallel template evaluations per tick
	CreateTimeout time.Duration // budget for one recipient's task creation
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	if c.CreateTimeout <= 0 {
		c.CreateTimeout = 10 * time.Second
	}
	return c
}

// Driver runs the tick loop: list active templates, evaluate their rules
// against the tick window, and fire due rules through claim → resolve →
// materialize → record. Ticks are safe to overlap across processes; the
// ledger claim is the only synchronization point.
type Driver struct {
	mu        sync.RWMutex
	cfg       Config
	templates TemplateSource
	ledger    Ledger
	roster    Roster
	tasks     TaskWriter
	recorder  Recorder
	hub       *ws.Hub
	logger    *slog.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewDriver(cfg Config, templates TemplateSource, ledger Ledger, roster Roster, tasks TaskWriter, recorder Recorder, hub *ws.Hub, logger *slog.Logger) *Driver {
	return &Driver{
		cfg:       cfg.withDefaults(),
		templates: templates,
		ledger:    ledger,
		roster:    roster,
		tasks:     tasks,
		recorder:  recorder,
		hub:       hub,
		logger:    logger,
	}
}

// Start begins the tick loop.
func (d *Driver) Start(ctx context.Context) {
	d.mu.Lock()
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	d.mu.Unlock()

	go func() {
		defer close(d.done)
		ticker := time.NewTicker(d.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := d.RunTick(ctx, time.Now().UTC()); err != nil {
					d.logger.Error("tick", "error", err)
				}
			}
		}
	}()
}

// Stop gracefully stops the driver.
func (d *Driver) Stop() {
	d.mu.RLock()
	cancel := d.cancel
	done := d.done
	d.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// RunTick evaluates one window ending at now. The window is one interval
// wide and inclusive on both ends, so overlapping ticks re-observe the same
// due instants and rely on the ledger to dedupe. Exported so tests can drive
// the engine with a synthetic clock.
func (d *Driver) RunTick(ctx context.Context, now time.Time) error {
	// Finish materially before the next tick; templates left unevaluated at
	// the deadline are picked up by the next window's overlap or their next
	// due instant.
	deadline := d.cfg.Interval - 5*time.Second
	if deadline <= 0 {
		deadline = d.cfg.Interval
	}
	tickCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	windowStart := now.Add(-d.cfg.Interval)

	templates, err := d.templates.ListActive(tickCtx, now)
	if err != nil {
		return fmt.Errorf("list active templates: %w", err)
	}

	var (
		errMu   sync.Mutex
		tickErr error
	)
	g, gctx := errgroup.WithContext(tickCtx)
	g.SetLimit(d.cfg.MaxConcurrent)

	for _, tpl := range templates {
		if gctx.Err() != nil {
			d.logger.Warn("tick deadline hit, deferring template", "template_id", tpl.ID)
			continue
		}
		g.Go(func() error {
			if err := d.processTemplate(gctx, tpl, windowStart, now); err != nil {
				errMu.Lock()
				tickErr = multierr.Append(tickErr, fmt.Errorf("template %d: %w", tpl.ID, err))
				errMu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	return tickErr
}

func (d *Driver) processTemplate(ctx context.Context, tpl model.TaskTemplate, windowStart, windowEnd time.Time) error {
	loc, err := time.LoadLocation(tpl.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", tpl.Timezone, err)
	}

	var errs error
	for _, mrule := range tpl.Rules {
		rule, err := schedule.FromModel(mrule)
		if err != nil {
			// Rules are validated on write; a bad stored rule is surfaced
			// but never blocks the template's other rules.
			errs = multierr.Append(errs, fmt.Errorf("rule %d: %w", mrule.ID, err))
			continue
		}

		due, ok := schedule.DueWithin(rule, loc, windowStart, windowEnd)
		if !ok {
			continue
		}
		if err := d.fire(ctx, &tpl, mrule.ID, due, loc); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("rule %d: %w", mrule.ID, err))
		}
	}
	return errs
}

// fire claims the due instant and, if this worker wins the claim, runs the
// materialization pipeline for it.
func (d *Driver) fire(ctx context.Context, tpl *model.TaskTemplate, ruleID int64, due time.Time, loc *time.Location) error {
	dueInstant := due.UTC().Truncate(time.Minute)

	claimID, claimed, err := d.ledger.Claim(ctx, ruleID, dueInstant)
	if err != nil {
		// The claim write may have committed before the error reached us.
		// Re-check committed state: if a claim exists we must not fire
		// (a duplicate task is worse than a late one); if it doesn't, the
		// instant stays unclaimed and the next tick retries.
		exists, checkErr := d.recheckClaim(ctx, ruleID, dueInstant)
		if checkErr != nil {
			return fmt.Errorf("claim unresolved: %w", multierr.Append(err, checkErr))
		}
		if exists {
			d.logger.Debug("claim already committed, skipping", "rule_id", ruleID, "due", dueInstant)
			return nil
		}
		return fmt.Errorf("claim: %w", err)
	}
	if !claimed {
		// Another worker owns this instant.
		return nil
	}

	d.logger.Info("firing due rule",
		"template_id", tpl.ID, "rule_id", ruleID, "due", dueInstant)

	return d.execute(ctx, tpl, ruleID, claimID, dueInstant, due.In(loc))
}

func (d *Driver) recheckClaim(ctx context.Context, ruleID int64, dueInstant time.Time) (bool, error) {
	var exists bool
	backoff := retry.WithMaxRetries(3, retry.NewExponential(100*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		exists, err = d.ledger.Exists(ctx, ruleID, dueInstant)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	return exists, err
}

func (d *Driver) record(ctx context.Context, exec *model.Execution) error {
	if err := d.recorder.Append(ctx, exec); err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	d.broadcast(ws.NewMessage("execution", "recorded", exec.ID, map[string]any{
		"template_id": exec.TemplateID,
		"outcome":     string(exec.Outcome),
	}))
	return nil
}

func (d *Driver) broadcast(msg ws.Message) {
	if d.hub != nil {
		d.hub.Broadcast(msg)
	}
}
