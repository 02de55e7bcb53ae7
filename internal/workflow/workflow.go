package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply/internal/browser"
	"github.com/xkilldash9x/autoapply/internal/config"
	"github.com/xkilldash9x/autoapply/internal/humanoid"
	"github.com/xkilldash9x/autoapply/internal/metrics"
)

// hydrateDelay lets client-side rendering settle after the load event.
const hydrateDelay = 3 * time.Second

// PacingRecorder receives the time each attempt ended.
type PacingRecorder interface {
	Record(t time.Time)
}

// ApplicationCounter counts submitted applications and returns the new total.
type ApplicationCounter interface {
	RecordApplication() int
}

// Workflow drives one job application through the site's Easy Apply flow.
type Workflow struct {
	site      config.SiteConfig
	timeouts  config.TimeoutsConfig
	humanoid  *humanoid.Humanoid
	resolver  *browser.Resolver
	artifacts *browser.Artifacts
	pacing    PacingRecorder
	counter   ApplicationCounter
	clock     clockwork.Clock
	logger    *zap.Logger
}

// Deps groups a Workflow's collaborators.
type Deps struct {
	Humanoid  *humanoid.Humanoid
	Resolver  *browser.Resolver
	Artifacts *browser.Artifacts
	Pacing    PacingRecorder
	Counter   ApplicationCounter
	Clock     clockwork.Clock
	Logger    *zap.Logger
}

// New creates a Workflow.
func New(cfg *config.Config, deps Deps) *Workflow {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Workflow{
		site:      cfg.Site,
		timeouts:  cfg.Timeouts,
		humanoid:  deps.Humanoid,
		resolver:  deps.Resolver,
		artifacts: deps.Artifacts,
		pacing:    deps.Pacing,
		counter:   deps.Counter,
		clock:     clock,
		logger:    deps.Logger.Named("workflow"),
	}
}

// Run applies to jobURL on page. It never returns an error: any failing step
// ends the run with a failed Result. No step is retried. The pacing clock is
// advanced whether or not the run succeeds; the application counter only on
// success.
func (w *Workflow) Run(ctx context.Context, page browser.Page, jobURL string) Result {
	log := w.logger.With(zap.String("job_url", jobURL))
	log.Info("Applying to job.")
	start := w.clock.Now()

	step, err := w.execute(ctx, page, jobURL, log)

	end := w.clock.Now()
	w.pacing.Record(end)
	metrics.ApplicationDuration.Observe(end.Sub(start).Seconds())

	if err != nil {
		shot := browser.ScreenshotOf(err)
		if shot == "" {
			shot = w.artifacts.Capture(ctx, page, fmt.Sprintf("error_%d", end.Unix()))
		}
		log.Error("Application failed.", zap.String("step", string(step)), zap.Error(err), zap.String("screenshot", shot))
		metrics.ApplicationsTotal.WithLabelValues(string(StatusFailed)).Inc()
		metrics.WorkflowStepFailures.WithLabelValues(string(step)).Inc()
		return Result{
			Status:     StatusFailed,
			JobURL:     jobURL,
			Error:      err.Error(),
			FailedStep: step,
			Timestamp:  end,
			Screenshot: shot,
		}
	}

	n := w.counter.RecordApplication()
	log.Info("Application submitted.", zap.Int("application_number", n))
	metrics.ApplicationsTotal.WithLabelValues(string(StatusSuccess)).Inc()
	return Result{
		Status:            StatusSuccess,
		JobURL:            jobURL,
		ApplicationNumber: &n,
		Timestamp:         end,
	}
}

// execute runs the steps in order and returns the step that failed.
func (w *Workflow) execute(ctx context.Context, page browser.Page, jobURL string, log *zap.Logger) (Step, error) {
	var easyApply *browser.Element

	steps := []struct {
		step Step
		run  func() error
	}{
		{StepNavigateToJob, func() error {
			navCtx, cancel := context.WithTimeout(ctx, w.timeouts.Navigation)
			defer cancel()
			if err := page.Navigate(navCtx, jobURL); err != nil {
				return err
			}
			return w.humanoid.Pause(ctx, humanoid.Seconds(3, 6))
		}},
		{StepSimulateReading, func() error {
			if err := w.humanoid.Skim(ctx, page); err != nil {
				return err
			}
			return w.humanoid.Pause(ctx, humanoid.Seconds(2, 4))
		}},
		{StepLocateEasyApply, func() error {
			loadCtx, cancel := context.WithTimeout(ctx, w.timeouts.PageLoad)
			err := page.WaitLoaded(loadCtx)
			cancel()
			if err != nil {
				return err
			}
			if err := w.humanoid.Pause(ctx, humanoid.Fixed(hydrateDelay)); err != nil {
				return err
			}
			el, err := w.resolver.Resolve(ctx, page, "Easy Apply button",
				browser.LocatorsFromConfig(w.site.EasyApplyLocators),
				w.timeouts.EasyApplyVisible, w.timeouts.EasyApplyEnabled)
			if err != nil {
				return err
			}
			easyApply = el
			return nil
		}},
		{StepClickEasyApply, func() error {
			if err := w.humanoid.Pause(ctx, humanoid.Seconds(0.5, 1.5)); err != nil {
				return err
			}
			clickCtx, cancel := context.WithTimeout(ctx, w.timeouts.Click)
			err := page.Click(clickCtx, easyApply.Locator)
			cancel()
			if err != nil {
				return err
			}
			return w.humanoid.Pause(ctx, humanoid.Seconds(3, 5))
		}},
		{StepReviewForm, func() error {
			if err := w.humanoid.Skim(ctx, page); err != nil {
				return err
			}
			return w.humanoid.Pause(ctx, humanoid.Seconds(1.5, 3))
		}},
		{StepClickNext, func() error {
			return w.clickButton(ctx, page, browser.LocatorFromConfig(w.site.NextButton),
				w.timeouts.NextButton, humanoid.Seconds(0.5, 1))
		}},
		{StepClickSubmit, func() error {
			return w.clickButton(ctx, page, browser.LocatorFromConfig(w.site.SubmitButton),
				w.timeouts.SubmitButton, humanoid.Seconds(0.8, 1.5))
		}},
	}

	for _, s := range steps {
		log.Info("Workflow step.", zap.String("step", string(s.step)))
		if err := s.run(); err != nil {
			return s.step, err
		}
	}
	return StepRecorded, nil
}

// clickButton waits for a form button, hesitates, clicks, and lets the next
// view render.
func (w *Workflow) clickButton(ctx context.Context, page browser.Page, loc browser.Locator, visible time.Duration, hesitate humanoid.Range) error {
	vctx, cancel := context.WithTimeout(ctx, visible)
	err := page.WaitVisible(vctx, loc)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %w", browser.ErrElementNotFound, loc, err)
	}
	if err := w.humanoid.Pause(ctx, hesitate); err != nil {
		return err
	}
	if err := page.Click(ctx, loc); err != nil {
		return err
	}
	return w.humanoid.Pause(ctx, humanoid.Seconds(2, 3))
}
