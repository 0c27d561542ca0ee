package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"member-activity/internal/config"
	"member-activity/internal/models"
	"member-activity/internal/report"
)

var (
	// ErrStoreUnavailable aborts a cycle before anything is fetched.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrCycleRunning is returned when another cycle still holds the runner.
	ErrCycleRunning = errors.New("cycle already running")
)

// ChatSource is the guild the cycle reads from.
type ChatSource interface {
	MessageSource
	Members(ctx context.Context) ([]models.Member, error)
	TextChannels(ctx context.Context) ([]models.Channel, error)
}

type ReportSink interface {
	Write(job string, s *report.Summary) error
}

type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// HandleSource maps user ids to external usernames.
type HandleSource interface {
	Handles(ctx context.Context) (map[string]string, error)
}

type RunnerConfig struct {
	PageSize     int
	PageDelay    time.Duration
	BatchSize    int
	ProbeTimeout time.Duration
	Policy       SnapshotPolicy
	Generator    report.Generator
}

type RunnerOption func(*Runner)

func WithReportSink(s ReportSink) RunnerOption { return func(r *Runner) { r.sink = s } }

func WithNotifier(n Notifier) RunnerOption { return func(r *Runner) { r.notifier = n } }

func WithHandles(h HandleSource) RunnerOption { return func(r *Runner) { r.handles = h } }

func WithClock(now func() time.Time) RunnerOption { return func(r *Runner) { r.now = now } }

// Runner executes one scrape-merge-persist cycle at a time.
type Runner struct {
	chat     ChatSource
	store    Store
	cfg      RunnerConfig
	sink     ReportSink
	notifier Notifier
	handles  HandleSource
	now      func() time.Time
	logger   *slog.Logger

	mu sync.Mutex
}

func NewRunner(chat ChatSource, store Store, cfg RunnerConfig, logger *slog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		chat:   chat,
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type CycleResult struct {
	RunID    string
	Job      string
	Members  int
	Records  int
	Scanned  int
	Failures []ChannelFailure
	Save     SaveResult
	Checks   *CheckResult
	Duration time.Duration
}

// RunCycle runs job once. Storage is probed before the chat source is
// touched; a failed probe, or for profile jobs a failed load of stored
// members, returns ErrStoreUnavailable.
func (r *Runner) RunCycle(ctx context.Context, job config.Job) (*CycleResult, error) {
	if !r.mu.TryLock() {
		return nil, ErrCycleRunning
	}
	defer r.mu.Unlock()

	start := r.now()
	res := &CycleResult{RunID: uuid.NewString(), Job: job.Name}
	log := r.logger.With("run_id", res.RunID, "job", job.Name)
	log.Info("cycle started", "profile", job.Profile, "message_limit", job.MessageLimit)

	stored, err := r.probe(ctx)
	if err != nil {
		log.Error("store probe failed, aborting cycle", "error", err)
		r.notify(ctx, log, fmt.Sprintf("❌ %s: storage unreachable, cycle skipped.\n%v", job.Name, err))
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	log.Info("store reachable", "members_stored", stored)

	// Snapshot comparison needs the stored baselines; without them the cycle
	// would overwrite promotion state it never read.
	prior := map[string]models.MemberState{}
	if job.Profile {
		states, err := r.store.LoadMembers(ctx)
		if err != nil {
			log.Error("loading stored members failed, aborting cycle", "error", err)
			r.notify(ctx, log, fmt.Sprintf("❌ %s: could not read stored members, cycle skipped.\n%v", job.Name, err))
			return nil, fmt.Errorf("%w: load members: %w", ErrStoreUnavailable, err)
		}
		for _, st := range states {
			prior[st.UserID] = st
		}
	}

	members, err := r.chat.Members(ctx)
	if err != nil {
		log.Error("fetching members failed", "error", err)
		r.notify(ctx, log, fmt.Sprintf("❌ %s: could not fetch members.\n%v", job.Name, err))
		return nil, fmt.Errorf("fetch members: %w", err)
	}
	res.Members = len(members)
	log.Info("members fetched", "count", len(members))

	categories := r.resolveCategories(ctx, log, job)
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = c.Name
	}

	agg, err := NewAggregator(r.chat, r.cfg.PageSize, r.cfg.PageDelay, log).Aggregate(ctx, members, categories, job.MessageLimit)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	res.Records = len(agg.Records)
	res.Scanned = agg.Scanned
	res.Failures = agg.Failures
	log.Info("activity aggregated", "active_members", len(agg.Records), "messages", agg.Scanned, "failed_channels", len(agg.Failures))

	var updates []models.MemberUpdate
	if job.Profile {
		handles := r.loadHandles(ctx, log)
		updates = NewReconciler(r.cfg.Policy, log).Reconcile(r.now(), agg.Records, prior, handles, names)
	} else {
		updates = countUpdates(agg.Records, names)
	}

	if r.sink != nil {
		summary := r.cfg.Generator.Build(r.now(), members, agg.Records, names)
		if err := r.sink.Write(job.Name, summary); err != nil {
			log.Error("writing reports failed", "error", err)
		} else {
			log.Info("reports written")
		}
	}

	if err := ctx.Err(); err != nil {
		log.Warn("cycle cancelled before persisting", "error", err)
		return nil, err
	}

	scope := ScopeCounts
	if job.Profile {
		scope = ScopeProfile
	}
	res.Save = NewGateway(r.store, r.cfg.BatchSize, log).Save(ctx, updates, scope)

	if job.Profile && ctx.Err() == nil {
		checks, err := r.runChecks(ctx, log)
		if err != nil {
			log.Error("post-write checks failed", "error", err)
		}
		res.Checks = checks
	}

	res.Duration = r.now().Sub(start)
	log.Info("cycle finished",
		"active_members", res.Records,
		"saved", res.Save.Success,
		"errors", res.Save.Errors,
		"duration", res.Duration.String(),
	)
	r.notify(ctx, log, cycleMessage(res))
	return res, nil
}

func (r *Runner) probe(ctx context.Context) (int64, error) {
	if r.cfg.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.ProbeTimeout)
		defer cancel()
	}
	return r.store.Ping(ctx)
}

// resolveCategories expands the uncategorized bucket into every text channel
// not configured elsewhere. If channels cannot be listed only the bucket is
// dropped.
func (r *Runner) resolveCategories(ctx context.Context, log *slog.Logger, job config.Job) []models.CategorySpec {
	cats := append([]models.CategorySpec(nil), job.Categories...)
	if job.Uncategorized == "" {
		return cats
	}

	channels, err := r.chat.TextChannels(ctx)
	if err != nil {
		log.Error("listing channels failed, dropping uncategorized bucket", "category", job.Uncategorized, "error", err)
		return cats
	}

	configured := map[string]bool{}
	for _, c := range job.Categories {
		for _, id := range c.ChannelIDs {
			configured[id] = true
		}
	}
	bucket := models.CategorySpec{Name: job.Uncategorized}
	for _, ch := range channels {
		if !configured[ch.ID] {
			bucket.ChannelIDs = append(bucket.ChannelIDs, ch.ID)
		}
	}
	log.Info("uncategorized channels resolved", "category", bucket.Name, "channels", len(bucket.ChannelIDs))
	return append(cats, bucket)
}

func (r *Runner) loadHandles(ctx context.Context, log *slog.Logger) map[string]string {
	if r.handles == nil {
		return nil
	}
	h, err := r.handles.Handles(ctx)
	if err != nil {
		log.Warn("loading external handles failed", "error", err)
		return nil
	}
	return h
}

func (r *Runner) notify(ctx context.Context, log *slog.Logger, text string) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(ctx, text); err != nil {
		log.Warn("notification failed", "error", err)
	}
}

// countUpdates carries only ids and per-category counts.
func countUpdates(records []*models.ActivityRecord, categories []string) []models.MemberUpdate {
	updates := make([]models.MemberUpdate, 0, len(records))
	for _, rec := range records {
		updates = append(updates, models.MemberUpdate{
			UserID:   rec.UserID,
			Activity: zeroFilled(rec.Activity, categories),
		})
	}
	return updates
}

func cycleMessage(res *CycleResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 %s finished in %s\n", res.Job, res.Duration.Round(time.Second))
	fmt.Fprintf(&b, "Members: %d, active: %d, messages: %d\n", res.Members, res.Records, res.Scanned)
	fmt.Fprintf(&b, "Saved: %d, errors: %d\n", res.Save.Success, res.Save.Errors)
	if len(res.Failures) > 0 {
		fmt.Fprintf(&b, "⚠️ %d channel(s) skipped\n", len(res.Failures))
	}
	if res.Checks != nil && len(res.Checks.Missing) > 0 {
		fmt.Fprintf(&b, "⚠️ %d member(s) missing snapshots\n", len(res.Checks.Missing))
	}
	return b.String()
}
