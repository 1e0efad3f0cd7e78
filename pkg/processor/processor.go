// Package processor runs source records through normalization, classification,
// matching and merging against the venue registry
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/zkinzler/dfw-openings/pkg/classifier"
	appctx "github.com/zkinzler/dfw-openings/pkg/context"
	"github.com/zkinzler/dfw-openings/pkg/events"
	"github.com/zkinzler/dfw-openings/pkg/fingerprint"
	"github.com/zkinzler/dfw-openings/pkg/kafka"
	"github.com/zkinzler/dfw-openings/pkg/locking"
	"github.com/zkinzler/dfw-openings/pkg/matching"
	"github.com/zkinzler/dfw-openings/pkg/merging"
	"github.com/zkinzler/dfw-openings/pkg/metrics"
	"github.com/zkinzler/dfw-openings/pkg/models"
	"github.com/zkinzler/dfw-openings/pkg/normalizers"
	"github.com/zkinzler/dfw-openings/pkg/quarantine"
	"github.com/zkinzler/dfw-openings/pkg/registry"
	"github.com/zkinzler/dfw-openings/pkg/rules"
	"github.com/zkinzler/dfw-openings/pkg/scoring"
	"github.com/zkinzler/dfw-openings/pkg/tracing"
)

// maxMergeAttempts bounds retries of a merge that lost a race on the venue version
const maxMergeAttempts = 3

// RunStore persists the log of each batch
type RunStore interface {
	Start(ctx context.Context, trigger string) (*models.IngestionRun, error)
	Finish(ctx context.Context, runID string, summary *models.BatchSummary, sourceCounts map[models.SourceSystem]int, runErr error) error
}

// Processor handles record processing
type Processor struct {
	logger     ectologger.Logger
	store      registry.Store
	classifier *classifier.Classifier
	keys       normalizers.KeyChains
	matcher    *matching.Matcher
	engine     *merging.Engine
	scorer     *scoring.Scorer
	locker     locking.Locker
	quarantine quarantine.Quarantine
	emitter    events.Emitter
	runs       RunStore
	matchCfg   matching.Config
	now        func() time.Time
}

// Option configures a Processor
type Option func(*Processor)

// WithLocker replaces the in-process key lock, e.g. with a Redis locker shared by replicas
func WithLocker(l locking.Locker) Option {
	return func(p *Processor) { p.locker = l }
}

func WithQuarantine(q quarantine.Quarantine) Option {
	return func(p *Processor) { p.quarantine = q }
}

func WithEmitter(e events.Emitter) Option {
	return func(p *Processor) { p.emitter = e }
}

// WithRunStore records every batch as an ingestion run
func WithRunStore(r RunStore) Option {
	return func(p *Processor) { p.runs = r }
}

func WithMatchingConfig(cfg matching.Config) Option {
	return func(p *Processor) { p.matchCfg = cfg }
}

// WithClock sets the reference time used for scoring
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// New creates a processor over store using the given rules
func New(logger ectologger.Logger, store registry.Store, r *rules.Rules, opts ...Option) (*Processor, error) {
	if r == nil {
		r = rules.Default()
	}
	c, err := classifier.New(r)
	if err != nil {
		return nil, fmt.Errorf("failed to build classifier: %w", err)
	}

	p := &Processor{
		logger:     logger,
		store:      store,
		classifier: c,
		keys:       r.KeyNormalizers,
		scorer:     scoring.New(r),
		locker:     locking.NewLocal(),
		quarantine: quarantine.NewMemory(quarantine.DefaultMaxLen),
		emitter:    events.Noop{},
		matchCfg:   matching.DefaultConfig(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}

	p.matcher = matching.NewMatcher(logger, p.matchCfg)
	p.engine = merging.NewEngine(logger, p.scorer, merging.WithClock(p.now))
	return p, nil
}

// Store returns the registry the processor writes to
func (p *Processor) Store() registry.Store {
	return p.store
}

// Quarantine returns where rejected and failed records are kept
func (p *Processor) Quarantine() quarantine.Quarantine {
	return p.quarantine
}

// RulesVersion identifies the keyword and scoring rules in effect
func (p *Processor) RulesVersion() string {
	return p.classifier.Version()
}

// CityKey normalizes a city the same way stored venues were keyed
func (p *Processor) CityKey(city string) string {
	return p.keys.CityKey(city)
}

// Normalize derives the matching keys, classification and fingerprint of rec
func (p *Processor) Normalize(rec models.SourceRecord) *models.NormalizedRecord {
	n := normalizers.NormalizeRecordWith(rec, p.keys)
	n.Category = p.classifier.CategoryForRecord(rec)
	n.Stage = p.classifier.Stage(rec.Source, rec.EventType)
	n.Fingerprint = fingerprint.ForRecord(rec)
	return &n
}

// Process merges one record into the registry. Invalid records are quarantined and
// return an error wrapping ErrMalformedRecord; registry failures wrap
// ErrRegistryUnavailable and leave the registry unchanged.
func (p *Processor) Process(ctx context.Context, rec models.SourceRecord) (*models.ProcessResult, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.Process",
		tracing.AttrSource.String(string(rec.Source)),
		tracing.AttrEventType.String(string(rec.EventType)),
	)
	defer span.End()

	start := time.Now()
	log := p.logger.WithContext(ctx).WithFields(appctx.LogFields(ctx)).WithFields(map[string]any{
		"source":           rec.Source,
		"event_type":       rec.EventType,
		"source_record_id": rec.SourceRecordID,
	})

	if err := rec.Validate(); err != nil {
		log.WithError(err).Warn("Rejected record")
		p.quarantineRecord(ctx, quarantine.StageValidate, err, rec)
		metrics.RecordProcessed(string(rec.Source), "rejected", time.Since(start).Seconds())
		return nil, err
	}

	n := p.Normalize(rec)

	outcome, merged, err := p.matchAndMerge(ctx, n)
	if err != nil {
		log.WithError(err).Error("Failed to process record")
		p.quarantineRecord(ctx, quarantine.StageMerge, err, rec)
		metrics.RecordProcessed(string(rec.Source), "failed", time.Since(start).Seconds())
		tracing.RecordError(span, err)
		return nil, err
	}

	result := &models.ProcessResult{
		Venue:        merged.Venue,
		Created:      merged.Created,
		LinkAppended: merged.LinkAppended,
		Duplicate:    merged.Duplicate,
		MatchReason:  outcome.Reason,
		Ambiguous:    outcome.Ambiguous,
		CandidateIDs: outcome.CandidateIDs,
		HotLead:      merged.Created && p.isHotLead(merged.Venue),
	}
	if ambErr := outcome.Err(); ambErr != nil {
		result.Warning = ambErr.Error()
		log.WithError(ambErr).WithField("venue_id", merged.Venue.ID).Warn("Ambiguous match, started a new venue")
	}

	span.SetAttributes(
		tracing.AttrVenueID.String(merged.Venue.ID),
		tracing.AttrMatchReason.String(string(outcome.Reason)),
	)
	metrics.RecordMatchDecision(string(outcome.Reason))
	metrics.RecordProcessed(string(rec.Source), outcomeLabel(result), time.Since(start).Seconds())
	if result.HotLead {
		metrics.RecordHotLead(string(merged.Venue.Category))
		log.WithFields(map[string]any{
			"venue_id": merged.Venue.ID,
			"score":    merged.Venue.PriorityScore,
		}).Info("Hot lead")
	}

	p.emit(ctx, p.eventsFor(rec.Source, merged, result.HotLead)...)

	return result, nil
}

// matchAndMerge holds the record's key buckets and runs match then merge in one
// transaction. A venue that changed underneath the transaction is re-read and the
// merge retried, up to maxMergeAttempts.
func (p *Processor) matchAndMerge(ctx context.Context, n *models.NormalizedRecord) (*matching.MatchOutcome, *merging.MergeResult, error) {
	unlock, err := p.locker.Lock(ctx, lockKeys(n.CityKey, n.NameKey, n.AddressKey)...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock record keys: %w", err)
	}
	defer unlock()

	var (
		outcome *matching.MatchOutcome
		merged  *merging.MergeResult
	)
	for attempt := 1; ; attempt++ {
		err = p.store.WithinTx(ctx, func(ctx context.Context, tx registry.Store) error {
			var err error
			outcome, err = p.matcher.FindMatch(ctx, n, tx)
			if err != nil {
				return err
			}
			merged, err = p.engine.Merge(ctx, n, outcome.Venue, tx)
			return err
		})
		if err == nil {
			return outcome, merged, nil
		}
		if !errors.Is(err, models.ErrVersionConflict) || attempt == maxMergeAttempts {
			return nil, nil, err
		}
		p.logger.WithContext(ctx).WithError(err).WithField("attempt", attempt).Warn("Venue changed during merge, retrying")
	}
}

// isHotLead reports whether a venue is worth an immediate alert
func (p *Processor) isHotLead(v *models.Venue) bool {
	return v.Category != models.CategoryExcluded && p.scorer.IsHotLead(v.PriorityScore)
}

func (p *Processor) eventsFor(source models.SourceSystem, merged *merging.MergeResult, hotLead bool) []*kafka.VenueEvent {
	switch {
	case merged.Duplicate:
		return nil
	case merged.Created:
		out := []*kafka.VenueEvent{events.NewVenueEvent(events.EventTypeVenueCreated, merged.Venue, source, nil)}
		if hotLead {
			out = append(out, events.NewHotLeadEvent(merged.Venue, source, p.scorer.Breakdown(merged.Venue, p.now())))
		}
		return out
	default:
		return []*kafka.VenueEvent{events.NewVenueEvent(events.EventTypeVenueUpdated, merged.Venue, source, merged.Changes)}
	}
}

// emit publishes events for a committed change. Failures are logged; the change stands.
func (p *Processor) emit(ctx context.Context, evts ...*kafka.VenueEvent) {
	if len(evts) == 0 {
		return
	}
	if err := p.emitter.Emit(ctx, evts...); err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Failed to emit venue events")
	}
}

func (p *Processor) quarantineRecord(ctx context.Context, stage string, reason error, rec models.SourceRecord) {
	entry := quarantine.NewEntry(stage, reason, rec)
	entry.RunID = appctx.GetRunID(ctx)
	entry.TraceID = tracing.GetTraceID(ctx)
	if err := p.quarantine.Add(ctx, entry); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to quarantine record")
		return
	}
	metrics.RecordQuarantined(stage)
}

func outcomeLabel(res *models.ProcessResult) string {
	switch {
	case res.Duplicate:
		return "duplicate"
	case res.Created:
		return "created"
	default:
		return "updated"
	}
}

// lockKeys names the key buckets a record can match through
func lockKeys(cityKey, nameKey, addressKey string) []string {
	var keys []string
	if nameKey != "" {
		keys = append(keys, cityKey+"|name|"+nameKey)
	}
	if addressKey != "" {
		keys = append(keys, cityKey+"|address|"+addressKey)
	}
	return locking.Keys(keys...)
}

// isRejection reports whether err came from record validation
func isRejection(err error) bool {
	return errors.Is(err, models.ErrMalformedRecord)
}
