package processor

import (
	"context"

	appctx "github.com/zkinzler/dfw-openings/pkg/context"
	"github.com/zkinzler/dfw-openings/pkg/metrics"
	"github.com/zkinzler/dfw-openings/pkg/models"
	"github.com/zkinzler/dfw-openings/pkg/tracing"
)

// Batch triggers
const (
	TriggerAPI   = "api"
	TriggerKafka = "kafka"
)

// ProcessBatch processes records in order. A failing record is counted and quarantined
// without stopping the batch; only cancellation of ctx ends it early.
func (p *Processor) ProcessBatch(ctx context.Context, trigger string, recs []models.SourceRecord) (*models.BatchSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.ProcessBatch",
		tracing.AttrTrigger.String(trigger),
		tracing.AttrBatchSize.Int(len(recs)),
	)
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"trigger": trigger,
		"records": len(recs),
	})

	summary := &models.BatchSummary{}
	sourceCounts := make(map[models.SourceSystem]int)

	var runID string
	if p.runs != nil {
		run, err := p.runs.Start(ctx, trigger)
		if err != nil {
			log.WithError(err).Warn("Failed to start ingestion run, continuing without one")
		} else {
			runID = run.ID
			summary.RunID = run.ID
			ctx = appctx.SetRunID(ctx, run.ID)
		}
	}

	var batchErr error
	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			batchErr = err
			break
		}

		sourceCounts[rec.Source]++
		res, err := p.Process(ctx, rec)
		if err != nil {
			summary.Total++
			if isRejection(err) {
				summary.Rejected++
			} else {
				summary.Failed++
			}
			summary.Errors = append(summary.Errors, models.RecordError{
				Index:  i,
				Source: rec.Source,
				Reason: err.Error(),
			})
			continue
		}
		summary.Add(res)
		if res.Warning != "" {
			summary.Errors = append(summary.Errors, models.RecordError{
				Index:  i,
				Source: rec.Source,
				Reason: res.Warning,
			})
		}
	}

	status := models.RunStatusCompleted
	if batchErr != nil {
		status = models.RunStatusFailed
		tracing.RecordError(span, batchErr)
	}
	metrics.RecordBatch(trigger, status)

	if runID != "" {
		// the run log is written even when ctx was cancelled
		finishCtx := context.WithoutCancel(ctx)
		if err := p.runs.Finish(finishCtx, runID, summary, sourceCounts, batchErr); err != nil {
			log.WithError(err).Warn("Failed to finish ingestion run")
		}
	}

	log.WithFields(map[string]any{
		"run_id":     runID,
		"created":    summary.Created,
		"updated":    summary.Updated,
		"duplicates": summary.Duplicates,
		"rejected":   summary.Rejected,
		"failed":     summary.Failed,
		"ambiguous":  summary.Ambiguous,
	}).Info("Batch processed")

	return summary, batchErr
}
