package service

import (
	"context"
	"fmt"
	"time"

	"github.com/voyagen/tvdeck/internal/health"
	"github.com/voyagen/tvdeck/internal/models"
	"github.com/voyagen/tvdeck/internal/store"
)

// Checker runs health checks over a target list.
type Checker interface {
	CheckAll(ctx context.Context, targets []models.CheckTarget) health.Report
}

// CheckAll health-checks the servers of streamIDs (every active stream
// when empty), records each server's status and returns the report.
// Per-server failures are part of the report, not errors.
func CheckAll(ctx context.Context, s store.Store, checker Checker, streamIDs []string) (models.CheckReport, error) {
	targets, err := s.ListCheckTargets(ctx, streamIDs)
	if err != nil {
		return models.CheckReport{}, fmt.Errorf("ListCheckTargets: %w", err)
	}

	report := checker.CheckAll(ctx, targets)

	if err := s.RecordServerStatus(ctx, report.Results); err != nil {
		return models.CheckReport{}, fmt.Errorf("RecordServerStatus: %w", err)
	}

	streams := make(map[string]struct{})
	for _, t := range targets {
		streams[t.StreamID] = struct{}{}
	}
	results := report.Results
	if results == nil {
		results = []models.HealthCheckResult{}
	}
	return models.CheckReport{
		Results: results,
		Stats:   report.Stats,
		Summary: models.CheckSummary{
			TotalStreams: len(streams),
			TotalServers: len(targets),
			CheckedAt:    time.Now().UTC().Format(models.TimeLayout),
		},
	}, nil
}
