package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"momentum/internal/export"
	"momentum/pkg/graph"
	"momentum/pkg/logger"
)

// IngestMsg carries one batch of articles and labeled snippets from the
// extraction side.
type IngestMsg struct {
	Message string      `json:"message,omitempty"`
	Batch   graph.Batch `json:"batch"`
}

// RankMsg triggers a full pipeline pass. An unset AsOf means "now".
type RankMsg struct {
	Message string    `json:"message,omitempty"`
	AsOf    time.Time `json:"as_of,omitempty"`
}

// ProcessIngest applies one ingest message to the graph.
func ProcessIngest(ctx context.Context, ingestor *graph.Ingestor, body []byte) error {
	var msg IngestMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decoding ingest message: %w", err)
	}
	report, err := ingestor.Ingest(ctx, msg.Batch)
	if err != nil {
		return err
	}
	logger.Info("[Queue] Ingest message processed",
		"articles", report.Articles, "snippets", report.Snippets, "rejected", report.Rejected)
	return nil
}

// ProcessRank runs one full pipeline pass and, when an exporter is
// configured, publishes the resulting feeds.
func ProcessRank(ctx context.Context, pipeline *graph.Pipeline, exporter *export.Exporter, body []byte) error {
	var msg RankMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decoding rank message: %w", err)
	}
	asOf := msg.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	report, err := pipeline.Run(ctx, asOf)
	if err != nil {
		return err
	}
	if exporter != nil {
		if err := exporter.Export(ctx, report.RunID); err != nil {
			// the graph state is committed; a failed export can be redone
			logger.Error("[Queue] Feed export failed", "run", report.RunID, "err", err)
		}
	}
	return nil
}
