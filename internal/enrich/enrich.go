package enrich

import (
	"context"

	"github.com/uzstroy/marketintel/internal/config"
	"github.com/uzstroy/marketintel/internal/db"
)

// Report bundles the results of a full enrichment run.
type Report struct {
	Regions   RegionReport
	Aggregate AggregateReport
	Classify  ClassifyReport
}

// Pipeline runs the enrichment stages in dependency order: region resolution
// first (aggregation folds deal regions into active_regions), then
// aggregation, then classification (which reads the freshly computed win
// counts to report unclassified winners).
type Pipeline struct {
	regions    *RegionResolver
	aggregator *Aggregator
	classifier *Classifier
	cfg        config.EnrichConfig
}

// NewPipeline wires a Pipeline from its collaborators.
func NewPipeline(pool db.Pool, cfg config.EnrichConfig) *Pipeline {
	return &Pipeline{
		regions:    NewRegionResolver(pool),
		aggregator: NewAggregator(pool),
		classifier: NewClassifier(pool),
		cfg:        cfg,
	}
}

// Run executes all stages, stopping at the first failure.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	var report Report
	var err error

	if report.Regions, err = p.regions.Run(ctx); err != nil {
		return report, err
	}
	if report.Aggregate, err = p.aggregator.Run(ctx, p.cfg.LookbackMonths); err != nil {
		return report, err
	}
	if report.Classify, err = p.classifier.Run(ctx); err != nil {
		return report, err
	}
	return report, nil
}
