// Package pipeline runs linear chains of steps over Arrow tables. A Pipeline
// optionally starts from a Source (typically Load, reading a dataset file with
// its schema enforced); each step's output table is the next step's input. A
// Sequence runs several standalone pipelines in order, e.g. the train and test
// splits of one stage.
//
//	p := &pipeline.Pipeline{
//	    Name:   "promote-train",
//	    Source: pipeline.Load(sess, config.SchemelessDataTrain, config.RawSchema),
//	    Steps: []pipeline.Step{
//	        pipeline.RequireRows(1),
//	        pipeline.Conform(config.RawSchema),
//	        pipeline.Store(sess, config.SchematicDataTrain),
//	    },
//	}
//	tbl, err := p.Run(ctx, &pipeline.RunOptions{Observer: pipeline.NewLogObserver(logger)})
//
// Ownership: a step either returns its input unchanged or a new table. The
// runner releases intermediate tables once they have been replaced, never the
// caller's input, and hands the final table to the caller, who must release it.
//
// Observer hooks (BeforePipeline, BeforeStep/AfterStep, AfterPipeline) are
// called when RunOptions.Observer is set. LogObserver logs through zap;
// MetricsObserver exports Prometheus counters and step latencies. Combine
// them with MultiObserver.
//
// Errors are wrapped with the failing step index and returned unchanged
// otherwise; the runner never retries.
package pipeline
