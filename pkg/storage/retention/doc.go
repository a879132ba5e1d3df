// Package retention prunes old usage samples and audit log entries.
//
// Samples are taken every sweep for every panel, so the table grows without
// bound unless trimmed. A Pruner deletes rows older than the configured
// number of days and a Scheduler runs it on a cron expression:
//
//	pruner := retention.NewPruner(store, &retention.Config{
//	    SampleDays: 90,
//	    LogDays:    365,
//	    Schedule:   "0 3 * * *",
//	}, collector)
//	if err := pruner.Start(ctx); err != nil {
//	    return err
//	}
//	defer pruner.Stop()
//
// A zero day count keeps that kind of record forever.
package retention
