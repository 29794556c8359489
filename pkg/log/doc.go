/*
Package log provides structured logging for the scheduler using zerolog.

# Usage

Initializing the logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Simple logging:

	log.Info("orchestrator started")
	log.Warn("reconcile tick took longer than interval")
	log.Error("driver submit failed")

Structured and component logging:

	log.Logger.Info().Str("job_id", job.ID).Int("priority", job.Priority).Msg("job enqueued")

	schedLog := log.WithComponent("scheduler")
	schedLog.Debug().Str("queue_id", q.ID).Msg("scheduling tick")

Context loggers (WithJobID, WithProjectID, WithClusterID, WithVDCID) add
a single identifying field; compose them with .With() for more than
one field at a time, the same pattern as WithComponent.

# Output

JSON output is used in production; console (human-readable, colorized)
output is selected via Config.JSONOutput=false for local development.
Both include an RFC3339 timestamp.

Never log EncryptedToken, Kubeconfig contents, or any other credential
material in ExecutorConfig; pkg/security keeps those encrypted and
opaque specifically so logging code never needs to reason about them.
*/
package log
