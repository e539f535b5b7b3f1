// Package main hosts the apitosql command.
//
// Architecture overview:
//   - CLI: a cobra root with one subcommand per entity family (rental-contracts, valuations) plus flatten.
//     The persistent pre-run hook loads config.Config from the env file, the environment and the database
//     section, builds the zap logger and hands both to internal/app.
//   - Pipeline: internal/pipeline pings the API, discovers the page count, collects every listing page,
//     expands up to maxNoOfEntries summaries into full documents and upserts each one with last-writer-wins
//     semantics keyed by the document id.
//   - Persistence & fanout: documents land in public.json_ruby through the pgx store. Raw bodies can be archived
//     to a local directory or GCS, and a run summary can be published to Pub/Sub when a topic is configured.
//   - Observability: zap logs carry run_id and variant; Prometheus collectors live on a private registry and are
//     pushed to a Pushgateway at the end of the run when one is configured.
//
// Operational notes:
//   - The run is sequential. SIGINT/SIGTERM cancel the context, which stops the run at the next blocking call.
//   - Any returned error is logged and exits with status 1.
//
// Quick checklist:
//   - Configure env vars: auth_token, BaseUrl, maxNoOfEntries and (for valuations) project, either exported or in
//     .env. Ambient settings use the APITOSQL_ prefix, e.g. APITOSQL_SINK_ABORT_ON_ERROR=true.
//   - Database: a postgresql section in database.yaml with host, port, dbname, user and password.
//   - Run locally: go run ./cmd/apitosql valuations --flatten (add --dry-run to keep everything in memory).
package main
