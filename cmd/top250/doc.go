// Command top250 collects the Douban Top 250 listing into a relational store
// and reports on it.
//
// Subcommands:
//   - run: fetch every listing page, normalize each record's info line through
//     an LLM, upsert the batch, then write charts. --skip-scrape, --skip-ai and
//     --skip-charts disable stages; --pages and --test shorten the crawl.
//   - info: print catalog statistics from the store.
//   - clear: wipe the store after an interactive "yes".
//   - serve: expose the store read-only over HTTP with Prometheus metrics.
//
// Configuration comes from top250.yaml (or --config) with TOP250_* environment
// overrides; DEEPSEEK_API_KEY is accepted for the AI key. Without a key the run
// continues and stores records with empty AI fields.
package main
