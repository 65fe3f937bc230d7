// Package webhook implements the GitHub push listener.
//
// # Request Flow
//
//  1. GET (or HEAD) on any path answers "webhook listener OK" with no checks
//  2. POST bodies are read up to max_body_size (413 beyond it)
//  3. With a secret configured, X-Hub-Signature-256 must be a valid
//     sha256 HMAC of the raw body (403 with a fixed text body otherwise)
//  4. The Router dispatches on X-GitHub-Event:
//     ping answers pong, push to the watched branch runs git pull, and
//     everything else is acknowledged and ignored
//
// # Responses
//
//	{"status":"pong"}
//	{"status":"ignored","event":"issues"}
//	{"status":"skipped","ref":"refs/heads/feature"}
//	{"error":"invalid JSON"}
//	{"ok":true,"stdout":"Already up to date.","stderr":""}
//
// A sync result is answered with 200 when git succeeded and 500 otherwise.
// Pulls are serialized by the runner handed to NewRouter; health checks and
// non-matching deliveries never wait for them.
package webhook
