// Package mailer delivers outbound e-mail asynchronously.
//
// Messages are queued and handed to a pool of workers. Each worker honors a
// shared token-bucket rate limit and retries failed deliveries with jittered
// exponential backoff. Lifecycle events (queued, sent, failed, dropped) are
// published on the event bus.
//
// # Transports
//
// Delivery is delegated to a Transport. The smtp transport talks to the
// provider derived from the sender address; the log transport writes the
// message to the logger so verification codes are visible during development.
package mailer
