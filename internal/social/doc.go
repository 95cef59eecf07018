// Package social defines the domain types and ports shared by the collector,
// the session manager and the classification pipeline.
//
// Implementations live in sibling packages (browser/chromedp, storage/postgres,
// publisher/pubsub, ...); this package only holds the small interfaces they
// satisfy and the request/post value types that flow between them.
package social
