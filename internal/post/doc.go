// Package post defines the scheduled post model and the store operations the
// publication engine consumes.
//
// A post moves draft -> scheduled -> due -> publishing -> published|failed.
// Only the dispatcher flips Published and Notified or advances PublishTime for
// repeats; everything else is owned by the authoring side.
package post
