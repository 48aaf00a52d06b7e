// Package notifier talks to post owners.
//
// Notifier fires at most one "upcoming publication" reminder per post per
// cycle. Sender delivers owner notices (reminders and failure notices)
// through the platform client with a shared rate limit and a short retry.
package notifier
