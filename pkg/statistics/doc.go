// Package statistics builds makeStatisticsJob.
//
// The job first folds bookings that ended inside the [from, to] window into
// one Statistics row per day. It then runs two report flows in parallel:
// one re-buckets the rows by day, the other by ISO week, and each writes a
// CSV report named after the window start.
package statistics
