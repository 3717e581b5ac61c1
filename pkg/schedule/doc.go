// Package schedule triggers batch jobs on recurring schedules.
//
// This package includes:
//   - Schedule interface for computing the next fire time
//   - Every() for fixed-interval schedules
//   - Daily() for daily schedules at a specific time
//   - Weekly() for weekly schedules on a specific day and time
//   - Cron() and ParseCron() for cron expression-based schedules
//   - Scheduler, which launches registered jobs when their schedule fires
package schedule
