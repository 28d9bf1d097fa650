// Package maintenance runs periodic housekeeping jobs (expired verification
// code purge, store compaction) on cron or interval schedules.
package maintenance
