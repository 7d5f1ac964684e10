// Package service implements the application's business operations on
// top of the store interfaces: idempotent memory creation with job
// scheduling, attachment acknowledgement, and manual reprocessing.
//
// Services own transaction boundaries. A request that touches both the
// memory and its processing job runs inside a single transaction, so a
// memory is never visible without its job.
package service
