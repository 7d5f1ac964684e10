// Package api implements the HTTP handlers for the memories service:
// memory capture and retrieval, attachment acknowledgement, manual
// reprocessing, and the token-guarded internal dispatch trigger.
package api
