// Package remote holds the engine's network collaborators: the draft-save
// gRPC contract (client, server registration and JSON codec), the health
// prober used by the connectivity monitor and the photo uploaders for a
// REST endpoint, S3 and MinIO.
//
// Every error returned to the engine is classified with common.Transient or
// common.Permanent so the upload worker can decide whether to retry.
package remote
