// Package blobs provides the key/blob persistence layer of the durable local
// store. Photo bytes and any other opaque values are stored here by key.
//
// Typical Usage
//
//	repo := blobs.NewSQLiteRepository(db)
//	_ = repo.Put(ctx, "photo/01J...", data)
//	b, _ := repo.Get(ctx, "photo/01J...")
//	_ = repo.Delete(ctx, "photo/01J...")
package blobs
