// Package s3 provides an S3 implementation of the contentstore.Store
// interface.
//
// # Usage
//
//	store, err := s3.NewStoreFromDefaultConfig(ctx, "my-bucket", "collections/")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	svc, err := vecport.New(store, key)
//
// # Features
//
//   - Existence probes via HeadObject, so an absent manifest is
//     distinguishable from a transport failure
//   - Whole-object downloads through the transfer manager (parallel part
//     requests for large chunks)
//   - Configurable prefix for multi-tenant isolation
package s3
