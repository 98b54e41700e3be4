// Package vecport loads encrypted vector collections from remote content
// stores and answers k-nearest-neighbor queries over them.
//
// A collection lives in a content store as a sealed manifest plus sealed
// chunk objects. Loading resolves and authenticates the manifest, verifies
// ownership, downloads and decrypts the chunks in parallel, builds an HNSW
// index over the records and caches it in memory. Searches run against the
// cached index until it expires, is evicted or is explicitly dropped.
//
// # Quick Start
//
// Against an HTTP content portal:
//
//	ctx := context.Background()
//
//	svc, _ := vecport.New(nil, vecport.WithConfig(vecport.ConfigFromEnv()))
//	defer svc.Close()
//
//	err := svc.Load(ctx, vecport.LoadRequest{
//	    Key:    "tenant-7/products",
//	    Owner:  "tenant-7",
//	    Secret: sessionKey, // 32 bytes
//	}, nil)
//
//	results, _ := svc.Search(ctx, vecport.SearchRequest{
//	    Key:   "tenant-7/products",
//	    Query: embedding,
//	    K:     10,
//	})
//
// Any contentstore.Store works in place of the portal: the package ships
// S3, MinIO and in-memory implementations.
//
// # Background Loads
//
// StartLoad returns immediately and streams progress to a sink; Status
// reports the outcome:
//
//	_ = svc.StartLoad(ctx, req, func(ev vecport.LoadProgressEvent) {
//	    log.Printf("%s %d/%d", ev.Kind, ev.ChunksLoaded, ev.TotalChunks)
//	})
//
//	st := svc.Status("tenant-7/products")
//	if st.State == vecport.StateLoaded {
//	    // searchable
//	}
//
// Concurrent loads of the same key coalesce into one underlying operation.
// Canceling the load context abandons the attempt without tearing down the
// Service.
//
// # Failure Reporting
//
// Load failures carry a stable machine-readable code (*Error, Kind.Code())
// and a sanitized message. Messages never include key material, decrypted
// content or owner identities. Search misses are explained through the load
// status: ErrNotLoaded, ErrStillLoading or ErrLoadFailed.
//
// # Key Features
//
//   - Authenticated encryption (ChaCha20-Poly1305) for manifests and chunks
//   - Transparent zstd and lz4 chunk compression
//   - Bounded-parallelism chunk loading with download rate pacing
//   - Admission control: load rate limits, memory reservations, timeouts
//   - HNSW indexing with cosine scoring and metadata filtering
//   - LRU index cache with TTL expiry and a memory ceiling
//   - Structured logging (log/slog) and pluggable metrics
package vecport
