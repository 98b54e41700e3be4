// Package testutil provides testing utilities for vecport.
//
// This package is intended for use in tests and benchmarks only. It provides
// seeded vector generation, sealed fixture corpora planted in in-memory
// stores, and exact nearest-neighbor ground truth.
//
// # Sealed Corpora
//
//	corpus, _ := testutil.BuildCorpus(func(o *testutil.CorpusOptions) {
//	    o.Vectors = 500
//	    o.Dimensions = 32
//	    o.Compression = sealbox.CompressionZSTD
//	})
//	svc, _ := vecport.New(corpus.Store)
//
// # Ground Truth and Recall
//
//	truth := testutil.ExactTopK(corpus.Records, query, 10)
//	recall := testutil.ComputeRecall(truth, approx)
package testutil
