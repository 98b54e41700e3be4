package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/quillon/vecport/codec"
	"github.com/quillon/vecport/contentstore"
	"github.com/quillon/vecport/manifest"
	"github.com/quillon/vecport/metric"
	"github.com/quillon/vecport/model"
	"github.com/quillon/vecport/sealbox"
)

// RNG is a seeded random source for reproducible test data.
// It is safe for concurrent use.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset rewinds the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float32 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// FillUniform fills dst with random values in range [0, 1).
func (r *RNG) FillUniform(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.Float32()
	}
}

// UnitVector generates a single L2-normalized random vector.
func (r *RNG) UnitVector(dimensions int) []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unitVectorLocked(dimensions)
}

// UnitVectors generates L2-normalized random vectors (on the hypersphere).
// Gaussian components give a uniform distribution on the sphere, which is
// what cosine scoring and HNSW graph quality care about.
func (r *RNG) UnitVectors(num int, dimensions int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	vectors := make([][]float32, num)
	for i := range num {
		vectors[i] = r.unitVectorLocked(dimensions)
	}

	return vectors
}

// ClusteredVectors generates vectors grouped around cluster centroids, one
// cluster per i%clusters. Useful for filter tests where metadata should
// correlate with vector space position.
func (r *RNG) ClusteredVectors(num, dim, clusters int, spread float32) [][]float32 {
	centroids := r.UnitVectors(clusters, dim)

	r.mu.Lock()
	defer r.mu.Unlock()

	vectors := make([][]float32, num)
	for i := range num {
		centroid := centroids[i%clusters]
		vec := make([]float32, dim)
		for j := range dim {
			vec[j] = centroid[j] + float32(r.rand.NormFloat64())*spread
		}
		vectors[i] = vec
	}

	return vectors
}

// caller must hold r.mu.
func (r *RNG) unitVectorLocked(dimensions int) []float32 {
	vec := make([]float32, dimensions)
	for j := range vec {
		vec[j] = float32(r.rand.NormFloat64())
	}

	if !metric.NormalizeInPlace(vec) {
		vec[0] = 1
	}

	return vec
}

// Key returns a fixed 32-byte session key for sealing test fixtures.
func Key() []byte {
	key := make([]byte, sealbox.KeySize)
	for i := range key {
		key[i] = byte(i + 1)
	}

	return key
}

// Corpus is a sealed collection planted in an in-memory store, together with
// the plaintext records for ground-truth checks.
type Corpus struct {
	Store    *contentstore.MemoryStore
	Manifest *manifest.Manifest
	Records  []model.Record

	// Key is the collection key the manifest is stored under.
	Key string

	// Owner is the principal the manifest declares.
	Owner string

	// Secret is the session key everything is sealed with.
	Secret []byte
}

// CorpusOptions configures BuildCorpus.
type CorpusOptions struct {
	// Key is the collection key. Defaults to "tenant-1/fixtures".
	Key string

	// Owner is the manifest's owner. Defaults to "tenant-1".
	Owner string

	// Secret seals the manifest and chunks. Defaults to Key().
	Secret []byte

	// Vectors is the total record count. Defaults to 200.
	Vectors int

	// Dimensions is the vector dimensionality. Defaults to 16.
	Dimensions int

	// ChunkSize is the record count per chunk; the last chunk holds the
	// remainder. Defaults to 64.
	ChunkSize int

	// Compression wraps chunk and manifest plaintexts before sealing.
	Compression sealbox.Compression

	// Deleted tombstones the manifest.
	Deleted bool

	// Seed drives the vector generator. Defaults to 1.
	Seed int64

	// Metadata, when set, attaches a metadata document to record i.
	Metadata func(i int) map[string]any

	// Codec encodes the manifest and chunk documents. Defaults to
	// codec.Default.
	Codec codec.Codec

	// Store receives the sealed objects. Defaults to a fresh MemoryStore;
	// pass one to plant several collections side by side.
	Store *contentstore.MemoryStore
}

// BuildCorpus generates a collection of unit vectors, seals it chunk by
// chunk into a fresh in-memory store, and plants the sealed manifest under
// the collection key. The returned plaintext records are the ground truth
// for search assertions.
func BuildCorpus(optFns ...func(o *CorpusOptions)) (*Corpus, error) {
	opts := CorpusOptions{
		Key:        "tenant-1/fixtures",
		Owner:      "tenant-1",
		Secret:     Key(),
		Vectors:    200,
		Dimensions: 16,
		ChunkSize:  64,
		Seed:       1,
		Codec:      codec.Default,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	rng := NewRNG(opts.Seed)
	vectors := rng.UnitVectors(opts.Vectors, opts.Dimensions)

	records := make([]model.Record, opts.Vectors)
	for i := range records {
		records[i] = model.Record{
			ID:     fmt.Sprintf("vec-%04d", i),
			Vector: vectors[i],
		}
		if opts.Metadata != nil {
			records[i].Metadata = opts.Metadata(i)
		}
	}

	store := opts.Store
	if store == nil {
		store = contentstore.NewMemoryStore()
	}

	now := time.Unix(1700000000, 0).UTC()

	var (
		refs      []manifest.ChunkRef
		totalSize int64
	)

	for start := 0; start < len(records); start += opts.ChunkSize {
		end := min(start+opts.ChunkSize, len(records))
		chunkID := len(refs)

		doc, err := opts.Codec.Marshal(model.Chunk{
			ChunkID: chunkID,
			Vectors: records[start:end],
		})
		if err != nil {
			return nil, fmt.Errorf("testutil: encode chunk %d: %w", chunkID, err)
		}

		envelope, err := seal(doc, opts.Secret, opts.Compression)
		if err != nil {
			return nil, fmt.Errorf("testutil: seal chunk %d: %w", chunkID, err)
		}

		// The key participates so that identical chunk content in two
		// collections still gets distinct addresses.
		sum := sha256.Sum256(append([]byte(opts.Key), doc...))
		cid := "chunks/" + hex.EncodeToString(sum[:16])
		store.Put(cid, envelope)

		refs = append(refs, manifest.ChunkRef{
			ChunkID:     chunkID,
			CID:         cid,
			VectorCount: end - start,
			SizeBytes:   int64(len(envelope)),
			UpdatedAt:   now,
		})
		totalSize += int64(len(envelope))
	}

	m := &manifest.Manifest{
		Name:             opts.Key,
		Owner:            opts.Owner,
		Dimensions:       opts.Dimensions,
		VectorCount:      opts.Vectors,
		ChunkCount:       len(refs),
		StorageSizeBytes: totalSize,
		Created:          now,
		Updated:          now,
		Chunks:           refs,
		Deleted:          opts.Deleted,
	}

	doc, err := opts.Codec.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("testutil: encode manifest: %w", err)
	}

	envelope, err := seal(doc, opts.Secret, opts.Compression)
	if err != nil {
		return nil, fmt.Errorf("testutil: seal manifest: %w", err)
	}

	store.Put(opts.Key, envelope)

	return &Corpus{
		Store:    store,
		Manifest: m,
		Records:  records,
		Key:      opts.Key,
		Owner:    opts.Owner,
		Secret:   opts.Secret,
	}, nil
}

func seal(doc []byte, secret []byte, compression sealbox.Compression) ([]byte, error) {
	plaintext, err := sealbox.Compress(doc, compression)
	if err != nil {
		return nil, err
	}

	return sealbox.Seal(plaintext, secret)
}

// ExactTopK computes the exact k best matches for query by cosine
// similarity, best first. It is the ground truth for recall checks.
func ExactTopK(records []model.Record, query []float32, k int) []model.SearchResult {
	results := make([]model.SearchResult, 0, len(records))

	for i := range records {
		score, err := metric.CosineSimilarity(query, records[i].Vector)
		if err != nil {
			panic(err)
		}

		results = append(results, model.SearchResult{
			ID:       records[i].ID,
			Score:    score,
			Metadata: records[i].Metadata,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > k {
		results = results[:k]
	}

	return results
}

// ComputeRecall computes recall@k of approximate results against ground
// truth.
func ComputeRecall(groundTruth, approximate []model.SearchResult) float64 {
	if len(groundTruth) == 0 {
		if len(approximate) == 0 {
			return 1.0
		}
		return 0.0
	}

	truthSet := make(map[string]struct{}, len(groundTruth))
	for _, r := range groundTruth {
		truthSet[r.ID] = struct{}{}
	}

	hits := 0
	for _, r := range approximate {
		if _, ok := truthSet[r.ID]; ok {
			hits++
		}
	}

	return float64(hits) / float64(len(groundTruth))
}
