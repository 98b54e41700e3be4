package vecport

import (
	"context"
	"errors"
	"fmt"

	"github.com/quillon/vecport/guard"
	"github.com/quillon/vecport/hnsw"
	"github.com/quillon/vecport/index"
	"github.com/quillon/vecport/loader"
	"github.com/quillon/vecport/manifest"
	"github.com/quillon/vecport/model"
	"github.com/quillon/vecport/sealbox"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("vecport: k must be positive")

	// ErrInvalidQuery is returned for query vectors with zero magnitude.
	ErrInvalidQuery = errors.New("vecport: query vector must have nonzero magnitude")

	// ErrNotLoaded is returned by Search when the collection has never been
	// loaded, or when its cached index has expired or been evicted.
	ErrNotLoaded = errors.New("vecport: collection is not loaded")

	// ErrStillLoading is returned by Search while a load of the collection
	// is in flight.
	ErrStillLoading = errors.New("vecport: collection load is in progress")

	// ErrLoadFailed is returned by Search when the most recent load attempt
	// ended in an error. The terminal error is wrapped alongside it and can
	// be recovered with errors.As.
	ErrLoadFailed = errors.New("vecport: previous load attempt failed")
)

// Kind tags the failure class of an Error. The set is closed: every load
// failure is normalized to exactly one Kind before it reaches the status
// machine or a progress event, and the Orchestrator maps Kinds, never error
// text.
type Kind int

const (
	// KindInternalError is the catch-all for failures outside the taxonomy.
	// It is logged at error severity because it should be rare.
	KindInternalError Kind = iota

	// KindManifestNotFound means no manifest object exists under the
	// collection key. Retryable once the collection is published.
	KindManifestNotFound

	// KindManifestDownloadFailed is a transport failure fetching the
	// manifest, distinct from it being absent.
	KindManifestDownloadFailed

	// KindChunkDownloadFailed is a failure downloading or decoding one
	// chunk; the Error carries the chunk ID.
	KindChunkDownloadFailed

	// KindOwnerMismatch means the manifest's owner is not the caller's
	// identity. The message names neither.
	KindOwnerMismatch

	// KindDecryptionFailed covers wrong key length, truncated envelopes and
	// authentication failures. The message carries no key material.
	KindDecryptionFailed

	// KindDimensionMismatch means a vector disagrees with the manifest's
	// declared dimensionality, or is numerically unusable (NaN, infinite,
	// zero magnitude).
	KindDimensionMismatch

	// KindVectorCountMismatch means delivered and declared vector counts
	// disagree, per chunk or across the whole collection.
	KindVectorCountMismatch

	// KindEmptyDatabase means the collection is deleted or holds no
	// vectors; there is nothing to index.
	KindEmptyDatabase

	// KindManifestParseError means the manifest decrypted but is not a
	// valid manifest document.
	KindManifestParseError

	// KindMemoryLimitExceeded means the pre-flight footprint estimate does
	// not fit the configured ceiling.
	KindMemoryLimitExceeded

	// KindRateLimitExceeded means the load was rejected by the sliding
	// window before any network call.
	KindRateLimitExceeded

	// KindTimeout means the whole-load deadline expired.
	KindTimeout

	// KindIndexBuildFailed is an internal graph construction failure.
	KindIndexBuildFailed
)

// Code returns the stable machine-readable identifier of the kind.
func (k Kind) Code() string {
	switch k {
	case KindManifestNotFound:
		return "MANIFEST_NOT_FOUND"
	case KindManifestDownloadFailed:
		return "MANIFEST_DOWNLOAD_FAILED"
	case KindChunkDownloadFailed:
		return "CHUNK_DOWNLOAD_FAILED"
	case KindOwnerMismatch:
		return "OWNER_MISMATCH"
	case KindDecryptionFailed:
		return "DECRYPTION_FAILED"
	case KindDimensionMismatch:
		return "DIMENSION_MISMATCH"
	case KindVectorCountMismatch:
		return "VECTOR_COUNT_MISMATCH"
	case KindEmptyDatabase:
		return "EMPTY_DATABASE"
	case KindManifestParseError:
		return "MANIFEST_PARSE_ERROR"
	case KindMemoryLimitExceeded:
		return "MEMORY_LIMIT_EXCEEDED"
	case KindRateLimitExceeded:
		return "RATE_LIMIT_EXCEEDED"
	case KindTimeout:
		return "TIMEOUT"
	case KindIndexBuildFailed:
		return "INDEX_BUILD_FAILED"
	default:
		return "INTERNAL_ERROR"
	}
}

// String implements fmt.Stringer.
func (k Kind) String() string { return k.Code() }

// message is the sanitized user-facing text for the kind.
func (k Kind) message() string {
	switch k {
	case KindManifestNotFound:
		return "manifest not found"
	case KindManifestDownloadFailed:
		return "manifest download failed"
	case KindChunkDownloadFailed:
		return "chunk download failed"
	case KindOwnerMismatch:
		return "owner verification failed"
	case KindDecryptionFailed:
		return "decryption failed"
	case KindDimensionMismatch:
		return "vector does not match the declared dimensionality"
	case KindVectorCountMismatch:
		return "vector count does not match the manifest"
	case KindEmptyDatabase:
		return "collection has no vectors"
	case KindManifestParseError:
		return "manifest is malformed"
	case KindMemoryLimitExceeded:
		return "estimated memory footprint exceeds the configured limit"
	case KindRateLimitExceeded:
		return "load rate limit exceeded"
	case KindTimeout:
		return "load deadline exceeded"
	case KindIndexBuildFailed:
		return "index construction failed"
	default:
		return "internal error"
	}
}

// Error is the single error type load operations surface. Kind selects the
// failure class and Code the identifier callers switch on.
//
// The original underlying error can be accessed via errors.Unwrap. Security
// kinds render a fixed message: no owner identity, no key material.
type Error struct {
	// Kind is the failure class.
	Kind Kind

	// ChunkID identifies the failing chunk for KindChunkDownloadFailed; it
	// is -1 for every other kind.
	ChunkID int

	cause error
}

func newError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, ChunkID: -1, cause: cause}
}

func (e *Error) Error() string {
	msg := "vecport: " + e.Kind.message()

	if e.Kind == KindChunkDownloadFailed && e.ChunkID >= 0 {
		msg = fmt.Sprintf("vecport: chunk %d download failed", e.ChunkID)
	}

	// Security kinds render without their cause.
	switch e.Kind {
	case KindOwnerMismatch, KindDecryptionFailed:
		return msg
	}

	if e.cause != nil {
		return msg + ": " + e.cause.Error()
	}

	return msg
}

func (e *Error) Unwrap() error { return e.cause }

// Code returns the stable machine-readable code of the error.
func (e *Error) Code() string { return e.Kind.Code() }

// ErrDimensionMismatch indicates a query/index dimensionality mismatch. It is
// an argument error of Search, not a load taxonomy member.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vecport: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// translateError converts a failure from any pipeline stage into exactly one
// taxonomy member. Errors that already are taxonomy members pass through, as
// does caller cancellation, which is a withdrawal rather than a load failure
// and stays untranslated for the status record.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var te *Error
	if errors.As(err, &te) {
		return err
	}

	// The whole-load deadline takes precedence over whichever stage it
	// interrupted.
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTimeout, err)
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	if errors.Is(err, guard.ErrRateLimited) {
		return newError(KindRateLimitExceeded, err)
	}

	var memErr *guard.MemoryLimitError
	if errors.As(err, &memErr) {
		return newError(KindMemoryLimitExceeded, err)
	}

	var chunkErr *loader.ChunkError
	if errors.As(err, &chunkErr) {
		return translateChunkError(chunkErr, err)
	}

	// The whole-collection count backstop arrives unwrapped.
	var countErr *loader.CountError
	if errors.As(err, &countErr) {
		return newError(KindVectorCountMismatch, err)
	}

	switch {
	case errors.Is(err, manifest.ErrNotFound):
		return newError(KindManifestNotFound, err)
	case errors.Is(err, manifest.ErrOwnerMismatch):
		return newError(KindOwnerMismatch, err)
	case errors.Is(err, manifest.ErrDeleted):
		return newError(KindEmptyDatabase, err)
	}

	var mdErr *manifest.DownloadError
	if errors.As(err, &mdErr) {
		return newError(KindManifestDownloadFailed, err)
	}

	var mpErr *manifest.ParseError
	if errors.As(err, &mpErr) {
		return newError(KindManifestParseError, err)
	}

	var miErr *manifest.InvalidError
	if errors.As(err, &miErr) {
		return newError(KindManifestParseError, err)
	}

	// Bare sealbox errors reach here only from the manifest path; the chunk
	// path wraps them in ChunkError above.
	switch {
	case errors.Is(err, sealbox.ErrInvalidText), errors.Is(err, sealbox.ErrCorruptPayload):
		return newError(KindManifestParseError, err)
	case isDecryptFailure(err):
		return newError(KindDecryptionFailed, err)
	}

	if errors.Is(err, index.ErrNoRecords) {
		return newError(KindEmptyDatabase, err)
	}

	var zvErr *index.ZeroVectorError
	if errors.As(err, &zvErr) {
		return newError(KindDimensionMismatch, err)
	}

	var buildErr *index.BuildError
	if errors.As(err, &buildErr) {
		return newError(KindIndexBuildFailed, err)
	}

	if isVectorDefect(err) {
		return newError(KindDimensionMismatch, err)
	}

	return newError(KindInternalError, err)
}

// translateChunkError classifies a per-chunk failure by its cause. Decrypt
// and validation failures keep their own kinds; everything else, including a
// payload that decrypted but does not decode, is attributed to the chunk.
func translateChunkError(chunkErr *loader.ChunkError, err error) *Error {
	if isDecryptFailure(err) {
		return newError(KindDecryptionFailed, err)
	}

	if isVectorDefect(err) {
		return newError(KindDimensionMismatch, err)
	}

	var countErr *loader.CountError
	if errors.As(err, &countErr) {
		return newError(KindVectorCountMismatch, err)
	}

	e := newError(KindChunkDownloadFailed, err)
	e.ChunkID = chunkErr.ChunkID

	return e
}

// translateSearchError normalizes argument failures surfaced by the handle.
func translateSearchError(err error) error {
	if err == nil {
		return nil
	}

	var dimErr *hnsw.DimensionError
	if errors.As(err, &dimErr) {
		return &ErrDimensionMismatch{Expected: dimErr.Expected, Actual: dimErr.Actual, cause: err}
	}

	if errors.Is(err, index.ErrZeroQueryVector) {
		return fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}

	return err
}

func isDecryptFailure(err error) bool {
	return errors.Is(err, sealbox.ErrOpenFailed) ||
		errors.Is(err, sealbox.ErrInvalidKeySize) ||
		errors.Is(err, sealbox.ErrEnvelopeTooShort)
}

func isVectorDefect(err error) bool {
	var dimErr *model.DimensionError
	if errors.As(err, &dimErr) {
		return true
	}

	var nfErr *model.NonFiniteError
	return errors.As(err, &nfErr)
}

// errorCode extracts the stable code for logs and progress events; it is
// empty for errors outside the taxonomy.
func errorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code()
	}

	return ""
}
