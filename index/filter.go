package index

import (
	"strconv"

	"github.com/RoaringBitmap/roaring/v2"
)

// Filter is a set of equality constraints over top-level metadata fields. A
// record is eligible when every constraint matches (AND semantics). Only
// scalar fields participate; nested documents and arrays are not indexed and
// a constraint on one matches nothing.
type Filter map[string]any

// invertedIndex maps field name and term to the set of graph IDs whose
// record carries that value. Postings are roaring bitmaps, which keeps
// cross-field intersections cheap even for large collections.
type invertedIndex struct {
	postings map[string]map[string]*roaring.Bitmap
}

func newInvertedIndex() *invertedIndex {
	return &invertedIndex{
		postings: make(map[string]map[string]*roaring.Bitmap),
	}
}

// add indexes the scalar top-level fields of a record's metadata.
func (ix *invertedIndex) add(id uint32, metadata map[string]any) {
	for field, value := range metadata {
		term, ok := termKey(value)
		if !ok {
			continue
		}

		terms, ok := ix.postings[field]
		if !ok {
			terms = make(map[string]*roaring.Bitmap)
			ix.postings[field] = terms
		}

		bm, ok := terms[term]
		if !ok {
			bm = roaring.New()
			terms[term] = bm
		}

		bm.Add(id)
	}
}

// eligible resolves a filter to the IDs matching every constraint. The
// result is detached from the posting sets and safe to mutate.
func (ix *invertedIndex) eligible(f Filter) *roaring.Bitmap {
	var result *roaring.Bitmap

	for field, value := range f {
		term, ok := termKey(value)
		if !ok {
			return roaring.New()
		}

		bm := ix.postings[field][term]
		if bm == nil {
			return roaring.New()
		}

		if result == nil {
			result = bm.Clone()
		} else {
			result.And(bm)
		}

		if result.IsEmpty() {
			return result
		}
	}

	if result == nil {
		result = roaring.New()
	}

	return result
}

// sizeBytes reports the serialized size of all posting sets, for diagnostics.
func (ix *invertedIndex) sizeBytes() uint64 {
	var total uint64

	for _, terms := range ix.postings {
		for _, bm := range terms {
			total += bm.GetSizeInBytes()
		}
	}

	return total
}

// termKey normalizes a scalar into a type-tagged posting term, so the string
// "1" and the number 1 index separately. All numeric widths normalize to the
// same term because JSON decoding yields float64 for every number.
func termKey(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return "s:" + t, true
	case bool:
		return "b:" + strconv.FormatBool(t), true
	case float64:
		return "n:" + strconv.FormatFloat(t, 'g', -1, 64), true
	case float32:
		return "n:" + strconv.FormatFloat(float64(t), 'g', -1, 64), true
	case int:
		return "n:" + strconv.FormatFloat(float64(t), 'g', -1, 64), true
	case int32:
		return "n:" + strconv.FormatFloat(float64(t), 'g', -1, 64), true
	case int64:
		return "n:" + strconv.FormatFloat(float64(t), 'g', -1, 64), true
	default:
		return "", false
	}
}
