// Package model defines the data types exchanged between loading stages.
//
//   - Record: one vector entry decoded from a chunk document
//   - Chunk: one decoded chunk document (chunk ID plus its entries)
//   - SearchResult: one scored match returned by a query
//
// The package also provides the record validation applied during loading:
// dimensionality checks and rejection of non-finite vector components.
package model
