// Package codec converts the blobs the browser client kept in local storage into
// canonical [github.com/warehouse/recebimento/pkg/models] entities and back.
//
// The package is pure: no I/O, no clocks, no globals. [DecodeLegacy] returns either the
// decoded [Entities] or a [*DecodeError]; it never panics on malformed input.
// [EncodeForLegacyFallback] writes entities back in a shape [DecodeLegacy] accepts, for
// callers that need local durability while the remote datastore is unreachable.
//
// Legacy blobs were written by several client versions, so decoding is tolerant:
// field aliases are accepted (numero, numeroNota and nf all name the invoice number),
// numbers stored as strings are converted, timestamps may be RFC 3339 strings, pt-BR
// locale strings or epoch milliseconds, and list kinds may be a bare array or an object
// wrapping the array. Missing optional fields take documented defaults: an empty volume
// list for carts, zero volumes for invoice notes, an empty status map for sessions and
// an empty payload for reports.
package codec
