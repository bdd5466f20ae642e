// Package tiercache implements a loader/writer-integrated cache engine: an
// in-process key/value cache that sits in front of an external system of
// record, reading through and writing through a caller-supplied LoaderWriter
// while an internal Store holds the hot set.
//
// The engine's distinctive responsibility is preserving well-defined
// semantics under concurrent access and in the presence of Store failures:
// per-key operations are atomic with respect to the Store, bulk operations
// report partial success/failure per key, and a ResilienceStrategy decides
// how to recover (or degrade) when the Store itself errors instead of the
// LoaderWriter.
//
// Concrete collaborators live in subpackages: tiercache/store holds a
// sharded in-memory reference Store, tiercache/loaderwriter holds
// Redis/Cassandra/S3-backed LoaderWriter adapters, and tiercache/restgateway
// exposes a CacheEngine over HTTP.
package tiercache

// Timeout model
//
// Every blocking engine operation takes a context.Context. Store and
// LoaderWriter calls inherit that context directly; retrying adapters
// (loaderwriter.RetryingLoaderWriter) stop retrying as soon as the context
// is canceled or its deadline passes, surfacing the context error instead of
// spending the remaining retry budget.
