// Automod component for durable per-sender moderation records.
//
// Includes an interface and implementations using in-process memory, pebble (embedded, on-disk), redis, and SQL databases (via gorm: sqlite or postgres).
//
// Every mutation is atomic with respect to a single record: either through a native primitive (SQL expression updates, redis WATCH/MULTI) or through CompareAndSwap on the record version. The engine never caches records between events; each decision is made against the value returned by Get.
package recordstore
