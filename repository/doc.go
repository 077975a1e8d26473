// Package repository provides a generic repository over a table handle.
// Criteria of mixed shape (entities, maps, lists of either) are normalized to
// column-keyed groups, registered joins are replayed on every select, and
// queued operations run on Execute. Finders adapt the raw outcome into a
// tagged Result.
package repository
