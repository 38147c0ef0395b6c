// SPDX-License-Identifier: Apache-2.0

// Package migration progressively migrates a store file from whatever schema version it was written under to
// a final schema version.
//
// # Usage
//
// 1. Load the catalog of published schema versions and mappings:
//
//	catalog, err := migration.LoadCatalog("/etc/storemig/catalog")
//
// 2. Create a Migrator and run it against a store:
//
//	m, err := migration.NewMigrator(catalog,
//	    migration.WithLogger(logx.As()),
//	    migration.WithObserver(migration.ObserverFunc(func(f float64) { ... })),
//	)
//	result, err := m.Migrate(ctx, "/var/lib/app/library.db", catalog.Final())
//
// # How a migration runs
//
//   - The Catalog identifies the store's version from its embedded version tag and schema fingerprint.
//   - The PathResolver computes the chain of versions between the store version and the final version.
//   - The MappingResolver supplies a mapping for each adjacent pair, explicit or inferred.
//   - The StepMigrator streams every record through each mapping into a fresh temporary store.
//   - The ProgressAggregator folds per-step progress into one non-decreasing fraction.
//   - The Swapper replaces the original store with the final temporary store.
//
// Steps run as an automa workflow in RollbackOnError mode. The original store is only opened read-only until
// the swap, and every temporary store lives in a per-run work directory that is removed when Migrate returns.
//
// # Version graph
//
// Versions are declared in a canonical order. The graph has an edge from every version to the next declared
// version, plus one edge per explicit mapping. When the graph has no edges beyond the canonical chain the path
// is the straight slice of the chain. Otherwise the shortest path is used, and among equally short paths the
// one visiting versions earliest in canonical order wins.
package migration
