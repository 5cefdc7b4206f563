// Package vocabulary defines the canonical-variable domain model shared by
// the matcher, registry, and harvest subsystems: canonical variables with
// ontology URIs, native parameters as published by external data services,
// confidence-scored mappings between the two, and per-dataset rule packs.
package vocabulary
