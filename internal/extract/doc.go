// Package extract flattens analyzer archive XML into a single table.
//
// An archive consists of one index document and many result documents. The
// index lists result files inside its results section; every result file
// describes one sample with a few fixed fields and any number of parameter
// results. Flattening happens in three steps:
//
//	Resolver   reads the index and returns the referenced file names in order
//	Extractor  turns one result document into an ordered key/value Record
//	Assemble   merges all records into a Table whose columns are the union of
//	           every key seen, fixed columns first, blanks for missing cells
//
// Pipeline ties the steps together for one bundle. Problems with a single
// result file never abort the run: they are reported as skipped FileOutcomes.
// Only a malformed index or an empty record set are fatal.
//
// The package performs no configuration lookups and keeps no state between
// runs; callers own the scratch directory the files live in.
package extract
