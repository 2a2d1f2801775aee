// Package services implements labflat's business logic between the HTTP and
// CLI front ends and the extraction core.
//
// ConversionService owns one conversion end to end: it unpacks the uploaded
// archive into a private workspace, locates the index, runs the extraction
// pipeline, exports the table and removes the workspace again. Failures are
// reported as *ConversionError, whose kind is one of the package sentinels:
//
//	ErrInvalidArchive   upload is not a readable tar archive
//	ErrArchiveTooLarge  unpacked archive exceeds the configured cap
//	ErrMalformedIndex   index missing, unreadable or without a results section
//	ErrNoRecords        no referenced result file yielded a record
//	ErrInvalidFormat    output format outside {csv, xlsx}
//	ErrExport           the export sink failed
//
// HealthService answers liveness, readiness and version probes.
package services
