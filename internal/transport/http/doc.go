// Package http implements the HTTP handlers of the labflat web service. The
// handlers stay thin: they parse the multipart upload, hand the archive to
// the conversion service and translate its results into HTTP responses.
//
// # Routes
//
//	GET  /                   upload form
//	POST /                   form submission, answers with the download
//	POST /api/convert        multipart tar_file + output_format, attachment
//	POST /api/preview        multipart tar_file, JSON table
//	GET  /api/health         liveness summary
//	GET  /api/health/live    liveness with runtime details
//	GET  /api/health/ready   workspace readiness
//	GET  /api/version        build information
//
// # Error Handling
//
// API errors are written as RFC 7807 problem documents by
// errors.ErrorHandler. Conversion failures are mapped from the service
// sentinels:
//
//	{
//	    "type": "/errors/archive/no-records",
//	    "title": "Unprocessable Entity",
//	    "status": 422,
//	    "detail": "No valid data records found in the archive.",
//	    "instance": "/api/convert",
//	    "error_code": "NO_RECORDS",
//	    "details": [{"file": "r9.xml", "reason": "missing"}]
//	}
//
// The HTML form never shows a problem document; it re-renders the page with
// a flash message and the matching status code.
//
// # Skipped Files
//
// A successful conversion lists result files that contributed no row in the
// X-Skipped-Count and X-Skipped-Files headers. File names in X-Skipped-Files
// are path-escaped and comma separated.
package http
