// Package intake turns an uploaded analyzer archive into an extraction bundle.
//
// Each request gets its own Workspace: a scratch directory named with a fresh
// UUID below the configured work directory, removed again by Close. The tar
// stream (plain, gzip or bzip2 compressed) is unpacked into it, the archive
// index is located by its ar-*.xml name and every extracted regular file
// becomes part of the available set handed to the extract package.
package intake
