// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package upload implements sending files by uploading them to an HTTP server.
//
// The upload service is discovered on the server's items, a slot is
// requested for a file, and the file is then uploaded to the slot's PUT URL
// with any headers the service asked for.
// Performing the HTTP request itself is left to the caller.
package upload // import "mellium.im/engine/upload"
