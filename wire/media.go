// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// Media is a display artifact produced by interpreter-side rich output:
// an encoded blob tagged with its MIME type. The bytes pass through
// undecoded; "image/png" data is PNG bytes, "text/html" is UTF-8
// markup, and so on.
type Media struct {
	MIME string
	Data []byte
}
