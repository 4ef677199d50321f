// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package objectstore

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const octetStream = "application/octet-stream"

// DetectContentType sniffs the media type of content, without parameters.
// The standard sniffer is tried first and mimetype covers what it misses.
func DetectContentType(content []byte) string {
	if len(content) == 0 {
		return octetStream
	}

	detected := http.DetectContentType(content)
	if detected == octetStream {
		detected = mimetype.Detect(content).String()
	}

	mediaType, _, _ := strings.Cut(detected, ";")
	return strings.TrimSpace(mediaType)
}

// IsImage reports whether contentType is an image media type.
func IsImage(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}

/*
Extension returns the file extension for an upload, including the dot.

The extension registered for contentType wins; the original file name is
the fallback. An empty string means neither is known.
*/
func Extension(contentType, fileName string) string {
	if known := mimetype.Lookup(contentType); known != nil && known.Extension() != "" {
		return known.Extension()
	}
	return strings.ToLower(filepath.Ext(fileName))
}
