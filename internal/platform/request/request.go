// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package request provides utilities for extracting data from HTTP requests.

It wraps the common body decoding patterns (JSON and multipart forms),
ensuring consistent error handling and size limits.
*/
package requestutil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/taibuivan/motorhub/internal/platform/apperr"
	"github.com/taibuivan/motorhub/internal/platform/constants"
	"github.com/taibuivan/motorhub/internal/platform/validate"
)

/*
DecodeJSON reads the request body and decodes it into the target structure.

Parameters:
  - request: *http.Request
  - target: interface{} (Pointer to the destination struct)

Returns:
  - error: validate.ErrInvalidJSON if decoding fails, otherwise nil
*/
func DecodeJSON(request *http.Request, target interface{}) error {
	if err := json.NewDecoder(request.Body).Decode(target); err != nil {
		return validate.ErrInvalidJSON
	}
	return nil
}

/*
ParseForm parses a multipart (or url-encoded) form body.

Returns:
  - error: apperr.ValidationError if the body is not a readable form
*/
func ParseForm(request *http.Request) error {
	err := request.ParseMultipartForm(constants.MaxMultipartMemory)
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return apperr.ValidationError("Invalid form payload")
	}
	if errors.Is(err, http.ErrNotMultipart) {
		if err := request.ParseForm(); err != nil {
			return apperr.ValidationError("Invalid form payload")
		}
	}
	return nil
}

/*
OptionalFile reads an uploaded file field from a parsed multipart form.

Description: A missing field is not an error; the returned bytes are nil.
Files larger than maxBytes are rejected.

Parameters:
  - request: *http.Request (already parsed with [ParseForm])
  - field: string
  - maxBytes: int64

Returns:
  - []byte: File content, or nil when the field is absent
  - string: Original file name
  - error: apperr.ValidationError on oversize or unreadable files
*/
func OptionalFile(request *http.Request, field string, maxBytes int64) ([]byte, string, error) {
	file, header, err := request.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", validate.RequiredError(field, "Unreadable file")
	}
	defer file.Close()

	if header.Size > maxBytes {
		return nil, "", validate.RequiredError(field, "File is too large")
	}

	content, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, "", validate.RequiredError(field, "Unreadable file")
	}
	if int64(len(content)) > maxBytes {
		return nil, "", validate.RequiredError(field, "File is too large")
	}

	return content, header.Filename, nil
}
