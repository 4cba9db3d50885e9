// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/docchat/services/docchat/datatypes"
)

var binaryExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
}

// HTTPConverter sends binary documents to an external conversion service
// that returns markdown. The service accepts a multipart upload on
// POST /convert and responds with {"markdown": "..."}.
type HTTPConverter struct {
	baseURL    string
	httpClient *http.Client
}

var _ Converter = (*HTTPConverter)(nil)

// NewHTTPConverter points the converter at a running conversion service,
// e.g. "http://localhost:9100".
func NewHTTPConverter(baseURL string) *HTTPConverter {
	return &HTTPConverter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

func (c *HTTPConverter) Supports(ext string) bool {
	return binaryExtensions[ext]
}

func (c *HTTPConverter) ToMarkdown(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: opening %s: %v", datatypes.ErrConversionError, filepath.Base(path), err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("%w: %v", datatypes.ErrConversionError, err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", datatypes.ErrConversionError, filepath.Base(path), err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", datatypes.ErrConversionError, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/convert", &body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", datatypes.ErrConversionError, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: conversion service unreachable: %v", datatypes.ErrConversionError, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return "", fmt.Errorf("%w: reading conversion response: %v", datatypes.ErrConversionError, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: conversion service returned %d for %s", datatypes.ErrConversionError, resp.StatusCode, filepath.Base(path))
	}

	var payload struct {
		Markdown string `json:"markdown"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return "", fmt.Errorf("%w: parsing conversion response: %v", datatypes.ErrConversionError, err)
	}
	if payload.Markdown == "" {
		return "", fmt.Errorf("%w: conversion service returned no content for %s", datatypes.ErrConversionError, filepath.Base(path))
	}
	return payload.Markdown, nil
}
