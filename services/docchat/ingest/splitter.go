// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingest

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/AleutianAI/docchat/services/docchat/datatypes"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 100
	maxHeaderDepth      = 3
)

// markdownSeparators orders split points from strongest to weakest so the
// recursive splitter prefers structural boundaries over mid-sentence cuts.
var markdownSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// HeaderSplitter converts markdown text into chunks that carry their heading
// trail as metadata.
//
// # Description
//
// The text is first partitioned at heading boundaries (levels 1 through 3;
// deeper headings stay inside their section). Each section is then cut into
// size-bounded pieces with a recursive character splitter. Every resulting
// chunk records the headings it sits under as metadata keys "Header 1",
// "Header 2", "Header 3", so retrieval results can show where in the
// document a passage came from.
//
// # Thread Safety
//
// Stateless after construction; safe for concurrent use.
type HeaderSplitter struct {
	inner textsplitter.RecursiveCharacter
}

// NewHeaderSplitter builds a splitter with the given chunk geometry.
// Non-positive values fall back to the defaults (1000 chars, 100 overlap).
func NewHeaderSplitter(chunkSize, chunkOverlap int) *HeaderSplitter {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = defaultChunkOverlap
	}
	return &HeaderSplitter{
		inner: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(markdownSeparators),
		),
	}
}

// section is a run of text under one heading trail.
type section struct {
	headers map[string]any
	text    strings.Builder
}

// Split chunks the given markdown text. Blank-only sections are dropped.
func (s *HeaderSplitter) Split(markdown string) ([]datatypes.Chunk, error) {
	sections := splitByHeaders(markdown)

	var chunks []datatypes.Chunk
	for _, sec := range sections {
		body := strings.TrimSpace(sec.text.String())
		if body == "" {
			continue
		}
		pieces, err := s.inner.SplitText(body)
		if err != nil {
			return nil, fmt.Errorf("failed to split section text: %w", err)
		}
		for _, piece := range pieces {
			piece = strings.TrimSpace(piece)
			if piece == "" {
				continue
			}
			chunks = append(chunks, datatypes.NewChunk(piece, sec.headers))
		}
	}
	return chunks, nil
}

// splitByHeaders partitions markdown at heading boundaries, tracking the
// active heading trail. Headings inside fenced code blocks are treated as
// plain text.
func splitByHeaders(markdown string) []*section {
	trail := make([]string, maxHeaderDepth)
	current := &section{headers: map[string]any{}}
	sections := []*section{current}
	inFence := false

	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
		}

		level, title := headingOf(trimmed)
		if inFence || level == 0 {
			current.text.WriteString(line)
			current.text.WriteString("\n")
			continue
		}

		// New heading: close the current section and start a fresh trail
		// with deeper levels cleared.
		trail[level-1] = title
		for i := level; i < maxHeaderDepth; i++ {
			trail[i] = ""
		}
		headers := map[string]any{}
		for i, t := range trail {
			if t != "" {
				headers[fmt.Sprintf("Header %d", i+1)] = t
			}
		}
		current = &section{headers: headers}
		sections = append(sections, current)
	}
	return sections
}

// headingOf returns the heading level (1..3) and title of a markdown heading
// line, or (0, "") when the line is not a tracked heading.
func headingOf(line string) (int, string) {
	for level := maxHeaderDepth; level >= 1; level-- {
		prefix := strings.Repeat("#", level) + " "
		if strings.HasPrefix(line, prefix) {
			return level, strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	return 0, ""
}
