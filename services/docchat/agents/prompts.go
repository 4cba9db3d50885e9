// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package agents runs the relevance/research/verify pipeline over retrieved
// document chunks.
package agents

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/docchat/services/docchat/datatypes"
)

const relevancePromptTemplate = `You are a strict classifier. Decide whether the provided document excerpts can answer the user's question.

Respond with exactly one of these labels and nothing else:
CAN_ANSWER - the excerpts directly answer the question.
PARTIAL - the excerpts cover the topic but only partially answer the question.
NO_MATCH - the excerpts are unrelated to the question.

If the excerpts overlap the question's topic at all, prefer PARTIAL over NO_MATCH.

Question:
%s

Document excerpts:
%s

Label:`

const draftPromptTemplate = `Answer the question using ONLY the context below. Be concise. If the context does not contain the answer, say so plainly instead of guessing.

Context:
%s

Question:
%s

Answer:`

const verifyPromptTemplate = `You are a fact checker. Compare the draft answer against the source context and report, in a short paragraph, whether every claim in the draft is supported by the context. Call out any unsupported or contradicted claim explicitly.

Source context:
%s

Draft answer:
%s

Findings:`

func relevancePrompt(question string, chunks []datatypes.Chunk) string {
	return fmt.Sprintf(relevancePromptTemplate, question, joinChunkTexts(chunks))
}

func draftPrompt(question string, chunks []datatypes.Chunk) string {
	return fmt.Sprintf(draftPromptTemplate, joinChunkTexts(chunks), question)
}

func verifyPrompt(draft string, chunks []datatypes.Chunk) string {
	return fmt.Sprintf(verifyPromptTemplate, joinChunkTexts(chunks), draft)
}

func joinChunkTexts(chunks []datatypes.Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Text
	}
	return strings.Join(parts, "\n\n---\n\n")
}
