// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSetPlain verifies the plain-mode toggle round-trips.
func TestSetPlain(t *testing.T) {
	orig := Plain()
	defer SetPlain(orig)

	SetPlain(true)
	assert.True(t, Plain())
	SetPlain(false)
	assert.False(t, Plain())
}

// TestIconRender_PlainModeSkipsStyling keeps pipes free of ANSI codes.
func TestIconRender_PlainModeSkipsStyling(t *testing.T) {
	orig := Plain()
	defer SetPlain(orig)
	SetPlain(true)

	assert.Equal(t, "✓", IconSuccess.Render())
	assert.Equal(t, "✗", IconError.Render())
}

// TestSpinner_StartStopIdempotent exercises double start and double stop.
func TestSpinner_StartStopIdempotent(t *testing.T) {
	orig := Plain()
	defer SetPlain(orig)
	SetPlain(true)

	s := NewSpinner("working")
	s.Start()
	s.Start()
	s.UpdateMessage("still working")
	s.Stop()
	s.Stop()
}

// TestWithSpinner_PropagatesError returns the wrapped function's error.
func TestWithSpinner_PropagatesError(t *testing.T) {
	orig := Plain()
	defer SetPlain(orig)
	SetPlain(true)

	wantErr := errors.New("boom")
	err := WithSpinner("doing a thing", func() error { return wantErr })
	assert.ErrorIs(t, err, wantErr)

	assert.NoError(t, WithSpinner("doing a thing", func() error { return nil }))
}
