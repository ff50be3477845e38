// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

package set

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrSetBasics(t *testing.T) {
	s := NewStrSet([]string{"b", "a", "b"})
	assert.Equal(t, 2, s.Size())
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("c"))

	s.Add("c")
	s.Remove("a")
	assert.Equal(t, []string{"b", "c"}, s.AsSortedSlice())
}

func TestStrSetIntersectUnion(t *testing.T) {
	a := NewStrSet([]string{"x", "y"})
	b := NewStrSet([]string{"y", "z"})

	assert.Equal(t, []string{"y"}, a.Intersect(b).AsSortedSlice())
	assert.Equal(t, []string{"x", "y", "z"}, a.Union(b).AsSortedSlice())
}
