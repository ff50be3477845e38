// Copyright 2026 Mutscan Authors. All rights reserved.
// Licensed under the Apache License, version 2.0:
// http://www.apache.org/licenses/LICENSE-2.0

package set

import "sort"

// StrSet is a simple set of strings.
type StrSet struct {
	items map[string]bool
}

// NewStrSet creates a set from a list of strings.
func NewStrSet(items []string) *StrSet {
	s := &StrSet{make(map[string]bool, len(items))}
	for _, item := range items {
		s.items[item] = true
	}
	return s
}

// Add adds a string to the set.
func (s *StrSet) Add(item string) {
	s.items[item] = true
}

// Remove removes a string from the set.
func (s *StrSet) Remove(item string) {
	delete(s.items, item)
}

// Contains returns true if the set contains the given string.
func (s *StrSet) Contains(item string) bool {
	return s.items[item]
}

// Size returns the number of elements in the set.
func (s *StrSet) Size() int {
	return len(s.items)
}

// Intersect returns a new set containing the strings present in both sets.
func (s *StrSet) Intersect(other *StrSet) *StrSet {
	result := NewStrSet(nil)
	for item := range s.items {
		if other.Contains(item) {
			result.Add(item)
		}
	}
	return result
}

// Union returns a new set containing the strings present in either set.
func (s *StrSet) Union(other *StrSet) *StrSet {
	result := NewStrSet(nil)
	for item := range s.items {
		result.Add(item)
	}
	for item := range other.items {
		result.Add(item)
	}
	return result
}

// AsSortedSlice returns the set's members as a sorted slice.
func (s *StrSet) AsSortedSlice() []string {
	items := make([]string, 0, len(s.items))
	for item := range s.items {
		items = append(items, item)
	}
	sort.Strings(items)
	return items
}
