package fileutil

import (
	"sort"
	"strings"
)

// Group is a set of same-origin files that share a base name and differ only
// by extension (volume, sidecar, bval/bvec).
type Group struct {
	Base  string
	Files []string
}

// GroupByBase groups paths by SplitName base, preserving path order within a
// group. Groups are returned sorted by base name.
func GroupByBase(paths []string) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, p := range paths {
		base, _ := SplitName(p)
		i, ok := index[base]
		if !ok {
			i = len(groups)
			index[base] = i
			groups = append(groups, Group{Base: base})
		}
		groups[i].Files = append(groups[i].Files, p)
	}
	sort.Slice(groups, func(a, b int) bool { return groups[a].Base < groups[b].Base })
	return groups
}

// Sidecar returns the group's JSON sidecar path, or "" when there is none.
func (g Group) Sidecar() string {
	for _, f := range g.Files {
		if Ext(f) == "json" {
			return f
		}
	}
	return ""
}

// Volume returns the group's first NIfTI volume, or "" when there is none.
func (g Group) Volume() string {
	for _, f := range g.Files {
		if strings.HasPrefix(Ext(f), "nii") {
			return f
		}
	}
	return ""
}

// Remove deletes every file in the group, returning the first error.
func (g Group) Remove() error {
	var first error
	for _, f := range g.Files {
		if err := removeIfExists(f); err != nil && first == nil {
			first = err
		}
	}
	return first
}
