package transfer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Unlimited is the tree depth that lists every level.
const Unlimited = -1

// RenderTree draws the directory tree under dir, descending depth levels
// (1 lists only the entries of dir, Unlimited lists everything). The
// first line is label; directories end with a slash.
func RenderTree(dir, label string, depth int) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", label)
	}
	if depth == 0 || depth < Unlimited {
		return "", fmt.Errorf("invalid depth %d", depth)
	}

	var sb strings.Builder
	sb.WriteString(label)
	if !strings.HasSuffix(label, "/") {
		sb.WriteString("/")
	}
	sb.WriteString("\n")
	if err := renderLevel(&sb, dir, "", depth); err != nil {
		return "", err
	}
	return strings.TrimSuffix(sb.String(), "\n"), nil
}

func renderLevel(sb *strings.Builder, dir, prefix string, depth int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for i, e := range entries {
		last := i == len(entries)-1
		branch, indent := "├── ", "│   "
		if last {
			branch, indent = "└── ", "    "
		}
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		sb.WriteString(prefix + branch + name + "\n")

		if e.IsDir() && (depth == Unlimited || depth > 1) {
			next := depth
			if next != Unlimited {
				next--
			}
			if err := renderLevel(sb, filepath.Join(dir, e.Name()), prefix+indent, next); err != nil {
				return err
			}
		}
	}
	return nil
}
