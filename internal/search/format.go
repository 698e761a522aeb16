// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// FormatTable writes candidates as a human-readable table to w.
func FormatTable(out Output, w io.Writer) {
	if len(out.Candidates) == 0 {
		fmt.Fprintln(w, "No tables found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-24s  %-56s  %s\n", "Rank", "Table ID", "Title", "Source")
	fmt.Fprintln(w, strings.Repeat("-", 96))

	for i, c := range out.Candidates {
		title := c.Title
		if len(title) > 56 {
			title = title[:53] + "..."
		}
		fmt.Fprintf(w, "%-4d  %-24s  %-56s  %s\n", i+1, c.TableID, title, c.Source)
	}

	fmt.Fprintf(w, "\n%d tables", len(out.Candidates))
	if out.DupsRemoved > 0 {
		fmt.Fprintf(w, " (%d duplicates removed)", out.DupsRemoved)
	}
	if out.Dropped > 0 {
		fmt.Fprintf(w, " (%d unresolved hits dropped)", out.Dropped)
	}
	fmt.Fprintln(w)
}

// FormatJSON writes candidates as indented JSON to w.
func FormatJSON(out Output, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out.Candidates)
}
