/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package presentation

import (
	"regexp"
	"strings"
)

// A blank line (two or more newlines, whitespace allowed between them) or a
// line made only of three or more hyphens separates slides.
var slideSeparator = regexp.MustCompile(`(?m)\n(?:[ \t]*\n)+|^[ \t]*-{3,}[ \t]*$`)

// SplitSlides partitions free text into trimmed, non-empty slides.
func SplitSlides(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	parts := slideSeparator.Split(content, -1)
	slides := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		slides = append(slides, part)
	}
	return slides
}
