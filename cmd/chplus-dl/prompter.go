package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// consolePrompter implements channel.Prompter on an interactive terminal.
type consolePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newConsolePrompter() *consolePrompter {
	return &consolePrompter{in: bufio.NewReader(os.Stdin), out: os.Stdout}
}

// Confirm asks a yes/no question. Empty input and read failures yield the
// default, so a closed stdin never blocks a batch.
func (p *consolePrompter) Confirm(question string, def bool) bool {
	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	fmt.Fprintf(p.out, "%s %s ", question, hint)

	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return def
	}
}

// SelectMany lists all items with their completion marks and reads a
// comma/range selection. Empty input selects everything not yet done.
func (p *consolePrompter) SelectMany(items []string, done []bool) []int {
	for i, item := range items {
		mark := " "
		if done[i] {
			mark = "x"
		}
		fmt.Fprintf(p.out, "%3d [%s] %s\n", i+1, mark, item)
	}
	fmt.Fprint(p.out, "Videos to download (e.g. 1,3-5; empty for all): ")

	line, _ := p.in.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		var all []int
		for i := range items {
			if !done[i] {
				all = append(all, i)
			}
		}
		return all
	}
	return parseSelection(line, len(items))
}

// parseSelection parses a 1-based "1,3-5" style selection into 0-based
// indexes, dropping anything out of range.
func parseSelection(line string, n int) []int {
	seen := make(map[int]bool)
	var out []int
	add := func(i int) {
		if i >= 1 && i <= n && !seen[i] {
			seen[i] = true
			out = append(out, i-1)
		}
	}

	for _, token := range strings.Split(line, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(token, "-"); ok {
			start, err1 := strconv.Atoi(strings.TrimSpace(lo))
			end, err2 := strconv.Atoi(strings.TrimSpace(hi))
			if err1 != nil || err2 != nil {
				continue
			}
			for i := start; i <= end; i++ {
				add(i)
			}
			continue
		}
		if v, err := strconv.Atoi(token); err == nil {
			add(v)
		}
	}
	return out
}
