package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hupe1980/trident"
)

// readTriples parses one "s p o" triple of term IDs per line. Blank lines
// and lines starting with '#' are skipped; a trailing " ." is accepted.
func readTriples(r io.Reader) ([]trident.Triple, error) {
	var out []trident.Triple
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || text[0] == '#' {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) == 4 && fields[3] == "." {
			fields = fields[:3]
		}
		if len(fields) != 3 {
			return nil, fmt.Errorf("line %d: expected 3 terms, got %d", line, len(fields))
		}
		var t [3]int64
		for i, f := range fields {
			v, err := strconv.ParseInt(f, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			t[i] = v
		}
		out = append(out, trident.Triple{S: t[0], P: t[1], O: t[2]})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// loadTriples reads triples from path, or from stdin when path is "-".
func loadTriples(path string, stdin io.Reader) ([]trident.Triple, error) {
	if path == "-" {
		return readTriples(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readTriples(f)
}

// parseTerm parses a pattern position. "?", "*" and "_" are unbound.
func parseTerm(s string) (int64, error) {
	switch s {
	case "?", "*", "_":
		return trident.Any, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid term %q", s)
	}
	if v < 0 || v > trident.MaxTerm {
		return 0, fmt.Errorf("term %d out of range", v)
	}
	return v, nil
}

func parsePattern(args []string) (s, p, o int64, err error) {
	var t [3]int64
	for i, a := range args {
		if t[i], err = parseTerm(a); err != nil {
			return 0, 0, 0, err
		}
	}
	return t[0], t[1], t[2], nil
}
