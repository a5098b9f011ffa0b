package main

import (
	"bufio"
	"bytes"
	"reflect"
	"strings"
	"testing"
)

func promptWith(input string) *consolePrompter {
	return &consolePrompter{in: bufio.NewReader(strings.NewReader(input)), out: &bytes.Buffer{}}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		def   bool
		want  bool
	}{
		{"y\n", false, true},
		{"yes\n", false, true},
		{"n\n", true, false},
		{"no\n", true, false},
		{"\n", true, true},
		{"\n", false, false},
		{"whatever\n", true, true},
		{"", true, true}, // closed stdin
	}

	for _, tt := range tests {
		if got := promptWith(tt.input).Confirm("Proceed?", tt.def); got != tt.want {
			t.Errorf("Confirm(%q, def=%v) = %v, want %v", tt.input, tt.def, got, tt.want)
		}
	}
}

func TestSelectManyEmptySelectsAllPending(t *testing.T) {
	p := promptWith("\n")
	got := p.SelectMany([]string{"a", "b", "c"}, []bool{false, true, false})
	if want := []int{0, 2}; !reflect.DeepEqual(got, want) {
		t.Errorf("SelectMany = %v, want %v", got, want)
	}
}

func TestParseSelection(t *testing.T) {
	tests := []struct {
		line string
		n    int
		want []int
	}{
		{"1", 3, []int{0}},
		{"1,3", 3, []int{0, 2}},
		{"1-3", 5, []int{0, 1, 2}},
		{"2, 4-5", 5, []int{1, 3, 4}},
		{"1,1,1", 3, []int{0}},
		{"0,9", 3, nil},
		{"garbage", 3, nil},
		{"2-x", 3, nil},
	}

	for _, tt := range tests {
		if got := parseSelection(tt.line, tt.n); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseSelection(%q, %d) = %v, want %v", tt.line, tt.n, got, tt.want)
		}
	}
}
