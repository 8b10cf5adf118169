package base

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
)

// collect returns a LineBuffer that records every emitted line
func collect(maxLine int) (*LineBuffer, *[]string) {
	var lines []string
	return NewLineBuffer(maxLine, func(line []byte) error {
		lines = append(lines, string(line))
		return nil
	}), &lines
}

func TestLineBufferSplits(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   []string
	}{
		{"single line", []string{"a\n"}, []string{"a"}},
		{"two lines one chunk", []string{"a\nb\n"}, []string{"a", "b"}},
		{"split across chunks", []string{"{\"ca", "ll\":1}\n"}, []string{`{"call":1}`}},
		{"crlf", []string{"a\r\nb\r", "\n"}, []string{"a", "b"}},
		{"empty lines skipped", []string{"\n\r\na\n\n"}, []string{"a"}},
		{"incomplete tail kept", []string{"a\nb"}, []string{"a"}},
		{"byte by byte", strings.Split("ab\ncd\n", ""), []string{"ab", "cd"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lb, got := collect(0)
			for _, c := range tt.chunks {
				if err := lb.Push([]byte(c)); err != nil {
					t.Fatalf("Push(%q) failed: %v", c, err)
				}
			}
			if !reflect.DeepEqual(*got, tt.want) {
				t.Errorf("got lines %q, want %q", *got, tt.want)
			}
		})
	}
}

func TestLineBufferPending(t *testing.T) {
	lb, got := collect(0)
	if err := lb.Push([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	if lb.Pending() != 3 {
		t.Errorf("Pending() = %d, want 3", lb.Pending())
	}
	if err := lb.Push([]byte("\n")); err != nil {
		t.Fatal(err)
	}
	if lb.Pending() != 0 || len(*got) != 1 {
		t.Errorf("expected one line and nothing pending, got %q / %d", *got, lb.Pending())
	}
}

func TestLineBufferMaxLine(t *testing.T) {
	lb, _ := collect(4)
	if err := lb.Push([]byte("abcd\n")); err != nil {
		t.Fatalf("line at the limit rejected: %v", err)
	}
	if err := lb.Push([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	if err := lb.Push([]byte("de")); !errors.Is(err, ErrLineTooLong) {
		t.Errorf("expected ErrLineTooLong for unterminated line, got %v", err)
	}

	lb, _ = collect(4)
	if err := lb.Push([]byte("abcdef\n")); !errors.Is(err, ErrLineTooLong) {
		t.Errorf("expected ErrLineTooLong for terminated line, got %v", err)
	}
}

func TestLineBufferEmitError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	lb := NewLineBuffer(0, func(line []byte) error {
		calls++
		return stop
	})
	if err := lb.Push([]byte("a\nb\n")); !errors.Is(err, stop) {
		t.Errorf("expected emit error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("emit called %d times, want 1", calls)
	}
}

func TestLineBufferReadFrom(t *testing.T) {
	lb, got := collect(0)
	err := lb.ReadFrom(bytes.NewBufferString("one\ntwo\nthree"))
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
	if want := []string{"one", "two"}; !reflect.DeepEqual(*got, want) {
		t.Errorf("got lines %q, want %q", *got, want)
	}
}
