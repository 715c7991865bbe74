package extract

import (
	"strings"
	"testing"
)

// drain feeds one chunk and collects every queued operation.
func drain(e *Extractor, chunk string) []Operation {
	var ops []Operation
	op, ok := e.Feed(chunk)
	for ok {
		ops = append(ops, *op)
		op, ok = e.Feed("")
	}
	return ops
}

func TestExtractor_SingleOperation(t *testing.T) {
	e := New()
	ops := drain(e, "Creating `a.txt`:\n```\nhello\n```\n")

	if len(ops) != 1 {
		t.Fatalf("got %d operations, want 1", len(ops))
	}
	if ops[0].Verb != VerbCreate {
		t.Errorf("verb = %s, want %s", ops[0].Verb, VerbCreate)
	}
	if ops[0].Path != "a.txt" {
		t.Errorf("path = %q, want %q", ops[0].Path, "a.txt")
	}
	if ops[0].Content != "hello" {
		t.Errorf("content = %q, want %q", ops[0].Content, "hello")
	}
}

// The same message split at every byte position must yield the identical
// single operation: chunk boundaries are arbitrary and may fall inside a
// header, a fence, or a content line.
func TestExtractor_ChunkBoundaryInvariance(t *testing.T) {
	msg := "Creating `a.txt`:\n```\nhello\n```\n"

	for split := 1; split < len(msg); split++ {
		e := New()
		var ops []Operation
		ops = append(ops, drain(e, msg[:split])...)
		ops = append(ops, drain(e, msg[split:])...)

		if len(ops) != 1 {
			t.Fatalf("split at %d: got %d operations, want 1", split, len(ops))
		}
		if ops[0].Verb != VerbCreate || ops[0].Path != "a.txt" || ops[0].Content != "hello" {
			t.Errorf("split at %d: got %+v", split, ops[0])
		}
	}
}

func TestExtractor_TokenSizedChunks(t *testing.T) {
	msg := "Updating `src/main.go`:\n```go\npackage main\n\nfunc main() {}\n```\n"

	e := New()
	var ops []Operation
	for _, r := range msg {
		ops = append(ops, drain(e, string(r))...)
	}

	if len(ops) != 1 {
		t.Fatalf("got %d operations, want 1", len(ops))
	}
	if ops[0].Verb != VerbUpdate {
		t.Errorf("verb = %s, want %s", ops[0].Verb, VerbUpdate)
	}
	if ops[0].Content != "package main\n\nfunc main() {}" {
		t.Errorf("content = %q", ops[0].Content)
	}
}

func TestExtractor_VerbMapping(t *testing.T) {
	tests := []struct {
		header string
		verb   Verb
	}{
		{"Creating `a.txt`:", VerbCreate},
		{"Writing to `a.txt`:", VerbCreate},
		{"Adding to `a.txt`:", VerbCreate},
		{"Updating `a.txt`:", VerbUpdate},
		{"Modifying `a.txt`:", VerbUpdate},
		{"Deleting `a.txt`:", VerbDelete},
		// Unrecognized verbs still finalize as create once the fence closes.
		{"Renaming `a.txt`:", VerbCreate},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			e := New()
			ops := drain(e, tt.header+"\n```\nx\n```\n")
			if len(ops) != 1 {
				t.Fatalf("got %d operations, want 1", len(ops))
			}
			if ops[0].Verb != tt.verb {
				t.Errorf("verb = %s, want %s", ops[0].Verb, tt.verb)
			}
		})
	}
}

func TestExtractor_MultipleOperations(t *testing.T) {
	msg := "Creating `a.txt`:\n```\none\n```\nsome prose\nDeleting `b.txt`:\n```\n```\n"

	e := New()
	ops := drain(e, msg)

	if len(ops) != 2 {
		t.Fatalf("got %d operations, want 2", len(ops))
	}
	if ops[0].Path != "a.txt" || ops[0].Content != "one" {
		t.Errorf("first = %+v", ops[0])
	}
	if ops[1].Verb != VerbDelete || ops[1].Path != "b.txt" || ops[1].Content != "" {
		t.Errorf("second = %+v", ops[1])
	}
}

func TestExtractor_MalformedProducesNothing(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"fence without header", "```\nhello\n```\n"},
		{"header without path", "Creating a.txt:\n```\nhello\n```\n"},
		{"header without colon", "Creating `a.txt`\n```\nhello\n```\n"},
		{"header with empty path", "Creating ``:\n```\nhello\n```\n"},
		{"unclosed fence at stream end", "Creating `a.txt`:\n```\nhello\n"},
		{"trailing text after path", "Creating `a.txt` now:\n```\nhi\n```\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New()
			ops := drain(e, tt.input)
			if op, ok := e.Flush(); ok {
				ops = append(ops, *op)
			}
			if len(ops) != 0 {
				t.Errorf("got %d operations, want 0: %+v", len(ops), ops)
			}
		})
	}
}

func TestExtractor_HeaderReplacesPendingHeader(t *testing.T) {
	e := New()
	ops := drain(e, "Creating `a.txt`:\nDeleting `b.txt`:\n```\nx\n```\n")

	if len(ops) != 1 {
		t.Fatalf("got %d operations, want 1", len(ops))
	}
	if ops[0].Verb != VerbDelete || ops[0].Path != "b.txt" {
		t.Errorf("got %+v, want delete b.txt", ops[0])
	}
}

func TestExtractor_BlankLinesBetweenHeaderAndFence(t *testing.T) {
	e := New()
	ops := drain(e, "Creating `a.txt`:\n\n\n```\nhello\n```\n")

	if len(ops) != 1 {
		t.Fatalf("got %d operations, want 1", len(ops))
	}
}

func TestExtractor_ProseCancelsPendingHeader(t *testing.T) {
	e := New()
	ops := drain(e, "Creating `a.txt`:\nActually, never mind.\n```\norphan\n```\n")

	if len(ops) != 0 {
		t.Errorf("got %d operations, want 0", len(ops))
	}
}

func TestExtractor_FenceWithLanguageTag(t *testing.T) {
	e := New()
	ops := drain(e, "Creating `main.go`:\n```go\npackage main\n```\n")

	if len(ops) != 1 {
		t.Fatalf("got %d operations, want 1", len(ops))
	}
	if ops[0].Content != "package main" {
		t.Errorf("content = %q", ops[0].Content)
	}
}

func TestExtractor_MultilineContentJoin(t *testing.T) {
	lines := []string{"line one", "", "line three"}
	e := New()
	ops := drain(e, "Creating `a.txt`:\n```\n"+strings.Join(lines, "\n")+"\n```\n")

	if len(ops) != 1 {
		t.Fatalf("got %d operations, want 1", len(ops))
	}
	want := strings.Join(lines, "\n")
	if ops[0].Content != want {
		t.Errorf("content = %q, want %q", ops[0].Content, want)
	}
}

func TestExtractor_FlushHandlesFinalLineWithoutNewline(t *testing.T) {
	e := New()
	ops := drain(e, "Creating `a.txt`:\n```\nhello\n```")

	if len(ops) != 0 {
		t.Fatalf("closing fence without newline should not finalize in Feed")
	}
	op, ok := e.Flush()
	if !ok {
		t.Fatal("Flush did not finalize the operation")
	}
	if op.Content != "hello" {
		t.Errorf("content = %q, want %q", op.Content, "hello")
	}
}

func TestExtractor_ReusableAfterCompletion(t *testing.T) {
	e := New()
	first := drain(e, "Creating `a.txt`:\n```\none\n```\n")
	second := drain(e, "Updating `b.txt`:\n```\ntwo\n```\n")

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("got %d and %d operations, want 1 and 1", len(first), len(second))
	}
	if second[0].Path != "b.txt" || second[0].Content != "two" {
		t.Errorf("second = %+v", second[0])
	}
}
