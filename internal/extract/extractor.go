// Package extract incrementally parses a model token stream into discrete
// file-level operations. Chunk boundaries are arbitrary: a header may be
// split from its fence, a fence from its content, or a single line across
// several chunks, so the extractor buffers partial lines between calls.
package extract

import "strings"

// Verb classifies what an operation does to its target path.
type Verb string

const (
	VerbCreate Verb = "create"
	VerbUpdate Verb = "update"
	VerbDelete Verb = "delete"
)

// Operation is one finalized file operation. Immutable once emitted.
type Operation struct {
	Verb    Verb
	Path    string
	Content string
}

// ═══════════════════════════════════════════════════════════════════════════════
// STATE MACHINE
// ═══════════════════════════════════════════════════════════════════════════════

type state int

const (
	// stateIdle scans for an operation header line.
	stateIdle state = iota
	// stateHeaderSeen has a pending operation and waits for an opening fence.
	stateHeaderSeen
	// stateInBlock accumulates content until the closing fence.
	stateInBlock
)

type pending struct {
	verbPhrase string
	path       string
	lines      []string
}

// Extractor is a streaming state machine over line-delimited chunks.
//
// Known limitation: nested fences are not supported. A fence marker inside
// a block always closes the block, so content containing its own fenced
// snippets is truncated at the inner fence.
type Extractor struct {
	state   state
	partial strings.Builder
	current *pending
	queue   []Operation
}

// New returns an extractor in the idle state.
func New() *Extractor {
	return &Extractor{}
}

// Feed consumes one chunk and returns at most the first operation finalized
// within it. Additional completions are queued; callers drain them by
// calling Feed again (an empty chunk is fine). Malformed or unmatched
// markers produce nothing.
func (e *Extractor) Feed(chunk string) (*Operation, bool) {
	e.partial.WriteString(chunk)

	buffered := e.partial.String()
	for {
		idx := strings.IndexByte(buffered, '\n')
		if idx < 0 {
			break
		}
		e.processLine(strings.TrimSuffix(buffered[:idx], "\r"))
		buffered = buffered[idx+1:]
	}
	e.partial.Reset()
	e.partial.WriteString(buffered)

	return e.dequeue()
}

// Flush processes any buffered partial line as a final line and returns at
// most one finalized operation. An unclosed block is discarded, not emitted.
func (e *Extractor) Flush() (*Operation, bool) {
	if e.partial.Len() > 0 {
		line := strings.TrimSuffix(e.partial.String(), "\r")
		e.partial.Reset()
		e.processLine(line)
	}
	e.state = stateIdle
	e.current = nil
	return e.dequeue()
}

func (e *Extractor) dequeue() (*Operation, bool) {
	if len(e.queue) == 0 {
		return nil, false
	}
	op := e.queue[0]
	e.queue = e.queue[1:]
	return &op, true
}

func (e *Extractor) processLine(line string) {
	switch e.state {
	case stateIdle:
		if p, ok := parseHeader(line); ok {
			e.current = p
			e.state = stateHeaderSeen
		}
	case stateHeaderSeen:
		switch {
		case isFence(line):
			e.state = stateInBlock
		default:
			if p, ok := parseHeader(line); ok {
				// A new header replaces the pending one.
				e.current = p
				return
			}
			if strings.TrimSpace(line) == "" {
				// Blank lines between header and fence are tolerated.
				return
			}
			// Prose after a header without a fence cancels it.
			e.current = nil
			e.state = stateIdle
		}
	case stateInBlock:
		if isFence(line) {
			e.finalize()
			return
		}
		e.current.lines = append(e.current.lines, line)
	}
}

// finalize turns the pending operation into an immutable Operation. Content
// is newline-joined with no trailing newline.
func (e *Extractor) finalize() {
	e.queue = append(e.queue, Operation{
		Verb:    mapVerb(e.current.verbPhrase),
		Path:    e.current.path,
		Content: strings.Join(e.current.lines, "\n"),
	})
	e.current = nil
	e.state = stateIdle
}

// ═══════════════════════════════════════════════════════════════════════════════
// LINE RECOGNITION
// ═══════════════════════════════════════════════════════════════════════════════

// parseHeader recognizes "<verb phrase> `<path>`:" without regex. The verb
// phrase must be non-empty, the backtick-quoted path non-empty, and nothing
// but the colon may follow the closing backtick.
func parseHeader(line string) (*pending, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasSuffix(trimmed, ":") {
		return nil, false
	}
	trimmed = strings.TrimSuffix(trimmed, ":")

	open := strings.IndexByte(trimmed, '`')
	if open < 0 {
		return nil, false
	}
	rest := trimmed[open+1:]
	end := strings.IndexByte(rest, '`')
	if end < 0 {
		return nil, false
	}

	verbPhrase := strings.TrimSpace(trimmed[:open])
	path := rest[:end]
	trailer := strings.TrimSpace(rest[end+1:])
	if verbPhrase == "" || path == "" || trailer != "" {
		return nil, false
	}

	return &pending{verbPhrase: verbPhrase, path: path}, true
}

// isFence matches a line of exactly ``` plus an optional language tag. The
// tag may not contain whitespace or further backticks.
func isFence(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "```") {
		return false
	}
	tag := trimmed[3:]
	if tag == "" {
		return true
	}
	return !strings.ContainsAny(tag, " \t`")
}

// mapVerb maps a header verb phrase onto an operation verb. Unrecognized
// phrases default to create.
func mapVerb(phrase string) Verb {
	lower := strings.ToLower(phrase)
	switch {
	case strings.Contains(lower, "deleting"):
		return VerbDelete
	case strings.Contains(lower, "updating"), strings.Contains(lower, "modifying"):
		return VerbUpdate
	case strings.Contains(lower, "creating"),
		strings.Contains(lower, "writing to"),
		strings.Contains(lower, "adding to"):
		return VerbCreate
	default:
		return VerbCreate
	}
}
