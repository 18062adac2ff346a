// Package csvcheck validates Piper metadata files: one utterance per line,
// pipe-delimited as id|text or id|speaker|text.
package csvcheck

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

type MessageType string

const (
	TypeError   MessageType = "error"
	TypeWarning MessageType = "warning"
	TypeSuccess MessageType = "success"
)

const (
	msgEmpty        = "CSV is empty"
	msgFormat       = "invalid format, expected id|text or id|speaker|text"
	msgSeparators   = "too many separators"
	msgIDEmpty      = "id must not be empty"
	msgTextEmpty    = "text must not be empty"
	fieldSeparator  = "|"
	minFields       = 2
	maxFields       = 3
	speakerTextSlot = 2
)

type Message struct {
	Type MessageType `json:"type"`
	Text string      `json:"message"`
}

type Result struct {
	Valid    bool      `json:"valid"`
	Messages []Message `json:"messages"`
	Entries  int       `json:"entries"`
}

// Validate checks every non-blank line of content. A line gets at most one
// error; separator overflow is only a warning and leaves Valid untouched.
func Validate(content string) Result {
	lines := make([]string, 0, strings.Count(content, "\n")+1)
	for _, ln := range strings.Split(content, "\n") {
		ln = strings.TrimSpace(ln)
		if ln != "" {
			lines = append(lines, ln)
		}
	}
	return validateLines(lines)
}

// ValidateReader is Validate for files.
func ValidateReader(r io.Reader) (Result, error) {
	lines := []string{}
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for s.Scan() {
		ln := strings.TrimSpace(s.Text())
		if ln != "" {
			lines = append(lines, ln)
		}
	}
	if err := s.Err(); err != nil {
		return Result{}, fmt.Errorf("read metadata: %w", err)
	}
	return validateLines(lines), nil
}

func validateLines(lines []string) Result {
	res := Result{Valid: true, Entries: len(lines)}
	if len(lines) == 0 {
		res.Valid = false
		res.add(TypeError, msgEmpty)
		return res
	}
	for i, ln := range lines {
		lineNo := i + 1
		fields := strings.Split(ln, fieldSeparator)
		if len(fields) < minFields {
			res.Valid = false
			res.addLine(lineNo, TypeError, msgFormat)
			continue
		}
		if len(fields) > maxFields {
			res.addLine(lineNo, TypeWarning, msgSeparators)
		}
		if strings.TrimSpace(fields[0]) == "" {
			res.Valid = false
			res.addLine(lineNo, TypeError, msgIDEmpty)
			continue
		}
		textIdx := speakerTextSlot
		if len(fields) == minFields {
			textIdx = 1
		}
		if strings.TrimSpace(fields[textIdx]) == "" {
			res.Valid = false
			res.addLine(lineNo, TypeError, msgTextEmpty)
		}
	}
	if res.Valid && len(res.Messages) == 0 {
		res.add(TypeSuccess, fmt.Sprintf("%d entries found", len(lines)))
	}
	return res
}

func (r *Result) add(t MessageType, text string) {
	r.Messages = append(r.Messages, Message{Type: t, Text: text})
}

func (r *Result) addLine(lineNo int, t MessageType, text string) {
	r.add(t, fmt.Sprintf("line %d: %s", lineNo, text))
}

// Counts tallies messages per type.
func (r Result) Counts() map[MessageType]int {
	out := map[MessageType]int{}
	for _, m := range r.Messages {
		out[m.Type]++
	}
	return out
}

func (r Result) Errors() []string {
	out := []string{}
	for _, m := range r.Messages {
		if m.Type == TypeError {
			out = append(out, m.Text)
		}
	}
	return out
}

// Err folds the error messages into one error, nil when the content is valid.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	errs := r.Errors()
	if len(errs) == 1 {
		return fmt.Errorf("metadata invalid: %s", errs[0])
	}
	return fmt.Errorf("metadata invalid: %s (and %d more)", errs[0], len(errs)-1)
}
