package stream

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"iter"
)

const maxLineBytes = 4 << 20

// ReadLines decodes one envelope per line of r. Blank lines are skipped. A
// line that fails to decode is yielded as an error and reading continues;
// an I/O error is yielded once and ends the sequence.
func ReadLines(r io.Reader) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		line := 0
		for sc.Scan() {
			line++
			data := bytes.TrimSpace(sc.Bytes())
			if len(data) == 0 {
				continue
			}
			ev, err := Decode(data)
			if err != nil {
				err = fmt.Errorf("line %d: %w", line, err)
			}
			if !yield(ev, err) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(nil, fmt.Errorf("read events: %w", err))
		}
	}
}

// Events yields evs in order.
func Events(evs ...Event) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for _, ev := range evs {
			if !yield(ev, nil) {
				return
			}
		}
	}
}
