package sse

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"
	"time"
)

// Event is one dispatched server-sent event.
type Event struct {
	Name  string
	ID    string
	Data  []byte
	Retry time.Duration
}

// Decoder reads server-sent events following the EventSource processing
// rules: lines end in LF, CR or CRLF; a blank line dispatches; events without
// data are dropped; an unterminated event at EOF is discarded.
type Decoder struct {
	scanner     *bufio.Scanner
	lastEventID string
}

func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 2*1024*1024)
	scanner.Split(scanLines)
	return &Decoder{scanner: scanner}
}

// Next returns the next event or io.EOF once the stream ended cleanly.
func (d *Decoder) Next() (Event, error) {
	var (
		name    string
		data    bytes.Buffer
		hasData bool
		retry   time.Duration
	)

	for d.scanner.Scan() {
		line := d.scanner.Text()
		if line == "" {
			if !hasData {
				name = ""
				retry = 0
				continue
			}
			payload := bytes.TrimSuffix(data.Bytes(), []byte("\n"))
			if name == "" {
				name = "message"
			}
			return Event{
				Name:  name,
				ID:    d.lastEventID,
				Data:  append([]byte(nil), payload...),
				Retry: retry,
			}, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := line, ""
		if i := strings.IndexByte(line, ':'); i >= 0 {
			field = line[:i]
			value = strings.TrimPrefix(line[i+1:], " ")
		}

		switch field {
		case "event":
			name = value
		case "data":
			data.WriteString(value)
			data.WriteByte('\n')
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				d.lastEventID = value
			}
		case "retry":
			if ms, err := strconv.ParseUint(value, 10, 32); err == nil {
				retry = time.Duration(ms) * time.Millisecond
			}
		}
	}

	if err := d.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}

// scanLines splits on LF, CR or CRLF.
func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if atEOF {
			return i + 1, data[:i], nil
		}
		// A trailing CR may be the first half of CRLF.
		return 0, nil, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
