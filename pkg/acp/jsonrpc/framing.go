package jsonrpc

import (
	"bufio"
	"encoding/json"
	"io"
)

// maxLineSize bounds a single JSON document on the wire. Agents stream tool
// output inline, so lines can get large.
const maxLineSize = 1024 * 1024

// WriteMessage serializes v and writes it as a single newline-terminated
// JSON document. The caller is responsible for serializing concurrent writes.
func WriteMessage(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// NewLineScanner returns a scanner reading one message per line from r,
// sized for large streamed documents.
func NewLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineSize)
	return scanner
}
