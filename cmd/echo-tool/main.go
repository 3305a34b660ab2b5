// echo-tool reads one JSON value per line from stdin and echoes it back in a
// response envelope, one line per request. It is the reference tool used to
// validate the gateway's stdio-to-SSE piping: stdout is written unbuffered so
// every response reaches the consumer as soon as it is produced.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

type echoResponse struct {
	Tool   string          `json:"tool"`
	Result json.RawMessage `json:"result"`
	Done   bool            `json:"done"`
}

type errorResponse struct {
	Error string `json:"error"`
	Done  bool   `json:"done"`
}

func main() {
	if err := run(os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "echo-tool:", err)
		os.Exit(1)
	}
}

// run is the read-parse-reply loop. It returns nil on end of input; a write
// error is fatal because the consumer of the stream is gone.
func run(in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}

		var msg json.RawMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			if werr := writeLine(out, errorResponse{Error: "invalid json", Done: true}); werr != nil {
				return werr
			}
			continue
		}

		if err := writeLine(out, echoResponse{Tool: "echo", Result: msg, Done: true}); err != nil {
			return err
		}
	}
	return sc.Err()
}

func writeLine(out io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = out.Write(append(b, '\n'))
	return err
}
