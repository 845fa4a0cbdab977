package secret

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Terminal prompts on a terminal with echo turned off. When the input is
// not a terminal (a pipe in scripts or tests) lines are read as-is.
type Terminal struct {
	in     *os.File
	out    io.Writer
	reader *bufio.Reader

	// pending holds a line read still in flight after a canceled prompt.
	pending chan lineResult
}

type lineResult struct {
	line string
	err  error
}

// NewTerminal creates a Terminal reading from in and prompting on out.
func NewTerminal(in *os.File, out io.Writer) *Terminal {
	return &Terminal{in: in, out: out, reader: bufio.NewReader(in)}
}

// ReadSecret prints prompt and reads one line. If ctx is canceled while
// waiting it returns ctx.Err(), restoring the terminal state first.
func (t *Terminal) ReadSecret(ctx context.Context, prompt string) (string, error) {
	fmt.Fprint(t.out, prompt)

	fd := int(t.in.Fd())
	if !term.IsTerminal(fd) {
		return t.readLine(ctx)
	}

	state, err := term.GetState(fd)
	if err != nil {
		return "", fmt.Errorf("read terminal state: %w", err)
	}

	type result struct {
		b   []byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		b, err := term.ReadPassword(fd)
		ch <- result{b, err}
	}()

	select {
	case r := <-ch:
		fmt.Fprintln(t.out)
		return string(r.b), r.err
	case <-ctx.Done():
		_ = term.Restore(fd, state)
		fmt.Fprintln(t.out)
		return "", ctx.Err()
	}
}

// readLine reads one line from a non-terminal input. A read left running
// by a canceled call is picked up by the next one.
func (t *Terminal) readLine(ctx context.Context) (string, error) {
	ch := t.pending
	if ch == nil {
		ch = make(chan lineResult, 1)
		go func() {
			line, err := t.reader.ReadString('\n')
			ch <- lineResult{line, err}
		}()
	}

	select {
	case r := <-ch:
		t.pending = nil
		if r.err != nil && (r.err != io.EOF || r.line == "") {
			return "", r.err
		}
		return strings.TrimRight(r.line, "\r\n"), nil
	case <-ctx.Done():
		t.pending = ch
		fmt.Fprintln(t.out)
		return "", ctx.Err()
	}
}
