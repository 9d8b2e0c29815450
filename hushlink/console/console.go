// Package console is the local user's side of the endpoint: bounded line
// input, PIN entry and the configuration menus.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/TheusHen/hushlink/hushlink/crypto"
	"github.com/TheusHen/hushlink/hushlink/custody"
	"github.com/TheusHen/hushlink/hushlink/fault"
)

var (
	ErrNoChoice = errors.New("console: no valid choice")
)

// Prompter reads from the user and writes prompts back.
type Prompter struct {
	in     *bufio.Reader
	out    io.Writer
	params custody.Params
}

// New wraps in and out. PIN entry is bounded by p.
func New(in io.Reader, out io.Writer, p custody.Params) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out, params: p}
}

// readRaw reads one line of at most max bytes, newline included. If the line
// is longer, the excess up to and including the newline is discarded and
// overflow is set. A final line without a newline is returned as is.
func (p *Prompter) readRaw(max int) (line []byte, overflow bool, err error) {
	for {
		b, err := p.in.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && (len(line) > 0 || overflow) {
				return line, overflow, nil
			}
			return line, overflow, err
		}
		if len(line) < max {
			line = append(line, b)
		} else {
			overflow = true
		}
		if b == '\n' {
			return line, overflow, nil
		}
	}
}

// ReadLine implements channel.LineSource. The line always ends with a
// newline; one that does not fit in max bytes is cut to max-1 bytes plus the
// newline.
func (p *Prompter) ReadLine(max int) ([]byte, bool, error) {
	if max < 1 {
		return nil, false, fault.E(fault.KindInput, "console.ReadLine", fmt.Errorf("invalid bound %d", max))
	}
	line, overflow, err := p.readRaw(max)
	if err != nil {
		crypto.Wipe(line)
		return nil, false, err
	}
	truncated := overflow
	if n := len(line); n == 0 || line[n-1] != '\n' {
		if n == max {
			line = line[:max-1]
			truncated = true
		}
		line = append(line, '\n')
	}
	return line, truncated, nil
}

// ReadPIN implements custody.PINReader. It returns the raw line so custody
// can validate it; overlong input is drained and reported as too long.
func (p *Prompter) ReadPIN() ([]byte, error) {
	fmt.Fprintf(p.out, "Enter %d-digit PIN: ", p.params.PINLength)
	line, overflow, err := p.readRaw(p.params.PINBufferSize)
	if err != nil {
		crypto.Wipe(line)
		return nil, fault.E(fault.KindInput, "console.ReadPIN", err)
	}
	if overflow {
		crypto.Wipe(line)
		return nil, fault.E(fault.KindInput, "console.ReadPIN", custody.ErrPINLength)
	}
	return line, nil
}

// Ask prints question and returns the trimmed answer.
func (p *Prompter) Ask(question string, max int) (string, error) {
	fmt.Fprint(p.out, question)
	line, overflow, err := p.readRaw(max)
	if err != nil {
		return "", fault.E(fault.KindInput, "console.Ask", err)
	}
	if overflow {
		fmt.Fprintf(p.out, "warning: input cut to %d bytes\n", max)
	}
	return strings.TrimSpace(string(line)), nil
}

// Choose shows a numbered menu and returns the index of the picked option.
// Out-of-range answers are asked again up to attempts times.
func (p *Prompter) Choose(question string, options []string, attempts int) (int, error) {
	for try := 0; try < attempts; try++ {
		fmt.Fprintln(p.out, question)
		for i, o := range options {
			fmt.Fprintf(p.out, "  %d) %s\n", i+1, o)
		}
		answer, err := p.Ask("> ", 8)
		if err != nil {
			return 0, err
		}
		var n int
		if _, err := fmt.Sscanf(answer, "%d", &n); err == nil && n >= 1 && n <= len(options) {
			return n - 1, nil
		}
		fmt.Fprintln(p.out, "invalid choice")
	}
	return 0, fault.E(fault.KindInput, "console.Choose", ErrNoChoice)
}

// Say writes a line to the user.
func (p *Prompter) Say(format string, args ...interface{}) {
	fmt.Fprintf(p.out, format+"\n", args...)
}
