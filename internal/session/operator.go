package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// DefaultPrompt is shown when the listing does not load on its own.
const DefaultPrompt = "Please log in manually or solve CAPTCHA if needed. Type 'S' to stop or press ENTER to retry: "

// Operator is asked to intervene when the session cannot authenticate by
// itself. Confirm blocks until the operator answers; true means retry.
type Operator interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// OperatorFunc adapts a function to Operator.
type OperatorFunc func(ctx context.Context, prompt string) (bool, error)

func (f OperatorFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// AutoOperator answers every prompt with Answer. It is used for headless runs.
type AutoOperator struct {
	Answer bool
}

func (a AutoOperator) Confirm(_ context.Context, _ string) (bool, error) {
	return a.Answer, nil
}

// TerminalOperator prompts on Out and reads one line from In. ENTER retries,
// S stops. End of input also stops. A single goroutine reads In for the
// operator's lifetime, so a Confirm abandoned by cancellation leaves its
// pending line to the next call.
type TerminalOperator struct {
	in    *bufio.Reader
	out   io.Writer
	once  sync.Once
	lines chan answer
}

func NewTerminalOperator(in io.Reader, out io.Writer) *TerminalOperator {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return &TerminalOperator{in: bufio.NewReader(in), out: out, lines: make(chan answer)}
}

type answer struct {
	line string
	err  error
}

// read feeds lines until In fails, then closes the channel.
func (t *TerminalOperator) read() {
	defer close(t.lines)
	for {
		line, err := t.in.ReadString('\n')
		if line != "" || err == nil {
			t.lines <- answer{line: line}
		}
		if err != nil {
			if err != io.EOF {
				t.lines <- answer{err: err}
			}
			return
		}
	}
}

func (t *TerminalOperator) Confirm(ctx context.Context, prompt string) (bool, error) {
	if _, err := fmt.Fprint(t.out, prompt); err != nil {
		return false, fmt.Errorf("write prompt: %w", err)
	}
	t.once.Do(func() { go t.read() })

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a, ok := <-t.lines:
		if !ok {
			return false, nil
		}
		if a.err != nil {
			return false, fmt.Errorf("read answer: %w", a.err)
		}
		return !strings.EqualFold(strings.TrimSpace(a.line), "s"), nil
	}
}
