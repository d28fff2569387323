package trial

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrQuit is returned by ConsoleResponder when the operator types quit.
var ErrQuit = errors.New("operator quit")

// ConsoleResponder scores trials from operator input, one line per trial:
// "c" / "y" for correct, "i" / "n" for incorrect.
type ConsoleResponder struct {
	in  *bufio.Scanner
	out io.Writer
	now func() time.Time
}

// NewConsoleResponder reads scores from in and prompts on out.
func NewConsoleResponder(in io.Reader, out io.Writer) *ConsoleResponder {
	return &ConsoleResponder{in: bufio.NewScanner(in), out: out, now: time.Now}
}

// Respond prompts for a score until a valid one is entered.
func (c *ConsoleResponder) Respond(ctx context.Context, p Presentation) (Response, error) {
	presence := "present"
	if !p.StimulusPresent {
		presence = "absent"
	}
	start := c.now()
	for {
		if err := ctx.Err(); err != nil {
			return Response{}, err
		}
		fmt.Fprintf(c.out, "[%s #%d] value=%.5f target=%s soa=%.4f > ", p.Staircase, p.TrialNumber, p.Value, presence, p.Trial.SOA)
		if !c.in.Scan() {
			if err := c.in.Err(); err != nil {
				return Response{}, fmt.Errorf("read input: %w", err)
			}
			return Response{}, io.EOF
		}
		switch strings.ToLower(strings.TrimSpace(c.in.Text())) {
		case "c", "y", "correct":
			return Response{Key: "c", Correct: true, RT: c.now().Sub(start)}, nil
		case "i", "n", "incorrect":
			return Response{Key: "i", Correct: false, RT: c.now().Sub(start)}, nil
		case "quit", "exit", "q":
			return Response{}, ErrQuit
		default:
			fmt.Fprintln(c.out, "enter c (correct), i (incorrect) or quit")
		}
	}
}
