package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"esign-archiver/internal/domain/entity"
)

// Signal asks the operator to confirm on the terminal that the request was signed.
// Enter (or y/yes) confirms; n/no/q or end of input declines.
type Signal struct {
	in  io.Reader
	out io.Writer
}

func NewSignal(in io.Reader, out io.Writer) *Signal {
	return &Signal{in: in, out: out}
}

type answer struct {
	line string
	err  error
}

func (s *Signal) Wait(ctx context.Context, req *entity.SignatureRequest) (bool, error) {
	fmt.Fprintf(s.out, "Envelope %s sent to %s.\n", req.ID, req.Recipient.Email)
	fmt.Fprint(s.out, "After the envelope is completed (signed), press Enter to archive it, or type n to skip: ")

	answers := make(chan answer, 1)
	go func() {
		line, err := bufio.NewReader(s.in).ReadString('\n')
		answers <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(s.out)
		return false, ctx.Err()
	case a := <-answers:
		switch {
		case a.err == nil:
		case errors.Is(a.err, io.EOF):
			// no terminal attached
			if a.line == "" {
				return false, nil
			}
		default:
			return false, fmt.Errorf("failed to read confirmation: %w", a.err)
		}
		return confirmed(a.line), nil
	}
}

func confirmed(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "n", "no", "q", "quit":
		return false
	}
	return true
}
