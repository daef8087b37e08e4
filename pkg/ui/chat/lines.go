package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pario-ai/chatline/pkg/conversation"
)

// RunLines reads one message per line from r and writes each reply to w.
// Blank lines are skipped. It returns when r is exhausted or ctx is done.
func RunLines(ctx context.Context, session *conversation.Session, r io.Reader, w io.Writer) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		reply, err := session.Submit(ctx, sc.Text())
		if errors.Is(err, conversation.ErrEmptyMessage) {
			continue
		}
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, reply.Content); err != nil {
			return fmt.Errorf("write reply: %w", err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}
