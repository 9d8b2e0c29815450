package channel

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/TheusHen/hushlink/hushlink/crypto"
	"github.com/TheusHen/hushlink/hushlink/fault"
)

// LineSource yields the local user's lines. A line longer than max is cut to
// max bytes, the rest of the input line is discarded and truncated is set.
type LineSource interface {
	ReadLine(max int) (line []byte, truncated bool, err error)
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// Chat runs the message loop until either side sends the stop phrase. The
// initiator speaks first. Received text is written to out, as are local
// warnings about truncated input.
func (c *Channel) Chat(ctx context.Context, src LineSource, out io.Writer) error {
	if d, ok := c.rw.(deadliner); ok {
		stop := context.AfterFunc(ctx, func() { _ = d.SetDeadline(time.Unix(1, 0)) })
		defer stop()
	}

	log := c.log.WithField("role", c.role)
	sendTurn := c.role == Initiator
	for {
		if err := ctx.Err(); err != nil {
			return fault.E(fault.KindConnection, "channel.Chat", err)
		}
		if sendTurn {
			done, err := c.speak(src, out)
			if err != nil {
				return err
			}
			if done {
				log.Info("stop phrase sent")
				return nil
			}
		} else {
			done, err := c.listen(out)
			if err != nil {
				return err
			}
			if done {
				log.Info("stop phrase received")
				return nil
			}
		}
		sendTurn = !sendTurn
	}
}

func (c *Channel) speak(src LineSource, out io.Writer) (bool, error) {
	fmt.Fprint(out, "You: ")
	line, truncated, err := src.ReadLine(c.opts.LineMax)
	if err != nil {
		return false, fault.E(fault.KindInput, "channel.Chat", err)
	}
	defer crypto.Wipe(line)
	if truncated {
		fmt.Fprintf(out, "warning: message cut to %d bytes\n", c.opts.LineMax)
	}
	if err := c.Send(line); err != nil {
		return false, err
	}
	return c.IsStop(line), nil
}

func (c *Channel) listen(out io.Writer) (bool, error) {
	text, err := c.Receive()
	if err != nil {
		return false, err
	}
	defer crypto.Wipe(text)
	fmt.Fprintf(out, "From peer: %s\n", text)
	return c.IsStop(text), nil
}
