// Package console runs one conversation in the terminal.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/lhdbsbz/berrychat/internal/chat"
	"github.com/lhdbsbz/berrychat/internal/message"
	"github.com/lhdbsbz/berrychat/internal/prompts"
)

// Console reads user lines from In and prints the transcript to Out as it changes.
// A streamed reply is printed as its deltas arrive; a whole reply goes through Render.
type Console struct {
	In      io.Reader
	Out     io.Writer
	Ctrl    *chat.Controller
	Prompts *prompts.Prompts
	Render  Renderer

	mu       sync.Mutex
	shown    int    // blocks fully printed
	streamed string // text already printed for the pending block
	wake     chan struct{}
}

func New(in io.Reader, out io.Writer, ctrl *chat.Controller, p *prompts.Prompts, render Renderer) *Console {
	if p == nil {
		p = prompts.PromptsEN
	}
	if render == nil {
		render = Plain
	}
	return &Console{In: in, Out: out, Ctrl: ctrl, Prompts: p, Render: render, wake: make(chan struct{}, 1)}
}

// Run blocks until In is exhausted or ctx ends. On EOF it lets an in-flight reply finish first.
func (c *Console) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.println(c.Prompts.ConsoleBanner)
	unsubscribe := c.Ctrl.Subscribe(func(chat.Snapshot) {
		select {
		case c.wake <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.drawLoop(ctx)
	}()
	c.draw()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go pump(c.In, lines, readErr)

	var err error
loop:
	for {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break loop
		case line, ok := <-lines:
			if !ok {
				err = <-readErr
				c.waitIdle(ctx)
				break loop
			}
			c.submit(line)
		}
	}

	cancel()
	wg.Wait()
	c.draw()
	c.println("\n" + c.Prompts.ConsoleBye)
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Console) submit(line string) {
	err := c.Ctrl.Submit(line)
	var verr *chat.ValidationError
	switch {
	case err == nil:
		c.draw()
	case errors.As(err, &verr):
		c.println(verr.Hint)
		c.print(c.Prompts.ConsolePrompt)
	case errors.Is(err, chat.ErrExchangeInFlight):
		c.println(c.Prompts.Busy)
	default:
		c.println(err.Error())
	}
}

func (c *Console) waitIdle(ctx context.Context) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for c.Ctrl.Busy() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Console) drawLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
			c.draw()
		}
	}
}

// draw prints whatever the transcript gained since the last call.
func (c *Console) draw() {
	msgs := c.Ctrl.Messages()
	c.mu.Lock()
	defer c.mu.Unlock()

	for ; c.shown < len(msgs); c.shown++ {
		b := msgs[c.shown]
		if b.Sender == message.SenderUser {
			continue // the user typed it
		}
		if b.Pending() {
			if strings.HasPrefix(b.Text, c.streamed) {
				fmt.Fprint(c.Out, b.Text[len(c.streamed):])
				c.streamed = b.Text
			}
			return
		}
		switch {
		case c.streamed == "":
			fmt.Fprintln(c.Out, c.render(b.Text))
		case strings.HasPrefix(b.Text, c.streamed):
			fmt.Fprintln(c.Out, b.Text[len(c.streamed):])
		default:
			fmt.Fprintln(c.Out)
			fmt.Fprintln(c.Out, c.render(b.Text))
		}
		c.streamed = ""
		if c.shown == len(msgs)-1 {
			fmt.Fprint(c.Out, c.Prompts.ConsolePrompt)
		}
	}
}

func (c *Console) render(text string) string {
	out, err := c.Render(text)
	if err != nil {
		return text
	}
	return out
}

func (c *Console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.Out, s)
}

func (c *Console) print(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.Out, s)
}

// pump feeds lines until the reader is exhausted; the final error goes to errc before lines closes.
func pump(r io.Reader, lines chan<- string, errc chan<- error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	errc <- err
	close(lines)
}
