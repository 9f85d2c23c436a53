package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/satriahrh/scenery-voice/domain/entities"
)

// terminalPresenter prints session activity as plain lines
type terminalPresenter struct {
	mu  sync.Mutex
	out io.Writer
}

func newTerminalPresenter(out io.Writer) *terminalPresenter {
	return &terminalPresenter{out: out}
}

func (p *terminalPresenter) printf(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *terminalPresenter) ConnectionChanged(status entities.ConnectionStatus) {
	p.printf("[connection] %s", status)
}

func (p *terminalPresenter) StateChanged(state entities.RecordingState) {
	p.printf("[state] %s", state)
}

func (p *terminalPresenter) Transcript(text string, final bool) {
	if final {
		p.printf("you: %s", text)
		return
	}
	p.printf("you (...): %s", text)
}

func (p *terminalPresenter) AssistantReply(reply entities.AssistantReply) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "assistant: %s\n", reply.Text)
	for i, h := range reply.Hotels {
		fmt.Fprintf(p.out, "  %d. %s", i+1, h.Name)
		if h.Rating > 0 {
			fmt.Fprintf(p.out, " (%.1f)", float64(h.Rating))
		}
		if h.Location != "" {
			fmt.Fprintf(p.out, " - %s", h.Location)
		}
		if h.Price != "" {
			fmt.Fprintf(p.out, ", %s", h.Price)
		}
		fmt.Fprintln(p.out)
	}
}

func (p *terminalPresenter) Notice(text string) {
	p.printf("! %s", text)
}
