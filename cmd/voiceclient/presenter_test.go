package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/satriahrh/scenery-voice/domain/entities"
)

func TestTerminalPresenter(t *testing.T) {
	var buf bytes.Buffer
	p := newTerminalPresenter(&buf)

	p.ConnectionChanged(entities.ConnectionStatusConnected)
	p.StateChanged(entities.RecordingStateRecording)
	p.Transcript("find me", false)
	p.Transcript("find me a hotel", true)
	p.AssistantReply(entities.AssistantReply{
		Text: "Here you go",
		Hotels: []entities.Hotel{
			{Name: "Alaya", Rating: 4.6, Location: "Ubud", Price: "$120"},
			{Name: "Unrated"},
		},
	})
	p.Notice("Connection failed")

	want := []string{
		"[connection] connected",
		"[state] recording",
		"you (...): find me",
		"you: find me a hotel",
		"assistant: Here you go",
		"  1. Alaya (4.6) - Ubud, $120",
		"  2. Unrated",
		"! Connection failed",
	}
	got := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(got) != len(want) {
		t.Fatalf("Expected %d lines, got %d:\n%s", len(want), len(got), buf.String())
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Line %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}
