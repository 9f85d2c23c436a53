package voice

import "github.com/satriahrh/scenery-voice/domain/entities"

// Presenter renders session output. All methods are called from the session's
// event loop goroutine, one at a time, in event order.
type Presenter interface {
	ConnectionChanged(status entities.ConnectionStatus)
	StateChanged(state entities.RecordingState)
	Transcript(text string, final bool)
	AssistantReply(reply entities.AssistantReply)
	Notice(text string)
}

type nopPresenter struct{}

func (nopPresenter) ConnectionChanged(entities.ConnectionStatus) {}
func (nopPresenter) StateChanged(entities.RecordingState)        {}
func (nopPresenter) Transcript(string, bool)                     {}
func (nopPresenter) AssistantReply(entities.AssistantReply)      {}
func (nopPresenter) Notice(string)                               {}
