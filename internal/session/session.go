// Package session keeps per-user conversation state for the multi-step
// registration and posting flows. A session exists only while the user is
// mid-flow; its absence means no pending flow for that user.
package session

import (
	"time"

	"github.com/m3rciful/chanpost/internal/buttons"
)

// Mode names the flow that owns the session.
type Mode string

const (
	// ModeRegister is the /addch channel registration flow.
	ModeRegister Mode = "register"
	// ModePost composes a new channel post.
	ModePost Mode = "post"
	// ModeEdit replaces an existing channel post.
	ModeEdit Mode = "edit"
)

// Step names the state the flow is waiting in.
type Step string

const (
	// StepAwaitForward waits for a channel forward during registration.
	StepAwaitForward Step = "await_forward"
	// StepSelectChannel shows the paginated channel list.
	StepSelectChannel Step = "select_channel"
	// StepAwaitMessage waits for new post content.
	StepAwaitMessage Step = "await_message"
	// StepAwaitEditForward waits for a forward of the message to edit.
	StepAwaitEditForward Step = "await_edit_forward"
	// StepAwaitEditContent waits for the replacement content.
	StepAwaitEditContent Step = "await_edit_newcontent"
	// StepAskButtons waits for the add-buttons yes/no choice.
	StepAskButtons Step = "add_button_q"
	// StepAwaitButtonFormat waits for a button definition line.
	StepAwaitButtonFormat Step = "await_button_format"
	// StepConfirmSend waits for the final send/edit confirmation.
	StepConfirmSend Step = "send_post_q"
)

// ContentKind discriminates captured draft content.
type ContentKind string

const (
	// ContentText is a plain text post.
	ContentText ContentKind = "text"
	// ContentPhoto is a photo with an optional caption.
	ContentPhoto ContentKind = "photo"
	// ContentVideo is a video with an optional caption.
	ContentVideo ContentKind = "video"
	// ContentDocument is a document with an optional caption.
	ContentDocument ContentKind = "document"
)

// Content is the draft payload captured from the user, stored verbatim.
// For media kinds Text carries the caption and FileID the Telegram file
// reference; for text kind FileID is empty.
type Content struct {
	Kind   ContentKind
	Text   string
	FileID string
}

// Session is the mutable per-user record accumulated across flow steps.
type Session struct {
	UserID       int64
	Mode         Mode
	Step         Step
	Page         int
	ChannelID    int64
	ChannelTitle string
	// EditTargetID is the channel message being replaced in edit mode.
	EditTargetID int
	Content      Content
	HasContent   bool
	Buttons      [][]buttons.Spec
	// Touched is the time of the last mutation, used by the idle reaper.
	Touched time.Time
}

func (s Session) clone() Session {
	out := s
	out.Buttons = make([][]buttons.Spec, len(s.Buttons))
	for i, row := range s.Buttons {
		out.Buttons[i] = append([]buttons.Spec(nil), row...)
	}
	return out
}
