package flows

import (
	"context"

	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/m3rciful/chanpost/core/telegram/helpers"
	"github.com/m3rciful/chanpost/internal/session"
)

// MessageHandler consumes one mid-flow message for the flow owning the mode.
type MessageHandler interface {
	HandleMessage(ctx context.Context, userID int64, msg *tele.Message) (Reply, error)
}

// Dispatcher routes text and media updates from users with an active session
// to the flow that owns it. It satisfies the message router's FSM contract.
type Dispatcher struct {
	sessions *session.Store
	byMode   map[session.Mode]MessageHandler
}

// NewDispatcher creates a dispatcher over the shared session store.
func NewDispatcher(store *session.Store) *Dispatcher {
	return &Dispatcher{
		sessions: store,
		byMode:   make(map[session.Mode]MessageHandler),
	}
}

// Register binds a flow to the session modes it owns.
func (d *Dispatcher) Register(h MessageHandler, modes ...session.Mode) {
	for _, m := range modes {
		d.byMode[m] = h
	}
}

// InProgress reports whether the user has an active session.
func (d *Dispatcher) InProgress(userID int64) bool {
	return d.sessions.Active(userID)
}

// ManagerHandler delivers the update's message to the owning flow and
// renders whatever reply the transition produced.
func (d *Dispatcher) ManagerHandler(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	sess, ok := d.sessions.Get(sender.ID)
	if !ok {
		return nil
	}
	h := d.byMode[sess.Mode]
	if h == nil {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	reply, err := h.HandleMessage(ctx, sender.ID, c.Message())
	if err != nil {
		return err
	}
	return Render(c, reply)
}
