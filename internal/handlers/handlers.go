// Package handlers wires the bot's command and callback surface to the
// conversational flows and the persistence layer.
package handlers

import (
	"fmt"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/chanpost/core/logger"
	tg "github.com/m3rciful/chanpost/core/telegram"
	"github.com/m3rciful/chanpost/core/telegram/commands"
	"github.com/m3rciful/chanpost/core/telegram/format"
	tghelpers "github.com/m3rciful/chanpost/core/telegram/helpers"
	"github.com/m3rciful/chanpost/core/telegram/keyboard"
	"github.com/m3rciful/chanpost/internal/audit"
	"github.com/m3rciful/chanpost/internal/channels"
	"github.com/m3rciful/chanpost/internal/flows"
	"github.com/m3rciful/chanpost/internal/flows/post"
	"github.com/m3rciful/chanpost/internal/flows/registration"
	"github.com/m3rciful/chanpost/internal/session"
	"github.com/m3rciful/chanpost/internal/users"
	"log/slog"
)

const deniedText = "❌ You are not allowed to use this command."

// Handlers owns the command/callback surface of the bot.
type Handlers struct {
	ownerID      int64
	sessions     *session.Store
	registration *registration.Flow
	post         *post.Flow
	users        *users.Repository
	channels     *channels.Repository
	audit        *audit.Recorder
	startedAt    time.Time
}

// New assembles the handler set.
func New(
	ownerID int64,
	store *session.Store,
	reg *registration.Flow,
	postFlow *post.Flow,
	userRepo *users.Repository,
	channelRepo *channels.Repository,
	recorder *audit.Recorder,
) *Handlers {
	return &Handlers{
		ownerID:      ownerID,
		sessions:     store,
		registration: reg,
		post:         postFlow,
		users:        userRepo,
		channels:     channelRepo,
		audit:        recorder,
		startedAt:    time.Now(),
	}
}

// Register binds all commands and callbacks into the registry.
func (h *Handlers) Register(reg *tg.Registry) {
	reg.RegisterCommand("/start", commands.Command{
		Handler:     h.handleStart,
		Description: "Greeting and quick actions",
	})
	reg.RegisterCommand("/help", commands.Command{
		Handler:     h.handleHelp,
		Description: "Show the command list",
	})
	reg.RegisterCommand("/alive", commands.Command{
		Handler:     h.handleAlive,
		Description: "Check bot status",
	})
	reg.RegisterCommand("/stats", commands.Command{
		Handler:     h.handleStats,
		Description: "Usage statistics",
	})
	reg.RegisterCommand("/addch", commands.Command{
		Handler:     h.handleAddChannel,
		Description: "Register a channel",
	})
	reg.RegisterCommand("/mychannels", commands.Command{
		Handler:     h.handleMyChannels,
		Description: "List your channels",
	})
	reg.RegisterCommand("/delch", commands.Command{
		Handler:     h.handleDeleteChannel,
		Description: "Delete a channel",
	})
	reg.RegisterCommand("/post", commands.Command{
		Handler:     h.handlePost,
		Description: "Create or edit channel posts",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     h.handleCancel,
		Description: "Cancel the current flow",
	})
	reg.RegisterCommand("/adminpanel", commands.Command{
		Handler:     h.handleAdminPanel,
		Description: "Admin summary",
		Hidden:      true,
	})
	reg.RegisterCommand("/addadmin", commands.Command{
		Handler:     h.handleAddAdmin,
		Description: "Promote a user to admin",
		AdminOnly:   true,
		Hidden:      true,
	})
	reg.RegisterCommand("/removeadmin", commands.Command{
		Handler:     h.handleRemoveAdmin,
		Description: "Demote an admin",
		AdminOnly:   true,
		Hidden:      true,
	})

	h.registerCallbacks(reg)
}

// privileged reports whether the user may drive the posting flow.
func (h *Handlers) privileged(c tele.Context) bool {
	userID := c.Sender().ID
	if userID == h.ownerID {
		return true
	}
	ctx := tghelpers.BuildContext(c)
	admin, err := h.users.IsAdmin(ctx, userID)
	if err != nil {
		logger.SVCUsers.Warn("privilege.check",
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		return false
	}
	return admin
}

func (h *Handlers) handleStart(c tele.Context) error {
	sender := c.Sender()
	ctx := tghelpers.BuildContext(c)
	if err := h.users.Upsert(ctx, users.User{
		UserID:    sender.ID,
		FirstName: sender.FirstName,
		LastName:  sender.LastName,
		Username:  sender.Username,
	}); err != nil {
		logger.SVCUsers.Warn("start.upsert", slog.String("err", err.Error()))
	}

	markup := keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: "📢 Add Channel", Unique: callbackStart, Data: "addch"},
		{Text: "📝 Post", Unique: callbackStart, Data: "post"},
		{Text: "❓ Help", Unique: callbackStart, Data: "help"},
	})
	text := fmt.Sprintf("🌸 Welcome %s!\n\nI can help you post & edit messages in your channels.", sender.FirstName)
	return tghelpers.SendText(c, text, &tele.SendOptions{ReplyMarkup: markup})
}

func (h *Handlers) handleHelp(c tele.Context) error {
	text := "🌸 *Bot commands*\n\n" +
		"*Channel controls:*\n" +
		"/addch - Add channel\n" +
		"/delch - Delete channel\n" +
		"/mychannels - View channels\n\n" +
		"*Posting system:*\n" +
		"/post - Create or edit channel posts\n" +
		"/cancel - Cancel the current flow\n\n" +
		"*Misc:*\n" +
		"/alive - Check bot status\n" +
		"/stats - Usage statistics\n" +
		"/help - Show this help"
	return tghelpers.SendMD(c, text)
}

func (h *Handlers) handleAlive(c tele.Context) error {
	return tghelpers.SendText(c, "🤖 I'm alive and ready 😊")
}

func (h *Handlers) handleStats(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	total, admins, err := h.users.Count(ctx)
	if err != nil {
		return err
	}
	chans, err := h.channels.Count(ctx)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("📊 Stats:\n\n• Users: %d\n• Admins: %d\n• Channels: %d\n• Uptime: %s",
		total, admins, chans, formatUptime(time.Since(h.startedAt)))
	return tghelpers.SendText(c, text)
}

func (h *Handlers) handleAddChannel(c tele.Context) error {
	return flows.Render(c, h.registration.Start(c.Sender().ID))
}

func (h *Handlers) handlePost(c tele.Context) error {
	if !h.privileged(c) {
		return tghelpers.SendText(c, deniedText)
	}
	ctx := tghelpers.BuildContext(c)
	reply, err := h.post.Start(ctx, c.Sender().ID)
	if err != nil {
		return err
	}
	return flows.Render(c, reply)
}

func (h *Handlers) handleCancel(c tele.Context) error {
	userID := c.Sender().ID
	if !h.sessions.Active(userID) {
		return tghelpers.SendText(c, "Nothing to cancel.")
	}
	h.sessions.Clear(userID)
	return tghelpers.SendText(c, "✅ Flow cancelled.")
}

func (h *Handlers) handleMyChannels(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	recs, err := h.channels.ListByOwner(ctx, c.Sender().ID)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return tghelpers.SendText(c, "🌸 You have no saved channels.")
	}
	text := "📚 *Your channels:*\n\n"
	for _, rec := range recs {
		text += fmt.Sprintf("• *%s* - `%d`\n", format.MD(rec.Title), rec.ChannelID)
	}
	return tghelpers.SendMD(c, text)
}

func (h *Handlers) handleDeleteChannel(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	recs, err := h.channels.ListByOwner(ctx, c.Sender().ID)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return tghelpers.SendText(c, "❌ No channels to delete.")
	}

	btns := make([]keyboard.InlineBtn, 0, len(recs))
	for _, rec := range recs {
		btns = append(btns, keyboard.InlineBtn{
			Text:   rec.Title,
			Unique: callbackDelete,
			Data:   strconv.FormatInt(rec.ChannelID, 10),
		})
	}
	markup := keyboard.InlineButtonsNPerRow(btns, 2)
	markup.InlineKeyboard = append(markup.InlineKeyboard,
		keyboard.SingleCancelMarkup(callbackDeleteCancel).InlineKeyboard...)

	return tghelpers.SendText(c, "🗑 Select a channel to delete:", &tele.SendOptions{ReplyMarkup: markup})
}

func (h *Handlers) handleAdminPanel(c tele.Context) error {
	if !h.privileged(c) {
		return tghelpers.SendText(c, "❌ You are not an admin.")
	}
	ctx := tghelpers.BuildContext(c)
	total, admins, err := h.users.Count(ctx)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("🌸 *Admin panel*\n\n*Uptime:* %s\n*Admins:* %d\n*Users:* %d\n\n"+
		"Commands:\n/addadmin <id>\n/removeadmin <id>",
		formatUptime(time.Since(h.startedAt)), admins, total)
	return tghelpers.SendMD(c, text)
}

func (h *Handlers) handleAddAdmin(c tele.Context) error {
	return h.setAdmin(c, "/addadmin", true, "promoted to admin")
}

func (h *Handlers) handleRemoveAdmin(c tele.Context) error {
	return h.setAdmin(c, "/removeadmin", false, "demoted from admin")
}

func (h *Handlers) setAdmin(c tele.Context, cmd string, admin bool, verb string) error {
	args := c.Args()
	if len(args) != 1 {
		return tghelpers.SendText(c, "Usage: "+cmd+" <user_id>")
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return tghelpers.SendText(c, "Invalid user id.")
	}
	ctx := tghelpers.BuildContext(c)
	if err := h.users.SetAdmin(ctx, userID, admin); err != nil {
		return err
	}
	return tghelpers.SendMD(c, fmt.Sprintf("✅ User `%d` %s.", userID, verb))
}

func formatUptime(d time.Duration) string {
	sec := int(d.Seconds())
	return fmt.Sprintf("%dh %dm %ds", sec/3600, sec%3600/60, sec%60)
}
