package bot

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"hftbot/core"
	"hftbot/risk"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM BOT - Trading notifications & control
// ═══════════════════════════════════════════════════════════════════════════════
//
// Features:
//   💰 Trade notifications (entries and exits with reason)
//   📊 Session statistics on demand (/stats)
//   🎛️ Bot status and risk state (/status, /risk)
//
// ═══════════════════════════════════════════════════════════════════════════════

// StatsProvider supplies the session snapshot for reporting.
type StatsProvider interface {
	Stats() core.Stats
}

// TelegramBot manages the Telegram interface
type TelegramBot struct {
	mu      sync.RWMutex
	api     *tgbotapi.BotAPI
	chatID  int64
	running bool
	stopCh  chan struct{}

	stats StatsProvider
	guard *risk.Guard

	dryRun bool
}

// NewTelegramBot creates a new Telegram bot
func NewTelegramBot(token string, chatID int64, stats StatsProvider, guard *risk.Guard, dryRun bool) (*TelegramBot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token not set")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("telegram chat ID not set")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	bot := &TelegramBot{
		api:    api,
		chatID: chatID,
		stopCh: make(chan struct{}),
		stats:  stats,
		guard:  guard,
		dryRun: dryRun,
	}

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram bot initialized")

	return bot, nil
}

// Start begins listening for commands
func (b *TelegramBot) Start() {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	go b.commandLoop()
	log.Info().Msg("📱 Telegram bot started")
}

// Stop stops the bot
func (b *TelegramBot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}

	b.running = false
	close(b.stopCh)
	log.Info().Msg("Telegram bot stopped")
}

// ═══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// NotifyTrade sends a trade execution alert. Implements core.TradeNotifier.
func (b *TelegramBot) NotifyTrade(action, symbol, side string, price, size float64) {
	var emoji string
	switch action {
	case "OPEN":
		emoji = "✅"
	case "hard_stop":
		emoji = "🛑"
	case "trailing_stop":
		emoji = "💰"
	case "time_stop":
		emoji = "⏱️"
	default:
		emoji = "📌"
	}

	msg := fmt.Sprintf(`%s *%s*

📊 %s %s
💵 Price: *%.2f*
📦 Size: *%.0f*`,
		emoji, strings.ToUpper(action),
		symbol, strings.ToUpper(side),
		price, size,
	)

	b.sendMarkdown(msg)
}

// NotifyStartup sends startup notification
func (b *TelegramBot) NotifyStartup(symbol string, relaxed bool) {
	mode := "LIVE"
	if b.dryRun {
		mode = "PAPER"
	}
	triggers := "STRICT"
	if relaxed {
		triggers = "RELAXED"
	}

	msg := fmt.Sprintf(`🚀 *HFT BOT STARTED*
━━━━━━━━━━━━━━━━━━━━

📊 Instrument: *%s*
🎯 Triggers: *%s*
📊 Mode: *%s*

Use /help for commands`, symbol, triggers, mode)

	b.sendMarkdown(msg)
}

// NotifyError sends an error alert
func (b *TelegramBot) NotifyError(err error) {
	b.sendMarkdown(fmt.Sprintf("⚠️ *ERROR*\n\n`%s`", err.Error()))
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLING
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) commandLoop() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-b.stopCh:
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}

			// Only respond to authorized chat
			if update.Message.Chat.ID != b.chatID {
				continue
			}

			b.handleCommand(update.Message)
		}
	}
}

func (b *TelegramBot) handleCommand(msg *tgbotapi.Message) {
	switch strings.ToLower(msg.Command()) {
	case "start", "help":
		b.cmdHelp()
	case "status":
		b.cmdStatus()
	case "stats":
		b.cmdStats()
	case "risk":
		b.cmdRisk()
	case "ping":
		b.send("🏓 Pong!")
	default:
		b.send("❓ Unknown command. Use /help")
	}
}

func (b *TelegramBot) cmdHelp() {
	msg := `🤖 *HFT BOT COMMANDS*
━━━━━━━━━━━━━━━━━━━━

📊 /status — Bot status and position
📈 /stats — Session statistics
🛡️ /risk — Risk guard state
🏓 /ping — Test connection`

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdStatus() {
	s := b.stats.Stats()

	mode := "LIVE"
	if b.dryRun {
		mode = "PAPER"
	}

	posStr := "flat"
	if s.Position != 0 {
		posStr = fmt.Sprintf("%.0f @ %.2f (high %.2f)", s.Position, s.EntryPrice, s.HighestPrice)
	}

	msg := fmt.Sprintf(`📊 *BOT STATUS*
━━━━━━━━━━━━━━━━━━━━

🟢 RUNNING
📊 Instrument: *%s*
📊 Mode: *%s*
💼 Position: *%s*
📈 EMA fast/slow: *%.2f / %.2f*
🧱 Resistance: *%.2f*`,
		s.Symbol, mode, posStr, s.EMAFast, s.EMASlow, s.Resistance)

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdStats() {
	s := b.stats.Stats()

	msg := fmt.Sprintf(`📈 *SESSION STATS*
━━━━━━━━━━━━━━━━━━━━

📊 Ticks: *%d*
🪂 Cliff triggers: *%d*
🎯 Breakout triggers: *%d*
✅ Executions: *%d*

━━━━━━━━━━━━━━━━━━━━
🛑 Hard stops: *%d*
💰 Trailing stops: *%d*
⏱️ Time stops: *%d*`,
		s.TickCount, s.CliffTriggers, s.BreakoutTriggers, s.Executions,
		s.ExitCounts["hard_stop"], s.ExitCounts["trailing_stop"], s.ExitCounts["time_stop"],
	)

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdRisk() {
	msg := fmt.Sprintf(`🛡️ *RISK GUARD*
━━━━━━━━━━━━━━━━━━━━

📉 Drawdown: *%.2f%%*
💸 Cumulative loss: *$%.2f*
⏳ Cooldown remaining: *%v*`,
		b.guard.LossPercent()*100,
		b.guard.CumulativeLoss(),
		b.guard.RemainingCooldown().Round(time.Second),
	)

	b.sendMarkdown(msg)
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) send(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}

func (b *TelegramBot) sendMarkdown(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}
