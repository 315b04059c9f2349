package reporter

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"go-jobpilot/internal/automator"
	"go-jobpilot/internal/config"
	"go-jobpilot/internal/orchestrator"
)

// maxListed bounds the per-job lines of one summary message.
const maxListed = 15

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramReporter struct {
	bot    sender
	chatID int64
	log    *zap.Logger
}

func NewTelegramReporter(cfg config.TelegramConfig, log *zap.Logger) (*TelegramReporter, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram bot: %w", err)
	}

	//turn this on in case of debug
	//bot.Debug = true

	if log == nil {
		log = zap.NewNop()
	}
	return &TelegramReporter{bot: bot, chatID: cfg.ChatID, log: log}, nil
}

// NotifyRun sends the run summary to the configured chat.
func (t *TelegramReporter) NotifyRun(ctx context.Context, report *orchestrator.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, FormatRunSummary(report))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("send run summary: %w", err)
	}
	t.log.Info("📨 Run summary sent", zap.String("run_id", report.RunID))
	return nil
}

func (t *TelegramReporter) SendError(err error) error {
	msg := tgbotapi.NewMessage(t.chatID, fmt.Sprintf("❌ Error: %v", err))
	_, sendErr := t.bot.Send(msg)
	return sendErr
}

// FormatRunSummary renders a report as a MarkdownV2 message.
func FormatRunSummary(r *orchestrator.Report) string {
	var b strings.Builder

	title := "🤖 *Run finished*"
	switch {
	case len(r.Errors) > 0 && r.TotalJobsFound == 0 && len(r.Results) == 0:
		title = "❌ *Run failed*"
	case r.DryRun:
		title = "🧪 *Rehearsal finished*"
	}
	b.WriteString(title + "\n")
	fmt.Fprintf(&b, "⚙️ Config: `%s`\n", escapeCode(r.ConfigID))
	fmt.Fprintf(&b, "🔍 Found: %d \\| Eligible: %d\n", r.TotalJobsFound, r.Eligible)
	if r.DryRun {
		fmt.Fprintf(&b, "🧪 Rehearsed: %d\n", r.Rehearsed)
	} else {
		fmt.Fprintf(&b, "✅ Submitted: %d\n", r.ApplicationsSubmitted)
	}
	fmt.Fprintf(&b, "⚠️ Failed: %d \\| Skipped: %d\n", r.Failed, r.Skipped)
	fmt.Fprintf(&b, "⏱ %s\n", escapeMarkdown(r.Duration.Round(1e9).String()))

	if len(r.Results) > 0 {
		b.WriteString("\n")
	}
	for i, res := range r.Results {
		if i == maxListed {
			fmt.Fprintf(&b, "… and %d more\n", len(r.Results)-maxListed)
			break
		}
		line := fmt.Sprintf("%s [%s](%s)", outcomeIcon(res.Outcome), escapeMarkdown(jobLabel(res)), escapeURL(res.URL))
		if res.Reason != "" && res.Outcome == automator.OutcomeFailed {
			line += " \\- " + escapeMarkdown(string(res.Reason))
		}
		b.WriteString(line + "\n")
	}

	for _, e := range r.Errors {
		fmt.Fprintf(&b, "\n❗ %s", escapeMarkdown(e))
	}
	return strings.TrimRight(b.String(), "\n")
}

func jobLabel(res orchestrator.JobResult) string {
	if res.Company == "" {
		return res.Title
	}
	return res.Title + " @ " + res.Company
}

func outcomeIcon(o automator.Outcome) string {
	switch o {
	case automator.OutcomeApplied:
		return "✅"
	case automator.OutcomeUncertain:
		return "❔"
	case automator.OutcomeRehearsed:
		return "🧪"
	}
	return "❌"
}

var markdownEscaper = strings.NewReplacer(
	"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "(", "\\(",
	")", "\\)", "~", "\\~", "`", "\\`", ">", "\\>", "#", "\\#",
	"+", "\\+", "-", "\\-", "=", "\\=", "|", "\\|", "{", "\\{",
	"}", "\\}", ".", "\\.", "!", "\\!", "\\", "\\\\",
)

func escapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}

// inside (...) of an inline link only ) and \ must be escaped
func escapeURL(u string) string {
	return strings.NewReplacer("\\", "\\\\", ")", "\\)").Replace(u)
}

// inside `code` only ` and \ must be escaped
func escapeCode(s string) string {
	return strings.NewReplacer("\\", "\\\\", "`", "\\`").Replace(s)
}
