package raftai

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"cryptorafts/api/internal/logger"
	"cryptorafts/api/internal/util"
)

const CommandPrefix = "/raftai"

const (
	CmdHelp        = "help"
	CmdSummarize   = "summarize"
	CmdRisks       = "risks"
	CmdDraft       = "draft"
	CmdActionItems = "action-items"
	CmdDecisions   = "decisions"
	CmdTranslate   = "translate"
	CmdCompliance  = "compliance"
	CmdRedact      = "redact"
)

// Command is a parsed "/raftai <name> [args...]" invocation.
type Command struct {
	Name string
	Args []string
}

func (c Command) Known() bool {
	switch c.Name {
	case CmdHelp, CmdSummarize, CmdRisks, CmdDraft, CmdActionItems, CmdDecisions, CmdTranslate, CmdCompliance, CmdRedact:
		return true
	}
	return false
}

// ParseCommand reports whether text is addressed to RaftAI. A bare
// "/raftai" is treated as help.
func ParseCommand(text string) (Command, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.EqualFold(fields[0], CommandPrefix) {
		return Command{}, false
	}
	if len(fields) == 1 {
		return Command{Name: CmdHelp}, true
	}
	return Command{Name: strings.ToLower(fields[1]), Args: fields[2:]}, true
}

type HistoryMessage struct {
	SenderName string
	Content    string
	CreatedAt  time.Time
}

// RoomContext is what the assistant may read about a room.
type RoomContext struct {
	RoomType string
	RoomName string
	Memory   map[string]any
	// Messages are oldest first.
	Messages []HistoryMessage
}

type Reply struct {
	Command string
	Text    string
	Source  string
}

type Assistant struct {
	llm Completer
	log *logger.Logger
}

func NewAssistant(llm Completer, log *logger.Logger) *Assistant {
	if log == nil {
		log = logger.Nop()
	}
	return &Assistant{llm: llm, log: log}
}

// Run executes cmd. Unknown commands get the help text. LLM failures fall
// back to the deterministic answer, so Run only fails on context errors.
func (a *Assistant) Run(ctx context.Context, cmd Command, room RoomContext) (Reply, error) {
	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}
	if !cmd.Known() {
		text := HelpText(room.RoomType)
		if cmd.Name != "" {
			text = fmt.Sprintf("Unknown command: %s.\n%s", cmd.Name, text)
		}
		return Reply{Command: CmdHelp, Text: text, Source: "data"}, nil
	}

	// help and redact never leave the process.
	if a.llm != nil && cmd.Name != CmdHelp && cmd.Name != CmdRedact {
		text, err := a.askLLM(ctx, cmd, room)
		if err == nil && strings.TrimSpace(text) != "" {
			return Reply{Command: cmd.Name, Text: strings.TrimSpace(text), Source: "llm"}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Reply{}, ctxErr
		}
		if err != nil {
			a.log.Warn("raftai command falling back to data", "command", cmd.Name, "error", err.Error())
		}
	}
	return Reply{Command: cmd.Name, Text: fallbackAnswer(cmd, room), Source: "data"}, nil
}

func (a *Assistant) askLLM(ctx context.Context, cmd Command, room RoomContext) (string, error) {
	var instruction string
	switch cmd.Name {
	case CmdSummarize:
		instruction = "Summarize the conversation: key topics, participants' positions and next steps."
	case CmdRisks:
		instruction = "List the main risks raised or implied in this deal conversation, highest priority first, with a mitigation for each."
	case CmdDraft:
		instruction = fmt.Sprintf("Draft the next reply for this conversation in a %s tone.", draftTone(cmd))
	case CmdActionItems:
		instruction = "Extract action items as a checklist. Include the owner when it is clear."
	case CmdDecisions:
		instruction = "List the decisions that were made and the ones still pending."
	case CmdTranslate:
		lang, text := translateArgs(cmd, room)
		instruction = fmt.Sprintf("Translate the following text to %s. Reply with the translation only.\n\n%s", lang, text)
	case CmdCompliance:
		instruction = "Review the conversation for regulatory and compliance concerns (securities language, guaranteed returns, KYC/AML, market manipulation). List findings and recommendations."
	}
	return a.llm.Complete(ctx, []ChatMessage{
		{Role: "system", Content: "You are RaftAI, an assistant inside a private crypto deal room. Be concise and factual."},
		{Role: "user", Content: instruction + "\n\n" + transcript(room)},
	}, CompletionOptions{Temperature: 0.4, MaxTokens: 800})
}

var roomHelp = map[string]string{
	"deal":     "\nDeal room: ask about term sheets, due diligence and valuation.",
	"listing":  "\nListing room: ask about listing requirements and timelines.",
	"ido":      "\nIDO room: ask about launch strategy, tokenomics and marketing.",
	"campaign": "\nCampaign room: ask about content plans, audience and metrics.",
	"proposal": "\nProposal room: ask about scope, timeline and budget.",
}

func HelpText(roomType string) string {
	return `RaftAI commands:
/raftai help - show this message
/raftai summarize - summarize the recent conversation
/raftai risks - list project risks
/raftai draft [professional|casual|formal] - draft a reply
/raftai action-items - extract action items
/raftai decisions - track decisions
/raftai translate <lang> [text] - translate text or the last message
/raftai compliance - check for compliance concerns
/raftai redact - scan recent messages for sensitive data` + roomHelp[roomType]
}

func transcript(room RoomContext) string {
	var b strings.Builder
	if len(room.Memory) > 0 {
		keys := make([]string, 0, len(room.Memory))
		for key := range room.Memory {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		b.WriteString("Room facts:\n")
		for _, key := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", key, room.Memory[key])
		}
		b.WriteString("\n")
	}
	b.WriteString("Conversation:\n")
	for _, msg := range room.Messages {
		fmt.Fprintf(&b, "%s: %s\n", msg.SenderName, msg.Content)
	}
	return b.String()
}

func draftTone(cmd Command) string {
	if len(cmd.Args) > 0 {
		switch tone := strings.ToLower(cmd.Args[0]); tone {
		case "professional", "casual", "formal":
			return tone
		}
	}
	return "professional"
}

func translateArgs(cmd Command, room RoomContext) (string, string) {
	lang := "spanish"
	if len(cmd.Args) > 0 {
		lang = strings.ToLower(cmd.Args[0])
	}
	text := ""
	if len(cmd.Args) > 1 {
		text = strings.Join(cmd.Args[1:], " ")
	} else if n := len(room.Messages); n > 0 {
		text = room.Messages[n-1].Content
	}
	return lang, text
}

var (
	riskKeywords       = []string{"risk", "concern", "issue", "delay", "audit", "regulat", "hack", "exploit", "lawsuit", "unlock"}
	actionKeywords     = []string{"todo", "to do", "action", "will ", "need to", "should", "by monday", "by friday", "deadline", "next step"}
	decisionKeywords   = []string{"agreed", "decided", "approve", "confirmed", "final", "let's go with", "signed"}
	complianceKeywords = []string{"guaranteed return", "guaranteed profit", "risk-free", "no risk", "insider", "pump", "100x", "security token", "skip kyc", "bypass kyc"}

	emailPattern  = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	walletPattern = regexp.MustCompile(`0x[a-fA-F0-9]{40}`)
	phonePattern  = regexp.MustCompile(`\+?\d[\d\s\-()]{7,}\d`)
	secretPattern = regexp.MustCompile(`\b(?:sk|pk|api|key)[-_][A-Za-z0-9]{16,}\b`)
)

func fallbackAnswer(cmd Command, room RoomContext) string {
	switch cmd.Name {
	case CmdHelp:
		return HelpText(room.RoomType)
	case CmdSummarize:
		return summarize(room)
	case CmdRisks:
		return bulletReport("Risks mentioned", matching(room.Messages, riskKeywords), "No explicit risks were raised. Review tokenomics, audits and regulatory exposure before committing.")
	case CmdDraft:
		return draft(draftTone(cmd), room)
	case CmdActionItems:
		return bulletReport("Action items", matching(room.Messages, actionKeywords), "No action items found in recent messages.")
	case CmdDecisions:
		return bulletReport("Decisions", matching(room.Messages, decisionKeywords), "No decisions recorded yet.")
	case CmdTranslate:
		lang, text := translateArgs(cmd, room)
		if text == "" {
			return "Nothing to translate. Usage: /raftai translate <lang> [text]"
		}
		return fmt.Sprintf("Translation to %s is unavailable right now. Original text:\n%q", lang, text)
	case CmdCompliance:
		return bulletReport("Possible compliance concerns", matching(room.Messages, complianceKeywords), "No compliance concerns detected in recent messages.")
	case CmdRedact:
		return redactionReport(room.Messages)
	}
	return HelpText(room.RoomType)
}

func summarize(room RoomContext) string {
	if len(room.Messages) == 0 {
		return "No messages to summarize yet."
	}
	participants := map[string]struct{}{}
	for _, msg := range room.Messages {
		participants[msg.SenderName] = struct{}{}
	}
	names := make([]string, 0, len(participants))
	for name := range participants {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "Summary of the last %d messages.\n", len(room.Messages))
	if project, ok := room.Memory["projectName"]; ok {
		fmt.Fprintf(&b, "Project: %v\n", project)
	}
	fmt.Fprintf(&b, "Participants: %s\n", strings.Join(names, ", "))
	b.WriteString("Most recent:\n")
	start := max(0, len(room.Messages)-5)
	for _, msg := range room.Messages[start:] {
		fmt.Fprintf(&b, "- %s: %s\n", msg.SenderName, util.Truncate(msg.Content, 120))
	}
	return strings.TrimRight(b.String(), "\n")
}

func draft(tone string, room RoomContext) string {
	project := "the project"
	if name, ok := room.Memory["projectName"]; ok {
		project = fmt.Sprint(name)
	}
	switch tone {
	case "casual":
		return fmt.Sprintf("Hey all, thanks for the chat about %s. Here's where I think we are, and what's next. Let me know what you think!", project)
	case "formal":
		return fmt.Sprintf("Dear all,\n\nFollowing our recent correspondence regarding %s, I would like to propose the next steps outlined below. Please review and confirm at your earliest convenience.\n\nRespectfully,", project)
	default:
		return fmt.Sprintf("Thank you for the discussion on %s. Based on our conversation, I propose we agree on the immediate actions, owners and timeline. Please share any adjustments.\n\nBest regards,", project)
	}
}

func matching(messages []HistoryMessage, keywords []string) []string {
	var out []string
	for _, msg := range messages {
		lower := strings.ToLower(msg.Content)
		for _, keyword := range keywords {
			if strings.Contains(lower, keyword) {
				out = append(out, fmt.Sprintf("%s: %s", msg.SenderName, util.Truncate(msg.Content, 160)))
				break
			}
		}
	}
	return out
}

func bulletReport(title string, items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	var b strings.Builder
	b.WriteString(title)
	b.WriteString(":\n")
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Redact masks emails, wallet addresses, phone numbers and API-key-like
// strings.
func Redact(text string) string {
	text = emailPattern.ReplaceAllString(text, "[email]")
	text = walletPattern.ReplaceAllString(text, "[wallet]")
	text = secretPattern.ReplaceAllString(text, "[secret]")
	text = phonePattern.ReplaceAllString(text, "[phone]")
	return text
}

func redactionReport(messages []HistoryMessage) string {
	var flagged []string
	for _, msg := range messages {
		if redacted := Redact(msg.Content); redacted != msg.Content {
			flagged = append(flagged, fmt.Sprintf("%s: %s", msg.SenderName, util.Truncate(redacted, 160)))
		}
	}
	return bulletReport("Messages containing sensitive data (shown redacted)", flagged, "No sensitive data detected in recent messages.")
}
