// Package command parses free-text chat messages into typed bot commands.
// Parsing is pure: no I/O, no errors. Unparseable input that starts with a
// recognized verb becomes NotSupported; anything not starting with '!' is
// not a command at all.
package command

import (
	"strconv"
	"strings"

	"github.com/relayops/relaybot/internal/alert"
)

// Kind identifies what a parsed command asks for.
type Kind string

const (
	KindHelp           Kind = "help"
	KindSubscribe      Kind = "subscribe"
	KindSubscribeAll   Kind = "subscribe_all"
	KindUnsubscribe    Kind = "unsubscribe"
	KindUnsubscribeAll Kind = "unsubscribe_all"
	KindNotSupported   Kind = "not_supported"
)

// Command is one parsed chat command tagged with its sender.
type Command struct {
	Kind     Kind
	Member   string
	Severity alert.Severity // empty when the command did not name one
	Mute     *int           // minutes; nil when the command did not name one
	Sender   string
}

// Grammar:
//
//	!help
//	!subscribe alerts [MUTE]
//	!subscribe alerts MEMBER [MUTE]
//	!subscribe alerts MEMBER SEVERITY [MUTE]
//	!unsubscribe alerts
//	!unsubscribe alerts MEMBER
//	!unsubscribe alerts MEMBER SEVERITY
//
// MUTE is an integer in literal brackets, e.g. [10], in minutes.
// Disambiguation is greedy left to right: after "alerts" each position is
// tried as a mute time before being taken as MEMBER or SEVERITY. Unknown
// severity strings fall back to low (historical behavior, kept on purpose).

// Parse maps one line of chat text onto a command. The second return is
// false when the line is not addressed to the bot (no leading '!').
func Parse(line, sender string) (Command, bool) {
	tokens := strings.Fields(strings.TrimSpace(line))
	if len(tokens) == 0 || !strings.HasPrefix(tokens[0], "!") {
		return Command{}, false
	}

	notSupported := Command{Kind: KindNotSupported, Sender: sender}

	switch tokens[0] {
	case "!help":
		if len(tokens) == 1 {
			return Command{Kind: KindHelp, Sender: sender}, true
		}
		return notSupported, true

	case "!subscribe":
		if len(tokens) < 2 || tokens[1] != "alerts" {
			return notSupported, true
		}
		return parseSubscribe(tokens[2:], sender), true

	case "!unsubscribe":
		if len(tokens) < 2 || tokens[1] != "alerts" {
			return notSupported, true
		}
		return parseUnsubscribe(tokens[2:], sender), true

	default:
		return notSupported, true
	}
}

// parseSubscribe resolves the argument tail after "!subscribe alerts".
func parseSubscribe(args []string, sender string) Command {
	switch len(args) {
	case 0:
		return Command{Kind: KindSubscribeAll, Sender: sender}
	case 1:
		if mute, ok := extractMuteTime(args[0]); ok {
			return Command{Kind: KindSubscribeAll, Mute: &mute, Sender: sender}
		}
		return Command{Kind: KindSubscribe, Member: args[0], Sender: sender}
	case 2:
		if mute, ok := extractMuteTime(args[1]); ok {
			return Command{Kind: KindSubscribe, Member: args[0], Mute: &mute, Sender: sender}
		}
		return Command{
			Kind:     KindSubscribe,
			Member:   args[0],
			Severity: alert.ParseSeverity(args[1]),
			Sender:   sender,
		}
	case 3:
		if mute, ok := extractMuteTime(args[2]); ok {
			return Command{
				Kind:     KindSubscribe,
				Member:   args[0],
				Severity: alert.ParseSeverity(args[1]),
				Mute:     &mute,
				Sender:   sender,
			}
		}
	}
	return Command{Kind: KindNotSupported, Sender: sender}
}

// parseUnsubscribe resolves the argument tail after "!unsubscribe alerts".
func parseUnsubscribe(args []string, sender string) Command {
	switch {
	case len(args) == 0:
		return Command{Kind: KindUnsubscribeAll, Sender: sender}
	case len(args) == 1:
		return Command{Kind: KindUnsubscribe, Member: args[0], Sender: sender}
	default:
		// Everything after the member parses as a severity; junk falls
		// back to low exactly like a single unknown token.
		return Command{
			Kind:     KindUnsubscribe,
			Member:   args[0],
			Severity: alert.ParseSeverity(strings.Join(args[1:], " ")),
			Sender:   sender,
		}
	}
}

// extractMuteTime parses a bracketed mute interval such as "[10]". The
// brackets are stripped leniently, so "10]" and "[10" are accepted too.
func extractMuteTime(token string) (int, bool) {
	trimmed := strings.TrimRight(strings.TrimLeft(token, "["), "]")
	if trimmed == "" {
		return 0, false
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
