package models

import "strings"

// CommandType enumerates the chat quick-entry commands.
type CommandType string

const (
	CommandWeighing CommandType = "peso"
	CommandFeed     CommandType = "pienso"
	CommandSummary  CommandType = "resumen"
	CommandWeek     CommandType = "semana"
	CommandHelp     CommandType = "ayuda"
	CommandUnknown  CommandType = "unknown"
)

var commandAliases = map[string]CommandType{
	"peso":    CommandWeighing,
	"weigh":   CommandWeighing,
	"pienso":  CommandFeed,
	"feed":    CommandFeed,
	"resumen": CommandSummary,
	"summary": CommandSummary,
	"semana":  CommandWeek,
	"week":    CommandWeek,
	"ayuda":   CommandHelp,
	"help":    CommandHelp,
}

// Command represents a parsed quick-entry instruction extracted from chat text.
type Command struct {
	Type CommandType
	Raw  string
	Args []string
}

// ParseCommand derives a Command from a free-form text message. A leading
// slash is ignored and arguments keep their original case.
func ParseCommand(message string) Command {
	cmd := Command{Type: CommandUnknown, Raw: message}

	tokens := strings.Fields(message)
	if len(tokens) == 0 {
		return cmd
	}

	head := strings.ToLower(strings.TrimPrefix(tokens[0], "/"))
	if t, ok := commandAliases[head]; ok {
		cmd.Type = t
	}
	if len(tokens) > 1 {
		cmd.Args = tokens[1:]
	}
	return cmd
}
