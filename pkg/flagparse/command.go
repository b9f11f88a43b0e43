package flagparse

import (
	"fmt"
	"strings"

	"github.com/paulschiretz/pgl-dirsync/pkg/util"
)

// Command defines the command to execute.
type Command int

const (
	None Command = iota
	Sync
	Preview
	Init
	List
	Edit
	Version
)

var commandToString = map[Command]string{
	None:    "none",
	Sync:    "sync",
	Preview: "preview",
	Init:    "init",
	List:    "list",
	Edit:    "edit",
	Version: "version",
}

var stringToCommand map[string]Command

func init() {
	stringToCommand = util.InvertMap(commandToString)
}

func (c Command) String() string {
	if str, ok := commandToString[c]; ok {
		return str
	}
	return fmt.Sprintf("unknown_command(%d)", c)
}

func ParseCommand(s string) (Command, error) {
	if command, ok := stringToCommand[strings.ToLower(s)]; ok && command != None {
		return command, nil
	}
	return None, fmt.Errorf("invalid command: %q. Must be 'sync', 'preview', 'init', 'list', 'edit' or 'version'", s)
}
