package bootshell

import (
	"fmt"
	"strings"
)

// Handler executes one parsed command against the shell.
type Handler func(s *Shell, cmd Command) error

// Group names a set of related commands. The registry is assembled from the
// enabled groups at startup, so trimming a bootloader to a subset of the
// protocol is a configuration choice.
type Group string

const (
	GroupBase      Group = "base"
	GroupEtc       Group = "etc"
	GroupMemory    Group = "memory"
	GroupOptBytes  Group = "optbytes"
	GroupUpdateNew Group = "update-new"
	GroupUpdateAct Group = "update-act"
)

// AllGroups enables the full command set.
var AllGroups = []Group{GroupBase, GroupEtc, GroupMemory, GroupOptBytes,
	GroupUpdateNew, GroupUpdateAct}

// entry binds a command name to its handler. Quiet commands produce their
// own terminal response (or never return control), so the dispatcher does
// not append the shared success token for them.
type entry struct {
	name  string
	group Group
	help  string
	quiet bool
	run   Handler
}

type registry struct {
	entries []entry
	byName  map[string]entry
}

func newRegistry(groups []Group) *registry {
	enabled := make(map[Group]bool, len(groups))
	for _, g := range groups {
		enabled[g] = true
	}
	r := &registry{byName: make(map[string]entry)}
	for _, e := range commandTable {
		if !enabled[e.group] {
			continue
		}
		r.entries = append(r.entries, e)
		r.byName[e.name] = e
	}
	return r
}

func (r *registry) has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// dispatch resolves the command name with an exact match, runs the handler
// and emits the shared success token exactly once on success.
func (r *registry) dispatch(s *Shell, cmd Command) error {
	e, ok := r.byName[cmd.Name]
	if !ok {
		return ErrCmdUndefined
	}
	if err := e.run(s, cmd); err != nil {
		return err
	}
	if e.quiet {
		return nil
	}
	return s.send(TxtSuccess)
}

// helpText renders the command catalogue for the help command.
func (r *registry) helpText(version string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bootloader shell %s%s", version, CRLF)
	b.WriteString("Optional parameters are surrounded with []" + CRLF + CRLF)
	for _, e := range r.entries {
		fmt.Fprintf(&b, "- %s | %s%s", e.name, e.help, CRLF)
	}
	return b.String()
}
