package main

import (
	"strings"

	"github.com/chzyer/readline"
)

func (c *cli) getCompleter() readline.AutoCompleter {
	items := []readline.PrefixCompleterInterface{
		readline.PcItem("login"),
		readline.PcItem("entities"),
		readline.PcItem("search", readline.PcItemDynamic(c.fetchEntityNames)),
		readline.PcItem("count", readline.PcItemDynamic(c.fetchEntityNames)),
		readline.PcItem("clear"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	}
	if c.isAuthenticated {
		items = append(items,
			readline.PcItem("save", readline.PcItemDynamic(c.fetchEntityNames)),
			readline.PcItem("delete", readline.PcItem("all", readline.PcItemDynamic(c.fetchEntityNames))),
			readline.PcItem("backup"),
			readline.PcItem("backups"),
		)
	}
	return readline.NewPrefixCompleter(items...)
}

// fetchEntityNames asks the server for the entity names matching the word being typed.
func (c *cli) fetchEntityNames(line string) []string {
	names, err := c.api.entities()
	if err != nil {
		return nil
	}
	prefix := ""
	if parts := strings.Fields(line); len(parts) > 1 && !strings.HasSuffix(line, " ") {
		prefix = parts[len(parts)-1]
	}
	var suggestions []string
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			suggestions = append(suggestions, name)
		}
	}
	return suggestions
}
