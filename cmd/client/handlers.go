package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// getCommands defines all available commands, their help, handler, and category.
func (c *cli) getCommands() map[string]command {
	return map[string]command{
		// Session
		"login": {help: "login <username> <password> - Authenticate for write commands", handler: (*cli).handleLogin, category: "Session"},
		"help":  {help: "help - Shows this help message", handler: (*cli).handleHelp, category: "Session"},
		"exit":  {help: "exit - Exits the client", handler: (*cli).handleExit, category: "Session"},
		"clear": {help: "clear - Clears the screen", handler: (*cli).handleClear, category: "Session"},

		// Queries
		"entities": {help: "entities - Lists the entities and their collections", handler: (*cli).handleEntities, category: "Queries"},
		"search":   {help: "search <entity> [filter] [page N] [size N] [sort f,dir;f,dir] - Pages through matching records", handler: (*cli).handleSearch, category: "Queries"},
		"count":    {help: "count <entity> [filter] - Counts matching records", handler: (*cli).handleCount, category: "Queries"},

		// Writes
		"save":       {help: "save <entity> <json|file:path|-> - Upserts one record by its natural key", handler: (*cli).handleSave, category: "Writes", write: true},
		"delete all": {help: "delete all <entity> - Deletes every record of an entity", handler: (*cli).handleDeleteAll, category: "Writes", write: true},

		// Server operations
		"backup":  {help: "backup - Triggers a manual server backup", handler: (*cli).handleBackup, category: "Server Operations", write: true},
		"backups": {help: "backups - Lists the server backups", handler: (*cli).handleBackups, category: "Server Operations", write: true},
	}
}

func (c *cli) handleLogin(args string) error {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		return errors.New("usage: login <username> <password>")
	}
	if err := c.api.login(parts[0], parts[1]); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	c.isAuthenticated = true
	c.currentUser = parts[0]
	c.rl.Config.AutoComplete = c.getCompleter()
	fmt.Println(colorOK("√ Logged in as ", parts[0]))
	return nil
}

func (c *cli) handleHelp(args string) error {
	printHelp(c.commands)
	return nil
}

func (c *cli) handleExit(args string) error {
	return io.EOF
}

func (c *cli) handleClear(args string) error {
	clearScreen()
	return nil
}

func (c *cli) handleEntities(args string) error {
	resp, err := c.api.do(http.MethodGet, "/api", nil, nil)
	if err != nil {
		return err
	}
	printResponse(resp, true)
	return nil
}

// searchArgs is the parsed form of the search command.
type searchArgs struct {
	entity string
	params url.Values
}

// parseSearchArgs reads "<entity> [filter] [page N] [size N] [sort spec]". Tokens that are not
// paging keywords are joined back into the filter expression.
func parseSearchArgs(args string) (searchArgs, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return searchArgs{}, errors.New("an entity name is required")
	}
	out := searchArgs{entity: parts[0], params: url.Values{}}
	var filterParts []string
	for i := 1; i < len(parts); i++ {
		switch kw := parts[i]; kw {
		case "page", "size", "sort":
			if i+1 >= len(parts) {
				return out, fmt.Errorf("'%s' needs a value", kw)
			}
			value := parts[i+1]
			if kw != "sort" {
				if _, err := strconv.Atoi(value); err != nil {
					return out, fmt.Errorf("'%s' must be a number, got %q", kw, value)
				}
			}
			out.params.Set(kw, value)
			i++
		default:
			filterParts = append(filterParts, parts[i])
		}
	}
	if len(filterParts) > 0 {
		out.params.Set("filter", strings.Join(filterParts, " "))
	}
	return out, nil
}

func (c *cli) handleSearch(args string) error {
	sa, err := parseSearchArgs(args)
	if err != nil {
		return fmt.Errorf("%w (usage: search <entity> [filter] [page N] [size N] [sort f,dir])", err)
	}
	resp, err := c.api.do(http.MethodGet, "/api/"+url.PathEscape(sa.entity), sa.params, nil)
	if err != nil {
		return err
	}
	if !resp.Success {
		printResponse(resp, false)
		return nil
	}
	var page struct {
		Content       []map[string]any `json:"content"`
		TotalElements int64            `json:"totalElements"`
		Page          int              `json:"page"`
		Size          int              `json:"size"`
	}
	if err := json.Unmarshal(resp.Data, &page); err != nil {
		return fmt.Errorf("unexpected page payload: %w", err)
	}
	printStatus(resp)
	printRecords(page.Content)
	pages := int64(0)
	if page.Size > 0 {
		pages = (page.TotalElements + int64(page.Size) - 1) / int64(page.Size)
	}
	fmt.Println(colorInfo(fmt.Sprintf("Page %d of %d, %d records in total", page.Page+1, max(pages, 1), page.TotalElements)))
	return nil
}

func (c *cli) handleCount(args string) error {
	entity, expr, _ := strings.Cut(strings.TrimSpace(args), " ")
	if entity == "" {
		return errors.New("usage: count <entity> [filter]")
	}
	params := url.Values{}
	if expr = strings.TrimSpace(expr); expr != "" {
		params.Set("filter", expr)
	}
	resp, err := c.api.do(http.MethodGet, "/api/"+url.PathEscape(entity)+"/count", params, nil)
	if err != nil {
		return err
	}
	printResponse(resp, false)
	return nil
}

func (c *cli) handleSave(args string) error {
	entity, payload, _ := strings.Cut(strings.TrimSpace(args), " ")
	payload = strings.TrimSpace(payload)
	if entity == "" || payload == "" {
		return errors.New("usage: save <entity> <json|file:path|->")
	}
	body, err := c.getJSONPayload(payload)
	if err != nil {
		return err
	}
	if !json.Valid(body) {
		return errors.New("the record is not valid JSON")
	}
	resp, err := c.api.do(http.MethodPost, "/api/"+url.PathEscape(entity), nil, body)
	if err != nil {
		return err
	}
	printResponse(resp, true)
	return nil
}

func (c *cli) handleDeleteAll(args string) error {
	entity := strings.TrimSpace(args)
	if entity == "" || strings.Contains(entity, " ") {
		return errors.New("usage: delete all <entity>")
	}
	c.rl.SetPrompt(colorErr(fmt.Sprintf("Delete every %s record? [y/N] ", entity)))
	answer, err := c.rl.Readline()
	if err != nil {
		return err
	}
	if !strings.EqualFold(strings.TrimSpace(answer), "y") {
		fmt.Println(colorInfo("Aborted."))
		return nil
	}
	resp, err := c.api.do(http.MethodDelete, "/api/"+url.PathEscape(entity), nil, nil)
	if err != nil {
		return err
	}
	printResponse(resp, false)
	return nil
}

func (c *cli) handleBackup(args string) error {
	resp, err := c.api.do(http.MethodPost, "/admin/backups", nil, nil)
	if err != nil {
		return err
	}
	printResponse(resp, false)
	return nil
}

func (c *cli) handleBackups(args string) error {
	resp, err := c.api.do(http.MethodGet, "/admin/backups", nil, nil)
	if err != nil {
		return err
	}
	printResponse(resp, true)
	return nil
}
