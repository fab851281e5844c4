package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chzyer/readline"
)

// command describes one REPL command; category groups the help output.
type command struct {
	help     string
	handler  func(c *cli, args string) error
	category string
	// write marks commands that need a prior login.
	write bool
}

type cli struct {
	api               *apiClient
	rl                *readline.Instance
	rlConfig          *readline.Config
	isAuthenticated   bool
	currentUser       string
	commands          map[string]command
	multiWordCommands []string
}

func newCLI(api *apiClient) *cli {
	c := &cli{api: api}
	c.commands = c.getCommands()

	var mwCmds []string
	for cmd := range c.commands {
		if strings.Contains(cmd, " ") {
			mwCmds = append(mwCmds, cmd)
		}
	}
	// Longest first so that prefixes do not shadow longer commands.
	sort.Slice(mwCmds, func(i, j int) bool {
		return len(mwCmds[i]) > len(mwCmds[j])
	})
	c.multiWordCommands = mwCmds
	return c
}

func (c *cli) run(user, pass string) error {
	c.rlConfig = &readline.Config{
		Prompt:          "> ",
		HistoryFile:     historyFile(),
		AutoComplete:    c.getCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	}

	var err error
	c.rl, err = readline.NewEx(c.rlConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer func() { c.rl.Close() }()

	if user != "" && pass != "" {
		fmt.Println(colorInfo("Attempting automatic login for user ", user))
		if err := c.handleLogin(user + " " + pass); err != nil {
			fmt.Println(colorErr("Automatic login failed: ", err))
		}
	}
	if !c.isAuthenticated {
		fmt.Println(colorInfo("Reads work anonymously. Use 'login <username> <password>' before save or delete."))
	}
	return c.mainLoop()
}

func (c *cli) mainLoop() error {
	for {
		prompt := "> "
		if c.isAuthenticated && c.currentUser != "" {
			prompt = c.currentUser + "> "
		}
		c.rl.SetPrompt(colorPrompt(prompt))

		input, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if len(input) == 0 {
					break
				}
				continue
			} else if errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		cmd, args := c.getCommandAndRawArgs(input)
		handler, found := c.commands[cmd]
		if !found {
			fmt.Println(colorErr("Error: Unknown command. Type 'help' for commands: ", cmd))
			continue
		}
		if handler.write && !c.isAuthenticated {
			fmt.Println(colorErr("Error: You must log in first. Use: login <username> <password>"))
			continue
		}

		startTime := time.Now()
		if err := handler.handler(c, args); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			fmt.Println(colorErr("Command failed: ", err))
		}
		if cmd != "clear" && cmd != "help" {
			fmt.Println(colorInfo("Request time: ", time.Since(startTime).Round(time.Millisecond)))
		}
	}
	fmt.Println(colorInfo("\nExiting client. Goodbye!"))
	return nil
}

// getCommandAndRawArgs splits input into a command and its raw arguments.
func (c *cli) getCommandAndRawArgs(input string) (string, string) {
	for _, mwCmd := range c.multiWordCommands {
		if strings.HasPrefix(input, mwCmd+" ") || input == mwCmd {
			return mwCmd, strings.TrimSpace(input[len(mwCmd):])
		}
	}
	cmd, args, _ := strings.Cut(input, " ")
	return cmd, strings.TrimSpace(args)
}

func historyFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "pride-store-history")
}
