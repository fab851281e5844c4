package main

import (
	"bytes"
	stdjson "encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/olekukonko/tablewriter"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Color definitions for the interface
var (
	colorOK     = color.New(color.FgGreen, color.Bold).SprintFunc()
	colorErr    = color.New(color.FgRed, color.Bold).SprintFunc()
	colorPrompt = color.New(color.FgMagenta).SprintFunc()
	colorInfo   = color.New(color.FgBlue).SprintFunc()
)

// clearScreen clears the terminal screen.
func clearScreen() {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/c", "cls")
	default:
		cmd = exec.Command("clear")
	}
	cmd.Stdout = os.Stdout
	_ = cmd.Run()
}

func (c *cli) getJSONFromEditor() ([]byte, error) {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		if runtime.GOOS == "windows" {
			editor = "notepad"
		} else {
			editor = "vi"
		}
	}

	tmpfile, err := os.CreateTemp("", "pride-store-*.json")
	if err != nil {
		return nil, fmt.Errorf("could not create temp file: %w", err)
	}
	tmpfile.Close()
	defer os.Remove(tmpfile.Name())

	// The editor needs the terminal; readline is rebuilt afterwards.
	c.rl.Close()
	fmt.Println(colorInfo("Opening editor (", editor, ") for the record. Save and close the file to continue..."))

	cmd := exec.Command(editor, tmpfile.Name())
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	runErr := cmd.Run()

	c.rl, err = readline.NewEx(c.rlConfig)
	if err != nil {
		return nil, fmt.Errorf("fatal: could not re-initialize readline: %w", err)
	}
	if runErr != nil {
		return nil, fmt.Errorf("error running editor: %w", runErr)
	}
	return os.ReadFile(tmpfile.Name())
}

// getJSONPayload resolves an inline JSON argument, a "file:" path or "-" for the editor.
func (c *cli) getJSONPayload(payload string) ([]byte, error) {
	if payload == "-" {
		return c.getJSONFromEditor()
	}
	if path, ok := strings.CutPrefix(payload, "file:"); ok {
		return os.ReadFile(path)
	}
	return []byte(payload), nil
}

func statusText(resp *response) string {
	text := fmt.Sprintf("%d", resp.StatusCode)
	if resp.Success {
		return colorOK(text)
	}
	return colorErr(text)
}

func printStatus(resp *response) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Status", "Message"})
	table.SetAutoWrapText(false)
	table.Append([]string{statusText(resp), resp.Message})
	table.Render()
}

// printResponse renders the status table followed by the payload, as a table when asTable is set
// and the payload has a tabular shape.
func printResponse(resp *response, asTable bool) {
	printStatus(resp)
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		fmt.Println("---")
		return
	}
	if asTable && printDynamicTable(resp.Data) == nil {
		fmt.Println("---")
		return
	}
	var prettyJSON bytes.Buffer
	if err := stdjson.Indent(&prettyJSON, resp.Data, "  ", "  "); err == nil {
		fmt.Printf("  %s\n  %s\n", colorInfo("Data:"), prettyJSON.String())
	} else {
		fmt.Printf("  %s %s\n", colorInfo("Data (Raw):"), string(resp.Data))
	}
	fmt.Println("---")
}

func cellValue(val any) string {
	switch v := val.(type) {
	case map[string]any, []any:
		b, _ := json.Marshal(v)
		return string(b)
	case nil:
		return "(nil)"
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// printRecords renders records as one row each, with the union of their fields as columns.
func printRecords(records []map[string]any) {
	if len(records) == 0 {
		fmt.Println(colorInfo("(no records)"))
		return
	}
	headerSet := make(map[string]bool)
	for _, doc := range records {
		for key := range doc {
			headerSet[key] = true
		}
	}
	headers := make([]string, 0, len(headerSet))
	for key := range headerSet {
		headers = append(headers, key)
	}
	sort.Strings(headers)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	for _, doc := range records {
		row := make([]string, len(headers))
		for i, header := range headers {
			if val, ok := doc[header]; ok {
				row[i] = cellValue(val)
			} else {
				row[i] = "(n/a)"
			}
		}
		table.Append(row)
	}
	table.Render()
}

// printDynamicTable attempts to render a JSON payload as a table.
func printDynamicTable(data []byte) error {
	var records []map[string]any
	if err := json.Unmarshal(data, &records); err == nil {
		printRecords(records)
		return nil
	}

	var single map[string]any
	if err := json.Unmarshal(data, &single); err == nil {
		keys := make([]string, 0, len(single))
		for k := range single {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Field", "Value"})
		table.SetAutoWrapText(false)
		for _, k := range keys {
			table.Append([]string{k, cellValue(single[k])})
		}
		table.Render()
		return nil
	}

	var values []any
	err := json.Unmarshal(data, &values)
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Value"})
	for _, item := range values {
		table.Append([]string{cellValue(item)})
	}
	table.Render()
	return nil
}

// printHelp lists the commands grouped by category.
func printHelp(commands map[string]command) {
	byCategory := make(map[string][]string)
	for _, cmd := range commands {
		byCategory[cmd.category] = append(byCategory[cmd.category], cmd.help)
	}
	categories := make([]string, 0, len(byCategory))
	for cat := range byCategory {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	fmt.Println(colorOK("\nAvailable Commands:"))
	for _, cat := range categories {
		fmt.Println(colorInfo(cat + ":"))
		lines := byCategory[cat]
		sort.Strings(lines)
		for _, line := range lines {
			fmt.Println("    " + line)
		}
	}
	fmt.Println("---")
	fmt.Println("Filter examples:")
	fmt.Println("    search psm projectAccession==PXD000001;charge=gt=2 size 50 sort score,desc")
	fmt.Println("    count protein assayAccession=in=A1,A2")
	fmt.Println("    save project {\"accession\":\"PXD000001\",\"title\":\"...\"}")
	fmt.Println("---")
}
