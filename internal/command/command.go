package command

import (
	"fmt"
	"strings"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Command is one of the closed set of variants below. Each is built and
// validated once, then handed to the Dispatcher.
type Command interface {
	Name() string
	Validate() error
	command()
}

type IngestCommand struct {
	Paths []string
	Prune bool
}

type SearchCommand struct {
	Query    string
	Limit    int
	MinScore float64
	Format   string
}

type ChatCommand struct {
	Question string
}

type ResetCommand struct {
	Force bool
}

type StatsCommand struct {
	Format string
}

type ServeCommand struct{}

func (IngestCommand) Name() string { return "ingest" }
func (SearchCommand) Name() string { return "search" }
func (ChatCommand) Name() string   { return "chat" }
func (ResetCommand) Name() string  { return "reset" }
func (StatsCommand) Name() string  { return "stats" }
func (ServeCommand) Name() string  { return "serve" }

func (IngestCommand) command() {}
func (SearchCommand) command() {}
func (ChatCommand) command()   {}
func (ResetCommand) command()  {}
func (StatsCommand) command()  {}
func (ServeCommand) command()  {}

func (c IngestCommand) Validate() error {
	if len(c.Paths) == 0 {
		return fmt.Errorf("ingest needs at least one path")
	}
	for _, p := range c.Paths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("ingest path must not be empty")
		}
	}
	return nil
}

func (c SearchCommand) Validate() error {
	if strings.TrimSpace(c.Query) == "" {
		return fmt.Errorf("please provide a search query")
	}
	if c.Limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", c.Limit)
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return fmt.Errorf("min score must be 0-1, got %v", c.MinScore)
	}
	return validateFormat(c.Format)
}

func (c ChatCommand) Validate() error {
	if strings.TrimSpace(c.Question) == "" {
		return fmt.Errorf("please provide a question, example: docrag chat 'How do I...?'")
	}
	return nil
}

func (ResetCommand) Validate() error { return nil }

func (c StatsCommand) Validate() error {
	return validateFormat(c.Format)
}

func (ServeCommand) Validate() error { return nil }

func validateFormat(format string) error {
	switch format {
	case FormatText, FormatJSON:
		return nil
	}
	return fmt.Errorf("unknown format %q, want text or json", format)
}
