package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Request is what a Generator gets to work with.
type Request struct {
	Question string
	Schema   string
	Tables   []string
}

// Generator produces SQL text for a request. The text may carry markdown
// fences or a "SQLQuery:" preamble; Ask cleans it.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to a Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// CommandGenerator runs an external program per request. The question is
// written to its stdin, and SQLOPS_QUESTION, SQLOPS_SCHEMA and SQLOPS_TABLES
// (comma separated) are added to its environment. Stdout is the answer.
type CommandGenerator struct {
	Args []string
	Env  []string
}

// NewCommandGenerator returns a generator running args[0] with args[1:].
func NewCommandGenerator(args ...string) (*CommandGenerator, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return nil, errors.New("workflow: generator command is required")
	}
	return &CommandGenerator{Args: args}, nil
}

// Generate runs the command and returns its stdout.
func (g *CommandGenerator) Generate(ctx context.Context, req Request) (string, error) {
	cmd := exec.CommandContext(ctx, g.Args[0], g.Args[1:]...)
	cmd.Stdin = strings.NewReader(req.Question)
	cmd.Env = append(append(os.Environ(), g.Env...),
		"SQLOPS_QUESTION="+req.Question,
		"SQLOPS_SCHEMA="+req.Schema,
		"SQLOPS_TABLES="+strings.Join(req.Tables, ","),
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s: %w: %s", g.Args[0], err, msg)
		}
		return "", fmt.Errorf("%s: %w", g.Args[0], err)
	}
	return stdout.String(), nil
}

// CleanSQL strips markdown code fences, the "SQLQuery:" label and
// surrounding whitespace from generated text.
func CleanSQL(s string) string {
	s = strings.ReplaceAll(s, "```sql", "")
	s = strings.ReplaceAll(s, "```", "")
	s = strings.ReplaceAll(s, "SQLQuery:", "")
	return strings.TrimSpace(s)
}
