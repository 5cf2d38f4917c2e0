package repl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Prompt is printed before each line is read.
const Prompt = "vaultkv> "

// Executor runs one parsed command line.
type Executor func(args []string) error

// REPL represents the Read-Eval-Print Loop.
type REPL struct {
	input     io.Reader
	output    io.Writer
	completer *Completer
	history   *History
	exec      Executor
}

// New creates a REPL reading from in and writing to out.
func New(in io.Reader, out io.Writer, history *History, exec Executor) *REPL {
	return &REPL{
		input:     in,
		output:    out,
		completer: NewCompleter(),
		history:   history,
		exec:      exec,
	}
}

// Run loops until exit, quit or end of input. Command failures are
// printed and do not stop the loop.
func (r *REPL) Run() error {
	reader := bufio.NewReader(r.input)

	for {
		fmt.Fprint(r.output, Prompt)

		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		eof := errors.Is(err, io.EOF)

		line = strings.TrimSpace(line)
		if line == "" {
			if eof {
				fmt.Fprintln(r.output)
				return nil
			}
			continue
		}

		r.history.Add(line)

		switch line {
		case "exit", "quit":
			return nil
		case "help":
			r.printHelp()
		default:
			r.execute(line)
		}
		if eof {
			return nil
		}
	}
}

func (r *REPL) execute(line string) {
	args, err := SplitArgs(line)
	if err != nil {
		fmt.Fprintf(r.output, "Error: %v\n", err)
		return
	}
	if r.exec == nil {
		return
	}
	if err := r.exec(args); err != nil {
		fmt.Fprintf(r.output, "Error: %v\n", err)
		if suggestions := r.completer.Complete(args[0]); len(suggestions) > 0 && suggestions[0] != args[0] {
			fmt.Fprintf(r.output, "Did you mean: %s\n", strings.Join(suggestions, ", "))
		}
	}
}

func (r *REPL) printHelp() {
	fmt.Fprintln(r.output, "Commands:")
	for _, c := range r.completer.commands {
		fmt.Fprintf(r.output, "  %s\n", c)
	}
}

// SplitArgs splits line on whitespace. Single or double quotes group words
// and a backslash escapes the next character.
func SplitArgs(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		quote   rune
		escaped bool
		inWord  bool
	)
	for _, c := range line {
		switch {
		case escaped:
			cur.WriteRune(c)
			escaped = false
		case c == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				cur.WriteRune(c)
			}
		case c == '"' || c == '\'':
			quote = c
			inWord = true
		case c == ' ' || c == '\t':
			if inWord {
				args = append(args, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(c)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if escaped {
		return nil, errors.New("trailing backslash")
	}
	if inWord {
		args = append(args, cur.String())
	}
	return args, nil
}
