package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/vaultkv-go/internal/cli/repl"
)

// ShellCommand returns the interactive shell command.
func ShellCommand() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "interactive shell over one connection",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "history",
				Usage: "history file (empty string disables persistence)",
				Value: repl.DefaultHistoryFile(),
			},
		},
		Action: func(c *cli.Context) error {
			s := GetSession(c)
			if s == nil {
				return fmt.Errorf("shell: not initialized")
			}

			history := repl.NewHistory(c.String("history"))
			if err := history.Load(); err != nil {
				fmt.Fprintf(c.App.ErrWriter, "warning: load history: %v\n", err)
			}

			in := c.App.Reader
			if in == nil {
				in = os.Stdin
			}
			r := repl.New(in, s.Out, history, func(args []string) error {
				op, ok := lookup(args[0])
				if !ok {
					return fmt.Errorf("unknown command %q (type help)", args[0])
				}
				err := op.invoke(c.Context, s, args[1:])
				if IsReported(err) {
					return nil
				}
				return err
			})

			err := r.Run()
			if serr := history.Save(); serr != nil {
				fmt.Fprintf(c.App.ErrWriter, "warning: save history: %v\n", serr)
			}
			return err
		},
	}
}
