package command

import (
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/vaultkv-go/internal/cli/config"
	"github.com/yndnr/vaultkv-go/internal/cli/connection"
	"github.com/yndnr/vaultkv-go/internal/cli/output"
	"github.com/yndnr/vaultkv-go/internal/core/domain"
	"github.com/yndnr/vaultkv-go/internal/infra/buildinfo"
)

const metaSession = "session"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "vaultkv-cli",
		Usage:   "command-line client for vaultkv",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			PutCommand(),
			GetCommand(),
			DeleteCommand(),
			PingCommand(),
			HelloCommand(),
			ShellCommand(),
		},
		Before: setup,
		After:  teardown,
	}
}

// globalFlags returns the global CLI flags. Unset flags fall back to the
// CLI config file.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "CLI config file",
			EnvVars: []string{"VAULTKV_CLI_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "host",
			Aliases: []string{"H"},
			Usage:   "server host",
			EnvVars: []string{"VAULTKV_HOST"},
			Value:   config.DefaultHost,
		},
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "server port",
			EnvVars: []string{"VAULTKV_PORT"},
			Value:   config.DefaultPort,
		},
		&cli.StringFlag{
			Name:    "ca-file",
			Usage:   "PEM file with the server certificate or its CA",
			EnvVars: []string{"VAULTKV_CA_FILE"},
		},
		&cli.StringFlag{
			Name:    "server-name",
			Usage:   "name to verify in the server certificate (default: host)",
			EnvVars: []string{"VAULTKV_SERVER_NAME"},
		},
		&cli.StringFlag{
			Name:    "client-id",
			Usage:   "client id to register with HELLO",
			EnvVars: []string{"VAULTKV_CLIENT_ID"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format: text, json, yaml",
			EnvVars: []string{"VAULTKV_OUTPUT"},
			Value:   config.DefaultOutput,
		},
	}
}

// GlobalFlags holds the resolved global options.
type GlobalFlags struct {
	Target connection.Target
	Output output.Format
}

// ParseGlobalFlags merges the config file under the flags set in c.
func ParseGlobalFlags(c *cli.Context) (*GlobalFlags, error) {
	file, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	pick := func(name, fromFile string) string {
		if c.IsSet(name) || fromFile == "" {
			return c.String(name)
		}
		return fromFile
	}
	port := c.Int("port")
	if !c.IsSet("port") && file.Port > 0 {
		port = file.Port
	}

	format, err := output.ParseFormat(pick("output", file.Output))
	if err != nil {
		return nil, err
	}
	return &GlobalFlags{
		Target: connection.Target{
			Host:       pick("host", file.Host),
			Port:       port,
			CAFile:     pick("ca-file", file.CAFile),
			ServerName: pick("server-name", file.ServerName),
			ClientID:   pick("client-id", file.ClientID),
		},
		Output: format,
	}, nil
}

// Session is the per-invocation state shared by commands.
type Session struct {
	Conn      *connection.Manager
	Formatter output.Formatter
	Out       io.Writer
}

func setup(c *cli.Context) error {
	flags, err := ParseGlobalFlags(c)
	if err != nil {
		return err
	}
	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[metaSession] = &Session{
		Conn:      connection.NewManager(flags.Target),
		Formatter: output.NewFormatter(flags.Output),
		Out:       c.App.Writer,
	}
	return nil
}

func teardown(c *cli.Context) error {
	if s := GetSession(c); s != nil {
		_ = s.Conn.Disconnect()
	}
	return nil
}

// GetSession retrieves the session set up by the Before hook.
func GetSession(c *cli.Context) *Session {
	if s, ok := c.App.Metadata[metaSession].(*Session); ok {
		return s
	}
	return nil
}

// Print formats r. A non-OK result comes back as an error already shown
// to the user; see IsReported.
func (s *Session) Print(r output.Result, err error) error {
	if ferr := s.Formatter.Format(s.Out, r); ferr != nil {
		return ferr
	}
	if err != nil {
		return &reportedError{err: err}
	}
	return nil
}

type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// IsReported reports whether err was already printed as a result.
func IsReported(err error) bool {
	var re *reportedError
	return errors.As(err, &re)
}

// settle inspects a call error. A status reply leaves the connection
// usable; a transport failure or an ERROR reply drops it so the next call
// redials.
func (s *Session) settle(err error) error {
	if err == nil {
		return nil
	}
	var de *domain.DomainError
	if !errors.As(err, &de) || errors.Is(err, domain.ErrProtocol) {
		_ = s.Conn.Disconnect()
	}
	return err
}

func statusOf(err error) string {
	return string(domain.StatusOf(err))
}

func messageOf(err error) string {
	var de *domain.DomainError
	if errors.As(err, &de) {
		if de.Details != "" {
			return de.Details
		}
		return de.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

func usageError(name, argsUsage string) error {
	return fmt.Errorf("usage: %s %s", name, argsUsage)
}
