package command

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/vaultkv-go/internal/cli/output"
	"github.com/yndnr/vaultkv-go/internal/protocol"
)

// operation is one server call, shared by the top-level commands and the
// shell.
type operation struct {
	name      string
	usage     string
	argsUsage string
	nargs     int
	run       func(ctx context.Context, s *Session, args []string) error
}

var operations = []operation{
	{
		name:      "put",
		usage:     "store VALUE under KEY",
		argsUsage: "KEY VALUE",
		nargs:     2,
		run: func(ctx context.Context, s *Session, args []string) error {
			return s.Put(ctx, args[0], args[1])
		},
	},
	{
		name:      "get",
		usage:     "print the value stored under KEY",
		argsUsage: "KEY",
		nargs:     1,
		run: func(ctx context.Context, s *Session, args []string) error {
			return s.Get(ctx, args[0])
		},
	},
	{
		name:      "delete",
		usage:     "remove KEY",
		argsUsage: "KEY",
		nargs:     1,
		run: func(ctx context.Context, s *Session, args []string) error {
			return s.Delete(ctx, args[0])
		},
	},
	{
		name:  "ping",
		usage: "check that the server answers",
		run: func(ctx context.Context, s *Session, _ []string) error {
			return s.Ping(ctx)
		},
	},
	{
		name:      "hello",
		usage:     "register a client id for this connection",
		argsUsage: "CLIENT_ID",
		nargs:     1,
		run: func(ctx context.Context, s *Session, args []string) error {
			return s.Hello(ctx, args[0])
		},
	},
}

func lookup(name string) (operation, bool) {
	for _, op := range operations {
		if op.name == name {
			return op, true
		}
	}
	return operation{}, false
}

func (op operation) invoke(ctx context.Context, s *Session, args []string) error {
	if len(args) != op.nargs {
		return usageError(op.name, op.argsUsage)
	}
	return op.run(ctx, s, args)
}

func (op operation) command() *cli.Command {
	return &cli.Command{
		Name:      op.name,
		Usage:     op.usage,
		ArgsUsage: op.argsUsage,
		Action: func(c *cli.Context) error {
			s := GetSession(c)
			if s == nil {
				return fmt.Errorf("%s: not initialized", op.name)
			}
			return op.invoke(c.Context, s, c.Args().Slice())
		},
	}
}

func mustLookup(name string) operation {
	op, ok := lookup(name)
	if !ok {
		panic("command: unknown operation " + name)
	}
	return op
}

// PutCommand returns the put command.
func PutCommand() *cli.Command { return mustLookup("put").command() }

// GetCommand returns the get command.
func GetCommand() *cli.Command { return mustLookup("get").command() }

// DeleteCommand returns the delete command.
func DeleteCommand() *cli.Command { return mustLookup("delete").command() }

// PingCommand returns the ping command.
func PingCommand() *cli.Command { return mustLookup("ping").command() }

// HelloCommand returns the hello command.
func HelloCommand() *cli.Command { return mustLookup("hello").command() }

// Put stores value under key.
func (s *Session) Put(ctx context.Context, key, value string) error {
	c, err := s.Conn.Client(ctx)
	if err != nil {
		return err
	}
	err = s.settle(c.Put(ctx, key, []byte(value)))
	return s.Print(output.Result{
		Op:      string(protocol.OpPut),
		Key:     key,
		Status:  statusOf(err),
		Message: messageOf(err),
	}, err)
}

// Get prints the verified value stored under key.
func (s *Session) Get(ctx context.Context, key string) error {
	c, err := s.Conn.Client(ctx)
	if err != nil {
		return err
	}
	item, err := c.Get(ctx, key)
	err = s.settle(err)
	r := output.Result{
		Op:      string(protocol.OpGet),
		Key:     key,
		Status:  statusOf(err),
		Message: messageOf(err),
	}
	if err == nil {
		r.Value = string(item.Value)
		r.Digest = item.Digest.String()
	}
	return s.Print(r, err)
}

// Delete removes key.
func (s *Session) Delete(ctx context.Context, key string) error {
	c, err := s.Conn.Client(ctx)
	if err != nil {
		return err
	}
	err = s.settle(c.Delete(ctx, key))
	return s.Print(output.Result{
		Op:      string(protocol.OpDelete),
		Key:     key,
		Status:  statusOf(err),
		Message: messageOf(err),
	}, err)
}

// Ping checks the server answers.
func (s *Session) Ping(ctx context.Context) error {
	c, err := s.Conn.Client(ctx)
	if err != nil {
		return err
	}
	msg, err := c.Ping(ctx)
	err = s.settle(err)
	if err == nil {
		return s.Print(output.Result{Op: string(protocol.OpPing), Status: statusOf(nil), Message: msg}, nil)
	}
	return s.Print(output.Result{Op: string(protocol.OpPing), Status: statusOf(err), Message: messageOf(err)}, err)
}

// Hello registers id for the current connection.
func (s *Session) Hello(ctx context.Context, id string) error {
	c, err := s.Conn.Client(ctx)
	if err != nil {
		return err
	}
	registered, err := c.Hello(ctx, id)
	err = s.settle(err)
	r := output.Result{Op: string(protocol.OpHello), Status: statusOf(err), Message: messageOf(err)}
	if err == nil {
		r.Message = registered
	}
	return s.Print(r, err)
}
