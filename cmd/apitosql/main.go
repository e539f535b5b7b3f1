package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the command line in args and returns the process exit code.
func execute(ctx context.Context, args []string, stderr io.Writer) int {
	s := &session{}
	defer s.close()

	cmd := newRootCmd(s)
	cmd.SetArgs(args)
	cmd.SetOut(stderr)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if s.logger != nil {
			s.logger.Error("command failed", zap.Error(err))
		} else {
			fmt.Fprintf(stderr, "apitosql: %v\n", err)
		}
		return 1
	}
	return 0
}
