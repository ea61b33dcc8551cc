package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/tojkuv/LifeSignal-sub007/internal/config"
)

// Messages used by openApp; openFailure maps them to output codes.
const (
	msgLoadConfig = "failed to load config"
	msgLogging    = "failed to configure logging"
)

// actionFunc runs one command against a started app and returns the
// result to print.
type actionFunc func(ctx context.Context, a *app) (any, error)

func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// execute opens the app, optionally refreshes, runs fn and prints its
// result. Setup failures exit with ExitCommandError, operation failures
// with ExitFailure.
func execute(cmd *cobra.Command, opts *RootOptions, refresh bool, fn actionFunc) error {
	f := newFormatter(cmd, opts)
	ctx := commandContext(cmd)

	a, err := openApp(ctx, opts, f.GetErrWriter())
	if err != nil {
		return openFailure(f, err)
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			a.logger.Error("error closing backends", "error", cerr)
		}
	}()

	if refresh {
		f.VerboseLog("refreshing contacts for %s", a.cfg.Owner)
		if err := a.engine.Refresh(ctx); err != nil {
			return f.Fail(ExitFailure, ErrCodeBackend, "refresh failed", err)
		}
	}

	result, err := fn(ctx, a)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeGeneric, cmd.Name()+" failed", err)
	}
	return f.Success(result)
}

// openFailure prints a setup error and returns it unchanged.
func openFailure(f *OutputFormatter, err error) error {
	fallback := ErrCodeBackend
	var exitErr *ExitError
	if errors.Is(err, config.ErrNotFound) ||
		(errors.As(err, &exitErr) && (exitErr.Message == msgLoadConfig || exitErr.Message == msgLogging)) {
		fallback = ErrCodeConfig
	}
	_ = f.Error(errorCode(err, fallback), err.Error(), nil)
	return err
}
