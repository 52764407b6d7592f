package cli

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/VSydorenko/simplyCMS-core-sub001/internal/services"
)

// QuoteServiceFactory opens a pricing service backed by live storage. The returned
// function releases its resources.
type QuoteServiceFactory func(ctx context.Context, dsn string) (services.PricingService, func() error, error)

// Options wires the command tree. Zero values select process defaults.
type Options struct {
	Stdout       io.Writer
	Stderr       io.Writer
	Clock        func() time.Time
	QuoteService QuoteServiceFactory
}

// NewRootCommand builds the pricectl command tree.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.QuoteService == nil {
		opts.QuoteService = postgresQuoteService
	}

	root := &cobra.Command{
		Use:           "pricectl",
		Short:         "Inspect price and discount resolution",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)

	root.AddCommand(EvaluateCommand(opts))
	root.AddCommand(QuoteCommand(opts))
	return root
}
