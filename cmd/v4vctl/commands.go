package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/pscheid92/peakstream/internal/domain"
	"github.com/pscheid92/peakstream/internal/platform/version"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

const (
	defaultServer  = "http://localhost:8080"
	defaultTimeout = 30 * time.Second
)

type cli struct {
	out     io.Writer
	server  string
	timeout time.Duration
}

func (c *cli) client() *apiClient {
	return newAPIClient(c.server, c.timeout)
}

// print writes a JSON response indented for humans.
func (c *cli) print(raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, err = c.out.Write(raw)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(c.out)
	return err
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	server := os.Getenv("V4VCTL_SERVER")
	if server == "" {
		server = defaultServer
	}

	root := &cobra.Command{
		Use:           "v4vctl",
		Short:         "v4vctl - control streaming payments on a peakstream server",
		SilenceUsage:  true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&c.server, "server", server, "server base URL (env V4VCTL_SERVER)")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", defaultTimeout, "request timeout")

	root.AddCommand(
		newStreamsCmd(c),
		newBoostCmd(c),
		newEarningsCmd(c),
		newSpendingCmd(c),
		newPriceCmd(c),
		newVersionCmd(c),
	)
	return root
}

func parseAmount(name, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	return d, nil
}

func newStreamsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "streams",
		Short: "Manage streaming sessions",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List active sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := c.client().get(cmd.Context(), "/api/streams", nil)
			if err != nil {
				return err
			}
			return c.print(raw)
		},
	}

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := c.client().get(cmd.Context(), "/api/streams/"+url.PathEscape(args[0]), nil)
			if err != nil {
				return err
			}
			return c.print(raw)
		},
	}

	var contentID string
	var metadata map[string]string
	start := &cobra.Command{
		Use:   "start <creator> <rate-per-minute>",
		Short: "Start paying a creator every second",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rate, err := parseAmount("rate", args[1])
			if err != nil {
				return err
			}
			raw, err := c.client().post(cmd.Context(), "/api/streams", map[string]any{
				"creator":         args[0],
				"rate_per_minute": rate,
				"content_id":      contentID,
				"metadata":        metadata,
			})
			if err != nil {
				return err
			}
			return c.print(raw)
		},
	}
	start.Flags().StringVar(&contentID, "content", "", "content identifier written into the memo")
	start.Flags().StringToStringVar(&metadata, "meta", nil, "session metadata, e.g. --meta title=\"Episode 42\"")

	rate := &cobra.Command{
		Use:   "rate <id> <rate-per-minute>",
		Short: "Change a session's rate (restarts it under a new id)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := parseAmount("rate", args[1])
			if err != nil {
				return err
			}
			raw, err := c.client().post(cmd.Context(), "/api/streams/"+url.PathEscape(args[0])+"/rate", map[string]any{
				"rate_per_minute": r,
			})
			if err != nil {
				return err
			}
			return c.print(raw)
		},
	}

	stop := &cobra.Command{
		Use:   "stop <id>",
		Short: "Stop a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := c.client().delete(cmd.Context(), "/api/streams/"+url.PathEscape(args[0]))
			if err != nil {
				return err
			}
			return c.print(raw)
		},
	}

	cmd.AddCommand(list, get, start, sessionAction(c, "pause", "Pause a session"), sessionAction(c, "resume", "Resume a paused session"), rate, stop)
	return cmd
}

func sessionAction(c *cli, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := c.client().post(cmd.Context(), "/api/streams/"+url.PathEscape(args[0])+"/"+action, nil)
			if err != nil {
				return err
			}
			return c.print(raw)
		},
	}
}

func newBoostCmd(c *cli) *cobra.Command {
	var message, contentID string
	cmd := &cobra.Command{
		Use:   "boost <creator> <amount>",
		Short: "Send a one-off tip",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount("amount", args[1])
			if err != nil {
				return err
			}
			if amount.LessThan(domain.MinBoostAmount) {
				return fmt.Errorf("boost must be at least %s, got %s", domain.MinBoostAmount, amount)
			}
			raw, err := c.client().post(cmd.Context(), "/api/boosts", map[string]any{
				"creator":    args[0],
				"amount":     amount,
				"message":    message,
				"content_id": contentID,
			})
			if err != nil {
				return err
			}
			return c.print(raw)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "message attached to the boost")
	cmd.Flags().StringVar(&contentID, "content", "", "content identifier")
	return cmd
}

func windowQuery(days int, fiat string) url.Values {
	q := url.Values{}
	if days > 0 {
		q.Set("days", strconv.Itoa(days))
	}
	if fiat != "" {
		q.Set("fiat", fiat)
	}
	return q
}

func newEarningsCmd(c *cli) *cobra.Command {
	var days int
	var fiat string
	cmd := &cobra.Command{
		Use:   "earnings <creator>",
		Short: "Summarize what a creator received",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := c.client().get(cmd.Context(), "/api/creators/"+url.PathEscape(args[0])+"/earnings", windowQuery(days, fiat))
			if err != nil {
				return err
			}
			return c.print(raw)
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "window in days (server default when 0)")
	cmd.Flags().StringVar(&fiat, "fiat", "", "also value the total in this currency")
	return cmd
}

func newSpendingCmd(c *cli) *cobra.Command {
	var days int
	var fiat string
	cmd := &cobra.Command{
		Use:   "spending",
		Short: "Summarize what the payer account sent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := c.client().get(cmd.Context(), "/api/spending", windowQuery(days, fiat))
			if err != nil {
				return err
			}
			return c.print(raw)
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "window in days (server default when 0)")
	cmd.Flags().StringVar(&fiat, "fiat", "", "also value the total in this currency")
	return cmd
}

func newPriceCmd(c *cli) *cobra.Command {
	var base, quote string
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Quote the token price",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if base != "" {
				q.Set("base", base)
			}
			if quote != "" {
				q.Set("quote", quote)
			}
			raw, err := c.client().get(cmd.Context(), "/api/price", q)
			if err != nil {
				return err
			}
			return c.print(raw)
		},
	}
	cmd.Flags().StringVar(&base, "base", "", "base symbol (server token by default)")
	cmd.Flags().StringVar(&quote, "quote", "", "quote symbol (USD by default)")

	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Drop cached prices on every instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := c.client().post(cmd.Context(), "/api/price/refresh", nil)
			if err != nil {
				return err
			}
			return c.print(raw)
		},
	})
	return cmd
}

func newVersionCmd(c *cli) *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print client (and optionally server) version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			local, err := json.Marshal(version.Get())
			if err != nil {
				return err
			}
			if !remote {
				return c.print(local)
			}
			raw, err := c.client().get(cmd.Context(), "/version", nil)
			if err != nil {
				return err
			}
			combined, err := json.Marshal(map[string]json.RawMessage{"client": local, "server": raw})
			if err != nil {
				return err
			}
			return c.print(combined)
		},
	}
	cmd.Flags().BoolVar(&remote, "server-version", false, "also query the server")
	return cmd
}
