package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/NamanBalaji/otad/internal/agent"
	"github.com/NamanBalaji/otad/internal/console"
	"github.com/NamanBalaji/otad/internal/errors"
	"github.com/NamanBalaji/otad/internal/flash"
	"github.com/NamanBalaji/otad/internal/ota"
	"github.com/NamanBalaji/otad/internal/status"
	"github.com/NamanBalaji/otad/internal/system"
	"github.com/NamanBalaji/otad/internal/transport"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Connect to the cloud and apply offered updates",
		Action: func(c *cli.Context) error {
			cfg, err := setup(c)
			if err != nil {
				return err
			}

			a, err := agent.New(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext()
			defer cancel()

			return a.Run(ctx)
		},
	}
}

func fetchCommand() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Download one image into the inactive partition",
		ArgsUsage: "URL",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "target-version",
				Usage: "version reported with the result",
				Value: "manual",
			},
			&cli.BoolFlag{
				Name:  "restart",
				Usage: "restart after the boot partition is switched",
			},
			&cli.BoolFlag{
				Name:  "journal",
				Usage: "record the attempt in the journal",
				Value: true,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("fetch needs exactly one URL", 2)
			}

			cfg, err := setup(c)
			if err != nil {
				return err
			}

			store, err := flash.OpenFileStore(cfg.Flash.Dir)
			if err != nil {
				return err
			}

			deps := ota.Deps{
				Resolver: transport.NetResolver{},
				Sockets:  transport.TCPFactory{},
				Store:    store,
				Acker:    console.NewPrinter(os.Stdout),
			}

			if c.Bool("journal") {
				journal, err := agent.OpenJournal(cfg.Journal.Path)
				if err != nil {
					return err
				}
				defer journal.Close()

				deps.Journal = journal
			}

			if c.Bool("restart") {
				deps.Restarter = system.NewRestarter()
			}

			ctx, cancel := signalContext()
			defer cancel()

			out := ota.New(deps, agent.DownloaderOptions(cfg)...).Run(ctx, ota.Offer{
				TargetVersion: c.String("target-version"),
				URL:           c.Args().First(),
			})

			if out.Err != nil {
				if out.Halting() {
					return fmt.Errorf("flash subsystem failure, manual recovery required: %w", out.Err)
				}

				return out.Err
			}

			fmt.Println(console.Field("attempt", out.ID.String()))
			fmt.Println(console.Field("written", humanize.IBytes(uint64(out.BytesWritten))))
			fmt.Println(console.Field("boot", out.Partition.String()))

			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show partitions and journaled attempts",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "number of attempts to show",
				Value: 10,
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := setup(c)
			if err != nil {
				return err
			}

			store, err := flash.OpenFileStore(cfg.Flash.Dir)
			if err != nil {
				return err
			}

			fmt.Println(console.HeaderStyle.Render("Partitions"))

			for _, p := range store.Partitions() {
				flags := ""
				if p.Running {
					flags += " running"
				}
				if p.Boot {
					flags += " boot"
				}

				fmt.Printf("  %s  %s%s\n", p.Partition.Label, humanize.IBytes(uint64(p.Size)), flags)
			}

			journal, err := agent.OpenJournal(cfg.Journal.Path)
			if err != nil {
				return err
			}
			defer journal.Close()

			records, err := journal.FindAll()
			if err != nil {
				return err
			}

			fmt.Println(console.HeaderStyle.Render("Attempts"))

			start := max(0, len(records)-c.Int("limit"))
			for _, r := range records[start:] {
				s := status.Succeeded
				switch {
				case r.ErrorKind != "" && errors.ClassOf(errors.Kind(r.ErrorKind)) == errors.ClassHalt:
					s = status.Halted
				case r.ErrorKind != "":
					s = status.Failed
				case r.Pending():
					s = status.Committing
				}

				line := fmt.Sprintf("  %s  %-8s %s  %s/%s",
					r.StartedAt.Format("2006-01-02 15:04:05"),
					r.TargetVersion,
					console.StatusStyle(s).Render(string(r.Phase)),
					humanize.IBytes(uint64(r.BytesWritten)),
					humanize.IBytes(uint64(r.TotalBytes)),
				)
				if r.ErrorKind != "" {
					line += "  " + r.ErrorKind
				}
				if r.Pending() {
					line += "  result pending"
				}

				fmt.Println(line)
			}

			return nil
		},
	}
}
