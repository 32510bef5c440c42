// Package console implements an in-process operator REPL for inspecting a
// running translator daemon: list instances, show one instance's
// configuration, flush a namespace's instances from the registry, and
// hand-feed a hex-encoded
// IPv6 datagram through the live translation pipeline for debugging. It is
// the daemon's own debug surface, attached to its controlling terminal, in
// place of a wire CLI protocol (out of scope).
package console

import (
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/reeflective/console"
	"github.com/spf13/cobra"

	"github.com/go-xlat/xlat64/internal/registry"
	"github.com/go-xlat/xlat64/internal/xlat"
)

// Console wraps a reeflective/console application bound to a Registry and a
// Translator, letting an operator inspect instances and hand-feed a
// hex-encoded IPv6 datagram through the live translation pipeline.
type Console struct {
	app        *console.Console
	registry   *registry.Registry
	translator *xlat.Translator
	logger     *slog.Logger
}

// New builds a Console attached to reg and tr. List/show never mutate
// registry state; translate runs a single packet through tr purely for
// inspection, with no side effect on the registry.
func New(reg *registry.Registry, tr *xlat.Translator, logger *slog.Logger) *Console {
	app := console.New("xlat64")
	c := &Console{app: app, registry: reg, translator: tr, logger: logger}

	menu := app.ActiveMenu()
	menu.SetCommands(c.commands)

	return c
}

// Start runs the REPL against the process's controlling terminal until the
// operator exits it or the console errors out.
func (c *Console) Start() error {
	if err := c.app.Start(); err != nil {
		return fmt.Errorf("start console: %w", err)
	}
	return nil
}

// commands builds the cobra command tree reeflective/console dispatches
// into, mirroring gobfdctl's session/monitor/version command shape but
// against the in-process registry instead of a ConnectRPC client.
func (c *Console) commands() *cobra.Command {
	root := &cobra.Command{
		Use:   "xlat64",
		Short: "inspect and manage translator instances",
	}
	root.AddCommand(c.listCommand())
	root.AddCommand(c.showCommand())
	root.AddCommand(c.flushCommand())
	root.AddCommand(c.translateCommand())
	return root
}

func (c *Console) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list every published instance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c.registry.Foreach(func(ns string, inst *xlat.Instance) {
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %-16s %-8s %s\n", ns, inst.Name, inst.Mode, inst.Framework)
			})
			return nil
		},
	}
}

func (c *Console) showCommand() *cobra.Command {
	var namespace string
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "show one instance's configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, ok := c.registry.Find(namespace, args[0])
			if !ok {
				return fmt.Errorf("instance %q not found in namespace %q", args[0], namespace)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "name=%s mode=%s framework=%s namespace=%s\n",
				inst.Name, inst.Mode, inst.Framework, inst.Namespace)
			return nil
		},
	}
	cmd.Flags().StringVar(&namespace, "namespace", "default", "owning network namespace")
	return cmd
}

// translateCommand runs one hex-encoded IPv6 datagram through the live
// translation pipeline and reports the verdict, for interactively
// debugging a reported drop without capturing live traffic.
func (c *Console) translateCommand() *cobra.Command {
	var namespace, name string
	cmd := &cobra.Command{
		Use:   "translate <hex-packet>",
		Short: "translate one hex-encoded IPv6 datagram and print the verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, ok := c.registry.Find(namespace, name)
			if !ok {
				return fmt.Errorf("instance %q not found in namespace %q", name, namespace)
			}

			in, err := hex.DecodeString(args[0])
			if err != nil {
				return fmt.Errorf("decode hex packet: %w", err)
			}

			verdict := c.translator.Translate6to4(inst, in)
			switch verdict.Kind {
			case xlat.KindContinue:
				fmt.Fprintf(cmd.OutOrStdout(), "continue: %s\n", hex.EncodeToString(verdict.PacketOut))
			case xlat.KindDropICMP:
				fmt.Fprintf(cmd.OutOrStdout(), "drop_icmp: %v (code=%d mtu_or_pointer=%d)\n",
					verdict.Reason, verdict.ICMPCode, verdict.MTUOrPointer)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", verdict.Kind, verdict.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&namespace, "namespace", "default", "owning network namespace")
	cmd.Flags().StringVar(&name, "instance", "", "instance name to translate against")
	return cmd
}

func (c *Console) flushCommand() *cobra.Command {
	var namespace string
	cmd := &cobra.Command{
		Use:   "flush",
		Short: "remove every instance in a namespace, as if the host had destroyed it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			n := c.registry.Flush(namespace)
			fmt.Fprintf(cmd.OutOrStdout(), "flushed %d instance(s) from namespace %q\n", n, namespace)
			return nil
		},
	}
	cmd.Flags().StringVar(&namespace, "namespace", "default", "namespace to flush")
	return cmd
}
