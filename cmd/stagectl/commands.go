package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/warp/staging-engine/catalog"
	"github.com/warp/staging-engine/config"
	"github.com/warp/staging-engine/remote"
	"github.com/warp/staging-engine/workflow"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	BaseURL    string
	Format     string // "json" | "text"
	Verbose    bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "stagectl",
		Short: "Inspect and promote staged collections",
		Long: `stagectl drives the staging workflow against a running staging server.

Edits are saved to staging; promote copies staging to production.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range ValidFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.BaseURL, "base-url", "", "server API root (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log engine activity to stderr")

	cmd.AddCommand(newDomainsCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newAddCommand(opts))
	cmd.AddCommand(newEditCommand(opts))
	cmd.AddCommand(newDeleteCommand(opts))
	cmd.AddCommand(newPromoteCommand(opts))

	return cmd
}

// =============================================================================
// ENGINE WIRING
// =============================================================================

type session struct {
	domain catalog.Domain
	engine *workflow.Engine[catalog.Entry]
	logger *zap.Logger
}

func (s *session) Close() {
	s.engine.Close()
	_ = s.logger.Sync()
}

func openSession(opts *RootOptions, name string, stderr io.Writer) (*session, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.BaseURL != "" {
		cfg.Client.BaseURL = opts.BaseURL
	}

	d, loadFrom, err := cfg.Domain(name)
	if err != nil {
		return nil, err
	}

	logger := zap.NewNop()
	if opts.Verbose {
		core := zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.AddSync(stderr),
			zap.DebugLevel,
		)
		logger = zap.New(core)
	}

	ep := remote.EndpointFor(cfg.Client.BaseURL, d)
	ep.LoadFrom = loadFrom
	client := remote.New[catalog.Entry](ep, &http.Client{Timeout: cfg.Client.Timeout.Std()})

	engine := workflow.NewEngine[catalog.Entry](client, client, workflow.Options[catalog.Entry]{
		Type:       d.Type,
		Plural:     d.Plural,
		SuccessTTL: cfg.Client.SuccessTTL.Std(),
		Logger:     logger,
	})
	return &session{domain: d, engine: engine, logger: logger}, nil
}

// result turns the engine's state after an operation into output or error.
func result(cmd *cobra.Command, opts *RootOptions, s workflow.State[catalog.Entry]) error {
	if s.Error != "" {
		return errors.New(s.Error)
	}
	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), map[string]any{"success": true, "message": s.Success})
	}
	fmt.Fprintln(cmd.OutOrStdout(), s.Success)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// =============================================================================
// COMMANDS
// =============================================================================

func newDomainsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "domains",
		Short: "List served domains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			domains, err := cfg.ResolveDomains()
			if err != nil {
				return err
			}

			if opts.Format == "json" {
				type row struct {
					Name          string `json:"name"`
					Type          string `json:"type"`
					CollectionKey string `json:"collection_key"`
					DeleteStyle   string `json:"delete_style"`
				}
				rows := make([]row, len(domains))
				for i, d := range domains {
					rows[i] = row{d.Name, d.Type, d.CollectionKey, string(d.DeleteStyle)}
				}
				return writeJSON(cmd.OutOrStdout(), rows)
			}

			for _, d := range domains {
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %-10s key=%s delete=%s\n", d.Name, d.Type, d.CollectionKey, d.DeleteStyle)
			}
			return nil
		},
	}
}

// StatusReport is the json output of status.
type StatusReport struct {
	Domain  string   `json:"domain"`
	Items   int      `json:"items"`
	Pending bool     `json:"pending"`
	Changed []string `json:"changed,omitempty"`
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

func newStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <domain>",
		Short: "Show whether staging holds pending work",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts, args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			s.engine.RefreshData(cmd.Context())
			st := s.engine.State()
			if st.Error != "" {
				return errors.New(st.Error)
			}

			diff := s.engine.LastDiff()
			report := StatusReport{
				Domain:  s.domain.Name,
				Items:   len(st.Items),
				Pending: st.HasStaging,
			}
			if st.HasStaging {
				report.Changed, report.Added, report.Removed = diff.Changed, diff.Added, diff.Removed
			}

			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), report)
			}

			out := cmd.OutOrStdout()
			if !report.Pending {
				fmt.Fprintf(out, "%s: %d items, staging matches production\n", report.Domain, report.Items)
				return nil
			}
			fmt.Fprintf(out, "%s: %d items, pending changes\n", report.Domain, report.Items)
			for _, line := range []struct {
				label string
				ids   []string
			}{{"changed", report.Changed}, {"added", report.Added}, {"removed", report.Removed}} {
				if len(line.ids) > 0 {
					fmt.Fprintf(out, "  %-8s %s\n", line.label, strings.Join(line.ids, ", "))
				}
			}
			return nil
		},
	}
}

func newAddCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <domain> <json>",
		Short: "Add a record and save it to staging",
		Long: `Add a record and save it to staging.

A record without an "id" gets a temporary one (temp-<millis>-<hex>),
printed to stderr.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rec catalog.Entry
			if err := json.Unmarshal([]byte(args[1]), &rec); err != nil {
				return fmt.Errorf("record must be a JSON object: %w", err)
			}
			if rec == nil {
				return errors.New("record must be a JSON object")
			}
			if _, ok := rec["id"]; !ok {
				rec["id"] = workflow.NewTempID(time.Now())
				fmt.Fprintf(cmd.ErrOrStderr(), "assigned id %s\n", rec["id"])
			}

			s, err := openSession(opts, args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			return mutateAndSave(cmd, opts, s, func(e *workflow.Engine[catalog.Entry]) {
				e.Add(rec)
			})
		},
	}
}

func newEditCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <domain> <id> <field=value>...",
		Short: "Patch a record and save the collection to staging",
		Long: `Patch a record and save the collection to staging.

Values are read as JSON when they parse (42, true, "quoted", null) and as
plain strings otherwise.`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := parsePatch(args[2:])
			if err != nil {
				return err
			}

			s, err := openSession(opts, args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			id := args[1]
			return mutateAndSave(cmd, opts, s, func(e *workflow.Engine[catalog.Entry]) {
				e.Edit(id, patch)
			}, id)
		},
	}
}

func newDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <domain> <id>",
		Short: "Delete a record from staging",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts, args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			s.engine.RefreshData(ctx)
			if st := s.engine.State(); st.Error != "" {
				return errors.New(st.Error)
			}
			before := s.engine.State()
			if before.IndexOf(args[1]) < 0 {
				return fmt.Errorf("no %s with id %q", s.domain.Type, args[1])
			}

			s.engine.Delete(ctx, args[1])
			// Records shown from production are not in staging, so the removal
			// only persists once the working set is saved.
			if !before.HasStaging && s.engine.State().Error == "" {
				s.engine.SaveToStaging(ctx)
			}
			return result(cmd, opts, s.engine.State())
		},
	}
}

func newPromoteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "promote <domain>",
		Short: "Upload staging to production",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts, args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			s.engine.UploadToProduction(cmd.Context())
			return result(cmd, opts, s.engine.State())
		},
	}
}

// mutateAndSave refreshes, applies mutate, and saves to staging. When
// mustExist is given, the id has to be present after the refresh.
func mutateAndSave(cmd *cobra.Command, opts *RootOptions, s *session, mutate func(*workflow.Engine[catalog.Entry]), mustExist ...string) error {
	ctx := cmd.Context()
	s.engine.RefreshData(ctx)
	if st := s.engine.State(); st.Error != "" {
		return errors.New(st.Error)
	}
	for _, id := range mustExist {
		if s.engine.State().IndexOf(id) < 0 {
			return fmt.Errorf("no %s with id %q", s.domain.Type, id)
		}
	}

	mutate(s.engine)
	if st := s.engine.State(); st.Error != "" {
		return errors.New(st.Error)
	}

	s.engine.SaveToStaging(ctx)
	return result(cmd, opts, s.engine.State())
}

// parsePatch reads field=value pairs.
func parsePatch(pairs []string) (workflow.Patch, error) {
	patch := make(workflow.Patch, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected field=value, got %q", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		patch[key] = v
	}
	return patch, nil
}
