package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sipico/admin-auth/internal/config"
	"github.com/sipico/admin-auth/internal/fieldperm"
)

type fieldsFlags struct {
	schema       string
	nestingLevel int
}

func (f *fieldsFlags) options() (fieldperm.Options, error) {
	if f.schema == "" {
		return fieldperm.Options{}, errors.New("--schema is required")
	}
	file, err := os.Open(f.schema)
	if err != nil {
		return fieldperm.Options{}, fmt.Errorf("failed to open schema: %w", err)
	}
	defer file.Close() //nolint:errcheck

	s, err := fieldperm.LoadSchema(file)
	if err != nil {
		return fieldperm.Options{}, err
	}
	return fieldperm.Options{Schema: s, NestingLevel: f.nestingLevel}, nil
}

func newFieldsCmd() *cobra.Command {
	var flags fieldsFlags
	c := &cobra.Command{Use: "fields", Short: "Inspect field-level permissions against a content-type schema"}
	c.PersistentFlags().StringVar(&flags.schema, "schema", "", "YAML schema of content types and components")
	c.PersistentFlags().IntVar(&flags.nestingLevel, "nesting-level", fieldperm.DefaultNestingLevel, "Maximum component depth")
	c.AddCommand(newFieldsListCmd(&flags))
	c.AddCommand(newFieldsExpandCmd(&flags))
	c.AddCommand(newFieldsCleanCmd(&flags))
	return c
}

func newFieldsListCmd(flags *fieldsFlags) *cobra.Command {
	var intermediate bool
	cmd := &cobra.Command{
		Use:   "list UID",
		Short: "Print the nested field paths of a content type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			model := opts.Schema.ContentType(args[0])
			if model == nil {
				return fmt.Errorf("unknown content type %q", args[0])
			}
			paths := fieldperm.NestedFields(model, opts)
			if intermediate {
				paths = fieldperm.NestedFieldsWithIntermediate(model, opts)
			}
			return printJSON(cmd.OutOrStdout(), paths)
		},
	}
	cmd.Flags().BoolVar(&intermediate, "intermediate", false, "Include component paths and hidden attributes")
	return cmd
}

func newFieldsExpandCmd(flags *fieldsFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "expand",
		Short: "Print one rule per action and subject with every nested field",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			actions, err := loadActions(cfg.ActionsFile)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), fieldperm.PermissionsWithNestedFields(actions.Values(), opts))
		},
	}
}

func newFieldsCleanCmd(flags *fieldsFlags) *cobra.Command {
	var rulesFile string
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Rewrite stored rule fields against the current schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			actions, err := loadActions(cfg.ActionsFile)
			if err != nil {
				return err
			}
			rules, err := readRules(rulesFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), fieldperm.CleanPermissionFields(rules, actions, opts))
		},
	}
	cmd.Flags().StringVar(&rulesFile, "rules", "-", "YAML list of rules; - reads stdin")
	return cmd
}

func readRules(path string, stdin io.Reader) ([]fieldperm.Rule, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open rules: %w", err)
		}
		defer f.Close() //nolint:errcheck
		r = f
	}

	var rules []fieldperm.Rule
	if err := yaml.NewDecoder(r).Decode(&rules); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}
	return rules, nil
}
