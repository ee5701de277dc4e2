package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Trina-Dasgupta/portfolio-admin/internal/config"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/dashboard"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/resource"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/tracker"
)

// target is a resolved "<kind> [id]" prefix. Singletons take no id.
type target struct {
	kind *resource.Kind
	id   string
	rest []string
}

func parseTarget(cmd *cobra.Command, args []string, want int) (target, error) {
	if len(args) == 0 {
		return target{}, usageError(cmd, "resource kind is required (one of %s)", strings.Join(resource.Names(), ", "))
	}
	kind, err := resource.Lookup(args[0])
	if err != nil {
		return target{}, err
	}
	t := target{kind: kind, rest: args[1:]}
	if !kind.Singleton {
		if len(t.rest) == 0 {
			return target{}, usageError(cmd, "%s needs an id", kind.Name)
		}
		t.id, t.rest = t.rest[0], t.rest[1:]
	}
	if want >= 0 && len(t.rest) != want {
		return target{}, usageError(cmd, "expected %d argument(s) after the target, got %d", want, len(t.rest))
	}
	return t, nil
}

// fieldOf checks that name is a field of kind with one of the given shapes.
func fieldOf(kind *resource.Kind, name string, shapes ...tracker.Kind) (tracker.Field, error) {
	f, ok := kind.Field(name)
	if !ok {
		return f, &resource.ValidationError{Field: name, Message: fmt.Sprintf("not a field of %s", kind.Name)}
	}
	for _, s := range shapes {
		if f.Kind == s {
			return f, nil
		}
	}
	return f, &resource.ValidationError{Field: name, Message: fmt.Sprintf("is a %s field", f.Kind)}
}

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	return i, nil
}

func printEdited(e dashboard.Entity) {
	n := len(e.Delta())
	if n == 0 {
		printSuccess("%s %s matches the saved state", e.Kind.Name, e.ID)
		return
	}
	printSuccess("%s %s has %d unsaved field(s)", e.Kind.Name, e.ID, n)
}

// --- pull / list / show ---

var pullCmd = &cobra.Command{
	Use:   "pull <kind>",
	Short: "Fetch a resource kind from the backend, replacing local sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := resource.Lookup(args[0])
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			printStep("Fetching %s", kind.Path)
			entities, err := a.svc.Pull(cmd.Context(), kind)
			if err != nil {
				return err
			}
			printSuccess("Pulled %d %s", len(entities), kind.Name)
			return nil
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list <kind>",
	Short: "List local sessions of a kind",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := resource.Lookup(args[0])
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			entities, err := a.svc.List(kind)
			if err != nil {
				return err
			}
			if len(entities) == 0 {
				printWarning("No %s sessions; run: folio pull %s", kind.Name, kind.Name)
				return nil
			}
			label := labelField(kind)
			for _, e := range entities {
				mark := " "
				if e.HasChanges() {
					mark = colorize(colorYellow, "*")
				}
				fmt.Fprintf(stdout, "%s %-26s %s\n", mark, e.ID, formatValue(e.Current[label]))
			}
			return nil
		})
	},
}

// labelField is the first text field, used as a row title.
func labelField(kind *resource.Kind) string {
	for _, f := range kind.Fields {
		if f.Kind == tracker.Text {
			return f.Name
		}
	}
	return kind.Fields[0].Name
}

var showCmd = &cobra.Command{
	Use:   "show <kind> [id]",
	Short: "Show the working copy of an entity",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := parseTarget(cmd, args, 0)
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		original, _ := cmd.Flags().GetBool("original")
		return withApp(func(a *app) error {
			e, err := a.svc.Get(t.kind, t.id)
			if err != nil {
				return err
			}
			rec := e.Current
			if original {
				rec = e.Original
			}
			if asJSON {
				return printJSON(rec)
			}
			delta := e.Delta()
			for _, f := range t.kind.Fields {
				mark := " "
				if _, changed := delta[f.Name]; changed && !original {
					mark = colorize(colorYellow, "*")
				}
				fmt.Fprintf(stdout, "%s %s %s\n", mark, colorize(colorBold, f.Name+":"), formatValue(rec[f.Name]))
			}
			if e.Saving {
				printWarning("a save is in progress")
			}
			return nil
		})
	},
}

func init() {
	showCmd.Flags().Bool("json", false, "print the record as JSON")
	showCmd.Flags().Bool("original", false, "show the last saved state instead of the working copy")
}

// --- set ---

var setCmd = &cobra.Command{
	Use:   "set <kind> [id] <field> <value>",
	Short: "Replace a field value",
	Long: `Replace a field value. Lists take a JSON array, booleans take true or false,
single images take a URL.

Examples:
  folio set project 64f0c2 name "Folio"
  folio set about skills '["Go","SQL"]'
  folio set experience 64f0c9 isCurrent true`,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := parseTarget(cmd, args, 2)
		if err != nil {
			return err
		}
		field, value := t.rest[0], t.rest[1]
		if t.kind == resource.Twitter {
			return errors.New("use 'folio tweet add' to change tweet IDs")
		}
		return withApp(func(a *app) error {
			e, err := a.svc.SetField(t.kind, t.id, field, value)
			if err != nil {
				return err
			}
			printEdited(e)
			return nil
		})
	},
}

// --- diff / save / discard ---

var diffCmd = &cobra.Command{
	Use:   "diff <kind> [id]",
	Short: "Show unsaved changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := parseTarget(cmd, args, 0)
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			e, err := a.svc.Get(t.kind, t.id)
			if err != nil {
				return err
			}
			delta := e.Delta()
			if len(delta) == 0 {
				printSuccess("No changes")
				return nil
			}
			for _, name := range delta.Fields(t.kind.Fields) {
				fmt.Fprintf(stdout, "%s\n", colorize(colorBold, name))
				fmt.Fprintf(stdout, "  %s %s\n", colorize(colorRed, "-"), formatValue(e.Original[name]))
				fmt.Fprintf(stdout, "  %s %s\n", colorize(colorGreen, "+"), formatValue(delta[name]))
			}
			return nil
		})
	},
}

var saveCmd = &cobra.Command{
	Use:   "save <kind> [id]",
	Short: "Upload pending images and send changed fields to the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := parseTarget(cmd, args, 0)
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			e, err := a.svc.Save(cmd.Context(), t.kind, t.id)
			if errors.Is(err, dashboard.ErrNoChanges) {
				printWarning("No changes to save")
				return nil
			}
			if err != nil {
				return err
			}
			printSuccess("Saved %s %s", t.kind.Name, e.ID)
			return nil
		})
	},
}

var discardCmd = &cobra.Command{
	Use:   "discard <kind> [id]",
	Short: "Drop unsaved changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := parseTarget(cmd, args, 0)
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			e, err := a.svc.Discard(t.kind, t.id)
			if err != nil {
				return err
			}
			printSuccess("Discarded changes to %s %s", t.kind.Name, e.ID)
			return nil
		})
	},
}

// --- create ---

var createCmd = &cobra.Command{
	Use:   "create <kind>",
	Short: "Create a new entity",
	Long: `Create a new entity from field assignments and local images.

Examples:
  folio create project --set name=Folio --set 'tags=["go"]' --image images=./shot.png
  folio create achievement --set title=Award --set 'descriptionPoints=["Won"]' \
    --image companyLogo=./logo.png --image images=./a.png`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := resource.Lookup(args[0])
		if err != nil {
			return err
		}
		sets, _ := cmd.Flags().GetStringArray("set")
		images, _ := cmd.Flags().GetStringArray("image")

		rec := kind.Blank()
		for _, s := range sets {
			name, value, ok := strings.Cut(s, "=")
			if !ok {
				return fmt.Errorf("--set %q: expected field=value", s)
			}
			v, err := kind.ParseValue(name, value)
			if err != nil {
				return err
			}
			rec[name] = v
		}

		return withApp(func(a *app) error {
			for _, s := range images {
				name, path, ok := strings.Cut(s, "=")
				if !ok {
					a.svc.Abandon(rec)
					return fmt.Errorf("--image %q: expected field=path", s)
				}
				if err := attachImage(a, kind, rec, name, path); err != nil {
					a.svc.Abandon(rec)
					return err
				}
			}

			printStep("Creating %s", kind.Name)
			e, err := a.svc.Create(cmd.Context(), kind, rec)
			if err != nil {
				a.svc.Abandon(rec)
				return err
			}
			printSuccess("Created %s %s", kind.Name, e.ID)
			return nil
		})
	},
}

func init() {
	createCmd.Flags().StringArray("set", nil, "field=value assignment (repeatable)")
	createCmd.Flags().StringArray("image", nil, "field=path of a local image (repeatable)")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		sort.Slice(keys, func(i, j int) bool { return keys[i].Key < keys[j].Key })
		for _, k := range keys {
			fmt.Fprintf(stdout, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		if key == "backend.token" {
			value = "(set)"
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
