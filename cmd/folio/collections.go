package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Trina-Dasgupta/portfolio-admin/internal/resource"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/tracker"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/upload"
)

// editList runs one list edit on the named field of a session.
func editList(cmd *cobra.Command, args []string, want int, shape tracker.Kind, fn func(t target, rec tracker.Record, field string) error) error {
	t, err := parseTarget(cmd, args, want)
	if err != nil {
		return err
	}
	field := t.rest[0]
	if _, err := fieldOf(t.kind, field, shape); err != nil {
		return err
	}
	return withApp(func(a *app) error {
		e, err := a.svc.Edit(t.kind, t.id, func(rec tracker.Record) error {
			return fn(t, rec, field)
		})
		if err != nil {
			return err
		}
		printEdited(e)
		return nil
	})
}

// --- tags ---

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Edit string lists such as tags, skills and description points",
}

var tagAddCmd = &cobra.Command{
	Use:   "add <kind> [id] <field> <value>",
	Short: "Append a value",
	RunE: func(cmd *cobra.Command, args []string) error {
		return editList(cmd, args, 2, tracker.Tags, func(t target, rec tracker.Record, field string) error {
			if t.kind == resource.Twitter {
				return fmt.Errorf("use 'folio tweet add' for tweet IDs")
			}
			list, err := resource.AddTag(rec.Tags(field), t.rest[1])
			if err != nil {
				return err
			}
			rec[field] = list
			return nil
		})
	},
}

var tagRmCmd = &cobra.Command{
	Use:   "rm <kind> [id] <field> <index>",
	Short: "Remove the value at a zero-based index",
	RunE: func(cmd *cobra.Command, args []string) error {
		return editList(cmd, args, 2, tracker.Tags, func(t target, rec tracker.Record, field string) error {
			i, err := parseIndex(t.rest[1])
			if err != nil {
				return err
			}
			list, err := resource.RemoveAt(rec.Tags(field), i)
			if err != nil {
				return err
			}
			rec[field] = list
			return nil
		})
	},
}

// --- pairs ---

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Edit key-value lists such as a development summary",
}

var pairAddCmd = &cobra.Command{
	Use:   "add <kind> [id] <field> <key> <value>",
	Short: "Append a key-value pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		return editList(cmd, args, 3, tracker.Pairs, func(t target, rec tracker.Record, field string) error {
			list, err := resource.AddPair(rec.Pairs(field), t.rest[1], t.rest[2])
			if err != nil {
				return err
			}
			rec[field] = list
			return nil
		})
	},
}

var pairRmCmd = &cobra.Command{
	Use:   "rm <kind> [id] <field> <index>",
	Short: "Remove the pair at a zero-based index",
	RunE: func(cmd *cobra.Command, args []string) error {
		return editList(cmd, args, 2, tracker.Pairs, func(t target, rec tracker.Record, field string) error {
			i, err := parseIndex(t.rest[1])
			if err != nil {
				return err
			}
			list, err := resource.RemoveAt(rec.Pairs(field), i)
			if err != nil {
				return err
			}
			rec[field] = list
			return nil
		})
	},
}

// --- languages ---

var langCmd = &cobra.Command{
	Use:   "lang",
	Short: "Edit language usage lists",
}

var langAddCmd = &cobra.Command{
	Use:   "add <kind> [id] <field> <name> <percent>",
	Short: "Append a language share",
	RunE: func(cmd *cobra.Command, args []string) error {
		color, _ := cmd.Flags().GetString("color")
		return editList(cmd, args, 3, tracker.Languages, func(t target, rec tracker.Record, field string) error {
			percent, err := strconv.ParseFloat(strings.TrimSuffix(t.rest[2], "%"), 64)
			if err != nil {
				return &resource.ValidationError{Message: "Percentage must be between 0 and 100"}
			}
			list, err := resource.AddLanguage(rec.Languages(field), t.rest[1], percent, color)
			if err != nil {
				return err
			}
			rec[field] = list
			return nil
		})
	},
}

var langRmCmd = &cobra.Command{
	Use:   "rm <kind> [id] <field> <index>",
	Short: "Remove the language at a zero-based index",
	RunE: func(cmd *cobra.Command, args []string) error {
		return editList(cmd, args, 2, tracker.Languages, func(t target, rec tracker.Record, field string) error {
			i, err := parseIndex(t.rest[1])
			if err != nil {
				return err
			}
			list, err := resource.RemoveAt(rec.Languages(field), i)
			if err != nil {
				return err
			}
			rec[field] = list
			return nil
		})
	},
}

func init() {
	langAddCmd.Flags().String("color", resource.DefaultLanguageColor, "display color")

	tagCmd.AddCommand(tagAddCmd, tagRmCmd)
	pairCmd.AddCommand(pairAddCmd, pairRmCmd)
	langCmd.AddCommand(langAddCmd, langRmCmd)
}

// --- images ---

var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Attach, remove and reorder images",
	Long: `Attach, remove and reorder images. Local files are only uploaded when the
entity is saved.`,
}

var imageAddCmd = &cobra.Command{
	Use:   "add <kind> [id] <field> <path>...",
	Short: "Append local files to a gallery",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := parseTarget(cmd, args, -1)
		if err != nil {
			return err
		}
		if len(t.rest) < 2 {
			return usageError(cmd, "a gallery field and at least one file are required")
		}
		field := t.rest[0]
		if _, err := fieldOf(t.kind, field, tracker.Images); err != nil {
			return err
		}
		return withApp(func(a *app) error {
			refs, err := selectFiles(a, t.rest[1:], true)
			if err != nil {
				return err
			}
			e, err := a.svc.Edit(t.kind, t.id, func(rec tracker.Record) error {
				list, err := resource.AddImages(rec.Images(field), refs, t.kind.GalleryLimit(field))
				if err != nil {
					return err
				}
				rec[field] = list
				return nil
			})
			if err != nil {
				a.svc.Abandon(tracker.Record{field: refs})
				return err
			}
			printEdited(e)
			return nil
		})
	},
}

var imageRmCmd = &cobra.Command{
	Use:   "rm <kind> [id] <field> <index>",
	Short: "Remove the gallery image at a zero-based index",
	RunE: func(cmd *cobra.Command, args []string) error {
		return editList(cmd, args, 2, tracker.Images, func(t target, rec tracker.Record, field string) error {
			i, err := parseIndex(t.rest[1])
			if err != nil {
				return err
			}
			list, err := resource.RemoveAt(rec.Images(field), i)
			if err != nil {
				return err
			}
			rec[field] = list
			return nil
		})
	},
}

var imageMoveCmd = &cobra.Command{
	Use:   "move <kind> [id] <field> <from> <to>",
	Short: "Move a gallery image to another position",
	RunE: func(cmd *cobra.Command, args []string) error {
		return editList(cmd, args, 3, tracker.Images, func(t target, rec tracker.Record, field string) error {
			from, err := parseIndex(t.rest[1])
			if err != nil {
				return err
			}
			to, err := parseIndex(t.rest[2])
			if err != nil {
				return err
			}
			list, err := resource.Move(rec.Images(field), from, to)
			if err != nil {
				return err
			}
			rec[field] = list
			return nil
		})
	},
}

var imageSetCmd = &cobra.Command{
	Use:   "set <kind> [id] <field> <path|url>",
	Short: "Replace a single image with a local file or a URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := parseTarget(cmd, args, 2)
		if err != nil {
			return err
		}
		field, src := t.rest[0], t.rest[1]
		if _, err := fieldOf(t.kind, field, tracker.Image); err != nil {
			return err
		}
		return withApp(func(a *app) error {
			ref, err := imageSource(a, src)
			if err != nil {
				return err
			}
			e, err := a.svc.Edit(t.kind, t.id, func(rec tracker.Record) error {
				rec[field] = ref
				return nil
			})
			if err != nil {
				a.svc.Abandon(tracker.Record{field: ref})
				return err
			}
			printEdited(e)
			return nil
		})
	},
}

func init() {
	imageCmd.AddCommand(imageAddCmd, imageRmCmd, imageMoveCmd, imageSetCmd)
}

// imageSource returns a durable ref for URLs and site paths, or selects a
// local file.
func imageSource(a *app, src string) (tracker.ImageRef, error) {
	if isRemote(src) {
		return tracker.Durable(src), nil
	}
	refs, err := selectFiles(a, []string{src}, false)
	if err != nil {
		return tracker.ImageRef{}, err
	}
	return refs[0], nil
}

func isRemote(src string) bool {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return true
	}
	// Site-relative paths like /placeholder.png, unless such a file exists locally.
	if strings.HasPrefix(src, "/") {
		_, err := os.Stat(src)
		return err != nil
	}
	return false
}

// selectFiles validates and acquires previews for paths. On failure the
// previews acquired so far are released.
func selectFiles(a *app, paths []string, gallery bool) ([]tracker.ImageRef, error) {
	refs := make([]tracker.ImageRef, 0, len(paths))
	for _, p := range paths {
		f, err := upload.FileFromPath(p)
		if err == nil {
			var ref tracker.ImageRef
			ref, err = a.svc.SelectImage(f, gallery)
			if err == nil {
				refs = append(refs, ref)
				continue
			}
		}
		a.svc.Abandon(tracker.Record{"files": refs})
		return nil, err
	}
	return refs, nil
}

// attachImage selects a local file into a create form field.
func attachImage(a *app, kind *resource.Kind, rec tracker.Record, field, path string) error {
	f, err := fieldOf(kind, field, tracker.Image, tracker.Images)
	if err != nil {
		return err
	}
	if f.Kind == tracker.Image {
		ref, err := imageSource(a, path)
		if err != nil {
			return err
		}
		a.svc.Abandon(tracker.Record{field: rec.Image(field)})
		rec[field] = ref
		return nil
	}
	refs, err := selectFiles(a, []string{path}, true)
	if err != nil {
		return err
	}
	list, err := resource.AddImages(rec.Images(field), refs, kind.GalleryLimit(field))
	if err != nil {
		a.svc.Abandon(tracker.Record{field: refs})
		return err
	}
	rec[field] = list
	return nil
}

// --- tweets ---

var tweetCmd = &cobra.Command{
	Use:   "tweet",
	Short: "Edit the featured tweet IDs",
}

var tweetAddCmd = &cobra.Command{
	Use:   "add <tweet-id>",
	Short: "Feature a tweet; the oldest drops off past six",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			e, err := a.svc.Edit(resource.Twitter, "", func(rec tracker.Record) error {
				list, err := resource.AddTweetID(rec.Tags(resource.TweetIDsField), args[0])
				if err != nil {
					return err
				}
				rec[resource.TweetIDsField] = list
				return nil
			})
			if err != nil {
				return err
			}
			printEdited(e)
			return nil
		})
	},
}

var tweetRmCmd = &cobra.Command{
	Use:   "rm <index>",
	Short: "Remove the tweet at a zero-based index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		i, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			e, err := a.svc.Edit(resource.Twitter, "", func(rec tracker.Record) error {
				list, err := resource.RemoveAt(rec.Tags(resource.TweetIDsField), i)
				if err != nil {
					return err
				}
				rec[resource.TweetIDsField] = list
				return nil
			})
			if err != nil {
				return err
			}
			printEdited(e)
			return nil
		})
	},
}

func init() {
	tweetCmd.AddCommand(tweetAddCmd, tweetRmCmd)
}
