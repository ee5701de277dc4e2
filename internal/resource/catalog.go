// Package resource describes the editable portfolio resources: their tracked
// fields, endpoints, defaults and editing rules.
package resource

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Trina-Dasgupta/portfolio-admin/internal/tracker"
)

// IDField is the backend's identifier field for collection entities.
const IDField = "_id"

// PlaceholderLogo is used when an entity has no logo yet.
const PlaceholderLogo = "/placeholder.png"

// Kind describes one resource type managed by the dashboard.
type Kind struct {
	Name      string
	Path      string
	Singleton bool
	Fields    []tracker.Field

	// Defaults fill fields missing from backend responses.
	Defaults map[string]any
	// Galleries caps the number of images per gallery field.
	Galleries map[string]int
	// RequiredFiles must hold a newly selected file when creating.
	RequiredFiles map[string]string
	// MaxItems caps plain list fields, newest first (tweet IDs).
	MaxItems map[string]int

	createSchema   string
	createMessages map[string]string
}

// Field returns the tracked field named name.
func (k *Kind) Field(name string) (tracker.Field, bool) {
	for _, f := range k.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return tracker.Field{}, false
}

// ItemPath returns the endpoint for one entity (the kind's path for
// singletons).
func (k *Kind) ItemPath(id string) string {
	if k.Singleton || id == "" {
		return k.Path
	}
	return k.Path + "/" + id
}

// GalleryLimit returns the image cap of field, or 0 if it is not a gallery.
func (k *Kind) GalleryLimit(field string) int {
	return k.Galleries[field]
}

var (
	About = &Kind{
		Name:      "about",
		Path:      "/api/admin/about",
		Singleton: true,
		Fields: []tracker.Field{
			{Name: "profilePic", Kind: tracker.Image},
			{Name: "name", Kind: tracker.Text},
			{Name: "role", Kind: tracker.Text},
			{Name: "miniDescription", Kind: tracker.Text},
			{Name: "description", Kind: tracker.RichText},
			{Name: "currentFocus", Kind: tracker.Text},
			{Name: "skills", Kind: tracker.Tags},
			{Name: "aboutReadme", Kind: tracker.RichText},
		},
	}

	Project = &Kind{
		Name: "project",
		Path: "/api/admin/project",
		Fields: []tracker.Field{
			{Name: "name", Kind: tracker.Text},
			{Name: "navLink", Kind: tracker.Text},
			{Name: "description", Kind: tracker.RichText},
			{Name: "readmeContent", Kind: tracker.RichText},
			{Name: "gitHubLink", Kind: tracker.Text},
			{Name: "liveLink", Kind: tracker.Text},
			{Name: "images", Kind: tracker.Images},
			{Name: "tags", Kind: tracker.Tags},
			{Name: "developmentSummary", Kind: tracker.Pairs},
			{Name: "languagesUsed", Kind: tracker.Languages},
			{Name: "stack", Kind: tracker.Text},
		},
		Galleries: map[string]int{"images": 12},
		createSchema: `{
			"type": "object",
			"required": ["name", "images"],
			"properties": {
				"name": {"type": "string", "pattern": "\\S"},
				"images": {"type": "array", "minItems": 1, "maxItems": 12}
			}
		}`,
		createMessages: map[string]string{
			"name":   "Project name is required",
			"images": "Please upload at least one image (maximum 12)",
		},
	}

	Achievement = &Kind{
		Name: "achievement",
		Path: "/api/admin/achievement",
		Fields: []tracker.Field{
			{Name: "companyLogo", Kind: tracker.Image},
			{Name: "title", Kind: tracker.Text},
			{Name: "timeLine", Kind: tracker.Text},
			{Name: "descriptionTitle", Kind: tracker.Text},
			{Name: "descriptionPoints", Kind: tracker.Tags},
			{Name: "images", Kind: tracker.Images},
		},
		Defaults:      map[string]any{"companyLogo": PlaceholderLogo},
		Galleries:     map[string]int{"images": 2},
		RequiredFiles: map[string]string{"companyLogo": "Please select a company logo"},
		createSchema: `{
			"type": "object",
			"required": ["title", "descriptionPoints", "images"],
			"properties": {
				"title": {"type": "string", "pattern": "\\S"},
				"descriptionPoints": {"type": "array", "minItems": 1},
				"images": {"type": "array", "minItems": 1, "maxItems": 2}
			}
		}`,
		createMessages: map[string]string{
			"title":             "Title is required",
			"descriptionPoints": "Please add at least one description point",
			"images":            "Please add one or two achievement images",
		},
	}

	Experience = &Kind{
		Name: "experience",
		Path: "/api/admin/experience",
		Fields: []tracker.Field{
			{Name: "companyLogo", Kind: tracker.Image},
			{Name: "title", Kind: tracker.Text},
			{Name: "location", Kind: tracker.Text},
			{Name: "timeLine", Kind: tracker.Text},
			{Name: "isCurrent", Kind: tracker.Bool},
			{Name: "keyAchievements", Kind: tracker.Tags},
			{Name: "technologiesUsed", Kind: tracker.Tags},
		},
		Defaults:      map[string]any{"companyLogo": PlaceholderLogo},
		RequiredFiles: map[string]string{"companyLogo": "Please select a company logo"},
		createSchema: `{
			"type": "object",
			"required": ["title"],
			"properties": {
				"title": {"type": "string", "pattern": "\\S"}
			}
		}`,
		createMessages: map[string]string{
			"title": "Title is required",
		},
	}

	Blog = &Kind{
		Name: "blog",
		Path: "/api/admin/blog",
		Fields: []tracker.Field{
			{Name: "title", Kind: tracker.Text},
			{Name: "excerpt", Kind: tracker.Text},
			{Name: "date", Kind: tracker.Text},
			{Name: "readTime", Kind: tracker.Text},
			{Name: "category", Kind: tracker.Text},
			{Name: "mediumLink", Kind: tracker.Text},
		},
		createSchema: `{
			"type": "object",
			"required": ["title"],
			"properties": {
				"title": {"type": "string", "pattern": "\\S"},
				"mediumLink": {"type": "string", "pattern": "^$|^https?://"}
			}
		}`,
		createMessages: map[string]string{
			"title":      "Title is required",
			"mediumLink": "Medium link must be an http(s) URL",
		},
	}

	Twitter = &Kind{
		Name:      "twitter",
		Path:      "/api/admin/tweetIds",
		Singleton: true,
		Fields: []tracker.Field{
			{Name: TweetIDsField, Kind: tracker.Tags},
		},
		MaxItems: map[string]int{TweetIDsField: MaxTweetIDs},
	}
)

var kinds = map[string]*Kind{
	About.Name:       About,
	Project.Name:     Project,
	Achievement.Name: Achievement,
	Experience.Name:  Experience,
	Blog.Name:        Blog,
	Twitter.Name:     Twitter,
}

var aliases = map[string]string{
	"projects":     "project",
	"achievements": "achievement",
	"experiences":  "experience",
	"blogs":        "blog",
	"tweets":       "twitter",
	"tweetids":     "twitter",
}

// Lookup returns the kind named name. Plural forms are accepted.
func Lookup(name string) (*Kind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if a, ok := aliases[n]; ok {
		n = a
	}
	k, ok := kinds[n]
	if !ok {
		return nil, fmt.Errorf("unknown resource %q (valid: %s)", name, strings.Join(Names(), ", "))
	}
	return k, nil
}

// Names lists the kind names in sorted order.
func Names() []string {
	names := make([]string, 0, len(kinds))
	for n := range kinds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
