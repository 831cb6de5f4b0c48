package resource

import (
	"fmt"

	"github.com/alanyang/portfolio-api/internal/domain/document"
)

// Mode selects how the gateway reports identifier and lookup failures.
type Mode string

const (
	// ModeCompat reproduces the pass-through behaviour: a malformed id is a
	// 500 and a missing single document is a 200 with null data.
	ModeCompat Mode = "compat"

	// ModeStrict maps a malformed id to 400 and a missing document to 404,
	// and strips _id from update bodies on every resource.
	ModeStrict Mode = "strict"
)

// ParseMode converts a configuration value into a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeCompat, ModeStrict:
		return m, nil
	}
	return "", fmt.Errorf("unknown api mode %q", s)
}

// Resource describes one REST collection and its per-resource quirks.
type Resource struct {
	Collection document.Collection
	// Label is the singular name used in confirmation messages.
	Label string
	// CreatedMessage is the confirmation returned on insert.
	CreatedMessage string
	// StripIDOnUpdate removes _id from update bodies before merging.
	StripIDOnUpdate bool
	// SingleFetch exposes GET /:id.
	SingleFetch bool
}

var (
	Projects = Resource{
		Collection:      document.CollectionProjects,
		Label:           "Project",
		CreatedMessage:  "Project created!",
		StripIDOnUpdate: true,
		SingleFetch:     true,
	}
	Blogs = Resource{
		Collection:      document.CollectionBlogs,
		Label:           "Blog",
		CreatedMessage:  "Blog created!",
		StripIDOnUpdate: true,
		SingleFetch:     true,
	}
	// Messages are contact submissions: no single fetch, and update bodies
	// reach the store untouched.
	Messages = Resource{
		Collection:     document.CollectionMessages,
		Label:          "Message",
		CreatedMessage: "Message sent!",
	}
)

// All returns the served resources for the given mode.
func All(mode Mode) []Resource {
	out := []Resource{Projects, Blogs, Messages}
	if mode == ModeStrict {
		for i := range out {
			out[i].StripIDOnUpdate = true
		}
	}
	return out
}

func (r Resource) UpdatedMessage() string  { return r.Label + " updated!" }
func (r Resource) DeletedMessage() string  { return r.Label + " deleted!" }
func (r Resource) NotFoundMessage() string { return r.Label + " not found!" }

// NoChangesMessage is reported when an update modified nothing, whether the
// document was already up to date or did not exist.
const NoChangesMessage = "No changes made!"
