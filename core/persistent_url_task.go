package core

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// AddPersistentURLTask registers the persistent URL of one entity revision
// with the redirection service.
type AddPersistentURLTask struct {
	Redirects RedirectionService
	URI       *url.URL
	Lookup    EntityLookup
}

func NewAddPersistentURLTask(redirects RedirectionService, uri *url.URL, lookup EntityLookup) *AddPersistentURLTask {
	return &AddPersistentURLTask{Redirects: redirects, URI: uri, Lookup: lookup}
}

func (t *AddPersistentURLTask) Execute(ctx context.Context) error {
	if t == nil || t.Redirects == nil {
		return fmt.Errorf("core: redirection service is required")
	}
	if t.URI == nil {
		return fmt.Errorf("core: persistent url is required")
	}
	return t.Redirects.Add(ctx, t.URI, t.Lookup)
}

// Description names the entity revision being published.
func (t *AddPersistentURLTask) Description() string {
	if t == nil {
		return "Add handle to ''"
	}
	return fmt.Sprintf("Add handle to '%s'", t.Lookup)
}

// Equal compares the target URI and lookup only.
func (t *AddPersistentURLTask) Equal(other Task) bool {
	o, ok := other.(*AddPersistentURLTask)
	if !ok {
		return false
	}
	if t == nil || o == nil {
		return t == o
	}
	if t.Lookup != o.Lookup {
		return false
	}
	return urlString(t.URI) == urlString(o.URI)
}

func urlString(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.String()
}

// NewTemplateURLGenerator publishes revisions under
// <base>/<collection>/<id>?rev=<rev>.
func NewTemplateURLGenerator(base string) (URLGenerator, error) {
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(base), "/"))
	if err != nil {
		return nil, BadInputError("core: invalid persistent url base %q: %v", base, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, BadInputError("core: persistent url base %q must be absolute", base)
	}
	return func(collection string, id uuid.UUID, rev int) *url.URL {
		out := *parsed
		out.Path = strings.TrimRight(parsed.Path, "/") + "/" + url.PathEscape(collection) + "/" + id.String()
		query := url.Values{}
		query.Set("rev", fmt.Sprint(rev))
		out.RawQuery = query.Encode()
		return &out
	}, nil
}
