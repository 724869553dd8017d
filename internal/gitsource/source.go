// Package gitsource resolves GitHub source URLs and materializes the
// referenced repositories into the pipeline workspace.
package gitsource

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Source is a parsed, validated source specification. It is constructed
// once per URL and never mutated.
type Source struct {
	// URL is the canonical clone URL (scheme://host/owner/name).
	URL string

	// Ref is the branch or tag pinned by a tree/<ref> URL suffix.
	// Empty means the repository's default branch.
	Ref string

	// Name is the repository name, with any trailing .git stripped.
	Name string
}

const expectedHost = "github.com"

// refPattern is the accepted character class for branch/tag names.
// Slashes are allowed so hierarchical branches like feature/x work.
var refPattern = regexp.MustCompile(`^[0-9A-Za-z._/-]+$`)

// ParseSourceURL validates a raw URL and derives the canonical clone
// URL, the optional pinned ref and the repository name.
//
// Accepted shapes:
//
//	https://github.com/owner/repo
//	https://github.com/owner/repo/tree/<ref>
func ParseSourceURL(raw string) (Source, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Source{}, &ValidationError{URL: raw, Reason: fmt.Sprintf("unparseable URL: %v", err)}
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return Source{}, &ValidationError{URL: raw, Reason: "URL must use http or https"}
	}
	if !strings.EqualFold(u.Hostname(), expectedHost) {
		return Source{}, &ValidationError{URL: raw, Reason: fmt.Sprintf("host must be %s", expectedHost)}
	}

	parts := splitPath(u.Path)
	if len(parts) < 2 {
		return Source{}, &ValidationError{URL: raw, Reason: "URL path must be /owner/repo"}
	}

	owner := parts[0]
	name := strings.TrimSuffix(parts[1], ".git")
	if name == "" {
		return Source{}, &ValidationError{URL: raw, Reason: "empty repository name"}
	}

	src := Source{
		URL:  fmt.Sprintf("%s://%s/%s/%s", u.Scheme, strings.ToLower(u.Host), owner, name),
		Name: name,
	}

	// A tree/<ref> suffix pins a branch or tag; remaining segments are
	// rejoined so hierarchical refs survive.
	if len(parts) >= 4 && parts[2] == "tree" {
		ref := strings.Join(parts[3:], "/")
		if err := validateRef(ref); err != nil {
			return Source{}, &ValidationError{URL: raw, Reason: err.Error()}
		}
		src.Ref = ref
	} else if len(parts) == 3 && parts[2] == "tree" {
		return Source{}, &ValidationError{URL: raw, Reason: "missing branch/tag after tree/"}
	}

	return src, nil
}

func validateRef(ref string) error {
	if strings.TrimSpace(ref) == "" {
		return fmt.Errorf("missing branch/tag in URL")
	}
	if !refPattern.MatchString(ref) {
		return fmt.Errorf("bad branch/tag format: %s", ref)
	}
	return nil
}

func splitPath(p string) []string {
	var parts []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}
