package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/liamcoop/expiry/rules"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// URLBuilder works out the URL of a node, including nodes that have not
// been published yet and so have no URL of their own.
type URLBuilder struct {
	tree Tree
}

func NewURLBuilder(tree Tree) *URLBuilder {
	return &URLBuilder{tree: tree}
}

// URL returns the node's published URL when it has one. Otherwise the URL
// is the parent's published URL followed by the node's slug. Either way the
// result is lower case.
func (b *URLBuilder) URL(ctx context.Context, node *Node) (string, error) {
	if published(node.URL) {
		return strings.ToLower(node.URL), nil
	}

	base := ""
	if node.ParentID != nil {
		parent, err := b.tree.Node(ctx, *node.ParentID)
		switch {
		case errors.Is(err, ErrNodeNotFound):
		case err != nil:
			return "", fmt.Errorf("failed to load parent of node %d: %w", node.ID, err)
		case published(parent.URL):
			base = strings.ToLower(parent.URL)
		}
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	name := node.Name
	if node.URLName != "" {
		name = node.URLName
	}
	return base + FormatSlug(name) + "/", nil
}

// Resolver binds ctx so the builder can be handed to the rule evaluator.
// Nodes that are not *Node resolve to the empty path.
func (b *URLBuilder) Resolver(ctx context.Context) rules.NodeURLResolver {
	return rules.URLResolverFunc(func(cn rules.ContentNode) (string, error) {
		node, ok := cn.(*Node)
		if !ok {
			return "", nil
		}
		return b.URL(ctx, node)
	})
}

func published(url string) bool {
	return url != "" && url != "#"
}

// FormatSlug turns a page name into a URL segment: accents removed,
// lower case, runs of anything other than letters and digits collapsed to
// a single hyphen.
func FormatSlug(name string) string {
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(stripMarks, name)
	if err != nil {
		plain = name
	}

	var sb strings.Builder
	hyphen := false
	for _, r := range strings.ToLower(plain) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			sb.WriteRune(r)
			hyphen = false
			continue
		}
		if !hyphen && sb.Len() > 0 {
			sb.WriteByte('-')
			hyphen = true
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}
