package imapserver

import (
	"bufio"
	"strings"
	"testing"

	"github.com/coldwire/imapd/internal/imapwire"
)

func encodeThreadNodes(nodes []ThreadNode) string {
	var sb strings.Builder
	w := bufio.NewWriter(&sb)
	enc := imapwire.NewEncoder(w, imapwire.ConnSideServer)
	writeThreadNodes(enc, nodes)
	w.Flush()
	return sb.String()
}

func TestWriteThreadNodes(t *testing.T) {
	// A single linear chain: 1 -> 2 -> 5.
	linear := []ThreadNode{
		{UID: 1, Children: []ThreadNode{
			{UID: 2, Children: []ThreadNode{
				{UID: 5},
			}},
		}},
	}
	if got, want := encodeThreadNodes(linear), "(1 2 5)"; got != want {
		t.Errorf("writeThreadNodes(linear) = %q, want %q", got, want)
	}

	// A branch at 5: chains (3 4) and (6 7).
	branch := []ThreadNode{
		{UID: 1, Children: []ThreadNode{
			{UID: 2, Children: []ThreadNode{
				{UID: 5, Children: []ThreadNode{
					{UID: 3, Children: []ThreadNode{{UID: 4}}},
					{UID: 6, Children: []ThreadNode{{UID: 7}}},
				}},
			}},
		}},
	}
	if got, want := encodeThreadNodes(branch), "(1 2 5(3 4)(6 7))"; got != want {
		t.Errorf("writeThreadNodes(branch) = %q, want %q", got, want)
	}

	// Multiple independent root threads.
	roots := []ThreadNode{{UID: 1}, {UID: 2}}
	if got, want := encodeThreadNodes(roots), "(1) (2)"; got != want {
		t.Errorf("writeThreadNodes(roots) = %q, want %q", got, want)
	}
}
