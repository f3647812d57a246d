// Package snapshot rewrites a test document in place with freshly
// captured snapshot contents. It operates on the original source text,
// using the YAML node positions only to find line ranges, so untouched
// keys, comments, quoting, and ordering survive byte-for-byte.
package snapshot

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/toolproof/pkg/errs"
	"github.com/ormasoftchile/toolproof/pkg/schema"
)

// linePrefix guards every captured line against trailing-whitespace
// ambiguity; it must be emitted verbatim for round-trips to hold.
const linePrefix = "  ╎"

const contentKey = "snapshot_content"

// edit replaces the (1-based, inclusive) line range with replacement
// lines. An insert uses start = end+1 on an empty range.
type edit struct {
	start       int
	end         int
	replacement []string
}

// WriteYAMLSnapshots renders the document for hydratedFile with every
// captured snapshot inserted or replaced. The input document must be the
// file's original source.
func WriteYAMLSnapshots(inputDoc string, hydratedFile *schema.TestFile) (string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(inputDoc), &doc); err != nil {
		return "", errs.Internalf("snapshot writer: input doc does not parse as YAML: %v", err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return "", errs.Internalf("snapshot writer: input doc is not a mapping")
	}
	root := doc.Content[0]

	stepsNode := mappingValue(root, "steps")
	if stepsNode == nil || stepsNode.Kind != yaml.SequenceNode {
		return "", errs.Internalf("snapshot writer: input doc has no steps sequence")
	}

	lines := strings.Split(inputDoc, "\n")

	var edits []edit
	for i, step := range hydratedFile.Steps {
		if step.Kind != schema.KindSnapshot || step.SnapshotContent == nil {
			continue
		}
		if i >= len(stepsNode.Content) {
			return "", errs.Internalf("snapshot writer: step %d missing from document", i)
		}
		stepNode := stepsNode.Content[i]
		if stepNode.Kind != yaml.MappingNode {
			return "", errs.Internalf("snapshot writer: step %d is not a mapping", i)
		}

		stepEnd := nodeEndLine(stepsNode, root, i, len(lines))
		e, err := snapshotEdit(lines, stepNode, stepEnd, *step.SnapshotContent)
		if err != nil {
			return "", err
		}
		edits = append(edits, e)
	}

	// Apply bottom-up so earlier line numbers stay valid.
	sort.Slice(edits, func(a, b int) bool { return edits[a].start > edits[b].start })
	for _, e := range edits {
		head := lines[:e.start-1]
		var tail []string
		if e.end < len(lines) {
			tail = lines[e.end:]
		}
		next := make([]string, 0, len(head)+len(e.replacement)+len(tail))
		next = append(next, head...)
		next = append(next, e.replacement...)
		next = append(next, tail...)
		lines = next
	}

	return strings.Join(lines, "\n"), nil
}

// snapshotEdit builds the edit for one snapshot step: replace the
// existing snapshot_content block, or append a new one as the mapping's
// last key.
func snapshotEdit(lines []string, stepNode *yaml.Node, stepEnd int, content string) (edit, error) {
	indent := strings.Repeat(" ", stepNode.Column-1)
	block := renderBlock(indent, content)

	keyNode := mappingKeyNode(stepNode, contentKey)
	if keyNode != nil {
		end := keyEndLine(stepNode, keyNode, stepEnd)
		// Trailing blank lines after the block belong to the document,
		// not to the strip-chomped value.
		for end > keyNode.Line && (end > len(lines) || strings.TrimSpace(lines[end-1]) == "") {
			end--
		}
		return edit{start: keyNode.Line, end: end, replacement: block}, nil
	}

	// Insert after the last non-empty line of the step so separating
	// blank lines stay below the new key.
	insertAfter := stepEnd
	for insertAfter > 0 && insertAfter <= len(lines) {
		if strings.TrimSpace(lines[insertAfter-1]) != "" {
			break
		}
		insertAfter--
	}
	if insertAfter < stepNode.Line {
		return edit{}, errs.Internalf("snapshot writer: could not place %s", contentKey)
	}
	return edit{start: insertAfter + 1, end: insertAfter, replacement: block}, nil
}

// renderBlock renders the snapshot_content key as a literal block scalar
// with strip chomping. Every content line carries the sentinel prefix,
// whose leading spaces double as the block's extra indentation.
func renderBlock(indent, content string) []string {
	out := []string{fmt.Sprintf("%s%s: |-", indent, contentKey)}
	for _, line := range strings.Split(strings.TrimSuffix(content, "\n"), "\n") {
		out = append(out, indent+linePrefix+line)
	}
	return out
}

// mappingValue finds the value node for key in a mapping.
func mappingValue(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

// mappingKeyNode finds the key node itself.
func mappingKeyNode(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i]
		}
	}
	return nil
}

// nodeEndLine computes the last line of entry i in the steps sequence:
// the line before the next entry, the next root key, or the end of the
// document.
func nodeEndLine(stepsNode, root *yaml.Node, i int, totalLines int) int {
	end := totalLines
	if i+1 < len(stepsNode.Content) {
		if next := stepsNode.Content[i+1].Line - 1; next < end {
			end = next
		}
		return end
	}
	// Last step: bounded by whichever root key starts after it.
	stepLine := stepsNode.Content[i].Line
	for j := 0; j < len(root.Content); j += 2 {
		keyLine := root.Content[j].Line
		if keyLine > stepLine && keyLine-1 < end {
			end = keyLine - 1
		}
	}
	return end
}

// keyEndLine computes the last line of the value belonging to keyNode
// inside the step mapping: the line before the step's next key, bounded
// by the step's own end.
func keyEndLine(stepNode, keyNode *yaml.Node, stepEnd int) int {
	end := stepEnd
	for i := 0; i < len(stepNode.Content); i += 2 {
		line := stepNode.Content[i].Line
		if line > keyNode.Line && line-1 < end {
			end = line - 1
		}
	}
	return end
}
