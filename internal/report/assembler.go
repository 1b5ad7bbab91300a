package report

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mentorlabs/deepresearch/internal/citations"
	"github.com/mentorlabs/deepresearch/internal/topics"
)

// blockMarkerPattern matches inline block markers like [cite:res-0004].
var blockMarkerPattern = regexp.MustCompile(`\[cite:((?:plan|res)-\d+)\]`)

// Note is one worker's output for a topic. Owned by the scheduler once
// submitted, read-only here.
type Note struct {
	TopicID  string   `json:"topic_id"`
	Content  string   `json:"content"`
	BlockIDs []string `json:"citation_block_ids,omitempty"`
}

// Section is one rendered report section.
type Section struct {
	TopicID string `json:"topic_id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Report is the final artifact of a run. Immutable once emitted.
type Report struct {
	Outline       []string           `json:"outline"`
	Sections      []Section          `json:"sections"`
	CitationTable []citations.Source `json:"citation_table"`
	Markdown      string             `json:"markdown"`
	FailedTopics  int                `json:"failed_topics"`
	TotalTopics   int                `json:"total_topics"`
}

// Options tunes assembly behavior.
type Options struct {
	// SeparatePlanningNumbering renders planning-origin sources that were
	// never cited in the body under their own appendix heading. The dedup
	// table stays shared either way.
	SeparatePlanningNumbering bool
}

// Assemble builds the final citation-linked document.
//
// Topic order in allTopics defines the outline: roots keep their planned
// order and each topic is followed by its sub-topics depth-first in spawn
// order. Notes are deduplicated by topic id, latest wins. The rendered body
// is walked once to collect block markers in appearance order; that sequence
// drives citation finalization, after which every marker is substituted with
// its display index.
func Assemble(allTopics []topics.Topic, notes []Note, cm *citations.Manager, opts Options) (Report, error) {
	noteByTopic := make(map[string]Note, len(notes))
	for _, n := range notes {
		noteByTopic[n.TopicID] = n // latest wins
	}

	outline := outlineOrder(allTopics)

	topicByID := make(map[string]topics.Topic, len(allTopics))
	failed := 0
	for _, t := range allTopics {
		topicByID[t.ID] = t
		if t.Status == topics.StatusFailed {
			failed++
		}
	}

	var sections []Section
	for _, id := range outline {
		n, ok := noteByTopic[id]
		if !ok {
			continue
		}
		sections = append(sections, Section{
			TopicID: id,
			Title:   topicByID[id].Text,
			Content: strings.TrimSpace(n.Content),
		})
	}

	body := renderBody(sections)
	ordered := orderedBlockIDs(body)

	mapping, err := cm.Finalize(ordered)
	if err != nil {
		return Report{}, fmt.Errorf("assemble report: %w", err)
	}

	resolved := substituteMarkers(body, mapping)
	for i := range sections {
		sections[i].Content = substituteMarkers(sections[i].Content, mapping)
	}

	table := cm.Table()
	markdown := resolved + renderReferences(table, ordered, cm, opts)
	if failed > 0 {
		markdown += fmt.Sprintf("\n\n---\n*%d of %d topics failed during research; their findings are not included.*\n", failed, len(allTopics))
	}

	return Report{
		Outline:       outline,
		Sections:      sections,
		CitationTable: table,
		Markdown:      markdown,
		FailedTopics:  failed,
		TotalTopics:   len(allTopics),
	}, nil
}

// outlineOrder returns topic ids depth-first: each topic followed by its
// children in the order they were created.
func outlineOrder(all []topics.Topic) []string {
	children := make(map[string][]string)
	var roots []string
	for _, t := range all {
		if t.IsRoot() {
			roots = append(roots, t.ID)
		} else {
			children[t.ParentID] = append(children[t.ParentID], t.ID)
		}
	}

	var out []string
	var walk func(id string)
	walk = func(id string) {
		out = append(out, id)
		for _, child := range children[id] {
			walk(child)
		}
	}
	for _, r := range roots {
		walk(r)
	}

	// Orphans (parent never tracked) still get a slot at the end rather
	// than silently dropping a note.
	seen := make(map[string]bool, len(out))
	for _, id := range out {
		seen[id] = true
	}
	for _, t := range all {
		if !seen[t.ID] {
			out = append(out, t.ID)
		}
	}
	return out
}

func renderBody(sections []Section) string {
	var sb strings.Builder
	for _, s := range sections {
		sb.WriteString("## ")
		sb.WriteString(s.Title)
		sb.WriteString("\n\n")
		sb.WriteString(s.Content)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// orderedBlockIDs walks rendered text and returns block ids in appearance
// order, duplicates included (finalize dedupes by source key).
func orderedBlockIDs(body string) []string {
	matches := blockMarkerPattern.FindAllStringSubmatch(body, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

func substituteMarkers(text string, mapping map[string]int) string {
	return blockMarkerPattern.ReplaceAllStringFunc(text, func(marker string) string {
		id := blockMarkerPattern.FindStringSubmatch(marker)[1]
		idx, ok := mapping[id]
		if !ok {
			return "" // unrecorded marker, drop rather than leak internals
		}
		return fmt.Sprintf("[%d]", idx)
	})
}

func renderReferences(table []citations.Source, ordered []string, cm *citations.Manager, opts Options) string {
	if len(table) == 0 {
		return ""
	}

	citedKeys := make(map[string]bool, len(ordered))
	for _, blockID := range ordered {
		if c, ok := cm.Lookup(blockID); ok {
			citedKeys[c.SourceKey] = true
		}
	}

	var refs, appendix []citations.Source
	for _, src := range table {
		if opts.SeparatePlanningNumbering && !citedKeys[src.Key] && planningOnly(cm, src.Key) {
			appendix = append(appendix, src)
			continue
		}
		refs = append(refs, src)
	}

	var sb strings.Builder
	if len(refs) > 0 {
		sb.WriteString("## References\n\n")
		for _, src := range refs {
			sb.WriteString(formatReference(src))
		}
	}
	if len(appendix) > 0 {
		sb.WriteString("\n## Planning Sources\n\n")
		for _, src := range appendix {
			sb.WriteString(formatReference(src))
		}
	}
	return sb.String()
}

func planningOnly(cm *citations.Manager, sourceKey string) bool {
	for _, c := range cm.Blocks() {
		if c.SourceKey == sourceKey && c.OriginPhase != citations.PhasePlanning {
			return false
		}
	}
	return true
}

func formatReference(src citations.Source) string {
	label := src.Title
	if label == "" {
		label = src.Key
	}
	if src.URL != "" {
		return fmt.Sprintf("%d. [%s](%s)\n", src.DisplayIndex, label, src.URL)
	}
	return fmt.Sprintf("%d. %s\n", src.DisplayIndex, label)
}

// CountInlineCitations returns how many resolved [n] markers a rendered
// section contains. Used for run metadata.
func CountInlineCitations(text string) int {
	return len(regexp.MustCompile(`\[\d+\]`).FindAllString(text, -1))
}
