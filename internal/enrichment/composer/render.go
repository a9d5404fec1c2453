package composer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"query-enrichment/internal/models"
)

const (
	DefaultEncoding  = "cl100k_base"
	DefaultMaxTokens = 800

	// HeuristicEncoding selects HeuristicCounter without loading BPE files.
	HeuristicEncoding = "heuristic"

	truncatedMarker = "[truncated]"
)

// TokenCounter measures text against the generation backend's budget.
type TokenCounter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (t tiktokenCounter) Count(text string) int {
	return len(t.enc.EncodeOrdinary(text))
}

// HeuristicCounter approximates tokens as one per four runes.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

// NewTokenCounter loads the named BPE encoding. The encoding files are
// fetched on first use, so offline hosts get the heuristic and an error
// worth logging.
func NewTokenCounter(encoding string) (TokenCounter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	if encoding == HeuristicEncoding {
		return HeuristicCounter{}, nil
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return HeuristicCounter{}, fmt.Errorf("load token encoding %q: %w", encoding, err)
	}
	return tiktokenCounter{enc: enc}, nil
}

// Renderer serializes payloads for the generation request.
type Renderer struct {
	counter TokenCounter
}

func NewRenderer(counter TokenCounter) *Renderer {
	if counter == nil {
		counter = HeuristicCounter{}
	}
	return &Renderer{counter: counter}
}

// Render writes p as a heading per source with one bullet per item, in
// payload order. Whole items are dropped from the end to fit maxTokens.
func (r *Renderer) Render(p models.EnrichmentPayload, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	var head strings.Builder
	fmt.Fprintf(&head, "## External context (quality: %s)\n", p.QualityLevel)
	fmt.Fprintf(&head, "Query: %s\n", p.Query.RawText)
	if !p.GeneratedAt.IsZero() {
		fmt.Fprintf(&head, "Retrieved: %s\n", p.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC"))
	}
	if p.Notice != "" {
		fmt.Fprintf(&head, "Notice: %s\n", p.Notice)
	}
	if p.QualityLevel == models.QualityNone || len(p.Items) == 0 {
		if p.Notice == "" {
			fmt.Fprintf(&head, "Notice: %s\n", models.NoExternalDataNotice)
		}
		head.WriteString("Answer from general knowledge and say that current data could not be retrieved.\n")
		return head.String()
	}

	out := head.String()
	used := r.counter.Count(out)

	// Group items under their source heading without reordering sources.
	order := make([]string, 0, len(p.Sources))
	groups := make(map[string][]models.ResultItem)
	for _, item := range p.Items {
		name := sourceLabel(item)
		if _, ok := groups[name]; !ok {
			order = append(order, name)
		}
		groups[name] = append(groups[name], item)
	}

	for _, name := range order {
		heading := fmt.Sprintf("\n### Source: %s\n", name)
		headingCost := r.counter.Count(heading)
		wroteHeading := false
		for _, item := range groups[name] {
			block := bullet(item)
			cost := r.counter.Count(block)
			if !wroteHeading {
				cost += headingCost
			}
			if used+cost > maxTokens {
				return out + "\n" + truncatedMarker + "\n"
			}
			if !wroteHeading {
				out += heading
				wroteHeading = true
			}
			out += block
			used += cost
		}
	}
	return out
}

func sourceLabel(item models.ResultItem) string {
	name := item.SourceName
	if name == "" {
		name = hostOf(item.SourceURL)
	}
	if item.Synthetic {
		name += " (placeholder)"
	}
	return name
}

func bullet(item models.ResultItem) string {
	var b strings.Builder
	b.WriteString("- ")
	b.WriteString(oneLine(item.Title))
	if item.PublishedAt != nil {
		fmt.Fprintf(&b, " (published %s)", item.PublishedAt.UTC().Format("2006-01-02 15:04 UTC"))
	}
	b.WriteString("\n")
	if s := oneLine(firstNonEmpty(item.Summary, item.Body)); s != "" {
		fmt.Fprintf(&b, "  %s\n", s)
	}
	if item.SourceURL != "" {
		fmt.Fprintf(&b, "  URL: %s\n", item.SourceURL)
	}
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
