package parser

import (
	"strings"

	"github.com/FeiyouG/skill-lab-sub000/contract"
)

// BlockKind distinguishes the three block shapes found in documents.
type BlockKind string

const (
	BlockContent BlockKind = "content" // the whole document, fenced regions blanked
	BlockFenced  BlockKind = "fenced"
	BlockInline  BlockKind = "inline"
)

// Block is a scannable region of a document. StartLine and EndLine are
// 1-based lines of the parent document; a 1-based line inside Text maps
// to line + StartLine - 1.
type Block struct {
	Kind      BlockKind
	Language  contract.Language
	Info      string // fence info string
	Text      string
	StartLine int
	EndLine   int
	Context   string // the prose line an inline span sits in
}

// Rebase converts a 1-based line inside the block to a document line.
func (b Block) Rebase(line int) int {
	return line + b.StartLine - 1
}

// ExtractBlocks splits a markdown or text document into its content block,
// fenced code blocks and inline code spans, in that order. The content block
// carries docLang.
func ExtractBlocks(content string, docLang contract.Language) []Block {
	lines := strings.Split(content, "\n")
	plain := make([]string, len(lines))

	var fenced []Block
	var inline []Block

	for i := 0; i < len(lines); i++ {
		fence, info, ok := openingFence(lines[i])
		if !ok {
			plain[i] = lines[i]
			inline = append(inline, inlineSpans(lines[i], i+1)...)
			continue
		}

		start := i + 1
		end := len(lines)
		for j := start; j < len(lines); j++ {
			if isClosingFence(lines[j], fence) {
				end = j
				break
			}
		}
		if end > start {
			fenced = append(fenced, Block{
				Kind:      BlockFenced,
				Language:  contract.FenceLanguage(info),
				Info:      info,
				Text:      strings.Join(lines[start:end], "\n"),
				StartLine: start + 1,
				EndLine:   end,
			})
		}
		// fence lines stay blank in the content block
		i = end
	}

	blocks := make([]Block, 0, 1+len(fenced)+len(inline))
	blocks = append(blocks, Block{
		Kind:      BlockContent,
		Language:  docLang,
		Text:      strings.Join(plain, "\n"),
		StartLine: 1,
		EndLine:   len(lines),
	})
	blocks = append(blocks, fenced...)
	blocks = append(blocks, inline...)
	return blocks
}

// openingFence recognizes ``` and ~~~ fences indented by at most three spaces.
func openingFence(line string) (string, string, bool) {
	trimmed := strings.TrimLeft(line, " ")
	if len(line)-len(trimmed) > 3 || len(trimmed) < 3 {
		return "", "", false
	}
	ch := trimmed[0]
	if ch != '`' && ch != '~' {
		return "", "", false
	}
	n := 0
	for n < len(trimmed) && trimmed[n] == ch {
		n++
	}
	if n < 3 {
		return "", "", false
	}
	info := strings.TrimSpace(trimmed[n:])
	if ch == '`' && strings.Contains(info, "`") {
		return "", "", false
	}
	return trimmed[:n], info, true
}

func isClosingFence(line, fence string) bool {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) < len(fence) || !strings.HasPrefix(trimmed, fence) {
		return false
	}
	return strings.Trim(trimmed, fence[:1]) == ""
}

// inlineSpans finds backtick code spans on one line. A span opened by n
// backticks is closed by the next run of exactly n backticks.
func inlineSpans(line string, lineNo int) []Block {
	var spans []Block
	i := 0
	for i < len(line) {
		if line[i] != '`' {
			i++
			continue
		}
		n := runLength(line, i)
		open := i + n
		closeAt := -1
		for j := open; j < len(line); {
			if line[j] != '`' {
				j++
				continue
			}
			m := runLength(line, j)
			if m == n {
				closeAt = j
				break
			}
			j += m
		}
		if closeAt < 0 {
			i = open
			continue
		}
		text := strings.TrimSpace(line[open:closeAt])
		if text != "" {
			spans = append(spans, Block{
				Kind:      BlockInline,
				Language:  contract.LangBash,
				Text:      text,
				StartLine: lineNo,
				EndLine:   lineNo,
				Context:   line,
			})
		}
		i = closeAt + n
	}
	return spans
}

func runLength(s string, i int) int {
	n := 0
	for i+n < len(s) && s[i+n] == s[i] {
		n++
	}
	return n
}
