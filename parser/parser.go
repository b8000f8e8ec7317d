// Package parser reads skill manifests and splits markdown documents into
// scannable blocks.
package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/FeiyouG/skill-lab-sub000/contract"
	"gopkg.in/yaml.v3"
)

// Manifest is the parsed SKILL.md document.
type Manifest struct {
	Name         string
	Description  string
	Version      string
	Frontmatter  map[string]any
	AllowedTools []AllowedTool
	Forge        *ForgeMeta
	Hooks        []Hook
	Body         string

	// KeyLines maps top-level frontmatter keys to their line in the file.
	KeyLines map[string]int
	// BodyLine is the file line on which Body starts.
	BodyLine int
}

// ForgeMeta is the metadata.forge section of a manifest.
type ForgeMeta struct {
	Requires      *Requirements `yaml:"requires"`
	EgressDomains []string      `yaml:"egress_domains"`
}

// Requirements lists the binaries and environment variables a skill needs.
type Requirements struct {
	Bins []string         `yaml:"bins"`
	Env  *EnvRequirements `yaml:"env"`
}

// EnvRequirements groups environment variables by how they are required.
type EnvRequirements struct {
	Required []string `yaml:"required"`
	OneOf    []string `yaml:"one_of"`
	Optional []string `yaml:"optional"`
}

// All returns every variable in declaration order.
func (e *EnvRequirements) All() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.Required)+len(e.OneOf)+len(e.Optional))
	out = append(out, e.Required...)
	out = append(out, e.OneOf...)
	out = append(out, e.Optional...)
	return out
}

// Hook is one event registered in the manifest's hooks map.
type Hook struct {
	Event    string
	Commands []string
}

// ParseManifest reads a SKILL.md document. A document without YAML
// frontmatter is rejected with contract.ErrInvalidManifest.
func ParseManifest(r io.Reader) (*Manifest, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	fm, ok := extractFrontmatter(content)
	if !ok {
		return nil, fmt.Errorf("%w: missing frontmatter", contract.ErrInvalidManifest)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(fm.yaml, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", contract.ErrInvalidManifest, err)
	}
	var raw map[string]any
	if err := root.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", contract.ErrInvalidManifest, err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	m := &Manifest{
		Frontmatter: raw,
		Body:        string(fm.body),
		BodyLine:    fm.bodyLine,
		KeyLines:    keyLines(&root, fm.yamlLine),
	}
	m.Name, _ = raw["name"].(string)
	m.Description, _ = raw["description"].(string)
	m.Version = versionOf(raw)
	m.AllowedTools = ParseAllowedTools(raw["allowed-tools"])
	m.Forge = extractForgeMeta(raw)
	m.Hooks = extractHooks(raw["hooks"])
	return m, nil
}

type frontmatter struct {
	yaml     []byte
	body     []byte
	yamlLine int
	bodyLine int
}

// extractFrontmatter splits content at --- delimiters and records the
// file lines where the YAML and the body begin.
func extractFrontmatter(content []byte) (frontmatter, bool) {
	trimmed := bytes.TrimLeft(content, " \t\r\n")
	if !bytes.HasPrefix(trimmed, []byte("---")) {
		return frontmatter{}, false
	}
	skipped := bytes.Count(content[:len(content)-len(trimmed)], []byte("\n"))

	// Skip to the next line
	nlIdx := bytes.IndexByte(trimmed, '\n')
	if nlIdx < 0 {
		return frontmatter{}, false
	}
	fmStart := nlIdx + 1

	// Find closing ---
	rest := trimmed[fmStart:]
	closeIdx := -1
	closeLine := 0
	scanner := bufio.NewScanner(bytes.NewReader(rest))
	pos := 0
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "---" {
			closeIdx = pos
			break
		}
		pos += len(line) + 1 // +1 for \n
		closeLine++
	}
	if closeIdx < 0 {
		return frontmatter{}, false
	}

	body := rest[closeIdx:]
	if nl := bytes.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = nil
	}

	yamlLine := skipped + 2
	return frontmatter{
		yaml:     rest[:closeIdx],
		body:     body,
		yamlLine: yamlLine,
		bodyLine: yamlLine + closeLine + 1,
	}, true
}

// keyLines maps each top-level mapping key to its file line.
func keyLines(root *yaml.Node, offset int) map[string]int {
	lines := make(map[string]int)
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return lines
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return lines
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		k := doc.Content[i]
		lines[k.Value] = k.Line + offset - 1
	}
	return lines
}

func versionOf(raw map[string]any) string {
	if v := scalarString(raw["version"]); v != "" {
		return v
	}
	if md, ok := raw["metadata"].(map[string]any); ok {
		return scalarString(md["version"])
	}
	return ""
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// extractForgeMeta pulls metadata.forge out of the generic frontmatter map
// by re-marshaling it through yaml.
func extractForgeMeta(raw map[string]any) *ForgeMeta {
	md, ok := raw["metadata"].(map[string]any)
	if !ok {
		return nil
	}
	forgeMap, ok := md["forge"]
	if !ok || forgeMap == nil {
		return nil
	}

	data, err := yaml.Marshal(forgeMap)
	if err != nil {
		return nil
	}
	var meta ForgeMeta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil
	}
	return &meta
}

// extractHooks accepts either {event: command}, {event: [commands]} or
// {event: [{command: ...}]} shapes.
func extractHooks(v any) []Hook {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	var hooks []Hook
	for _, event := range sortedKeys(m) {
		h := Hook{Event: event}
		collectCommands(m[event], &h.Commands)
		hooks = append(hooks, h)
	}
	return hooks
}

func collectCommands(v any, out *[]string) {
	switch t := v.(type) {
	case string:
		*out = append(*out, t)
	case []any:
		for _, item := range t {
			collectCommands(item, out)
		}
	case map[string]any:
		if cmd, ok := t["command"].(string); ok {
			*out = append(*out, cmd)
		}
		if inner, ok := t["hooks"]; ok {
			collectCommands(inner, out)
		}
	}
}
