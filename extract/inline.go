package extract

import (
	"regexp"
	"strings"
)

// knownCommands are programs whose bare mention in an inline code span is
// taken as a command invocation.
var knownCommands = map[string]bool{
	"apt": true, "apt-get": true, "awk": true, "bash": true, "brew": true,
	"bun": true, "cargo": true, "cat": true, "cd": true, "chmod": true,
	"chown": true, "cp": true, "crontab": true, "curl": true, "deno": true,
	"docker": true, "echo": true, "export": true, "find": true, "gh": true,
	"git": true, "go": true, "grep": true, "head": true, "helm": true,
	"jq": true, "kill": true, "kubectl": true, "launchctl": true, "ls": true,
	"make": true, "mkdir": true, "mv": true, "nc": true, "node": true,
	"npm": true, "npx": true, "pip": true, "pip3": true, "pipx": true,
	"pnpm": true, "pytest": true, "python": true, "python3": true,
	"rm": true, "rsync": true, "scp": true, "sed": true, "sh": true,
	"source": true, "ssh": true, "sudo": true, "systemctl": true,
	"tail": true, "tar": true, "terraform": true, "touch": true,
	"unzip": true, "uv": true, "wget": true, "yarn": true, "zsh": true,
}

var (
	actionVerbRe = regexp.MustCompile(`(?i)\b(run|runs|running|execute|executes|invoke|terminal|command|shell|type)\b`)
	formattingRe = regexp.MustCompile(`^[*_~]|[*_~]$`)
	labelRe      = regexp.MustCompile(`^[A-Z][a-z]+(-[A-Z][a-z]+)*:?$`)
	pathOnlyRe   = regexp.MustCompile(`^(~|\.{1,2})?/?[\w@.+-]+(/[\w@.*+-]*)+$|^[\w@+-]+\.[A-Za-z0-9]{1,8}$`)
)

// plausibleInline rejects inline spans that cannot be commands at all:
// formatting artifacts, labels and lone paths.
func plausibleInline(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || formattingRe.MatchString(text) || labelRe.MatchString(text) {
		return false
	}
	return !pathOnlyRe.MatchString(text)
}

// commandLike reports whether text reads as an invocation of a known
// command. A single word only counts when the surrounding prose talks
// about running something.
func commandLike(text, context string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	if !knownCommands[toolName(fields[0])] {
		return false
	}
	if len(fields) >= 2 {
		return true
	}
	return actionVerbRe.MatchString(context)
}

// bareMention reports whether text is a lone word in prose that says
// nothing about running it. Such a span names a tool rather than invoking
// it, even when a specific rule would match the word.
func bareMention(text, context string) bool {
	return len(strings.Fields(text)) == 1 && !actionVerbRe.MatchString(context)
}
