package policy

// Well-known trusted domains.
var trustedDomains = []string{
	"api.github.com",
	"github.com",
	"api.openai.com",
	"api.anthropic.com",
	"api.tavily.com",
	"api.slack.com",
	"hooks.slack.com",
	"api.telegram.org",
	"*.googleapis.com",
	"api.together.ai",
	"api.cohere.com",
}

// Paste, tunnel and request-capture services commonly used for exfiltration.
var deniedDomains = []string{
	"pastebin.com",
	"transfer.sh",
	"webhook.site",
	"*.ngrok.io",
	"*.ngrok-free.app",
	"requestbin.net",
}

var pythonStdlib = []string{
	"abc", "argparse", "array", "ast", "asyncio", "base64", "bisect", "calendar",
	"collections", "concurrent", "configparser", "contextlib", "copy", "csv",
	"dataclasses", "datetime", "decimal", "difflib", "enum", "fnmatch",
	"fractions", "functools", "getpass", "glob", "gzip", "hashlib", "heapq",
	"hmac", "html", "http", "importlib", "inspect", "io", "ipaddress",
	"itertools", "json", "logging", "math", "mimetypes", "operator", "os",
	"pathlib", "pickle", "platform", "pprint", "queue", "random", "re",
	"secrets", "shlex", "shutil", "signal", "socket", "sqlite3", "ssl", "stat",
	"statistics", "string", "struct", "subprocess", "sys", "tarfile",
	"tempfile", "textwrap", "threading", "time", "timeit", "tomllib",
	"traceback", "typing", "unicodedata", "unittest", "urllib", "uuid",
	"warnings", "weakref", "xml", "zipfile", "zlib", "__future__",
}

var nodeBuiltins = []string{
	"assert", "async_hooks", "buffer", "child_process", "cluster", "console",
	"crypto", "dgram", "dns", "events", "fs", "http", "http2", "https", "net",
	"os", "path", "perf_hooks", "process", "querystring", "readline", "stream",
	"string_decoder", "timers", "tls", "tty", "url", "util", "v8", "vm",
	"worker_threads", "zlib",
}

// Default returns the built-in policy.
func Default() Policy {
	return Policy{
		Imports: map[string]Lists{
			"python":     {Allow: clone(pythonStdlib), Deny: []string{"pty"}},
			"javascript": {Allow: clone(nodeBuiltins)},
			"go":         {},
			"bash":       {},
		},
		Network: Lists{
			Allow: clone(trustedDomains),
			Deny:  clone(deniedDomains),
		},
	}
}

func clone(s []string) []string {
	return append([]string(nil), s...)
}
