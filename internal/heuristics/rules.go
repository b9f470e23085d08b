package heuristics

import (
	"regexp"
	"strings"

	"github.com/linuxfirst/docscan/internal/models"
)

// Rule identifiers. Every identifier maps to exactly one detection rule;
// a snippet's score lists each identifier whose rule fired.
const (
	RulePowerShellOnly          = "powershell_only"
	RuleWindowsPaths            = "windows_paths"
	RuleWindowsCommands         = "windows_commands"
	RuleWindowsTools            = "windows_tools"
	RuleMissingLinuxAlternative = "missing_linux_alternative"
	RuleWindowsSpecificSyntax   = "windows_specific_syntax"
	RuleWindowsRegistry         = "windows_registry"
	RuleWindowsServices         = "windows_services"
)

// Rule is one named bias signal detector over snippet code.
type Rule struct {
	ID       string
	patterns []*regexp.Regexp
}

func (r Rule) matches(code string) bool {
	for _, p := range r.patterns {
		if p.MatchString(code) {
			return true
		}
	}
	return false
}

func mustCompile(exprs ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		compiled = append(compiled, regexp.MustCompile(`(?im)`+e))
	}
	return compiled
}

// rules is the fixed, exhaustively-evaluated detector set. Every rule runs
// against every snippet; multiple rules can fire on the same input.
var rules = []Rule{
	{
		ID: RulePowerShellOnly,
		patterns: mustCompile(
			`\bpowershell\b`,
			`^PS [A-Z]:`,
			`\bSet-ExecutionPolicy\b`,
			`\bGet-ChildItem\b`,
			`\bNew-Item\b`,
			`\bRemove-Item\b`,
			`\b(Get|Set|New|Remove|Start|Stop)-[A-Z][A-Za-z]+\b`,
			`\.ps1\b`,
		),
	},
	{
		ID: RuleWindowsPaths,
		patterns: mustCompile(
			`^\s*[C-H]:\\`,
			`\b[C-H]:\\`,
			`\\Users\\`,
			`%USERPROFILE%`,
			`%APPDATA%`,
		),
	},
	{
		ID: RuleWindowsCommands,
		patterns: mustCompile(
			`^\s*dir\b`,
			`^\s*copy\b`,
			`^\s*del\b`,
			`^\s*cls\b`,
			`^\s*type\s+\S`,
			`\bnet use\b`,
			`\bshutdown /`,
		),
	},
	{
		ID: RuleWindowsTools,
		patterns: mustCompile(
			`\bcmd\.exe\b`,
			`\bregedit\b`,
			`\bicacls\b`,
			`\bchoco(\s|$)`,
			`\bwinget(\s|$)`,
			`\bmsiexec\b`,
			`\bwmic\b`,
			`\bnetsh\b`,
			`\btasklist\b`,
			`\btaskkill\b`,
			`\bexplorer\.exe\b`,
		),
	},
	{
		ID: RuleWindowsSpecificSyntax,
		patterns: mustCompile(
			`%[A-Za-z_][A-Za-z0-9_]*%`,
			`\$\{?env:`,
			"`\r?\n", // PowerShell line continuation
		),
	},
	{
		ID: RuleWindowsRegistry,
		patterns: mustCompile(
			`\bHKEY_[A-Z_]+`,
			`\bHKLM\b`,
			`\bHKCU\b`,
			`\bregedit\b`,
			`\bReg(istry)?::`,
		),
	},
	{
		ID: RuleWindowsServices,
		patterns: mustCompile(
			`\bsc\s+(start|stop|query|config|create)\b`,
			`\bnet (start|stop)\b`,
			`\b(Start|Stop|Restart|Get)-Service\b`,
		),
	},
}

// posixSignals mark code that already includes a Linux/macOS equivalent,
// which suppresses the missing-alternative signal.
var posixSignals = mustCompile(
	`^\s*\$\s`,
	`#!\s*/bin/(ba|z|da)?sh`,
	`\b(sudo|apt|apt-get|yum|dnf|brew|chmod|chown|systemctl|grep|curl|wget)\b`,
	`\bexport [A-Za-z_][A-Za-z0-9_]*=`,
	`\B/etc/|\B/usr/|\B/var/|\B/home/`,
)

// Input carries a snippet and the surroundings the exemption checks need.
type Input struct {
	Code               string
	Context            string
	URL                string
	UnderPowerShellTab bool
	WindowsHeader      bool
}

// Evaluate runs every rule against the snippet and returns the full set of
// triggered identifiers. Deterministic: identical input always yields an
// identical trigger set, in the rules' declaration order.
func Evaluate(in Input) models.HeuristicScore {
	if exempt(in) {
		return models.HeuristicScore{Biased: false}
	}

	var triggered []string
	for _, r := range rules {
		if r.matches(in.Code) {
			triggered = append(triggered, r.ID)
		}
	}

	// A Windows-only snippet with no POSIX equivalent in sight is the
	// core signal the audit exists to surface.
	if len(triggered) > 0 && !hasPOSIXAlternative(in.Code) {
		triggered = append(triggered, RuleMissingLinuxAlternative)
	}

	return models.HeuristicScore{
		Biased: len(triggered) > 0,
		Rules:  triggered,
	}
}

// exempt suppresses scoring for snippets that are deliberately
// Windows-scoped: a PowerShell tab in a multi-shell example, an explicit
// Windows section, or a page that is Windows documentation by address.
func exempt(in Input) bool {
	if in.UnderPowerShellTab || in.WindowsHeader {
		return true
	}

	lowerCtx := strings.ToLower(in.Context)
	if strings.Contains(lowerCtx, "windows") || strings.Contains(lowerCtx, "powershell") {
		return true
	}

	lowerURL := strings.ToLower(in.URL)
	for _, seg := range []string{"/windows/", "/powershell/", "/cmd/", "/cli-windows/", "/windows-"} {
		if strings.Contains(lowerURL, seg) {
			return true
		}
	}
	return false
}

func hasPOSIXAlternative(code string) bool {
	for _, p := range posixSignals {
		if p.MatchString(code) {
			return true
		}
	}
	return false
}
