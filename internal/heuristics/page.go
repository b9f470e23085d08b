package heuristics

import (
	"regexp"
	"strings"
)

// Page-level prose signals. A page whose body repeatedly instructs the
// reader in Windows terms is biased even when no single snippet fires.
var prosePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bopen (the )?(command prompt|powershell)\b`),
	regexp.MustCompile(`(?i)\bright-click\b`),
	regexp.MustCompile(`(?i)\bfrom the start menu\b`),
	regexp.MustCompile(`(?i)\bwindows (explorer|registry|service)\b`),
	regexp.MustCompile(`(?i)\brun as administrator\b`),
	regexp.MustCompile(`(?i)\bcontrol panel\b`),
	regexp.MustCompile(`(?i)\binstall(ing)? (via|using|with) (chocolatey|winget)\b`),
	regexp.MustCompile(`(?i)\bdouble-click the (\.exe|\.msi|installer)\b`),
}

// Windows-focused titles exempt the whole page: documentation that is
// explicitly about a Windows technology is not considered biased.
var focusedTitlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bwindows\b`),
	regexp.MustCompile(`(?i)\bpowershell\b`),
	regexp.MustCompile(`(?i)\bwcf\b`),
	regexp.MustCompile(`(?i)\bwpf\b`),
	regexp.MustCompile(`(?i)\bwinforms\b`),
	regexp.MustCompile(`(?i)\bwin32\b`),
	regexp.MustCompile(`(?i)\bactive directory\b`),
	regexp.MustCompile(`(?i)\bad ds\b`),
	regexp.MustCompile(`(?i)\bhyper-v\b`),
	regexp.MustCompile(`(?i)\biis\b`),
	regexp.MustCompile(`(?i)\bchocolatey\b`),
}

// visualStudioPattern needs its own check: "Visual Studio Code" is
// cross-platform and must not trip the Windows-only exemption.
var (
	visualStudioPattern     = regexp.MustCompile(`(?i)\bvisual studio\b`)
	visualStudioCodePattern = regexp.MustCompile(`(?i)\bvisual studio code\b`)
)

// PageHasWindowsSignals reports whether the page prose itself carries
// Windows-leaning instructions, independent of its code blocks.
func PageHasWindowsSignals(markdown string) bool {
	for _, p := range prosePatterns {
		if p.MatchString(markdown) {
			return true
		}
	}
	return false
}

// IsWindowsFocusedTitle reports whether a page title names a Windows-only
// technology. Such pages are skipped rather than audited.
func IsWindowsFocusedTitle(title string) bool {
	if strings.TrimSpace(title) == "" {
		return false
	}
	for _, p := range focusedTitlePatterns {
		if p.MatchString(title) {
			return true
		}
	}
	if visualStudioPattern.MatchString(title) && !visualStudioCodePattern.MatchString(title) {
		return true
	}
	return false
}

// IsWindowsFocusedPath reports whether a URL or repository path sits under
// a Windows-focused segment, matching the URL exemptions the snippet rules
// apply.
func IsWindowsFocusedPath(path string) bool {
	lower := strings.ToLower(path)
	for _, seg := range []string{"windows", "powershell"} {
		for _, part := range strings.Split(lower, "/") {
			if part == seg || strings.HasPrefix(part, seg+"-") {
				return true
			}
		}
	}
	return false
}
