// internal/browser/flags.go
package browser

import "strings"

// LaunchFlag is one browser command line switch. Value is empty for boolean
// switches.
type LaunchFlag struct {
	Name  string
	Value string
}

// String renders the flag the way Chromium expects it on the command line.
func (f LaunchFlag) String() string {
	if f.Value == "" {
		return "--" + f.Name
	}
	return "--" + f.Name + "=" + f.Value
}

// DefaultFlags are applied by every driver. They keep Chromium usable inside
// containers and on hardened hosts.
var DefaultFlags = []LaunchFlag{
	{Name: "no-sandbox"},
	{Name: "disable-dev-shm-usage"},
	{Name: "disable-gpu"},
}

// ParseFlags turns configured args ("--no-zygote", "lang=en-US") into flags.
// Leading dashes are optional; blank entries are skipped.
func ParseFlags(args []string) []LaunchFlag {
	flags := make([]LaunchFlag, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		name, value, _ := strings.Cut(arg, "=")
		if name == "" {
			continue
		}
		flags = append(flags, LaunchFlag{Name: name, Value: value})
	}
	return flags
}
