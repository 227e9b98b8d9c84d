package supervisor

import (
	"bytes"
	"os/exec"
	"strings"
)

// Flag is a candidate command-line flag with an optional value.
type Flag struct {
	Name  string
	Value string

	// HasValue distinguishes a flag with an empty value from a bare flag.
	HasValue bool
}

func BareFlag(name string) Flag {
	return Flag{Name: name}
}

func ValueFlag(name, value string) Flag {
	return Flag{Name: name, Value: value, HasValue: true}
}

// FilterArgs builds the child command line for variant proxy builds. It runs
// the executable with -h, parses the flags listed in the help output, and
// emits only the candidate flags actually supported. The returned slice
// starts with the executable itself.
func FilterArgs(executable string, flags []Flag) []string {
	args := []string{executable}

	cmd := exec.Command(executable, "-h")
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return args
	}

	// nginx prints its help to stderr, other proxies to stdout
	help := stdout.String() + stderr.String()
	for _, line := range strings.Split(help, "\n") {
		line = strings.TrimSpace(line)
		for _, flag := range flags {
			if !strings.HasPrefix(line, flag.Name) {
				continue
			}
			rest := line[len(flag.Name):]
			if rest == "" || (rest[0] != ' ' && rest[0] != '\t') {
				continue
			}
			args = append(args, flag.Name)
			if flag.HasValue {
				args = append(args, flag.Value)
			}
		}
	}
	return args
}
