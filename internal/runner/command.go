package runner

import (
	"fmt"
	"sort"
	"strings"
)

// Command describes one external program invocation. Commands are built once
// from configuration and never assembled by string concatenation at run time.
type Command struct {
	Program string
	Args    []string
	// Env is overlaid on the parent environment. Per-call overlays passed to
	// Runner.Run take precedence over it.
	Env map[string]string
	// Dir is the working directory. Empty means the parent's working directory.
	Dir string
}

// Shell returns a command that runs line through "sh -c".
func Shell(line string) Command {
	return Command{Program: "sh", Args: []string{"-c", line}}
}

// Exec returns a command that runs program directly with args, without a shell.
func Exec(program string, args ...string) Command {
	return Command{Program: program, Args: append([]string(nil), args...)}
}

// IsShell reports whether the command is a "sh -c <line>" invocation.
func (c Command) IsShell() bool {
	return c.Program == "sh" && len(c.Args) == 2 && c.Args[0] == "-c"
}

// IsZero reports whether no program is set.
func (c Command) IsZero() bool {
	return c.Program == ""
}

// Append returns a copy of c with args added. For shell commands the args are
// quoted onto the end of the line so they reach the program as single words.
func (c Command) Append(args ...string) Command {
	out := c.clone()
	if out.IsShell() {
		quoted := make([]string, 0, len(args)+1)
		quoted = append(quoted, out.Args[1])
		for _, a := range args {
			quoted = append(quoted, shellQuote(a))
		}
		out.Args[1] = strings.Join(quoted, " ")
		return out
	}
	out.Args = append(out.Args, args...)
	return out
}

// InDir returns a copy of c that runs in dir.
func (c Command) InDir(dir string) Command {
	out := c.clone()
	out.Dir = dir
	return out
}

// String renders the command for logs.
func (c Command) String() string {
	if c.IsShell() {
		return c.Args[1]
	}
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, shellQuote(c.Program))
	for _, a := range c.Args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

// UnmarshalTOML accepts either a string (run through the shell) or an array
// of strings (program followed by its arguments).
func (c *Command) UnmarshalTOML(data any) error {
	switch v := data.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("command: empty shell line")
		}
		*c = Shell(v)
		return nil
	case []any:
		if len(v) == 0 {
			return fmt.Errorf("command: empty argument list")
		}
		argv := make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("command: argument %d is %T, want string", i, item)
			}
			argv[i] = s
		}
		if argv[0] == "" {
			return fmt.Errorf("command: empty program name")
		}
		*c = Exec(argv[0], argv[1:]...)
		return nil
	default:
		return fmt.Errorf("command: unsupported value of type %T", data)
	}
}

func (c Command) clone() Command {
	out := c
	out.Args = append([]string(nil), c.Args...)
	if c.Env != nil {
		out.Env = make(map[string]string, len(c.Env))
		for k, v := range c.Env {
			out.Env[k] = v
		}
	}
	return out
}

// mergeEnv appends the overlays to base in sorted key order; later overlays win.
// exec.Cmd keeps the last value of a duplicated key.
func mergeEnv(base []string, overlays ...map[string]string) []string {
	env := append([]string(nil), base...)
	for _, overlay := range overlays {
		keys := make([]string, 0, len(overlay))
		for k := range overlay {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			env = append(env, k+"="+overlay[k])
		}
	}
	return env
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("_@%+=:,./-", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
