// Package sh runs an ishell command table over a port.Port: input bytes
// are edited into lines, lines are tokenized and dispatched, and command
// output is written back to the port.
package sh

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/abiosoft/ishell"
	shlex "github.com/flynn-archive/go-shlex"
	"github.com/golang/glog"

	"github.com/robotalks/shellport/pkg/framework"
	"github.com/robotalks/shellport/pkg/port"
)

const (
	shellKey      = "$shell"
	defaultPrompt = "shell> "
	readChunk     = 64
)

var (
	// flags

	prompt = defaultPrompt
	banner = true

	commands []*ishell.Cmd
	keys     = make(map[byte]KeyFunc)
)

// KeyFunc runs when its key is typed on an empty line.
type KeyFunc func(*Shell)

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&prompt, "prompt", prompt, "Shell prompt.")
	flag.BoolVar(&banner, "banner", banner, "Print banner when the shell starts.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// BindKey binds a single keystroke, typically during init func.
func BindKey(c byte, fn KeyFunc) {
	keys[c] = fn
}

// Shell consumes lines from a Port and runs commands.
type Shell struct {
	Shell   *ishell.Shell
	Port    *port.Port
	Editor  *LineEditor
	Prompt  string
	Started time.Time

	out     io.Writer
	started bool
	lines   uint64
}

// New creates a shell over p with all registered commands.
func New(p *port.Port) *Shell {
	s := &Shell{
		Shell:   ishell.New(),
		Port:    p,
		Prompt:  prompt,
		Started: time.Now(),
		started: !banner,
	}
	s.SetOutput(&CRLFWriter{W: p})
	s.Shell.Set(shellKey, s)
	// exit and clear control a local terminal, not a port.
	s.Shell.DeleteCmd("exit")
	s.Shell.DeleteCmd("clear")
	s.Shell.NotFound(func(c *ishell.Context) {
		c.Println("command not found: " + strings.Join(c.Args, " "))
	})
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// SetOutput redirects command output and echo.
func (s *Shell) SetOutput(w io.Writer) {
	s.out = w
	s.Shell.SetOut(w)
	if s.Editor == nil {
		s.Editor = NewLineEditor(w)
	} else {
		s.Editor.Echo = w
	}
}

// Printf writes formatted output.
func (s *Shell) Printf(format string, args ...interface{}) {
	fmt.Fprintf(s.out, format, args...)
}

// Lines returns the number of lines dispatched.
func (s *Shell) Lines() uint64 {
	return s.lines
}

// Exec tokenizes and dispatches one line.
func (s *Shell) Exec(line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	s.lines++
	if glog.V(2) {
		glog.Infof("exec %q", args)
	}
	return s.Shell.Process(args...)
}

// Feed runs input bytes through the editor and executes complete lines.
func (s *Shell) Feed(input []byte) {
	for _, c := range input {
		if fn := keys[c]; fn != nil && s.Editor.esc == escNone && len(s.Editor.buf) == 0 {
			s.Printf("\n")
			fn(s)
			s.Printf("%s", s.Prompt)
			continue
		}
		line, ok := s.Editor.Feed(c)
		if !ok {
			continue
		}
		if err := s.Exec(strings.TrimSpace(line)); err != nil {
			s.Printf("Error: %v\n", err)
		}
		s.Printf("%s", s.Prompt)
	}
}

// Control implements framework.Controller: it consumes whatever input is
// available without waiting.
func (s *Shell) Control(framework.ControlContext) error {
	if !s.started {
		s.started = true
		s.Printf("\nshellport %s\n%s", s.Started.Format(time.RFC3339), s.Prompt)
	}
	var buf [readChunk]byte
	for {
		n, err := s.Port.Read(buf[:])
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		s.Feed(buf[:n])
	}
}

// AddToLoop implements framework.LoopAdder.
func (s *Shell) AddToLoop(l *framework.Loop) {
	l.AddController(framework.PrLvProcess, s)
}

// CRLFWriter translates LF into CRLF and writes line by line, so a long
// output is not dropped whole by a non-blocking port.
type CRLFWriter struct {
	W io.Writer
}

// Write implements io.Writer.
func (w *CRLFWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		var chunk []byte
		n := bytes.IndexByte(p, '\n')
		if n < 0 {
			chunk, n = p, len(p)
		} else {
			chunk = make([]byte, 0, n+2)
			chunk = append(chunk, p[:n]...)
			if n == 0 || p[n-1] != '\r' {
				chunk = append(chunk, '\r')
			}
			chunk = append(chunk, '\n')
			n++
		}
		if _, err := w.W.Write(chunk); err != nil && err != port.ErrOverflow {
			return written, err
		}
		written += n
		p = p[n:]
	}
	return written, nil
}
