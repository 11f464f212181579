// Package cmds provides the built-in shell commands.
package cmds

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/shellport/pkg/cli/sh"
)

// MaxLogLevel is the highest glog verbosity cycled by loglevel.
const MaxLogLevel = 4

var (
	// DateCmd prints the uptime of the shell.
	DateCmd = ishell.Cmd{
		Name: "date",
		Help: "current time",
		Func: func(c *ishell.Context) {
			ms := time.Since(sh.ShellFrom(c).Started).Milliseconds()
			c.Printf("current time: %d\n", ms)
			c.Println(FormatUptime(ms))
		},
	}

	// StatsCmd prints the port counters.
	StatsCmd = ishell.Cmd{
		Name: "stats",
		Help: "port counters",
		Func: func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			st := s.Port.Stats()
			c.Printf("rx: pending %d, transfers %d, bytes %d, errors %d\n",
				st.RXPending, st.RX.Transfers, st.RX.Bytes, st.RX.SubmitErrors)
			c.Printf("tx: pending %d, transfers %d, bytes %d, errors %d\n",
				st.TXPending, st.TX.Transfers, st.TX.Bytes, st.TX.SubmitErrors)
			c.Printf("drops: %d (%d bytes), lines %d\n", st.Drops, st.DroppedBytes, s.Lines())
		},
	}

	// LogLevelCmd cycles or sets the glog verbosity.
	LogLevelCmd = ishell.Cmd{
		Name: "loglevel",
		Help: "[LEVEL] switch log level, ~ on an empty line cycles it",
		Func: func(c *ishell.Context) {
			var level int
			if len(c.Args) > 0 {
				val, err := strconv.Atoi(c.Args[0])
				if err != nil || val < 0 || val > MaxLogLevel {
					c.Err(fmt.Errorf("invalid LEVEL %q, expect 0-%d", c.Args[0], MaxLogLevel))
					return
				}
				level = val
			} else {
				level = NextLogLevel(CurrentLogLevel())
			}
			if err := SetLogLevel(level); err != nil {
				c.Err(err)
				return
			}
			c.Printf("set log level : V(%d)\n", level)
		},
	}

	// ResetCmd discards pending input and output.
	ResetCmd = ishell.Cmd{
		Name: "reset",
		Help: "discard pending input and output",
		Func: func(c *ishell.Context) {
			sh.ShellFrom(c).Port.Reset()
			c.Println("OK")
		},
	}

	// EchoCmd prints its arguments.
	EchoCmd = ishell.Cmd{
		Name: "echo",
		Help: "ARGS...",
		Func: func(c *ishell.Context) {
			c.Println(strings.Join(c.Args, " "))
		},
	}
)

// FormatUptime breaks milliseconds down to days, hours, minutes, seconds
// and milliseconds.
func FormatUptime(ms int64) string {
	return fmt.Sprintf("current time: %d days %02d hours %02d minutes %02d seconds %03d milliseconds",
		ms/(1000*60*60*24), (ms/(1000*60*60))%24, (ms/(1000*60))%60, (ms/1000)%60, ms%1000)
}

// CurrentLogLevel returns the glog verbosity.
func CurrentLogLevel() int {
	f := flag.Lookup("v")
	if f == nil {
		return 0
	}
	level, _ := strconv.Atoi(f.Value.String())
	return level
}

// SetLogLevel sets the glog verbosity.
func SetLogLevel(level int) error {
	return flag.Set("v", strconv.Itoa(level))
}

func cycleLogLevel(s *sh.Shell) {
	level := NextLogLevel(CurrentLogLevel())
	if err := SetLogLevel(level); err != nil {
		s.Printf("Error: %v\n", err)
		return
	}
	s.Printf("set log level : V(%d)\n", level)
}

// NextLogLevel wraps around after MaxLogLevel.
func NextLogLevel(level int) int {
	if level >= MaxLogLevel {
		return 0
	}
	return level + 1
}

func init() {
	sh.AddCmds(
		&DateCmd,
		&StatsCmd,
		&LogLevelCmd,
		&ResetCmd,
		&EchoCmd,
	)
	sh.BindKey('~', cycleLogLevel)
}
