package main

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/golang/glog"

	"github.com/robotalks/shellport/pkg/cli/sh"
	"github.com/robotalks/shellport/pkg/framework"
	"github.com/robotalks/shellport/pkg/periph"
	"github.com/robotalks/shellport/pkg/port"
	"github.com/robotalks/shellport/pkg/transport"

	_ "github.com/robotalks/shellport/pkg/cli/cmds"
)

//go-build: CGO_ENABLED=0

func init() {
	port.SetupFlags()
	transport.SetupFlags()
	sh.SetupFlags()
}

type injector struct {
	*periph.Loopback
}

func (w injector) Write(p []byte) (int, error) {
	w.Inject(p)
	return len(p), nil
}

// console attaches the loopback peripheral to this terminal.
func console(l *periph.Loopback) framework.Runnable {
	l.Sink = os.Stdout
	return framework.RunFunc(func(ctx context.Context) error {
		errCh := make(chan error, 1)
		// the stdin reader is not interruptible, it is left behind on exit.
		go func() {
			_, err := io.Copy(injector{l}, os.Stdin)
			errCh <- err
		}()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		}
	})
}

func main() {
	flag.Parse()
	defer glog.Flush()

	drv, err := transport.Default().Open()
	if err != nil {
		glog.Fatal(err)
	}
	conf := port.Default()
	p, err := port.New(conf, drv)
	if err != nil {
		glog.Fatal(err)
	}
	defer p.Close()
	p.OverflowHook = func(data []byte) {
		glog.Warningf("tx overflow, %d bytes dropped", len(data))
	}

	loop := framework.NewLoop()
	loop.Interval = conf.PollInterval
	loop.Add(p, sh.New(p))
	if l, ok := drv.(*periph.Loopback); ok {
		loop.AddRunnable(framework.NamedRun("console", console(l)))
	}

	glog.Infof("shellport on %s", transport.Default().URL)
	runner := framework.NewRunner().HandleSignals()
	runner.Go(framework.NamedRun("loop", loop))
	if err := runner.Wait(); err != nil {
		glog.Error(err)
	}
}
