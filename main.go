/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/tempo/engine"
	"github.com/spaghettifunk/tempo/engine/core"
	"github.com/spaghettifunk/tempo/testbed"
)

func main() {
	configPath := flag.String("config", "tempo.toml", "path of the TOML settings file")
	flag.Parse()

	app, err := engine.LoadApplicationConfig(*configPath)
	if err != nil {
		core.LogFatal("failed to load config: %s", err)
	}

	tb := testbed.NewTestGame(app)

	e, err := engine.New(tb.Game)
	if err != nil {
		core.LogFatal(err.Error())
	}
	tb.RegisterEvents(e.Bus())

	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		core.LogFatal(err.Error())
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	go func() {
		// capture sigterm and other system call here
		<-sigCh
		e.Quit()
	}()

	// run engine
	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown failed: %s", err)
	}
	if runErr != nil {
		core.LogFatal(runErr.Error())
	}
}
