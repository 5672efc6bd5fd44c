package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jgivc/imgfetch/internal/app"
)

func main() {
	cfgFileName := flag.String("c", "config.yml", "Path to config file")
	flag.Parse()

	app := app.New(*cfgFileName)
	go app.Start()

	c := make(chan os.Signal, 1)
	defer close(c)

	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-c

	fmt.Println("Received termination signal. Shutting down...")
	app.Stop()
	time.Sleep(2 * time.Second)
	fmt.Println("done")
}
