// Package main is the entry point for the ChatQnA megaservice.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/megaservice/cmd/megaservice/app"
)

func main() {
	app.NewApp().Run()
}
