package main

import (
	"go.uber.org/fx"

	"esign-archiver/internal/service"
)

func main() {
	fx.New(
		service.ServiceModules(),
		service.EventLogger(),
	).Run()
}
