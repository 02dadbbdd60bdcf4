package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/warehouse/recebimento/pkg/recebimento"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := recebimento.Main(ctx, os.Args[1:]); err != nil {
		stop()
		log.Fatal(err)
	}
}
