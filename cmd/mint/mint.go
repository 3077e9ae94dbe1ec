package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nutmint/nutmint/mint"
)

func main() {
	config := mint.GetConfig()

	lightningClient, err := mint.NewLightningBackend()
	if err != nil {
		log.Fatalf("error setting up lightning backend: %v", err)
	}
	config.LightningClient = lightningClient

	m, err := mint.NewFromConfig(config)
	if err != nil {
		log.Fatalf("error loading mint: %v", err)
	}

	info := m.Info()
	log.Printf("mint '%v' ready with keyset %v (legacy %v)", info.Name, m.ActiveKeyset().Id, m.ActiveKeyset().LegacyId)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	<-c
	log.Println("shutting down")
}
