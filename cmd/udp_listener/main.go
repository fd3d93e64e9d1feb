package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/spine_trainer/internal/app"
	"github.com/relabs-tech/spine_trainer/internal/config"
)

func main() {
	configPath := flag.String("config", "trainer_config.txt", "path to the configuration file")
	flag.Parse()

	log.Println("starting telemetry UDP listener")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunUDPListener(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
