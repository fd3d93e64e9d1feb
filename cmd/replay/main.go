// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/spine_trainer/internal/app"
	"github.com/relabs-tech/spine_trainer/internal/config"
)

func main() {
	configPath := flag.String("config", "trainer_config.txt", "path to the configuration file")
	file := flag.String("file", "", "raw session CSV to replay")
	flag.Parse()

	if *file == "" {
		log.Fatal("usage: replay -file <raw.csv> [-config trainer_config.txt]")
	}

	log.Println("starting session replay")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunReplay(*file); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
