package main

import (
	"log"
	"net/http"
)

func main() {
	cfg := LoadConfig()

	db, err := InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	defer db.Close()

	resolver := NewHLTBClient(db, cfg)
	syncer := NewSyncer(db, resolver)
	steam := NewSteamLibrary(cfg)

	StartDroppedCheckScheduler(cfg, db)

	server := NewServer(db, syncer, steam)
	log.Printf("Starting game tags backend on %s...", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, server.Handler()); err != nil {
		log.Fatalf("HTTP server error: %v", err)
	}
}
