package main

import (
	"log"
	"os"
	"strconv"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DBPath     string `yaml:"db_path"`
	ListenAddr string `yaml:"listen_addr"`

	SteamRoot string `yaml:"steam_root"`

	HLTBEndpoint      string  `yaml:"hltb_endpoint"`
	HLTBMinSimilarity float64 `yaml:"hltb_min_similarity"`
	HLTBRatePerSecond float64 `yaml:"hltb_rate_per_second"`

	DroppedCheckSchedule string `yaml:"dropped_check_schedule"`
}

func LoadConfig() Config {
	var cfg Config

	// Load from config.yaml if it exists
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.ListenAddr, "LISTEN_ADDR")
	envOverride(&cfg.SteamRoot, "STEAM_ROOT")
	envOverride(&cfg.HLTBEndpoint, "HLTB_ENDPOINT")
	envOverrideFloat(&cfg.HLTBMinSimilarity, "HLTB_MIN_SIMILARITY")
	envOverrideFloat(&cfg.HLTBRatePerSecond, "HLTB_RATE_PER_SECOND")
	envOverride(&cfg.DroppedCheckSchedule, "DROPPED_CHECK_SCHEDULE")

	// Defaults
	if cfg.DBPath == "" {
		cfg.DBPath = "./gametags.db"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8675"
	}
	if cfg.HLTBEndpoint == "" {
		cfg.HLTBEndpoint = "https://howlongtobeat.com"
	}
	if cfg.HLTBMinSimilarity == 0 {
		cfg.HLTBMinSimilarity = 0.7
	}
	if cfg.HLTBRatePerSecond == 0 {
		cfg.HLTBRatePerSecond = 1.0
	}
	if cfg.DroppedCheckSchedule == "" {
		cfg.DroppedCheckSchedule = "0 3 * * *"
	}

	if cfg.HLTBMinSimilarity < 0 || cfg.HLTBMinSimilarity > 1 {
		log.Fatalf("invalid hltb_min_similarity '%f': must be between 0 and 1", cfg.HLTBMinSimilarity)
	}
	if cfg.HLTBRatePerSecond <= 0 {
		log.Fatalf("invalid hltb_rate_per_second '%f': must be > 0", cfg.HLTBRatePerSecond)
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(cfg.DroppedCheckSchedule); err != nil {
		log.Fatalf("invalid dropped_check_schedule '%s': %v", cfg.DroppedCheckSchedule, err)
	}

	return cfg
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideFloat(field *float64, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}
