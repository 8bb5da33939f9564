package config

// Example usage of the configuration system:
//
// 1. Load configuration with all sources:
//
//     cfg, err := config.Load("", nil)
//     if err != nil {
//         log.Fatal(err)
//     }
//
// 2. Load with a specific config file:
//
//     cfg, err := config.Load("/path/to/tierup.yaml", nil)
//     if err != nil {
//         log.Fatal(err)
//     }
//
// 3. Load with command line flags:
//
//     flags := map[string]interface{}{
//         "library-url": "https://steamcommunity.com/id/someone/games/?tab=all",
//         "output-dir":  "./covers",
//         "headless":    false,
//         "max-scrolls": 30,
//     }
//     cfg, err := config.Load(configFile, flags)
//
// 4. Environment variables (override the config file):
//
//     TIERUP_LIBRARY_URL=https://steamcommunity.com/id/someone/games/
//     TIERUP_OUTPUT_DIR=./covers
//     TIERUP_HEADLESS=false
//     TIERUP_LOG_LEVEL=debug
//     TIERUP_METRICS_ADDR=:9090
//
// 5. Write the active configuration back out:
//
//     if err := cfg.Save("tierup.yaml"); err != nil {
//         log.Fatal(err)
//     }
//
// Precedence order (highest wins):
//   command line flags > environment > .env file > config file > defaults
