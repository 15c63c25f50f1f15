package main

import (
	"fmt"
	"strings"

	"github.com/JDelott/auctionfans-sub000/internal/config"
)

func runConfig(args []string) error {
	var llmSpec, dbPath, cfgPath string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--llm":
			if i+1 >= len(args) {
				return fmt.Errorf("--llm requires a value")
			}
			i++
			llmSpec = args[i]
		case "--db":
			if i+1 >= len(args) {
				return fmt.Errorf("--db requires a value")
			}
			i++
			dbPath = args[i]
		case "--config":
			if i+1 >= len(args) {
				return fmt.Errorf("--config requires a value")
			}
			i++
			cfgPath = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	resolved, err := config.ResolveConfig(config.ResolveOptions{
		ConfigPath: cfgPath,
		CLILLM:     llmSpec,
		CLIDBPath:  dbPath,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Config file: %s\n\n", resolved.ConfigPath)

	printValue("db_path", resolved.DBPath)
	printValue("llm_provider", resolved.LLMProvider)
	printValue("llm_field_model", resolved.LLMFieldModel)
	printValue("llm_combined_model", resolved.LLMCombinedModel)

	if len(resolved.LLMKeys) > 0 {
		fmt.Println("\nAPI keys:")
		for provider, key := range resolved.LLMKeys {
			fmt.Printf("  %-12s %s  (%s: %s)\n", provider, maskKey(key.Value), key.Source, key.From)
		}
	}
	return nil
}

func printValue(name string, v config.ResolvedValue) {
	if v.Value == "" {
		fmt.Printf("%-20s (unset)\n", name)
		return
	}
	from := string(v.Source)
	if v.From != "" {
		from += ": " + v.From
	}
	fmt.Printf("%-20s %s  (%s)\n", name, v.Value, from)
}

// maskKey hides all but the tail of a secret.
func maskKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
