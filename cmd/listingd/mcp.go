package main

import (
	"context"
	"fmt"
	"os"

	"github.com/JDelott/auctionfans-sub000/internal/assist"
	"github.com/JDelott/auctionfans-sub000/internal/config"
	"github.com/JDelott/auctionfans-sub000/internal/mcp"
	"github.com/JDelott/auctionfans-sub000/internal/store"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

func runMCP(args []string) error {
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

	provider, err := buildProvider(resolved, "field")
	if err != nil {
		return err
	}

	st, err := store.NewStore(store.StoreConfig{DBPath: resolved.DBPath.Value})
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer st.Close()

	engine := assist.NewEngine(provider, assist.DefaultOptions())

	srv := mcp.NewServer(mcp.ServerConfig{
		Engine:  engine,
		Store:   st,
		Version: version,
	})

	fmt.Fprintf(os.Stderr, "listingd %s serving MCP over stdio (provider: %s)\n", version, provider.Name())
	return mcpserver.ServeStdio(srv)
}

func runSessions(args []string) error {
	var dbPath, cfgPath string

	for i := 0; i < len(args); i++ {
		switch args[i] {
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
		CLIDBPath:  dbPath,
	})
	if err != nil {
		return err
	}

	st, err := store.NewStore(store.StoreConfig{DBPath: resolved.DBPath.Value})
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer st.Close()

	sessions, err := st.ListSessions(context.Background(), 50)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions yet.")
		return nil
	}

	for _, sess := range sessions {
		desc := sess.InitialDescription
		if desc == "" {
			desc = "(no description)"
		}
		fmt.Printf("%s  %s  %s\n", sess.ID, sess.UpdatedAt.UTC().Format("2006-01-02 15:04"), desc)
	}
	return nil
}
