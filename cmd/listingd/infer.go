package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/JDelott/auctionfans-sub000/internal/assist"
	"github.com/JDelott/auctionfans-sub000/internal/config"
	"github.com/JDelott/auctionfans-sub000/internal/form"
	"github.com/JDelott/auctionfans-sub000/internal/llm"
	"github.com/JDelott/auctionfans-sub000/internal/session"
	"github.com/JDelott/auctionfans-sub000/internal/store"
)

// defaultModelSpec is used when neither config, env, nor --llm names one.
const defaultModelSpec = "google/gemini-2.5-flash"

func runInfer(args []string) error {
	var (
		utteranceParts []string
		formJSON       string
		categoriesJSON string
		contextFile    string
		sessionID      string
		itemID         string
		targetField    string
		llmSpec        string
		dbPath         string
		cfgPath        string
		sequential     bool
	)

	for i := 0; i < len(args); i++ {
		arg := args[i]
		takeValue := func() (string, error) {
			if i+1 >= len(args) {
				return "", fmt.Errorf("%s requires a value", arg)
			}
			i++
			return args[i], nil
		}

		var err error
		switch arg {
		case "--form":
			formJSON, err = takeValue()
		case "--categories":
			categoriesJSON, err = takeValue()
		case "--context":
			contextFile, err = takeValue()
		case "--session":
			sessionID, err = takeValue()
		case "--item":
			itemID, err = takeValue()
		case "--field":
			targetField, err = takeValue()
		case "--llm":
			llmSpec, err = takeValue()
		case "--db":
			dbPath, err = takeValue()
		case "--config":
			cfgPath, err = takeValue()
		case "--sequential":
			sequential = true
		default:
			if strings.HasPrefix(arg, "-") {
				return fmt.Errorf("unknown flag: %s", arg)
			}
			utteranceParts = append(utteranceParts, arg)
		}
		if err != nil {
			return err
		}
	}

	utterance := strings.TrimSpace(strings.Join(utteranceParts, " "))
	if utterance == "" {
		return fmt.Errorf("usage: listingd infer <utterance> [flags]")
	}
	if contextFile != "" && sessionID != "" {
		return fmt.Errorf("--context and --session are mutually exclusive")
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

	opts := assist.DefaultOptions()
	if sequential {
		opts.Concurrent = false
	}
	engine := assist.NewEngine(provider, opts)

	req := assist.Request{
		Utterance:   utterance,
		Form:        form.Snapshot{},
		ItemID:      itemID,
		TargetField: targetField,
	}
	if formJSON != "" {
		if err := json.Unmarshal([]byte(formJSON), &req.Form); err != nil {
			return fmt.Errorf("parsing --form: %w", err)
		}
	}
	if categoriesJSON != "" {
		if err := json.Unmarshal([]byte(categoriesJSON), &req.Categories); err != nil {
			return fmt.Errorf("parsing --categories: %w", err)
		}
	}

	ctx := context.Background()

	var st store.Store
	if sessionID != "" {
		st, err = store.NewStore(store.StoreConfig{DBPath: resolved.DBPath.Value})
		if err != nil {
			return fmt.Errorf("opening session store: %w", err)
		}
		defer st.Close()

		saved, err := st.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if saved != nil {
			req.Context = saved.Context
		}
	}
	if contextFile != "" {
		blob, err := os.ReadFile(contextFile)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("reading context file: %w", err)
		}
		req.Context = blob
	}

	res, err := engine.Process(ctx, req)
	if err != nil {
		return err
	}

	if sessionID != "" {
		if err := persistInferResult(ctx, st, sessionID, req, res); err != nil {
			return err
		}
	}
	if contextFile != "" {
		if err := os.WriteFile(contextFile, res.Context, 0o600); err != nil {
			return fmt.Errorf("writing context file: %w", err)
		}
	}

	out, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(out))
	return nil
}

// persistInferResult saves the updated context and appends this call's
// interaction, when one was recorded, to the event log.
func persistInferResult(ctx context.Context, st store.Store, sessionID string, req assist.Request, res *assist.Result) error {
	if err := st.SaveSession(ctx, &store.Session{
		ID:                 sessionID,
		InitialDescription: req.InitialDescription,
		Context:            res.Context,
	}); err != nil {
		return err
	}

	sess, err := session.Deserialize(res.Context)
	if err != nil || len(sess.History) == 0 {
		return nil
	}
	last := sess.History[len(sess.History)-1]
	if last.Input != req.Utterance {
		return nil
	}

	changes, _ := json.Marshal(last.FieldChanges)
	_, err = st.LogInteraction(ctx, &store.InteractionEvent{
		SessionID:     sessionID,
		InteractionID: last.ID,
		Tag:           string(last.Tag),
		Input:         last.Input,
		FieldChanges:  string(changes),
	})
	return err
}

// buildProvider turns the resolved configuration into a completion provider
// for one extraction purpose.
func buildProvider(resolved config.ResolvedConfig, purpose string) (llm.Provider, error) {
	spec := resolved.EffectiveLLMModel(purpose, defaultModelSpec)

	cfg, err := llm.ParseProviderFlag(spec.Value)
	if err != nil {
		return nil, err
	}
	if key := resolved.APIKeyForProvider(spec.Value); key.Value != "" {
		cfg.APIKey = key.Value
	}
	return llm.NewProvider(cfg)
}
