package main

import (
	"fmt"

	"github.com/Pg1910/clinical-rag/internal/adapters/driven/ai"
	"github.com/Pg1910/clinical-rag/internal/adapters/driven/config/file"
	"github.com/Pg1910/clinical-rag/internal/adapters/driven/index"
	"github.com/Pg1910/clinical-rag/internal/adapters/driven/llm/ratelimit"
	"github.com/Pg1910/clinical-rag/internal/adapters/driven/rows"
	"github.com/Pg1910/clinical-rag/internal/adapters/driven/storage/memory"
	"github.com/Pg1910/clinical-rag/internal/adapters/driven/storage/sqlite"
	"github.com/Pg1910/clinical-rag/internal/adapters/driving/cli"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driving"
	"github.com/Pg1910/clinical-rag/internal/core/services"
	"github.com/Pg1910/clinical-rag/internal/logger"
	"github.com/Pg1910/clinical-rag/internal/normalisers/clinical"
	"github.com/Pg1910/clinical-rag/internal/postprocessors"
)

// wire builds every service for one command invocation.
func wire(opts cli.Options) (*cli.Services, func(), error) {
	var configStore driven.ConfigStore
	if opts.NoConfig {
		configStore = memory.NewConfigStore()
	} else {
		store, err := file.NewConfigStore("")
		if err != nil {
			return nil, nil, fmt.Errorf("open config: %w", err)
		}
		configStore = store
	}

	settingsService := services.NewSettingsService(configStore, ai.NewConfigValidator())
	settings, err := settingsService.Get()
	if err != nil {
		return nil, nil, fmt.Errorf("load settings: %w", err)
	}
	if err := settingsService.Validate(); err != nil {
		logger.Warn("settings: %v", err)
	}

	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = settings.DataDir
	}
	store, err := sqlite.NewStore(dataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open index database: %w", err)
	}
	logger.Debug("index database: %s", store.Path())

	ruleStore := file.NewRuleStore(settings.RulesPath)
	rules, err := ruleStore.Rules()
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	prompts, err := file.NewPromptStore("")
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("open prompts: %w", err)
	}

	registry := postprocessors.NewRegistry()
	postprocessors.RegisterDefaults(registry)
	splitters, err := postprocessors.BuildFieldSplitters(registry, settings.Ingest)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("configure splitters: %w", err)
	}

	aiServices := ai.Init(settings)
	for _, w := range aiServices.Warnings {
		logger.Warn("%s", w)
	}
	if aiServices.FellBack {
		logger.Warn("embeddings fell back to feature hashing; rebuild the index once %s is reachable", settings.Embedding.Provider)
	}

	var generator driving.GenerationService
	if aiServices.LLMService != nil {
		llm := ratelimit.Wrap(aiServices.LLMService, ratelimit.Config{
			RequestsPerSecond: settings.LLM.RequestsPerSecond,
			Burst:             settings.LLM.Burst,
		})
		generator = services.NewOrchestrator(llm, settings.LLM, settings.Budget)
	} else {
		logger.Warn("no LLM available; reports use deterministic fallbacks")
	}

	retrieval := services.NewRetrievalService(aiServices.EmbeddingService, settings.Retrieval)
	soap := services.NewSOAPService(retrieval, rules, settings.Retrieval)
	cases := services.NewCaseService(soap, generator, prompts, rules, *settings)

	svcs := &cli.Services{
		Settings:  settingsService,
		Ingest:    services.NewIngestService(splitters, rows.NewReader(), clinical.New()),
		Index:     services.NewIndexService(store.BundleStore(), index.NewFactory(), aiServices.EmbeddingService),
		Retrieval: retrieval,
		SOAP:      soap,
		Cases:     cases,
		Batch:     services.NewBatchService(cases, store.RunStore(), settings.Batch),
		Rules:     ruleStore,
	}

	cleanup := func() {
		aiServices.Close()
		if err := store.Close(); err != nil {
			logger.Warn("closing index database: %v", err)
		}
	}
	return svcs, cleanup, nil
}
