package cli

import (
	"context"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kestrel/pkg/adapter"
	"github.com/m-mizutani/kestrel/pkg/memory"
	"github.com/m-mizutani/kestrel/pkg/policy"
	"github.com/m-mizutani/kestrel/pkg/prompt"
	"github.com/m-mizutani/kestrel/pkg/repository"
	"github.com/m-mizutani/kestrel/pkg/sandbox"
	"github.com/m-mizutani/kestrel/pkg/tool"
	"github.com/m-mizutani/kestrel/pkg/utils/logging"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// config holds configuration values
type config struct {
	// Global
	logLevel   string
	configFile string

	// LLM
	llmProvider       string
	embeddingProvider string
	anthropicAPIKey   string
	claudeModel       string
	openaiAPIKey      string
	openaiModel       string
	openaiEmbedding   string
	geminiProject     string
	geminiLocation    string
	geminiModel       string
	geminiEmbedding   string

	// Memory store
	store               string
	storePath           string
	storageBucket       string
	storagePrefix       string
	firestoreProject    string
	firestoreDatabase   string
	firestoreCollection string

	// Sandbox
	filesDir  string
	sourceDir string
	promptDir string
	policyDir string

	file   *fileConfig
	gemini *adapter.GeminiClient
}

// fileConfig is the optional YAML file. It holds tuning values that have no flag.
type fileConfig struct {
	Memory struct {
		Weights      *memory.Weights `yaml:"weights"`
		Epoch        *time.Time      `yaml:"epoch"`
		DefaultSort  string          `yaml:"default_sort"`
		DefaultLimit int             `yaml:"default_limit"`
		DateLayout   string          `yaml:"date_layout"`
	} `yaml:"memory"`

	CorePrompts []string `yaml:"core_prompts"`

	Agent struct {
		MaxIterations int `yaml:"max_iterations"`
	} `yaml:"agent"`
}

func loadFileConfig(path string) (*fileConfig, error) {
	fc := &fileConfig{}
	if path == "" {
		return fc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V("path", path))
	}
	if err := yaml.Unmarshal(data, fc); err != nil {
		return nil, goerr.Wrap(err, "failed to parse config file", goerr.V("path", path))
	}

	if fc.Memory.DefaultSort != "" {
		if _, err := memory.ParseSortMode(fc.Memory.DefaultSort); err != nil {
			return nil, goerr.Wrap(err, "invalid memory.default_sort in config file", goerr.V("path", path))
		}
	}
	if fc.Memory.DefaultLimit < 0 {
		return nil, goerr.New("memory.default_limit must not be negative",
			goerr.V("path", path),
			goerr.V("default_limit", fc.Memory.DefaultLimit))
	}

	return fc, nil
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("KESTREL_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to YAML config file",
			Sources:     cli.EnvVars("KESTREL_CONFIG"),
			Destination: &cfg.configFile,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "llm-provider",
			Usage:       "Completion provider (claude, gemini, openai); empty picks the first configured",
			Sources:     cli.EnvVars("KESTREL_LLM_PROVIDER"),
			Destination: &cfg.llmProvider,
		},
		&cli.StringFlag{
			Name:        "embedding-provider",
			Usage:       "Embedding provider (gemini, openai); empty picks the first configured",
			Sources:     cli.EnvVars("KESTREL_EMBEDDING_PROVIDER"),
			Destination: &cfg.embeddingProvider,
		},
		&cli.StringFlag{
			Name:        "anthropic-api-key",
			Usage:       "Anthropic API key",
			Sources:     cli.EnvVars("ANTHROPIC_API_KEY"),
			Destination: &cfg.anthropicAPIKey,
		},
		&cli.StringFlag{
			Name:        "claude-model",
			Usage:       "Claude model name",
			Sources:     cli.EnvVars("KESTREL_CLAUDE_MODEL"),
			Destination: &cfg.claudeModel,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "OpenAI API key",
			Sources:     cli.EnvVars("OPENAI_API_KEY"),
			Destination: &cfg.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "openai-model",
			Usage:       "OpenAI chat model name",
			Sources:     cli.EnvVars("KESTREL_OPENAI_MODEL"),
			Destination: &cfg.openaiModel,
		},
		&cli.StringFlag{
			Name:        "openai-embedding-model",
			Usage:       "OpenAI embedding model name",
			Sources:     cli.EnvVars("KESTREL_OPENAI_EMBEDDING_MODEL"),
			Destination: &cfg.openaiEmbedding,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini generative model name",
			Sources:     cli.EnvVars("KESTREL_GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.StringFlag{
			Name:        "gemini-embedding-model",
			Usage:       "Gemini embedding model name",
			Sources:     cli.EnvVars("KESTREL_GEMINI_EMBEDDING_MODEL"),
			Destination: &cfg.geminiEmbedding,
		},
	}
}

// storeFlags returns flags selecting where memories are persisted
func storeFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "store",
			Usage:       "Memory store type (file, sqlite, storage, firestore, memory)",
			Value:       "file",
			Sources:     cli.EnvVars("KESTREL_STORE"),
			Destination: &cfg.store,
		},
		&cli.StringFlag{
			Name:        "store-path",
			Usage:       "Path of the memory file or SQLite database",
			Sources:     cli.EnvVars("KESTREL_STORE_PATH"),
			Destination: &cfg.storePath,
		},
		&cli.StringFlag{
			Name:        "storage-bucket",
			Usage:       "Cloud Storage bucket for the memory object",
			Sources:     cli.EnvVars("KESTREL_STORAGE_BUCKET"),
			Destination: &cfg.storageBucket,
		},
		&cli.StringFlag{
			Name:        "storage-prefix",
			Usage:       "Object name prefix in the Cloud Storage bucket",
			Sources:     cli.EnvVars("KESTREL_STORAGE_PREFIX"),
			Destination: &cfg.storagePrefix,
		},
		&cli.StringFlag{
			Name:        "firestore-project",
			Usage:       "Google Cloud project ID for Firestore",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.firestoreProject,
		},
		&cli.StringFlag{
			Name:        "firestore-database",
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.firestoreDatabase,
		},
		&cli.StringFlag{
			Name:        "firestore-collection",
			Usage:       "Firestore collection holding memories",
			Value:       repository.DefaultFirestoreCollection,
			Sources:     cli.EnvVars("KESTREL_FIRESTORE_COLLECTION"),
			Destination: &cfg.firestoreCollection,
		},
	}
}

// sandboxFlags returns flags for the directories tools may touch
func sandboxFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "files-dir",
			Usage:       "Directory the agent may read and write",
			Value:       "files",
			Sources:     cli.EnvVars("KESTREL_FILES_DIR"),
			Destination: &cfg.filesDir,
		},
		&cli.StringFlag{
			Name:        "source-dir",
			Usage:       "Directory of source the agent may read",
			Value:       ".",
			Sources:     cli.EnvVars("KESTREL_SOURCE_DIR"),
			Destination: &cfg.sourceDir,
		},
		&cli.StringFlag{
			Name:        "prompt-dir",
			Usage:       "Directory of core prompt files",
			Value:       "prompts",
			Sources:     cli.EnvVars("KESTREL_PROMPT_DIR"),
			Destination: &cfg.promptDir,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego dispatch policies; empty allows every tag",
			Sources:     cli.EnvVars("KESTREL_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
	}
}

// setup installs the logger and reads the config file
func (cfg *config) setup(ctx context.Context) (context.Context, error) {
	logger := logging.New(cfg.logLevel, os.Stderr)
	logging.SetDefault(logger)
	ctx = logging.With(ctx, logger)

	fc, err := loadFileConfig(cfg.configFile)
	if err != nil {
		return ctx, err
	}
	cfg.file = fc
	return ctx, nil
}

func (cfg *config) fileConf() *fileConfig {
	if cfg.file == nil {
		return &fileConfig{}
	}
	return cfg.file
}

// newGemini returns the Gemini client, creating it on first use so completion
// and embedding share one connection.
func (cfg *config) newGemini(ctx context.Context) (*adapter.GeminiClient, error) {
	if cfg.gemini != nil {
		return cfg.gemini, nil
	}
	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project is required")
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}

	var opts []adapter.GeminiOption
	if cfg.geminiModel != "" {
		opts = append(opts, adapter.WithGenerativeModel(cfg.geminiModel))
	}
	if cfg.geminiEmbedding != "" {
		opts = append(opts, adapter.WithEmbeddingModel(cfg.geminiEmbedding))
	}
	client, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, opts...)
	if err != nil {
		return nil, err
	}
	cfg.gemini = client
	return client, nil
}

func (cfg *config) newOpenAI() (*adapter.OpenAIClient, error) {
	if cfg.openaiAPIKey == "" {
		return nil, goerr.New("openai-api-key is required")
	}

	var opts []adapter.OpenAIOption
	if cfg.openaiModel != "" {
		opts = append(opts, adapter.WithOpenAIChatModel(cfg.openaiModel))
	}
	if cfg.openaiEmbedding != "" {
		opts = append(opts, adapter.WithOpenAIEmbeddingModel(cfg.openaiEmbedding))
	}
	return adapter.NewOpenAI(cfg.openaiAPIKey, opts...), nil
}

// newCompleter creates the completion provider. Without --llm-provider the
// first configured of claude, gemini and openai is used.
func (cfg *config) newCompleter(ctx context.Context) (adapter.Completer, error) {
	provider := cfg.llmProvider
	if provider == "" {
		switch {
		case cfg.anthropicAPIKey != "":
			provider = "claude"
		case cfg.geminiProject != "":
			provider = "gemini"
		case cfg.openaiAPIKey != "":
			provider = "openai"
		default:
			return nil, goerr.New("no completion provider configured; set anthropic-api-key, gemini-project or openai-api-key")
		}
	}

	switch provider {
	case "claude":
		if cfg.anthropicAPIKey == "" {
			return nil, goerr.New("anthropic-api-key is required")
		}
		var opts []adapter.ClaudeOption
		if cfg.claudeModel != "" {
			opts = append(opts, adapter.WithClaudeModel(cfg.claudeModel))
		}
		return adapter.NewClaude(cfg.anthropicAPIKey, opts...), nil
	case "gemini":
		return cfg.newGemini(ctx)
	case "openai":
		return cfg.newOpenAI()
	}
	return nil, goerr.New("unknown llm provider", goerr.V("provider", provider))
}

// newEmbedder creates the embedding provider. It returns nil without error
// when none is configured.
func (cfg *config) newEmbedder(ctx context.Context) (adapter.Embedder, error) {
	provider := cfg.embeddingProvider
	if provider == "" {
		switch {
		case cfg.geminiProject != "":
			provider = "gemini"
		case cfg.openaiAPIKey != "":
			provider = "openai"
		default:
			return nil, nil
		}
	}

	switch provider {
	case "gemini":
		return cfg.newGemini(ctx)
	case "openai":
		return cfg.newOpenAI()
	}
	return nil, goerr.New("unknown embedding provider", goerr.V("provider", provider))
}

// newRepository creates the memory repository selected by --store. The
// returned function releases it.
func (cfg *config) newRepository(ctx context.Context) (repository.MemoryRepository, func(), error) {
	nop := func() {}

	switch cfg.store {
	case "file", "":
		path := cfg.storePath
		if path == "" {
			path = "memories.json"
		}
		return repository.NewFile(path), nop, nil

	case "sqlite":
		path := cfg.storePath
		if path == "" {
			path = "kestrel.db"
		}
		repo, err := repository.NewSQLite(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { safeClose(ctx, repo) }, nil

	case "storage":
		if cfg.storageBucket == "" {
			return nil, nil, goerr.New("storage-bucket is required for storage store")
		}
		client, err := adapter.NewStorage(ctx, cfg.storageBucket, cfg.storagePrefix)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewStorage(client, ""), nop, nil

	case "firestore":
		if cfg.firestoreProject == "" {
			return nil, nil, goerr.New("firestore-project is required for firestore store")
		}
		repo, err := repository.NewFirestore(ctx, cfg.firestoreProject, cfg.firestoreDatabase, cfg.firestoreCollection)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { safeClose(ctx, repo) }, nil

	case "memory":
		return repository.NewMemory(), nop, nil
	}

	return nil, nil, goerr.New("unknown store type", goerr.V("store", cfg.store))
}

type closer interface {
	Close() error
}

func safeClose(ctx context.Context, c closer) {
	if err := c.Close(); err != nil {
		logging.From(ctx).Warn("failed to close", "error", err)
	}
}

func (cfg *config) memoryOptions() []memory.Option {
	fc := cfg.fileConf()
	var opts []memory.Option
	if fc.Memory.Weights != nil {
		opts = append(opts, memory.WithWeights(*fc.Memory.Weights))
	}
	if fc.Memory.Epoch != nil {
		opts = append(opts, memory.WithEpoch(*fc.Memory.Epoch))
	}
	if fc.Memory.DateLayout != "" {
		opts = append(opts, memory.WithDateLayout(fc.Memory.DateLayout))
	}
	return opts
}

// newMemoryStore loads the memory store. A nil store without error means no
// embedding provider is configured.
func (cfg *config) newMemoryStore(ctx context.Context) (*memory.Store, func(), error) {
	embedder, err := cfg.newEmbedder(ctx)
	if err != nil {
		return nil, nil, err
	}
	if embedder == nil {
		return nil, func() {}, nil
	}

	repo, closeRepo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, nil, err
	}

	store, err := memory.New(ctx, repo, embedder, cfg.memoryOptions()...)
	if err != nil {
		closeRepo()
		return nil, nil, err
	}
	return store, closeRepo, nil
}

func (cfg *config) newCorePrompts() *prompt.CorePrompts {
	var opts []prompt.Option
	if names := cfg.fileConf().CorePrompts; len(names) > 0 {
		opts = append(opts, prompt.WithNames(names...))
	}
	return prompt.New(cfg.promptDir, opts...)
}

func (cfg *config) defaults() tool.Defaults {
	fc := cfg.fileConf()
	return tool.Defaults{
		Sort:  memory.SortMode(fc.Memory.DefaultSort),
		Limit: fc.Memory.DefaultLimit,
	}
}

// newDispatcher wires every tool component. Memory tags fail with "not
// configured" when no embedding provider is set.
func (cfg *config) newDispatcher(ctx context.Context) (*tool.Dispatcher, func(), error) {
	opts := []tool.Option{
		tool.WithCorePrompts(cfg.newCorePrompts()),
		tool.WithDefaults(cfg.defaults()),
	}

	files, err := sandbox.NewFiles(cfg.filesDir)
	if err != nil {
		return nil, nil, err
	}
	opts = append(opts, tool.WithFiles(files))

	source, err := sandbox.NewSource(cfg.sourceDir)
	if err != nil {
		return nil, nil, err
	}
	opts = append(opts, tool.WithSource(source))

	p, err := policy.Load(ctx, cfg.policyDir)
	if err != nil {
		return nil, nil, err
	}
	if p != nil {
		opts = append(opts, tool.WithPolicy(p))
	}

	store, closeStore, err := cfg.newMemoryStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store != nil {
		opts = append(opts, tool.WithMemory(store))
	} else {
		logging.From(ctx).Info("no embedding provider configured, memory tags are disabled")
	}

	return tool.New(opts...), closeStore, nil
}
