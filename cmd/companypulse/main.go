package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/CompanyPulse/internal/config"
	"github.com/TobiSchelling/CompanyPulse/internal/database"
	"github.com/TobiSchelling/CompanyPulse/internal/llm"
	"github.com/TobiSchelling/CompanyPulse/internal/logger"
	"github.com/TobiSchelling/CompanyPulse/internal/pipeline"
	"github.com/TobiSchelling/CompanyPulse/internal/search"
	"github.com/TobiSchelling/CompanyPulse/internal/server"
	"github.com/TobiSchelling/CompanyPulse/internal/speech"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "companypulse",
	Short:   "News sentiment reports for companies",
	Long:    "CompanyPulse searches recent news about a company, classifies each article's sentiment, and writes a comparative report with a Hindi translation and audio narration.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			logger.SetVerbose(verbose)
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
			return err
		}
		logger.SetVerbose(verbose)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("companypulse", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/companypulse/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Printf("Put API keys in %s (TAVILY_API_KEY, GROQ_API_KEY, OPENAI_API_KEY).\n",
			filepath.Join(config.ConfigDir(), ".env"))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database, search and model backend status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Analyses:")
		fmt.Printf("  Total: %d\n", stats.TotalAnalyses)
		fmt.Printf("  Companies: %d\n", stats.Companies)
		fmt.Printf("  Articles classified: %d\n", stats.ArticlesClassified)
		if stats.LastAnalysisAt != "" {
			fmt.Printf("  Last analysis: %s\n", stats.LastAnalysisAt)
		}

		fmt.Println("\nSearch:")
		fmt.Printf("  Provider: %s\n", cfg.Search.Provider)
		if cfg.Cache.ValkeyAddress != "" {
			fmt.Printf("  Cache: %s (ttl %s)\n", cfg.Cache.ValkeyAddress, cfg.Cache.TTL)
		}

		fmt.Println("\nModel backends:")
		for _, name := range llm.ProviderNames() {
			state := "ready"
			b, err := llm.ForProvider(cfg, name)
			switch {
			case err != nil:
				state = err.Error()
			case !b.IsConfigured():
				state = "not reachable"
			}
			marker := " "
			if strings.EqualFold(name, cfg.LLM.DefaultProvider) {
				marker = "*"
			}
			fmt.Printf("  %s %s: %s\n", marker, name, state)
		}

		fmt.Println("\nSpeech:")
		if _, err := speech.NewOpenAISpeaker(cfg.Speech); err != nil {
			fmt.Printf("  %v\n", err)
		} else {
			fmt.Printf("  %s / %s\n", cfg.Speech.Model, cfg.Speech.Voice)
		}
		return nil
	},
}

// --- analyze command ---

var (
	provider   string
	jsonOutput bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [company]",
	Short: "Run the full analysis: search -> classify -> aggregate -> report -> translate -> narrate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := llm.NormalizeProvider(provider, cfg.LLM.DefaultProvider)
		if err != nil {
			return err
		}
		backend, err := llm.ForProvider(cfg, name)
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe, cleanup, err := newPipeline(db)
		if err != nil {
			return err
		}
		defer cleanup()

		if !jsonOutput {
			pipe.OnStage(func(s pipeline.Stage) {
				if s != pipeline.StageDone && s != pipeline.StageFailed {
					fmt.Printf("... %s\n", s)
				}
			})
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		result, err := pipe.Run(ctx, args[0], backend)
		if errors.Is(err, pipeline.ErrNoSources) {
			if jsonOutput {
				return printJSON(map[string]string{"error": err.Error()})
			}
			fmt.Println(err)
			return nil
		}

		if jsonOutput {
			if err != nil {
				return err
			}
			return printJSON(result.Analysis)
		}

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/7: %s\n", i+1, step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}
		if err != nil {
			return err
		}

		a := result.Analysis
		fmt.Printf("\n%s\n", a.FinalReport)
		for _, w := range a.Warnings {
			fmt.Printf("\nWarning: %s\n", w)
		}
		if a.AudioFile != "" {
			fmt.Printf("\nAudio: %s\n", filepath.Join(cfg.AudioDir(), a.AudioFile))
		}
		fmt.Printf("\nAnalysis %s saved. Run 'companypulse serve' to view it.\n", a.ID)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&provider, "provider", "p", "", "Model provider: ollama or groq (default from config)")
	analyzeCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the analysis as JSON")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe, cleanup, err := newPipeline(db)
		if err != nil {
			return err
		}
		defer cleanup()

		srv, err := server.New(server.Options{
			Analyzer:        pipe,
			Backends:        newBackendCache().get,
			DB:              db,
			Store:           speech.NewStore(cfg.AudioDir()),
			DefaultProvider: cfg.LLM.DefaultProvider,
		})
		if err != nil {
			return err
		}

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, srv, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- history command ---

var (
	historyCompany string
	historyLimit   int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past analyses",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		items, err := db.ListAnalyses(historyCompany, historyLimit)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("No analyses yet. Run one with: companypulse analyze <company>")
			return nil
		}

		for _, a := range items {
			d := a.Distribution
			audio := ""
			if a.HasAudio {
				audio = " [audio]"
			}
			fmt.Printf("  %s  %-20s %-7s +%d -%d =%d%s\n", a.CreatedAt, a.CompanyName, a.ModelProvider,
				d.Positive, d.Negative, d.Neutral, audio)
			fmt.Printf("      %s\n", a.ID)
		}

		if historyCompany != "" {
			topics, err := db.TopTopics(historyCompany, 5)
			if err == nil && len(topics) > 0 {
				fmt.Println("\nTop topics:")
				for _, t := range topics {
					fmt.Printf("  %s (%d)\n", t.Topic, t.Count)
				}
			}
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyCompany, "company", "", "Only show analyses of this company")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of analyses to show")
}

func openDB() (*database.DB, error) {
	return database.Open(database.PathIn(cfg.GetDataDir()))
}

// newPipeline wires the searcher and narrator from config. Speech problems
// only disable narration.
func newPipeline(db *database.DB) (*pipeline.Pipeline, func(), error) {
	searcher, cleanup, err := search.NewSearcher(cfg)
	if err != nil {
		return nil, cleanup, err
	}

	var narrator *speech.Narrator
	speaker, err := speech.NewOpenAISpeaker(cfg.Speech)
	if err != nil {
		logger.Log.Warnf("Narration disabled: %v", err)
	} else {
		narrator = speech.NewNarrator(speaker, speech.NewStore(cfg.AudioDir()))
	}

	return pipeline.New(cfg, searcher, narrator, db), cleanup, nil
}

// backendCache keeps one backend per provider so a hosted backend's rate
// limiter spans requests.
type backendCache struct {
	mu       sync.Mutex
	backends map[string]llm.Backend
}

func newBackendCache() *backendCache {
	return &backendCache{backends: make(map[string]llm.Backend)}
}

func (c *backendCache) get(name string) (llm.Backend, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.backends[name]; ok {
		return b, nil
	}
	b, err := llm.ForProvider(cfg, name)
	if err != nil {
		return nil, err
	}
	c.backends[name] = b
	return b, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
