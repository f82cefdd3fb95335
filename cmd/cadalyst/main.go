// cadalyst analyzes CAD drawings through a cascade of vision models and
// answers questions over previously ingested engineering documents.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"

	"github.com/documind/cadalyst/internal/analysis"
	"github.com/documind/cadalyst/internal/config"
	"github.com/documind/cadalyst/internal/docs"
	"github.com/documind/cadalyst/internal/index"
	"github.com/documind/cadalyst/internal/llm"
	. "github.com/documind/cadalyst/internal/logging"
	"github.com/documind/cadalyst/internal/media"
)

const version = "0.1.0"

type app struct {
	cfg     *config.Config
	catalog llm.Catalog
}

func (a *app) orchestrator() *llm.Orchestrator {
	timeout := time.Duration(a.cfg.Analysis.TimeoutSeconds) * time.Second
	direct := llm.NewGeminiProvider(a.cfg.Keys.Google, timeout)
	gateway := llm.NewOpenRouterProvider(a.cfg.Keys.OpenRouter, timeout)
	return llm.NewOrchestrator(a.catalog, direct, gateway, a.cfg.Analysis.GatewayFallbackModel)
}

func (a *app) openStore() (*index.Store, error) {
	var embedder index.EmbeddingProvider = &index.NoopProvider{}
	if a.cfg.Keys.Google != "" {
		embedder = index.NewGeminiEmbedder(a.cfg.Keys.Google, a.cfg.Index.EmbeddingModel)
	}
	return index.Open(a.cfg.Index, embedder)
}

func (a *app) modelID(override string) string {
	if override != "" {
		return override
	}
	return a.cfg.Analysis.DefaultModel
}

type cli struct {
	Config string `help:"Path to the config file." type:"path"`
	Debug  bool   `help:"Enable debug logging."`

	Analyze analyzeCmd `cmd:"" help:"Run the staged vision analysis on a CAD drawing image."`
	Ingest  ingestCmd  `cmd:"" help:"Chunk and index a document (PDF, DOCX, TXT, MD) for querying."`
	Query   queryCmd   `cmd:"" help:"Ask a question over the indexed documents."`
	Delete  deleteCmd  `cmd:"" help:"Remove a document from the index."`
	Docs    docsCmd    `cmd:"" help:"List indexed documents."`
	Models  modelsCmd  `cmd:"" help:"List available models."`
	Version versionCmd `cmd:"" help:"Print the version."`
}

type analyzeCmd struct {
	Image string `arg:"" help:"Path to the drawing image." type:"existingfile"`
	Model string `help:"Model id to analyze with." short:"m"`
	Index bool   `help:"Store the analysis in the document index afterwards."`
	Out   string `help:"Write the report to a file instead of stdout." type:"path"`
}

func (c *analyzeCmd) Run(a *app) error {
	data, err := os.ReadFile(c.Image)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	if max := a.cfg.Upload.MaxBytes; max > 0 && int64(len(data)) > max {
		return fmt.Errorf("image is %d bytes, limit is %d", len(data), max)
	}

	prepared, err := media.Prepare(data)
	if err != nil {
		return fmt.Errorf("prepare image: %w", err)
	}

	pipeline := analysis.NewPipeline(a.catalog, a.orchestrator())
	result, err := pipeline.Analyze(context.Background(), a.modelID(c.Model), prepared)
	if err != nil {
		return err
	}

	report := result.Format()
	if c.Out != "" {
		if err := os.WriteFile(c.Out, []byte(report), 0644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		L_info("report written", "path", c.Out)
	} else {
		fmt.Println(report)
	}

	if c.Index {
		store, err := a.openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		docID := uuid.NewString()
		records := unitRecords(result.Units(docID))
		name := filepath.Base(c.Image) + " analysis"
		if _, err := store.Index(context.Background(), docID, name, records); err != nil {
			return fmt.Errorf("index analysis: %w", err)
		}
		fmt.Printf("indexed analysis as document %s\n", docID)
	}

	return nil
}

type ingestCmd struct {
	File string `arg:"" help:"Path to the document." type:"existingfile"`
	ID   string `help:"Document id to index under (default: random)."`
}

func (c *ingestCmd) Run(a *app) error {
	doc, err := docs.Load(c.File)
	if err != nil {
		return err
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	docID := c.ID
	if docID == "" {
		docID = uuid.NewString()
	}

	chunks, err := store.Index(context.Background(), docID, filepath.Base(c.File), []index.Record{
		{Text: doc.Text, Metadata: doc.Metadata},
	})
	if err != nil {
		return err
	}

	fmt.Printf("indexed %s as document %s (%d chunks)\n", filepath.Base(c.File), docID, chunks)
	return nil
}

type queryCmd struct {
	Question []string `arg:"" help:"The question to ask."`
	Doc      []string `help:"Restrict the query to these document ids."`
	Mindmap  bool     `help:"Ask for a Mermaid mind map answer."`
	Model    string   `help:"Model id to answer with." short:"m"`
}

func (c *queryCmd) Run(a *app) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	engine := index.NewEngine(store, a.orchestrator(), a.modelID(c.Model), a.cfg.Index.TopK)
	result := engine.Query(context.Background(), strings.Join(c.Question, " "), c.Doc, c.Mindmap)

	fmt.Println(result.Response)
	if result.HasMindmap {
		fmt.Printf("\n```mermaid\n%s\n```\n", result.MermaidCode)
	}
	if len(result.Sources) > 0 {
		fmt.Printf("\nSources: %s\n", strings.Join(result.Sources, ", "))
	}
	return nil
}

type deleteCmd struct {
	DocID string `arg:"" help:"Document id to delete."`
}

func (c *deleteCmd) Run(a *app) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Delete(c.DocID); err != nil {
		return err
	}
	fmt.Printf("deleted document %s\n", c.DocID)
	return nil
}

type docsCmd struct{}

func (c *docsCmd) Run(a *app) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.Documents()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("no documents indexed")
		return nil
	}
	for _, d := range list {
		fmt.Printf("%s  %-40s  %4d chunks  %s\n", d.DocID, d.Name, d.ChunkCount, d.IndexedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

type modelsCmd struct{}

func (c *modelsCmd) Run(a *app) error {
	for _, m := range a.catalog.List() {
		free := ""
		if m.Free {
			free = " (free)"
		}
		fmt.Printf("%-28s %-14s %s%s\n", m.ID, m.Provider, m.Name, free)
		fmt.Printf("%-28s capabilities: %s\n", "", strings.Join(m.Capabilities, ", "))
	}
	return nil
}

type versionCmd struct{}

func (c *versionCmd) Run(a *app) error {
	fmt.Printf("cadalyst %s\n", version)
	return nil
}

// unitRecords converts analysis units into index records
func unitRecords(units []analysis.Unit) []index.Record {
	records := make([]index.Record, 0, len(units))
	for _, u := range units {
		records = append(records, index.Record{Text: u.Text, Metadata: u.Metadata})
	}
	return records
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Name("cadalyst"),
		kong.Description("Cascading multi-model CAD drawing analyzer and document Q&A."),
		kong.UsageOnError(),
	)

	level := LevelInfo
	if c.Debug {
		level = LevelDebug
	}
	Init(&Config{Level: level, TimeFormat: "15:04:05", ShowCaller: c.Debug})

	cfg, err := config.Load(c.Config)
	if err != nil {
		L_fatal("failed to load config: %v", err)
	}

	a := &app{cfg: cfg, catalog: llm.DefaultCatalog()}
	if err := ctx.Run(a); err != nil {
		L_fatal("%v", err)
	}
}
