package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/supportrag/llm/embedding"
	"github.com/BaSui01/supportrag/rag"
)

// =============================================================================
// 🌱 seed 命令
// =============================================================================

// seedEntry FAQ 文件中的一条记录。JSON 是 YAML 的子集，两种格式共用一个解析器。
type seedEntry struct {
	Question string   `yaml:"question"`
	Answer   string   `yaml:"answer"`
	Category string   `yaml:"category"`
	Tags     []string `yaml:"tags"`
	Priority int      `yaml:"priority"`
}

// seedReport 导入结果汇总
type seedReport struct {
	Parsed   int
	Skipped  int
	Embedded int
	Failed   int
	Inserted int
}

func runSeed(args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	file := fs.String("file", "", "FAQ file (YAML or JSON)")
	dryRun := fs.Bool("dry-run", false, "Embed entries without inserting them")
	_ = fs.Parse(args)

	if *file == "" {
		fmt.Fprintln(os.Stderr, "seed: --file is required")
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	data, err := os.ReadFile(*file)
	if err != nil {
		logger.Fatal("failed to read FAQ file", zap.String("file", *file), zap.Error(err))
	}
	entries, err := parseSeedFile(data)
	if err != nil {
		logger.Fatal("failed to parse FAQ file", zap.String("file", *file), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, embedder := openKnowledge(ctx, cfg, logger)
	defer func() { _ = store.Close(context.Background()) }()

	opts := embedding.BatchOptions{
		BatchSize:  cfg.Embedding.BatchSize,
		ItemDelay:  cfg.Embedding.ItemDelay,
		BatchDelay: cfg.Embedding.BatchDelay,
	}
	report, err := seedFAQs(ctx, entries, store, embedder, opts, *dryRun, logger)
	if err != nil {
		logger.Error("seed failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}

	fmt.Printf("Parsed %d, skipped %d, embedded %d, failed %d, inserted %d\n",
		report.Parsed, report.Skipped, report.Embedded, report.Failed, report.Inserted)
}

// parseSeedFile 接受顶层列表或 {faqs: [...]} 两种形态
func parseSeedFile(data []byte) ([]seedEntry, error) {
	var wrapped struct {
		FAQs []seedEntry `yaml:"faqs"`
	}
	if err := yaml.Unmarshal(data, &wrapped); err == nil && len(wrapped.FAQs) > 0 {
		return wrapped.FAQs, nil
	}

	var entries []seedEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("expected a list of FAQ entries: %w", err)
	}
	if len(entries) == 0 {
		return nil, errors.New("no FAQ entries found")
	}
	return entries, nil
}

// seedFAQs 以 "{category}: {question}" 批量嵌入后写入知识库。
// 嵌入失败的条目跳过；嵌入器或知识库不可用时直接返回错误。
func seedFAQs(ctx context.Context, entries []seedEntry, store rag.KnowledgeStore, embedder embedding.Embedder,
	opts embedding.BatchOptions, dryRun bool, logger *zap.Logger) (seedReport, error) {
	report := seedReport{Parsed: len(entries)}

	if !embedder.Available() {
		return report, errors.New("embedding provider not configured")
	}
	if !dryRun && !store.Available() {
		return report, errors.New("knowledge store not available")
	}

	byID := make(map[string]seedEntry, len(entries))
	items := make([]embedding.BatchItem, 0, len(entries))
	for i, e := range entries {
		e.Question = strings.TrimSpace(e.Question)
		e.Answer = strings.TrimSpace(e.Answer)
		if e.Question == "" || e.Answer == "" {
			logger.Warn("skipping FAQ entry without question or answer", zap.Int("index", i))
			report.Skipped++
			continue
		}
		if e.Category == "" {
			e.Category = rag.DefaultCategory
		}
		id := fmt.Sprintf("entry-%d", i)
		byID[id] = e
		items = append(items, embedding.BatchItem{ID: id, Text: e.Question, Category: e.Category})
	}

	result, err := embedding.EmbedBatch(ctx, embedder, items, opts, logger)
	report.Embedded = len(result.Embedded)
	report.Failed = result.Failed
	if err != nil {
		return report, fmt.Errorf("batch embedding aborted: %w", err)
	}
	if result.Errors != nil {
		logger.Warn("some FAQ entries were not embedded", zap.Error(result.Errors))
	}

	docs := make([]rag.Document, 0, len(result.Embedded))
	for _, em := range result.Embedded {
		e := byID[em.Item.ID]
		docs = append(docs, rag.Document{
			Question:  e.Question,
			Answer:    e.Answer,
			Category:  e.Category,
			Tags:      e.Tags,
			Priority:  e.Priority,
			Embedding: em.Vector,
		})
	}

	if dryRun || len(docs) == 0 {
		logger.Info("seed finished without inserting", zap.Bool("dry_run", dryRun), zap.Int("documents", len(docs)))
		return report, nil
	}

	n, err := store.InsertMany(ctx, docs)
	report.Inserted = n
	if err != nil {
		return report, fmt.Errorf("insert FAQ documents: %w", err)
	}
	logger.Info("FAQ documents inserted", zap.Int("count", n))
	return report, nil
}
