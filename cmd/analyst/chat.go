package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/insightlab/analyst/config"
	analystpkg "github.com/insightlab/analyst/internal/analyst"
	"github.com/insightlab/analyst/internal/chart"
	"github.com/insightlab/analyst/internal/retrieval"
	"github.com/insightlab/analyst/internal/store"
	"github.com/insightlab/analyst/models"
	"github.com/insightlab/analyst/news/newsapi"
	"github.com/insightlab/analyst/provider"
)

func chatCMD() *cobra.Command {
	var cfgPath string
	var cmd = &cobra.Command{
		Use:   "chat",
		Short: "Interactive analysis session against the ingested corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			return runChat(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return cmd
}

func runChat(ctx context.Context, cfg *config.Config) error {
	dsn, err := cfg.Databases.Postgres.DSN()
	if err != nil {
		return err
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}
	llm, err := provider.NewProvider(provider.OpenAI, cfg.Providers.OpenAI)
	if err != nil {
		return err
	}

	var index *retrieval.Index
	if cfg.Retrieval.HybridBM25 {
		index, err = retrieval.NewIndex()
		if err != nil {
			return err
		}
		chunks, err := st.ListChunks(ctx)
		if err != nil {
			return err
		}
		if err := index.IndexChunks(chunks); err != nil {
			return err
		}
	}

	retriever := &retrieval.Retriever{Store: st, Embedder: llm, Index: index, TopK: cfg.Retrieval.TopK}
	news := newsapi.NewsAPI{APIKey: cfg.NewsAPI.APIKey, Endpoint: cfg.NewsAPI.Endpoint, PageSize: cfg.NewsAPI.PageSize}
	an := analystpkg.New(retriever, llm, news, cfg.Retrieval.TopK)
	charts := chart.Renderer{OutputDir: cfg.Charts.OutputDir}

	boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Println(boldGreen("Document Analysis Assistant"))
	fmt.Println("Commands:")
	fmt.Println("  swot <topic>")
	fmt.Println("  compare <topic> | <older origin> | <newer origin>")
	fmt.Println("  memo <topic>")
	fmt.Println("  context <company> | <competitor,...> | <industry>")
	fmt.Println("  chart <topic> | <data point,...>")
	fmt.Println("  sources")
	fmt.Println("Anything else is answered as a question. Type 'exit' to quit.")
	fmt.Println()

	var history []models.Message
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(boldGreen("You: "))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			break
		}

		cmdName, rest := splitCommand(line)
		switch cmdName {
		case "swot":
			report, err := an.SWOT(ctx, rest)
			printResult(report, err, red)
		case "compare":
			parts := splitPipe(rest, 3)
			if parts == nil {
				fmt.Println(yellow("usage: compare <topic> | <older origin> | <newer origin>"))
				continue
			}
			report, err := an.NarrativeEvolution(ctx, parts[0], parts[1], parts[2])
			printResult(report, err, red)
		case "memo":
			report, err := an.InvestmentMemo(ctx, rest)
			printResult(report, err, red)
		case "context":
			parts := splitPipe(rest, 3)
			if parts == nil {
				fmt.Println(yellow("usage: context <company> | <competitor,...> | <industry>"))
				continue
			}
			report, err := an.MarketContext(ctx, parts[0], splitList(parts[1]), parts[2])
			printResult(report, err, red)
		case "chart":
			parts := splitPipe(rest, 2)
			if parts == nil {
				fmt.Println(yellow("usage: chart <topic> | <data point,...>"))
				continue
			}
			series, sources, err := an.ExtractSeries(ctx, parts[0], splitList(parts[1]))
			if err != nil {
				fmt.Println(red("error: " + err.Error()))
				continue
			}
			file, err := charts.Render(parts[0], series)
			if err != nil {
				fmt.Println(red("error: " + err.Error()))
				continue
			}
			fmt.Printf("%s %s (sources: %s)\n", boldCyan("chart saved:"), file, strings.Join(sources, ", "))
		case "sources":
			srcs, err := st.ListSources(ctx)
			if err != nil {
				fmt.Println(red("error: " + err.Error()))
				continue
			}
			for _, src := range srcs {
				fmt.Printf("  [%s] %s (%d chunks)\n", src.Status, src.Origin, src.ChunkCount)
			}
		default:
			ans, err := an.Ask(ctx, line, history)
			if err != nil {
				fmt.Println(red("error: " + err.Error()))
				continue
			}
			now := time.Now()
			history = append(history,
				models.Message{Role: "user", Content: line, At: now},
				models.Message{Role: "assistant", Content: ans.Answer, At: now},
			)
			fmt.Printf("%s %s\n", boldCyan("Assistant:"), ans.Answer)
			if len(ans.Sources) > 0 {
				fmt.Printf("%s %s\n", yellow("sources:"), strings.Join(ans.Sources, ", "))
			}
		}
		fmt.Println()
	}
	return scanner.Err()
}

func splitCommand(line string) (string, string) {
	parts := strings.SplitN(line, " ", 2)
	name := strings.ToLower(parts[0])
	switch name {
	case "swot", "compare", "memo", "context", "chart", "sources":
		rest := ""
		if len(parts) == 2 {
			rest = strings.TrimSpace(parts[1])
		}
		return name, rest
	}
	return "", line
}

func splitPipe(s string, n int) []string {
	parts := strings.Split(s, "|")
	if len(parts) != n {
		return nil
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func printResult(v interface{}, err error, red func(a ...interface{}) string) {
	if err != nil {
		fmt.Println(red("error: " + err.Error()))
		return
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}
