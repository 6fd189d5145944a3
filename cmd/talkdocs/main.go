package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"github.com/hmle/talkdocs/internal/models"
	cfgPkg "github.com/hmle/talkdocs/pkg/config"
	"github.com/hmle/talkdocs/pkg/system"
)

type cliFlags struct {
	configPath string
	owner      string
	dbURL      string
	baseURL    string
	streaming  bool
	verbose    bool
}

func main() {
	godotenv.Load()

	flags := parseFlags()

	if err := run(flags, flag.Args()); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() cliFlags {
	var flags cliFlags

	flag.StringVar(&flags.configPath, "config", "", "Path to config file")
	flag.StringVar(&flags.owner, "owner", "local", "Owner id for documents and chat")
	flag.StringVar(&flags.dbURL, "db-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	flag.StringVar(&flags.baseURL, "ollama-url", os.Getenv("OLLAMA_BASE_URL"), "Ollama server URL")
	flag.BoolVar(&flags.streaming, "stream", true, "Stream chat responses")
	flag.BoolVar(&flags.verbose, "verbose", false, "Print engine trace events")
	flag.Parse()

	return flags
}

func run(flags cliFlags, files []string) error {
	cfg, err := cfgPkg.LoadConfig(flags.configPath)
	if err != nil {
		return err
	}
	if flags.dbURL != "" {
		cfg.Database.URL = flags.dbURL
	}
	if flags.baseURL != "" {
		cfg.LLM.BaseURL = flags.baseURL
	}

	trace := func(event string, fields map[string]interface{}) {}
	if flags.verbose {
		trace = func(event string, fields map[string]interface{}) {
			log.Printf("trace event=%s fields=%v", event, fields)
		}
	}

	sys, err := system.FromConfig(cfg, trace)
	if err != nil {
		return err
	}
	defer sys.Close()

	ctx := context.Background()

	if err := sys.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore index registry: %w", err)
	}

	if len(files) > 0 {
		if err := ingestFiles(ctx, sys, flags.owner, files); err != nil {
			return err
		}
	}

	return chatLoop(ctx, sys, flags.owner, flags.streaming)
}

func ingestFiles(ctx context.Context, sys *system.System, owner string, files []string) error {
	bar := getProgressBar(len(files), "Indexing documents")

	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}

		doc, err := sys.Ingest(ctx, owner, filepath.Base(file), raw)
		if err != nil {
			return fmt.Errorf("failed to ingest %s: %w", file, err)
		}

		bar.Add(1)
		if doc.Summary != "" {
			fmt.Printf("\n%s %s\n", color.GreenString("indexed:"), doc.Summary)
		}
	}
	fmt.Println()

	return nil
}

func chatLoop(ctx context.Context, sys *system.System, owner string, streaming bool) error {
	docs, err := sys.Documents(ctx, owner)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		color.Yellow("No documents uploaded; chatting without retrieval.")
	} else {
		color.Blue("Chatting over %d document(s).", len(docs))
	}
	fmt.Println("Type a question, or 'exit' to quit.")

	scanner := bufio.NewScanner(os.Stdin)
	var history []models.ChatMessage

	for {
		fmt.Print(color.CyanString("> "))
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		history = append(history, models.ChatMessage{Role: models.RoleUser, Content: line})

		if streaming {
			stream, err := sys.StreamChat(ctx, owner, history)
			if err != nil {
				color.Red("Error: %v", err)
				history = history[:len(history)-1]
				continue
			}
			var reply strings.Builder
			for fragment := range stream {
				fmt.Print(fragment)
				reply.WriteString(fragment)
			}
			fmt.Println()
			history = append(history, models.ChatMessage{Role: models.RoleAssistant, Content: reply.String()})
		} else {
			reply, err := sys.Chat(ctx, owner, history)
			if err != nil {
				color.Red("Error: %v", err)
				history = history[:len(history)-1]
				continue
			}
			fmt.Println(reply.Content)
			history = append(history, reply)
		}
	}
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("docs"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}
