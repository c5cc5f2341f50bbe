package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Avaneeshakrishna/cliniccall-AI/cmd/mainconfig"
	"github.com/Avaneeshakrishna/cliniccall-AI/internal/app/bootstrap"
	appconfig "github.com/Avaneeshakrishna/cliniccall-AI/internal/config"
	"github.com/Avaneeshakrishna/cliniccall-AI/pkg/logging"
)

var samples = []string{
	"I need to see a cardiologist about my heart",
	"Can I move my appointment to next week?",
	"Please cancel my visit",
	"I have sudden chest pain and shortness of breath",
	"What are your opening hours?",
	"My kid has a rash on his arm",
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	classifier, err := bootstrap.BuildClassifier(ctx, cfg, &awsCfg, nil, logger)
	if err != nil {
		log.Fatalf("build classifier: %v", err)
	}

	messages := samples
	if len(os.Args) > 1 {
		messages = []string{strings.Join(os.Args[1:], " ")}
	}

	fmt.Printf("Classifier provider: %s (%T)\n\n", cfg.ClassifierProvider, classifier)
	for _, msg := range messages {
		start := time.Now()
		intent := classifier.Classify(ctx, msg)
		triage := classifier.Triage(ctx, msg)
		fmt.Printf("%q\n", msg)
		fmt.Printf("    intent=%s department=%q reason=%q\n", intent.Intent, intent.Department, intent.Reason)
		fmt.Printf("    severity=%s escalate=%v (%v)\n\n", triage.Severity, triage.Escalate, time.Since(start).Round(time.Millisecond))
	}
}
