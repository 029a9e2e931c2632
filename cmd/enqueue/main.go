// Command enqueue puts email jobs from a CSV file on the email queue.
//
//	enqueue -jobs jobs.csv
//	enqueue -broadcast fees-2025-q2 -recipients parents.csv -subject "Fees due" -html body.html
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"PulseQueue/internal/awscfg"
	"PulseQueue/internal/config"
	"PulseQueue/internal/csvparser"
	"PulseQueue/internal/models"
	"PulseQueue/internal/producer"
	"PulseQueue/internal/queue"
)

type options struct {
	jobsPath       string
	broadcastID    string
	recipientsPath string
	from           string
	subject        string
	htmlPath       string
	textPath       string
	replyTo        string
}

func main() {
	var opts options
	flag.StringVar(&opts.jobsPath, "jobs", "", "CSV of jobs, one row per email")
	flag.StringVar(&opts.broadcastID, "broadcast", "", "broadcast id; requires -recipients, -subject and -html")
	flag.StringVar(&opts.recipientsPath, "recipients", "", "CSV with an email column")
	flag.StringVar(&opts.from, "from", "", "sender address (defaults to the consumer's)")
	flag.StringVar(&opts.subject, "subject", "", "broadcast subject")
	flag.StringVar(&opts.htmlPath, "html", "", "file holding the broadcast HTML body")
	flag.StringVar(&opts.textPath, "text", "", "file holding the broadcast plaintext body")
	flag.StringVar(&opts.replyTo, "reply-to", "", "broadcast reply-to address")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(opts, logger); err != nil {
		logger.Error("enqueue failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(opts options, logger *zap.Logger) error {
	if (opts.jobsPath == "") == (opts.broadcastID == "") {
		return errors.New("exactly one of -jobs or -broadcast is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsClients, err := awscfg.Load(ctx, cfg.AWSRegion, cfg.AWSEndpoint)
	if err != nil {
		return err
	}
	p := producer.New(queue.NewSQS(awsClients.SQS(), cfg.QueueURL, queue.ReceiveOptions{}), logger, cfg.EnqueueConcurrency)

	var result any
	if opts.jobsPath != "" {
		jobs, err := csvparser.Parse(opts.jobsPath)
		if err != nil {
			return fmt.Errorf("parse %s: %w", opts.jobsPath, err)
		}
		result, err = p.EnqueueEmailJobs(ctx, jobs)
		if err != nil {
			return err
		}
	} else {
		b, err := broadcastFrom(opts)
		if err != nil {
			return err
		}
		result, err = p.BroadcastEmail(ctx, b)
		if err != nil {
			return err
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func broadcastFrom(opts options) (models.BroadcastEmail, error) {
	if opts.recipientsPath == "" || opts.htmlPath == "" {
		return models.BroadcastEmail{}, errors.New("-broadcast requires -recipients and -html")
	}

	f, err := os.Open(opts.recipientsPath)
	if err != nil {
		return models.BroadcastEmail{}, err
	}
	defer f.Close()

	recipients, err := csvparser.ParseRecipients(f, 0)
	if err != nil {
		return models.BroadcastEmail{}, fmt.Errorf("parse %s: %w", opts.recipientsPath, err)
	}

	html, err := os.ReadFile(opts.htmlPath)
	if err != nil {
		return models.BroadcastEmail{}, err
	}
	var text []byte
	if opts.textPath != "" {
		if text, err = os.ReadFile(opts.textPath); err != nil {
			return models.BroadcastEmail{}, err
		}
	}

	return models.BroadcastEmail{
		BroadcastID: opts.broadcastID,
		Recipients:  recipients,
		From:        opts.from,
		Subject:     opts.subject,
		HTML:        string(html),
		Text:        string(text),
		ReplyTo:     opts.replyTo,
	}, nil
}
