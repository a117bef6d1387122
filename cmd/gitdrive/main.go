// Command gitdrive stores files as chunks spread across size-capped git
// repositories on GitHub, with the authoritative file index kept in a
// dedicated metadata repository.
//
// Usage:
//
//	gitdrive [flags] upload <remote-name> <local-path>
//	gitdrive [flags] download <remote-name> <local-path>
//	gitdrive [flags] ls
//	gitdrive [flags] init
//	gitdrive [flags] clean
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gitdrive/gitdrive/internal/logger"
	"github.com/gitdrive/gitdrive/pkg/config"
	"github.com/gitdrive/gitdrive/pkg/drive"
	"github.com/gitdrive/gitdrive/pkg/githost/github"
	"github.com/gitdrive/gitdrive/pkg/metadata"
	"github.com/gitdrive/gitdrive/pkg/metadata/gitrepo"
	"github.com/gitdrive/gitdrive/pkg/transfer"
)

// Exit codes mirror the error taxonomy so scripts can branch on outcomes.
const (
	exitOK          = 0
	exitOther       = 1
	exitNotFound    = 2
	exitExists      = 3
	exitTransfer    = 4
	exitUnavailable = 5
)

// driveOps is the drive surface the command dispatcher needs.
type driveOps interface {
	Upload(ctx context.Context, path, name string) error
	Download(ctx context.Context, name, dest string) error
	List(ctx context.Context) ([]drive.Entry, error)
	Initialize(ctx context.Context) error
	Clean(ctx context.Context) error
}

func main() {
	configPath := flag.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	logLevel := flag.String("log-level", "", "Override log level (DEBUG, INFO, WARN, ERROR)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(exitOther)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gitdrive: %v\n", err)
		os.Exit(exitOther)
	}

	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	logger.SetLevel(cfg.Logging.Level)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		fmt.Fprintf(os.Stderr, "gitdrive: %v\n", err)
		os.Exit(exitOther)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := openDrive(cfg)
	if err != nil {
		os.Exit(fail(err))
	}

	code := run(ctx, d, flag.Args())
	d.Close()
	os.Exit(code)
}

// run dispatches one command. The remote name comes first for both upload and
// download; the local path second.
func run(ctx context.Context, d driveOps, args []string) int {
	cmd, rest := args[0], args[1:]

	var err error
	switch cmd {
	case "upload":
		if len(rest) != 2 {
			fmt.Fprintln(os.Stderr, "usage: gitdrive upload <remote-name> <local-path>")
			return exitOther
		}
		err = d.Upload(ctx, rest[1], rest[0])

	case "download":
		if len(rest) != 2 {
			fmt.Fprintln(os.Stderr, "usage: gitdrive download <remote-name> <local-path>")
			return exitOther
		}
		err = d.Download(ctx, rest[0], rest[1])

	case "ls":
		var entries []drive.Entry
		entries, err = d.List(ctx)
		if err == nil {
			printEntries(entries)
		}

	case "init":
		err = d.Initialize(ctx)

	case "clean":
		err = d.Clean(ctx)

	default:
		fmt.Fprintf(os.Stderr, "gitdrive: unknown command %q\n", cmd)
		usage()
		return exitOther
	}

	if err != nil {
		return fail(err)
	}
	return exitOK
}

// openDrive wires the GitHub backend, the git-backed metadata store and the
// transfer engine into a Drive.
func openDrive(cfg *config.Config) (*drive.Drive, error) {
	token, err := cfg.GitHub.ResolveToken()
	if err != nil {
		return nil, err
	}

	host := github.New(github.Config{
		Owner:          cfg.GitHub.Owner,
		Token:          token,
		CommitterName:  cfg.GitHub.CommitterName,
		CommitterEmail: cfg.GitHub.CommitterEmail,
	})

	store := gitrepo.New(host, cfg.Drive.MetadataRepo, cfg.Drive.WorkDir)

	engine := transfer.New(transfer.Policy{
		MaxAttempts:       cfg.Transfer.MaxAttempts,
		InitialInterval:   cfg.Transfer.InitialInterval,
		Multiplier:        cfg.Transfer.Multiplier,
		MaxInterval:       cfg.Transfer.MaxInterval,
		RateLimitWait:     cfg.Transfer.RateLimitWait,
		RequestsPerSecond: cfg.Transfer.RequestsPerSecond,
		Burst:             cfg.Transfer.Burst,
		Workers:           cfg.Transfer.Workers,
	})

	return drive.New(host, store, engine, drive.Options{
		MetadataRepo: cfg.Drive.MetadataRepo,
		ChunkSize:    cfg.Drive.ChunkSize,
		RepoCeiling:  cfg.Drive.MaxRepoSize,
		WorkDir:      cfg.Drive.WorkDir,
	})
}

func printEntries(entries []drive.Entry) {
	for _, e := range entries {
		fmt.Printf("%-40s %10s  %d chunks  %s\n", e.Name, e.SizeHuman, e.Chunks, e.Checksum)
	}
}

// fail logs the error and maps it onto the taxonomy's exit code.
func fail(err error) int {
	logger.Error("%v", err)

	switch {
	case errors.Is(err, metadata.ErrNotFound):
		return exitNotFound
	case errors.Is(err, metadata.ErrAlreadyExists):
		return exitExists
	case errors.Is(err, metadata.ErrUnavailable),
		errors.Is(err, metadata.ErrCorruptSnapshot),
		errors.Is(err, metadata.ErrIncompatibleVersion):
		return exitUnavailable
	case errors.Is(err, transfer.ErrBudgetExhausted),
		errors.Is(err, drive.ErrChecksumMismatch):
		return exitTransfer
	default:
		return exitOther
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `gitdrive - chunked file storage across git repositories

Usage:
  gitdrive [flags] <command> [args]

Commands:
  upload <remote-name> <local-path>    store a local file under a drive name
  download <remote-name> <local-path>  retrieve a stored file
  ls                                   list stored files
  init                                 create the metadata repository
  clean                                delete all storage repositories and reset

Flags:
`)
	flag.PrintDefaults()
}
