package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/cavaliergopher/grab/v3"
	"github.com/sirrobot01/zipfetch/internal/config"
	"github.com/sirrobot01/zipfetch/internal/logger"
	"github.com/sirrobot01/zipfetch/internal/request"
	"github.com/sirrobot01/zipfetch/pkg/server"
	"github.com/sirrobot01/zipfetch/pkg/web"
	"github.com/sirrobot01/zipfetch/pkg/zip"
	"golang.org/x/sync/errgroup"
)

const usageText = `Usage: zipfetch <command> [flags] [args]

Commands:
  ls <url>               list entries in a remote archive
  cat <url> <entry>      write one entry's contents to stdout
  headers <url> [entry]  print entry metadata as JSON
  save <url> <dir>       extract all entries into a directory
  fetch <url> <file>     download the whole archive to a file
  serve                  run the archive API server
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "ls":
		err = runList(ctx, args)
	case "cat":
		err = runCat(ctx, args)
	case "headers":
		err = runHeaders(ctx, args)
	case "save":
		err = runSave(ctx, args)
	case "fetch":
		err = runFetch(ctx, args)
	case "serve":
		err = runServe(ctx, args)
	default:
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// clientFromConfig builds the HTTP client used for archive fetches, applying
// the configured rate limit, proxy and retry policy.
func clientFromConfig() *request.Client {
	cfg := config.Get()
	opts := []request.Option{
		request.WithMaxRetries(cfg.MaxRetries),
		request.WithRetryableStatus(http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable),
	}
	if cfg.TimeoutSeconds > 0 {
		opts = append(opts, request.WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second))
	}
	if cfg.Proxy != "" {
		opts = append(opts, request.WithProxy(cfg.Proxy))
	}
	if limiter, err := request.ParseRateLimit(cfg.FetchRateLimit); err == nil && limiter != nil {
		opts = append(opts, request.WithRateLimiter(limiter))
	}
	return request.New(opts...)
}

func openArchive(ctx context.Context, url string) (*zip.Archive, error) {
	opts := []zip.Option{zip.WithClient(clientFromConfig())}
	if !config.Get().ChecksumVerification() {
		opts = append(opts, zip.WithoutChecksum())
	}
	return zip.Open(ctx, url, opts...)
}

func runList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "output listing as JSON")
	configPath := fs.String("config", "", "path to the config folder")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: zipfetch ls [-json] <url>")
	}
	config.SetConfigPath(*configPath)

	archive, err := openArchive(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	if *asJSON {
		data, err := json.MarshalIndent(archive.Entries(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	for _, entry := range archive.Entries() {
		fmt.Println(entry.Name)
	}
	return nil
}

func runCat(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("cat", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the config folder")
	_ = fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: zipfetch cat <url> <entry>")
	}
	config.SetConfigPath(*configPath)

	archive, err := openArchive(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	data, err := archive.ReadFile(ctx, fs.Arg(1))
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runHeaders(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("headers", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the config folder")
	_ = fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: zipfetch headers <url> [entry...]")
	}
	config.SetConfigPath(*configPath)

	archive, err := openArchive(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	entries := archive.Entries()
	if fs.NArg() > 1 {
		entries = entries[:0:0]
		for _, name := range fs.Args()[1:] {
			entry, ok := archive.Entry(name)
			if !ok {
				return fmt.Errorf("%w: %s", zip.ErrFileNotFound, name)
			}
			entries = append(entries, entry)
		}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runSave(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("save", flag.ExitOnError)
	workers := fs.Int("workers", 4, "number of concurrent entry reads")
	configPath := fs.String("config", "", "path to the config folder")
	_ = fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: zipfetch save [-workers n] <url> <dir>")
	}
	config.SetConfigPath(*configPath)
	dest := fs.Arg(1)

	archive, err := openArchive(ctx, fs.Arg(0))
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(*workers)
	for _, entry := range archive.Entries() {
		entry := entry
		if strings.HasSuffix(entry.Name, "/") {
			continue
		}
		g.Go(func() error {
			target, err := safeJoin(dest, entry.Name)
			if err != nil {
				return err
			}
			data, err := archive.ReadFile(ctx, entry.Name)
			if err != nil {
				return fmt.Errorf("%s: %w", entry.Name, err)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			return os.WriteFile(target, data, 0644)
		})
	}
	return g.Wait()
}

// safeJoin keeps extracted entries inside the destination directory.
func safeJoin(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(name))
	cleaned, err := filepath.Abs(target)
	if err != nil {
		return "", err
	}
	root, err := filepath.Abs(dest)
	if err != nil {
		return "", err
	}
	if cleaned != root && !strings.HasPrefix(cleaned, root+string(filepath.Separator)) {
		return "", fmt.Errorf("entry escapes destination: %s", name)
	}
	return cleaned, nil
}

// runFetch downloads the entire archive. This is the fallback for servers
// that do not support range requests.
func runFetch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the config folder")
	_ = fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: zipfetch fetch <url> <file>")
	}
	config.SetConfigPath(*configPath)

	client := &grab.Client{
		UserAgent: "zipfetch",
		HTTPClient: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
			},
		},
	}
	req, err := grab.NewRequest(fs.Arg(1), fs.Arg(0))
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	resp := client.Do(req)

	t := time.NewTicker(2 * time.Second)
	defer t.Stop()
Loop:
	for {
		select {
		case <-t.C:
			fmt.Fprintf(os.Stderr, "%d / %d bytes (%.1f%%)\n",
				resp.BytesComplete(), resp.Size(), 100*resp.Progress())
		case <-resp.Done:
			break Loop
		}
	}
	if err := resp.Err(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Saved %s\n", resp.Filename)
	return nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "/data", "path to the config folder")
	_ = fs.Parse(args)
	config.SetConfigPath(*configPath)

	_log := logger.Default()
	cfg := config.Get()
	_log.Info().Msgf("Log level: %s", cfg.LogLevel)

	handlers := map[string]http.Handler{
		"/api": web.New().Routes(),
	}
	return server.New(handlers).Start(ctx)
}
