// Command menuboard administers a menu tree: it loads menus from a file or
// the remote backend, prints the tree, exports the stored snapshot and
// uploads product pictograms.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"menuboard/internal/blob"
	"menuboard/internal/config"
	"menuboard/internal/core"
	"menuboard/internal/remote"
	"menuboard/internal/toast"
	"menuboard/pkg/domain"
)

var exitFunc = os.Exit

const usage = `usage: menuboard [-env FILE] <command> [flags]

commands:
  tree       print the menu tree (-file menu.json or -api URL)
  sync       refresh the stored menu from the remote backend
  export     print the stored snapshot as JSON
  pictogram  upload a product pictogram (-product ID -file PATH)
`

func main() {
	code := cli(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("menuboard", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { _, _ = fmt.Fprint(stderr, usage) }
	envFile := fs.String("env", ".env", "dotenv file loaded before reading MENUBOARD_* variables")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	app := &app{
		cfg:       cfg,
		stdout:    stdout,
		logger:    slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.Log.Level})),
		openStore: core.OpenPersistentStore,
	}

	command, rest := fs.Arg(0), fs.Args()[1:]
	var run func(context.Context, []string) error
	switch command {
	case "tree":
		run = app.tree
	case "sync":
		run = app.sync
	case "export":
		run = app.export
	case "pictogram":
		run = app.pictogram
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n", command)
		fs.Usage()
		return 2
	}
	if err := run(ctx, rest); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		app.logger.Error("command failed", "command", command, "error", err)
		return 1
	}
	return 0
}

type app struct {
	cfg       *config.Config
	stdout    io.Writer
	logger    *slog.Logger
	registry  *prometheus.Registry
	openStore func(context.Context, *core.RulesEngine) (core.PersistentStore, error)
}

// openService opens the configured store and wraps it in a service. The
// returned close func releases both.
func (a *app) openService(ctx context.Context, extra ...core.ServiceOption) (*core.Service, func(), error) {
	store, err := a.openStore(ctx, core.NewDefaultRulesEngine())
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	opts := []core.ServiceOption{core.WithLogger(a.logger)}
	if a.cfg.Metrics {
		if a.registry == nil {
			a.registry = prometheus.NewRegistry()
		}
		rec, err := core.NewPrometheusMetricsRecorder(a.registry)
		if err != nil {
			a.closeStore(store)
			return nil, nil, err
		}
		opts = append(opts, core.WithMetricsRecorder(rec))
	}
	svc := core.NewService(store, append(opts, extra...)...)
	return svc, func() {
		svc.Close()
		a.closeStore(store)
		a.reportMetrics()
	}, nil
}

func (a *app) closeStore(store core.PersistentStore) {
	closer, ok := store.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		a.logger.Warn("close store", "error", err)
	}
}

func (a *app) reportMetrics() {
	if a.registry == nil {
		return
	}
	families, err := a.registry.Gather()
	if err != nil {
		a.logger.Warn("gather metrics", "error", err)
		return
	}
	for _, family := range families {
		a.logger.Info("metric", "name", family.GetName(), "series", len(family.GetMetric()))
	}
}

func (a *app) coordinator(svc *core.Service, board *toast.Board, baseURL string) (*core.Coordinator, error) {
	if baseURL == "" {
		baseURL = a.cfg.Remote.BaseURL
	}
	client, err := remote.New(baseURL,
		remote.WithToken(a.cfg.Remote.Token),
		remote.WithClientUID(a.cfg.Remote.ClientUID),
		remote.WithTimeout(a.cfg.Remote.Timeout),
	)
	if err != nil {
		return nil, err
	}
	return core.NewCoordinator(svc, client, board,
		core.WithFailurePolicy(a.cfg.Sync.FailurePolicy),
		core.WithSyncLogger(a.logger),
	), nil
}

// refresh fetches the remote menu while logging toast notifications.
func (a *app) refresh(ctx context.Context, svc *core.Service, baseURL string) (domain.Menu, error) {
	board := toast.NewBoard(toast.WithDismissDelay(a.cfg.Sync.DismissDelay), toast.WithLogger(a.logger))
	defer board.Close()
	coord, err := a.coordinator(svc, board, baseURL)
	if err != nil {
		return domain.Menu{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	notes, err := board.Subscribe(ctx, nil)
	if err != nil {
		return domain.Menu{}, err
	}
	var menu domain.Menu
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for note := range notes {
			if note.Payload.Dismissed {
				continue
			}
			a.logger.Info(note.Payload.Toast.Message, "toast", note.Payload.Toast.Key, "type", string(note.Topic))
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		var err error
		menu, err = coord.Refresh(gctx)
		return err
	})
	return menu, g.Wait()
}

func (a *app) tree(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tree", flag.ContinueOnError)
	file := fs.String("file", "", "menu JSON file to load before printing")
	api := fs.String("api", "", "remote backend to load from")
	if err := fs.Parse(args); err != nil {
		return err
	}
	svc, closeFn, err := a.openService(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	switch {
	case *file != "":
		menu, err := readMenu(*file)
		if err != nil {
			return err
		}
		if _, err := svc.Load(ctx, menu); err != nil {
			return err
		}
	case *api != "":
		if _, err := a.refresh(ctx, svc, *api); err != nil {
			return err
		}
	}
	nodes, err := svc.Selectors().Tree(ctx, core.RootKey)
	if err != nil {
		return err
	}
	return printTree(a.stdout, nodes)
}

func (a *app) sync(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	api := fs.String("api", "", "remote backend (defaults to "+config.EnvAPIURL+")")
	if err := fs.Parse(args); err != nil {
		return err
	}
	svc, closeFn, err := a.openService(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	menu, err := a.refresh(ctx, svc, *api)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.stdout, "synced %d categories, %d products\n", len(menu.Categories), len(menu.Products))
	return err
}

type snapshotExporter interface {
	ExportState() core.MemorySnapshot
}

func (a *app) export(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	compact := fs.Bool("compact", false, "emit single-line JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	svc, closeFn, err := a.openService(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	exporter, ok := svc.Store().(snapshotExporter)
	if !ok {
		return fmt.Errorf("store %T cannot export snapshots", svc.Store())
	}
	enc := json.NewEncoder(a.stdout)
	if !*compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(exporter.ExportState())
}

func (a *app) pictogram(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pictogram", flag.ContinueOnError)
	productID := fs.Int("product", 0, "product id")
	file := fs.String("file", "", "image file")
	contentType := fs.String("type", "", "content type (derived from the file extension when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *productID <= 0 || *file == "" {
		return errors.New("pictogram requires -product and -file")
	}
	if *contentType == "" {
		*contentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(*file)))
	}

	blobs, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	svc, closeFn, err := a.openService(ctx, core.WithBlobStore(blobs))
	if err != nil {
		return err
	}
	defer closeFn()

	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()
	product, _, err := svc.UploadPictogram(ctx, *productID, f, *contentType)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.stdout, *product.PictogramURL)
	return err
}

func readMenu(path string) (domain.Menu, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Menu{}, err
	}
	var menu domain.Menu
	if err := json.Unmarshal(raw, &menu); err != nil {
		return domain.Menu{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return menu, nil
}

func printTree(w io.Writer, nodes []core.TreeNode) error {
	for _, node := range nodes {
		if _, err := fmt.Fprintln(w, formatNode(node)); err != nil {
			return err
		}
		if err := printTree(w, node.Children); err != nil {
			return err
		}
	}
	return nil
}

func formatNode(node core.TreeNode) string {
	var b strings.Builder
	b.WriteString(strings.Repeat("  ", node.Depth))
	enabled := true
	switch node.Entity.Type {
	case domain.EntityCategory:
		c := node.Entity.Category
		enabled = c.Enabled
		fmt.Fprintf(&b, "+ %s [category %d, order %d]", c.Description, c.CategoryID, c.Order)
		if node.LikeCount > 0 {
			fmt.Fprintf(&b, " likes=%d", node.LikeCount)
		}
	case domain.EntityProduct:
		p := node.Entity.Product
		enabled = p.Enabled
		fmt.Fprintf(&b, "- %s [product %d, order %d]", p.Label, p.ProductID, p.Order)
		if node.Liked {
			b.WriteString(" liked")
		}
	}
	if !enabled {
		b.WriteString(" (disabled)")
	}
	if node.Selected {
		b.WriteString(" *")
	}
	return b.String()
}
