// Command anomaly runs an anomaly model over image files, writes heatmap overlays and
// optionally persists the scores.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-anomaly/config"
	"github.com/nvr-ai/go-anomaly/inference"
	"github.com/nvr-ai/go-anomaly/logger"
	"github.com/nvr-ai/go-anomaly/models"
	"github.com/nvr-ai/go-anomaly/profiler"
	"github.com/nvr-ai/go-anomaly/results"
	"github.com/nvr-ai/go-anomaly/store"
	"github.com/nvr-ai/go-anomaly/util"
	"github.com/nvr-ai/go-anomaly/viz"
	"github.com/nvr-ai/go-anomaly/viz/cvcolormap"
	"github.com/nvr-ai/go-anomaly/viz/style"
)

// maxTimingSamples bounds the rolling timing window.
const maxTimingSamples = 1000

type options struct {
	configPath string
	input      string
	output     string
	printYAML  bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to the YAML configuration file")
	flag.StringVar(&opts.input, "input", "", "Image file or directory of images")
	flag.StringVar(&opts.output, "output", "", "Directory for PNG heatmap overlays (empty disables rendering)")
	flag.BoolVar(&opts.printYAML, "print-yaml", false, "Print results as YAML to stdout")
	flag.Parse()

	if opts.input == "" {
		fmt.Fprintln(os.Stderr, "-input is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, log); err != nil {
		log.Error("run failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.AppConfig, opts options, log *zap.Logger) error {
	mc, err := cfg.ModelConfig()
	if err != nil {
		return err
	}
	drawCtx, err := drawContext(cfg.Render)
	if err != nil {
		return err
	}

	files, err := util.LoadImageFiles(opts.input)
	if err != nil {
		return err
	}

	engine, err := inference.NewONNXEngine(cfg.Model.ONNX())
	if err != nil {
		return err
	}
	m, err := models.New(mc, engine, log)
	if err != nil {
		_ = engine.Close()
		return err
	}
	defer func() { _ = m.Close() }()

	var st *store.RedisStore
	if cfg.Store.Enabled {
		st = store.NewRedisStore(cfg.Store.Config)
		defer func() { _ = st.Close() }()
		if err := st.Ping(ctx); err != nil {
			return errors.Wrap(err, "store")
		}
	}

	if opts.output != "" {
		if err := os.MkdirAll(opts.output, 0o755); err != nil {
			return errors.Wrapf(err, "create %s", opts.output)
		}
	}

	timings := profiler.New(maxTimingSamples)
	log.Info("processing",
		zap.Stringer("model", m),
		zap.Int("files", len(files)),
		zap.String("trace_id", timings.ID.String()),
	)

	batch := m.BatchSize()
	for start := 0; start < len(files); start += batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+batch, len(files))
		chunk := files[start:end]

		imgs := make([]image.Image, len(chunk))
		for i := range chunk {
			if imgs[i], err = chunk[i].Image.Decode(); err != nil {
				return errors.Wrapf(err, "decode %s", chunk[i].Path)
			}
		}

		res, err := m.Forward(ctx, imgs, timings)
		if err != nil {
			return err
		}

		for i, r := range res {
			f := chunk[i]
			log.Info("result", zap.String("file", f.Path), zap.Stringer("result", r))

			if opts.output != "" {
				done := timings.Track("render")
				err := render(drawCtx, imgs[i], r, filepath.Join(opts.output, f.Key()+".png"))
				done()
				if err != nil {
					return err
				}
			}
			if st != nil {
				if err := st.Put(ctx, f.Key(), []results.Result{r}); err != nil {
					return err
				}
			}
			if opts.printYAML {
				if err := printYAML(f.Path, r); err != nil {
					return err
				}
			}
		}
	}

	log.Info("timings\n" + timings.Summary())
	return nil
}

// drawContext builds the global heatmap and mask styles from the render configuration.
func drawContext(rc config.RenderConfig) (style.DrawContext, error) {
	cmap, err := viz.Colormap(rc.Colormap)
	if errors.Is(err, viz.ErrUnknownColormap) {
		cmap, err = cvcolormap.Lookup(rc.Colormap)
	}
	if err != nil {
		return style.DrawContext{}, err
	}

	heat := style.Style{Colormap: cmap}
	if rc.FillAlpha >= 0 {
		heat = heat.WithFillAlpha(uint8(rc.FillAlpha))
	}
	mask := style.Style{}
	if rc.MaskAlpha >= 0 {
		mask = mask.WithFillAlpha(uint8(rc.MaskAlpha))
	}
	return style.DrawContext{HeatmapStyle: &heat, MaskStyle: &mask}, nil
}

func render(ctx style.DrawContext, img image.Image, r results.Result, path string) error {
	canvas := viz.CanvasFrom(img)
	if err := viz.DrawHeatmaps(ctx, r.Heatmaps, canvas); err != nil {
		return err
	}
	if err := viz.DrawMasks(ctx, r.Masks, canvas); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()
	if err := png.Encode(f, canvas.Image()); err != nil {
		return errors.Wrapf(err, "encode %s", path)
	}
	return nil
}

func printYAML(path string, r results.Result) error {
	out, err := yaml.Marshal(map[string]results.Result{path: r})
	if err != nil {
		return errors.Wrap(err, "yaml")
	}
	_, err = os.Stdout.Write(out)
	return err
}
