// Command vcmtracer renders a glTF scene to a PNG with either the VCM or
// the unidirectional path-tracing integrator.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oxbowlabs/vcmtracer/pkg/bsdf"
	"github.com/oxbowlabs/vcmtracer/pkg/config"
	"github.com/oxbowlabs/vcmtracer/pkg/pathtrace"
	"github.com/oxbowlabs/vcmtracer/pkg/render"
	"github.com/oxbowlabs/vcmtracer/pkg/scene"
	"github.com/oxbowlabs/vcmtracer/pkg/scene/gltfload"
	"github.com/oxbowlabs/vcmtracer/pkg/vcm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vcmtracer",
		Short:         "Offline Monte-Carlo path tracer with VCM and PT integrators",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRenderCmd())
	return root
}

type renderFlags struct {
	scenePath  string
	integrator string
	workers    int
	outPath    string
	configPath string
	width      int
	height     int
	verbose    bool
}

func newRenderCmd() *cobra.Command {
	var flags renderFlags
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a glTF scene to a PNG image",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd.Context(), flags)
		},
	}
	cmd.Flags().StringVar(&flags.scenePath, "scene", "", "glTF scene path (required)")
	cmd.Flags().StringVar(&flags.integrator, "integrator", "vcm", "integrator: vcm or pt")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "worker count override (0 = from config)")
	cmd.Flags().StringVar(&flags.outPath, "out", "render.png", "output PNG path")
	cmd.Flags().StringVar(&flags.configPath, "config", "", "optional YAML config overlay")
	cmd.Flags().IntVar(&flags.width, "width", 512, "image width")
	cmd.Flags().IntVar(&flags.height, "height", 512, "image height")
	cmd.Flags().BoolVar(&flags.verbose, "verbose", false, "debug logging")
	_ = cmd.MarkFlagRequired("scene")
	return cmd
}

func runRender(ctx context.Context, flags renderFlags) error {
	log, err := newLogger(flags.verbose)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck // best-effort flush on stderr

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	workers := cfg.WorkerCount()
	if flags.workers > 0 {
		workers = flags.workers
	}

	opts := gltfload.DefaultOptions()
	opts.ImageWidth = flags.width
	opts.ImageHeight = flags.height
	sc, err := gltfload.Load(flags.scenePath, opts)
	if err != nil {
		return err
	}
	log.Infow("scene loaded",
		"path", flags.scenePath,
		"triangles", sc.Tables.TriangleCount(),
		"materials", len(sc.Tables.Materials))

	driver := render.Driver{
		Width:              flags.width,
		Height:             flags.height,
		Workers:            workers,
		IntegrationSeconds: cfg.IntegrationSeconds,
		Log:                log,
	}

	switch flags.integrator {
	case "vcm":
		driver.NewKernel = func() render.Kernel {
			return &vcm.Kernel{
				Tables:        sc.Tables,
				Intersect:     sc.Intersector,
				Camera:        sc.Camera,
				Sky:           sc.IBL,
				Tex:           scene.DefaultTextureFilter{},
				BSDF:          bsdf.TaggedUnion{},
				MaxPathLength: cfg.MaxBounceCount,
				RadiusFactor:  cfg.VcmRadiusFactor,
				RadiusAlpha:   cfg.VcmRadiusAlpha,
			}
		}
	case "pt":
		driver.MaxPasses = uint64(cfg.RaysPerPixel)
		driver.NewKernel = func() render.Kernel {
			return &pathtrace.Kernel{
				Tables:         sc.Tables,
				Intersect:      sc.Intersector,
				Camera:         sc.Camera,
				Sky:            sc.IBL,
				Tex:            scene.DefaultTextureFilter{},
				BSDF:           bsdf.TaggedUnion{},
				MaxBounceCount: cfg.MaxBounceCount,
			}
		}
	default:
		return fmt.Errorf("unknown integrator %q (want vcm or pt)", flags.integrator)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	img, stats, err := driver.Render(ctx)
	if err != nil {
		return err
	}
	log.Infow("writing image", "path", flags.outPath, "pathsPerPixel", stats.PathsPerPixel)

	f, err := os.Create(flags.outPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return img.EncodePNG(f)
}

func newLogger(verbose bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
