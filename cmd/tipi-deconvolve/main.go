// Command tipi-deconvolve runs edge-preserving deconvolution on a
// measured image and point-spread function.
//
// Usage:
//
//	tipi-deconvolve [options] -psf <psf.pfm> -data <data.pfm> -out <out.pfm>
//
// Options:
//
//	-mu            Regularization weight (default: 0, no regularization)
//	-eps           Hyperbolic TV edge threshold (default: 0.01)
//	-max-eval      Evaluation budget, 0 for unbounded (default: 0)
//	-save-tipi     Also write a .tipi problem+result file alongside -out
//	-tipi-encoding Sample encoding for -save-tipi: f64, f32, or f16 (default: f32)
//	-monitor-port  Serve a live web dashboard on this port (default: 0, disabled)
//	-console       Show a live terminal dashboard while running
//	-verbose       Print progress to stderr
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tipi/deconv"
	"tipi/internal/pfm"
	"tipi/monitor"
	"tipi/optimize"
	"tipi/pkg/f16"
	"tipi/pkg/imgformat"
	"tipi/pkg/shape"
)

var (
	psfPath      = flag.String("psf", "", "Point-spread function (.pfm)")
	dataPath     = flag.String("data", "", "Measured data (.pfm)")
	outPath      = flag.String("out", "", "Recovered object output (.pfm)")
	mu           = flag.Float64("mu", 0, "Regularization weight")
	eps          = flag.Float64("eps", 0.01, "Hyperbolic TV edge threshold")
	maxEval      = flag.Int("max-eval", 0, "Evaluation budget, 0 for unbounded")
	saveTipi     = flag.Bool("save-tipi", false, "Also write a .tipi problem+result file alongside -out")
	tipiEncoding = flag.String("tipi-encoding", "f32", "Sample encoding for -save-tipi: f64, f32, or f16")
	monitorPort  = flag.Int("monitor-port", 0, "Serve a live web dashboard on this port, 0 to disable")
	console      = flag.Bool("console", false, "Show a live terminal dashboard while running")
	verbose      = flag.Bool("verbose", false, "Print progress to stderr")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] -psf <psf.pfm> -data <data.pfm> -out <out.pfm>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *psfPath == "" || *dataPath == "" || *outPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	psfImg, err := readPFM(*psfPath)
	if err != nil {
		return fmt.Errorf("reading psf: %w", err)
	}
	dataImg, err := readPFM(*dataPath)
	if err != nil {
		return fmt.Errorf("reading data: %w", err)
	}

	psfSamples, err := psfImg.ToFloat64()
	if err != nil {
		return fmt.Errorf("psf: %w", err)
	}
	dataSamples, err := dataImg.ToFloat64()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}

	psfShape, err := shape.New(psfImg.Height, psfImg.Width)
	if err != nil {
		return fmt.Errorf("psf shape: %w", err)
	}
	dataShape, err := shape.New(dataImg.Height, dataImg.Width)
	if err != nil {
		return fmt.Errorf("data shape: %w", err)
	}

	opts := []deconv.Option[float64]{
		deconv.WithPSFNormalization[float64](true),
		deconv.WithRegularization[float64](*mu, *eps, nil),
	}
	if *maxEval > 0 {
		opts = append(opts, deconv.WithMaxEval[float64](*maxEval))
	}

	problem, err := deconv.NewSmoothInverseProblem(
		shape.Vector[float64]{Shape: psfShape, Data: psfSamples},
		shape.Vector[float64]{Shape: dataShape, Data: dataSamples},
		opts...,
	)
	if err != nil {
		return fmt.Errorf("building problem: %w", err)
	}

	if err := drive(problem); err != nil {
		return err
	}

	object := problem.Object()
	objShape := problem.ObjectShape()
	outImg, err := pfm.FromFloat64(objShape.Dim(1), objShape.Dim(0), object)
	if err != nil {
		return fmt.Errorf("building output image: %w", err)
	}
	if err := writePFM(*outPath, outImg); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	if *saveTipi {
		if err := writeTipiResult(problem, psfImg, psfSamples, dataSamples, dataShape, object); err != nil {
			return fmt.Errorf("writing .tipi result: %w", err)
		}
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "converged: status=%s iterations=%d cost=%.6e\n",
			problem.StatusString(), problem.Iteration(), problem.Cost())
	}
	return nil
}

// drive runs problem to a terminal status, optionally alongside a
// console dashboard and/or a web dashboard.
func drive(problem *deconv.SmoothInverseProblem) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *monitorPort > 0 {
		srv := monitor.NewServer(problem, 200*time.Millisecond, *monitorPort)
		go func() {
			if err := srv.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "monitor: %v\n", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if *console {
		con := monitor.NewConsole(problem, 500)
		started := false
		step := func() (bool, error) {
			var status optimize.Status
			var err error
			if !started {
				started = true
				status, err = problem.Start()
			} else if problem.Status() == optimize.NewX {
				status, err = problem.Iterate()
			} else {
				status = problem.Status()
			}
			if status == optimize.Error {
				return true, err
			}
			done := status == optimize.Converged || status == optimize.Warning
			return done, nil
		}
		_, err := con.Run(100*time.Millisecond, step)
		return err
	}

	_, status, err := problem.Run()
	if status == optimize.Error {
		return err
	}
	if err != nil && !errors.Is(err, deconv.ErrMaxEvalExceeded) {
		return err
	}
	return nil
}

func readPFM(path string) (*pfm.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return pfm.Parse(f)
}

func writePFM(path string, img *pfm.File) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return pfm.Write(f, img)
}

func writeTipiResult(
	problem *deconv.SmoothInverseProblem, psfImg *pfm.File,
	psfSamples, dataSamples []float64, dataShape shape.Shape, object []float64,
) error {
	tipiPath := *outPath + ".tipi"
	f, err := os.Create(tipiPath)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := parseEncoding(*tipiEncoding)
	if err != nil {
		return err
	}
	if enc == imgformat.EncodingF16 && *verbose {
		reportQuantization("psf", psfSamples)
		reportQuantization("data", dataSamples)
		reportQuantization("object", object)
	}

	file := &imgformat.ProblemFile{
		Problem: imgformat.Problem{
			ObjectShape: problem.ObjectShape().Dims(),
			DataShape:   dataShape.Dims(),
			PSFShape:    []int{psfImg.Height, psfImg.Width},
			PSF:         psfSamples,
			Data:        dataSamples,
			Normalize:   true,
			Mu:          *mu,
			Eps:         *eps,
		},
		HasResult: true,
		Result: imgformat.Result{
			Object:     object,
			Cost:       problem.Cost(),
			Status:     problem.StatusString(),
			Iterations: problem.Iteration(),
		},
	}
	return imgformat.WriteProblemFile(f, enc, file)
}

func parseEncoding(s string) (imgformat.Encoding, error) {
	switch s {
	case "f64":
		return imgformat.EncodingF64, nil
	case "f32":
		return imgformat.EncodingF32, nil
	case "f16":
		return imgformat.EncodingF16, nil
	default:
		return 0, fmt.Errorf("unknown -tipi-encoding %q: want f64, f32, or f16", s)
	}
}

// reportQuantization logs the precision cost of storing samples as f16,
// so a user choosing -tipi-encoding=f16 can see what it costs before
// trusting the stored file for later analysis.
func reportQuantization(label string, samples []float64) {
	stats := f16.Quantize(samples)
	slog.Info("tipi: f16 quantization", "array", label,
		"maxAbsError", stats.MaxAbsError, "maxRelError", stats.MaxRelError, "snrDB", stats.SNR)
}
