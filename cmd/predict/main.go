// predict: classify a single image file from the command line
//
//	predict [-url URL] [-resampler name] [-dump out.png] [-info] image-file
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/teslashibe/go-digits/internal/config"
	"github.com/teslashibe/go-digits/internal/log"
	"github.com/teslashibe/go-digits/pkg/capture"
	"github.com/teslashibe/go-digits/pkg/predict"
	"github.com/teslashibe/go-digits/pkg/raster"
	"github.com/teslashibe/go-digits/pkg/view"
)

const histogramWidth = 40

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.LookupEnv); err != nil {
		fmt.Fprintln(os.Stderr, "predict:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer, lookup func(string) (string, bool)) error {
	cfg := config.Default()
	if err := cfg.LoadEnv(lookup); err != nil {
		return err
	}

	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	fs.SetOutput(out)
	url := fs.String("url", cfg.PredictorURL, "Prediction service base URL")
	resamplerName := fs.String("resampler", cfg.Resampler, "Resampling filter: catmullrom, lanczos, bilinear")
	dump := fs.String("dump", "", "Write the normalised 28x28 PNG to this path")
	info := fs.Bool("info", false, "Print the model's input/output shapes first")
	ascii := fs.Bool("ascii", false, "Print the normalised image as text")
	timeout := fs.Duration("timeout", 30*time.Second, "Request timeout")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: predict [flags] image-file")
	}
	path := fs.Arg(0)

	logger := log.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	resampler, err := raster.ParseResampler(*resamplerName)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	surface := capture.New(capture.WithResampler(resampler), capture.WithLogger(logger))
	img, err := surface.LoadFile(capture.Upload{
		Data:     data,
		MIMEType: contentType(path, data),
		Size:     int64(len(data)),
		Filename: filepath.Base(path),
	})
	if err != nil {
		return fmt.Errorf("%s: %s", path, capture.UserMessage(err))
	}

	if *dump != "" {
		png, err := img.PNG()
		if err != nil {
			return err
		}
		if err := os.WriteFile(*dump, png, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", *dump)
	}
	if *ascii {
		fmt.Fprint(out, img.ASCII())
	}

	client, err := predict.NewClient(
		predict.WithBaseURL(*url),
		predict.WithTimeout(*timeout),
		predict.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	if *info {
		mi, err := client.ModelInfo(ctx)
		if err != nil {
			return fmt.Errorf("model info: %s", predict.Message(err))
		}
		fmt.Fprintf(out, "model input %v output %v\n", mi.InputShape, mi.OutputShape)
	}

	req, err := predict.NewImageRequest(img)
	if err != nil {
		return err
	}
	res, err := client.Predict(ctx, req)
	if err != nil {
		return errors.New(predict.Message(err))
	}

	fmt.Fprintf(out, "prediction: %d\n", res.Prediction)
	fmt.Fprintf(out, "confidence: %s\n", view.FormatConfidence(res.Confidence))
	fmt.Fprint(out, view.Histogram(res, histogramWidth))
	return nil
}

// contentType guesses from the extension, then from the bytes, the way a
// browser fills in a file input's type.
func contentType(path string, data []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return http.DetectContentType(data)
}
