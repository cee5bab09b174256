package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/spf13/pflag"

	"github.com/textmend/textmend/internal/fetch"
	"github.com/textmend/textmend/internal/files"
	"github.com/textmend/textmend/pkg/encoding"
)

var version = "HEAD"

const Help = `textmend -- Detect and repair broken text encodings

Usage: textmend [OPTIONS...] [FILE_GLOB...]

With file globs, matching files are repaired in place.
Without arguments, reads stdin and writes repaired text to stdout.

Options:
  -e, --encoding ENC   Skip detection and force this source encoding.
                       (utf-8, latin-1, windows-1252)
      --fallback CHAR  Replacement character for undecodable bytes.
                       (default U+FFFD)
  -n, --dry-run        Detect and report, but do not write anything.
  -o, --output FILE    Write result to FILE instead of stdout.
      --url URL        Download and repair a remote document.
  -v, --verbose        Log every replacement decision.

  -h, --help           Show this help message and exit.
      --version        Show version and exit.
`

type Command struct {
	InStream  io.Reader
	OutStream io.Writer
	ErrStream io.Writer
}

func main() {
	cmd := &Command{
		InStream:  os.Stdin,
		OutStream: os.Stdout,
		ErrStream: os.Stderr,
	}
	os.Exit(cmd.Run(os.Args[1:]))
}

func (c *Command) Run(args []string) int {
	flags := pflag.NewFlagSet("textmend", pflag.ContinueOnError)
	flags.SetOutput(c.ErrStream)

	encName := flags.StringP("encoding", "e", "", "")
	fallback := flags.String("fallback", "", "")
	dryRun := flags.BoolP("dry-run", "n", false, "")
	output := flags.StringP("output", "o", "", "")
	urlFlag := flags.String("url", "", "")
	verbose := flags.BoolP("verbose", "v", false, "")
	help := flags.BoolP("help", "h", false, "")
	showVersion := flags.Bool("version", false, "")

	if err := flags.Parse(args); err != nil {
		fmt.Fprintln(c.ErrStream, err)
		fmt.Fprintln(c.ErrStream, "\nPlease see `textmend -h` for more information.")
		return 2
	}

	if *help {
		fmt.Fprint(c.OutStream, Help)
		return 0
	}
	if *showVersion {
		fmt.Fprintf(c.OutStream, "textmend %s\n", version)
		return 0
	}

	opts := &encoding.Options{Verbose: *verbose}
	if *fallback != "" {
		r, size := utf8.DecodeRuneInString(*fallback)
		if (r == utf8.RuneError && size <= 1) || size != len(*fallback) {
			fmt.Fprintf(c.ErrStream, "error: --fallback must be a single character, got %q\n", *fallback)
			return 2
		}
		opts.Fallback = r
	}

	var forced encoding.Encoding
	if *encName != "" {
		enc, ok := encoding.ParseEncoding(*encName)
		if !ok {
			fmt.Fprintf(c.ErrStream, "error: unknown encoding %q\n", *encName)
			return 2
		}
		forced = enc
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch {
	case *urlFlag != "":
		err = c.runURL(ctx, *urlFlag, forced, opts, *output, *dryRun)
	case flags.NArg() > 0:
		err = c.runFiles(flags.Args(), forced, opts, *dryRun)
	default:
		err = c.runPipe(forced, opts, *output, *dryRun)
	}
	if err != nil {
		fmt.Fprintf(c.ErrStream, "error: %s\n", err)
		return 1
	}
	return 0
}

func (c *Command) runFiles(patterns []string, forced encoding.Encoding, opts *encoding.Options, dryRun bool) error {
	paths, err := files.Expand(patterns)
	if err != nil {
		return err
	}

	failed := 0
	for _, path := range paths {
		report, err := files.FixFile(path, forced, opts, dryRun)
		if err != nil {
			fmt.Fprintf(c.ErrStream, "error: %s: %s\n", path, err)
			failed++
			continue
		}

		status := "clean"
		if report.Changed {
			status = "repaired"
			if dryRun {
				status = "would repair"
			}
		}
		fmt.Fprintf(c.OutStream, "%s\t%s\t%s\n", report.Path, report.Encoding, status)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(paths))
	}
	return nil
}

func (c *Command) runURL(ctx context.Context, url string, forced encoding.Encoding, opts *encoding.Options, output string, dryRun bool) error {
	raw, err := fetch.NewClient(30 * time.Second).Download(ctx, url)
	if err != nil {
		return err
	}
	return c.emit(raw, forced, opts, output, dryRun)
}

func (c *Command) runPipe(forced encoding.Encoding, opts *encoding.Options, output string, dryRun bool) error {
	raw, err := io.ReadAll(c.InStream)
	if err != nil {
		return fmt.Errorf("failed to read stdin: %w", err)
	}
	return c.emit(raw, forced, opts, output, dryRun)
}

func (c *Command) emit(raw []byte, forced encoding.Encoding, opts *encoding.Options, output string, dryRun bool) error {
	var fixed string
	var err error
	if forced != encoding.Unknown {
		fixed, err = encoding.Decode(raw, forced, opts)
	} else {
		fixed, err = encoding.Fix(raw, opts)
	}
	if err != nil {
		return err
	}

	if dryRun {
		used := forced
		if used == encoding.Unknown {
			used = encoding.Detect(raw)
		}
		fmt.Fprintf(c.ErrStream, "%s %s (%d bytes in, %d characters out)\n",
			encodingLabel(forced), used, len(raw), utf8.RuneCountInString(fixed))
		return nil
	}

	if output != "" {
		return os.WriteFile(output, []byte(fixed), 0644)
	}
	_, err = io.WriteString(c.OutStream, fixed)
	return err
}

func encodingLabel(forced encoding.Encoding) string {
	if forced != encoding.Unknown {
		return "forced"
	}
	return "detected"
}
