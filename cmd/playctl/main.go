package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/GriffinCanCode/codelive/internal/client"
	"github.com/GriffinCanCode/codelive/internal/domain/buffer"
)

const usage = `Usage: playctl [-server URL] <command> [args]

Commands:
  run [-html file] [-css file] [-js file]   replace the buffers and rebuild
  templates                                  list starter templates
  load <id>                                  load a starter template
  console [-since N] [-follow]               print console lines
  health                                     print server health
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "playctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	global := flag.NewFlagSet("playctl", flag.ContinueOnError)
	global.SetOutput(io.Discard)
	server := global.String("server", envOr("CODELIVE_URL", client.DefaultBaseURL), "CodeLive server URL")
	timeout := global.Duration("timeout", 30*time.Second, "Request timeout")
	retries := global.Int("retries", 2, "Retries on connection errors and 5xx answers")
	if err := global.Parse(args); err != nil {
		return fmt.Errorf("%w\n%s", err, usage)
	}

	rest := global.Args()
	if len(rest) == 0 {
		return errors.New("missing command\n" + usage)
	}

	c := client.New(*server, client.Options{Timeout: *timeout, MaxRetries: *retries})

	switch cmd, cmdArgs := rest[0], rest[1:]; cmd {
	case "run":
		return runBuffers(ctx, c, cmdArgs, out)
	case "templates":
		return listTemplates(ctx, c, out)
	case "load":
		if len(cmdArgs) != 1 {
			return errors.New("load takes exactly one template id")
		}
		return loadTemplate(ctx, c, cmdArgs[0], out)
	case "console":
		return printConsole(ctx, c, cmdArgs, out)
	case "health":
		h, err := c.Health(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s (version %s, up %s)\n", h.Status, h.Version, h.Uptime)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

func runBuffers(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	htmlPath := fs.String("html", "", "HTML file")
	cssPath := fs.String("css", "", "CSS file")
	jsPath := fs.String("js", "", "JavaScript file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var set buffer.Set
	for _, f := range []struct {
		path string
		dst  *string
	}{
		{*htmlPath, &set.Markup},
		{*cssPath, &set.Style},
		{*jsPath, &set.Script},
	} {
		if f.path == "" {
			continue
		}
		data, err := os.ReadFile(f.path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", f.path, err)
		}
		*f.dst = string(data)
	}

	if err := c.PutBuffers(ctx, set, false); err != nil {
		return err
	}
	result, err := c.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "instance %s: %d script(s), %d DOM change(s) in %dms\n",
		result.Instance, result.Scripts, result.DOMChanges, result.DurationMs)
	if result.Error != "" {
		fmt.Fprintf(out, "uncaught: %s\n", result.Error)
	}
	return nil
}

func listTemplates(ctx context.Context, c *client.Client, out io.Writer) error {
	list, err := c.Templates(ctx)
	if err != nil {
		return err
	}
	for _, t := range list {
		fmt.Fprintf(out, "%-10s %-20s %s\n", t.ID, t.Name, t.Description)
	}
	return nil
}

func loadTemplate(ctx context.Context, c *client.Client, id string, out io.Writer) error {
	set, err := c.LoadTemplate(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "loaded %s (html %d, css %d, js %d bytes)\n", id, len(set.Markup), len(set.Style), len(set.Script))
	return nil
}

func printConsole(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("console", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	since := fs.Uint64("since", 0, "Only lines after this sequence number")
	follow := fs.Bool("follow", false, "Keep polling for new lines")
	interval := fs.Duration("interval", time.Second, "Poll interval with -follow")
	if err := fs.Parse(args); err != nil {
		return err
	}

	seq := *since
	for {
		lines, err := c.Console(ctx, seq)
		if err != nil {
			return err
		}
		for _, l := range lines {
			fmt.Fprintf(out, "%s %-5s %s\n", l.Time.Format("15:04:05.000"), strings.ToUpper(string(l.Method)), l.Text())
			seq = l.Seq
		}
		if !*follow {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(*interval):
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
