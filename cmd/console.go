package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mvdan/xurls"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/picturebook/internal/config"
	"github.com/lehigh-university-libraries/picturebook/internal/models"
	"github.com/lehigh-university-libraries/picturebook/internal/pipeline"
)

const consoleHelp = `Enter an image path or URL to get a story.
Commands:
  :style NAME       set the story style (adventure, heartwarming, suspense, scifi, fable)
  :length N         set the story length (50-300, step 50)
  :light on|off     toggle the lightweight models
  :history [n]      show the most recent stories
  :help             show this help
  :quit             exit`

func newConsoleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Interactive console for telling stories about images",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, app, err := loadApp(cmd, opts)
			if err != nil {
				return err
			}
			defer app.Close()

			rl, err := readline.New("> ")
			if err != nil {
				return err
			}
			defer func() {
				_ = rl.Close()
			}()

			c := &console{
				app:     app,
				out:     rl.Stdout(),
				display: cfg.History.Display,
				flags: storyFlags{
					style:  string(models.DefaultStyle),
					length: config.DefaultStoryLength,
				},
			}
			fmt.Fprintln(c.out, consoleHelp)

			for {
				line, err := rl.Readline()
				if err != nil { // io.EOF or interrupt
					break
				}
				if !c.handle(cmd, strings.TrimSpace(line)) {
					break
				}
			}
			return nil
		},
	}
}

type console struct {
	app     *pipeline.App
	out     io.Writer
	display int
	flags   storyFlags
}

// handle runs one console line and reports whether to keep reading.
func (c *console) handle(cmd *cobra.Command, line string) bool {
	if line == "" {
		return true
	}
	if strings.HasPrefix(line, ":") {
		return c.command(cmd, line[1:])
	}

	target := line
	if urls := xurls.Relaxed.FindAllString(line, -1); len(urls) > 0 {
		target = urls[0]
		if !strings.Contains(target, "://") {
			target = "https://" + target
		}
	}
	if _, err := os.Stat(line); err == nil {
		target = line
	}

	req, err := buildRequest(target, &c.flags)
	if err != nil {
		fmt.Fprintln(c.out, err)
		return true
	}
	result, err := c.app.Run(cmd.Context(), req)
	if err != nil {
		fmt.Fprintln(c.out, err)
		return true
	}
	printResult(c.out, result)
	return true
}

func (c *console) command(cmd *cobra.Command, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "quit", "q", "exit":
		return false
	case "help", "h":
		fmt.Fprintln(c.out, consoleHelp)
	case "style":
		style, err := models.ParseStyle(arg)
		if err != nil {
			fmt.Fprintf(c.out, "%v, the generic template will be used\n", err)
		}
		c.flags.style = string(style)
		fmt.Fprintf(c.out, "style: %s\n", style.Label())
	case "length":
		n, err := strconv.Atoi(arg)
		if err != nil || !config.ValidStoryLength(n) {
			fmt.Fprintf(c.out, "length must be %d-%d in steps of %d\n", config.MinStoryLength, config.MaxStoryLength, config.StoryLengthStep)
			return true
		}
		c.flags.length = n
		fmt.Fprintf(c.out, "length: %d\n", n)
	case "light":
		switch arg {
		case "on", "true", "1":
			c.flags.lightweight = true
		case "off", "false", "0":
			c.flags.lightweight = false
		default:
			c.flags.lightweight = !c.flags.lightweight
		}
		fmt.Fprintf(c.out, "lightweight: %t\n", c.flags.lightweight)
	case "history":
		n := c.display
		if arg != "" {
			parsed, err := strconv.Atoi(arg)
			if err != nil {
				fmt.Fprintln(c.out, errors.New("history expects a number"))
				return true
			}
			n = parsed
		}
		records, err := c.app.History.Recent(cmd.Context(), n)
		if err != nil {
			fmt.Fprintln(c.out, err)
			return true
		}
		if len(records) == 0 {
			fmt.Fprintln(c.out, "no stories yet")
		}
		for _, rec := range records {
			fmt.Fprintf(c.out, "[%s] %s | %s\n  %s\n", rec.CreatedAt.Format("15:04:05"), rec.Style, rec.Caption.Text, rec.Story.Text)
		}
	default:
		fmt.Fprintf(c.out, "unknown command %q, try :help\n", name)
	}
	return true
}
